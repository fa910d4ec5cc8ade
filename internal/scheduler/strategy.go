package scheduler

// This file implements the Strategy Pattern for payday allocation.
// Each strategy owns its weighting table and its fallback policy; the two
// built-in strategies intentionally disagree on both.

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"paydays/internal/core"
)

type StrategyName string

const (
	// PeriodStrategy buckets bills by payday period and forces every bill
	// into some bucket.
	PeriodStrategy StrategyName = "period"
	// BalancedStrategy assigns each bill to the nearest prior payday,
	// deflecting away from overloaded ones, and may leave bills unassigned.
	BalancedStrategy StrategyName = "balanced"
)

var ErrUnknownStrategy = errors.New("unknown strategy")

// Input is what a strategy plans over. Bills are already validated and
// limited to pending ones.
type Input struct {
	Bills   []core.Bill
	Paydays []core.Payday
	Risks   *MonthRiskIndex
	Now     time.Time
}

// Strategy is the interface implemented by every allocation algorithm.
type Strategy interface {
	Name() StrategyName
	// Weighting is the scoring table the strategy ranks bills with.
	Weighting() Weighting
	// Plan assigns Input.Bills to Input.Paydays.
	Plan(in Input) Plan
}

// strategies maps names to the built-in allocators. It is never written
// after package initialisation.
var strategies = map[StrategyName]Strategy{
	PeriodStrategy:   PeriodBucketing{Table: StandardWeighting},
	BalancedStrategy: NewLoadBalanced(),
}

// GetStrategy returns the strategy registered under name.
func GetStrategy(name StrategyName) (Strategy, error) {
	s, ok := strategies[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownStrategy, name)
	}
	return s, nil
}

// StrategyNames lists the registered strategy names in sorted order.
func StrategyNames() []StrategyName {
	names := make([]StrategyName, 0, len(strategies))
	for n := range strategies {
		names = append(names, n)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

// ParseStrategyName accepts a strategy name case-insensitively. "a" and "b"
// are accepted as short aliases for the built-in strategies.
func ParseStrategyName(s string) (StrategyName, error) {
	switch v := strings.ToLower(strings.TrimSpace(s)); v {
	case "a":
		return PeriodStrategy, nil
	case "b":
		return BalancedStrategy, nil
	default:
		name := StrategyName(v)
		if _, ok := strategies[name]; !ok {
			return "", fmt.Errorf("%w: %q", ErrUnknownStrategy, s)
		}
		return name, nil
	}
}

// rankBills scores every bill and returns them most urgent first. Equal
// priorities keep their input order.
func rankBills(bills []core.Bill, w Weighting, risks *MonthRiskIndex, today core.Date, withNotes bool) []PrioritizedBill {
	out := make([]PrioritizedBill, len(bills))
	for i, b := range bills {
		flags := risks.ForDate(b.DueDate)
		out[i] = PrioritizedBill{Bill: b, Priority: w.Score(b, today, flags)}
		if withNotes {
			out[i].Notes = w.Explain(b, today, flags)
		}
	}
	sortByPriority(out)
	return out
}

func sortedPaydays(paydays []core.Payday) []core.Payday {
	out := make([]core.Payday, len(paydays))
	copy(out, paydays)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Compare(out[j].Date) < 0 })
	return out
}
