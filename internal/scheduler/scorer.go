// Package scheduler ranks pending bills by urgency and assigns them to paydays.
//
// Everything in this package is a pure function of its inputs. The current
// time is always passed in by the caller; nothing here reads the system clock
// or keeps state between calls.
package scheduler

import (
	"fmt"
	"strings"

	"paydays/internal/core"

	"github.com/shopspring/decimal"
)

// DueBand awards Points when a bill is due within WithinDays days (inclusive).
// Overdue bills have a negative day count and therefore match the first band.
type DueBand struct {
	WithinDays int
	Points     int
}

// AmountBand awards Points when a bill's amount is strictly greater than Over.
type AmountBand struct {
	Over   decimal.Decimal
	Points int
}

// Weighting is one scoring table. Bands are evaluated in order and only the
// first matching band of each kind applies.
type Weighting struct {
	Name            string
	DueBands        []DueBand
	AmountBands     []AmountBand
	CriticalPoints  int
	LowIncomePoints int
	// LowIncomeCountsAsCritical makes a low-income month earn CriticalPoints
	// instead of a separate bonus.
	LowIncomeCountsAsCritical bool
}

var amountBands = []AmountBand{
	{Over: decimal.NewFromInt(1000), Points: 3},
	{Over: decimal.NewFromInt(500), Points: 2},
	{Over: decimal.NewFromInt(100), Points: 1},
}

// StandardWeighting is the table used by period bucketing.
var StandardWeighting = Weighting{
	Name: "standard",
	DueBands: []DueBand{
		{WithinDays: 2, Points: 5},
		{WithinDays: 5, Points: 3},
		{WithinDays: 10, Points: 1},
	},
	AmountBands:     amountBands,
	CriticalPoints:  3,
	LowIncomePoints: 2,
}

// BalancedWeighting is the table used by the load-balanced strategy.
var BalancedWeighting = Weighting{
	Name: "balanced",
	DueBands: []DueBand{
		{WithinDays: 3, Points: 3},
		{WithinDays: 7, Points: 2},
		{WithinDays: 14, Points: 1},
	},
	AmountBands:               amountBands,
	CriticalPoints:            2,
	LowIncomeCountsAsCritical: true,
}

type scoreComponent struct {
	label  string
	points int
}

func (w Weighting) components(b core.Bill, today core.Date, risk RiskFlags) []scoreComponent {
	var out []scoreComponent
	if b.BasePriority != 0 {
		out = append(out, scoreComponent{label: "base", points: b.BasePriority})
	}

	days := today.DaysUntil(b.DueDate)
	for _, band := range w.DueBands {
		if days <= band.WithinDays {
			out = append(out, scoreComponent{
				label:  fmt.Sprintf("due in %d days (<= %d)", days, band.WithinDays),
				points: band.Points,
			})
			break
		}
	}

	for _, band := range w.AmountBands {
		if b.Amount.GreaterThan(band.Over) {
			out = append(out, scoreComponent{
				label:  "amount over " + band.Over.String(),
				points: band.Points,
			})
			break
		}
	}

	critical := risk.IsCritical || (w.LowIncomeCountsAsCritical && risk.IsLowIncome)
	if critical && w.CriticalPoints != 0 {
		out = append(out, scoreComponent{label: "critical month", points: w.CriticalPoints})
	}
	if risk.IsLowIncome && !w.LowIncomeCountsAsCritical && w.LowIncomePoints != 0 {
		out = append(out, scoreComponent{label: "low-income month", points: w.LowIncomePoints})
	}
	return out
}

// Score returns the urgency of b as seen on today. Higher is more urgent.
func (w Weighting) Score(b core.Bill, today core.Date, risk RiskFlags) int {
	total := 0
	for _, c := range w.components(b, today, risk) {
		total += c.points
	}
	return total
}

// Explain renders the components of Score as a short human readable note.
func (w Weighting) Explain(b core.Bill, today core.Date, risk RiskFlags) string {
	parts := w.components(b, today, risk)
	if len(parts) == 0 {
		return "no urgency factors"
	}
	s := make([]string, len(parts))
	for i, c := range parts {
		s[i] = fmt.Sprintf("%s %+d", c.label, c.points)
	}
	return strings.Join(s, ", ")
}
