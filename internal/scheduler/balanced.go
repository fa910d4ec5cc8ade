package scheduler

import (
	"sort"

	"paydays/internal/core"
)

const (
	DefaultLoadThreshold    = 5
	DefaultDeflectionMargin = 1
)

// LoadBalanced pays each bill on the latest payday that is not after its due
// date and not before today. When that payday already carries more than
// LoadThreshold bills, the bill moves to the latest earlier eligible payday
// whose load is below the candidate's load minus DeflectionMargin.
//
// Bills with no eligible payday fall back to the latest payday strictly
// before their due date, past ones included. Bills with no such payday are
// reported as unassigned rather than forced somewhere.
type LoadBalanced struct {
	Table            Weighting
	LoadThreshold    int
	DeflectionMargin int
}

func NewLoadBalanced() LoadBalanced {
	return LoadBalanced{
		Table:            BalancedWeighting,
		LoadThreshold:    DefaultLoadThreshold,
		DeflectionMargin: DefaultDeflectionMargin,
	}
}

func (LoadBalanced) Name() StrategyName { return BalancedStrategy }

func (s LoadBalanced) Weighting() Weighting { return s.Table }

func (s LoadBalanced) Plan(in Input) Plan {
	today := core.DateOf(in.Now)
	plan := Plan{Strategy: BalancedStrategy, Today: today}
	if len(in.Bills) == 0 || len(in.Paydays) == 0 {
		return plan
	}

	bills := make([]core.Bill, len(in.Bills))
	copy(bills, in.Bills)
	sort.SliceStable(bills, func(i, j int) bool { return bills[i].DueDate.Compare(bills[j].DueDate) < 0 })

	paydays := sortedPaydays(in.Paydays)
	labels := make(map[core.Date]string, len(paydays))
	for _, p := range paydays {
		if labels[p.Date] == "" {
			labels[p.Date] = p.Label
		}
	}

	load := make(map[core.Date]int, len(paydays))
	for _, bill := range bills {
		priority := s.Table.Score(bill, today, in.Risks.ForDate(bill.DueDate))
		date, deflected, ok := s.choose(bill.DueDate, today, paydays, load)
		if !ok {
			plan.Unassigned = append(plan.Unassigned, UnassignedBill{
				Bill:     bill,
				Priority: priority,
				Reason:   ReasonNoEligiblePayday,
			})
			continue
		}
		plan.Assignments = append(plan.Assignments, PaymentAssignment{
			Bill:        bill,
			PaymentDate: date,
			Priority:    priority,
			Deflected:   deflected,
		})
		load[date]++
	}

	sortSchedule(plan.Assignments)
	plan.Buckets = bucketsByDate(plan.Assignments, labels)
	return plan
}

// choose picks the payment date for a bill due on due. paydays must be sorted
// ascending.
func (s LoadBalanced) choose(due, today core.Date, paydays []core.Payday, load map[core.Date]int) (date core.Date, deflected, ok bool) {
	var eligible []core.Date
	for _, p := range paydays {
		if p.Date.Compare(due) <= 0 && p.Date.Compare(today) >= 0 {
			eligible = append(eligible, p.Date)
		}
	}

	if len(eligible) == 0 {
		for i := len(paydays) - 1; i >= 0; i-- {
			if paydays[i].Date.Compare(due) < 0 {
				return paydays[i].Date, false, true
			}
		}
		return core.Date{}, false, false
	}

	last := len(eligible) - 1
	candidate := eligible[last]
	current := load[candidate]
	if current > s.LoadThreshold {
		for j := last - 1; j >= 0; j-- {
			if load[eligible[j]] < current-s.DeflectionMargin {
				return eligible[j], true, true
			}
		}
	}
	return candidate, false, true
}
