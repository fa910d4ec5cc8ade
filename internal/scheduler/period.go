package scheduler

import (
	"paydays/internal/core"

	"github.com/shopspring/decimal"
)

// PeriodBucketing splits the calendar into periods starting at each future
// payday and pays every bill from the period its due date falls in.
type PeriodBucketing struct {
	Table Weighting
}

func (PeriodBucketing) Name() StrategyName { return PeriodStrategy }

func (s PeriodBucketing) Weighting() Weighting { return s.Table }

// Plan only considers paydays strictly after the day of in.Now.
func (s PeriodBucketing) Plan(in Input) Plan {
	today := core.DateOf(in.Now)
	plan := Plan{Strategy: PeriodStrategy, Today: today}

	var future []core.Payday
	for _, p := range sortedPaydays(in.Paydays) {
		if p.Date.Compare(today) > 0 {
			future = append(future, p)
		}
	}

	ranked := rankBills(in.Bills, s.Table, in.Risks, today, false)
	plan.Buckets = AllocatePeriods(ranked, future)
	plan.Assignments = flatten(plan.Buckets)
	return plan
}

// AllocatePeriods assigns bills, sorted most urgent first, to paydays sorted
// ascending. Payday i owns due dates in [paydays[i], paydays[i+1]); the last
// payday owns everything after it. Bills due before the first payday go to
// the latest payday not after their due date, or to the first payday when
// there is none. Every bill lands in exactly one bucket.
func AllocatePeriods(bills []PrioritizedBill, paydays []core.Payday) []PaydayBucket {
	if len(bills) == 0 || len(paydays) == 0 {
		return nil
	}

	buckets := make([]PaydayBucket, len(paydays))
	for i, p := range paydays {
		buckets[i] = PaydayBucket{Payday: p, Total: decimal.Zero}
	}

	remaining := bills
	for i := range paydays {
		start := paydays[i].Date
		last := i == len(paydays)-1
		var kept []PrioritizedBill
		for _, b := range remaining {
			due := b.Bill.DueDate
			if due.Compare(start) >= 0 && (last || due.Compare(paydays[i+1].Date) < 0) {
				buckets[i].add(assignmentFor(b, start))
				continue
			}
			kept = append(kept, b)
		}
		remaining = kept
	}

	for _, b := range remaining {
		idx := 0
		for i := len(paydays) - 1; i >= 0; i-- {
			if paydays[i].Date.Compare(b.Bill.DueDate) <= 0 {
				idx = i
				break
			}
		}
		buckets[idx].add(assignmentFor(b, paydays[idx].Date))
	}

	for i := range buckets {
		sortSchedule(buckets[i].Assignments)
	}
	return buckets
}

func assignmentFor(b PrioritizedBill, date core.Date) PaymentAssignment {
	return PaymentAssignment{Bill: b.Bill, PaymentDate: date, Priority: b.Priority}
}
