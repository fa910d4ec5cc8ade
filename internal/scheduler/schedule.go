package scheduler

import (
	"encoding/json"
	"sort"
	"time"

	"paydays/internal/core"

	"github.com/shopspring/decimal"
)

// Reasons attached to bills that end up outside the schedule.
const (
	ReasonNoEligiblePayday = "no eligible payday"
)

type (
	// PrioritizedBill is a bill with its computed priority. PaymentDate is
	// set only when the bill comes out of a schedule.
	PrioritizedBill struct {
		Bill        core.Bill  `json:"bill"`
		Priority    int        `json:"priority"`
		PaymentDate *core.Date `json:"payment_date,omitempty"`
		Notes       string     `json:"notes,omitempty"`
	}

	// PaymentAssignment routes one bill to one payday.
	PaymentAssignment struct {
		Bill        core.Bill `json:"bill"`
		PaymentDate core.Date `json:"payment_date"`
		Priority    int       `json:"priority"`
		Deflected   bool      `json:"deflected,omitempty"`
	}

	// PaydayBucket groups the assignments routed to a payday.
	PaydayBucket struct {
		Payday      core.Payday         `json:"payday"`
		Assignments []PaymentAssignment `json:"assignments"`
		Total       decimal.Decimal     `json:"total"`
	}

	// UnassignedBill is a pending bill for which no payday could be chosen.
	UnassignedBill struct {
		Bill     core.Bill `json:"bill"`
		Priority int       `json:"priority"`
		Reason   string    `json:"reason"`
	}

	// RejectedBill is a bill that failed validation and was left out.
	RejectedBill struct {
		Bill   core.Bill `json:"bill"`
		Reason string    `json:"reason"`
		Err    error     `json:"-"`
	}

	// Plan is the result of one scheduling run.
	Plan struct {
		Strategy    StrategyName        `json:"strategy"`
		Today       core.Date           `json:"today"`
		Buckets     []PaydayBucket      `json:"buckets"`
		Assignments []PaymentAssignment `json:"assignments"`
		Unassigned  []UnassignedBill    `json:"unassigned,omitempty"`
		Rejected    []RejectedBill      `json:"rejected,omitempty"`
	}
)

// AdjustForWeekend moves a Saturday or Sunday back to the preceding Friday.
// Weekdays are returned unchanged.
func AdjustForWeekend(d core.Date) core.Date {
	switch d.Weekday() {
	case time.Saturday:
		return d.AddDays(-1)
	case time.Sunday:
		return d.AddDays(-2)
	default:
		return d
	}
}

// AdjustedDate is the date to show for this assignment. PaymentDate itself is
// never changed.
func (a PaymentAssignment) AdjustedDate() core.Date {
	return AdjustForWeekend(a.PaymentDate)
}

func (a PaymentAssignment) MarshalJSON() ([]byte, error) {
	type plain PaymentAssignment
	return json.Marshal(struct {
		plain
		AdjustedDate core.Date `json:"adjusted_date"`
	}{plain: plain(a), AdjustedDate: a.AdjustedDate()})
}

func (b *PaydayBucket) add(a PaymentAssignment) {
	b.Assignments = append(b.Assignments, a)
	b.Total = b.Total.Add(a.Bill.Amount)
}

// scheduleLess orders by payment date ascending, then priority descending.
func scheduleLess(a, b PaymentAssignment) bool {
	if c := a.PaymentDate.Compare(b.PaymentDate); c != 0 {
		return c < 0
	}
	return a.Priority > b.Priority
}

func sortSchedule(as []PaymentAssignment) {
	sort.SliceStable(as, func(i, j int) bool { return scheduleLess(as[i], as[j]) })
}

// SortAssignments returns a copy of as ordered by payment date ascending and
// priority descending. Full ties keep their input order.
func SortAssignments(as []PaymentAssignment) []PaymentAssignment {
	out := make([]PaymentAssignment, len(as))
	copy(out, as)
	sortSchedule(out)
	return out
}

func sortByPriority(bills []PrioritizedBill) {
	sort.SliceStable(bills, func(i, j int) bool { return bills[i].Priority > bills[j].Priority })
}

// Total sums the amounts of every assigned bill.
func (p Plan) Total() decimal.Decimal {
	total := decimal.Zero
	for _, b := range p.Buckets {
		total = total.Add(b.Total)
	}
	return total
}

// BillCount is the number of bills the plan accounts for, assigned or not.
func (p Plan) BillCount() int {
	return len(p.Assignments) + len(p.Unassigned) + len(p.Rejected)
}

// IsEmpty reports whether the run produced no schedule at all.
func (p Plan) IsEmpty() bool {
	return len(p.Assignments) == 0 && len(p.Unassigned) == 0
}

// PrioritizedBills lists every assigned bill with its payment date, most
// urgent first.
func (p Plan) PrioritizedBills() []PrioritizedBill {
	out := make([]PrioritizedBill, 0, len(p.Assignments))
	for _, a := range p.Assignments {
		date := a.PaymentDate
		out = append(out, PrioritizedBill{Bill: a.Bill, Priority: a.Priority, PaymentDate: &date})
	}
	sortByPriority(out)
	return out
}

// bucketsByDate groups already sorted assignments into one bucket per
// distinct payment date.
func bucketsByDate(as []PaymentAssignment, labels map[core.Date]string) []PaydayBucket {
	var buckets []PaydayBucket
	for _, a := range as {
		n := len(buckets)
		if n == 0 || buckets[n-1].Payday.Date != a.PaymentDate {
			buckets = append(buckets, PaydayBucket{
				Payday: core.Payday{Date: a.PaymentDate, Label: labels[a.PaymentDate]},
				Total:  decimal.Zero,
			})
			n++
		}
		buckets[n-1].add(a)
	}
	return buckets
}

func flatten(buckets []PaydayBucket) []PaymentAssignment {
	var out []PaymentAssignment
	for _, b := range buckets {
		out = append(out, b.Assignments...)
	}
	return out
}
