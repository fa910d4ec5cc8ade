package scheduler

import (
	"fmt"
	"testing"
	"time"

	"paydays/internal/core"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pending(id string, due core.Date, amount int64) core.Bill {
	return core.Bill{ID: id, Title: id, Amount: decimal.NewFromInt(amount), DueDate: due, Status: core.StatusPending}
}

// loadScenario routes early bills to Q (2025-04-01) and seven bills to P
// (2025-04-15), both paydays eligible for the latter.
func loadScenario(early int) Input {
	var bills []core.Bill
	for i := 1; i <= early; i++ {
		bills = append(bills, pending(fmt.Sprintf("q%d", i), core.NewDate(2025, 4, 5), 10))
	}
	for i := 1; i <= 7; i++ {
		bills = append(bills, pending(fmt.Sprintf("p%d", i), core.NewDate(2025, 4, 20), 10))
	}
	return Input{
		Bills:   bills,
		Paydays: []core.Payday{payday(2025, 4, 15), payday(2025, 4, 1)},
		Now:     time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC),
	}
}

func paymentDates(plan Plan) map[string]core.Date {
	out := map[string]core.Date{}
	for _, a := range plan.Assignments {
		out[a.Bill.ID] = a.PaymentDate
	}
	return out
}

func TestLoadBalanced_DeflectsFromOverloadedPayday(t *testing.T) {
	plan := NewLoadBalanced().Plan(loadScenario(2))

	dates := paymentDates(plan)
	for i := 1; i <= 6; i++ {
		assert.Equal(t, core.NewDate(2025, 4, 15), dates[fmt.Sprintf("p%d", i)])
	}
	assert.Equal(t, core.NewDate(2025, 4, 1), dates["p7"])

	deflected := 0
	for _, a := range plan.Assignments {
		if a.Deflected {
			deflected++
			assert.Equal(t, "p7", a.Bill.ID)
		}
	}
	assert.Equal(t, 1, deflected)
}

func TestLoadBalanced_NoDeflectionWhenEarlierPaydayIsNotLighterEnough(t *testing.T) {
	plan := NewLoadBalanced().Plan(loadScenario(5))

	dates := paymentDates(plan)
	assert.Equal(t, core.NewDate(2025, 4, 15), dates["p7"])
	for _, a := range plan.Assignments {
		assert.False(t, a.Deflected, a.Bill.ID)
	}
}

func TestLoadBalanced_ThresholdIsConfigurable(t *testing.T) {
	s := NewLoadBalanced()
	s.LoadThreshold = 100

	plan := s.Plan(loadScenario(2))

	assert.Equal(t, core.NewDate(2025, 4, 15), paymentDates(plan)["p7"])
}

func TestLoadBalanced_FallsBackToLatestPaydayBeforeDueDate(t *testing.T) {
	in := Input{
		Bills: []core.Bill{
			pending("late", core.NewDate(2025, 4, 18), 10),
			pending("on-payday", core.NewDate(2025, 4, 15), 10),
		},
		Paydays: []core.Payday{payday(2025, 4, 1), payday(2025, 4, 15)},
		Now:     time.Date(2025, 4, 20, 0, 0, 0, 0, time.UTC),
	}

	plan := NewLoadBalanced().Plan(in)

	dates := paymentDates(plan)
	assert.Equal(t, core.NewDate(2025, 4, 15), dates["late"])
	assert.Equal(t, core.NewDate(2025, 4, 1), dates["on-payday"], "fallback requires a payday strictly before the due date")
	assert.Empty(t, plan.Unassigned)
}

func TestLoadBalanced_LeavesBillUnassignedWithoutEarlierPayday(t *testing.T) {
	in := Input{
		Bills: []core.Bill{
			pending("early", core.NewDate(2025, 3, 20), 10),
			pending("fine", core.NewDate(2025, 4, 10), 10),
		},
		Paydays: []core.Payday{payday(2025, 4, 1)},
		Now:     time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
	}

	plan := NewLoadBalanced().Plan(in)

	require.Len(t, plan.Unassigned, 1)
	assert.Equal(t, "early", plan.Unassigned[0].Bill.ID)
	assert.Equal(t, ReasonNoEligiblePayday, plan.Unassigned[0].Reason)
	require.Len(t, plan.Assignments, 1)
	assert.Equal(t, "fine", plan.Assignments[0].Bill.ID)
	assert.Equal(t, 2, plan.BillCount())
}

func TestLoadBalanced_TodaysPaydayIsEligible(t *testing.T) {
	in := Input{
		Bills:   []core.Bill{pending("a", core.NewDate(2025, 4, 3), 10)},
		Paydays: []core.Payday{payday(2025, 4, 1)},
		Now:     time.Date(2025, 4, 1, 18, 0, 0, 0, time.UTC),
	}

	plan := NewLoadBalanced().Plan(in)

	require.Len(t, plan.Assignments, 1)
	assert.Equal(t, core.NewDate(2025, 4, 1), plan.Assignments[0].PaymentDate)
}

func TestLoadBalanced_SortsByDateThenPriority(t *testing.T) {
	risks := NewMonthRiskIndex([]core.MonthRisk{{Year: 2025, Month: 5, IsCritical: true}})
	in := Input{
		Bills: []core.Bill{
			pending("may-small", core.NewDate(2025, 5, 2), 10),
			pending("april-small", core.NewDate(2025, 4, 9), 10),
			pending("april-big", core.NewDate(2025, 4, 12), 2000),
			pending("may-big", core.NewDate(2025, 5, 3), 2000),
		},
		Paydays: []core.Payday{payday(2025, 5, 1), payday(2025, 4, 1)},
		Risks:   risks,
		Now:     time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC),
	}

	plan := NewLoadBalanced().Plan(in)

	var ids []string
	for _, a := range plan.Assignments {
		ids = append(ids, a.Bill.ID)
	}
	assert.Equal(t, []string{"april-big", "april-small", "may-big", "may-small"}, ids)

	// may-big: 32 days out, amount +3, critical May +2
	assert.Equal(t, 5, plan.Assignments[2].Priority)

	require.Len(t, plan.Buckets, 2)
	assert.Equal(t, core.NewDate(2025, 4, 1), plan.Buckets[0].Payday.Date)
	assert.True(t, plan.Buckets[0].Total.Equal(decimal.NewFromInt(2010)))
	assert.True(t, plan.Buckets[1].Total.Equal(decimal.NewFromInt(2010)))
}

func TestLoadBalanced_EveryBillAssignedOrUnassignedOnce(t *testing.T) {
	var bills []core.Bill
	for i := 0; i < 40; i++ {
		bills = append(bills, pending(fmt.Sprintf("b%02d", i), core.NewDate(2025, 3, 1).AddDays(i*2), 10))
	}
	in := Input{
		Bills:   bills,
		Paydays: []core.Payday{payday(2025, 3, 10), payday(2025, 3, 25), payday(2025, 4, 10), payday(2025, 4, 10)},
		Now:     time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
	}

	plan := NewLoadBalanced().Plan(in)

	seen := map[string]int{}
	for _, a := range plan.Assignments {
		seen[a.Bill.ID]++
	}
	for _, u := range plan.Unassigned {
		seen[u.Bill.ID]++
	}
	assert.Len(t, seen, len(bills))
	for id, n := range seen {
		assert.Equal(t, 1, n, id)
	}
}

func TestLoadBalanced_EmptyInputs(t *testing.T) {
	now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	noPaydays := NewLoadBalanced().Plan(Input{Bills: []core.Bill{pending("a", core.NewDate(2025, 4, 1), 1)}, Now: now})
	assert.True(t, noPaydays.IsEmpty())

	noBills := NewLoadBalanced().Plan(Input{Paydays: []core.Payday{payday(2025, 4, 1)}, Now: now})
	assert.True(t, noBills.IsEmpty())
}
