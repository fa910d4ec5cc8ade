package scheduler

import (
	"errors"
	"sync"
	"testing"
	"time"

	"paydays/internal/core"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var engineNow = time.Date(2025, 3, 30, 12, 0, 0, 0, time.UTC)

func engineBills() []core.Bill {
	negative := pending("broken", core.NewDate(2025, 4, 3), 0)
	negative.Amount = decimal.NewFromInt(-20)
	settled := pending("paid", core.NewDate(2025, 4, 3), 900)
	settled.Status = core.StatusSettled
	return []core.Bill{
		pending("rent", core.NewDate(2025, 4, 1), 1200),
		negative,
		settled,
		pending("phone", core.NewDate(2025, 4, 18), 40),
	}
}

func newTestEngine(t *testing.T, policy InvalidBillPolicy) *Engine {
	t.Helper()
	opts := DefaultOptions()
	opts.InvalidBills = policy
	e, err := NewEngine(opts)
	require.NoError(t, err)
	return e
}

func TestEngine_PlanSkipsInvalidBills(t *testing.T) {
	e := newTestEngine(t, SkipInvalid)
	paydays := []core.Payday{payday(2025, 4, 1), payday(2025, 4, 15)}

	for _, name := range []StrategyName{PeriodStrategy, BalancedStrategy} {
		t.Run(string(name), func(t *testing.T) {
			plan, err := e.Plan(name, engineBills(), paydays, nil, engineNow)
			require.NoError(t, err)

			require.Len(t, plan.Rejected, 1)
			assert.Equal(t, "broken", plan.Rejected[0].Bill.ID)
			assert.ErrorIs(t, plan.Rejected[0].Err, core.ErrNegativeAmount)

			ids := map[string]bool{}
			for _, a := range plan.Assignments {
				ids[a.Bill.ID] = true
			}
			assert.Equal(t, map[string]bool{"rent": true, "phone": true}, ids)
		})
	}
}

func TestEngine_PlanRejectsWholeBatch(t *testing.T) {
	e := newTestEngine(t, RejectBatch)

	_, err := e.Plan(PeriodStrategy, engineBills(), []core.Payday{payday(2025, 4, 1)}, nil, engineNow)

	var invalid *InvalidBillError
	require.True(t, errors.As(err, &invalid))
	assert.Equal(t, "broken", invalid.BillID)
	assert.ErrorIs(t, err, core.ErrNegativeAmount)
}

func TestEngine_StrategiesDisagreeOnFallback(t *testing.T) {
	e := newTestEngine(t, SkipInvalid)
	bills := []core.Bill{pending("early", core.NewDate(2025, 3, 31), 10)}
	paydays := []core.Payday{payday(2025, 4, 1)}

	period, err := e.Plan(PeriodStrategy, bills, paydays, nil, engineNow)
	require.NoError(t, err)
	require.Len(t, period.Assignments, 1)
	assert.Equal(t, core.NewDate(2025, 4, 1), period.Assignments[0].PaymentDate)

	balanced, err := e.Plan(BalancedStrategy, bills, paydays, nil, engineNow)
	require.NoError(t, err)
	assert.Empty(t, balanced.Assignments)
	require.Len(t, balanced.Unassigned, 1)
	assert.Equal(t, ReasonNoEligiblePayday, balanced.Unassigned[0].Reason)
}

func TestEngine_PlanDoesNotMutateInput(t *testing.T) {
	e := newTestEngine(t, SkipInvalid)
	bills := []core.Bill{
		pending("b", core.NewDate(2025, 4, 20), 10),
		pending("a", core.NewDate(2025, 4, 2), 10),
	}
	paydays := []core.Payday{payday(2025, 4, 15), payday(2025, 4, 1)}

	_, err := e.Plan(BalancedStrategy, bills, paydays, nil, engineNow)
	require.NoError(t, err)

	assert.Equal(t, "b", bills[0].ID)
	assert.Equal(t, 0, bills[0].BasePriority)
	assert.Equal(t, core.NewDate(2025, 4, 15), paydays[0].Date)
}

func TestEngine_PlanUsesConfiguredLoadThreshold(t *testing.T) {
	opts := DefaultOptions()
	opts.LoadThreshold = 1
	e, err := NewEngine(opts)
	require.NoError(t, err)

	bills := []core.Bill{
		pending("one", core.NewDate(2025, 4, 20), 10),
		pending("two", core.NewDate(2025, 4, 20), 10),
		pending("three", core.NewDate(2025, 4, 20), 10),
	}
	paydays := []core.Payday{payday(2025, 4, 1), payday(2025, 4, 15)}

	plan, err := e.Plan(BalancedStrategy, bills, paydays, nil, engineNow)
	require.NoError(t, err)

	dates := paymentDates(plan)
	assert.Equal(t, core.NewDate(2025, 4, 15), dates["one"])
	// Load 1 is not above the threshold yet.
	assert.Equal(t, core.NewDate(2025, 4, 15), dates["two"])
	// Load 2 > 1 and the earlier payday has 0 < 2-1.
	assert.Equal(t, core.NewDate(2025, 4, 1), dates["three"])
}

func TestNewEngine_ZeroOptionsUseDefaults(t *testing.T) {
	e, err := NewEngine(Options{})
	require.NoError(t, err)

	paydays := []core.Payday{payday(2025, 4, 1), payday(2025, 4, 15)}
	for n := 1; n <= DefaultLoadThreshold+1; n++ {
		bills := make([]core.Bill, n)
		for i := range bills {
			bills[i] = pending(string(rune('a'+i)), core.NewDate(2025, 4, 20), 10)
		}

		plan, err := e.Plan(BalancedStrategy, bills, paydays, nil, engineNow)
		require.NoError(t, err)

		for _, a := range plan.Assignments {
			assert.False(t, a.Deflected, "%d bills: %s deflected", n, a.Bill.ID)
			assert.Equal(t, core.NewDate(2025, 4, 15), a.PaymentDate)
		}
	}

	// The seventh bill finds the later payday at load 6 > 5.
	bills := make([]core.Bill, DefaultLoadThreshold+2)
	for i := range bills {
		bills[i] = pending(string(rune('a'+i)), core.NewDate(2025, 4, 20), 10)
	}
	plan, err := e.Plan(BalancedStrategy, bills, paydays, nil, engineNow)
	require.NoError(t, err)
	assert.Equal(t, core.NewDate(2025, 4, 1), paymentDates(plan)["g"])
}

func TestEngine_PlanRejectsInvalidPayday(t *testing.T) {
	e := newTestEngine(t, SkipInvalid)

	_, err := e.Plan(PeriodStrategy, nil, []core.Payday{{}}, nil, engineNow)

	assert.Error(t, err)
}

func TestEngine_UnknownStrategy(t *testing.T) {
	e := newTestEngine(t, SkipInvalid)

	_, err := e.Plan("greedy", nil, nil, nil, engineNow)

	assert.ErrorIs(t, err, ErrUnknownStrategy)
}

func TestStrategyRegistry(t *testing.T) {
	assert.Equal(t, []StrategyName{BalancedStrategy, PeriodStrategy}, StrategyNames())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for _, name := range []StrategyName{PeriodStrategy, BalancedStrategy} {
				s, err := GetStrategy(name)
				if assert.NoError(t, err) {
					assert.Equal(t, name, s.Name())
				}
			}
		}()
	}
	wg.Wait()

	_, err := GetStrategy("greedy")
	assert.ErrorIs(t, err, ErrUnknownStrategy)
}

func TestEngine_EmptyInputs(t *testing.T) {
	e := newTestEngine(t, SkipInvalid)

	for _, name := range StrategyNames() {
		plan, err := e.Plan(name, nil, []core.Payday{payday(2025, 4, 1)}, nil, engineNow)
		require.NoError(t, err)
		assert.True(t, plan.IsEmpty(), name)

		plan, err = e.Plan(name, engineBills(), nil, nil, engineNow)
		require.NoError(t, err)
		assert.True(t, plan.IsEmpty(), name)
	}
}

func TestEngine_RankUsesStrategyWeighting(t *testing.T) {
	e := newTestEngine(t, SkipInvalid)
	risks := []core.MonthRisk{{Year: 2025, Month: 4, IsLowIncome: true}}
	bills := []core.Bill{
		pending("later", core.NewDate(2025, 4, 20), 40),
		pending("soon", core.NewDate(2025, 3, 31), 1500),
	}

	standard, rejected, err := e.Rank(PeriodStrategy, bills, risks, engineNow)
	require.NoError(t, err)
	assert.Empty(t, rejected)
	require.Len(t, standard, 2)
	assert.Equal(t, "soon", standard[0].Bill.ID)
	// soon: 1 day +5, amount +3; March has no risk record.
	assert.Equal(t, 8, standard[0].Priority)
	// later: 21 days, small amount, low-income April +2.
	assert.Equal(t, 2, standard[1].Priority)
	assert.Nil(t, standard[1].PaymentDate)
	assert.NotEmpty(t, standard[0].Notes)

	balanced, _, err := e.Rank(BalancedStrategy, bills, risks, engineNow)
	require.NoError(t, err)
	// soon: 1 day +3, amount +3.
	assert.Equal(t, 6, balanced[0].Priority)
	// later: low-income April counts as critical, +2.
	assert.Equal(t, 2, balanced[1].Priority)

	updates := PriorityUpdates(standard)
	assert.Equal(t, []core.PriorityUpdate{{BillID: "soon", Priority: 8}, {BillID: "later", Priority: 2}}, updates)
	assert.Equal(t, 0, bills[1].BasePriority, "ranking must not write back onto the input")
}

func TestEngine_RankStableOnTies(t *testing.T) {
	e := newTestEngine(t, SkipInvalid)
	bills := []core.Bill{
		pending("first", core.NewDate(2025, 6, 1), 10),
		pending("second", core.NewDate(2025, 6, 2), 10),
		pending("third", core.NewDate(2025, 6, 3), 10),
	}

	ranked, _, err := e.Rank(PeriodStrategy, bills, nil, engineNow)
	require.NoError(t, err)

	var ids []string
	for _, r := range ranked {
		ids = append(ids, r.Bill.ID)
	}
	assert.Equal(t, []string{"first", "second", "third"}, ids)
}

func TestNewEngine_InvalidOptions(t *testing.T) {
	_, err := NewEngine(Options{InvalidBills: "ignore"})
	assert.Error(t, err)

	_, err = NewEngine(Options{LoadThreshold: -1})
	assert.Error(t, err)
}

func TestParseStrategyName(t *testing.T) {
	tests := []struct {
		in      string
		want    StrategyName
		wantErr bool
	}{
		{"period", PeriodStrategy, false},
		{" Balanced ", BalancedStrategy, false},
		{"a", PeriodStrategy, false},
		{"B", BalancedStrategy, false},
		{"random", "", true},
	}
	for _, tt := range tests {
		got, err := ParseStrategyName(tt.in)
		if tt.wantErr {
			assert.ErrorIs(t, err, ErrUnknownStrategy, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
}
