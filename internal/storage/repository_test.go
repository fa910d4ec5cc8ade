package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"paydays/internal/core"
	"paydays/internal/scheduler"

	"github.com/shopspring/decimal"
)

func newTestRepository(t *testing.T) *Repository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "nested", "paydays.db"))
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestRepositoryBillsRoundTrip(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	bills := []core.Bill{
		{ID: "b2", Title: "Phone", Amount: decimal.RequireFromString("39.90"), DueDate: core.NewDate(2025, 4, 18), Status: core.StatusPending},
		{ID: "b1", Title: "Rent", Amount: decimal.NewFromInt(800), DueDate: core.NewDate(2025, 4, 1), BasePriority: 2, Status: core.StatusSettled},
	}
	if err := repo.UpsertBills(ctx, bills); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	got, err := repo.ListBills(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 || got[0].ID != "b1" || got[1].ID != "b2" {
		t.Fatalf("expected bills ordered by due date, got %+v", got)
	}
	if !got[1].Amount.Equal(decimal.RequireFromString("39.9")) || got[0].BasePriority != 2 || got[0].Status != core.StatusSettled {
		t.Fatalf("unexpected values: %+v", got)
	}

	// Upsert replaces fields but keeps the written-back priority.
	if err := repo.UpdatePriorities(ctx, []core.PriorityUpdate{{BillID: "b2", Priority: 6}}); err != nil {
		t.Fatalf("update priorities: %v", err)
	}
	bills[0].Title = "Mobile"
	if err := repo.UpsertBills(ctx, bills[:1]); err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	got, _ = repo.ListBills(ctx)
	if got[1].Title != "Mobile" || got[1].Priority != 6 {
		t.Fatalf("unexpected bill after upsert: %+v", got[1])
	}
}

func TestRepositoryUpdatePrioritiesIsAtomic(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	if err := repo.UpsertBills(ctx, []core.Bill{{ID: "b1", Amount: decimal.NewFromInt(1), DueDate: core.NewDate(2025, 4, 1), Status: core.StatusPending}}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	err := repo.UpdatePriorities(ctx, []core.PriorityUpdate{{BillID: "b1", Priority: 4}, {BillID: "missing", Priority: 1}})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	got, _ := repo.ListBills(ctx)
	if got[0].Priority != 0 {
		t.Fatalf("partial update applied: %+v", got[0])
	}
}

func TestRepositoryPaydaysAndRisks(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	paydays := []core.Payday{
		{Date: core.NewDate(2025, 4, 15)},
		{Date: core.NewDate(2025, 4, 1), Label: "salary"},
		{Date: core.NewDate(2025, 4, 1), Label: "salary"},
	}
	if err := repo.ReplacePaydays(ctx, paydays); err != nil {
		t.Fatalf("replace paydays: %v", err)
	}
	got, err := repo.ListPaydays(ctx)
	if err != nil {
		t.Fatalf("list paydays: %v", err)
	}
	if len(got) != 3 || got[0].Date != core.NewDate(2025, 4, 15) || got[1].Label != "salary" {
		t.Fatalf("expected paydays in stored order with duplicates, got %+v", got)
	}
	if err := repo.ReplacePaydays(ctx, paydays[:1]); err != nil {
		t.Fatalf("replace paydays: %v", err)
	}
	if got, _ = repo.ListPaydays(ctx); len(got) != 1 {
		t.Fatalf("expected replaced list, got %+v", got)
	}

	risks := []core.MonthRisk{
		{Year: 2025, Month: 12, IsCritical: true, Note: "gifts"},
		{Year: 2025, Month: 12, IsLowIncome: true},
		{Year: 2025, Month: 8, IsLowIncome: true},
	}
	if err := repo.UpsertMonthRisks(ctx, risks); err != nil {
		t.Fatalf("upsert risks: %v", err)
	}
	gotRisks, err := repo.ListMonthRisks(ctx)
	if err != nil {
		t.Fatalf("list risks: %v", err)
	}
	if len(gotRisks) != 2 {
		t.Fatalf("expected 2 risks, got %+v", gotRisks)
	}
	if gotRisks[0].Month != 8 || !gotRisks[0].IsLowIncome || gotRisks[0].IsCritical {
		t.Fatalf("unexpected august: %+v", gotRisks[0])
	}
	if !gotRisks[1].IsCritical || gotRisks[1].IsLowIncome || gotRisks[1].Note != "gifts" {
		t.Fatalf("first december record should win: %+v", gotRisks[1])
	}
}

func TestRepositoryRuns(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	if _, err := repo.LatestRun(ctx); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on empty database, got %v", err)
	}

	plan := scheduler.Plan{
		Strategy: scheduler.BalancedStrategy,
		Today:    core.NewDate(2025, 3, 30),
		Assignments: []scheduler.PaymentAssignment{
			{Bill: core.Bill{ID: "b1", Amount: decimal.NewFromInt(100)}, PaymentDate: core.NewDate(2025, 4, 1), Priority: 3, Deflected: true},
		},
		Buckets: []scheduler.PaydayBucket{
			{Payday: core.Payday{Date: core.NewDate(2025, 4, 1)}, Total: decimal.NewFromInt(100)},
		},
		Unassigned: []scheduler.UnassignedBill{
			{Bill: core.Bill{ID: "b2"}, Priority: 1, Reason: scheduler.ReasonNoEligiblePayday},
		},
	}
	created := time.Date(2025, 3, 30, 6, 0, 0, 0, time.UTC)
	if err := repo.SaveRun(ctx, RunFromPlan("run-1", plan, created)); err != nil {
		t.Fatalf("save run: %v", err)
	}
	if err := repo.SaveRun(ctx, RunFromPlan("run-0", scheduler.Plan{Strategy: scheduler.PeriodStrategy, Today: core.NewDate(2025, 3, 29)}, created.Add(-time.Hour))); err != nil {
		t.Fatalf("save older run: %v", err)
	}

	run, err := repo.LatestRun(ctx)
	if err != nil {
		t.Fatalf("latest run: %v", err)
	}
	if run.ID != "run-1" || run.Strategy != scheduler.BalancedStrategy || run.Assigned != 1 || run.Unassigned != 1 {
		t.Fatalf("unexpected run: %+v", run)
	}
	if !run.Total.Equal(decimal.NewFromInt(100)) || !run.CreatedAt.Equal(created) {
		t.Fatalf("unexpected totals/time: %+v", run)
	}
	if len(run.Entries) != 2 {
		t.Fatalf("expected 2 entries, got %+v", run.Entries)
	}
	if !run.Entries[0].Deflected || run.Entries[0].PaymentDate != core.NewDate(2025, 4, 1) {
		t.Fatalf("unexpected first entry: %+v", run.Entries[0])
	}
	if !run.Entries[1].PaymentDate.IsZero() || run.Entries[1].Reason != scheduler.ReasonNoEligiblePayday {
		t.Fatalf("unexpected unassigned entry: %+v", run.Entries[1])
	}
}

func TestRepositoryLatestRunWithinOneSecond(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	base := time.Date(2025, 3, 30, 10, 0, 0, 0, time.UTC)
	plan := scheduler.Plan{Strategy: scheduler.PeriodStrategy, Today: core.NewDate(2025, 3, 30)}
	if err := repo.SaveRun(ctx, RunFromPlan("first", plan, base)); err != nil {
		t.Fatalf("save first run: %v", err)
	}
	if err := repo.SaveRun(ctx, RunFromPlan("second", plan, base.Add(500*time.Millisecond))); err != nil {
		t.Fatalf("save second run: %v", err)
	}

	run, err := repo.LatestRun(ctx)
	if err != nil {
		t.Fatalf("latest run: %v", err)
	}
	if run.ID != "second" {
		t.Fatalf("expected the later run, got %s", run.ID)
	}
	if !run.CreatedAt.Equal(base.Add(500 * time.Millisecond)) {
		t.Fatalf("created_at did not round-trip: %v", run.CreatedAt)
	}
}

func TestParseDialect(t *testing.T) {
	if d, err := ParseDialect("postgres"); err != nil || d != Postgres {
		t.Fatalf("unexpected %v %v", d, err)
	}
	if _, err := ParseDialect("mysql"); err == nil {
		t.Fatalf("expected error")
	}
}
