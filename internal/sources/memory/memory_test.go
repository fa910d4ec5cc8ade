package memory

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"paydays/internal/core"

	"github.com/shopspring/decimal"
)

func TestMemoryStoreListAndUpdate(t *testing.T) {
	s := New(
		[]core.Bill{{ID: "b1", Amount: decimal.NewFromInt(10), DueDate: core.NewDate(2025, 4, 1), Status: core.StatusPending}},
		[]core.Payday{{Date: core.NewDate(2025, 4, 1)}},
		nil,
	)
	ctx := context.Background()

	if err := s.UpdatePriorities(ctx, []core.PriorityUpdate{{BillID: "b1", Priority: 9}}); err != nil {
		t.Fatalf("unexpected update error: %v", err)
	}
	bills, err := s.ListBills(ctx)
	if err != nil || len(bills) != 1 || bills[0].Priority != 9 {
		t.Fatalf("unexpected bills: %+v err=%v", bills, err)
	}

	// Callers get copies.
	bills[0].Priority = 100
	again, _ := s.ListBills(ctx)
	if again[0].Priority != 9 {
		t.Fatalf("store leaked its slice")
	}

	if err := s.UpdatePriorities(ctx, []core.PriorityUpdate{{BillID: "b1", Priority: 1}, {BillID: "nope", Priority: 1}}); err == nil {
		t.Fatalf("expected error for unknown bill")
	}
	again, _ = s.ListBills(ctx)
	if again[0].Priority != 9 {
		t.Fatalf("failed update must not apply partially")
	}
}

func TestNewFromFilesSeeds(t *testing.T) {
	dir := t.TempDir()
	// No files -> empty store
	s, err := NewFromFiles(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	bills, _ := s.ListBills(context.Background())
	if len(bills) != 0 {
		t.Fatalf("expected empty store when files missing")
	}

	mustWrite := func(name, content string) {
		t.Helper()
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	mustWrite(BillsFile, "# bills\nid,title,amount,due_date,status\nb1,Rent,800,2025-04-01,\nb2,Broken,abc,2025-04-02,\n")
	mustWrite(PaydaysFile, "date,label\n2025-04-01,salary\n2025-04-15,\n")
	mustWrite(MonthRisksFile, "year,month,critical,low_income,note\n2025,12,yes,,gifts\n")

	s, err = NewFromFiles(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ctx := context.Background()
	bills, _ = s.ListBills(ctx)
	paydays, _ := s.ListPaydays(ctx)
	risks, _ := s.ListMonthRisks(ctx)
	if len(bills) != 1 || bills[0].ID != "b1" {
		t.Fatalf("unexpected bills: %+v", bills)
	}
	if len(paydays) != 2 || paydays[0].Label != "salary" {
		t.Fatalf("unexpected paydays: %+v", paydays)
	}
	if len(risks) != 1 || !risks[0].IsCritical || risks[0].Note != "gifts" {
		t.Fatalf("unexpected risks: %+v", risks)
	}
}

func TestNewFromFilesBadHeader(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, BillsFile), []byte("name,cost\nrent,800\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewFromFiles(dir); err == nil {
		t.Fatalf("expected header error")
	}
}
