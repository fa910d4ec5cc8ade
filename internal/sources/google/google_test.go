package google

import (
	"context"
	"strings"
	"testing"

	"paydays/internal/core"
)

func TestColumnName(t *testing.T) {
	cases := map[int]string{0: "A", 6: "G", 25: "Z", 26: "AA", 27: "AB", 51: "AZ", 52: "BA", 701: "ZZ", 702: "AAA"}
	for idx, want := range cases {
		if got := columnName(idx); got != want {
			t.Fatalf("columnName(%d) = %s, want %s", idx, got, want)
		}
	}
}

func TestPriorityRanges(t *testing.T) {
	rows := [][]string{
		{"id", "title", "amount", "due_date", "status", "priority"},
		{"b1", "Rent", "800", "2025-04-01", "", ""},
		{"", "", "", "", "", ""},
		{"b3", "Phone", "40", "2025-04-18", "", "2"},
	}

	got, err := priorityRanges("Bills", rows, []core.PriorityUpdate{{BillID: "b3", Priority: 5}, {BillID: "b1", Priority: 8}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 ranges, got %d", len(got))
	}
	if got[0].Range != "Bills!F4" || got[0].Values[0][0] != 5 {
		t.Fatalf("unexpected first range: %s %v", got[0].Range, got[0].Values)
	}
	if got[1].Range != "Bills!F2" || got[1].Values[0][0] != 8 {
		t.Fatalf("unexpected second range: %s %v", got[1].Range, got[1].Values)
	}
}

func TestPriorityRangesErrors(t *testing.T) {
	noColumn := [][]string{{"id", "amount", "due_date"}, {"b1", "1", "2025-04-01"}}
	if _, err := priorityRanges("Bills", noColumn, []core.PriorityUpdate{{BillID: "b1"}}); err == nil || !strings.Contains(err.Error(), "no priority column") {
		t.Fatalf("expected missing column error, got %v", err)
	}

	rows := [][]string{{"id", "amount", "due_date", "priority"}, {"b1", "1", "2025-04-01", ""}}
	if _, err := priorityRanges("Bills", rows, []core.PriorityUpdate{{BillID: "zz"}}); err == nil {
		t.Fatalf("expected unknown bill error")
	}
	if _, err := priorityRanges("Bills", nil, []core.PriorityUpdate{{BillID: "b1"}}); err == nil {
		t.Fatalf("expected empty sheet error")
	}
}

func TestNewRequiresSpreadsheetID(t *testing.T) {
	if _, err := New(context.Background(), Options{}); err == nil {
		t.Fatalf("expected error without spreadsheet id")
	}
}

func TestReadRowsWithoutService(t *testing.T) {
	c := &Client{opts: Options{BillsSheet: "Bills"}}
	if _, err := c.ListBills(context.Background()); err == nil {
		t.Fatalf("expected error when service is not initialized")
	}
}
