package sources

import (
	"errors"
	"testing"

	"paydays/internal/core"

	"github.com/shopspring/decimal"
)

func TestParseBills(t *testing.T) {
	rows := [][]string{
		{"ID", "Title", "Amount", "Due_Date", "Status", "Base_Priority"},
		{"b1", "Rent", "800,50", "2025-04-01", "", "2"},
		{"", "Phone", "40", "2025-04-18", "paid", ""},
		{"b3", "Broken date", "10", "18/04/2025", "", ""},
		{"b4", "Refund", "-20", "2025-04-20", "pending", ""},
		{"", "", "", "", "", ""},
		{"b5", "Bad amount", "ten", "2025-04-20", "", ""},
	}

	bills, problems, err := ParseBills(rows)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(bills) != 3 {
		t.Fatalf("expected 3 bills, got %d: %+v", len(bills), bills)
	}
	if len(problems) != 2 || problems[0].Row != 4 || problems[1].Row != 7 {
		t.Fatalf("unexpected problems: %v", problems)
	}
	if !errors.Is(problems[0], core.ErrInvalidDate) {
		t.Fatalf("expected ErrInvalidDate, got %v", problems[0])
	}

	rent := bills[0]
	if rent.ID != "b1" || !rent.Amount.Equal(decimal.RequireFromString("800.50")) || rent.BasePriority != 2 || rent.Status != core.StatusPending {
		t.Fatalf("unexpected rent bill: %+v", rent)
	}
	phone := bills[1]
	if phone.ID == "" || phone.Status != core.StatusSettled {
		t.Fatalf("expected generated id and settled status: %+v", phone)
	}
	if !bills[2].Amount.IsNegative() {
		t.Fatalf("negative amounts must survive parsing for the engine to reject")
	}
}

func TestParseBillsMissingColumns(t *testing.T) {
	_, _, err := ParseBills([][]string{{"id", "title"}})
	if err == nil {
		t.Fatalf("expected header error")
	}
}

func TestStableBillID(t *testing.T) {
	due := core.NewDate(2025, 4, 1)
	a := StableBillID("Rent", due, "800")
	b := StableBillID(" rent ", due, "800")
	c := StableBillID("Rent", due, "801")
	if a != b {
		t.Fatalf("expected same id for same row, got %s vs %s", a, b)
	}
	if a == c {
		t.Fatalf("expected different ids for different amounts")
	}
}

func TestParseBillsDuplicateIDs(t *testing.T) {
	rows := [][]string{
		{"id", "title", "amount", "due_date"},
		{"", "Gym", "30", "2025-04-10"},
		{"", "gym", "30", "2025-04-10"},
		{"b1", "Rent", "800", "2025-04-01"},
		{"b1", "Rent again", "800", "2025-05-01"},
		{"", "Gym", "30", "2025-05-10"},
	}

	bills, problems, err := ParseBills(rows)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(bills) != 3 {
		t.Fatalf("expected 3 bills, got %d: %+v", len(bills), bills)
	}
	if len(problems) != 2 || problems[0].Row != 3 || problems[1].Row != 5 {
		t.Fatalf("unexpected problems: %v", problems)
	}
	for _, p := range problems {
		if !errors.Is(p, ErrDuplicateBillID) {
			t.Fatalf("expected ErrDuplicateBillID, got %v", p)
		}
	}
}

func TestParsePaydays(t *testing.T) {
	rows := [][]string{
		{"date", "label"},
		{"2025-04-01", "salary"},
		{"2025-04-15"},
		{"tomorrow", ""},
	}
	paydays, problems, err := ParsePaydays(rows)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(paydays) != 2 || paydays[0].Label != "salary" || paydays[1].Date != core.NewDate(2025, 4, 15) {
		t.Fatalf("unexpected paydays: %+v", paydays)
	}
	if len(problems) != 1 || problems[0].Row != 4 {
		t.Fatalf("unexpected problems: %v", problems)
	}
}

func TestParseMonthRisks(t *testing.T) {
	rows := [][]string{
		{"year", "month", "critical", "low_income", "note"},
		{"2025", "12", "x", "", "christmas"},
		{"2025", "8", "no", "yes", ""},
		{"2025", "13", "", "", ""},
		{"2025", "1", "maybe", "", ""},
	}
	risks, problems, err := ParseMonthRisks(rows)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(risks) != 2 {
		t.Fatalf("expected 2 risks, got %+v", risks)
	}
	if !risks[0].IsCritical || risks[0].IsLowIncome || risks[0].Note != "christmas" {
		t.Fatalf("unexpected december: %+v", risks[0])
	}
	if risks[1].IsCritical || !risks[1].IsLowIncome {
		t.Fatalf("unexpected august: %+v", risks[1])
	}
	if len(problems) != 2 {
		t.Fatalf("expected 2 problems, got %v", problems)
	}
}

func TestBillRowRoundTripsThroughParseBills(t *testing.T) {
	in := core.Bill{
		ID:           "b1",
		Title:        "Insurance",
		Amount:       decimal.RequireFromString("312.40"),
		DueDate:      core.NewDate(2025, 6, 30),
		BasePriority: 1,
		Status:       core.StatusPending,
		Priority:     7,
	}
	bills, problems, err := ParseBills([][]string{BillHeaders, BillRow(in)})
	if err != nil || len(problems) != 0 || len(bills) != 1 {
		t.Fatalf("unexpected parse: bills=%v problems=%v err=%v", bills, problems, err)
	}
	got := bills[0]
	if got.ID != in.ID || !got.Amount.Equal(in.Amount) || got.DueDate != in.DueDate || got.Priority != 7 || got.BasePriority != 1 {
		t.Fatalf("round trip mismatch: %+v", got)
	}
}
