package sources

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"paydays/internal/core"

	"github.com/google/uuid"
)

// Column headers understood by the tabular parsers. Matching is
// case-insensitive and column order is free.
var (
	BillHeaders      = []string{"id", "title", "amount", "due_date", "base_priority", "status", "priority"}
	PaydayHeaders    = []string{"date", "label"}
	MonthRiskHeaders = []string{"year", "month", "critical", "low_income", "note"}
)

// ErrDuplicateBillID marks a row whose id, given or derived, was already used
// by an earlier row.
var ErrDuplicateBillID = errors.New("duplicate bill id")

var billIDNamespace = uuid.MustParse("6f1c3f2e-8a55-4b8e-9d0f-1d3a3b7c9e21")

// RowError points at a data row that could not be parsed. Row is 1-based and
// counts the header row.
type RowError struct {
	Row int
	Err error
}

func (e RowError) Error() string {
	return fmt.Sprintf("row %d: %v", e.Row, e.Err)
}

func (e RowError) Unwrap() error { return e.Err }

// StableBillID derives an identifier for bills that come without one, so the
// same row keeps its id across reloads.
func StableBillID(title string, due core.Date, amount string) string {
	key := strings.ToLower(strings.TrimSpace(title)) + "|" + due.String() + "|" + strings.TrimSpace(amount)
	return uuid.NewSHA1(billIDNamespace, []byte(key)).String()
}

// ParseBills converts a header row plus data rows into bills. Rows that cannot
// be parsed are skipped and reported. Negative amounts are kept so the engine
// can reject them explicitly.
func ParseBills(rows [][]string) ([]core.Bill, []RowError, error) {
	if len(rows) == 0 {
		return nil, nil, nil
	}
	headers := rows[0]
	col := map[string]int{}
	for _, h := range BillHeaders {
		col[h] = indexOf(headers, h)
	}
	if col["amount"] == -1 || col["due_date"] == -1 {
		return nil, nil, fmt.Errorf("unexpected bills header: need amount and due_date; got headers=%v", headers)
	}

	var bills []core.Bill
	var problems []RowError
	seen := map[string]int{}
	for i := 1; i < len(rows); i++ {
		row := rows[i]
		if blank(row) {
			continue
		}
		b, err := parseBill(row, col)
		if err != nil {
			problems = append(problems, RowError{Row: i + 1, Err: err})
			continue
		}
		if first, ok := seen[b.ID]; ok {
			problems = append(problems, RowError{
				Row: i + 1,
				Err: fmt.Errorf("%w %s, first used on row %d", ErrDuplicateBillID, b.ID, first),
			})
			continue
		}
		seen[b.ID] = i + 1
		bills = append(bills, b)
	}
	return bills, problems, nil
}

func parseBill(row []string, col map[string]int) (core.Bill, error) {
	amountText := safeGet(row, col["amount"])
	amount, err := core.ParseAmount(amountText)
	if err != nil {
		return core.Bill{}, err
	}
	due, err := core.ParseDate(safeGet(row, col["due_date"]))
	if err != nil {
		return core.Bill{}, err
	}
	status, err := core.ParseStatus(safeGet(row, col["status"]))
	if err != nil {
		return core.Bill{}, err
	}
	base, err := parseInt(safeGet(row, col["base_priority"]))
	if err != nil {
		return core.Bill{}, fmt.Errorf("base_priority: %w", err)
	}
	priority, err := parseInt(safeGet(row, col["priority"]))
	if err != nil {
		return core.Bill{}, fmt.Errorf("priority: %w", err)
	}

	title := safeGet(row, col["title"])
	id := safeGet(row, col["id"])
	if id == "" {
		id = StableBillID(title, due, amountText)
	}
	return core.Bill{
		ID:           id,
		Title:        title,
		Amount:       amount,
		DueDate:      due,
		BasePriority: base,
		Status:       status,
		Priority:     priority,
	}, nil
}

// ParsePaydays converts rows with a date column (and optional label) into
// paydays. A header row is required.
func ParsePaydays(rows [][]string) ([]core.Payday, []RowError, error) {
	if len(rows) == 0 {
		return nil, nil, nil
	}
	colDate := indexOf(rows[0], "date")
	colLabel := indexOf(rows[0], "label")
	if colDate == -1 {
		return nil, nil, fmt.Errorf("unexpected paydays header: need date; got headers=%v", rows[0])
	}
	var out []core.Payday
	var problems []RowError
	for i := 1; i < len(rows); i++ {
		if blank(rows[i]) {
			continue
		}
		d, err := core.ParseDate(safeGet(rows[i], colDate))
		if err != nil {
			problems = append(problems, RowError{Row: i + 1, Err: err})
			continue
		}
		out = append(out, core.Payday{Date: d, Label: safeGet(rows[i], colLabel)})
	}
	return out, problems, nil
}

// ParseMonthRisks converts rows into month risk records.
func ParseMonthRisks(rows [][]string) ([]core.MonthRisk, []RowError, error) {
	if len(rows) == 0 {
		return nil, nil, nil
	}
	col := map[string]int{}
	for _, h := range MonthRiskHeaders {
		col[h] = indexOf(rows[0], h)
	}
	if col["year"] == -1 || col["month"] == -1 {
		return nil, nil, fmt.Errorf("unexpected month risks header: need year and month; got headers=%v", rows[0])
	}
	var out []core.MonthRisk
	var problems []RowError
	for i := 1; i < len(rows); i++ {
		row := rows[i]
		if blank(row) {
			continue
		}
		r, err := parseMonthRisk(row, col)
		if err != nil {
			problems = append(problems, RowError{Row: i + 1, Err: err})
			continue
		}
		out = append(out, r)
	}
	return out, problems, nil
}

func parseMonthRisk(row []string, col map[string]int) (core.MonthRisk, error) {
	year, err := strconv.Atoi(safeGet(row, col["year"]))
	if err != nil {
		return core.MonthRisk{}, fmt.Errorf("year: %w", err)
	}
	month, err := strconv.Atoi(safeGet(row, col["month"]))
	if err != nil {
		return core.MonthRisk{}, fmt.Errorf("month: %w", err)
	}
	critical, err := parseFlag(safeGet(row, col["critical"]))
	if err != nil {
		return core.MonthRisk{}, fmt.Errorf("critical: %w", err)
	}
	lowIncome, err := parseFlag(safeGet(row, col["low_income"]))
	if err != nil {
		return core.MonthRisk{}, fmt.Errorf("low_income: %w", err)
	}
	r := core.MonthRisk{
		Year:        year,
		Month:       month,
		IsCritical:  critical,
		IsLowIncome: lowIncome,
		Note:        safeGet(row, col["note"]),
	}
	if err := r.Validate(); err != nil {
		return core.MonthRisk{}, err
	}
	return r, nil
}

// BillRow renders a bill in BillHeaders order.
func BillRow(b core.Bill) []string {
	return []string{
		b.ID,
		b.Title,
		b.Amount.String(),
		b.DueDate.String(),
		strconv.Itoa(b.BasePriority),
		string(b.Status),
		strconv.Itoa(b.Priority),
	}
}

func parseInt(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}

func parseFlag(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "", "0", "no", "n", "false":
		return false, nil
	case "1", "yes", "y", "x", "true":
		return true, nil
	default:
		return false, fmt.Errorf("not a flag: %q", s)
	}
}

// ToStrings flattens a row of spreadsheet cells into trimmed strings.
func ToStrings(in []interface{}) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = strings.TrimSpace(fmt.Sprint(v))
	}
	return out
}

func blank(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// IndexOf finds a header case-insensitively, or returns -1.
func IndexOf(headers []string, target string) int {
	return indexOf(headers, target)
}

func indexOf(arr []string, target string) int {
	for i, v := range arr {
		if strings.EqualFold(strings.TrimSpace(v), strings.TrimSpace(target)) {
			return i
		}
	}
	return -1
}

func safeGet(arr []string, idx int) string {
	if idx < 0 || idx >= len(arr) {
		return ""
	}
	return strings.TrimSpace(arr[idx])
}
