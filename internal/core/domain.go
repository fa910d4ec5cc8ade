package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	StatusPending BillStatus = "pending"
	StatusSettled BillStatus = "settled"
)

// DateLayout is the wire and storage form of a Date.
const DateLayout = "2006-01-02"

type (
	BillStatus string

	// Date is a calendar day. The embedded time is always midnight UTC so
	// values compare with == and work as map keys.
	Date struct {
		time.Time
	}

	Bill struct {
		ID           string          `json:"id"`
		Title        string          `json:"title"`
		Amount       decimal.Decimal `json:"amount"`
		DueDate      Date            `json:"due_date"`
		BasePriority int             `json:"base_priority"` // caller-assigned, >= 0
		Status       BillStatus      `json:"status"`
		// Priority is the score last written back by a ranking pass. Scoring
		// never reads it.
		Priority int `json:"priority"`
	}

	Payday struct {
		Date  Date   `json:"date"`
		Label string `json:"label,omitempty"` // optional, e.g. "salary"
	}

	MonthRisk struct {
		Year        int    `json:"year"`
		Month       int    `json:"month"` // 1-12
		IsCritical  bool   `json:"is_critical"`
		IsLowIncome bool   `json:"is_low_income"`
		Note        string `json:"note,omitempty"`
	}

	// PriorityUpdate is the write-back produced by a ranking pass.
	PriorityUpdate struct {
		BillID   string `json:"bill_id"`
		Priority int    `json:"priority"`
	}
)

var (
	ErrInvalidDay           = errors.New("invalid day")
	ErrInvalidMonth         = errors.New("invalid month")
	ErrInvalidDate          = errors.New("invalid date")
	ErrInvalidAmount        = errors.New("invalid amount")
	ErrNegativeAmount       = errors.New("negative amount")
	ErrMissingID            = errors.New("missing bill id")
	ErrMissingDueDate       = errors.New("missing due date")
	ErrNegativeBasePriority = errors.New("negative base priority")
	ErrInvalidStatus        = errors.New("invalid bill status")
)

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf strips the time of day from t, keeping the calendar day as seen in
// t's own location.
func DateOf(t time.Time) Date {
	if t.IsZero() {
		return Date{}
	}
	y, m, d := t.Date()
	return NewDate(y, int(m), d)
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return DateOf(t), nil
}

func (d Date) Validate() error {
	if d.IsZero() {
		return errors.New("date cannot be zero")
	}
	_, month, day := d.Date()
	if day < 1 || day > 31 {
		return ErrInvalidDay
	}
	if month < 1 || month > 12 {
		return ErrInvalidMonth
	}
	return nil
}

// Day returns the day of the month
func (d Date) Day() int {
	return d.Time.Day()
}

// Month returns the month
func (d Date) Month() int {
	return int(d.Time.Month())
}

// Year returns the year
func (d Date) Year() int {
	return d.Time.Year()
}

// IsEmpty returns true if the date is zero
func (d Date) IsEmpty() bool {
	return d.IsZero()
}

// AddDays returns the date n calendar days later (earlier when n < 0).
func (d Date) AddDays(n int) Date {
	return Date{Time: d.Time.AddDate(0, 0, n)}
}

// DaysUntil returns the whole number of days from d to other. Negative when
// other lies in the past.
func (d Date) DaysUntil(other Date) int {
	return int(other.Time.Sub(d.Time).Hours() / 24)
}

// Compare returns -1, 0 or +1 like time.Time.Compare.
func (d Date) Compare(other Date) int {
	return d.Time.Compare(other.Time)
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == "" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// IsPending reports whether the scheduler should consider the bill.
func (b Bill) IsPending() bool {
	return b.Status == StatusPending
}

func (b Bill) Validate() error {
	if strings.TrimSpace(b.ID) == "" {
		return ErrMissingID
	}
	if b.DueDate.IsZero() {
		return ErrMissingDueDate
	}
	if err := b.DueDate.Validate(); err != nil {
		return err
	}
	if b.Amount.IsNegative() {
		return ErrNegativeAmount
	}
	if b.BasePriority < 0 {
		return ErrNegativeBasePriority
	}
	switch b.Status {
	case StatusPending, StatusSettled:
	default:
		return ErrInvalidStatus
	}
	return nil
}

func (p Payday) Validate() error {
	if err := p.Date.Validate(); err != nil {
		return fmt.Errorf("invalid payday: %w", err)
	}
	return nil
}

func (r MonthRisk) Validate() error {
	if r.Month < 1 || r.Month > 12 {
		return ErrInvalidMonth
	}
	if r.Year < 1 {
		return errors.New("invalid year")
	}
	return nil
}

// ParseStatus maps free-form status text onto a BillStatus. Empty means pending.
func ParseStatus(s string) (BillStatus, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "pending", "open", "unpaid":
		return StatusPending, nil
	case "settled", "paid", "closed":
		return StatusSettled, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
	}
}
