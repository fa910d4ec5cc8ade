package scheduler

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"paydays/internal/core"
)

// InvalidBillPolicy decides what happens to a bill that fails validation.
type InvalidBillPolicy string

const (
	// SkipInvalid leaves the bill out and reports it in Plan.Rejected.
	SkipInvalid InvalidBillPolicy = "skip"
	// RejectBatch fails the whole call with an *InvalidBillError.
	RejectBatch InvalidBillPolicy = "reject"
)

// ParseInvalidBillPolicy maps configuration text onto a policy.
func ParseInvalidBillPolicy(s string) (InvalidBillPolicy, error) {
	switch p := InvalidBillPolicy(s); p {
	case SkipInvalid, RejectBatch:
		return p, nil
	default:
		return "", fmt.Errorf("invalid bill policy must be %q or %q, got %q", SkipInvalid, RejectBatch, s)
	}
}

// InvalidBillError reports a structurally invalid bill.
type InvalidBillError struct {
	BillID string
	Err    error
}

func (e *InvalidBillError) Error() string {
	return fmt.Sprintf("invalid bill %q: %v", e.BillID, e.Err)
}

func (e *InvalidBillError) Unwrap() error { return e.Err }

// Options configures an Engine. Zero fields take the DefaultOptions value.
type Options struct {
	InvalidBills InvalidBillPolicy
	// LoadThreshold is the payday load above which Strategy B deflects.
	LoadThreshold int
	// DeflectionMargin is how much lighter an earlier payday must be.
	DeflectionMargin int
	// Logger receives debug records about deflections and unassigned bills.
	// Defaults to slog.Default().
	Logger *slog.Logger
}

// DefaultOptions returns the options the engine uses when none are given.
func DefaultOptions() Options {
	return Options{
		InvalidBills:     SkipInvalid,
		LoadThreshold:    DefaultLoadThreshold,
		DeflectionMargin: DefaultDeflectionMargin,
	}
}

func (o Options) Validate() error {
	var errs []error
	if _, err := ParseInvalidBillPolicy(string(o.InvalidBills)); err != nil {
		errs = append(errs, err)
	}
	if o.LoadThreshold < 0 {
		errs = append(errs, errors.New("load threshold cannot be negative"))
	}
	if o.DeflectionMargin < 0 {
		errs = append(errs, errors.New("deflection margin cannot be negative"))
	}
	return errors.Join(errs...)
}

// Engine runs strategies over caller supplied collections. It is safe for
// concurrent use; nothing is retained between calls.
type Engine struct {
	opts     Options
	balanced LoadBalanced
	logger   *slog.Logger
}

// NewEngine builds an engine. Unset options fall back to DefaultOptions, so
// NewEngine(Options{}) behaves like NewEngine(DefaultOptions()).
func NewEngine(opts Options) (*Engine, error) {
	if opts.InvalidBills == "" {
		opts.InvalidBills = SkipInvalid
	}
	if opts.LoadThreshold == 0 {
		opts.LoadThreshold = DefaultLoadThreshold
	}
	if opts.DeflectionMargin == 0 {
		opts.DeflectionMargin = DefaultDeflectionMargin
	}
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("invalid engine options: %w", err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	balanced := NewLoadBalanced()
	balanced.LoadThreshold = opts.LoadThreshold
	balanced.DeflectionMargin = opts.DeflectionMargin
	return &Engine{opts: opts, balanced: balanced, logger: logger}, nil
}

// Strategy resolves name, honouring the engine's load balancing options.
func (e *Engine) Strategy(name StrategyName) (Strategy, error) {
	if name == BalancedStrategy {
		return e.balanced, nil
	}
	return GetStrategy(name)
}

// Plan schedules the pending bills among bills onto paydays as seen at now.
func (e *Engine) Plan(name StrategyName, bills []core.Bill, paydays []core.Payday, risks []core.MonthRisk, now time.Time) (Plan, error) {
	s, err := e.Strategy(name)
	if err != nil {
		return Plan{}, err
	}
	pending, rejected, err := e.admit(bills)
	if err != nil {
		return Plan{}, err
	}
	for i, p := range paydays {
		if err := p.Validate(); err != nil {
			return Plan{}, fmt.Errorf("payday %d: %w", i, err)
		}
	}
	if err := validateRisks(risks); err != nil {
		return Plan{}, err
	}

	plan := s.Plan(Input{
		Bills:   pending,
		Paydays: paydays,
		Risks:   NewMonthRiskIndex(risks),
		Now:     now,
	})
	plan.Rejected = rejected

	for _, a := range plan.Assignments {
		if a.Deflected {
			e.logger.Debug("bill deflected to earlier payday",
				"strategy", name, "bill_id", a.Bill.ID, "payday", a.PaymentDate.String())
		}
	}
	for _, u := range plan.Unassigned {
		e.logger.Debug("bill left unassigned",
			"strategy", name, "bill_id", u.Bill.ID, "due_date", u.Bill.DueDate.String(), "reason", u.Reason)
	}
	return plan, nil
}

// Rank scores the pending bills with the strategy's weighting, most urgent
// first, without assigning payment dates.
func (e *Engine) Rank(name StrategyName, bills []core.Bill, risks []core.MonthRisk, now time.Time) ([]PrioritizedBill, []RejectedBill, error) {
	s, err := e.Strategy(name)
	if err != nil {
		return nil, nil, err
	}
	pending, rejected, err := e.admit(bills)
	if err != nil {
		return nil, nil, err
	}
	if err := validateRisks(risks); err != nil {
		return nil, nil, err
	}
	return rankBills(pending, s.Weighting(), NewMonthRiskIndex(risks), core.DateOf(now), true), rejected, nil
}

// PriorityUpdates turns a ranking into the writes a store should apply.
func PriorityUpdates(ranked []PrioritizedBill) []core.PriorityUpdate {
	out := make([]core.PriorityUpdate, len(ranked))
	for i, r := range ranked {
		out[i] = core.PriorityUpdate{BillID: r.Bill.ID, Priority: r.Priority}
	}
	return out
}

// admit validates bills and keeps the pending ones.
func (e *Engine) admit(bills []core.Bill) ([]core.Bill, []RejectedBill, error) {
	pending := make([]core.Bill, 0, len(bills))
	var rejected []RejectedBill
	for _, b := range bills {
		if err := b.Validate(); err != nil {
			if e.opts.InvalidBills == RejectBatch {
				return nil, nil, &InvalidBillError{BillID: b.ID, Err: err}
			}
			rejected = append(rejected, RejectedBill{Bill: b, Reason: err.Error(), Err: err})
			continue
		}
		if b.IsPending() {
			pending = append(pending, b)
		}
	}
	return pending, rejected, nil
}

func validateRisks(risks []core.MonthRisk) error {
	for _, r := range risks {
		if err := r.Validate(); err != nil {
			return fmt.Errorf("month risk %04d-%02d: %w", r.Year, r.Month, err)
		}
	}
	return nil
}
