package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"paydays/internal/core"
	"paydays/internal/scheduler"

	sq "github.com/Masterminds/squirrel"
	"github.com/shopspring/decimal"
)

// createdAtLayout is fixed width so that created_at sorts as text.
const createdAtLayout = "2006-01-02T15:04:05.000000000Z07:00"

// ScheduleRun is a persisted scheduling result.
type ScheduleRun struct {
	ID         string                 `json:"id"`
	Strategy   scheduler.StrategyName `json:"strategy"`
	Today      core.Date              `json:"today"`
	CreatedAt  time.Time              `json:"created_at"`
	Assigned   int                    `json:"assigned"`
	Unassigned int                    `json:"unassigned"`
	Rejected   int                    `json:"rejected"`
	Total      decimal.Decimal        `json:"total"`
	Entries    []ScheduleEntry        `json:"entries"`
}

// ScheduleEntry is one bill of a run. PaymentDate is zero and Reason set for
// bills the run could not assign.
type ScheduleEntry struct {
	BillID      string    `json:"bill_id"`
	PaymentDate core.Date `json:"payment_date"`
	Priority    int       `json:"priority"`
	Deflected   bool      `json:"deflected,omitempty"`
	Reason      string    `json:"reason,omitempty"`
}

// RunFromPlan flattens a plan into a run with the given identifier.
func RunFromPlan(id string, plan scheduler.Plan, createdAt time.Time) ScheduleRun {
	run := ScheduleRun{
		ID:         id,
		Strategy:   plan.Strategy,
		Today:      plan.Today,
		CreatedAt:  createdAt.UTC(),
		Assigned:   len(plan.Assignments),
		Unassigned: len(plan.Unassigned),
		Rejected:   len(plan.Rejected),
		Total:      plan.Total(),
	}
	for _, a := range plan.Assignments {
		run.Entries = append(run.Entries, ScheduleEntry{
			BillID:      a.Bill.ID,
			PaymentDate: a.PaymentDate,
			Priority:    a.Priority,
			Deflected:   a.Deflected,
		})
	}
	for _, u := range plan.Unassigned {
		run.Entries = append(run.Entries, ScheduleEntry{BillID: u.Bill.ID, Priority: u.Priority, Reason: u.Reason})
	}
	return run
}

// SaveRun stores a run and its entries atomically.
func (r *Repository) SaveRun(ctx context.Context, run ScheduleRun) error {
	return r.inTx(ctx, func(tx *sql.Tx) error {
		query, args, err := r.sb.Insert("schedule_runs").
			Columns("id", "strategy", "today", "created_at", "assigned", "unassigned", "rejected", "total").
			Values(run.ID, string(run.Strategy), run.Today.String(), run.CreatedAt.UTC().Format(createdAtLayout),
				run.Assigned, run.Unassigned, run.Rejected, run.Total.String()).
			ToSql()
		if err != nil {
			return fmt.Errorf("build run insert: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("insert run %s: %w", run.ID, err)
		}
		if len(run.Entries) == 0 {
			return nil
		}

		ins := r.sb.Insert("schedule_entries").
			Columns("run_id", "position", "bill_id", "payment_date", "priority", "deflected", "reason")
		for i, e := range run.Entries {
			ins = ins.Values(run.ID, i, e.BillID, e.PaymentDate.String(), e.Priority, e.Deflected, e.Reason)
		}
		query, args, err = ins.ToSql()
		if err != nil {
			return fmt.Errorf("build entries insert: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("insert entries of run %s: %w", run.ID, err)
		}
		return nil
	})
}

// LatestRun returns the most recently created run with its entries.
func (r *Repository) LatestRun(ctx context.Context) (ScheduleRun, error) {
	query, args, err := r.sb.
		Select("id", "strategy", "today", "created_at", "assigned", "unassigned", "rejected", "total").
		From("schedule_runs").
		OrderBy("created_at DESC", "id DESC").
		Limit(1).
		ToSql()
	if err != nil {
		return ScheduleRun{}, fmt.Errorf("build latest run query: %w", err)
	}

	var (
		run                      ScheduleRun
		strategy, today, created string
		total                    string
	)
	err = r.db.QueryRowContext(ctx, query, args...).Scan(
		&run.ID, &strategy, &today, &created, &run.Assigned, &run.Unassigned, &run.Rejected, &total)
	if errors.Is(err, sql.ErrNoRows) {
		return ScheduleRun{}, ErrNotFound
	}
	if err != nil {
		return ScheduleRun{}, fmt.Errorf("query latest run: %w", err)
	}
	run.Strategy = scheduler.StrategyName(strategy)
	if run.Today, err = core.ParseDate(today); err != nil {
		return ScheduleRun{}, fmt.Errorf("run %s: %w", run.ID, err)
	}
	if run.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
		return ScheduleRun{}, fmt.Errorf("run %s created_at: %w", run.ID, err)
	}
	if run.Total, err = core.ParseAmount(total); err != nil {
		return ScheduleRun{}, fmt.Errorf("run %s total: %w", run.ID, err)
	}

	run.Entries, err = r.runEntries(ctx, run.ID)
	if err != nil {
		return ScheduleRun{}, err
	}
	return run, nil
}

func (r *Repository) runEntries(ctx context.Context, runID string) ([]ScheduleEntry, error) {
	query, args, err := r.sb.
		Select("bill_id", "payment_date", "priority", "deflected", "reason").
		From("schedule_entries").
		Where(sq.Eq{"run_id": runID}).
		OrderBy("position").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build entries query: %w", err)
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query entries of run %s: %w", runID, err)
	}
	defer rows.Close()

	var out []ScheduleEntry
	for rows.Next() {
		var (
			e    ScheduleEntry
			date string
		)
		if err := rows.Scan(&e.BillID, &date, &e.Priority, &e.Deflected, &e.Reason); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		if date != "" {
			if e.PaymentDate, err = core.ParseDate(date); err != nil {
				return nil, fmt.Errorf("entry %s: %w", e.BillID, err)
			}
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}
	return out, nil
}
