package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"paydays/internal/core"
	"paydays/internal/sources"

	sq "github.com/Masterminds/squirrel"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Repository stores bills, paydays, month risks and schedule runs in a SQL
// database. Queries are built with squirrel so both dialects share them.
type Repository struct {
	db      *sql.DB
	dialect Dialect
	sb      sq.StatementBuilderType
}

var (
	_ sources.Source         = (*Repository)(nil)
	_ sources.PriorityWriter = (*Repository)(nil)
)

// NewSQLiteRepository opens (creating if needed) the database file at dbPath.
func NewSQLiteRepository(dbPath string) (*Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}
	return Open(SQLite, dbPath)
}

// NewPostgresRepository connects to the database named by dsn.
func NewPostgresRepository(dsn string) (*Repository, error) {
	return Open(Postgres, dsn)
}

// Open connects, pings and migrates the database.
func Open(dialect Dialect, dsn string) (*Repository, error) {
	db, err := sql.Open(dialect.driverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", dialect, err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dialect, dsn); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Repository{db: db, dialect: dialect, sb: dialect.builder()}, nil
}

func (r *Repository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *Repository) Dialect() Dialect { return r.dialect }

// Ping reports whether the database is reachable.
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// ListBills implements sources.BillReader
func (r *Repository) ListBills(ctx context.Context) ([]core.Bill, error) {
	query, args, err := r.sb.
		Select("id", "title", "amount", "due_date", "base_priority", "status", "priority").
		From("bills").
		OrderBy("due_date", "id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build bills query: %w", err)
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query bills: %w", err)
	}
	defer rows.Close()

	var out []core.Bill
	for rows.Next() {
		var (
			b           core.Bill
			amount, due string
			status      string
		)
		if err := rows.Scan(&b.ID, &b.Title, &amount, &due, &b.BasePriority, &status, &b.Priority); err != nil {
			return nil, fmt.Errorf("scan bill: %w", err)
		}
		if b.Amount, err = core.ParseAmount(amount); err != nil {
			return nil, fmt.Errorf("bill %s: %w", b.ID, err)
		}
		if b.DueDate, err = core.ParseDate(due); err != nil {
			return nil, fmt.Errorf("bill %s: %w", b.ID, err)
		}
		b.Status = core.BillStatus(status)
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bills: %w", err)
	}
	return out, nil
}

// ListPaydays implements sources.PaydayReader
func (r *Repository) ListPaydays(ctx context.Context) ([]core.Payday, error) {
	query, args, err := r.sb.Select("date", "label").From("paydays").OrderBy("position").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build paydays query: %w", err)
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query paydays: %w", err)
	}
	defer rows.Close()

	var out []core.Payday
	for rows.Next() {
		var date, label string
		if err := rows.Scan(&date, &label); err != nil {
			return nil, fmt.Errorf("scan payday: %w", err)
		}
		d, err := core.ParseDate(date)
		if err != nil {
			return nil, fmt.Errorf("payday: %w", err)
		}
		out = append(out, core.Payday{Date: d, Label: label})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate paydays: %w", err)
	}
	return out, nil
}

// ListMonthRisks implements sources.MonthRiskReader
func (r *Repository) ListMonthRisks(ctx context.Context) ([]core.MonthRisk, error) {
	query, args, err := r.sb.
		Select("year", "month", "critical", "low_income", "note").
		From("month_risks").
		OrderBy("year", "month").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build month risks query: %w", err)
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query month risks: %w", err)
	}
	defer rows.Close()

	var out []core.MonthRisk
	for rows.Next() {
		var m core.MonthRisk
		if err := rows.Scan(&m.Year, &m.Month, &m.IsCritical, &m.IsLowIncome, &m.Note); err != nil {
			return nil, fmt.Errorf("scan month risk: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate month risks: %w", err)
	}
	return out, nil
}

// UpsertBills inserts bills or replaces the stored copy of bills with the same id.
func (r *Repository) UpsertBills(ctx context.Context, bills []core.Bill) error {
	return r.inTx(ctx, func(tx *sql.Tx) error {
		for _, b := range bills {
			query, args, err := r.sb.Insert("bills").
				Columns("id", "title", "amount", "due_date", "base_priority", "status", "priority").
				Values(b.ID, b.Title, b.Amount.String(), b.DueDate.String(), b.BasePriority, string(b.Status), b.Priority).
				Suffix("ON CONFLICT (id) DO UPDATE SET title = excluded.title, amount = excluded.amount, " +
					"due_date = excluded.due_date, base_priority = excluded.base_priority, status = excluded.status").
				ToSql()
			if err != nil {
				return fmt.Errorf("build bill upsert: %w", err)
			}
			if _, err := tx.ExecContext(ctx, query, args...); err != nil {
				return fmt.Errorf("upsert bill %s: %w", b.ID, err)
			}
		}
		slog.InfoContext(ctx, "Bills upserted", "count", len(bills))
		return nil
	})
}

// ReplacePaydays swaps the stored payday list for paydays, keeping their order.
func (r *Repository) ReplacePaydays(ctx context.Context, paydays []core.Payday) error {
	return r.inTx(ctx, func(tx *sql.Tx) error {
		query, args, err := r.sb.Delete("paydays").ToSql()
		if err != nil {
			return fmt.Errorf("build payday delete: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("clear paydays: %w", err)
		}
		if len(paydays) == 0 {
			return nil
		}
		ins := r.sb.Insert("paydays").Columns("position", "date", "label")
		for i, p := range paydays {
			ins = ins.Values(i, p.Date.String(), p.Label)
		}
		query, args, err = ins.ToSql()
		if err != nil {
			return fmt.Errorf("build payday insert: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("insert paydays: %w", err)
		}
		return nil
	})
}

// UpsertMonthRisks stores risk records keyed by (year, month). When the input
// repeats a month, the first record is kept.
func (r *Repository) UpsertMonthRisks(ctx context.Context, risks []core.MonthRisk) error {
	type key struct{ y, m int }
	seen := map[key]bool{}
	return r.inTx(ctx, func(tx *sql.Tx) error {
		for _, m := range risks {
			k := key{m.Year, m.Month}
			if seen[k] {
				continue
			}
			seen[k] = true
			query, args, err := r.sb.Insert("month_risks").
				Columns("year", "month", "critical", "low_income", "note").
				Values(m.Year, m.Month, m.IsCritical, m.IsLowIncome, m.Note).
				Suffix("ON CONFLICT (year, month) DO UPDATE SET critical = excluded.critical, " +
					"low_income = excluded.low_income, note = excluded.note").
				ToSql()
			if err != nil {
				return fmt.Errorf("build month risk upsert: %w", err)
			}
			if _, err := tx.ExecContext(ctx, query, args...); err != nil {
				return fmt.Errorf("upsert month risk %04d-%02d: %w", m.Year, m.Month, err)
			}
		}
		return nil
	})
}

// UpdatePriorities implements sources.PriorityWriter. Either every update is
// applied or none is.
func (r *Repository) UpdatePriorities(ctx context.Context, updates []core.PriorityUpdate) error {
	return r.inTx(ctx, func(tx *sql.Tx) error {
		for _, u := range updates {
			query, args, err := r.sb.Update("bills").
				Set("priority", u.Priority).
				Where(sq.Eq{"id": u.BillID}).
				ToSql()
			if err != nil {
				return fmt.Errorf("build priority update: %w", err)
			}
			res, err := tx.ExecContext(ctx, query, args...)
			if err != nil {
				return fmt.Errorf("update priority of %s: %w", u.BillID, err)
			}
			if n, err := res.RowsAffected(); err == nil && n == 0 {
				return fmt.Errorf("update priority of %s: %w", u.BillID, ErrNotFound)
			}
		}
		return nil
	})
}

func (r *Repository) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
