// Package memory keeps scheduling inputs in process, optionally seeded from
// CSV files.
package memory

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"paydays/internal/core"
	"paydays/internal/sources"
)

// Seed file names looked up by NewFromFiles.
const (
	BillsFile      = "bills.csv"
	PaydaysFile    = "paydays.csv"
	MonthRisksFile = "month_risks.csv"
)

type Store struct {
	mu      sync.Mutex
	bills   []core.Bill
	paydays []core.Payday
	risks   []core.MonthRisk
}

var (
	_ sources.Source         = (*Store)(nil)
	_ sources.PriorityWriter = (*Store)(nil)
)

func New(bills []core.Bill, paydays []core.Payday, risks []core.MonthRisk) *Store {
	return &Store{
		bills:   append([]core.Bill(nil), bills...),
		paydays: append([]core.Payday(nil), paydays...),
		risks:   append([]core.MonthRisk(nil), risks...),
	}
}

// NewFromFiles loads the seed files found in base. Missing files yield empty
// collections; malformed rows are skipped with a warning.
func NewFromFiles(base string) (*Store, error) {
	billRows, err := readCSV(filepath.Join(base, BillsFile))
	if err != nil {
		return nil, err
	}
	bills, problems, err := sources.ParseBills(billRows)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", BillsFile, err)
	}
	warn(BillsFile, problems)

	paydayRows, err := readCSV(filepath.Join(base, PaydaysFile))
	if err != nil {
		return nil, err
	}
	paydays, problems, err := sources.ParsePaydays(paydayRows)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", PaydaysFile, err)
	}
	warn(PaydaysFile, problems)

	riskRows, err := readCSV(filepath.Join(base, MonthRisksFile))
	if err != nil {
		return nil, err
	}
	risks, problems, err := sources.ParseMonthRisks(riskRows)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", MonthRisksFile, err)
	}
	warn(MonthRisksFile, problems)

	slog.Info("Loaded seed data", "dir", base, "bills", len(bills), "paydays", len(paydays), "month_risks", len(risks))
	return New(bills, paydays, risks), nil
}

func (s *Store) ListBills(_ context.Context) ([]core.Bill, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.Bill(nil), s.bills...), nil
}

func (s *Store) ListPaydays(_ context.Context) ([]core.Payday, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.Payday(nil), s.paydays...), nil
}

func (s *Store) ListMonthRisks(_ context.Context) ([]core.MonthRisk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.MonthRisk(nil), s.risks...), nil
}

// UpdatePriorities stores computed priorities. Unknown bill ids are an error
// and leave the store untouched.
func (s *Store) UpdatePriorities(_ context.Context, updates []core.PriorityUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	pos := make(map[string]int, len(s.bills))
	for i, b := range s.bills {
		pos[b.ID] = i
	}
	for _, u := range updates {
		if _, ok := pos[u.BillID]; !ok {
			return fmt.Errorf("update priority: unknown bill %q", u.BillID)
		}
	}
	for _, u := range updates {
		s.bills[pos[u.BillID]].Priority = u.Priority
	}
	return nil
}

func readCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	r := csv.NewReader(f)
	r.Comment = '#'
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return rows, nil
}

func warn(file string, problems []sources.RowError) {
	for _, p := range problems {
		slog.Warn("Skipping malformed row", "file", file, "row", p.Row, "error", p.Err)
	}
}
