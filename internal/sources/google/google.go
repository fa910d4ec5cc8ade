// Package google reads bills, paydays and month risks from a Google
// spreadsheet and writes computed priorities back into the bills sheet.
package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"paydays/internal/core"
	"paydays/internal/log"
	"paydays/internal/sources"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

type Options struct {
	SpreadsheetID   string
	CredentialsJSON string
	CredentialsFile string
	BillsSheet      string
	PaydaysSheet    string
	MonthRisksSheet string
}

type Client struct {
	svc  *gsheet.Service
	opts Options
}

// Ensure interface conformance
var (
	_ sources.Source         = (*Client)(nil)
	_ sources.PriorityWriter = (*Client)(nil)
)

// New creates a Sheets client authenticated with a service account.
// Sheet names default to "Bills", "Paydays" and "MonthRisks".
func New(ctx context.Context, opts Options) (*Client, error) {
	if strings.TrimSpace(opts.SpreadsheetID) == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	if opts.BillsSheet == "" {
		opts.BillsSheet = "Bills"
	}
	if opts.PaydaysSheet == "" {
		opts.PaydaysSheet = "Paydays"
	}
	if opts.MonthRisksSheet == "" {
		opts.MonthRisksSheet = "MonthRisks"
	}
	svc, err := newSheetsService(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return &Client{svc: svc, opts: opts}, nil
}

// newSheetsService initializes a Sheets Service using Service Account credentials.
// Falls back to GOOGLE_APPLICATION_CREDENTIALS when no credentials are configured.
func newSheetsService(ctx context.Context, opts Options) (*gsheet.Service, error) {
	credentialsFile := strings.TrimSpace(opts.CredentialsFile)
	if opts.CredentialsJSON == "" && credentialsFile == "" {
		credentialsFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	var credentialsJSON []byte
	switch {
	case opts.CredentialsJSON != "":
		credentialsJSON = []byte(opts.CredentialsJSON)
	case credentialsFile != "":
		b, err := os.ReadFile(credentialsFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		credentialsJSON = b
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}

	slog.InfoContext(ctx, "Creating Google Sheets service with Service Account",
		log.FieldComponent, log.ComponentSheets,
		"credentials_size", len(credentialsJSON),
		"scope", gsheet.SpreadsheetsScope)

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return service, nil
}

func (c *Client) ListBills(ctx context.Context) ([]core.Bill, error) {
	rows, err := c.readRows(ctx, c.opts.BillsSheet)
	if err != nil {
		return nil, err
	}
	bills, problems, err := sources.ParseBills(rows)
	if err != nil {
		return nil, fmt.Errorf("parse sheet %s: %w", c.opts.BillsSheet, err)
	}
	c.warn(ctx, c.opts.BillsSheet, problems)
	return bills, nil
}

func (c *Client) ListPaydays(ctx context.Context) ([]core.Payday, error) {
	rows, err := c.readRows(ctx, c.opts.PaydaysSheet)
	if err != nil {
		return nil, err
	}
	paydays, problems, err := sources.ParsePaydays(rows)
	if err != nil {
		return nil, fmt.Errorf("parse sheet %s: %w", c.opts.PaydaysSheet, err)
	}
	c.warn(ctx, c.opts.PaydaysSheet, problems)
	return paydays, nil
}

func (c *Client) ListMonthRisks(ctx context.Context) ([]core.MonthRisk, error) {
	rows, err := c.readRows(ctx, c.opts.MonthRisksSheet)
	if err != nil {
		return nil, err
	}
	risks, problems, err := sources.ParseMonthRisks(rows)
	if err != nil {
		return nil, fmt.Errorf("parse sheet %s: %w", c.opts.MonthRisksSheet, err)
	}
	c.warn(ctx, c.opts.MonthRisksSheet, problems)
	return risks, nil
}

// UpdatePriorities writes priorities into the bills sheet's priority column
// with a single batch request.
func (c *Client) UpdatePriorities(ctx context.Context, updates []core.PriorityUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	rows, err := c.readRows(ctx, c.opts.BillsSheet)
	if err != nil {
		return err
	}
	data, err := priorityRanges(c.opts.BillsSheet, rows, updates)
	if err != nil {
		return err
	}
	req := &gsheet.BatchUpdateValuesRequest{ValueInputOption: "RAW", Data: data}
	if _, err := c.svc.Spreadsheets.Values.BatchUpdate(c.opts.SpreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("update priorities in %s: %w", c.opts.BillsSheet, err)
	}
	slog.InfoContext(ctx, "Priorities written to sheet", log.FieldComponent, log.ComponentSheets, "sheet", c.opts.BillsSheet, "updated", len(data))
	return nil
}

func (c *Client) readRows(ctx context.Context, sheet string) ([][]string, error) {
	if c.svc == nil {
		return nil, errors.New("sheets service not initialized")
	}
	rng := fmt.Sprintf("%s!A:Z", sheet)
	resp, err := c.svc.Spreadsheets.Values.Get(c.opts.SpreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}
	rows := make([][]string, len(resp.Values))
	for i, r := range resp.Values {
		rows[i] = sources.ToStrings(r)
	}
	return rows, nil
}

func (c *Client) warn(ctx context.Context, sheet string, problems []sources.RowError) {
	for _, p := range problems {
		slog.WarnContext(ctx, "Skipping malformed row", "sheet", sheet, "row", p.Row, "error", p.Err)
	}
}

// priorityRanges maps each update onto the priority cell of its bill's row.
// Bill ids are resolved the same way ListBills resolves them.
func priorityRanges(sheet string, rows [][]string, updates []core.PriorityUpdate) ([]*gsheet.ValueRange, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("sheet %s is empty", sheet)
	}
	header := rows[0]
	col := sources.IndexOf(header, "priority")
	if col == -1 {
		return nil, fmt.Errorf("sheet %s has no priority column", sheet)
	}

	rowByID := map[string]int{}
	for i := 1; i < len(rows); i++ {
		bills, _, err := sources.ParseBills([][]string{header, rows[i]})
		if err != nil {
			return nil, fmt.Errorf("parse sheet %s: %w", sheet, err)
		}
		if len(bills) == 1 {
			rowByID[bills[0].ID] = i + 1
		}
	}

	out := make([]*gsheet.ValueRange, 0, len(updates))
	for _, u := range updates {
		row, ok := rowByID[u.BillID]
		if !ok {
			return nil, fmt.Errorf("bill %q not found in sheet %s", u.BillID, sheet)
		}
		out = append(out, &gsheet.ValueRange{
			Range:  fmt.Sprintf("%s!%s%d", sheet, columnName(col), row),
			Values: [][]interface{}{{u.Priority}},
		})
	}
	return out, nil
}

// columnName converts a zero-based column index to A1 notation (0 -> A, 26 -> AA).
func columnName(idx int) string {
	name := ""
	for idx >= 0 {
		name = string(rune('A'+idx%26)) + name
		idx = idx/26 - 1
	}
	return name
}
