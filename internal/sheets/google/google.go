// Package google exports ledger summaries to a Google Sheets spreadsheet.
//
// Each owner gets its own tab named "<sheet> <ownerID>". An export clears the
// tab and rewrites it from a freshly computed summary, so the sheet is a
// disposable projection of the ledger and never read back.
package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"fintrack/internal/core"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

// valuesAPI is the slice of the Sheets values service the exporter uses.
type valuesAPI interface {
	Clear(ctx context.Context, spreadsheetID, rng string) error
	Update(ctx context.Context, spreadsheetID, rng string, rows [][]any) error
}

type Exporter struct {
	values        valuesAPI
	spreadsheetID string
	sheetName     string
	now           func() time.Time
}

// LoadCredentials returns the service account key, preferring the inline
// JSON over the file path.
func LoadCredentials(serviceAccountJSON, serviceAccountFile string) ([]byte, error) {
	serviceAccountJSON = strings.TrimSpace(serviceAccountJSON)
	serviceAccountFile = strings.TrimSpace(serviceAccountFile)

	switch {
	case serviceAccountJSON != "":
		return []byte(serviceAccountJSON), nil
	case serviceAccountFile != "":
		b, err := os.ReadFile(serviceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return b, nil
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON or GOOGLE_SERVICE_ACCOUNT_FILE)")
	}
}

// NewExporter creates a Sheets service authenticated with a service account.
func NewExporter(ctx context.Context, spreadsheetID, sheetName string, credentialsJSON []byte) (*Exporter, error) {
	spreadsheetID = strings.TrimSpace(spreadsheetID)
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	if strings.TrimSpace(sheetName) == "" {
		sheetName = "Summary"
	}

	slog.InfoContext(ctx, "Creating Google Sheets service with Service Account",
		"credentials_size", len(credentialsJSON),
		"scope", gsheet.SpreadsheetsScope)

	svc, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	return newExporter(&sheetsValues{svc: svc}, spreadsheetID, sheetName), nil
}

func newExporter(values valuesAPI, spreadsheetID, sheetName string) *Exporter {
	return &Exporter{
		values:        values,
		spreadsheetID: spreadsheetID,
		sheetName:     sheetName,
		now:           time.Now,
	}
}

// ExportSummary replaces the owner's tab with s and returns the written range.
func (e *Exporter) ExportSummary(ctx context.Context, ownerID string, s core.Summary) (string, error) {
	if strings.TrimSpace(ownerID) == "" {
		return "", errors.New("export summary: missing owner")
	}

	tab := TabName(e.sheetName, ownerID)
	rows := SummaryRows(ownerID, s, e.now())

	if err := e.values.Clear(ctx, e.spreadsheetID, fmt.Sprintf("%s!A:D", tab)); err != nil {
		return "", fmt.Errorf("clear %s: %w", tab, err)
	}

	rng := fmt.Sprintf("%s!A1:D%d", tab, len(rows))
	if err := e.values.Update(ctx, e.spreadsheetID, rng, rows); err != nil {
		return "", fmt.Errorf("update %s: %w", rng, err)
	}

	slog.InfoContext(ctx, "Exported summary to sheet",
		"owner_id", ownerID,
		"sheet_range", rng,
		"rows", len(rows))

	return rng, nil
}

// TabName quotes the per-owner tab name for use in A1 notation.
func TabName(sheetName, ownerID string) string {
	name := fmt.Sprintf("%s %s", sheetName, ownerID)
	return "'" + strings.ReplaceAll(name, "'", "''") + "'"
}

// SummaryRows lays s out as four sections: header, totals, category
// breakdown and monthly trend, separated by blank rows.
func SummaryRows(ownerID string, s core.Summary, generatedAt time.Time) [][]any {
	rows := [][]any{
		{"Owner", ownerID, "Generated", generatedAt.UTC().Format(time.RFC3339)},
		{},
		{"Totals"},
		{"Income", amount(s.Totals.TotalIncome)},
		{"Expense", amount(s.Totals.TotalExpense)},
		{"Balance", amount(s.Totals.Balance)},
		{},
		{"Category", "Amount"},
	}

	if s.CategoryBreakdown.IsEmpty() {
		rows = append(rows, []any{"No expenses"})
	} else {
		for _, it := range s.CategoryBreakdown.Items {
			rows = append(rows, []any{it.CategoryName, amount(it.Amount)})
		}
	}

	rows = append(rows, []any{}, []any{"Month", "Expense"})
	for _, p := range s.Trend {
		rows = append(rows, []any{p.Label, amount(p.Amount)})
	}
	return rows
}

// amount sends the exact decimal text. USER_ENTERED input still stores it
// as a number.
func amount(m core.Money) string {
	return m.String()
}

// sheetsValues adapts gsheet.Service to valuesAPI.
type sheetsValues struct {
	svc *gsheet.Service
}

func (v *sheetsValues) Clear(ctx context.Context, spreadsheetID, rng string) error {
	_, err := v.svc.Spreadsheets.Values.Clear(spreadsheetID, rng, &gsheet.ClearValuesRequest{}).
		Context(ctx).Do()
	return err
}

func (v *sheetsValues) Update(ctx context.Context, spreadsheetID, rng string, rows [][]any) error {
	vr := &gsheet.ValueRange{Values: rows}
	_, err := v.svc.Spreadsheets.Values.Update(spreadsheetID, rng, vr).
		ValueInputOption("USER_ENTERED").Context(ctx).Do()
	return err
}
