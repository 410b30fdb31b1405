package google

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"v4v/internal/core"
	"v4v/internal/log"
	"v4v/internal/report"
)

// Exporter writes report tables into a Google Sheets spreadsheet. Each
// export replaces the contents of three tabs named "<prefix> Summary",
// "<prefix> Essays" and "<prefix> Periods", creating them when missing.
type Exporter struct {
	svc           *gsheet.Service
	spreadsheetID string
	prefix        string
	logger        *log.Logger
}

// NewExporter creates a Sheets exporter. Without opts the service account
// credentials are read from the environment; tests pass an endpoint and
// HTTP client instead.
func NewExporter(ctx context.Context, spreadsheetID, prefix string, logger *log.Logger, opts ...goption.ClientOption) (*Exporter, error) {
	spreadsheetID = strings.TrimSpace(spreadsheetID)
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	if strings.TrimSpace(prefix) == "" {
		prefix = "V4V"
	}
	if logger == nil {
		logger = log.Discard()
	}
	logger = logger.WithComponent(log.ComponentSheets)

	var (
		svc *gsheet.Service
		err error
	)
	if len(opts) == 0 {
		svc, err = newSheetsService(ctx, logger)
	} else {
		svc, err = gsheet.NewService(ctx, opts...)
	}
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}

	return &Exporter{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		prefix:        strings.TrimSpace(prefix),
		logger:        logger,
	}, nil
}

// newSheetsService initializes a Sheets Service using Service Account credentials.
// Uses GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS.
func newSheetsService(ctx context.Context, logger *log.Logger) (*gsheet.Service, error) {
	serviceAccountJSON := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"))
	serviceAccountFile := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))
	if serviceAccountJSON == "" && serviceAccountFile == "" {
		serviceAccountFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	var credentialsJSON []byte
	switch {
	case serviceAccountJSON != "":
		logger.DebugContext(ctx, "Using inline JSON credentials")
		credentialsJSON = []byte(serviceAccountJSON)
	case serviceAccountFile != "":
		logger.DebugContext(ctx, "Reading credentials from file", log.FieldFile, serviceAccountFile)
		b, err := os.ReadFile(serviceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		credentialsJSON = b
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return service, nil
}

// Name identifies the export target in logs and CLI output.
func (e *Exporter) Name() string {
	return "sheets:" + e.spreadsheetID
}

func (e *Exporter) sheetName(base string) string {
	return e.prefix + " " + base
}

// Export replaces the three report tabs. txs is unused: the spreadsheet only
// carries aggregated tables. It returns the spreadsheet URL.
func (e *Exporter) Export(ctx context.Context, _ []core.Transaction, rep *report.Report) (string, error) {
	tables := []struct {
		name string
		rows [][]any
	}{
		{e.sheetName("Summary"), summaryRows(rep)},
		{e.sheetName("Essays"), essayRows(rep)},
		{e.sheetName("Periods"), periodRows(rep)},
	}

	names := make([]string, len(tables))
	for i, t := range tables {
		names[i] = t.name
	}
	if err := e.ensureSheets(ctx, names); err != nil {
		return "", err
	}

	for _, t := range tables {
		if err := e.replace(ctx, t.name, t.rows); err != nil {
			return "", err
		}
	}

	e.logger.InfoContext(ctx, "Report exported to Google Sheets",
		log.FieldOperation, log.OpExport,
		"spreadsheet_id", e.spreadsheetID,
		log.FieldTotalCount, rep.Summary.Count,
		log.FieldTotalSats, rep.Summary.TotalSats)
	return "https://docs.google.com/spreadsheets/d/" + e.spreadsheetID, nil
}

// ensureSheets adds the tabs that do not exist yet in one batch update.
func (e *Exporter) ensureSheets(ctx context.Context, names []string) error {
	ss, err := e.svc.Spreadsheets.Get(e.spreadsheetID).Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("get spreadsheet %s: %w", e.spreadsheetID, err)
	}
	existing := make(map[string]bool, len(ss.Sheets))
	for _, sh := range ss.Sheets {
		if sh.Properties != nil {
			existing[sh.Properties.Title] = true
		}
	}

	var reqs []*gsheet.Request
	for _, name := range names {
		if !existing[name] {
			reqs = append(reqs, &gsheet.Request{
				AddSheet: &gsheet.AddSheetRequest{Properties: &gsheet.SheetProperties{Title: name}},
			})
		}
	}
	if len(reqs) == 0 {
		return nil
	}

	_, err = e.svc.Spreadsheets.BatchUpdate(e.spreadsheetID, &gsheet.BatchUpdateSpreadsheetRequest{Requests: reqs}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("add %d sheets: %w", len(reqs), err)
	}
	e.logger.DebugContext(ctx, "Created sheets", "count", len(reqs))
	return nil
}

func (e *Exporter) replace(ctx context.Context, sheet string, rows [][]any) error {
	quoted := "'" + strings.ReplaceAll(sheet, "'", "''") + "'"

	if _, err := e.svc.Spreadsheets.Values.Clear(e.spreadsheetID, quoted, &gsheet.ClearValuesRequest{}).Context(ctx).Do(); err != nil {
		return fmt.Errorf("clear sheet %s: %w", sheet, err)
	}

	vr := &gsheet.ValueRange{Values: rows}
	_, err := e.svc.Spreadsheets.Values.Update(e.spreadsheetID, quoted+"!A1", vr).
		ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to update sheet %s: %w", sheet, err)
	}
	return nil
}

func summaryRows(rep *report.Report) [][]any {
	rows := [][]any{
		{"metric", "value"},
		{"site", rep.Site},
		{"generated_at", rep.GeneratedAt.UTC().Format(time.RFC3339)},
		{"payments", rep.Summary.Count},
		{"total_sats", rep.Summary.TotalSats},
		{"avg_sats", rep.Summary.AvgSats},
		{"essay_sats", rep.Summary.EssaySats},
		{"general_sats", rep.Summary.GeneralSats},
		{"btc_price", optional(rep.Summary.BTCPrice)},
		{"total_usd", optional(rep.Summary.TotalUSD)},
	}
	if rep.Since != nil {
		rows = append(rows, []any{"since", rep.Since.UTC().Format(time.RFC3339)})
	}
	return rows
}

func essayRows(rep *report.Report) [][]any {
	rows := [][]any{{"slug", "title", "sats", "payments", "last_payment", "usd"}}
	for _, e := range rep.Essays {
		rows = append(rows, []any{e.Slug, e.Title, e.Sats, e.Count, report.FormatDay(e.LastPayment), optional(e.USD)})
	}
	return rows
}

func periodRows(rep *report.Report) [][]any {
	rows := [][]any{{string(rep.Granularity), "sats", "payments"}}
	for _, p := range rep.Periods {
		rows = append(rows, []any{p.Key, p.Sats, p.Count})
	}
	return rows
}

func optional(v *float64) any {
	if v == nil {
		return ""
	}
	return *v
}
