package google

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"v4v/internal/core"
	"v4v/internal/report"
)

// fakeSheets serves the handful of Sheets v4 endpoints the exporter calls.
type fakeSheets struct {
	mu      sync.Mutex
	tabs    []string
	added   []string
	cleared []string
	updates map[string][][]any
	failPut bool
}

func (f *fakeSheets) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := r.URL.Path
	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.Method == http.MethodGet && path == "/v4/spreadsheets/sheet-id":
		ss := gsheet.Spreadsheet{SpreadsheetId: "sheet-id"}
		for _, t := range f.tabs {
			ss.Sheets = append(ss.Sheets, &gsheet.Sheet{Properties: &gsheet.SheetProperties{Title: t}})
		}
		_ = json.NewEncoder(w).Encode(ss)

	case r.Method == http.MethodPost && path == "/v4/spreadsheets/sheet-id:batchUpdate":
		var req gsheet.BatchUpdateSpreadsheetRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		for _, rq := range req.Requests {
			f.added = append(f.added, rq.AddSheet.Properties.Title)
		}
		_, _ = w.Write([]byte(`{"spreadsheetId":"sheet-id"}`))

	case r.Method == http.MethodPost && strings.HasSuffix(path, ":clear"):
		rng := strings.TrimSuffix(strings.TrimPrefix(path, "/v4/spreadsheets/sheet-id/values/"), ":clear")
		f.cleared = append(f.cleared, rng)
		_, _ = w.Write([]byte(`{}`))

	case r.Method == http.MethodPut && strings.HasPrefix(path, "/v4/spreadsheets/sheet-id/values/"):
		if f.failPut {
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte(`{"error":{"code":403,"message":"denied"}}`))
			return
		}
		var vr struct {
			Values [][]any `json:"values"`
		}
		_ = json.NewDecoder(r.Body).Decode(&vr)
		f.updates[strings.TrimPrefix(path, "/v4/spreadsheets/sheet-id/values/")] = vr.Values
		_, _ = w.Write([]byte(`{}`))

	default:
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"code":404,"message":"unexpected call"}}`))
	}
}

func newTestExporter(t *testing.T, fake *fakeSheets) *Exporter {
	t.Helper()
	fake.updates = map[string][][]any{}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	e, err := NewExporter(context.Background(), "sheet-id", "", nil,
		goption.WithEndpoint(srv.URL+"/"),
		goption.WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("NewExporter: %v", err)
	}
	return e
}

func sampleReport() *report.Report {
	at := core.Int64(time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC).Unix())
	txs := []core.Transaction{
		{PaymentHash: "1", Amount: 21_000, Description: "site.com/alpha", SettledAt: at},
		{PaymentHash: "2", Amount: 3_000, Description: "site.com", SettledAt: at},
	}
	return report.Build("site.com", txs, nil, map[string]string{"alpha": "Alpha"},
		report.Options{Granularity: core.Monthly}, time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC))
}

func TestExport(t *testing.T) {
	fake := &fakeSheets{tabs: []string{"V4V Summary", "Other"}}
	e := newTestExporter(t, fake)

	ref, err := e.Export(context.Background(), nil, sampleReport())
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if ref != "https://docs.google.com/spreadsheets/d/sheet-id" {
		t.Fatalf("ref=%q", ref)
	}
	if e.Name() != "sheets:sheet-id" {
		t.Fatalf("Name=%q", e.Name())
	}

	if got := strings.Join(fake.added, ","); got != "V4V Essays,V4V Periods" {
		t.Fatalf("added sheets=%q", got)
	}
	if len(fake.cleared) != 3 {
		t.Fatalf("cleared=%v", fake.cleared)
	}

	essays, ok := fake.updates["'V4V Essays'!A1"]
	if !ok {
		t.Fatalf("no essays update, got %v", fake.updates)
	}
	if len(essays) != 3 {
		t.Fatalf("essay rows=%d want header+2", len(essays))
	}
	if essays[1][0] != "alpha" || essays[1][1] != "Alpha" || essays[1][2] != float64(21) || essays[1][4] != "2024-03-04" {
		t.Fatalf("alpha row=%v", essays[1])
	}
	if essays[2][0] != core.GeneralBucket {
		t.Fatalf("general row=%v", essays[2])
	}

	periods := fake.updates["'V4V Periods'!A1"]
	if len(periods) != 2 || periods[0][0] != "monthly" || periods[1][0] != "2024-03" {
		t.Fatalf("periods=%v", periods)
	}

	summary := fake.updates["'V4V Summary'!A1"]
	if len(summary) < 5 || summary[4][0] != "total_sats" || summary[4][1] != float64(24) {
		t.Fatalf("summary=%v", summary)
	}
}

func TestExport_SkipsBatchUpdateWhenTabsExist(t *testing.T) {
	fake := &fakeSheets{tabs: []string{"V4V Summary", "V4V Essays", "V4V Periods"}}
	e := newTestExporter(t, fake)

	if _, err := e.Export(context.Background(), nil, sampleReport()); err != nil {
		t.Fatalf("Export: %v", err)
	}
	if len(fake.added) != 0 {
		t.Fatalf("unexpected sheet creation: %v", fake.added)
	}
}

func TestExport_UpdateError(t *testing.T) {
	fake := &fakeSheets{tabs: []string{"V4V Summary", "V4V Essays", "V4V Periods"}, failPut: true}
	e := newTestExporter(t, fake)

	_, err := e.Export(context.Background(), nil, sampleReport())
	if err == nil || !strings.Contains(err.Error(), "V4V Summary") {
		t.Fatalf("expected update error naming the sheet, got %v", err)
	}
}

func TestNewExporter_RequiresSpreadsheet(t *testing.T) {
	if _, err := NewExporter(context.Background(), "  ", "V4V", nil); err == nil {
		t.Fatalf("expected error for missing spreadsheet id")
	}
}

func TestNewExporter_RequiresCredentials(t *testing.T) {
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_JSON", "")
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_FILE", "")
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "")
	_, err := NewExporter(context.Background(), "sheet-id", "V4V", nil)
	if err == nil || !strings.Contains(err.Error(), "missing service account credentials") {
		t.Fatalf("expected credentials error, got %v", err)
	}
}
