package storage

import (
	"context"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"v4v/internal/core"
	"v4v/internal/report"
)

func newRepo(t *testing.T) (*SQLiteRepository, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nested", "export.db")
	repo, err := NewSQLiteRepository(path, nil)
	if err != nil {
		t.Fatalf("NewSQLiteRepository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo, path
}

func exportFixture() ([]core.Transaction, *report.Report) {
	at := func(d int) *int64 { return core.Int64(time.Date(2024, 3, d, 12, 0, 0, 0, time.UTC).Unix()) }
	txs := []core.Transaction{
		{PaymentHash: "a", Amount: 21_000, Description: "site.com/alpha", SettledAt: at(20)},
		{PaymentHash: "b", Amount: 4_999, Description: "site.com", CreatedAt: at(5)},
		{PaymentHash: "c", Amount: 9_000, Description: "someone else"},
	}
	price := 60_000.0
	rep := report.Build("site.com", txs, &price, map[string]string{"alpha": "Alpha"},
		report.Options{Granularity: core.Monthly}, time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC))
	return txs, rep
}

func TestExport(t *testing.T) {
	repo, _ := newRepo(t)
	ctx := context.Background()
	txs, rep := exportFixture()

	ref, err := repo.Export(ctx, txs, rep)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	id, err := strconv.ParseInt(ref, 10, 64)
	if err != nil {
		t.Fatalf("export ref %q: %v", ref, err)
	}

	essays, err := repo.EssayRollups(ctx, id)
	if err != nil {
		t.Fatalf("EssayRollups: %v", err)
	}
	if len(essays) != 2 {
		t.Fatalf("essays=%d want 2", len(essays))
	}
	if essays[0].Slug != "alpha" || essays[0].Title != "Alpha" || essays[0].Sats != 21 {
		t.Fatalf("first essay=%+v", essays[0])
	}
	if essays[1].Slug != core.GeneralBucket || essays[1].Sats != 4 {
		t.Fatalf("second essay=%+v", essays[1])
	}

	periods, err := repo.PeriodRollups(ctx, id)
	if err != nil {
		t.Fatalf("PeriodRollups: %v", err)
	}
	if len(periods) != 1 || periods[0].Period != "2024-03" || periods[0].Payments != 2 {
		t.Fatalf("periods=%+v", periods)
	}

	totals, err := repo.SlugTotals(ctx)
	if err != nil {
		t.Fatalf("SlugTotals: %v", err)
	}
	want := []SlugTotal{{Slug: core.GeneralBucket, Payments: 1, Sats: 4}, {Slug: "alpha", Payments: 1, Sats: 21}}
	if len(totals) != len(want) {
		t.Fatalf("totals=%+v", totals)
	}
	for i := range want {
		if totals[i] != want[i] {
			t.Fatalf("totals[%d]=%+v want %+v", i, totals[i], want[i])
		}
	}
}

func TestExport_RepeatedRunsUpsertTransactions(t *testing.T) {
	repo, path := newRepo(t)
	ctx := context.Background()
	txs, rep := exportFixture()

	if _, err := repo.Export(ctx, txs, rep); err != nil {
		t.Fatalf("first export: %v", err)
	}
	if _, err := repo.Export(ctx, txs, rep); err != nil {
		t.Fatalf("second export: %v", err)
	}

	count, err := repo.queries.CountExports(ctx)
	if err != nil {
		t.Fatalf("CountExports: %v", err)
	}
	if count != 2 {
		t.Fatalf("exports=%d want 2", count)
	}

	totals, err := repo.SlugTotals(ctx)
	if err != nil {
		t.Fatalf("SlugTotals: %v", err)
	}
	for _, st := range totals {
		if st.Payments != 1 {
			t.Fatalf("transaction %s stored %d times", st.Slug, st.Payments)
		}
	}

	// Reopening an existing file keeps the schema and data.
	repo.Close()
	reopened, err := NewSQLiteRepository(path, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	if count, _ := reopened.queries.CountExports(ctx); count != 2 {
		t.Fatalf("exports after reopen=%d", count)
	}
}

func TestRunMigrations_Version(t *testing.T) {
	path := filepath.Join(t.TempDir(), "m.db")
	v, err := RunMigrations(path)
	if err != nil {
		t.Fatalf("RunMigrations: %v", err)
	}
	if v != 1 {
		t.Fatalf("version=%d want 1", v)
	}
	if v, err := RunMigrations(path); err != nil || v != 1 {
		t.Fatalf("second run: v=%d err=%v", v, err)
	}
}
