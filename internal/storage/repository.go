package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"v4v/internal/core"
	"v4v/internal/log"
	"v4v/internal/report"

	_ "modernc.org/sqlite"
)

// SQLiteRepository writes report exports into a SQLite file. The pipeline
// never reads it back.
type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
	path    string
	logger  *log.Logger
}

func NewSQLiteRepository(dbPath string, logger *log.Logger) (*SQLiteRepository, error) {
	if logger == nil {
		logger = log.Discard()
	}
	logger = logger.WithComponent(log.ComponentStorage)

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	version, err := RunMigrations(dbPath)
	if err != nil {
		db.Close()
		return nil, err
	}
	logger.Debug("Export schema ready", log.FieldFile, dbPath, "schema_version", version)

	return &SQLiteRepository{
		db:      db,
		queries: New(db),
		path:    dbPath,
		logger:  logger,
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Name identifies the export target in logs and CLI output.
func (r *SQLiteRepository) Name() string {
	return "sqlite:" + r.path
}

// Export stores one export run: the report totals, every V4V transaction
// with its bucket, and the essay and period rollups. Transactions already
// present from an earlier run are updated in place. It returns the run id.
func (r *SQLiteRepository) Export(ctx context.Context, txs []core.Transaction, rep *report.Report) (string, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin export: %w", err)
	}
	defer tx.Rollback()
	q := r.queries.WithTx(tx)

	params := CreateExportParams{
		Site:        rep.Site,
		GeneratedAt: rep.GeneratedAt.UTC().Format(time.RFC3339),
		Granularity: string(rep.Granularity),
		SortMode:    string(rep.Sort),
		TotalSats:   rep.Summary.TotalSats,
		Payments:    int64(rep.Summary.Count),
		EssaySats:   rep.Summary.EssaySats,
		GeneralSats: rep.Summary.GeneralSats,
	}
	if rep.Since != nil {
		params.Since = sql.NullString{String: rep.Since.UTC().Format(time.RFC3339), Valid: true}
	}
	if rep.Summary.BTCPrice != nil {
		params.BtcPrice = sql.NullFloat64{Float64: *rep.Summary.BTCPrice, Valid: true}
	}
	exportID, err := q.CreateExport(ctx, params)
	if err != nil {
		return "", fmt.Errorf("create export: %w", err)
	}

	attr := core.NewAttributor(rep.Site)
	for _, t := range attr.Filter(txs) {
		if err := q.UpsertTransaction(ctx, UpsertTransactionParams{
			PaymentHash: t.PaymentHash,
			AmountMsat:  t.Amount,
			Sats:        t.Sats(),
			SettledAt:   nullInt64(t.SettledAt),
			CreatedAt:   nullInt64(t.CreatedAt),
			Description: t.Description,
			Slug:        attr.Bucket(t.Description),
			LastExport:  exportID,
		}); err != nil {
			return "", fmt.Errorf("store transaction %s: %w", t.PaymentHash, err)
		}
	}

	for i, e := range rep.Essays {
		if err := q.CreateEssayRollup(ctx, CreateEssayRollupParams{
			ExportID:    exportID,
			Position:    int64(i),
			Slug:        e.Slug,
			Title:       e.Title,
			Sats:        e.Sats,
			Payments:    int64(e.Count),
			LastPayment: e.LastPayment,
		}); err != nil {
			return "", fmt.Errorf("store essay %s: %w", e.Slug, err)
		}
	}

	for _, p := range rep.Periods {
		if err := q.CreatePeriodRollup(ctx, CreatePeriodRollupParams{
			ExportID: exportID,
			Period:   p.Key,
			Sats:     p.Sats,
			Payments: int64(p.Count),
		}); err != nil {
			return "", fmt.Errorf("store period %s: %w", p.Key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit export: %w", err)
	}

	r.logger.InfoContext(ctx, "Report exported to SQLite",
		log.FieldOperation, log.OpExport,
		log.FieldFile, r.path,
		"export_id", exportID,
		log.FieldTotalCount, rep.Summary.Count,
		log.FieldTotalSats, rep.Summary.TotalSats)
	return strconv.FormatInt(exportID, 10), nil
}

// EssayRollups returns the essay rows of an export in report order.
func (r *SQLiteRepository) EssayRollups(ctx context.Context, exportID int64) ([]EssayRollup, error) {
	items, err := r.queries.ListEssayRollups(ctx, exportID)
	if err != nil {
		return nil, fmt.Errorf("list essay rollups for export %d: %w", exportID, err)
	}
	return items, nil
}

// PeriodRollups returns the period rows of an export, newest first.
func (r *SQLiteRepository) PeriodRollups(ctx context.Context, exportID int64) ([]PeriodRollup, error) {
	items, err := r.queries.ListPeriodRollups(ctx, exportID)
	if err != nil {
		return nil, fmt.Errorf("list period rollups for export %d: %w", exportID, err)
	}
	return items, nil
}

// SlugTotals sums the stored transactions per bucket across all exports.
func (r *SQLiteRepository) SlugTotals(ctx context.Context) ([]SlugTotal, error) {
	items, err := r.queries.SlugTotals(ctx)
	if err != nil {
		return nil, fmt.Errorf("sum transactions by slug: %w", err)
	}
	return items, nil
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}
