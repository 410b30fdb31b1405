package storage

import (
	"context"
	"database/sql"
)

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

const createExport = `
INSERT INTO exports (site, generated_at, granularity, sort_mode, since, total_sats, payments, essay_sats, general_sats, btc_price)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
RETURNING id
`

type CreateExportParams struct {
	Site        string
	GeneratedAt string
	Granularity string
	SortMode    string
	Since       sql.NullString
	TotalSats   int64
	Payments    int64
	EssaySats   int64
	GeneralSats int64
	BtcPrice    sql.NullFloat64
}

func (q *Queries) CreateExport(ctx context.Context, arg CreateExportParams) (int64, error) {
	row := q.db.QueryRowContext(ctx, createExport,
		arg.Site,
		arg.GeneratedAt,
		arg.Granularity,
		arg.SortMode,
		arg.Since,
		arg.TotalSats,
		arg.Payments,
		arg.EssaySats,
		arg.GeneralSats,
		arg.BtcPrice,
	)
	var id int64
	err := row.Scan(&id)
	return id, err
}

const upsertTransaction = `
INSERT INTO transactions (payment_hash, amount_msat, sats, settled_at, created_at, description, slug, last_export)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (payment_hash) DO UPDATE SET
    amount_msat = excluded.amount_msat,
    sats        = excluded.sats,
    settled_at  = excluded.settled_at,
    created_at  = excluded.created_at,
    description = excluded.description,
    slug        = excluded.slug,
    last_export = excluded.last_export
`

type UpsertTransactionParams struct {
	PaymentHash string
	AmountMsat  int64
	Sats        int64
	SettledAt   sql.NullInt64
	CreatedAt   sql.NullInt64
	Description string
	Slug        string
	LastExport  int64
}

func (q *Queries) UpsertTransaction(ctx context.Context, arg UpsertTransactionParams) error {
	_, err := q.db.ExecContext(ctx, upsertTransaction,
		arg.PaymentHash,
		arg.AmountMsat,
		arg.Sats,
		arg.SettledAt,
		arg.CreatedAt,
		arg.Description,
		arg.Slug,
		arg.LastExport,
	)
	return err
}

const createEssayRollup = `
INSERT INTO essay_rollups (export_id, position, slug, title, sats, payments, last_payment)
VALUES (?, ?, ?, ?, ?, ?, ?)
`

type CreateEssayRollupParams struct {
	ExportID    int64
	Position    int64
	Slug        string
	Title       string
	Sats        int64
	Payments    int64
	LastPayment int64
}

func (q *Queries) CreateEssayRollup(ctx context.Context, arg CreateEssayRollupParams) error {
	_, err := q.db.ExecContext(ctx, createEssayRollup,
		arg.ExportID,
		arg.Position,
		arg.Slug,
		arg.Title,
		arg.Sats,
		arg.Payments,
		arg.LastPayment,
	)
	return err
}

const createPeriodRollup = `
INSERT INTO period_rollups (export_id, period, sats, payments)
VALUES (?, ?, ?, ?)
`

type CreatePeriodRollupParams struct {
	ExportID int64
	Period   string
	Sats     int64
	Payments int64
}

func (q *Queries) CreatePeriodRollup(ctx context.Context, arg CreatePeriodRollupParams) error {
	_, err := q.db.ExecContext(ctx, createPeriodRollup,
		arg.ExportID,
		arg.Period,
		arg.Sats,
		arg.Payments,
	)
	return err
}

const listEssayRollups = `
SELECT slug, title, sats, payments, last_payment
FROM essay_rollups
WHERE export_id = ?
ORDER BY position
`

type EssayRollup struct {
	Slug        string
	Title       string
	Sats        int64
	Payments    int64
	LastPayment int64
}

func (q *Queries) ListEssayRollups(ctx context.Context, exportID int64) ([]EssayRollup, error) {
	rows, err := q.db.QueryContext(ctx, listEssayRollups, exportID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []EssayRollup
	for rows.Next() {
		var i EssayRollup
		if err := rows.Scan(&i.Slug, &i.Title, &i.Sats, &i.Payments, &i.LastPayment); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const listPeriodRollups = `
SELECT period, sats, payments
FROM period_rollups
WHERE export_id = ?
ORDER BY period DESC
`

type PeriodRollup struct {
	Period   string
	Sats     int64
	Payments int64
}

func (q *Queries) ListPeriodRollups(ctx context.Context, exportID int64) ([]PeriodRollup, error) {
	rows, err := q.db.QueryContext(ctx, listPeriodRollups, exportID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []PeriodRollup
	for rows.Next() {
		var i PeriodRollup
		if err := rows.Scan(&i.Period, &i.Sats, &i.Payments); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const slugTotals = `
SELECT slug, COUNT(*), COALESCE(SUM(sats), 0)
FROM transactions
GROUP BY slug
ORDER BY slug
`

type SlugTotal struct {
	Slug     string
	Payments int64
	Sats     int64
}

func (q *Queries) SlugTotals(ctx context.Context) ([]SlugTotal, error) {
	rows, err := q.db.QueryContext(ctx, slugTotals)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []SlugTotal
	for rows.Next() {
		var i SlugTotal
		if err := rows.Scan(&i.Slug, &i.Payments, &i.Sats); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const countExports = `SELECT COUNT(*) FROM exports`

func (q *Queries) CountExports(ctx context.Context) (int64, error) {
	row := q.db.QueryRowContext(ctx, countExports)
	var count int64
	err := row.Scan(&count)
	return count, err
}
