// Package report assembles V4V aggregations into a report and renders it as
// text, JSON or CSV.
package report

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"v4v/internal/core"
	"v4v/internal/titles"
)

type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
)

const generalTitle = "General (no essay)"

var ErrUnknownFormat = errors.New("unknown report format")

// ParseFormat accepts text, json or csv (case-insensitive). Empty means text.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case "", FormatText:
		return FormatText, nil
	case FormatJSON:
		return FormatJSON, nil
	case FormatCSV:
		return FormatCSV, nil
	default:
		return "", fmt.Errorf("%w %q: expected text, json or csv", ErrUnknownFormat, s)
	}
}

// Options select what goes into a report.
type Options struct {
	Granularity core.Granularity
	Sort        core.SortMode
	// Since drops payments older than this instant. Zero keeps everything.
	Since time.Time
	// Top limits the essay table. Zero or negative means no limit.
	Top int
}

// EssayRow is one line of the per-essay breakdown.
type EssayRow struct {
	Slug        string   `json:"slug"`
	Title       string   `json:"title"`
	Sats        int64    `json:"sats"`
	Count       int      `json:"count"`
	LastPayment int64    `json:"last_payment"`
	USD         *float64 `json:"usd"`
	General     bool     `json:"general"`
}

type Report struct {
	Site        string              `json:"site"`
	GeneratedAt time.Time           `json:"generated_at"`
	Since       *time.Time          `json:"since,omitempty"`
	Granularity core.Granularity    `json:"granularity"`
	Sort        core.SortMode       `json:"sort"`
	Summary     core.Summary        `json:"summary"`
	Essays      []EssayRow          `json:"essays"`
	Periods     []core.PeriodBucket `json:"periods"`
	Comparison  *core.Comparison    `json:"comparison"`
	NewCount    int                 `json:"new_count"`
	Warning     string              `json:"warning,omitempty"`
}

// Build filters txs down to the site's V4V payments and aggregates them.
// It performs no I/O.
func Build(site string, txs []core.Transaction, btcPrice *float64, titleMap map[string]string, opts Options, now time.Time) *Report {
	if opts.Granularity == "" {
		opts.Granularity = core.Weekly
	}
	opts.Sort = core.ParseSortMode(string(opts.Sort))

	attr := core.NewAttributor(site)
	payments := core.FilterSince(attr.Filter(txs), opts.Since)

	r := &Report{
		Site:        site,
		GeneratedAt: now.UTC(),
		Granularity: opts.Granularity,
		Sort:        opts.Sort,
		Summary:     core.BuildSummary(payments, btcPrice, attr),
		Periods:     core.AggregateByPeriod(payments, opts.Granularity),
	}
	if !opts.Since.IsZero() {
		since := opts.Since.UTC()
		r.Since = &since
	}

	buckets := core.TopN(core.AggregateByEssay(payments, opts.Sort, attr), opts.Top)
	r.Essays = make([]EssayRow, 0, len(buckets))
	for _, b := range buckets {
		row := EssayRow{
			Slug:        b.Slug,
			Sats:        b.Sats,
			Count:       b.Count,
			LastPayment: b.LastPayment,
			USD:         core.SatsToUSD(b.Sats, btcPrice),
			General:     b.IsGeneral(),
		}
		if row.General {
			row.Title = generalTitle
		} else {
			row.Title = titles.Lookup(titleMap, b.Slug)
		}
		r.Essays = append(r.Essays, row)
	}

	if cmp, err := core.ComparePeriods(r.Periods); err == nil {
		r.Comparison = &cmp
	}
	return r
}

// Write renders r in the given format.
func Write(w io.Writer, r *Report, f Format) error {
	switch f {
	case FormatText, "":
		return WriteText(w, r)
	case FormatJSON:
		return WriteJSON(w, r)
	case FormatCSV:
		return WriteCSV(w, r)
	default:
		return fmt.Errorf("%w %q", ErrUnknownFormat, f)
	}
}

// FormatDay renders a unix timestamp as a UTC date, or "" when unset.
func FormatDay(ts int64) string {
	if ts <= 0 {
		return ""
	}
	return time.Unix(ts, 0).UTC().Format("2006-01-02")
}

// FormatPct renders a signed percentage with one decimal, or n/a.
func FormatPct(p *float64) string {
	if p == nil {
		return "n/a"
	}
	return fmt.Sprintf("%+.1f%%", *p)
}
