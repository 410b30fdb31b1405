package http

import (
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"
	"strconv"
	"strings"
	"time"

	"v4v/internal/core"
	"v4v/internal/report"
)

var templateFuncs = template.FuncMap{
	"sats": core.FormatSats,
	"usd":  core.FormatUSD,
	"day":  report.FormatDay,
	"pct":  report.FormatPct,
}

// parseOptions reads granularity, sort, days and top from the query string.
// days is turned into a since bound at UTC midnight so cache keys stay stable
// through the day.
func parseOptions(r *http.Request, now time.Time) (report.Options, error) {
	q := r.URL.Query()
	opts := report.Options{
		Granularity: core.Weekly,
		Sort:        core.ParseSortMode(q.Get("sort")),
	}

	if v := strings.TrimSpace(q.Get("granularity")); v != "" {
		g, err := core.ParseGranularity(v)
		if err != nil {
			return report.Options{}, err
		}
		opts.Granularity = g
	}

	if v := strings.TrimSpace(q.Get("days")); v != "" {
		days, err := strconv.Atoi(v)
		if err != nil || days < 0 {
			return report.Options{}, fmt.Errorf("invalid days %q: expected a non-negative integer", v)
		}
		if days > 0 {
			midnight := now.UTC().Truncate(24 * time.Hour)
			opts.Since = midnight.AddDate(0, 0, -days)
		}
	}

	if v := strings.TrimSpace(q.Get("top")); v != "" {
		top, err := strconv.Atoi(v)
		if err != nil || top < 0 {
			return report.Options{}, fmt.Errorf("invalid top %q: expected a non-negative integer", v)
		}
		opts.Top = top
	}
	return opts, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
