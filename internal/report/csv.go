package report

import (
	"encoding/csv"
	"io"
	"strconv"
)

var csvHeader = []string{"section", "key", "title", "sats", "count", "last_payment"}

// WriteCSV renders the report as a single table. The section column is one
// of summary, essay or period.
func WriteCSV(w io.Writer, r *Report) error {
	cw := csv.NewWriter(w)
	rows := [][]string{
		csvHeader,
		{"summary", "total", "", itoa64(r.Summary.TotalSats), strconv.Itoa(r.Summary.Count), ""},
		{"summary", "essays", "", itoa64(r.Summary.EssaySats), strconv.Itoa(r.Summary.EssayCount), ""},
		{"summary", "general", "", itoa64(r.Summary.GeneralSats), strconv.Itoa(r.Summary.GeneralCount), ""},
	}
	for _, e := range r.Essays {
		rows = append(rows, []string{"essay", e.Slug, e.Title, itoa64(e.Sats), strconv.Itoa(e.Count), FormatDay(e.LastPayment)})
	}
	for _, b := range r.Periods {
		rows = append(rows, []string{"period", b.Key, "", itoa64(b.Sats), strconv.Itoa(b.Count), ""})
	}
	if err := cw.WriteAll(rows); err != nil {
		return err
	}
	return cw.Error()
}

func itoa64(v int64) string {
	return strconv.FormatInt(v, 10)
}
