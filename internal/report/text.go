package report

import (
	"fmt"
	"io"
	"text/tabwriter"

	"v4v/internal/core"
)

// WriteText renders a terminal-friendly report.
func WriteText(w io.Writer, r *Report) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	p := func(format string, args ...any) {
		fmt.Fprintf(tw, format, args...)
	}

	s := r.Summary
	p("V4V report for %s\n", r.Site)
	p("Generated %s\n", r.GeneratedAt.Format("2006-01-02 15:04 MST"))
	if r.Since != nil {
		p("Since %s\n", r.Since.Format("2006-01-02"))
	}
	if r.Warning != "" {
		p("Warning: %s\n", r.Warning)
	}
	p("\n")

	p("Payments\t%s\t\n", core.FormatSats(int64(s.Count)))
	p("New since last fetch\t%s\t\n", core.FormatSats(int64(r.NewCount)))
	p("Total\t%s sats\t%s\n", core.FormatSats(s.TotalSats), core.FormatUSD(s.TotalUSD))
	p("Average\t%s sats\t\n", core.FormatSats(s.AvgSats))
	p("Essays\t%s sats (%d)\t%s\n", core.FormatSats(s.EssaySats), s.EssayCount, core.FormatUSD(s.EssayUSD))
	p("General\t%s sats (%d)\t%s\n", core.FormatSats(s.GeneralSats), s.GeneralCount, core.FormatUSD(s.GeneralUSD))
	p("BTC price\t%s\t\n", core.FormatUSD(s.BTCPrice))
	p("\n")

	if len(r.Essays) == 0 {
		p("No V4V payments found.\n")
		return tw.Flush()
	}

	p("ESSAY\tSATS\tCOUNT\tLAST PAYMENT\tUSD\n")
	for _, e := range r.Essays {
		p("%s\t%s\t%d\t%s\t%s\n", e.Title, core.FormatSats(e.Sats), e.Count, FormatDay(e.LastPayment), core.FormatUSD(e.USD))
	}
	p("\n")

	p("%s\tSATS\tCOUNT\n", periodHeading(r.Granularity))
	for _, b := range r.Periods {
		p("%s\t%s\t%d\n", b.Key, core.FormatSats(b.Sats), b.Count)
	}
	p("\n")

	if c := r.Comparison; c != nil {
		p("%s vs %s: %+d sats (%s), %+d payments (%s)\n",
			c.Current.Key, c.Previous.Key,
			c.SatsDelta, FormatPct(c.SatsPct),
			c.CountDelta, FormatPct(c.CountPct))
	} else {
		p("Not enough periods to compare.\n")
	}
	return tw.Flush()
}

func periodHeading(g core.Granularity) string {
	switch g {
	case core.Daily:
		return "DAY"
	case core.Monthly:
		return "MONTH"
	default:
		return "WEEK OF"
	}
}
