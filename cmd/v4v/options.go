package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"v4v/internal/core"
	"v4v/internal/report"
)

// reportFlags are shared by the commands that build a report.
type reportFlags struct {
	granularity string
	sort        string
	since       string
	days        int
	top         int
	offline     bool
	noCache     bool
}

func (f *reportFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.granularity, "granularity", "g", "weekly", "Period granularity (daily, weekly, monthly)")
	cmd.Flags().StringVarP(&f.sort, "sort", "s", "sats", "Essay order (sats, count, recent)")
	cmd.Flags().StringVar(&f.since, "since", "", "Only include payments on or after this date (YYYY-MM-DD)")
	cmd.Flags().IntVar(&f.days, "days", 0, "Only include payments from the last N days")
	cmd.Flags().IntVarP(&f.top, "top", "n", 0, "Show only the top N essays")
	cmd.Flags().BoolVar(&f.offline, "offline", false, "Use cached transactions without contacting the wallet")
	cmd.Flags().BoolVar(&f.noCache, "no-cache", false, "Refetch the full wallet history")
	cmd.MarkFlagsMutuallyExclusive("since", "days")
	cmd.MarkFlagsMutuallyExclusive("offline", "no-cache")
}

func (f *reportFlags) options(now time.Time) (report.Options, error) {
	g, err := core.ParseGranularity(f.granularity)
	if err != nil {
		return report.Options{}, err
	}
	if f.top < 0 {
		return report.Options{}, fmt.Errorf("invalid --top %d: must not be negative", f.top)
	}

	opts := report.Options{
		Granularity: g,
		Sort:        core.ParseSortMode(f.sort),
		Top:         f.top,
	}
	switch {
	case f.since != "":
		t, err := time.ParseInLocation(time.DateOnly, f.since, time.UTC)
		if err != nil {
			return report.Options{}, fmt.Errorf("invalid --since %q: expected YYYY-MM-DD", f.since)
		}
		opts.Since = t
	case f.days < 0:
		return report.Options{}, fmt.Errorf("invalid --days %d: must not be negative", f.days)
	case f.days > 0:
		midnight := now.UTC().Truncate(24 * time.Hour)
		opts.Since = midnight.AddDate(0, 0, -f.days)
	}
	return opts, nil
}
