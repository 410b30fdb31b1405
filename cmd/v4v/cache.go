package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"v4v/internal/cli"
	"v4v/internal/report"
)

func cacheCmd(rt *runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or clear the local caches",
	}
	cmd.AddCommand(cacheStatsCmd(rt), cacheClearCmd(rt))
	return cmd
}

func cacheStatsCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show snapshot and title cache details",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := cli.NewApp(rt.cfg, rt.logger, cli.AppOptions{})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			fmt.Fprintln(out, "Transactions")
			fmt.Fprintln(out, strings.Repeat("=", 40))
			if s := app.Snapshot.Stats(); s == nil {
				fmt.Fprintf(out, "  Path:     %s (missing)\n", app.Snapshot.Path())
			} else {
				fmt.Fprintf(out, "  Path:     %s\n", s.Path)
				fmt.Fprintf(out, "  Size:     %s\n", humanize.Bytes(uint64(s.SizeBytes)))
				fmt.Fprintf(out, "  Count:    %s\n", humanize.Comma(int64(s.Count)))
				fmt.Fprintf(out, "  Updated:  %s\n", when(s.Updated))
				if s.Oldest != nil && s.Newest != nil {
					fmt.Fprintf(out, "  Range:    %s to %s\n", report.FormatDay(*s.Oldest), report.FormatDay(*s.Newest))
				}
			}

			fmt.Fprintln(out, "\nTitles")
			fmt.Fprintln(out, strings.Repeat("=", 40))
			if s := app.Titles.Stats(); s == nil {
				fmt.Fprintln(out, "  (no title cache)")
			} else {
				state := "stale"
				if s.Fresh {
					state = "fresh"
				}
				fmt.Fprintf(out, "  Path:     %s\n", s.Path)
				fmt.Fprintf(out, "  Size:     %s\n", humanize.Bytes(uint64(s.SizeBytes)))
				fmt.Fprintf(out, "  Count:    %d (%s)\n", s.Count, state)
				fmt.Fprintf(out, "  Fetched:  %s\n", when(s.Fetched))
			}
			return nil
		},
	}
}

func cacheClearCmd(rt *runtime) *cobra.Command {
	var titlesOnly bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete the cached snapshot and titles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := cli.NewApp(rt.cfg, rt.logger, cli.AppOptions{})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if !titlesOnly {
				printCleared(out, "transactions", app.Snapshot.Clear())
			}
			printCleared(out, "titles", app.Titles.Clear())
			return nil
		},
	}
	cmd.Flags().BoolVar(&titlesOnly, "titles", false, "Only clear the title cache")
	return cmd
}

func printCleared(w io.Writer, name string, removed bool) {
	if removed {
		fmt.Fprintf(w, "cleared %s cache\n", name)
		return
	}
	fmt.Fprintf(w, "no %s cache to clear\n", name)
}

func when(t time.Time) string {
	if t.IsZero() {
		return "unknown"
	}
	return fmt.Sprintf("%s (%s)", t.Format(time.RFC3339), humanize.Time(t))
}
