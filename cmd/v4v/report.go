package main

import (
	"time"

	"github.com/spf13/cobra"

	"v4v/internal/cli"
	"v4v/internal/report"
	"v4v/internal/services"
)

func reportCmd(rt *runtime) *cobra.Command {
	var (
		flags  reportFlags
		format string
	)

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Fetch new payments and print the V4V report",
		Long: `Fetch payments newer than the local snapshot, merge them into it and
print totals, per-essay and per-period breakdowns for the configured site.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := report.ParseFormat(format)
			if err != nil {
				return err
			}
			opts, err := flags.options(time.Now())
			if err != nil {
				return err
			}

			app, err := cli.NewApp(rt.cfg, rt.logger, cli.AppOptions{
				Wallet:      !flags.offline,
				IgnoreCache: flags.noCache,
			})
			if err != nil {
				return err
			}
			defer app.Close()

			ctx, cancel := fetchContext(cmd, rt)
			defer cancel()

			rep, err := app.Reports.Generate(ctx, services.ReportRequest{Options: opts, Offline: flags.offline})
			if err != nil {
				return err
			}
			return report.Write(cmd.OutOrStdout(), rep, f)
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVarP(&format, "format", "f", "text", "Output format (text, json, csv)")
	return cmd
}
