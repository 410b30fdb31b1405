package main

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"v4v/internal/backend"
	"v4v/internal/cli"
	"v4v/internal/log"
	"v4v/internal/services"
)

func exportCmd(rt *runtime) *cobra.Command {
	var (
		flags  reportFlags
		sqlite string
		sheets bool
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the report to SQLite or Google Sheets",
		Example: `  v4v export --sqlite out.db
  v4v export --sheets --granularity monthly
  v4v export --sqlite out.db --sheets --offline`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			targets := backend.Targets{SQLite: sqlite != "", Sheets: sheets}
			if !targets.SQLite && !targets.Sheets {
				return errors.New("choose at least one target: --sqlite <file> or --sheets")
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

			bcfg := app.Backend
			if sqlite != "" {
				bcfg.SQLiteDBPath = sqlite
			}

			ctx, cancel := fetchContext(cmd, rt)
			defer cancel()

			res, err := app.Factory.CreateExporters(ctx, bcfg, targets)
			if err != nil {
				return err
			}
			defer func() {
				if err := res.Cleanup(); err != nil {
					rt.logger.Warn("Failed to close exporters", log.FieldError, err)
				}
			}()

			refs, err := app.Reports.Export(ctx, services.ReportRequest{Options: opts, Offline: flags.offline}, res.Exporters...)
			printRefs(cmd, refs)
			return err
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&sqlite, "sqlite", "", "SQLite database file to write")
	cmd.Flags().BoolVar(&sheets, "sheets", false, "Write to the spreadsheet named by GOOGLE_SPREADSHEET_ID")
	return cmd
}

func printRefs(cmd *cobra.Command, refs map[string]string) {
	names := make([]string, 0, len(refs))
	for name := range refs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", name, refs[name])
	}
}
