package main

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"v4v/internal/cli"
	"v4v/internal/services"
)

// fetchContext bounds a wallet fetch by the configured timeout.
func fetchContext(cmd *cobra.Command, rt *runtime) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if rt.cfg.FetchTimeout > 0 {
		return context.WithTimeout(ctx, rt.cfg.FetchTimeout)
	}
	return context.WithCancel(ctx)
}

func fetchCmd(rt *runtime) *cobra.Command {
	var (
		noCache bool
		events  bool
	)

	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Update the local snapshot from the wallet",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := cli.NewApp(rt.cfg, rt.logger, cli.AppOptions{
				Wallet:      true,
				IgnoreCache: noCache,
				Events:      events,
			})
			if err != nil {
				return err
			}
			defer app.Close()

			ctx, cancel := fetchContext(cmd, rt)
			defer cancel()

			res, err := runFetch(ctx, cmd, app)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s new, %s total in %d batches\n",
				humanize.Comma(int64(res.NewCount)),
				humanize.Comma(int64(len(res.Transactions))),
				res.Batches)
			if res.Degraded() {
				fmt.Fprintf(out, "warning: %s\n", res.Warning)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&noCache, "no-cache", false, "Refetch the full wallet history")
	cmd.Flags().BoolVar(&events, "publish", false, "Publish a report-updated event when AMQP is configured")
	return cmd
}

// runFetch streams progress to stderr. When events are enabled the fetch goes
// through the report service so the update is published.
func runFetch(ctx context.Context, cmd *cobra.Command, app *cli.App) (services.FetchResult, error) {
	if app.Publisher != nil {
		return app.Reports.Refresh(ctx)
	}

	progress, outcome := app.Pipeline.Stream(ctx)
	for n := range progress {
		fmt.Fprintf(cmd.ErrOrStderr(), "\rfetched %d new", n)
	}
	fmt.Fprintln(cmd.ErrOrStderr())

	o := <-outcome
	return o.Result, o.Err
}
