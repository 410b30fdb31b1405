package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"v4v/internal/amqp"
	"v4v/internal/backend"
	"v4v/internal/cli"
)

func eventsCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "events",
		Short: "Print report-updated events from the AMQP queue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if rt.cfg.AMQPURL == "" {
				return errors.New("AMQP_URL is not set")
			}
			bcfg, err := backend.FromAppConfig(rt.cfg)
			if err != nil {
				return err
			}
			client := backend.NewFactory(rt.logger).CreatePublisher(bcfg)
			if client == nil {
				return fmt.Errorf("cannot connect to %s", rt.cfg.AMQPExchange)
			}
			defer client.Close()

			ctx, done := cli.GracefulShutdown(cmd.Context(), rt.logger, 5*time.Second, nil)
			out := cmd.OutOrStdout()
			err = client.ConsumeReportUpdated(ctx, func(msg *amqp.ReportUpdatedMessage) error {
				line := fmt.Sprintf("%s  %s  %s sats  +%d new",
					msg.Timestamp.Format(time.RFC3339), msg.Site,
					humanize.Comma(msg.TotalSats), msg.NewCount)
				if msg.Warning != "" {
					line += "  (" + msg.Warning + ")"
				}
				_, err := fmt.Fprintln(out, line)
				return err
			})
			if errors.Is(err, context.Canceled) {
				cli.WaitForShutdown(ctx, done)
				return nil
			}
			return err
		},
	}
}
