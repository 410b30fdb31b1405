package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"v4v/internal/cli"
	"v4v/internal/config"
	"v4v/internal/log"
)

var Version = "dev"

// runtime is the state every subcommand starts from.
type runtime struct {
	cfg    *config.Config
	logger *log.Logger
}

func main() {
	rt := &runtime{}

	rootCmd := &cobra.Command{
		Use:           "v4v",
		Short:         "Value-for-value Lightning payment analytics",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cli.LoadEnvFile()
			cfg, err := cli.LoadAndValidateConfig()
			if err != nil {
				return err
			}
			rt.cfg = cfg
			rt.logger = cli.SetupLogger(cfg, cmd.ErrOrStderr())
			return nil
		},
	}

	rootCmd.AddCommand(reportCmd(rt))
	rootCmd.AddCommand(fetchCmd(rt))
	rootCmd.AddCommand(cacheCmd(rt))
	rootCmd.AddCommand(serveCmd(rt))
	rootCmd.AddCommand(exportCmd(rt))
	rootCmd.AddCommand(eventsCmd(rt))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
