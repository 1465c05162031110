// Package app implements the main application commands.
package app

import (
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/confstore/confstore/internal/config"
	"github.com/confstore/confstore/internal/daemon"
	"github.com/confstore/confstore/internal/logger"
)

var (
	configPath string // Path to the configuration directory

	cfg config.Config

	rootCmd = &cobra.Command{
		Use:   "confstore",
		Short: "confstore is a category scoped settings store",
		Long: `confstore persists nested settings grouped by category in a relational
database, merges them with configured defaults and serves them through a JSON API.`,
		Args:         cobra.OnlyValidArgs,
		SilenceUsage: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			var err error

			if cfg, err = config.ReadConfig(configPath); err != nil {
				return err
			}

			return errors.Wrap(logger.Init(cfg.Log), "failed to initialise logger")
		},
	}
)

func init() { //nolint: gochecknoinits
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to the configuration directory (default ./etc/)")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// openDaemon opens the database and builds the settings store without starting the web service.
func openDaemon() (*daemon.Daemon, error) {
	return daemon.New(&cfg)
}
