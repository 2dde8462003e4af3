// Package commands implements the sheetflow command line.
package commands

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/riliasov/chilekids-etl-pipeline/common/logging"
	"github.com/riliasov/chilekids-etl-pipeline/transform/internal/config"
	"github.com/riliasov/chilekids-etl-pipeline/transform/pkg/color"
)

var (
	cfgFile  string
	logLevel string
	noColor  bool
	cfg      *config.Config
	logger   = logging.Default()
)

var rootCmd = &cobra.Command{
	Use:   "sheetflow",
	Short: "Incremental raw to staging transform",
	Long: `sheetflow normalizes spreadsheet rows stored in the raw layer into the
typed staging table.

Only rows whose content fingerprint has no staging record are processed, so
runs are incremental and safe to repeat.`,
	Version:           "0.1.0",
	SilenceUsage:      true,
	PersistentPreRunE: initConfig,
}

// Execute runs the root command with ctx.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml or /etc/sheetflow/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override logging.level: debug, info, warn, error")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
}

func initConfig(cmd *cobra.Command, _ []string) error {
	loaded, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if logLevel != "" {
		loaded.Logging.Level = logLevel
	}
	if err := loaded.Validate(); err != nil {
		return err
	}

	cfg = loaded
	logger = logging.NewWithWriter(cmd.ErrOrStderr(), logging.ParseLevel(cfg.Logging.Level), cfg.Logging.Format)
	logging.SetDefault(logger)
	color.NoColor = noColor
	return nil
}
