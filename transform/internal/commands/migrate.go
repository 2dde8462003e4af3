package commands

import (
	"github.com/spf13/cobra"

	"github.com/riliasov/chilekids-etl-pipeline/transform/internal/repository"
	"github.com/riliasov/chilekids-etl-pipeline/transform/pkg/output"
)

var migrateCmd = &cobra.Command{
	Use:       "migrate [up|down]",
	Short:     "Apply or roll back the raw and staging schema",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{repository.MigrateUp, repository.MigrateDown},
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := repositoryOptions(cfg)
		if err := repository.Migrate(opts, args[0]); err != nil {
			return err
		}
		output.Success(cmd.OutOrStdout(), "migrations %s applied (%s)", args[0], opts.Type)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
