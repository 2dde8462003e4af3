package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/riliasov/chilekids-etl-pipeline/transform/internal/dlq"
	"github.com/riliasov/chilekids-etl-pipeline/transform/pkg/output"
)

var (
	dlqLimit  int
	dlqOutput string
)

var dlqCmd = &cobra.Command{
	Use:   "dlq",
	Short: "Inspect rows that failed normalization",
}

var dlqListCmd = &cobra.Command{
	Use:   "list",
	Short: "List dead-lettered rows",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if !output.ValidFormat(dlqOutput) {
			return fmt.Errorf("unknown output format %q", dlqOutput)
		}
		queue, err := openQueue()
		if err != nil {
			return err
		}
		records, err := queue.List(cmd.Context(), dlqLimit)
		if err != nil {
			return err
		}
		return output.Render(cmd.OutOrStdout(), dlqOutput, records, func() *output.Table {
			table := output.NewTable("TIME", "SOURCE", "RAW ID", "ERROR")
			for _, rec := range records {
				table.AddRow(rec.Timestamp.Format(time.RFC3339), rec.Source, rec.RawID, rec.Error)
			}
			return table
		})
	},
}

var dlqStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show dead-letter directory statistics",
	RunE: func(cmd *cobra.Command, _ []string) error {
		queue, err := openQueue()
		if err != nil {
			return err
		}
		return output.JSON(cmd.OutOrStdout(), queue.Stats())
	},
}

var dlqDeleteCmd = &cobra.Command{
	Use:   "delete <raw-id>",
	Short: "Remove the entries of one raw row",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		queue, err := openQueue()
		if err != nil {
			return err
		}
		n, err := queue.Delete(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		output.Success(cmd.OutOrStdout(), "deleted %d entries for %s", n, args[0])
		return nil
	},
}

var dlqPurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Remove every dead-letter entry",
	RunE: func(cmd *cobra.Command, _ []string) error {
		queue, err := openQueue()
		if err != nil {
			return err
		}
		n, err := queue.Purge(cmd.Context())
		if err != nil {
			return err
		}
		output.Success(cmd.OutOrStdout(), "purged %d entries", n)
		return nil
	},
}

func openQueue() (*dlq.Queue, error) {
	if !cfg.DLQ.Enabled {
		return nil, dlq.ErrDisabled
	}
	return dlq.NewQueue(cfg.DLQ.BasePath, logger)
}

func init() {
	dlqListCmd.Flags().IntVar(&dlqLimit, "limit", 50, "maximum entries to list (0 for all)")
	dlqListCmd.Flags().StringVarP(&dlqOutput, "output", "o", output.FormatTable, "output format: table, json, yaml")

	dlqCmd.AddCommand(dlqListCmd, dlqStatsCmd, dlqDeleteCmd, dlqPurgeCmd)
	rootCmd.AddCommand(dlqCmd)
}
