package commands

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/riliasov/chilekids-etl-pipeline/transform/internal/changeset"
	"github.com/riliasov/chilekids-etl-pipeline/transform/pkg/output"
)

var (
	hashesSource  string
	hashesOutput  string
	backfillBatch int
)

var hashesCmd = &cobra.Command{
	Use:   "hashes",
	Short: "Report fingerprint coverage of the raw layer",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if !output.ValidFormat(hashesOutput) {
			return fmt.Errorf("unknown output format %q", hashesOutput)
		}
		ctx := cmd.Context()
		store, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		stats, err := store.FingerprintStats(ctx, firstNonEmpty(hashesSource, cfg.Pipeline.Source))
		if err != nil {
			return err
		}
		return output.Render(cmd.OutOrStdout(), hashesOutput, stats, func() *output.Table {
			table := output.NewTable("SOURCE", "TOTAL", "FILLED", "MISSING")
			table.AddRow(stats.Source,
				strconv.FormatInt(stats.Total, 10),
				strconv.FormatInt(stats.Filled, 10),
				strconv.FormatInt(stats.Missing, 10),
			)
			return table
		})
	},
}

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Compute and store missing raw fingerprints",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		store, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		res, err := changeset.New(store, logger).Backfill(ctx, firstNonEmpty(hashesSource, cfg.Pipeline.Source), backfillBatch)
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		output.Success(w, "stored %d fingerprints", res.Updated)
		if res.Skipped > 0 {
			output.Warn(w, "%d rows have undecodable payloads and were skipped", res.Skipped)
		}
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{hashesCmd, backfillCmd} {
		c.Flags().StringVar(&hashesSource, "source", "", "raw source (default: pipeline.source)")
	}
	hashesCmd.Flags().StringVarP(&hashesOutput, "output", "o", output.FormatTable, "output format: table, json, yaml")
	backfillCmd.Flags().IntVar(&backfillBatch, "batch", changeset.DefaultBackfillBatch, "rows per update batch")

	rootCmd.AddCommand(hashesCmd, backfillCmd)
}
