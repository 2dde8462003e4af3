package commands

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/riliasov/chilekids-etl-pipeline/transform/internal/dlq"
	"github.com/riliasov/chilekids-etl-pipeline/transform/internal/events"
	"github.com/riliasov/chilekids-etl-pipeline/transform/internal/pipeline"
	"github.com/riliasov/chilekids-etl-pipeline/transform/pkg/output"
)

var (
	runTestMode   bool
	runSource     string
	runSourceType string
	runOutput     string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Normalize new and changed raw rows into staging",
	Long: `Select raw rows whose fingerprint has no staging record, normalize them
and upsert the results.

Examples:
  # Full incremental run
  sheetflow run

  # Process at most pipeline.test_limit rows and print samples
  sheetflow run --test --output yaml`,
	RunE: runTransform,
}

func init() {
	runCmd.Flags().BoolVar(&runTestMode, "test", false, "limit the run to pipeline.test_limit rows and show samples")
	runCmd.Flags().StringVar(&runSource, "source", "", "raw source to process (default: pipeline.source)")
	runCmd.Flags().StringVar(&runSourceType, "source-type", "", "source_type stamped on staging rows (default: pipeline.source_type)")
	runCmd.Flags().StringVarP(&runOutput, "output", "o", output.FormatTable, "output format: table, json, yaml")
	rootCmd.AddCommand(runCmd)
}

func runTransform(cmd *cobra.Command, _ []string) error {
	if !output.ValidFormat(runOutput) {
		return fmt.Errorf("unknown output format %q", runOutput)
	}
	ctx := cmd.Context()

	store, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	runner := pipeline.New(store, store, newNormalizer(cfg), pipelineConfig(cfg), logger)
	if cfg.DLQ.Enabled {
		queue, err := dlq.NewQueue(cfg.DLQ.BasePath, logger)
		if err != nil {
			return err
		}
		runner.WithDeadLetter(queue)
	}
	if bus := connectNATS(cfg); bus != nil {
		defer bus.Close()
		runner.WithEvents(events.NewPublisher(bus))
	}
	if stats := connectRunStats(cfg); stats != nil {
		defer stats.Close()
		runner.WithStats(stats)
	}

	source := firstNonEmpty(runSource, cfg.Pipeline.Source)
	summary, runErr := runner.Run(ctx, pipeline.Options{
		TestMode:   runTestMode,
		Source:     source,
		SourceType: firstNonEmpty(runSourceType, cfg.Pipeline.SourceType),
	})
	if summary != nil {
		if err := renderSummary(cmd.OutOrStdout(), runOutput, summary); err != nil {
			return err
		}
	}
	return runErr
}

func renderSummary(w io.Writer, format string, s *pipeline.Summary) error {
	if format != output.FormatTable {
		return output.Render(w, format, s, nil)
	}

	table := output.NewTable("METRIC", "VALUE")
	table.AddRow("run_id", s.RunID)
	table.AddRow("source", s.Source)
	table.AddRow("records_found", strconv.Itoa(s.RecordsFound))
	table.AddRow("records_normalized", strconv.Itoa(s.RecordsNormalized))
	table.AddRow("normalization_errors", strconv.Itoa(s.NormalizationErrors))
	table.AddRow("records_upserted", strconv.Itoa(s.RecordsUpserted))
	table.AddRow("records_failed", strconv.Itoa(s.RecordsFailed))
	table.AddRow("fingerprints_repaired", strconv.Itoa(s.FingerprintsRepaired))
	table.AddRow("bytes", strconv.FormatInt(s.Bytes, 10))
	table.AddRow("error_rate", strconv.FormatFloat(s.ErrorRate, 'f', 4, 64))
	table.AddRow("query", s.Durations.Query.String())
	table.AddRow("normalize", s.Durations.Normalize.String())
	table.AddRow("upsert", s.Durations.Upsert.String())
	table.AddRow("total", s.Durations.Total.String())
	table.Render(w)

	if s.Alert {
		output.Warn(w, "normalization error rate %.1f%% is above the threshold", s.ErrorRate*100)
	}
	if s.TestMode && len(s.Samples) > 0 {
		fmt.Fprintln(w)
		output.Info(w, "samples:")
		return output.JSON(w, s.Samples)
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
