package commands

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/riliasov/chilekids-etl-pipeline/common/logging"
	"github.com/riliasov/chilekids-etl-pipeline/transform/internal/models"
	"github.com/riliasov/chilekids-etl-pipeline/transform/internal/rawload"
	"github.com/riliasov/chilekids-etl-pipeline/transform/internal/seeder"
	"github.com/riliasov/chilekids-etl-pipeline/transform/pkg/output"
)

var (
	loadFile     string
	loadSource   string
	loadFirstRow int64

	seedCount  int
	seedSeed   int64
	seedSource string
)

var loadCmd = &cobra.Command{
	Use:   "load",
	Short: "Insert exported sheet rows into the raw layer",
	Long: `Read a JSON array of row objects, or one object per line, and insert
them as raw records. Rows already present are left untouched.

Ids come from an "id", "ID" or "PK" key, or are derived from the sheet row
number and the row content.

Examples:
  sheetflow load --file rows.json
  cat rows.jsonl | sheetflow load --file - --source ads_sheet`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		var in io.Reader = cmd.InOrStdin()
		if loadFile != "-" {
			f, err := os.Open(loadFile)
			if err != nil {
				return fmt.Errorf("failed to open %s: %w", loadFile, err)
			}
			defer f.Close()
			in = f
		}

		records, err := rawload.Read(in, rawload.Options{
			Source:     firstNonEmpty(loadSource, cfg.Pipeline.Source),
			ReceivedAt: time.Now().UTC(),
			FirstRow:   loadFirstRow,
		})
		if err != nil {
			return err
		}
		return insertRaw(cmd, records)
	},
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Insert fake sheet rows into the raw layer",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if seedCount <= 0 {
			return fmt.Errorf("--count must be positive")
		}
		records := seeder.New(seedSeed).Records(firstNonEmpty(seedSource, cfg.Pipeline.Source), seedCount, time.Now().UTC())
		return insertRaw(cmd, records)
	},
}

func init() {
	loadCmd.Flags().StringVarP(&loadFile, "file", "f", "", "rows file, or - for stdin")
	loadCmd.Flags().StringVar(&loadSource, "source", "", "raw source name (default: pipeline.source)")
	loadCmd.Flags().Int64Var(&loadFirstRow, "first-row", rawload.FirstDataRow, "sheet row number of the first row")
	_ = loadCmd.MarkFlagRequired("file")

	seedCmd.Flags().IntVarP(&seedCount, "count", "n", 100, "number of rows to generate")
	seedCmd.Flags().Int64Var(&seedSeed, "seed", 0, "random seed (0 picks one)")
	seedCmd.Flags().StringVar(&seedSource, "source", "", "raw source name (default: pipeline.source)")

	rootCmd.AddCommand(loadCmd, seedCmd)
}

func insertRaw(cmd *cobra.Command, records []models.RawRecord) error {
	ctx := cmd.Context()
	store, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	inserted, err := store.InsertRaw(ctx, records)
	if err != nil {
		return err
	}
	logger.InfoContext(ctx, "inserted raw records",
		logging.Count(inserted),
		"skipped", len(records)-inserted,
	)
	output.Success(cmd.OutOrStdout(), "inserted %d of %d rows (%d already present)", inserted, len(records), len(records)-inserted)
	return nil
}
