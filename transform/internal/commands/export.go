package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/riliasov/chilekids-etl-pipeline/transform/internal/export"
)

var (
	exportOut   string
	exportLimit int
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write staging records as CSV",
	Long: `Write staging records as CSV, newest payment date first. Records without
a payment date come last.

Examples:
  sheetflow export --out staging.csv
  sheetflow export --limit 50`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		store, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		records, err := store.ListStaging(ctx, exportLimit)
		if err != nil {
			return err
		}

		var w io.Writer = cmd.OutOrStdout()
		if exportOut != "" && exportOut != "-" {
			f, err := os.Create(exportOut)
			if err != nil {
				return fmt.Errorf("failed to create %s: %w", exportOut, err)
			}
			defer f.Close()
			w = f
		}
		if err := export.WriteCSV(w, records); err != nil {
			return err
		}
		logger.InfoContext(ctx, "exported staging records", "records", len(records), "file", exportOut)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportOut, "out", "", "output file (default: stdout)")
	exportCmd.Flags().IntVar(&exportLimit, "limit", 0, "maximum records to export (0 for all)")
	rootCmd.AddCommand(exportCmd)
}
