package commands

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/riliasov/chilekids-etl-pipeline/common/messaging"
	"github.com/riliasov/chilekids-etl-pipeline/common/runstats"
	"github.com/riliasov/chilekids-etl-pipeline/transform/pkg/output"
)

var (
	watchSubject string

	statsSource  string
	statsHistory int64
	statsOutput  string
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print run summaries and alerts from the message bus",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if !cfg.NATS.Enabled {
			return errors.New("nats is disabled; set nats.enabled")
		}
		bus := connectNATS(cfg)
		if bus == nil {
			return fmt.Errorf("failed to connect to NATS at %s", cfg.NATS.URL)
		}
		defer bus.Close()

		w := cmd.OutOrStdout()
		sub, err := bus.Subscribe(watchSubject, func(_ context.Context, msg *messaging.Message) error {
			output.Info(w, "%s %s %s", msg.Timestamp.Format(time.RFC3339), msg.Subject, msg.Metadata[messaging.HeaderRunID])
			fmt.Fprintln(w, string(msg.Data))
			return nil
		})
		if err != nil {
			return err
		}
		defer sub.Unsubscribe()

		output.Success(w, "watching %s, press Ctrl+C to stop", watchSubject)
		<-cmd.Context().Done()
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show recorded runs of a source",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if !output.ValidFormat(statsOutput) {
			return fmt.Errorf("unknown output format %q", statsOutput)
		}
		if !cfg.Redis.Enabled {
			return errors.New("run stats are disabled; set redis.enabled")
		}
		client, err := runstats.NewClient(cfg.Redis.URL)
		if err != nil {
			return err
		}
		defer client.Close()

		runs, err := client.History(cmd.Context(), firstNonEmpty(statsSource, cfg.Pipeline.Source), statsHistory)
		if err != nil {
			return err
		}
		return output.Render(cmd.OutOrStdout(), statsOutput, runs, func() *output.Table {
			return runsTable(runs)
		})
	},
}

func runsTable(runs []runstats.Run) *output.Table {
	table := output.NewTable("STARTED", "RUN ID", "FOUND", "UPSERTED", "ERRORS", "DURATION")
	for _, run := range runs {
		table.AddRow(
			run.StartedAt.Format(time.RFC3339),
			run.RunID,
			strconv.FormatInt(run.RecordsFound, 10),
			strconv.FormatInt(run.RecordsUpserted, 10),
			strconv.FormatInt(run.NormalizationErrors+run.RecordsFailed, 10),
			(time.Duration(run.DurationMS) * time.Millisecond).String(),
		)
	}
	return table
}

func init() {
	watchCmd.Flags().StringVar(&watchSubject, "subject", messaging.SubjectAll, "subject to subscribe to")

	statsCmd.Flags().StringVar(&statsSource, "source", "", "raw source (default: pipeline.source)")
	statsCmd.Flags().Int64Var(&statsHistory, "history", 10, "number of recent runs to show")
	statsCmd.Flags().StringVarP(&statsOutput, "output", "o", output.FormatTable, "output format: table, json, yaml")

	rootCmd.AddCommand(watchCmd, statsCmd)
}
