package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/1lker/turkish-transcribe/internal/history"
	"github.com/1lker/turkish-transcribe/pkg/config"
)

var historyLimit int

// historyCmd represents the history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recently finished transcription jobs",
	RunE:  runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "maximum number of jobs to list")
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := config.GetConfig()
	if err != nil {
		return err
	}

	store, err := history.Open(cfg.Storage.HistoryPath)
	if err != nil {
		return err
	}
	defer store.Close()

	records, err := store.Recent(context.Background(), historyLimit)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(records) == 0 {
		fmt.Fprintln(out, "No finished jobs recorded yet.")
		return nil
	}

	for _, rec := range records {
		fmt.Fprintf(out, "%s  %-24s  %6.1fs  %5d words  %s\n",
			rec.CreatedAt.Format("2006-01-02 15:04"), rec.FileName, rec.Duration, rec.WordCount, rec.JobID)
	}
	return nil
}
