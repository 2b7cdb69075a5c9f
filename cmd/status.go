package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/1lker/turkish-transcribe/internal/models"
	"github.com/1lker/turkish-transcribe/pkg/config"
)

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status <job-id>",
	Short: "Fetch the current status of a job",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.GetConfig()
	if err != nil {
		return err
	}

	snap, err := newTransport(cfg).FetchStatus(context.Background(), args[0])
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return fmt.Errorf("job %s not found", args[0])
		}
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Job:      %s\n", snap.JobID)
	fmt.Fprintf(out, "Phase:    %s\n", snap.Phase)
	if snap.HasProgress {
		fmt.Fprintf(out, "Progress: %.0f%%\n", snap.Progress)
	}
	if snap.Stage != "" {
		fmt.Fprintf(out, "Stage:    %s\n", snap.Stage)
	}
	if snap.Error != "" {
		fmt.Fprintf(out, "Error:    %s\n", snap.Error)
	}
	if snap.Result != nil {
		fmt.Fprintf(out, "Words:    %d\n", snap.Result.WordCount)
		fmt.Fprintf(out, "Model:    %s\n", snap.Result.Model)
	}
	return nil
}
