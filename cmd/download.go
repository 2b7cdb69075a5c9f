package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/1lker/turkish-transcribe/internal/models"
	"github.com/1lker/turkish-transcribe/pkg/config"
)

var downloadFormat string

// downloadCmd represents the download command
var downloadCmd = &cobra.Command{
	Use:   "download <job-id>",
	Short: "Download the transcript artifact of a completed job",
	Args:  cobra.ExactArgs(1),
	RunE:  runDownload,
}

func init() {
	rootCmd.AddCommand(downloadCmd)
	downloadCmd.Flags().StringVar(&downloadFormat, "format", "txt", "artifact format: txt, srt or json")
}

func runDownload(cmd *cobra.Command, args []string) error {
	cfg, err := config.GetConfig()
	if err != nil {
		return err
	}

	jobID := args[0]
	data, err := newTransport(cfg).FetchArtifact(context.Background(), jobID, downloadFormat)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return fmt.Errorf("no %s artifact for job %s (job missing or not completed)", downloadFormat, jobID)
		}
		return err
	}

	target := filepath.Join(cfg.Storage.OutputDir, jobID+"."+downloadFormat)
	if err := os.WriteFile(target, data, 0o644); err != nil {
		return fmt.Errorf("writing artifact: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Saved %s\n", target)
	return nil
}
