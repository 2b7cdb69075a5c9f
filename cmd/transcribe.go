package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/1lker/turkish-transcribe/internal/history"
	"github.com/1lker/turkish-transcribe/internal/models"
	"github.com/1lker/turkish-transcribe/internal/session"
	"github.com/1lker/turkish-transcribe/internal/transport"
	"github.com/1lker/turkish-transcribe/pkg/config"
)

var (
	transcribeModel    string
	transcribeLanguage string
	transcribeFormat   string
	transcribeNoPush   bool
	transcribeNoSave   bool
)

// transcribeCmd represents the transcribe command
var transcribeCmd = &cobra.Command{
	Use:   "transcribe <file>",
	Short: "Upload a media file and transcribe it",
	Long: `Upload a local media file, submit a transcription job and follow it to
completion. The finished transcript is written next to the source file (or
into the configured output directory) and recorded in the local history.

Example:
  turkish-transcribe transcribe interview.mp3
  turkish-transcribe transcribe lecture.wav --model large-v3 --format srt`,
	Args: cobra.ExactArgs(1),
	RunE: runTranscribe,
}

func init() {
	rootCmd.AddCommand(transcribeCmd)

	transcribeCmd.Flags().StringVar(&transcribeModel, "model", "", "whisper model size (overrides config)")
	transcribeCmd.Flags().StringVar(&transcribeLanguage, "language", "", "spoken language (overrides config)")
	transcribeCmd.Flags().StringVar(&transcribeFormat, "format", "", "artifact format: txt, srt or json")
	transcribeCmd.Flags().BoolVar(&transcribeNoPush, "no-push", false, "disable the push channel, poll only")
	transcribeCmd.Flags().BoolVar(&transcribeNoSave, "no-save", false, "do not record the job in local history")
}

func runTranscribe(cmd *cobra.Command, args []string) error {
	cfg, err := config.GetConfig()
	if err != nil {
		return err
	}

	path := args[0]
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("cannot read %s: %w", path, err)
	}

	opts := jobOptions(cfg)
	format := cfg.Job.OutputFormat
	if transcribeFormat != "" {
		format = transcribeFormat
	}

	controller := session.NewController(newTransport(cfg), session.Options{
		PollInterval:    cfg.Polling.Interval,
		MaxPollInterval: cfg.Polling.MaxInterval,
		DisablePush:     transcribeNoPush || !cfg.Push.Enabled,
		Notifier:        session.LogNotifier{},
	})
	defer controller.Reset()

	// Ctrl-C cancels the session; a second signal kills the process
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		controller.Cancel()
	}()

	if err := controller.Process(ctx, path, opts); err != nil {
		return err
	}

	final, err := controller.Wait(ctx)
	if err != nil {
		return err
	}
	if final.Phase != models.PhaseCompleted {
		return fmt.Errorf("transcription failed: %s", final.Error)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Transcription complete: %.1fs of audio in %.1fs (%d words, model %s)\n",
		final.Result.Duration, final.Result.ProcessingTime, final.Result.WordCount, final.Result.Model)

	artifact, err := controller.DownloadArtifact(ctx, format)
	if err != nil {
		return fmt.Errorf("downloading artifact: %w", err)
	}

	target := artifactPath(cfg.Storage.OutputDir, path, format)
	if err := os.WriteFile(target, artifact, 0o644); err != nil {
		return fmt.Errorf("writing artifact: %w", err)
	}
	fmt.Fprintf(out, "Saved %s\n", target)

	if !transcribeNoSave {
		saveHistory(ctx, cfg.Storage.HistoryPath, final, filepath.Base(path))
	}
	return nil
}

// jobOptions merges config defaults with command flags
func jobOptions(cfg *config.Config) models.TranscribeOptions {
	opts := models.TranscribeOptions{
		ModelSize:      cfg.Job.ModelSize,
		Language:       cfg.Job.Language,
		Device:         cfg.Job.Device,
		ApplyVAD:       cfg.Job.ApplyVAD,
		NormalizeAudio: cfg.Job.NormalizeAudio,
		OutputFormat:   cfg.Job.OutputFormat,
		Temperature:    cfg.Job.Temperature,
	}
	if transcribeModel != "" {
		opts.ModelSize = transcribeModel
	}
	if transcribeLanguage != "" {
		opts.Language = transcribeLanguage
	}
	return opts
}

// newTransport builds the API client from config
func newTransport(cfg *config.Config) session.Transport {
	return session.WrapClient(transport.NewClient(transport.Config{
		BaseURL:         cfg.Server.BaseURL,
		UserAgent:       cfg.Server.UserAgent,
		UploadTimeout:   cfg.Server.UploadTimeout,
		StatusTimeout:   cfg.Server.StatusTimeout,
		StatusRateLimit: rate.Limit(cfg.Server.StatusRateLimit),
	}))
}

func artifactPath(outputDir, sourcePath, format string) string {
	base := filepath.Base(sourcePath)
	name := base[:len(base)-len(filepath.Ext(base))] + "." + format
	return filepath.Join(outputDir, name)
}

func saveHistory(ctx context.Context, dbPath string, final models.JobState, fileName string) {
	store, err := history.Open(dbPath)
	if err != nil {
		log.Printf("[ERROR] Opening history database: %v", err)
		return
	}
	defer store.Close()

	if err := store.SaveResult(ctx, final.JobID, fileName, final.Result); err != nil {
		log.Printf("[ERROR] Recording job in history: %v", err)
	}
}
