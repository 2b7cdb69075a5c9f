package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/1lker/turkish-transcribe/internal/stubserver"
)

var (
	stubPort      int
	stubStepDelay time.Duration
)

// stubCmd represents the stub command
var stubCmd = &cobra.Command{
	Use:   "stub",
	Short: "Run a local stub of the transcription service",
	Long: `Run an in-memory mock of the remote transcription API for offline
development. Jobs complete on a scripted progress ramp.

Example:
  turkish-transcribe stub --port 8000
  turkish-transcribe transcribe demo.mp3 --server http://localhost:8000`,
	RunE: runStub,
}

func init() {
	rootCmd.AddCommand(stubCmd)

	stubCmd.Flags().IntVar(&stubPort, "port", 8000, "port to listen on")
	stubCmd.Flags().DurationVar(&stubStepDelay, "step-delay", 500*time.Millisecond, "time between scripted progress steps")
}

func runStub(cmd *cobra.Command, args []string) error {
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", stubPort),
		Handler: stubserver.New(stubserver.Options{StepDelay: stubStepDelay}).Handler(),
	}

	errChan := make(chan error, 1)
	go func() {
		fmt.Fprintf(cmd.OutOrStdout(), "Stub transcription service listening on %s\n", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
