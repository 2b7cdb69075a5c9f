package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/1lker/turkish-transcribe/pkg/config"
)

var configPath string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "turkish-transcribe",
	Short: "Client for the Turkish transcription service",
	Long: `turkish-transcribe drives transcription jobs on a remote Whisper-based
transcription service: it uploads media, submits the job, follows progress
over polling and a push channel, and downloads the finished transcript.

Features:
  • One-shot transcription with live progress
  • Status checks and artifact downloads for existing jobs
  • Local history of finished jobs
  • Built-in stub server for offline development`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

// NewRootCmd creates a new root command (exported for testing)
func NewRootCmd() *cobra.Command {
	return rootCmd
}

func init() {
	cobra.OnInitialize(loadConfig)

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ./config/settings.yaml)")
	rootCmd.PersistentFlags().String("server", "", "transcription server base URL (overrides config)")
	_ = viper.BindPFlag("server.base_url", rootCmd.PersistentFlags().Lookup("server"))
}

// loadConfig loads the configuration when a command needs it
func loadConfig() {
	cmd, _, _ := rootCmd.Find(os.Args[1:])
	if cmd != nil && (cmd.Name() == "version" || cmd.Name() == "help") {
		return
	}

	if err := config.Init(configPath); err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing config: %v\n", err)
		os.Exit(1)
	}
}
