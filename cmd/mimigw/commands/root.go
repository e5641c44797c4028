package commands

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "mimigw",
	Short: "Voice and document gateway for MimiClaw devices",
	Long: `mimigw bridges ESP32-class MimiClaw devices to cloud speech and
document-understanding services.

It runs two listeners:
  - a WebSocket endpoint carrying device audio sessions (PCM capture in,
    transcripts and synthesized speech frames out)
  - an HTTP side channel for one-shot transcription, image understanding
    and document uploads, plus health and metrics

Example:
  mimigw serve --config gateway.yaml
  mimigw serve --http-port 8090 --port 8091 --model small`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initLogging)
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

func initLogging() {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}
