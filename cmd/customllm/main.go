// Package main is the entry point for the custom LLM server and its client commands.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"customllm/config"
	"customllm/internal/app"
	"customllm/internal/logging"
	"customllm/internal/version"

	// Import provider packages to trigger their init() registration
	_ "customllm/internal/providers/anthropic"
	_ "customllm/internal/providers/gemini"
	_ "customllm/internal/providers/ollama"
	_ "customllm/internal/providers/openai"
	_ "customllm/internal/providers/placeholder"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configFile string

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), configFile)
		},
	}

	rootCmd := &cobra.Command{
		Use:           "customllm",
		Short:         "OpenAI-compatible chat completion server for Vapi",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		// Running without a subcommand starts the server
		RunE: serveCmd.RunE,
	}
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default: $CONFIG_FILE or ./config.yaml)")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.Info())
		},
	}

	rootCmd.AddCommand(serveCmd, versionCmd, newChatCmd(), newModelsCmd(), newHealthCmd())
	return rootCmd
}

func serve(ctx context.Context, configFile string) error {
	if configFile != "" {
		if err := os.Setenv("CONFIG_FILE", configFile); err != nil {
			return err
		}
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := logging.Setup(logging.Options{Format: cfg.Logging.Format, Debug: cfg.Server.Debug})

	// Log the version immediately on startup
	logger.Info("starting customllm",
		"version", version.Version,
		"commit", version.Commit,
		"build_date", version.Date,
	)

	if ctx == nil {
		ctx = context.Background()
	}
	application, err := app.New(ctx, cfg, app.Options{Logger: logger})
	if err != nil {
		return err
	}

	// Handle graceful shutdown
	shutdownDone := make(chan error, 1)
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit

		logger.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		shutdownDone <- application.Shutdown(shutdownCtx)
	}()

	if err := application.Start(cfg.Server.Address()); err != nil {
		_ = application.Shutdown(context.Background())
		return err
	}

	if err := <-shutdownDone; err != nil {
		slog.Error("shutdown error", "error", err)
		return err
	}
	return nil
}
