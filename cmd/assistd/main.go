// Assistd is the adaptive assistant daemon: an HTTP chat service that
// routes each message to the cheapest capable model, assembles context
// from conversation history and retrieval, and learns model preferences
// from user feedback.
//
// Configuration is loaded from ~/.config/assistd/config.yaml with
// environment variable overrides. See internal/config for details.
//
// Usage:
//
//	# Start the daemon with defaults
//	assistd serve
//
//	# Configure via environment
//	SERVER_HTTP_PORT=8081 assistd serve
package main

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
	"go.uber.org/zap"

	"github.com/warhack811/ai/internal/config"
	"github.com/warhack811/ai/internal/logging"
	"github.com/warhack811/ai/internal/services"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "assistd",
	Short: "Adaptive assistant daemon",
	Long: `assistd serves an adaptive chat API: complexity-based model routing,
context assembly from history and retrieval, quality-gated generation
and feedback-driven learning.`,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the assistant HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return run()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("assistd\n")
		fmt.Printf("Version:    %s\n", version)
		fmt.Printf("Commit:     %s\n", gitCommit)
		fmt.Printf("Build Date: %s\n", buildDate)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file (default ~/.config/assistd/config.yaml)")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// run starts the daemon and blocks until a shutdown signal arrives.
//
//  1. Loads and validates configuration
//  2. Initializes the structured logger
//  3. Builds the service graph (backends, stores, index, pipeline)
//  4. Starts the learn worker and HTTP server
//  5. Performs graceful shutdown on SIGINT/SIGTERM
func run() error {
	if err := config.EnsureConfigDir(); err != nil {
		return err
	}

	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger, err := logging.NewLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	logger.Info("starting assistd",
		zap.String("version", version),
		zap.Int("port", cfg.Server.Port),
		zap.Int("backends", len(cfg.Backends)),
		zap.Duration("shutdown_timeout", cfg.Server.ShutdownTimeout))

	reg, err := services.Build(cfg, logger)
	if err != nil {
		return fmt.Errorf("building services: %w", err)
	}
	defer func() {
		if err := reg.Close(); err != nil {
			logger.Warn("closing services", zap.Error(err))
		}
	}()

	reg.Pipeline().Start()
	defer reg.Pipeline().Stop()

	srv, err := services.NewHTTPServer(reg, cfg, logger)
	if err != nil {
		return fmt.Errorf("building http server: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Expired cache entries are swept periodically.
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if n := reg.Cache().Sweep(); n > 0 {
					logger.Debug("cache sweep", zap.Int("evicted", n))
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("received signal, shutting down", zap.String("signal", sig.String()))
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}

	logger.Info("shutdown complete")
	return nil
}
