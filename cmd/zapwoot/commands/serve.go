package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jholhewres/zapwoot/pkg/zapwoot/bridge"
)

// newServeCmd creates the `zapwoot serve` command that starts the daemon.
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the bridge daemon",
		Long: `Start Zapwoot as a daemon: connect the WhatsApp session, forward
messages into Chatwoot and serve the HTTP API.

On first run, open /qr in a browser and scan the code with WhatsApp
to pair the session.

Examples:
  zapwoot serve
  zapwoot serve --config ./config.yaml`,
		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, configPath, err := resolveConfig(cmd)
	if err != nil {
		return err
	}

	logger := buildLogger(cmd, cfg)
	if configPath != "" {
		logger.Info("config loaded", "path", configPath)
	}

	// Audit BEFORE starting — checks the raw config values for hardcoded tokens.
	bridge.AuditSecrets(cfg, logger)

	b, err := bridge.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing bridge: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := b.Start(ctx); err != nil {
		return fmt.Errorf("starting bridge: %w", err)
	}

	logger.Info("Zapwoot running. Press Ctrl+C to stop.",
		"http_address", cfg.Server.Address)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received, stopping...")
	cancel()

	// Graceful shutdown with timeout.
	done := make(chan struct{})
	go func() {
		b.Stop()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("shutdown complete")
	case <-time.After(10 * time.Second):
		logger.Warn("shutdown timed out after 10s, forcing exit")
	}

	return nil
}

// resolveConfig loads config from an explicit path or discovers it.
// Returns (config, configPath, error).
func resolveConfig(cmd *cobra.Command) (*bridge.Config, string, error) {
	configPath, _ := cmd.Root().PersistentFlags().GetString("config")

	if configPath != "" {
		cfg, err := bridge.LoadConfigFromFile(configPath)
		if err != nil {
			return nil, "", fmt.Errorf("loading config: %w", err)
		}
		return cfg, configPath, nil
	}

	if found := bridge.FindConfigFile(); found != "" {
		cfg, err := bridge.LoadConfigFromFile(found)
		if err != nil {
			return nil, "", fmt.Errorf("loading config from %s: %w", found, err)
		}
		return cfg, found, nil
	}

	// No config file: defaults plus environment variables still make a
	// runnable bridge when CHATWOOT_* vars are set.
	return bridge.DefaultConfig(), "", nil
}

// buildLogger assembles the slog logger from config and the --verbose flag.
func buildLogger(cmd *cobra.Command, cfg *bridge.Config) *slog.Logger {
	verbose, _ := cmd.Root().PersistentFlags().GetBool("verbose")
	logLevel := slog.LevelInfo
	if verbose || cfg.Logging.Level == "debug" {
		logLevel = slog.LevelDebug
	}

	var handler slog.Handler
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	}
	return slog.New(handler)
}
