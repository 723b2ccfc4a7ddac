package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/dwsmith1983/contractsync/internal/app"
	"github.com/dwsmith1983/contractsync/internal/config"
	"github.com/dwsmith1983/contractsync/internal/server"
	"github.com/dwsmith1983/contractsync/internal/server/handlers"
	"github.com/dwsmith1983/contractsync/internal/telemetry"
)

// NewServeCmd creates the serve command.
func NewServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the Connect webhook HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(ctx context.Context) error {
	cfg, err := config.Load(ConfigDir)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := slog.Default()

	tel, err := telemetry.Setup(ctx, "contractsync-server", cfg.OTLPEndpoint)
	if err != nil {
		return fmt.Errorf("setting up telemetry: %w", err)
	}

	d, err := app.Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if err := d.Store.Ping(ctx); err != nil {
		return fmt.Errorf("connecting to %s store: %w", cfg.Store, err)
	}

	h := handlers.New(d.Store, d.Reconcile, d.Verifier)
	h.SetLogger(logger)
	if !d.Verifier.Enabled() {
		color.Yellow("⚠ No Connect HMAC key configured; webhook signatures are not verified")
	}

	srv := server.New(cfg.Server.Addr, h, cfg.Server.APIKey, cfg.Server.MaxRequestBody)

	// Graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case err := <-errCh:
		_ = d.Close()
		return err
	case sig := <-sigCh:
		color.Yellow("\nReceived %s, shutting down...", sig)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Stop(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		_ = d.Close()
		_ = tel.Shutdown(shutdownCtx)
		color.Green("Server stopped gracefully")
		return nil
	}
}
