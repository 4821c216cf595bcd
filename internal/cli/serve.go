package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/defisafe/hotwallet/internal/api"
	"github.com/defisafe/hotwallet/internal/walleterrors"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the wallet HTTP API server",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := newLogger()

	cfg, err := loadConfig(cfgFile)
	if err != nil {
		return err
	}
	if cfg.Production && cfg.APIKey == "" {
		return walleterrors.New(walleterrors.KindConfig, "API_KEY must be set before serving in production")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mgr, err := buildManager(ctx, cfg, logger)
	if err != nil {
		return err
	}

	if err := mgr.Start(ctx); err != nil {
		return err
	}
	defer mgr.Stop()

	limiter := api.NewTokenBucketLimiter(cfg.RateLimitPerSec, cfg.RateLimitBurst)
	server := api.New(mgr, cfg, limiter, api.NewMetrics())

	httpServer := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      server,
		ReadTimeout:  cfg.RequestTimeout,
		WriteTimeout: cfg.RequestTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
