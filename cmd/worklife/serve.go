package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/worklifeapp/worklife/internal/httpapi"
	"github.com/worklifeapp/worklife/internal/worklife"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API with background sheet sync",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg)
		},
	}
}

func runServe(parent context.Context, cfg config) error {
	logger := newLogger()

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, statePath, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	engine := newSyncEngine(cfg, store, logger)
	engine.Start()
	defer engine.Stop()

	if statePath != "" {
		watchCtx, cancelWatch := context.WithCancel(ctx)
		defer cancelWatch()
		go func() {
			if err := worklife.WatchStateFile(watchCtx, store, statePath, logger); err != nil && !errors.Is(err, context.Canceled) {
				logger.Printf("state watcher stopped: %v", err)
			}
		}()
	}

	// Cadence resets trigger on the first mutation after a boundary too,
	// but an idle instance still needs its XP zeroed on schedule.
	go func() {
		ticker := time.NewTicker(cfg.XPResetCheck)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if store.CheckXPReset() {
					logger.Printf("xp reset applied")
				}
			}
		}
	}()

	server := httpapi.NewServerWithConfig(store, engine, httpapi.ServerConfig{
		BotToken:        cfg.BotToken,
		JWTSecret:       cfg.JWTSecret,
		TokenTTL:        cfg.TokenTTL,
		RateLimitMax:    cfg.RateLimitMax,
		RateLimitWindow: cfg.RateLimitWindow,
		MaxBodyBytes:    cfg.MaxBodyBytes,
	})
	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Printf("worklife listening on %s", cfg.Addr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Printf("shutdown: %v", err)
	}
	return nil
}
