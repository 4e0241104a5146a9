package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/spf13/cobra"

	"github.com/worklifeapp/worklife/internal/sheetsync"
	"github.com/worklifeapp/worklife/internal/worklife"
)

type config struct {
	Addr            string        `env:"WORKLIFE_ADDR" envDefault:":8080"`
	DataDir         string        `env:"WORKLIFE_DATA_DIR" envDefault:".worklife"`
	CloudDSN        string        `env:"WORKLIFE_CLOUD_DSN"`
	SessionToken    string        `env:"WORKLIFE_SESSION_TOKEN"`
	BotToken        string        `env:"WORKLIFE_BOT_TOKEN"`
	JWTSecret       string        `env:"WORKLIFE_JWT_SECRET"`
	TokenTTL        time.Duration `env:"WORKLIFE_TOKEN_TTL" envDefault:"24h"`
	RateLimitMax    int           `env:"WORKLIFE_RATE_LIMIT_MAX" envDefault:"0"`
	RateLimitWindow time.Duration `env:"WORKLIFE_RATE_LIMIT_WINDOW" envDefault:"1m"`
	MaxBodyBytes    int64         `env:"WORKLIFE_MAX_BODY_BYTES"`
	SheetURL        string        `env:"WORKLIFE_SHEET_URL"`
	SyncDebounce    time.Duration `env:"WORKLIFE_SYNC_DEBOUNCE" envDefault:"5s"`
	SyncPoll        time.Duration `env:"WORKLIFE_SYNC_POLL" envDefault:"15s"`
	XPResetCheck    time.Duration `env:"WORKLIFE_XP_RESET_CHECK" envDefault:"1h"`
}

func loadConfig() (config, error) {
	var cfg config
	if err := env.Parse(&cfg); err != nil {
		return config{}, fmt.Errorf("parse environment: %w", err)
	}
	return cfg, nil
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "worklife",
		Short:         "WorkLife state server and sheet sync agent",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCmd())
	root.AddCommand(newSyncCmd())
	root.AddCommand(newExportCmd())
	return root
}

func newLogger() worklife.Logger {
	return log.New(os.Stderr, "", log.LstdFlags)
}

// openStore picks a backend DSN and hydrates the store from it. The second
// return value is the backing state file path when the file backend was
// chosen, empty otherwise; callers use it to arm the change watcher.
func openStore(cfg config, logger worklife.Logger) (*worklife.Store, string, error) {
	localDSN := "file://" + cfg.DataDir
	dsn := worklife.SelectDSN(cfg.SessionToken, cfg.CloudDSN, localDSN)
	kv, err := worklife.OpenKV(dsn)
	if err != nil {
		return nil, "", fmt.Errorf("open kv backend: %w", err)
	}
	store, err := worklife.NewStore(worklife.StoreOptions{
		KV:     kv,
		Logger: logger,
	})
	if err != nil {
		kv.Close()
		return nil, "", fmt.Errorf("open store: %w", err)
	}

	if cfg.SheetURL != "" && store.Snapshot().Settings.SheetURL == "" {
		store.SetSheetURL(strings.TrimSpace(cfg.SheetURL))
	}

	statePath := ""
	if fileKV, ok := kv.(*worklife.FileKV); ok {
		statePath = fileKV.KeyPath(worklife.StorageKey)
	}
	return store, statePath, nil
}

func newSyncEngine(cfg config, store *worklife.Store, logger worklife.Logger) *sheetsync.Engine {
	return sheetsync.NewEngine(sheetsync.Options{
		Store:    store,
		Client:   sheetsync.NewWebhookClient(&http.Client{Timeout: 30 * time.Second}),
		Logger:   logger,
		Debounce: cfg.SyncDebounce,
		Poll:     cfg.SyncPoll,
	})
}
