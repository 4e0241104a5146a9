package main

import (
	"context"
	"errors"
	"math/rand"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

func newSyncCmd() *cobra.Command {
	var (
		once           bool
		pullOnly       bool
		pushOnly       bool
		interval       time.Duration
		intervalJitter float64
	)
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run the headless sheet sync agent",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if pullOnly && pushOnly {
				return errors.New("--pull-only and --push-only are mutually exclusive")
			}
			return runSync(cmd.Context(), cfg, syncRunOptions{
				once:           once,
				pullOnly:       pullOnly,
				pushOnly:       pushOnly,
				interval:       interval,
				intervalJitter: clampJitterRatio(intervalJitter),
			})
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "run one sync cycle and exit")
	cmd.Flags().BoolVar(&pullOnly, "pull-only", false, "only download remote state")
	cmd.Flags().BoolVar(&pushOnly, "push-only", false, "only upload local state")
	cmd.Flags().DurationVar(&interval, "interval", 15*time.Second, "sync cycle interval")
	cmd.Flags().Float64Var(&intervalJitter, "interval-jitter", 0.2, "sync interval jitter ratio (0.0-1.0)")
	return cmd
}

type syncRunOptions struct {
	once           bool
	pullOnly       bool
	pushOnly       bool
	interval       time.Duration
	intervalJitter float64
}

func runSync(parent context.Context, cfg config, opts syncRunOptions) error {
	logger := newLogger()

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, _, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	if strings.TrimSpace(store.Snapshot().Settings.SheetURL) == "" {
		return errors.New("no sheet URL configured (set WORKLIFE_SHEET_URL or settings.sheetUrl)")
	}

	engine := newSyncEngine(cfg, store, logger)

	run := func() {
		// Pull first so a stale replica converges before it uploads.
		if !opts.pushOnly {
			if err := engine.PullNow(); err != nil {
				logger.Printf("sync pull failed: %v", err)
			}
		}
		if !opts.pullOnly {
			if err := engine.PushNow(); err != nil {
				logger.Printf("sync push failed: %v", err)
			}
		}
	}

	run()
	if opts.once {
		return nil
	}
	if opts.interval <= 0 {
		opts.interval = 15 * time.Second
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	timer := time.NewTimer(jitteredIntervalWithSample(opts.interval, opts.intervalJitter, rng.Float64()))
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Printf("sync agent stopping: %v", ctx.Err())
			return nil
		case <-timer.C:
			run()
			timer.Reset(jitteredIntervalWithSample(opts.interval, opts.intervalJitter, rng.Float64()))
		}
	}
}

func clampJitterRatio(value float64) float64 {
	if value < 0 {
		return 0
	}
	if value > 1 {
		return 1
	}
	return value
}

func jitteredIntervalWithSample(base time.Duration, jitterRatio, sample float64) time.Duration {
	if base <= 0 {
		return 0
	}
	jitterRatio = clampJitterRatio(jitterRatio)
	if jitterRatio == 0 {
		return base
	}
	if sample < 0 {
		sample = 0
	} else if sample > 1 {
		sample = 1
	}
	factor := 1 + ((sample*2)-1)*jitterRatio
	if factor < 0 {
		factor = 0
	}
	delay := time.Duration(float64(base) * factor)
	if delay < time.Millisecond {
		delay = time.Millisecond
	}
	return delay
}
