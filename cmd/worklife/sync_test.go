package main

import (
	"testing"
	"time"
)

func TestClampJitterRatio(t *testing.T) {
	cases := []struct {
		in, want float64
	}{
		{-0.5, 0},
		{0, 0},
		{0.2, 0.2},
		{1, 1},
		{1.7, 1},
	}
	for _, tc := range cases {
		if got := clampJitterRatio(tc.in); got != tc.want {
			t.Errorf("clampJitterRatio(%v) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestJitteredIntervalWithSample(t *testing.T) {
	base := 10 * time.Second

	if got := jitteredIntervalWithSample(base, 0, 0.9); got != base {
		t.Fatalf("zero jitter = %v, want base", got)
	}
	if got := jitteredIntervalWithSample(base, 0.2, 0.5); got != base {
		t.Fatalf("midpoint sample = %v, want base", got)
	}
	if got := jitteredIntervalWithSample(base, 0.2, 0); got != 8*time.Second {
		t.Fatalf("low sample = %v, want 8s", got)
	}
	if got := jitteredIntervalWithSample(base, 0.2, 1); got != 12*time.Second {
		t.Fatalf("high sample = %v, want 12s", got)
	}
	if got := jitteredIntervalWithSample(0, 0.2, 0.5); got != 0 {
		t.Fatalf("zero base = %v, want 0", got)
	}
	if got := jitteredIntervalWithSample(time.Millisecond, 1, 0); got < time.Millisecond {
		t.Fatalf("floor = %v, want >= 1ms", got)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Addr != ":8080" {
		t.Fatalf("addr = %q", cfg.Addr)
	}
	if cfg.SyncDebounce != 5*time.Second || cfg.SyncPoll != 15*time.Second {
		t.Fatalf("sync timings = %v/%v", cfg.SyncDebounce, cfg.SyncPoll)
	}
	if cfg.TokenTTL != 24*time.Hour {
		t.Fatalf("token ttl = %v", cfg.TokenTTL)
	}
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("WORKLIFE_ADDR", ":9999")
	t.Setenv("WORKLIFE_SYNC_POLL", "1m")
	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Addr != ":9999" {
		t.Fatalf("addr = %q", cfg.Addr)
	}
	if cfg.SyncPoll != time.Minute {
		t.Fatalf("poll = %v", cfg.SyncPoll)
	}
}
