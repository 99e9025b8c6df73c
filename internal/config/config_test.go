package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load with defaults should succeed: %v", err)
	}
	if cfg.App.Name != "basiswatch" {
		t.Fatalf("default app name wrong: %s", cfg.App.Name)
	}
	if cfg.Backoff.Base != time.Second || cfg.Backoff.Cap != 30*time.Second {
		t.Fatalf("default backoff wrong: %+v", cfg.Backoff)
	}
	if cfg.Alerting.Cooldown != 5*time.Minute {
		t.Fatalf("default cooldown wrong: %s", cfg.Alerting.Cooldown)
	}
	if len(cfg.Venues.Spot.Topics) == 0 || len(cfg.Venues.Linear.Topics) == 0 {
		t.Fatal("default topics missing")
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := `
venues:
  spot:
    topics:
      - tickers.BTCUSDT
      - tickers.ETHUSDT
alerting:
  threshold_pct: 1.25
  cooldown: 10m
  suppress_window: 20m
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Venues.Spot.Topics) != 2 {
		t.Fatalf("topics not read from file: %#v", cfg.Venues.Spot.Topics)
	}
	if cfg.Alerting.ThresholdPct != 1.25 || cfg.Alerting.Cooldown != 10*time.Minute {
		t.Fatalf("alerting overrides not applied: %+v", cfg.Alerting)
	}
	if cfg.Alerting.SuppressWindow != 20*time.Minute {
		t.Fatalf("suppress window not applied: %s", cfg.Alerting.SuppressWindow)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	write := func(body string) string {
		t.Helper()
		path := filepath.Join(t.TempDir(), "config.yaml")
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			t.Fatalf("write config: %v", err)
		}
		return path
	}

	cases := map[string]string{
		"negative threshold": "alerting:\n  threshold_pct: -1\n",
		"max sleep below cap": "backoff:\n  cap: 60s\n  max_sleep: 10s\n",
		"telegram without token": "alerting:\n  telegram:\n    enabled: true\n    chat_id: chat\n",
	}
	for name, body := range cases {
		if _, err := Load(write(body)); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}
