package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestParseJSON(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.json", `{
		"telegram": {"token": "123:abc", "admin_ids": [42], "poll_timeout": "15s"},
		"logging": {"level": "debug", "console": true},
		"monitor": {"interval": "2m", "probe_timeout": "5s", "concurrency": 4},
		"notifier": {"rate_per_sec": 5},
		"storage": {"path": "./db.sqlite"}
	}`)

	cfg, err := NewManager(path).Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Telegram.Token != "123:abc" {
		t.Fatalf("token = %q", cfg.Telegram.Token)
	}
	if len(cfg.Telegram.AdminIDs) != 1 || cfg.Telegram.AdminIDs[0] != 42 {
		t.Fatalf("admin ids = %v", cfg.Telegram.AdminIDs)
	}
	if cfg.Monitor.Interval != "2m" || cfg.Monitor.Concurrency != 4 {
		t.Fatalf("monitor = %+v", cfg.Monitor)
	}
	if cfg.Notifier.RatePerSec != 5 {
		t.Fatalf("notifier = %+v", cfg.Notifier)
	}
	if cfg.Storage.Path != "./db.sqlite" {
		t.Fatalf("storage = %+v", cfg.Storage)
	}
}

func TestParseYAML(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.yaml", `
telegram:
  token: "123:abc"
  admin_ids: [42, 43]
logging:
  level: info
  console: true
monitor:
  interval: 5m
storage:
  path: ./db.sqlite
`)

	cfg, err := NewManager(path).Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Telegram.Token != "123:abc" || len(cfg.Telegram.AdminIDs) != 2 {
		t.Fatalf("telegram = %+v", cfg.Telegram)
	}
	if cfg.Monitor.Interval != "5m" {
		t.Fatalf("interval = %q", cfg.Monitor.Interval)
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.json", `{
		"telegram": {"token": "x", "tokken_typo": "y"},
		"logging": {"level": "info", "console": true},
		"monitor": {},
		"storage": {"path": "db"}
	}`)
	if _, err := NewManager(path).Parse(); err == nil {
		t.Fatalf("expected unknown-field rejection")
	}
}

func TestParseRejectsTrailingData(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.json",
		`{"telegram": {"token": "x"}, "logging": {"level": "info", "console": true}, "monitor": {}, "storage": {"path": "db"}} {"extra": 1}`)
	if _, err := NewManager(path).Parse(); err == nil {
		t.Fatalf("expected trailing-data rejection")
	}
}

func TestLoadCommitsSnapshot(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.json",
		`{"telegram": {"token": "x"}, "logging": {"level": "info", "console": true}, "monitor": {}, "storage": {"path": "db"}}`)
	m := NewManager(path)
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := m.Get(); got == nil || got.Telegram.Token != "x" {
		t.Fatalf("Get after Load = %+v", got)
	}
}

func TestDurationOr(t *testing.T) {
	t.Parallel()

	def := 7 * time.Second
	cases := []struct {
		raw     string
		want    time.Duration
		wantErr bool
	}{
		{"", def, false},
		{"  ", def, false},
		{"0s", def, false},
		{"30s", 30 * time.Second, false},
		{"1m", time.Minute, false},
		{"-1s", 0, true},
		{"banana", 0, true},
		{"10", 0, true},
	}

	for _, tc := range cases {
		got, err := DurationOr("test.field", tc.raw, def)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("DurationOr(%q): expected error", tc.raw)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Fatalf("DurationOr(%q) = %v, %v; want %v", tc.raw, got, err, tc.want)
		}
	}
}
