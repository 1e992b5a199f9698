package config

type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Logging  LoggingConfig  `json:"logging"`
	Monitor  MonitorConfig  `json:"monitor"`
	Notifier NotifierConfig `json:"notifier,omitempty"`
	Storage  StorageConfig  `json:"storage"`
}

type TelegramConfig struct {
	Token    string  `json:"token"`
	AdminIDs []int64 `json:"admin_ids,omitempty"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file,omitempty"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// MonitorConfig controls the sweep engine.
//
// All durations are Go duration strings (e.g. "30s", "5m").
//
// Defaults (when fields are omitted/zero):
//   - interval: "5m"
//   - probe_timeout: "10s"
//   - concurrency: 8
type MonitorConfig struct {
	Interval     string `json:"interval,omitempty"`
	ProbeTimeout string `json:"probe_timeout,omitempty"`

	// Concurrency caps outstanding probes during a full sweep.
	Concurrency int `json:"concurrency,omitempty"`
}

// NotifierConfig controls transition notification delivery.
// If the whole section is omitted, delivery is enabled with defaults.
type NotifierConfig struct {
	// RatePerSec bounds outbound sends across all recipients. Default 3.
	RatePerSec int `json:"rate_per_sec,omitempty"`
}

// StorageConfig controls the SQLite target store.
//
// Example:
//
//	"storage": { "path": "./sitewatch.db" }
type StorageConfig struct {
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string
}
