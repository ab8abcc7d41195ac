package config

// Config is the root of the YAML/JSON config file. All durations are
// Go duration strings (e.g. "500ms", "30s", "6h").
type Config struct {
	Logging LoggingConfig `json:"logging"`
	Server  ServerConfig  `json:"server"`

	Storage *StorageConfig `json:"storage,omitempty"`

	// State is the scheduler's dedupe/ack journal. Empty path disables
	// persistence (nudges may replay after a restart).
	State StateConfig `json:"state,omitempty"`

	Nudges NudgesConfig `json:"nudges"`
	Notify NotifyConfig `json:"notify,omitempty"`
	Export ExportConfig `json:"export,omitempty"`
	Pprof  *PprofConfig `json:"pprof,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// ServerConfig controls the HTTP API.
type ServerConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"` // default: "127.0.0.1:3001"

	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`
}

// StorageConfig controls the persistence layer.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./neuroboost.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

type StateConfig struct {
	Path string `json:"path,omitempty"`
}

// NudgesConfig controls the reminder scheduler.
//
// Defaults (when fields are omitted/zero):
//   - poll_interval: "30s"
//   - dedupe_window: "120s"
//   - horizon: "6h"
//   - backward_slack: "10m"
//   - timezone: fixed UTC+3 when empty or unresolvable
type NudgesConfig struct {
	Enabled       bool   `json:"enabled"`
	PollInterval  string `json:"poll_interval,omitempty"`
	DedupeWindow  string `json:"dedupe_window,omitempty"`
	Horizon       string `json:"horizon,omitempty"`
	BackwardSlack string `json:"backward_slack,omitempty"`

	// QuietHours is a local-time "HH:MM-HH:MM" range; empty disables.
	QuietHours string `json:"quiet_hours,omitempty"`
	Timezone   string `json:"timezone,omitempty"`
}

// NotifyConfig controls the delivery pipeline.
//
// Route is "none" (log-only stub), "desktop" (DBus) or "telegram".
// A telegram route without a token falls back to the stub.
type NotifyConfig struct {
	Route       string               `json:"route,omitempty"`
	RatePerSec  int                  `json:"rate_per_sec,omitempty"`
	SendTimeout string               `json:"send_timeout,omitempty"`
	Telegram    NotifyTelegramConfig `json:"telegram,omitempty"`
}

type NotifyTelegramConfig struct {
	Token  string `json:"token,omitempty"`
	ChatID int64  `json:"chat_id,omitempty"`
}

// ExportConfig scopes the dry-run exporter. Vault is informational
// only; the exporter never writes.
type ExportConfig struct {
	Vault string `json:"vault,omitempty"`
}

// PprofConfig controls the optional pprof HTTP server.
//
// Security note:
//   - Prefer binding to localhost (e.g. "127.0.0.1:6060").
//   - If you bind to a non-loopback address, set a token or explicitly allow_insecure.
type PprofConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`   // default: "127.0.0.1:6060"
	Prefix        string `json:"prefix,omitempty"` // default: "/debug/pprof/"
	Token         string `json:"token,omitempty"`  // optional bearer token (do not log)
	AllowInsecure bool   `json:"allow_insecure,omitempty"`

	// Server timeouts (Go duration strings). WriteTimeout defaults to 0 (disabled)
	// so /profile (which can take 30s+) works reliably.
	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`

	// Runtime profiling rates. Leave 0 to keep Go defaults.
	MutexProfileFraction int `json:"mutex_profile_fraction,omitempty"`
	BlockProfileRate     int `json:"block_profile_rate,omitempty"`
	MemProfileRate       int `json:"mem_profile_rate,omitempty"`
}
