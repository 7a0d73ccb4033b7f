package config

// Config is the on-disk configuration (JSON or YAML), with env overrides
// applied on top. See env.go for the supported variables.
type Config struct {
	Telegram      TelegramConfig       `json:"telegram"`
	Logging       LoggingConfig        `json:"logging"`
	Storage       StorageConfig        `json:"storage"`
	Broadcast     BroadcastConfig      `json:"broadcast"`
	Announcements []AnnouncementConfig `json:"announcements,omitempty"`
	// Timezone for announcement schedules. Empty means local time.
	Timezone string    `json:"timezone,omitempty"`
	Ops      OpsConfig `json:"ops,omitempty"`
}

type TelegramConfig struct {
	Token string `json:"token"`
	// AdminID is the only user allowed to manage codes and broadcast.
	// Changing it requires a restart.
	AdminID int64 `json:"admin_id"`
	// GroupLog is the chat id that receives WARN+ log lines (optional).
	GroupLog string `json:"group_log,omitempty"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout,omitempty"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	ThreadID   int    `json:"thread_id"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// StorageConfig selects the persistence driver.
//
// Example:
//
//	"storage": { "driver": "file", "path": "./data/coderelay.json" }
//	"storage": { "driver": "redis", "dsn": "redis://localhost:6379/0" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path,omitempty"`
	DSN         string `json:"dsn,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// BroadcastConfig tunes fan-out. Defaults send one message at a time, unpaced.
type BroadcastConfig struct {
	Workers         int     `json:"workers,omitempty"`
	RatePerSec      float64 `json:"rate_per_sec,omitempty"`
	DeliveryTimeout string  `json:"delivery_timeout,omitempty"`
}

type AnnouncementConfig struct {
	Name     string `json:"name"`
	Schedule string `json:"schedule"`
	Text     string `json:"text"`
}

// OpsConfig controls the operator HTTP server (/healthz, /metrics, /debug/pprof).
//
// Security note:
//   - Prefer binding to localhost (e.g. "127.0.0.1:9090").
//   - If you bind to a non-loopback address, set a token or explicitly allow_insecure.
type OpsConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`  // default: "127.0.0.1:9090"
	Token         string `json:"token,omitempty"` // optional bearer token (do not log)
	Pprof         bool   `json:"pprof,omitempty"`
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
}
