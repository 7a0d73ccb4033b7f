package config

import "strings"

const (
	DefaultStoragePath = "./data/coderelay.json"
	DefaultOpsAddr     = "127.0.0.1:9090"
	DefaultPollTimeout = "10s"
)

// applyDefaults fills fields a minimal config leaves empty.
func applyDefaults(cfg *Config, hadFile bool) {
	if strings.TrimSpace(cfg.Logging.Level) == "" {
		cfg.Logging.Level = "info"
	}
	// Without a file there is nowhere to turn the console on.
	if !hadFile {
		cfg.Logging.Console = true
	}
	if strings.TrimSpace(cfg.Storage.Driver) == "" {
		cfg.Storage.Driver = "file"
	}
	if isPathDriver(cfg.Storage.Driver) && strings.TrimSpace(cfg.Storage.Path) == "" {
		cfg.Storage.Path = DefaultStoragePath
	}
	if strings.TrimSpace(cfg.Telegram.PollTimeout) == "" {
		cfg.Telegram.PollTimeout = DefaultPollTimeout
	}
	if cfg.Broadcast.Workers <= 0 {
		cfg.Broadcast.Workers = 1
	}
	if cfg.Ops.Enabled && strings.TrimSpace(cfg.Ops.Addr) == "" {
		cfg.Ops.Addr = DefaultOpsAddr
	}
}

func isPathDriver(driver string) bool {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "file", "sqlite", "sqlite3":
		return true
	}
	return false
}
