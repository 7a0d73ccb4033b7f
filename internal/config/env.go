package config

import (
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
)

// envOverrides mirrors the variables a container deployment sets.
// Non-empty values win over the file. AdminID stays nil when ADMIN_ID is unset.
type envOverrides struct {
	Token         string `env:"BOT_TOKEN"`
	AdminID       *int64 `env:"ADMIN_ID"`
	StorageDriver string `env:"RELAY_STORAGE_DRIVER"`
	StoragePath   string `env:"RELAY_STORAGE_PATH"`
	StorageDSN    string `env:"RELAY_STORAGE_DSN"`
	LogLevel      string `env:"RELAY_LOG_LEVEL"`
}

func applyEnv(cfg *Config) error {
	var ov envOverrides
	if err := env.Parse(&ov); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	if v := strings.TrimSpace(ov.Token); v != "" {
		cfg.Telegram.Token = v
	}
	if ov.AdminID != nil {
		cfg.Telegram.AdminID = *ov.AdminID
	}
	if v := strings.TrimSpace(ov.StorageDriver); v != "" {
		cfg.Storage.Driver = v
	}
	if v := strings.TrimSpace(ov.StoragePath); v != "" {
		cfg.Storage.Path = v
	}
	if v := strings.TrimSpace(ov.StorageDSN); v != "" {
		cfg.Storage.DSN = v
	}
	if v := strings.TrimSpace(ov.LogLevel); v != "" {
		cfg.Logging.Level = v
	}
	return nil
}
