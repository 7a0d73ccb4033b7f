package app

import (
	"strconv"
	"strings"
	"time"

	"coderelay/internal/announce"
	"coderelay/internal/config"
	"coderelay/internal/observability/ops"
	"coderelay/internal/relay"
	"coderelay/internal/storage"
	logx "coderelay/pkg/logx"
)

// Mappers from validated config to component configs. Durations were checked
// by config.Validate, so parse errors fall back to defaults here.

func mapLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    cfg.Logging.Telegram.Enabled,
			ThreadID:   cfg.Logging.Telegram.ThreadID,
			MinLevel:   cfg.Logging.Telegram.MinLevel,
			RatePerSec: cfg.Logging.Telegram.RatePerSec,
		},
		Redact: []string{cfg.Telegram.Token},
	}
}

// logTarget returns the chat that receives forwarded log lines (0 = none).
func logTarget(cfg *config.Config) int64 {
	id, err := strconv.ParseInt(strings.TrimSpace(cfg.Telegram.GroupLog), 10, 64)
	if err != nil {
		return 0
	}
	return id
}

func mapStorageConfig(cfg *config.Config) storage.Config {
	return storage.Config{
		Driver:      strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)),
		Path:        strings.TrimSpace(cfg.Storage.Path),
		DSN:         strings.TrimSpace(cfg.Storage.DSN),
		BusyTimeout: config.MustDuration(cfg.Storage.BusyTimeout, 0),
	}
}

func mapBroadcastOptions(cfg *config.Config) relay.BroadcastOptions {
	return relay.BroadcastOptions{
		Workers:         cfg.Broadcast.Workers,
		RatePerSec:      cfg.Broadcast.RatePerSec,
		DeliveryTimeout: config.MustDuration(cfg.Broadcast.DeliveryTimeout, 0),
	}
}

func mapAnnounceConfig(cfg *config.Config) announce.Config {
	return announce.Config{Timezone: cfg.Timezone, Items: config.Announcements(cfg)}
}

func mapOpsConfig(cfg *config.Config) ops.Config {
	return ops.Config{
		Enabled:       cfg.Ops.Enabled,
		Addr:          cfg.Ops.Addr,
		Token:         cfg.Ops.Token,
		Pprof:         cfg.Ops.Pprof,
		AllowInsecure: cfg.Ops.AllowInsecure,
		ReadTimeout:   10 * time.Second,
		// pprof profile/trace endpoints stream for up to 30s by default.
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}
