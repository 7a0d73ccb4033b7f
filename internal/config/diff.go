package config

import (
	"reflect"
	"strings"

	logx "coderelay/pkg/logx"
)

// Change summarises what a reload touched.
type Change struct {
	// Sections lists hot-applied sections that changed.
	Sections []string
	// RestartRequired lists fields that changed but only take effect on restart.
	RestartRequired []string
	// Attrs are safe log fields (no secrets).
	Attrs []logx.Field
}

func (c Change) Has(section string) bool {
	for _, s := range c.Sections {
		if s == section {
			return true
		}
	}
	return false
}

// SummarizeConfigChange compares two configs without ever logging tokens.
func SummarizeConfigChange(oldCfg, newCfg *Config) Change {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	var ch Change

	if oldCfg.Telegram.Token != newCfg.Telegram.Token {
		ch.RestartRequired = append(ch.RestartRequired, "telegram.token")
	}
	if oldCfg.Telegram.AdminID != newCfg.Telegram.AdminID {
		ch.RestartRequired = append(ch.RestartRequired, "telegram.admin_id")
	}
	if strings.TrimSpace(oldCfg.Telegram.PollTimeout) != strings.TrimSpace(newCfg.Telegram.PollTimeout) {
		ch.RestartRequired = append(ch.RestartRequired, "telegram.poll_timeout")
	}
	if oldCfg.Storage != newCfg.Storage {
		ch.RestartRequired = append(ch.RestartRequired, "storage")
	}
	if oldCfg.Ops != newCfg.Ops {
		ch.RestartRequired = append(ch.RestartRequired, "ops")
	}

	if oldCfg.Logging != newCfg.Logging ||
		strings.TrimSpace(oldCfg.Telegram.GroupLog) != strings.TrimSpace(newCfg.Telegram.GroupLog) {
		ch.Sections = append(ch.Sections, "logging")
		ch.Attrs = append(ch.Attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logging.telegram_enabled", newCfg.Logging.Telegram.Enabled),
			logx.Bool("telegram.group_log_set", strings.TrimSpace(newCfg.Telegram.GroupLog) != ""),
		)
	}

	if oldCfg.Broadcast != newCfg.Broadcast {
		ch.Sections = append(ch.Sections, "broadcast")
		ch.Attrs = append(ch.Attrs,
			logx.Int("broadcast.workers", newCfg.Broadcast.Workers),
			logx.Any("broadcast.rate_per_sec", newCfg.Broadcast.RatePerSec),
		)
	}

	if !reflect.DeepEqual(oldCfg.Announcements, newCfg.Announcements) ||
		strings.TrimSpace(oldCfg.Timezone) != strings.TrimSpace(newCfg.Timezone) {
		ch.Sections = append(ch.Sections, "announcements")
		ch.Attrs = append(ch.Attrs,
			logx.Int("announcements.count", len(newCfg.Announcements)),
			logx.String("timezone", strings.TrimSpace(newCfg.Timezone)),
		)
	}

	return ch
}
