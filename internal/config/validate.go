package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"

	"coderelay/internal/announce"
)

// Validate reports the first problem that would stop the bot from starting.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		return errors.New("telegram.token is required (or set BOT_TOKEN)")
	}
	if cfg.Telegram.AdminID == 0 {
		return errors.New("telegram.admin_id is required (or set ADMIN_ID)")
	}
	if g := strings.TrimSpace(cfg.Telegram.GroupLog); g != "" {
		if _, err := strconv.ParseInt(g, 10, 64); err != nil {
			return fmt.Errorf("telegram.group_log: invalid chat id %q", g)
		}
	}
	if _, err := ParseDurationField("telegram.poll_timeout", cfg.Telegram.PollTimeout); err != nil {
		return err
	}

	switch d := strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)); d {
	case "file", "sqlite", "sqlite3":
		if strings.TrimSpace(cfg.Storage.Path) == "" {
			return fmt.Errorf("storage.path is required for driver %q", d)
		}
	case "redis", "postgres", "postgresql", "pg":
		if strings.TrimSpace(cfg.Storage.DSN) == "" {
			return fmt.Errorf("storage.dsn is required for driver %q", d)
		}
	case "memory", "mem":
	default:
		return fmt.Errorf("storage.driver: unknown driver %q", cfg.Storage.Driver)
	}
	if _, err := ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout); err != nil {
		return err
	}

	if cfg.Broadcast.Workers < 0 {
		return errors.New("broadcast.workers must be >= 0")
	}
	if cfg.Broadcast.RatePerSec < 0 {
		return errors.New("broadcast.rate_per_sec must be >= 0")
	}
	if _, err := ParseDurationField("broadcast.delivery_timeout", cfg.Broadcast.DeliveryTimeout); err != nil {
		return err
	}

	if err := announce.Validate(Announcements(cfg)); err != nil {
		return err
	}

	if cfg.Ops.Enabled {
		host, _, err := net.SplitHostPort(cfg.Ops.Addr)
		if err != nil {
			return fmt.Errorf("ops.addr: %w", err)
		}
		if !isLoopbackHost(host) && strings.TrimSpace(cfg.Ops.Token) == "" && !cfg.Ops.AllowInsecure {
			return errors.New("ops: non-loopback addr requires ops.token or ops.allow_insecure=true")
		}
	}
	return nil
}

// Announcements converts the config list for the announce package.
func Announcements(cfg *Config) []announce.Announcement {
	out := make([]announce.Announcement, 0, len(cfg.Announcements))
	for _, a := range cfg.Announcements {
		out = append(out, announce.Announcement{Name: a.Name, Schedule: a.Schedule, Text: a.Text})
	}
	return out
}

func isLoopbackHost(host string) bool {
	host = strings.TrimSpace(host)
	if host == "" {
		// ":9090" binds all interfaces.
		return false
	}
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
