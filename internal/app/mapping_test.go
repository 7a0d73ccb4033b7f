package app

import (
	"testing"
	"time"

	"coderelay/internal/config"
)

func testConfig() *config.Config {
	return &config.Config{
		Telegram: config.TelegramConfig{Token: "t", AdminID: 1001, GroupLog: " -100123 "},
		Logging: config.LoggingConfig{
			Level:    "debug",
			Console:  true,
			Telegram: config.LoggingTelegram{Enabled: true, ThreadID: 9, MinLevel: "warn", RatePerSec: 2},
		},
		Storage:   config.StorageConfig{Driver: " SQLite ", Path: "./data/relay.db", BusyTimeout: "3s"},
		Broadcast: config.BroadcastConfig{Workers: 4, RatePerSec: 25, DeliveryTimeout: "bogus"},
		Announcements: []config.AnnouncementConfig{
			{Name: "daily", Schedule: "09:00", Text: "good morning"},
		},
		Timezone: "UTC",
		Ops:      config.OpsConfig{Enabled: true, Addr: "127.0.0.1:9090", Pprof: true},
	}
}

func TestMapLogConfig(t *testing.T) {
	lc := mapLogConfig(testConfig())
	if lc.Level != "debug" || !lc.Console || !lc.Telegram.Enabled || lc.Telegram.ThreadID != 9 || lc.Telegram.RatePerSec != 2 {
		t.Fatalf("unexpected log config %+v", lc)
	}
	if len(lc.Redact) != 1 || lc.Redact[0] != testConfig().Telegram.Token {
		t.Fatalf("bot token should be redacted, got %v", lc.Redact)
	}
	if got := logTarget(testConfig()); got != -100123 {
		t.Fatalf("logTarget = %d", got)
	}
	cfg := testConfig()
	cfg.Telegram.GroupLog = ""
	if got := logTarget(cfg); got != 0 {
		t.Fatalf("empty group_log should map to 0, got %d", got)
	}
}

func TestMapStorageConfig(t *testing.T) {
	sc := mapStorageConfig(testConfig())
	if sc.Driver != "sqlite" || sc.Path != "./data/relay.db" || sc.BusyTimeout != 3*time.Second {
		t.Fatalf("unexpected storage config %+v", sc)
	}
}

func TestMapBroadcastOptions(t *testing.T) {
	bo := mapBroadcastOptions(testConfig())
	if bo.Workers != 4 || bo.RatePerSec != 25 {
		t.Fatalf("unexpected options %+v", bo)
	}
	if bo.DeliveryTimeout != 0 {
		t.Fatalf("invalid duration should fall back to 0, got %v", bo.DeliveryTimeout)
	}
}

func TestMapAnnounceAndOps(t *testing.T) {
	ac := mapAnnounceConfig(testConfig())
	if ac.Timezone != "UTC" || len(ac.Items) != 1 || ac.Items[0].Name != "daily" {
		t.Fatalf("unexpected announce config %+v", ac)
	}
	oc := mapOpsConfig(testConfig())
	if !oc.Enabled || !oc.Pprof || oc.Addr != "127.0.0.1:9090" || oc.WriteTimeout <= 30*time.Second {
		t.Fatalf("unexpected ops config %+v", oc)
	}
}
