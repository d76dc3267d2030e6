package app

import (
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"fisherbot/internal/config"
	"fisherbot/internal/fisher"
)

func baseConfig() *config.Config {
	return &config.Config{
		Telegram: config.TelegramConfig{Token: "t", OwnerUserIDs: []int64{1001, 1002}},
		Remote:   config.RemoteConfig{BaseURL: "http://127.0.0.1:8088", ChannelID: "912"},
		Fisher:   config.FisherConfig{ActorID: "42"},
	}
}

func TestMapStorageConfig(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		db      config.DatabaseConfig
		driver  string
		path    string
		wantErr string
	}{
		{name: "default sqlite", driver: "sqlite", path: "./data/fisher.db"},
		{name: "sqlite3 alias", db: config.DatabaseConfig{Driver: "SQLite3", Path: "/tmp/x.db"}, driver: "sqlite", path: "/tmp/x.db"},
		{name: "mariadb", db: config.DatabaseConfig{Driver: "mariadb", Host: "db", Name: "fisher"}, driver: "mysql"},
		{name: "mysql needs host", db: config.DatabaseConfig{Driver: "mysql"}, wantErr: "database.host"},
		{name: "bad retry_base", db: config.DatabaseConfig{RetryBase: "fast"}, wantErr: "database.retry_base"},
		{name: "unknown", db: config.DatabaseConfig{Driver: "redis"}, wantErr: "unknown database.driver"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := baseConfig()
			cfg.Database = tt.db
			sc, err := mapStorageConfig(cfg)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("err = %v, want %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("mapStorageConfig: %v", err)
			}
			if sc.Driver != tt.driver || sc.Path != tt.path {
				t.Fatalf("got driver=%q path=%q, want %q %q", sc.Driver, sc.Path, tt.driver, tt.path)
			}
		})
	}
}

func TestMapNotifierConfig(t *testing.T) {
	t.Parallel()
	cfg := baseConfig()
	nc, err := mapNotifierConfig(cfg)
	if err != nil {
		t.Fatalf("mapNotifierConfig: %v", err)
	}
	if !nc.Enabled || nc.ChatID != 1001 || nc.ParseMode != "Markdown" {
		t.Fatalf("defaults = %+v", nc)
	}

	cfg.Telegram.NotifyChat = "-100777"
	cfg.Notifier = &config.NotifierConfig{Enabled: true, RatePerSec: 5, Timeout: "10s"}
	nc, err = mapNotifierConfig(cfg)
	if err != nil {
		t.Fatalf("mapNotifierConfig: %v", err)
	}
	if nc.ChatID != -100777 || nc.RatePerSec != 5 || nc.Timeout != 10*time.Second || nc.RetryMax != 3 {
		t.Fatalf("overrides = %+v", nc)
	}

	cfg.Telegram.NotifyChat = "general"
	if _, err := mapNotifierConfig(cfg); err == nil || !strings.Contains(err.Error(), "telegram.notify_chat") {
		t.Fatalf("err = %v, want notify_chat error", err)
	}
}

func TestMapFisherConfig(t *testing.T) {
	t.Parallel()
	cfg := baseConfig()
	cfg.Remote.Commands = config.RemoteCommands{Fish: "cast"}
	cfg.Fisher = config.FisherConfig{
		ActorID:           " 42 ",
		Username:          "angler",
		MinDelay:          "5m",
		MaxDelay:          "10m",
		SellEveryN:        7,
		GoldThreshold:     3,
		StrictThreshold:   true,
		HireFallbackDelay: "30m",
	}
	fc, err := mapFisherConfig(cfg)
	if err != nil {
		t.Fatalf("mapFisherConfig: %v", err)
	}
	want := fisher.Config{
		ActorID:           "42",
		Username:          "angler",
		ChannelID:         "912",
		Commands:          fisher.Commands{Fish: "cast"},
		MinDelay:          5 * time.Minute,
		MaxDelay:          10 * time.Minute,
		SellEveryN:        7,
		GoldThreshold:     3,
		StrictThreshold:   true,
		HireFallbackDelay: 30 * time.Minute,
	}
	if diff := cmp.Diff(want, fc); diff != "" {
		t.Fatalf("fisher config (-want +got):\n%s", diff)
	}

	cfg.Fisher.IdleInterval = "often"
	if _, err := mapFisherConfig(cfg); err == nil || !strings.Contains(err.Error(), "fisher.idle_interval") {
		t.Fatalf("err = %v, want idle_interval error", err)
	}
}

func TestValidateRejectsBadDigest(t *testing.T) {
	t.Parallel()
	cfg := baseConfig()
	if err := validate(cfg); err != nil {
		t.Fatalf("validate: %v", err)
	}
	cfg.Digest = config.DigestConfig{Enabled: true, Schedule: "every tuesday"}
	if err := validate(cfg); err == nil || !strings.Contains(err.Error(), "digest.schedule") {
		t.Fatalf("err = %v, want digest.schedule error", err)
	}
	cfg.Digest.Schedule = "21:00"
	if err := validate(cfg); err != nil {
		t.Fatalf("validate with HH:MM schedule: %v", err)
	}
}

func TestLogTarget(t *testing.T) {
	t.Parallel()
	cfg := baseConfig()
	if _, ok := logTarget(cfg); ok {
		t.Fatal("empty group_log reported a target")
	}
	cfg.Telegram.GroupLog = " -1009 "
	if id, ok := logTarget(cfg); !ok || id != -1009 {
		t.Fatalf("logTarget = %d, %v", id, ok)
	}
}
