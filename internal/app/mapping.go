package app

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"fisherbot/internal/config"
	"fisherbot/internal/fisher"
	"fisherbot/internal/notifier"
	"fisherbot/internal/remote/httprpc"
	"fisherbot/internal/storage"
	"fisherbot/internal/task/digest"
	logx "fisherbot/pkg/logx"
)

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	db := cfg.Database
	var p config.Durations
	sc := storage.Config{
		Driver:          strings.ToLower(strings.TrimSpace(db.Driver)),
		Host:            strings.TrimSpace(db.Host),
		Port:            db.Port,
		User:            db.User,
		Password:        db.Password,
		Name:            strings.TrimSpace(db.Name),
		Path:            strings.TrimSpace(db.Path),
		BusyTimeout:     p.Parse("database.busy_timeout", db.BusyTimeout),
		MaxOpenConns:    db.MaxOpenConns,
		ConnMaxLifetime: p.Parse("database.conn_max_lifetime", db.ConnMaxLifetime),
		RetryAttempts:   db.RetryAttempts,
		RetryBase:       p.Parse("database.retry_base", db.RetryBase),
		OpTimeout:       p.Parse("database.op_timeout", db.OpTimeout),
	}
	if err := p.Err(); err != nil {
		return storage.Config{}, err
	}
	switch sc.Driver {
	case "", "sqlite", "sqlite3":
		sc.Driver = "sqlite"
		if sc.Path == "" {
			sc.Path = "./data/fisher.db"
		}
	case "mysql", "mariadb":
		sc.Driver = "mysql"
		if sc.Host == "" || sc.Name == "" {
			return storage.Config{}, fmt.Errorf("database.host and database.name are required when database.driver=%s", db.Driver)
		}
	default:
		return storage.Config{}, fmt.Errorf("unknown database.driver: %s", db.Driver)
	}
	return sc, nil
}

func mapRemoteConfig(cfg *config.Config) (httprpc.Config, error) {
	timeout, err := config.ParseDurationOrDefault("remote.timeout", cfg.Remote.Timeout, 30*time.Second)
	if err != nil {
		return httprpc.Config{}, err
	}
	return httprpc.Config{BaseURL: cfg.Remote.BaseURL, Token: cfg.Remote.Token, Timeout: timeout}, nil
}

// notifyTarget is the chat that receives fisher notifications: notify_chat
// when set, otherwise the first owner's private chat.
func notifyTarget(cfg *config.Config) (int64, error) {
	if s := strings.TrimSpace(cfg.Telegram.NotifyChat); s != "" {
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("telegram.notify_chat: invalid chat id %q", s)
		}
		return id, nil
	}
	if len(cfg.Telegram.OwnerUserIDs) > 0 {
		return cfg.Telegram.OwnerUserIDs[0], nil
	}
	return 0, nil
}

func mapNotifierConfig(cfg *config.Config) (notifier.Config, error) {
	chatID, err := notifyTarget(cfg)
	if err != nil {
		return notifier.Config{}, err
	}
	nc := notifier.Config{
		Enabled:       true,
		ChatID:        chatID,
		ThreadID:      cfg.Telegram.NotifyThreadID,
		RatePerSec:    1,
		RetryMax:      3,
		RetryBase:     time.Second,
		RetryMaxDelay: 30 * time.Second,
		Timeout:       time.Minute,
		ParseMode:     "Markdown",
		HistorySize:   50,
	}
	n := cfg.Notifier
	if n == nil {
		return nc, nil
	}
	nc.Enabled = n.Enabled
	if n.RatePerSec > 0 {
		nc.RatePerSec = n.RatePerSec
	}
	if n.RetryMax > 0 {
		nc.RetryMax = n.RetryMax
	}
	if n.HistorySize > 0 {
		nc.HistorySize = n.HistorySize
	}
	if pm := strings.TrimSpace(n.ParseMode); pm != "" {
		nc.ParseMode = pm
	}
	var p config.Durations
	if d := p.Parse("notifier.retry_base", n.RetryBase); d > 0 {
		nc.RetryBase = d
	}
	if d := p.Parse("notifier.retry_max_delay", n.RetryMaxDelay); d > 0 {
		nc.RetryMaxDelay = d
	}
	if d := p.Parse("notifier.timeout", n.Timeout); d > 0 {
		nc.Timeout = d
	}
	if err := p.Err(); err != nil {
		return notifier.Config{}, err
	}
	return nc, nil
}

// mapFisherConfig converts the fisher section. Zero durations are left for the
// engine defaults.
func mapFisherConfig(cfg *config.Config) (fisher.Config, error) {
	f := cfg.Fisher
	var p config.Durations
	fc := fisher.Config{
		ActorID:   strings.TrimSpace(f.ActorID),
		Username:  f.Username,
		ChannelID: strings.TrimSpace(cfg.Remote.ChannelID),
		OwnerID:   strings.TrimSpace(f.OwnerID),
		Commands: fisher.Commands{
			Fish:   cfg.Remote.Commands.Fish,
			Sell:   cfg.Remote.Commands.Sell,
			Verify: cfg.Remote.Commands.Verify,
			Buy:    cfg.Remote.Commands.Buy,
		},
		MinDelay:               p.Parse("fisher.min_delay", f.MinDelay),
		MaxDelay:               p.Parse("fisher.max_delay", f.MaxDelay),
		SellEveryN:             f.SellEveryN,
		EmeraldThreshold:       f.EmeraldThreshold,
		GoldThreshold:          f.GoldThreshold,
		StrictThreshold:        f.StrictThreshold,
		EmeraldItem:            f.EmeraldItem,
		GoldItem:               f.GoldItem,
		ChallengeFallbackDelay: p.Parse("fisher.challenge_fallback_delay", f.ChallengeFallbackDelay),
		HireFallbackDelay:      p.Parse("fisher.hire_fallback_delay", f.HireFallbackDelay),
		RecoveryMin:            p.Parse("fisher.recovery_min", f.RecoveryMin),
		RecoveryMax:            p.Parse("fisher.recovery_max", f.RecoveryMax),
		TimeoutBackoffMin:      p.Parse("fisher.timeout_backoff_min", f.TimeoutBackoffMin),
		TimeoutBackoffMax:      p.Parse("fisher.timeout_backoff_max", f.TimeoutBackoffMax),
		IdleInterval:           p.Parse("fisher.idle_interval", f.IdleInterval),
		CallTimeout:            p.Parse("fisher.call_timeout", f.CallTimeout),
	}
	if err := p.Err(); err != nil {
		return fisher.Config{}, err
	}
	if fc.ActorID == "" {
		return fisher.Config{}, fmt.Errorf("fisher.actor_id is required")
	}
	return fc, nil
}

func mapDigestConfig(cfg *config.Config) (digest.Config, error) {
	dc := digest.Config{
		Enabled:  cfg.Digest.Enabled,
		Schedule: strings.TrimSpace(cfg.Digest.Schedule),
		Timezone: strings.TrimSpace(cfg.Digest.Timezone),
	}
	if dc.Enabled {
		if _, err := digest.ParseSchedule(dc.Schedule); err != nil {
			return digest.Config{}, fmt.Errorf("digest.schedule: %w", err)
		}
	}
	return dc, nil
}

func mapLoggingConfig(cfg *config.Config) logx.Config {
	l := cfg.Logging
	return logx.Config{
		Level:   l.Level,
		Console: l.Console,
		File:    logx.FileConfig{Enabled: l.File.Enabled, Path: l.File.Path},
		Telegram: logx.TelegramConfig{
			Enabled:    l.Telegram.Enabled,
			ThreadID:   l.Telegram.ThreadID,
			MinLevel:   l.Telegram.MinLevel,
			RatePerSec: l.Telegram.RatePerSec,
		},
	}
}

// logTarget parses telegram.group_log. ok is false when it is unset or invalid.
func logTarget(cfg *config.Config) (int64, bool) {
	s := strings.TrimSpace(cfg.Telegram.GroupLog)
	if s == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(s, 10, 64)
	return id, err == nil
}

// validate maps every section the way the app will, so a reload that would
// fail to apply is rejected before it is committed.
func validate(cfg *config.Config) error {
	if _, err := mapStorageConfig(cfg); err != nil {
		return err
	}
	if _, err := mapRemoteConfig(cfg); err != nil {
		return err
	}
	if _, err := mapNotifierConfig(cfg); err != nil {
		return err
	}
	if _, err := mapFisherConfig(cfg); err != nil {
		return err
	}
	if _, err := mapDigestConfig(cfg); err != nil {
		return err
	}
	return nil
}

// OpenStore loads the config at cfgPath and prepares its store without
// starting anything else. Used by the offline CLI commands.
func OpenStore(cfgPath string, log logx.Logger) (*storage.Store, *config.Config, error) {
	cfg, err := config.NewConfigManager(cfgPath).Load()
	if err != nil {
		return nil, nil, err
	}
	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, nil, err
	}
	st, err := storage.Open(sc, log)
	if err != nil {
		return nil, nil, err
	}
	return st, cfg, nil
}
