package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Validate checks the fields that are independent of any component. Components
// re-check their own sections when the app maps them.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	add := func(format string, args ...any) { errs = append(errs, fmt.Errorf(format, args...)) }

	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		add("telegram.token is required (or set %s)", EnvTelegramToken)
	}
	if len(cfg.Telegram.OwnerUserIDs) == 0 {
		add("telegram.owner_user_ids must list at least one owner")
	}
	if strings.TrimSpace(cfg.Remote.BaseURL) == "" {
		add("remote.base_url is required")
	}
	if strings.TrimSpace(cfg.Fisher.ActorID) == "" {
		add("fisher.actor_id is required")
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Database.Driver)) {
	case "", "sqlite", "sqlite3", "mysql", "mariadb":
	default:
		add("database.driver: unknown %q (use mysql or sqlite)", cfg.Database.Driver)
	}
	if cfg.Database.MaxOpenConns < 0 || cfg.Database.RetryAttempts < 0 {
		add("database.max_open_conns and database.retry_attempts must be >= 0")
	}

	var p Durations
	p.Parse("telegram.poll_timeout", cfg.Telegram.PollTimeout)
	p.Parse("database.busy_timeout", cfg.Database.BusyTimeout)
	p.Parse("database.conn_max_lifetime", cfg.Database.ConnMaxLifetime)
	p.Parse("database.retry_base", cfg.Database.RetryBase)
	p.Parse("database.op_timeout", cfg.Database.OpTimeout)
	p.Parse("remote.timeout", cfg.Remote.Timeout)
	minDelay := p.Parse("fisher.min_delay", cfg.Fisher.MinDelay)
	maxDelay := p.Parse("fisher.max_delay", cfg.Fisher.MaxDelay)
	p.Parse("fisher.challenge_fallback_delay", cfg.Fisher.ChallengeFallbackDelay)
	p.Parse("fisher.hire_fallback_delay", cfg.Fisher.HireFallbackDelay)
	recMin := p.Parse("fisher.recovery_min", cfg.Fisher.RecoveryMin)
	recMax := p.Parse("fisher.recovery_max", cfg.Fisher.RecoveryMax)
	toMin := p.Parse("fisher.timeout_backoff_min", cfg.Fisher.TimeoutBackoffMin)
	toMax := p.Parse("fisher.timeout_backoff_max", cfg.Fisher.TimeoutBackoffMax)
	p.Parse("fisher.idle_interval", cfg.Fisher.IdleInterval)
	p.Parse("fisher.call_timeout", cfg.Fisher.CallTimeout)
	if n := cfg.Notifier; n != nil {
		p.Parse("notifier.retry_base", n.RetryBase)
		p.Parse("notifier.retry_max_delay", n.RetryMaxDelay)
		p.Parse("notifier.timeout", n.Timeout)
		if n.RatePerSec < 0 || n.RetryMax < 0 || n.HistorySize < 0 {
			add("notifier.rate_per_sec, retry_max and history_size must be >= 0")
		}
	}
	if err := p.Err(); err != nil {
		errs = append(errs, err)
	}

	window := func(name string, lo, hi time.Duration) {
		if lo > 0 && hi > 0 && hi < lo {
			add("fisher.%s_max (%s) must be >= fisher.%s_min (%s)", name, hi, name, lo)
		}
	}
	if minDelay > 0 && maxDelay > 0 && maxDelay < minDelay {
		add("fisher.max_delay (%s) must be >= fisher.min_delay (%s)", maxDelay, minDelay)
	}
	window("recovery", recMin, recMax)
	window("timeout_backoff", toMin, toMax)

	if cfg.Digest.Enabled && strings.TrimSpace(cfg.Digest.Schedule) == "" {
		add("digest.schedule is required when digest.enabled is true")
	}
	if tz := strings.TrimSpace(cfg.Digest.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			add("digest.timezone: invalid %q: %v", tz, err)
		}
	}
	return errors.Join(errs...)
}
