package config

import (
	"reflect"

	logx "fisherbot/pkg/logx"
)

// SummarizeConfigChange returns the changed top-level sections and safe
// structured attrs for logging. Secrets (tokens, passwords) are never included.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	var (
		changed []string
		attrs   []logx.Field
	)

	ot, nt := oldCfg.Telegram, newCfg.Telegram
	ot.Token, nt.Token = "", ""
	if !reflect.DeepEqual(ot, nt) {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.Int("telegram.owners", len(nt.OwnerUserIDs)),
			logx.String("telegram.notify_chat", nt.NotifyChat),
			logx.String("telegram.poll_timeout", nt.PollTimeout))
	}
	if oldCfg.Telegram.Token != newCfg.Telegram.Token {
		changed = append(changed, "telegram.token")
	}

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.file", newCfg.Logging.File.Enabled),
			logx.Bool("logging.telegram", newCfg.Logging.Telegram.Enabled))
	}

	od, nd := oldCfg.Database, newCfg.Database
	od.Password, nd.Password = "", ""
	if !reflect.DeepEqual(od, nd) || oldCfg.Database.Password != newCfg.Database.Password {
		changed = append(changed, "database")
		attrs = append(attrs, logx.String("database.driver", nd.Driver))
	}

	or, nr := oldCfg.Remote, newCfg.Remote
	or.Token, nr.Token = "", ""
	if !reflect.DeepEqual(or, nr) || oldCfg.Remote.Token != newCfg.Remote.Token {
		changed = append(changed, "remote")
		attrs = append(attrs, logx.String("remote.channel_id", nr.ChannelID))
	}

	if !reflect.DeepEqual(oldCfg.Fisher, newCfg.Fisher) {
		f := newCfg.Fisher
		changed = append(changed, "fisher")
		attrs = append(attrs,
			logx.String("fisher.min_delay", f.MinDelay),
			logx.String("fisher.max_delay", f.MaxDelay),
			logx.Uint64("fisher.sell_every_n", f.SellEveryN),
			logx.Uint64("fisher.emerald_threshold", f.EmeraldThreshold),
			logx.Uint64("fisher.gold_threshold", f.GoldThreshold),
			logx.Bool("fisher.strict_threshold", f.StrictThreshold))
	}

	if !reflect.DeepEqual(oldCfg.Notifier, newCfg.Notifier) {
		changed = append(changed, "notifier")
		if n := newCfg.Notifier; n != nil {
			attrs = append(attrs, logx.Bool("notifier.enabled", n.Enabled), logx.Int("notifier.rate_per_sec", n.RatePerSec))
		}
	}

	if oldCfg.Digest != newCfg.Digest {
		changed = append(changed, "digest")
		attrs = append(attrs,
			logx.Bool("digest.enabled", newCfg.Digest.Enabled),
			logx.String("digest.schedule", newCfg.Digest.Schedule))
	}
	return changed, attrs
}

// RestartRequired reports sections whose changes only apply after a restart.
func RestartRequired(sections []string) []string {
	var out []string
	for _, s := range sections {
		switch s {
		case "database", "remote", "telegram.token":
			out = append(out, s)
		}
	}
	return out
}
