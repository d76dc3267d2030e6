package config

import (
	"os"
	"strings"
)

// Secrets may live in the environment instead of the config file.
const (
	EnvTelegramToken = "FISHERBOT_TELEGRAM_TOKEN"
	EnvDBPassword    = "FISHERBOT_DB_PASSWORD"
	EnvRemoteToken   = "FISHERBOT_REMOTE_TOKEN"
)

// applyEnv overrides secret fields with non-empty environment values.
func applyEnv(cfg *Config, getenv func(string) string) {
	if getenv == nil {
		getenv = os.Getenv
	}
	set := func(dst *string, key string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	set(&cfg.Telegram.Token, EnvTelegramToken)
	set(&cfg.Database.Password, EnvDBPassword)
	set(&cfg.Remote.Token, EnvRemoteToken)
}
