package config

// Config is the on-disk configuration. JSON and YAML share these keys.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "5m").
type Config struct {
	Telegram TelegramConfig  `json:"telegram"`
	Logging  LoggingConfig   `json:"logging"`
	Database DatabaseConfig  `json:"database"`
	Remote   RemoteConfig    `json:"remote"`
	Fisher   FisherConfig    `json:"fisher"`
	Notifier *NotifierConfig `json:"notifier,omitempty"`
	Digest   DigestConfig    `json:"digest"`
}

type TelegramConfig struct {
	Token        string  `json:"token"`
	OwnerUserIDs []int64 `json:"owner_user_ids"`
	// NotifyChat receives fisher notifications. Defaults to the first owner.
	NotifyChat     string `json:"notify_chat,omitempty"`
	NotifyThreadID int    `json:"notify_thread_id,omitempty"`
	GroupLog       string `json:"group_log"`
	PollTimeout    string `json:"poll_timeout"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	ThreadID   int    `json:"thread_id"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// DatabaseConfig selects and tunes the durable store.
//
// Example:
//
//	"database": { "driver": "mysql", "host": "127.0.0.1", "name": "fisher", "user": "bot" }
//	"database": { "driver": "sqlite", "path": "./data/fisher.db" }
type DatabaseConfig struct {
	Driver          string `json:"driver"`
	Host            string `json:"host,omitempty"`
	Port            int    `json:"port,omitempty"`
	User            string `json:"user,omitempty"`
	Password        string `json:"password,omitempty"`
	Name            string `json:"name,omitempty"`
	Path            string `json:"path,omitempty"`
	BusyTimeout     string `json:"busy_timeout,omitempty"`
	MaxOpenConns    int    `json:"max_open_conns,omitempty"`
	ConnMaxLifetime string `json:"conn_max_lifetime,omitempty"`
	RetryAttempts   int    `json:"retry_attempts,omitempty"`
	RetryBase       string `json:"retry_base,omitempty"`
	OpTimeout       string `json:"op_timeout,omitempty"`
}

// RemoteConfig points at the chat-platform bridge that runs slash commands.
type RemoteConfig struct {
	BaseURL   string         `json:"base_url"`
	Token     string         `json:"token,omitempty"`
	Timeout   string         `json:"timeout,omitempty"`
	ChannelID string         `json:"channel_id,omitempty"`
	Commands  RemoteCommands `json:"commands,omitempty"`
}

type RemoteCommands struct {
	Fish   string `json:"fish,omitempty"`
	Sell   string `json:"sell,omitempty"`
	Verify string `json:"verify,omitempty"`
	Buy    string `json:"buy,omitempty"`
}

// FisherConfig holds the loop tunables. They are hot-reloaded.
type FisherConfig struct {
	ActorID  string `json:"actor_id"`
	Username string `json:"username,omitempty"`
	OwnerID  string `json:"owner_id,omitempty"`
	Prefix   string `json:"prefix,omitempty"`
	ServerID string `json:"server_id,omitempty"`

	MinDelay   string `json:"min_delay,omitempty"`
	MaxDelay   string `json:"max_delay,omitempty"`
	SellEveryN uint64 `json:"sell_every_n,omitempty"`

	EmeraldThreshold uint64 `json:"emerald_threshold,omitempty"`
	GoldThreshold    uint64 `json:"gold_threshold,omitempty"`
	StrictThreshold  bool   `json:"strict_threshold,omitempty"`
	EmeraldItem      string `json:"emerald_item,omitempty"`
	GoldItem         string `json:"gold_item,omitempty"`

	ChallengeFallbackDelay string `json:"challenge_fallback_delay,omitempty"`
	HireFallbackDelay      string `json:"hire_fallback_delay,omitempty"`
	RecoveryMin            string `json:"recovery_min,omitempty"`
	RecoveryMax            string `json:"recovery_max,omitempty"`
	TimeoutBackoffMin      string `json:"timeout_backoff_min,omitempty"`
	TimeoutBackoffMax      string `json:"timeout_backoff_max,omitempty"`
	IdleInterval           string `json:"idle_interval,omitempty"`
	CallTimeout            string `json:"call_timeout,omitempty"`

	// Autostart starts the primary loop at boot instead of waiting for /fisher.
	Autostart bool `json:"autostart,omitempty"`
}

// NotifierConfig controls notification delivery. If the section is omitted,
// the notifier is enabled with defaults.
type NotifierConfig struct {
	Enabled       bool   `json:"enabled"`
	RatePerSec    int    `json:"rate_per_sec,omitempty"`
	RetryMax      int    `json:"retry_max,omitempty"`
	RetryBase     string `json:"retry_base,omitempty"`
	RetryMaxDelay string `json:"retry_max_delay,omitempty"`
	Timeout       string `json:"timeout,omitempty"`
	ParseMode     string `json:"parse_mode,omitempty"`
	HistorySize   int    `json:"history_size,omitempty"`
}

type DigestConfig struct {
	Enabled  bool   `json:"enabled"`
	Schedule string `json:"schedule,omitempty"`
	// Timezone is an IANA name, e.g. "Asia/Jakarta".
	Timezone string `json:"timezone,omitempty"`
}
