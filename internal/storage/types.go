package storage

import (
	"errors"
	"time"
)

var (
	// ErrUnavailable is returned when retries are exhausted on connection-class failures.
	ErrUnavailable = errors.New("storage unavailable")
	// ErrInvalid is returned for failures that are not worth retrying (syntax, constraints, decoding).
	ErrInvalid = errors.New("storage invalid operation")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("storage closed")
)

const (
	DefaultRetryAttempts   = 3
	DefaultRetryBase       = time.Second
	DefaultOpTimeout       = 10 * time.Second
	DefaultMaxOpenConns    = 4
	DefaultConnMaxLifetime = 30 * time.Minute
)

// Config configures storage.
//
// Driver values:
//   - "mysql": network MySQL/MariaDB server (Host, Port, User, Password, Name)
//   - "sqlite": SQLite database file (Path)
type Config struct {
	Driver string

	Host     string
	Port     int
	User     string
	Password string
	Name     string

	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default

	MaxOpenConns    int
	ConnMaxLifetime time.Duration

	RetryAttempts int
	RetryBase     time.Duration
	OpTimeout     time.Duration
}

func (c Config) withDefaults() Config {
	if c.RetryAttempts <= 0 {
		c.RetryAttempts = DefaultRetryAttempts
	}
	if c.RetryBase <= 0 {
		c.RetryBase = DefaultRetryBase
	}
	if c.OpTimeout <= 0 {
		c.OpTimeout = DefaultOpTimeout
	}
	if c.MaxOpenConns <= 0 {
		c.MaxOpenConns = DefaultMaxOpenConns
	}
	if c.ConnMaxLifetime <= 0 {
		c.ConnMaxLifetime = DefaultConnMaxLifetime
	}
	if c.Port <= 0 {
		c.Port = 3306
	}
	return c
}

// Row is one result row keyed by column name. Text columns are decoded as string.
type Row map[string]any

// ActorState is the persisted progress of the automated actor.
type ActorState struct {
	ActorID     string
	Trips       uint64
	Balance     int64
	Clan        string
	Biome       string
	GoldFish    uint64
	EmeraldFish uint64
}

// User is the display identity of an actor.
type User struct {
	UserID      string
	DisplayName string
}

// Settings are the per-actor command settings.
type Settings struct {
	UserID   string
	OwnerID  string
	Prefix   string
	ServerID string
}
