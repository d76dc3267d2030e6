package fisher

import (
	"context"
	"errors"
	"time"

	"fisherbot/internal/runtime/supervisor"
	"fisherbot/internal/storage"
	"fisherbot/internal/task/loop"
)

var (
	ErrEmptyCode     = errors.New("fisher: empty verification code")
	ErrNoChannel     = errors.New("fisher: no channel configured")
	ErrNotInventory  = errors.New("fisher: referenced reply is not an inventory")
	ErrStateNotReady = errors.New("fisher: actor state not loaded")
)

// Commands are the remote slash command names the engine invokes.
type Commands struct {
	Fish   string
	Sell   string
	Verify string
	Buy    string
}

// Config holds the engine tunables. Zero values fall back to the defaults below.
type Config struct {
	ActorID string
	// Username is shown in notification payloads.
	Username  string
	ChannelID string
	OwnerID   string
	Commands  Commands

	MinDelay   time.Duration
	MaxDelay   time.Duration
	SellEveryN uint64

	EmeraldThreshold uint64
	GoldThreshold    uint64
	// StrictThreshold switches the spend comparison from >= to >.
	StrictThreshold bool
	EmeraldItem     string
	GoldItem        string

	ChallengeFallbackDelay time.Duration
	HireFallbackDelay      time.Duration

	RecoveryMin       time.Duration
	RecoveryMax       time.Duration
	TimeoutBackoffMin time.Duration
	TimeoutBackoffMax time.Duration
	IdleInterval      time.Duration
	// CallTimeout bounds every remote call.
	CallTimeout time.Duration
	// ErrorDelay is the wait after an unclassified tick failure.
	ErrorDelay time.Duration
}

const (
	DefaultMinDelay               = 300 * time.Second
	DefaultMaxDelay               = 600 * time.Second
	DefaultSellEveryN             = 10
	DefaultThreshold              = 8
	DefaultChallengeFallbackDelay = 10 * time.Second
	DefaultHireFallbackDelay      = 1900 * time.Second
	DefaultRecoveryMin            = 300 * time.Second
	DefaultRecoveryMax            = 600 * time.Second
	DefaultTimeoutBackoffMin      = 30 * time.Second
	DefaultTimeoutBackoffMax      = 90 * time.Second
	DefaultIdleInterval           = 30 * time.Second
	DefaultCallTimeout            = 30 * time.Second
	DefaultErrorDelay             = time.Minute
)

func (c Config) withDefaults() Config {
	if c.Commands.Fish == "" {
		c.Commands.Fish = "fish"
	}
	if c.Commands.Sell == "" {
		c.Commands.Sell = "sell"
	}
	if c.Commands.Verify == "" {
		c.Commands.Verify = "verify"
	}
	if c.Commands.Buy == "" {
		c.Commands.Buy = "buy"
	}
	if c.MinDelay <= 0 {
		c.MinDelay = DefaultMinDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = max(c.MinDelay, DefaultMaxDelay)
	}
	c.MaxDelay = max(c.MaxDelay, c.MinDelay)
	if c.SellEveryN == 0 {
		c.SellEveryN = DefaultSellEveryN
	}
	if c.EmeraldThreshold == 0 {
		c.EmeraldThreshold = DefaultThreshold
	}
	if c.GoldThreshold == 0 {
		c.GoldThreshold = DefaultThreshold
	}
	if c.EmeraldItem == "" {
		c.EmeraldItem = "Auto30m"
	}
	if c.GoldItem == "" {
		c.GoldItem = "Auto10m"
	}
	if c.ChallengeFallbackDelay <= 0 {
		c.ChallengeFallbackDelay = DefaultChallengeFallbackDelay
	}
	if c.HireFallbackDelay <= 0 {
		c.HireFallbackDelay = DefaultHireFallbackDelay
	}
	if c.RecoveryMin <= 0 {
		c.RecoveryMin = DefaultRecoveryMin
	}
	if c.RecoveryMax <= 0 {
		c.RecoveryMax = max(c.RecoveryMin, DefaultRecoveryMax)
	}
	c.RecoveryMax = max(c.RecoveryMax, c.RecoveryMin)
	if c.TimeoutBackoffMin <= 0 {
		c.TimeoutBackoffMin = DefaultTimeoutBackoffMin
	}
	if c.TimeoutBackoffMax <= 0 {
		c.TimeoutBackoffMax = max(c.TimeoutBackoffMin, DefaultTimeoutBackoffMax)
	}
	c.TimeoutBackoffMax = max(c.TimeoutBackoffMax, c.TimeoutBackoffMin)
	if c.IdleInterval <= 0 {
		c.IdleInterval = DefaultIdleInterval
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = DefaultCallTimeout
	}
	if c.ErrorDelay <= 0 {
		c.ErrorDelay = DefaultErrorDelay
	}
	return c
}

// Store is the persistence the engine needs. *storage.Store implements it.
type Store interface {
	LoadActor(ctx context.Context, id string) (storage.ActorState, error)
	SaveActor(ctx context.Context, st storage.ActorState) error
}

// Notifier is the outbound notification surface. *notifier.Sink implements it.
type Notifier interface {
	Notify(ctx context.Context, text string) string
	Amend(ctx context.Context, id, text string)
}

// Status is a point-in-time view of the engine.
type Status struct {
	Actor     storage.ActorState `json:"actor"`
	Loaded    bool               `json:"loaded"`
	ChannelID string             `json:"channel_id"`
	Primary   loop.Snapshot      `json:"primary"`
	Secondary loop.Snapshot      `json:"secondary"`
	// Tasks are the supervisor counters of the process, when supervised.
	Tasks []supervisor.Stats `json:"tasks,omitempty"`
}

// Reaction is published on the event bus as "fisher.<kind>" for each applied event.
type Reaction struct {
	Loop    string `json:"loop"`
	Kind    string `json:"kind"`
	Amount  int64  `json:"amount,omitempty"`
	Item    string `json:"item,omitempty"`
	Count   uint64 `json:"count,omitempty"`
	Code    string `json:"code,omitempty"`
	Balance int64  `json:"balance"`
	Trips   uint64 `json:"trips"`
}

// outcome is what the reaction table tells the calling tick.
type outcome struct {
	// next overrides the randomized delay when positive.
	next time.Duration
	// hired is the worker duration reported by a hire confirmation.
	hired time.Duration
	// pause asks for the primary loop to wait for a human.
	pause bool
}

func (o *outcome) merge(other outcome) {
	if other.next > 0 {
		o.next = other.next
	}
	if other.hired > 0 {
		o.hired = other.hired
	}
	o.pause = o.pause || other.pause
}

const (
	primaryName   = "primary"
	secondaryName = "secondary"
	timeLayout    = "2006-01-02 15:04:05"
)
