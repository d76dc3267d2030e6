package loop

import (
	"context"
	"math/rand/v2"
	"time"
)

// Status is the lifecycle state of a Loop.
//
//	Idle -> Running -> {Paused <-> Running} -> Stopped -> Idle
type Status int

const (
	Idle Status = iota
	Running
	Paused
	Stopped
)

func (s Status) String() string {
	switch s {
	case Running:
		return "running"
	case Paused:
		return "paused"
	case Stopped:
		return "stopped"
	default:
		return "idle"
	}
}

// TickFunc runs one cycle and returns the delay before the next one.
// Special errors: Halt, Pause, RetryAfter. Any other error is logged and the
// loop continues after ErrorDelay.
type TickFunc func(ctx context.Context) (time.Duration, error)

type Options struct {
	// ErrorDelay is used after a failed or panicking tick with no RetryAfter hint.
	ErrorDelay time.Duration
	// IdleDelay is used when a tick returns a zero delay.
	IdleDelay time.Duration
}

// Snapshot is a point-in-time view of a loop.
type Snapshot struct {
	Name      string        `json:"name"`
	Status    string        `json:"status"`
	NextDelay time.Duration `json:"next_delay"`
	NextAt    time.Time     `json:"next_at,omitempty"`
	Ticks     uint64        `json:"ticks"`
	Failures  uint64        `json:"failures"`
	LastTick  time.Time     `json:"last_tick,omitempty"`
	LastErr   string        `json:"last_err,omitempty"`
}

// Transition is published on the event bus on every status change.
type Transition struct {
	Loop   string `json:"loop"`
	From   string `json:"from"`
	To     string `json:"to"`
	Reason string `json:"reason,omitempty"`
}

// Uniform returns a random duration in [min, max].
func Uniform(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + rand.N(max-min+1)
}
