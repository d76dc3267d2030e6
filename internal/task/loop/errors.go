package loop

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrAlreadyRunning = errors.New("loop already running")
	ErrNotRunning     = errors.New("loop not running")
	ErrNotPaused      = errors.New("loop not paused")
)

// Halt ends the loop from inside a tick. It is a terminal self-stop, not a failure.
//
//	return 0, loop.Halt("nothing to spend")
func Halt(reason string) error { return haltError{reason: reason} }

// IsHalt reports whether err is wrapped with Halt.
func IsHalt(err error) bool {
	var e haltError
	return errors.As(err, &e)
}

type haltError struct{ reason string }

func (e haltError) Error() string { return "halt: " + e.reason }

// Pause suspends the loop from inside a tick until Resume, Stop or Start.
func Pause(reason string) error { return pauseError{reason: reason} }

// IsPause reports whether err is wrapped with Pause.
func IsPause(err error) bool {
	var e pauseError
	return errors.As(err, &e)
}

type pauseError struct{ reason string }

func (e pauseError) Error() string { return "pause: " + e.reason }

// RetryAfter marks a failed tick with the delay to wait before the next one.
//
//	return 0, loop.RetryAfter(fmt.Errorf("fish: %w", err), 5*time.Minute)
func RetryAfter(err error, after time.Duration) error {
	if err == nil {
		return nil
	}
	if after < 0 {
		after = 0
	}
	return retryAfterError{err: err, after: after}
}

// RetryAfterError is implemented by errors that carry an explicit next delay.
type RetryAfterError interface {
	error
	RetryAfter() time.Duration
}

type retryAfterError struct {
	err   error
	after time.Duration
}

func (e retryAfterError) Error() string             { return fmt.Sprintf("retry-after(%s): %v", e.after, e.err) }
func (e retryAfterError) Unwrap() error             { return e.err }
func (e retryAfterError) RetryAfter() time.Duration { return e.after }
