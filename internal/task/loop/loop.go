// Package loop runs one named periodic task as an explicit state machine.
//
// A Loop owns at most one goroutine and at most one in-flight tick. The sleep
// between ticks is interruptible by Stop, Resume and context cancellation, so
// Stop takes effect within one tick rather than one delay window. Stop never
// cancels an in-flight tick; the tick finishes its current step first.
package loop

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"fisherbot/internal/eventbus"
	"fisherbot/internal/runtime/supervisor"
	logx "fisherbot/pkg/logx"
)

type Loop struct {
	name string
	tick TickFunc
	opt  Options
	log  logx.Logger
	bus  eventbus.Bus
	sup  *supervisor.Supervisor

	mu       sync.Mutex
	status   Status
	stopCh   chan struct{}
	resumeCh chan struct{}
	done     chan struct{}
	// unpause is set by Unpause while a tick is in flight; a Pause returned
	// by that tick is then dropped.
	unpause bool

	next     time.Duration
	nextAt   time.Time
	ticks    uint64
	failures uint64
	lastTick time.Time
	lastErr  string
}

// New creates an Idle loop. sup may be nil, in which case plain goroutines are used.
func New(name string, tick TickFunc, opt Options, log logx.Logger, bus eventbus.Bus, sup *supervisor.Supervisor) *Loop {
	if opt.ErrorDelay <= 0 {
		opt.ErrorDelay = time.Minute
	}
	if opt.IdleDelay <= 0 {
		opt.IdleDelay = 30 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Loop{
		name: name,
		tick: tick,
		opt:  opt,
		log:  log.With(logx.String("loop", name)),
		bus:  bus,
		sup:  sup,
	}
}

func (l *Loop) Name() string { return l.name }

func (l *Loop) Status() Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.status
}

func (l *Loop) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Snapshot{
		Name:      l.name,
		Status:    l.status.String(),
		NextDelay: l.next,
		NextAt:    l.nextAt,
		Ticks:     l.ticks,
		Failures:  l.failures,
		LastTick:  l.lastTick,
		LastErr:   l.lastErr,
	}
}

// Start launches the loop. The first tick runs immediately. A loop that is
// still winding down after Stop is awaited first, bounded by ctx.
func (l *Loop) Start(ctx context.Context) error {
	l.mu.Lock()
	switch l.status {
	case Running, Paused:
		l.mu.Unlock()
		return ErrAlreadyRunning
	case Stopped:
		done := l.done
		l.mu.Unlock()
		if done != nil {
			select {
			case <-done:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		l.mu.Lock()
		if l.status != Idle {
			l.mu.Unlock()
			return ErrAlreadyRunning
		}
	}

	stopCh := make(chan struct{})
	resumeCh := make(chan struct{}, 1)
	done := make(chan struct{})
	l.stopCh, l.resumeCh, l.done = stopCh, resumeCh, done
	l.unpause = false
	l.setStatusLocked(Running, "start")
	l.mu.Unlock()

	run := func(rctx context.Context) { l.run(rctx, stopCh, resumeCh, done) }
	// The loop outlives the caller's request context; only the supervisor (or
	// process) context ends it.
	if l.sup != nil {
		l.sup.Go0("loop."+l.name, run)
	} else {
		go run(context.WithoutCancel(ctx))
	}
	return nil
}

// Stop signals the loop to end. It returns immediately; use Wait to block
// until the goroutine has exited and the loop is Idle again.
func (l *Loop) Stop() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	switch l.status {
	case Idle, Stopped:
		return ErrNotRunning
	}
	l.setStatusLocked(Stopped, "stop")
	close(l.stopCh)
	return nil
}

// Pause suspends ticking after the in-flight tick, if any.
func (l *Loop) Pause() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	switch l.status {
	case Idle, Stopped:
		return ErrNotRunning
	case Paused:
		return nil
	}
	l.setStatusLocked(Paused, "pause")
	return nil
}

// Resume leaves Paused; the next tick runs immediately.
func (l *Loop) Resume() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.status != Paused {
		return ErrNotPaused
	}
	l.setStatusLocked(Running, "resume")
	select {
	case l.resumeCh <- struct{}{}:
	default:
	}
	return nil
}

// Unpause is Resume for callers that may race the tick which pauses the
// loop: on a Running loop it arranges for a Pause returned by the in-flight
// tick to be ignored.
func (l *Loop) Unpause() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	switch l.status {
	case Paused:
		l.setStatusLocked(Running, "unpause")
		select {
		case l.resumeCh <- struct{}{}:
		default:
		}
	case Running:
		l.unpause = true
	default:
		return ErrNotRunning
	}
	return nil
}

// Wait blocks until the loop goroutine has exited, bounded by ctx.
func (l *Loop) Wait(ctx context.Context) error {
	l.mu.Lock()
	done := l.done
	l.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Loop) run(ctx context.Context, stopCh <-chan struct{}, resumeCh <-chan struct{}, done chan struct{}) {
	defer close(done)
	defer l.finish(done)

	for {
		if l.Status() == Paused {
			select {
			case <-ctx.Done():
				return
			case <-stopCh:
				return
			case <-resumeCh:
			}
		}
		if stopping(stopCh) || ctx.Err() != nil {
			return
		}

		delay, halt := l.runTick(ctx)
		if halt || stopping(stopCh) {
			return
		}
		if l.Status() == Paused {
			continue
		}

		l.mu.Lock()
		l.next, l.nextAt = delay, time.Now().Add(delay)
		l.mu.Unlock()

		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-stopCh:
			t.Stop()
			return
		case <-resumeCh:
			t.Stop()
		case <-t.C:
		}
	}
}

// runTick executes one tick with panic recovery and maps its result onto the
// next delay. halt reports a terminal self-stop.
func (l *Loop) runTick(ctx context.Context) (delay time.Duration, halt bool) {
	start := time.Now()
	l.mu.Lock()
	l.unpause = false
	l.mu.Unlock()
	d, err := l.protectedTick(ctx)

	l.mu.Lock()
	unpause := l.unpause
	l.unpause = false
	l.ticks++
	l.lastTick = start
	if err != nil && !IsHalt(err) && !IsPause(err) {
		l.failures++
		l.lastErr = err.Error()
	}
	l.mu.Unlock()

	switch {
	case err == nil:
	case IsHalt(err):
		l.log.Info("loop halted", logx.String("reason", err.Error()))
		l.mu.Lock()
		if l.status == Running || l.status == Paused {
			l.setStatusLocked(Stopped, err.Error())
		}
		l.mu.Unlock()
		return 0, true
	case IsPause(err) && unpause:
		l.log.Info("tick pause dropped, unpause already requested", logx.String("reason", err.Error()))
	case IsPause(err):
		l.log.Info("loop paused by tick", logx.String("reason", err.Error()))
		l.mu.Lock()
		// Re-checked under the lock so an Unpause racing the tick's return
		// is not lost.
		if l.unpause {
			l.unpause = false
			l.mu.Unlock()
			l.log.Info("tick pause dropped, unpause already requested")
			break
		}
		if l.status == Running {
			l.setStatusLocked(Paused, err.Error())
		}
		l.mu.Unlock()
		return 0, false
	default:
		var ra RetryAfterError
		if errors.As(err, &ra) {
			d = ra.RetryAfter()
		} else if d <= 0 {
			d = l.opt.ErrorDelay
		}
		l.log.Warn("tick failed", logx.Err(err), logx.Duration("next", d), logx.Duration("took", time.Since(start)))
	}
	if d <= 0 {
		d = l.opt.IdleDelay
	}
	return d, false
}

func (l *Loop) protectedTick(ctx context.Context) (d time.Duration, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tick panic: %v", r)
			d = 0
		}
	}()
	return l.tick(ctx)
}

func (l *Loop) finish(done chan struct{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	// A newer Start owns the loop state.
	if l.done != done {
		return
	}
	if l.status != Stopped {
		l.setStatusLocked(Stopped, "exit")
	}
	l.setStatusLocked(Idle, "exited")
	l.next, l.nextAt = 0, time.Time{}
}

func (l *Loop) setStatusLocked(to Status, reason string) {
	from := l.status
	if from == to {
		return
	}
	l.status = to
	l.log.Debug("loop transition", logx.String("from", from.String()), logx.String("to", to.String()), logx.String("reason", reason))
	if l.bus != nil {
		l.bus.Publish(eventbus.Event{
			Type: "loop." + to.String(),
			Data: Transition{Loop: l.name, From: from.String(), To: to.String(), Reason: reason},
		})
	}
}

func stopping(stopCh <-chan struct{}) bool {
	select {
	case <-stopCh:
		return true
	default:
		return false
	}
}
