package supervisor

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	logx "fisherbot/pkg/logx"
)

// healthyRun is how long a run must last for the backoff to start over.
const healthyRun = 30 * time.Second

type RestartOption func(*restartPolicy)

type restartPolicy struct {
	min, max    time.Duration
	maxRestarts int // 0 means unlimited
}

func WithRestartBackoff(min, max time.Duration) RestartOption {
	return func(p *restartPolicy) {
		if min > 0 {
			p.min = min
		}
		if max > 0 {
			p.max = max
		}
	}
}

// WithMaxRestarts gives up after n restarts and records the last error. The
// first run does not count.
func WithMaxRestarts(n int) RestartOption { return func(p *restartPolicy) { p.maxRestarts = n } }

// backoff doubles from min to max with up to 20% jitter.
type backoff struct {
	min, max, cur time.Duration
}

func (b *backoff) next() time.Duration {
	if b.cur < b.min {
		b.cur = b.min
	}
	d := b.cur
	b.cur = min(b.cur*2, b.max)
	if j := d / 5; j > 0 {
		d += rand.N(j + 1)
	}
	return d
}

func (b *backoff) reset() { b.cur = b.min }

// GoRestart runs fn and runs it again after an error or panic, with backoff,
// until it returns nil or the context ends.
func (s *Supervisor) GoRestart(name string, fn func(ctx context.Context) error, opts ...RestartOption) {
	if fn == nil {
		return
	}
	p := restartPolicy{min: 250 * time.Millisecond, max: 30 * time.Second}
	for _, o := range opts {
		o(&p)
	}
	p.max = max(p.max, p.min)
	bo := backoff{min: p.min, max: p.max}

	s.spawn(func() {
		for restarts := 0; s.ctx.Err() == nil; restarts++ {
			started := time.Now()
			err := s.runOnce(name, restarts > 0, fn)
			if err == nil || s.ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return
			}
			if p.maxRestarts > 0 && restarts >= p.maxRestarts {
				s.log.Error("goroutine gave up", logx.String("name", name), logx.Int("restarts", restarts), logx.Err(err))
				s.fail(name, err)
				return
			}
			if time.Since(started) >= healthyRun {
				bo.reset()
			}
			wait := bo.next()
			s.log.Warn("goroutine restarting", logx.String("name", name), logx.Duration("backoff", wait), logx.Err(err))
			t := time.NewTimer(wait)
			select {
			case <-s.ctx.Done():
				t.Stop()
				return
			case <-t.C:
			}
		}
	})
}
