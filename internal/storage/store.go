package storage

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/sync/singleflight"

	logx "fisherbot/pkg/logx"
)

// Store is a resilient handle on the configured database.
// It is safe for concurrent use.
type Store struct {
	cfg  Config
	d    dialect
	dial dialFunc
	log  logx.Logger

	mu     sync.RWMutex
	c      conn
	closed bool

	sf singleflight.Group

	dials   atomic.Uint64
	retries atomic.Uint64
}

// Open validates cfg and prepares a Store. No connection is made until Connect.
func Open(cfg Config, log logx.Logger) (*Store, error) {
	cfg = cfg.withDefaults()
	d, err := dialectFor(cfg.Driver)
	if err != nil {
		return nil, err
	}
	dsn, err := d.dsn(cfg)
	if err != nil {
		return nil, err
	}
	return newStore(cfg, d, sqlDialer(d, dsn, cfg), log), nil
}

func newStore(cfg Config, d dialect, dial dialFunc, log logx.Logger) *Store {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Store{
		cfg:  cfg.withDefaults(),
		d:    d,
		dial: dial,
		log:  log.With(logx.String("comp", "storage"), logx.String("driver", d.name)),
	}
}

// Driver returns the active dialect name.
func (s *Store) Driver() string { return s.d.name }

// Reconnects reports how many times the pool was recreated after the first connect.
func (s *Store) Reconnects() uint64 {
	n := s.dials.Load()
	if n == 0 {
		return 0
	}
	return n - 1
}

// Retries reports how many operation attempts were retried.
func (s *Store) Retries() uint64 { return s.retries.Load() }

// Connect opens the pool and creates missing tables. Safe to call again.
func (s *Store) Connect(ctx context.Context) error {
	stmts, err := s.d.statements()
	if err != nil {
		return fmt.Errorf("storage: load schema: %w: %w", ErrInvalid, err)
	}
	err = s.do(ctx, "connect", func(ctx context.Context, c conn) error {
		for _, stmt := range stmts {
			if err := c.Exec(ctx, stmt); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.log.Info("storage ready", logx.Int("tables", len(stmts)))
	return nil
}

// Execute runs a statement that returns no rows.
func (s *Store) Execute(ctx context.Context, query string, args ...any) error {
	return s.do(ctx, "execute", func(ctx context.Context, c conn) error {
		return c.Exec(ctx, query, args...)
	})
}

// FetchOne returns the first row of query. ok is false when there is none.
func (s *Store) FetchOne(ctx context.Context, query string, args ...any) (Row, bool, error) {
	rows, err := s.FetchAll(ctx, query, args...)
	if err != nil || len(rows) == 0 {
		return nil, false, err
	}
	return rows[0], true, nil
}

// FetchAll returns every row of query.
func (s *Store) FetchAll(ctx context.Context, query string, args ...any) ([]Row, error) {
	var out []Row
	err := s.do(ctx, "fetch", func(ctx context.Context, c conn) error {
		rows, err := c.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		out = rows
		return nil
	})
	return out, err
}

// Close releases the pool. Further operations return ErrClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.closed = true
	s.mu.Unlock()
	if c == nil {
		return nil
	}
	return c.Close()
}

// do runs fn under the retry policy.
func (s *Store) do(ctx context.Context, op string, fn func(ctx context.Context, c conn) error) error {
	var last error
	for attempt := 1; attempt <= s.cfg.RetryAttempts; attempt++ {
		if attempt > 1 {
			s.retries.Add(1)
			backoff := time.Duration(attempt-1) * s.cfg.RetryBase
			s.log.Warn("storage retry",
				logx.String("op", op),
				logx.Int("attempt", attempt),
				logx.Duration("backoff", backoff),
				logx.Err(last),
			)
			if err := sleepCtx(ctx, backoff); err != nil {
				return fmt.Errorf("storage: %s: %w: %w", op, ErrUnavailable, err)
			}
			if err := s.reconnect(ctx); err != nil {
				if errors.Is(err, ErrClosed) {
					return err
				}
				last = err
				continue
			}
		}

		c, err := s.live(ctx)
		if err != nil {
			if errors.Is(err, ErrClosed) {
				return err
			}
			last = err
			continue
		}

		actx, cancel := context.WithTimeout(ctx, s.cfg.OpTimeout)
		err = fn(actx, c)
		timedOut := errors.Is(actx.Err(), context.DeadlineExceeded)
		cancel()
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return fmt.Errorf("storage: %s: %w: %w", op, ErrUnavailable, ctx.Err())
		}
		if !timedOut && !s.isConnError(err) {
			return fmt.Errorf("storage: %s: %w: %w", op, ErrInvalid, err)
		}
		last = err
	}
	return fmt.Errorf("storage: %s: %w after %d attempts: %w", op, ErrUnavailable, s.cfg.RetryAttempts, last)
}

// live returns a connection that answered the probe, recreating the pool if needed.
func (s *Store) live(ctx context.Context) (conn, error) {
	s.mu.RLock()
	c, closed := s.c, s.closed
	s.mu.RUnlock()
	if closed {
		return nil, ErrClosed
	}
	if c != nil {
		pctx, cancel := context.WithTimeout(ctx, s.cfg.OpTimeout)
		err := c.Probe(pctx)
		cancel()
		if err == nil {
			return c, nil
		}
		s.log.Warn("storage probe failed", logx.Err(err))
	}
	if err := s.reconnect(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.c == nil {
		return nil, ErrClosed
	}
	return s.c, nil
}

// reconnect tears down the current pool and dials a new one. Concurrent
// callers share a single dial.
func (s *Store) reconnect(ctx context.Context) error {
	_, err, _ := s.sf.Do("reconnect", func() (any, error) {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return nil, ErrClosed
		}
		old := s.c
		s.c = nil
		s.mu.Unlock()
		if old != nil {
			_ = old.Close()
		}

		dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.OpTimeout)
		defer cancel()
		c, err := s.dial(dctx)
		if err != nil {
			s.log.Warn("storage dial failed", logx.Err(err))
			return nil, err
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		if s.closed {
			_ = c.Close()
			return nil, ErrClosed
		}
		s.c = c
		if s.dials.Add(1) > 1 {
			s.log.Info("storage reconnected", logx.Uint64("reconnects", s.dials.Load()-1))
		}
		return nil, nil
	})
	return err
}

func (s *Store) isConnError(err error) bool {
	if IsConnError(err) {
		return true
	}
	return s.d.transient != nil && s.d.transient(err)
}

// IsConnError reports whether err is a connection-class failure worth a reconnect and retry.
func IsConnError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EPIPE) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}
	return isMySQLTransient(err)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
