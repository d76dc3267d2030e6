package storage

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"
)

// fakeBackend counts calls across every conn it dials.
type fakeBackend struct {
	mu sync.Mutex

	dials     int
	dialErr   error
	execCalls int
	failLeft  int
	failErr   error
	probeFail int
	rows      []Row
}

type fakeConn struct {
	b      *fakeBackend
	closed bool
}

func (b *fakeBackend) dial(context.Context) (conn, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.dialErr != nil {
		return nil, b.dialErr
	}
	b.dials++
	return &fakeConn{b: b}, nil
}

func (b *fakeBackend) failNext(n int, err error) {
	b.mu.Lock()
	b.failLeft, b.failErr, b.execCalls = n, err, 0
	b.mu.Unlock()
}

func (c *fakeConn) Probe(context.Context) error {
	c.b.mu.Lock()
	defer c.b.mu.Unlock()
	if c.b.probeFail > 0 {
		c.b.probeFail--
		return driver.ErrBadConn
	}
	return nil
}

func (c *fakeConn) call() error {
	c.b.mu.Lock()
	defer c.b.mu.Unlock()
	c.b.execCalls++
	if c.b.failLeft > 0 {
		c.b.failLeft--
		return c.b.failErr
	}
	return nil
}

func (c *fakeConn) Exec(context.Context, string, ...any) error { return c.call() }

func (c *fakeConn) Query(context.Context, string, ...any) ([]Row, error) {
	if err := c.call(); err != nil {
		return nil, err
	}
	c.b.mu.Lock()
	defer c.b.mu.Unlock()
	return c.b.rows, nil
}

func (c *fakeConn) Close() error { c.closed = true; return nil }

func newFakeStore(t *testing.T, b *fakeBackend) *Store {
	t.Helper()
	s := newStore(Config{RetryBase: time.Millisecond, OpTimeout: time.Second}, sqliteDialect, b.dial, logxNop())
	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	return s
}

func TestRetryRecoversAfterTwoConnectionFailures(t *testing.T) {
	t.Parallel()
	b := &fakeBackend{}
	s := newFakeStore(t, b)
	b.failNext(2, driver.ErrBadConn)

	if err := s.Execute(context.Background(), "UPDATE x SET y = 1"); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if got := s.Reconnects(); got != 2 {
		t.Fatalf("Reconnects = %d, want 2", got)
	}
	if b.execCalls != 3 {
		t.Fatalf("execCalls = %d, want 3", b.execCalls)
	}
}

func TestRetryFetchRecovers(t *testing.T) {
	t.Parallel()
	b := &fakeBackend{rows: []Row{{"one": int64(1)}}}
	s := newFakeStore(t, b)
	b.failNext(2, &mysql.MySQLError{Number: crServerGone, Message: "server has gone away"})

	row, ok, err := s.FetchOne(context.Background(), "SELECT 1 AS one")
	if err != nil || !ok {
		t.Fatalf("FetchOne = (%v, %v, %v)", row, ok, err)
	}
	if row["one"] != int64(1) {
		t.Fatalf("row = %v", row)
	}
	if got := s.Reconnects(); got != 2 {
		t.Fatalf("Reconnects = %d, want 2", got)
	}
}

func TestRetryExhaustion(t *testing.T) {
	t.Parallel()
	b := &fakeBackend{}
	s := newFakeStore(t, b)
	b.failNext(1000, mysql.ErrInvalidConn)

	err := s.Execute(context.Background(), "UPDATE x SET y = 1")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
	if !errors.Is(err, mysql.ErrInvalidConn) {
		t.Fatalf("err = %v, want it to wrap the last connection error", err)
	}
	if b.execCalls != 3 {
		t.Fatalf("execCalls = %d, want 3", b.execCalls)
	}
	if got := s.Reconnects(); got != 2 {
		t.Fatalf("Reconnects = %d, want 2", got)
	}
}

func TestNonRetryableErrorIsInvalid(t *testing.T) {
	t.Parallel()
	b := &fakeBackend{}
	s := newFakeStore(t, b)
	b.failNext(1, &mysql.MySQLError{Number: 1064, Message: "syntax error"})

	err := s.Execute(context.Background(), "UPDAT x")
	if !errors.Is(err, ErrInvalid) {
		t.Fatalf("err = %v, want ErrInvalid", err)
	}
	if b.execCalls != 1 {
		t.Fatalf("execCalls = %d, want 1", b.execCalls)
	}
	if got := s.Reconnects(); got != 0 {
		t.Fatalf("Reconnects = %d, want 0", got)
	}
}

func TestProbeFailureRecreatesPool(t *testing.T) {
	t.Parallel()
	b := &fakeBackend{}
	s := newFakeStore(t, b)
	b.mu.Lock()
	b.probeFail = 1
	b.mu.Unlock()

	if err := s.Execute(context.Background(), "UPDATE x SET y = 1"); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if got := s.Reconnects(); got != 1 {
		t.Fatalf("Reconnects = %d, want 1", got)
	}
}

func TestRetryBackoffHonoursContext(t *testing.T) {
	t.Parallel()
	b := &fakeBackend{}
	s := newStore(Config{RetryBase: time.Hour, OpTimeout: time.Second}, sqliteDialect, b.dial, logxNop())
	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	b.failNext(10, driver.ErrBadConn)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	err := s.Execute(ctx, "UPDATE x SET y = 1")
	if !errors.Is(err, ErrUnavailable) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want ErrUnavailable wrapping deadline", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Fatalf("backoff did not honour context")
	}
}

func TestClosedStore(t *testing.T) {
	t.Parallel()
	b := &fakeBackend{}
	s := newFakeStore(t, b)
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := s.Execute(context.Background(), "SELECT 1"); !errors.Is(err, ErrClosed) {
		t.Fatalf("err = %v, want ErrClosed", err)
	}
}

func TestIsConnError(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"bad conn", driver.ErrBadConn, true},
		{"wrapped bad conn", fmt.Errorf("exec: %w", driver.ErrBadConn), true},
		{"invalid conn", mysql.ErrInvalidConn, true},
		{"gone away", &mysql.MySQLError{Number: 2006}, true},
		{"lost connection", &mysql.MySQLError{Number: 2013}, true},
		{"too many connections", &mysql.MySQLError{Number: 1040}, true},
		{"syntax", &mysql.MySQLError{Number: 1064}, false},
		{"duplicate key", &mysql.MySQLError{Number: 1062}, false},
		{"net op", &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("refused")}, true},
		{"plain", errors.New("boom"), false},
	}
	for _, tt := range tests {
		if got := IsConnError(tt.err); got != tt.want {
			t.Fatalf("%s: IsConnError(%v) = %v, want %v", tt.name, tt.err, got, tt.want)
		}
	}
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	t.Parallel()
	if _, err := Open(Config{Driver: "postgres"}, logxNop()); err == nil {
		t.Fatal("expected error for unknown driver")
	}
	if _, err := Open(Config{Driver: "mysql"}, logxNop()); err == nil {
		t.Fatal("expected error for mysql without host")
	}
}
