package notifier

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"fisherbot/internal/eventbus"
	kit "fisherbot/internal/transport"
	logx "fisherbot/pkg/logx"
)

var (
	ErrDisabled  = errors.New("notifier disabled")
	ErrBadID     = errors.New("notifier: malformed message id")
	errNoMessage = errors.New("notifier: nothing to amend")
)

// Sink is a best-effort notification channel. It is safe for concurrent use.
type Sink struct {
	mu      sync.Mutex
	cfg     Config
	limiter *rate.Limiter
	sender  kit.Sender
	log     logx.Logger
	bus     eventbus.Bus

	lastID string

	hmu     sync.Mutex
	history []HistoryItem
}

func New(cfg Config, sender kit.Sender, log logx.Logger, bus eventbus.Bus) *Sink {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Sink{sender: sender, log: log.With(logx.String("comp", "notifier")), bus: bus}
	s.applyLocked(cfg)
	return s
}

func (s *Sink) Apply(cfg Config) {
	s.mu.Lock()
	s.applyLocked(cfg)
	s.mu.Unlock()
}

func (s *Sink) applyLocked(cfg Config) {
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 1
	}
	if cfg.RetryMax < 0 {
		cfg.RetryMax = 0
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 500 * time.Millisecond
	}
	if cfg.RetryMaxDelay <= 0 {
		cfg.RetryMaxDelay = 5 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 100
	}
	s.cfg = cfg
	// Burst of 2 lets a post and its amend go out back to back.
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), 2)
}

// LastMessageID returns the id of the last successful Notify, or "".
func (s *Sink) LastMessageID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastID
}

// Notify posts text and returns its message id. On failure it logs and returns "",
// leaving the last id untouched.
func (s *Sink) Notify(ctx context.Context, text string) string {
	s.mu.Lock()
	cfg, lim, sender := s.cfg, s.limiter, s.sender
	s.mu.Unlock()

	if !cfg.Enabled || sender == nil || cfg.ChatID == 0 {
		s.log.Debug("notify skipped", logx.Err(ErrDisabled))
		return ""
	}
	to := kit.ChatTarget{ChatID: cfg.ChatID, ThreadID: cfg.ThreadID}

	var ref kit.MessageRef
	err := s.deliver(ctx, cfg, lim, "notify", func(cctx context.Context) error {
		r, err := sender.SendText(cctx, to, text, s.options(cfg))
		if err == nil {
			ref = r
		}
		return err
	})
	if err != nil {
		s.log.Warn("notify failed", logx.Err(err))
		s.publish("notifier.failed", NotificationEvent{ChatID: to.ChatID, ThreadID: to.ThreadID, Error: err.Error()})
		return ""
	}

	id := EncodeID(ref)
	s.mu.Lock()
	s.lastID = id
	s.mu.Unlock()
	s.appendHistory(HistoryItem{At: time.Now(), ID: id, Text: text}, cfg.HistorySize)
	s.publish("notifier.sent", NotificationEvent{ID: id, ChatID: ref.ChatID, ThreadID: ref.ThreadID})
	return id
}

// Amend replaces the text of message id. An empty id targets the last message.
func (s *Sink) Amend(ctx context.Context, id, text string) {
	s.mu.Lock()
	cfg, lim, sender := s.cfg, s.limiter, s.sender
	if id == "" {
		id = s.lastID
	}
	s.mu.Unlock()

	if !cfg.Enabled || sender == nil {
		return
	}
	if id == "" {
		s.log.Debug("amend skipped", logx.Err(errNoMessage))
		return
	}
	ref, err := DecodeID(id)
	if err != nil {
		s.log.Warn("amend failed", logx.String("id", id), logx.Err(err))
		return
	}

	err = s.deliver(ctx, cfg, lim, "amend", func(cctx context.Context) error {
		return sender.EditText(cctx, ref, text, s.options(cfg))
	})
	if err != nil {
		s.log.Warn("amend failed", logx.String("id", id), logx.Err(err))
		s.publish("notifier.failed", NotificationEvent{ID: id, ChatID: ref.ChatID, ThreadID: ref.ThreadID, Error: err.Error()})
		return
	}
	s.appendHistory(HistoryItem{At: time.Now(), ID: id, Text: text, Edited: true}, cfg.HistorySize)
	s.publish("notifier.amended", NotificationEvent{ID: id, ChatID: ref.ChatID, ThreadID: ref.ThreadID})
}

// Snapshot returns the delivery history, oldest first.
func (s *Sink) Snapshot() []HistoryItem {
	s.hmu.Lock()
	out := append([]HistoryItem(nil), s.history...)
	s.hmu.Unlock()
	return out
}

func (s *Sink) options(cfg Config) *kit.SendOptions {
	return &kit.SendOptions{ParseMode: cfg.ParseMode, DisablePreview: true}
}

// deliver runs fn with rate limiting and retries, all bounded by cfg.Timeout.
func (s *Sink) deliver(ctx context.Context, cfg Config, lim *rate.Limiter, op string, fn func(context.Context) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	attempts := 1 + cfg.RetryMax
	var last error
	for attempt := 1; attempt <= attempts; attempt++ {
		if lim != nil {
			if err := lim.Wait(ctx); err != nil {
				if last != nil {
					return fmt.Errorf("%w (last: %v)", err, last)
				}
				return err
			}
		}
		err := fn(ctx)
		if err == nil {
			return nil
		}
		last = err
		s.log.Debug("notify send failed", logx.String("op", op), logx.Int("attempt", attempt), logx.Int("max", attempts), logx.Err(err))
		if attempt == attempts {
			break
		}
		t := time.NewTimer(retryDelay(cfg, attempt))
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return fmt.Errorf("%w (last: %v)", ctx.Err(), last)
		}
	}
	return last
}

func (s *Sink) appendHistory(it HistoryItem, max int) {
	s.hmu.Lock()
	s.history = append(s.history, it)
	if len(s.history) > max {
		s.history = s.history[len(s.history)-max:]
	}
	s.hmu.Unlock()
}

func (s *Sink) publish(typ string, ev NotificationEvent) {
	if s.bus == nil {
		return
	}
	now := time.Now()
	ev.At = now
	s.bus.Publish(eventbus.Event{Type: typ, Time: now, Data: ev})
}

// EncodeID renders a message reference as an opaque id.
func EncodeID(ref kit.MessageRef) string {
	return strconv.FormatInt(ref.ChatID, 10) + ":" + strconv.Itoa(ref.ThreadID) + ":" + strconv.Itoa(ref.MessageID)
}

// DecodeID parses an id produced by EncodeID.
func DecodeID(id string) (kit.MessageRef, error) {
	parts := strings.Split(id, ":")
	if len(parts) != 3 {
		return kit.MessageRef{}, ErrBadID
	}
	chat, err1 := strconv.ParseInt(parts[0], 10, 64)
	thread, err2 := strconv.Atoi(parts[1])
	msg, err3 := strconv.Atoi(parts[2])
	if err := errors.Join(err1, err2, err3); err != nil {
		return kit.MessageRef{}, fmt.Errorf("%w: %w", ErrBadID, err)
	}
	return kit.MessageRef{ChatID: chat, ThreadID: thread, MessageID: msg}, nil
}

func retryDelay(cfg Config, attempt int) time.Duration {
	// Exponential backoff base * 2^(attempt-1), capped, with 0.7..1.3 jitter.
	d := cfg.RetryBase
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= cfg.RetryMaxDelay {
			d = cfg.RetryMaxDelay
			break
		}
	}
	j := 0.7 + rand.Float64()*0.6
	d = time.Duration(float64(d) * j)
	if d > cfg.RetryMaxDelay {
		d = cfg.RetryMaxDelay
	}
	return d
}
