// Package adapter connects fisherbot to Telegram through telebot: owner
// commands arrive as transport updates, notifications leave through
// SendText and EditText.
package adapter

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	tele "gopkg.in/telebot.v4"

	rtsup "fisherbot/internal/runtime/supervisor"
	kit "fisherbot/internal/transport"
	logx "fisherbot/pkg/logx"
)

const dropReportEvery = 5 * time.Second

type Config struct {
	Token       string
	PollTimeout time.Duration
}

type Adapter struct {
	cfg Config
	log logx.Logger
	bot *tele.Bot

	// out is the current consumer; nil while stopped.
	out atomic.Pointer[chan<- kit.Update]
	// dropped counts updates lost to a full consumer since the last report.
	dropped atomic.Uint64

	mu  sync.Mutex
	sup *rtsup.Supervisor

	menuMu sync.Mutex
	menu   []tele.Command
}

var (
	_ kit.Adapter            = (*Adapter)(nil)
	_ kit.CommandMenuUpdater = (*Adapter)(nil)
)

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram.token is empty")
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 10 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: cfg.PollTimeout, AllowedUpdates: []string{"message"}},
		OnError: func(err error, c tele.Context) {
			log.Warn("telegram handler error", logx.Err(err))
		},
	})
	if err != nil {
		return nil, err
	}
	a := &Adapter{cfg: cfg, log: log, bot: b}
	b.Handle(tele.OnText, a.onText)
	return a, nil
}

func (a *Adapter) onText(c tele.Context) error {
	m := c.Message()
	if m == nil || m.Sender == nil || m.Chat == nil {
		return nil
	}
	out := a.out.Load()
	if out == nil {
		return nil
	}
	up := kit.Update{Message: &kit.Message{
		ID:           m.ID,
		ChatID:       m.Chat.ID,
		ThreadID:     m.ThreadID,
		FromID:       m.Sender.ID,
		FromUsername: m.Sender.Username,
		Text:         m.Text,
	}}
	select {
	case *out <- up:
	default:
		a.dropped.Add(1)
	}
	return nil
}

// Start begins long polling under its own supervisor. A poller that exits
// while ctx is alive is restarted with backoff. Calling Start on a running
// adapter is a no-op.
func (a *Adapter) Start(ctx context.Context, out chan<- kit.Update) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.sup != nil {
		return nil
	}
	a.out.Store(&out)
	// Poll failures are retried here; they must not cancel the app.
	sup := rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(false))
	a.sup = sup

	sup.Go0("telegram.drops", func(c context.Context) {
		t := time.NewTicker(dropReportEvery)
		defer t.Stop()
		for {
			select {
			case <-c.Done():
				a.reportDrops(cap(out))
				return
			case <-t.C:
				a.reportDrops(cap(out))
			}
		}
	})
	sup.Go0("telegram.stopper", func(c context.Context) {
		<-c.Done()
		a.bot.Stop()
	})
	sup.GoRestart("telegram.poll", func(c context.Context) error {
		a.log.Info("polling started")
		a.bot.Start()
		if c.Err() != nil {
			a.log.Info("polling stopped")
			return nil
		}
		return errors.New("telegram poller exited")
	}, rtsup.WithRestartBackoff(500*time.Millisecond, 10*time.Second))
	return nil
}

func (a *Adapter) reportDrops(capacity int) {
	if n := a.dropped.Swap(0); n > 0 {
		a.log.Warn("owner updates dropped (consumer slow)", logx.Uint64("count", n), logx.Int("chan_cap", capacity))
	}
}

// Stop ends polling. The pending getUpdates call is abandoned after a short
// grace period.
func (a *Adapter) Stop(ctx context.Context) error {
	a.mu.Lock()
	sup := a.sup
	a.sup = nil
	a.out.Store(nil)
	a.mu.Unlock()
	if sup == nil {
		return nil
	}
	sup.Cancel()
	wctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := sup.Wait(wctx); err != nil && wctx.Err() != nil {
		a.log.Warn("telegram stop timed out", logx.Err(err))
	}
	return nil
}
