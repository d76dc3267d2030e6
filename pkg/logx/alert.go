package logx

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	kit "fisherbot/internal/transport"
)

const (
	alertQueueCap   = 128
	alertMaxLen     = 3500
	alertValueLen   = 400
	alertRepeatSpan = time.Minute
)

// alertSink forwards log events at or above a minimum level to a Telegram
// chat. Writes never block logging: the queue drops on overflow and the
// worker paces sends with a token bucket. An event identical to the previous
// one (same level, component and message) within alertRepeatSpan is counted
// instead of sent; the count rides on the next forwarded alert.
type alertSink struct {
	sender kit.Sender
	queue  chan alertItem
	now    func() time.Time

	mu         sync.Mutex
	to         kit.ChatTarget
	minLevel   zerolog.Level
	limiter    *rate.Limiter
	lastKey    string
	lastAt     time.Time
	suppressed int

	startOnce sync.Once
	cancel    context.CancelFunc
	done      chan struct{}
}

type alertItem struct {
	to   kit.ChatTarget
	text string
}

func newAlertSink(sender kit.Sender) *alertSink {
	return &alertSink{
		sender:   sender,
		queue:    make(chan alertItem, alertQueueCap),
		now:      time.Now,
		minLevel: zerolog.WarnLevel,
		limiter:  rate.NewLimiter(1, 1),
		done:     make(chan struct{}),
	}
}

func (a *alertSink) configure(cfg TelegramConfig) {
	rps := max(cfg.RatePerSec, 1)
	a.mu.Lock()
	a.minLevel = ParseLevel(cfg.MinLevel, zerolog.WarnLevel)
	a.limiter.SetLimit(rate.Limit(rps))
	a.limiter.SetBurst(rps)
	if cfg.ThreadID != 0 {
		a.to.ThreadID = cfg.ThreadID
	}
	a.mu.Unlock()
	if cfg.Enabled {
		a.startOnce.Do(a.start)
	}
}

func (a *alertSink) setTarget(chatID int64, threadID int) {
	a.mu.Lock()
	a.to.ChatID = chatID
	if threadID != 0 {
		a.to.ThreadID = threadID
	}
	a.mu.Unlock()
}

func (a *alertSink) start() {
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	go func() {
		defer close(a.done)
		for {
			select {
			case <-ctx.Done():
				return
			case it := <-a.queue:
				if err := a.limiter.Wait(ctx); err != nil {
					return
				}
				sctx, c := context.WithTimeout(ctx, 10*time.Second)
				_, _ = a.sender.SendText(sctx, it.to, it.text, &kit.SendOptions{ParseMode: "Markdown", DisablePreview: true})
				c()
			}
		}
	}()
}

func (a *alertSink) close() {
	if a.cancel == nil {
		return
	}
	a.cancel()
	<-a.done
}

func (a *alertSink) Write(p []byte) (int, error) {
	return a.WriteLevel(zerolog.NoLevel, p)
}

func (a *alertSink) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	a.mu.Lock()
	to, minLevel := a.to, a.minLevel
	a.mu.Unlock()
	if to.ChatID == 0 || level < minLevel || level == zerolog.NoLevel {
		return len(p), nil
	}

	var ev map[string]any
	if err := json.Unmarshal(p, &ev); err != nil {
		return len(p), nil
	}
	repeats, ok := a.admit(alertKey(ev))
	if !ok {
		return len(p), nil
	}
	select {
	case a.queue <- alertItem{to: to, text: formatAlert(ev, repeats)}:
	default:
	}
	return len(p), nil
}

// admit reports whether an event with key should be forwarded and how many
// repeats were swallowed before it.
func (a *alertSink) admit(key string) (int, bool) {
	now := a.now()
	a.mu.Lock()
	defer a.mu.Unlock()
	if key == a.lastKey && now.Sub(a.lastAt) < alertRepeatSpan {
		a.suppressed++
		return 0, false
	}
	n := a.suppressed
	a.lastKey, a.lastAt, a.suppressed = key, now, 0
	return n, true
}

func alertKey(ev map[string]any) string {
	return fmt.Sprint(ev[zerolog.LevelFieldName], "|", ev["comp"], "|", ev[zerolog.MessageFieldName])
}

// formatAlert renders an event as a bold level/message header followed by
// the remaining fields in a code block.
func formatAlert(ev map[string]any, repeats int) string {
	lvl, _ := ev[zerolog.LevelFieldName].(string)
	msg, _ := ev[zerolog.MessageFieldName].(string)

	var b strings.Builder
	fmt.Fprintf(&b, "*%s* %s", strings.ToUpper(lvl), msg)
	if repeats > 0 {
		fmt.Fprintf(&b, " _(+%d similar suppressed)_", repeats)
	}

	keys := make([]string, 0, len(ev))
	for k := range ev {
		switch k {
		case zerolog.LevelFieldName, zerolog.MessageFieldName, zerolog.TimestampFieldName:
			continue
		}
		keys = append(keys, k)
	}
	if len(keys) > 0 {
		slices.Sort(keys)
		b.WriteString("\n```\n")
		for _, k := range keys {
			fmt.Fprintf(&b, "%s=%s\n", k, clip(fmt.Sprint(ev[k]), alertValueLen))
		}
		b.WriteString("```")
	}
	return clipAlert(b.String())
}

// clipAlert keeps a clipped message's code fence closed.
func clipAlert(s string) string {
	if len(s) <= alertMaxLen {
		return s
	}
	s = clip(s, alertMaxLen-4)
	if strings.Count(s, "```")%2 == 1 {
		s += "\n```"
	}
	return s
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:n]
	}
	return s[:n-3] + "..."
}
