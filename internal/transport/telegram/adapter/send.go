package adapter

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	kit "fisherbot/internal/transport"
	logx "fisherbot/pkg/logx"
)

const maxFloodWait = 30 * time.Second

var retryAfterRe = regexp.MustCompile(`retry after (\d+)`)

// floodWait extracts the server-requested delay from a 429 error.
func floodWait(err error) (time.Duration, bool) {
	if err == nil {
		return 0, false
	}
	m := retryAfterRe.FindStringSubmatch(err.Error())
	if m == nil {
		return 0, false
	}
	n, _ := strconv.Atoi(m[1])
	return time.Duration(max(n, 1)) * time.Second, true
}

func notModified(err error) bool {
	return err != nil && strings.Contains(err.Error(), "message is not modified")
}

// call runs fn once more after a flood wait, if the wait fits the context
// and maxFloodWait.
func (a *Adapter) call(ctx context.Context, fn func() error) error {
	err := fn()
	d, ok := floodWait(err)
	if !ok || d > maxFloodWait {
		return err
	}
	if dl, has := ctx.Deadline(); has && time.Until(dl) < d {
		return err
	}
	a.log.Debug("telegram flood wait", logx.Duration("wait", d))
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
	}
	return fn()
}

func teleOptions(opt *kit.SendOptions, threadID int) *tele.SendOptions {
	if opt == nil {
		opt = &kit.SendOptions{}
	}
	return &tele.SendOptions{
		ParseMode:             opt.ParseMode,
		DisableWebPagePreview: opt.DisablePreview,
		ThreadID:              threadID,
	}
}

func (a *Adapter) sendChunk(ctx context.Context, to kit.ChatTarget, chunk string, opt *kit.SendOptions) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	var msg *tele.Message
	err := a.call(ctx, func() (err error) {
		msg, err = a.bot.Send(&tele.Chat{ID: to.ChatID}, chunk, teleOptions(opt, to.ThreadID))
		return err
	})
	if err != nil {
		return 0, err
	}
	return msg.ID, nil
}

func parseModeOf(opt *kit.SendOptions) string {
	if opt == nil {
		return ""
	}
	return opt.ParseMode
}

// SendText sends text, split into several messages when it exceeds the
// Telegram limit. The returned ref points at the first message.
func (a *Adapter) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	ref := kit.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID}
	for i, chunk := range splitText(text, telegramTextLimit, parseModeOf(opt)) {
		id, err := a.sendChunk(ctx, to, chunk, opt)
		if err != nil {
			return ref, err
		}
		if i == 0 {
			ref.MessageID = id
		}
	}
	return ref, nil
}

// EditText replaces the text of ref. Overflow beyond one message goes out as
// follow-ups in the same thread. Editing to identical content succeeds.
func (a *Adapter) EditText(ctx context.Context, ref kit.MessageRef, text string, opt *kit.SendOptions) error {
	chunks := splitText(text, telegramTextLimit, parseModeOf(opt))
	target := &tele.Message{ID: ref.MessageID, Chat: &tele.Chat{ID: ref.ChatID}}
	err := a.call(ctx, func() error {
		_, err := a.bot.Edit(target, chunks[0], teleOptions(opt, 0))
		return err
	})
	if err != nil && !notModified(err) {
		return err
	}
	to := kit.ChatTarget{ChatID: ref.ChatID, ThreadID: ref.ThreadID}
	for _, chunk := range chunks[1:] {
		if _, err := a.sendChunk(ctx, to, chunk, opt); err != nil {
			return err
		}
	}
	return nil
}
