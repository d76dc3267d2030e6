package adapter

import (
	"context"
	"slices"

	tele "gopkg.in/telebot.v4"

	kit "fisherbot/internal/transport"
	logx "fisherbot/pkg/logx"
)

// Telegram caps the command menu.
const (
	maxMenuCommands = 100
	maxMenuDescLen  = 256
)

func menuCommands(cmds []kit.BotCommand) []tele.Command {
	out := make([]tele.Command, 0, min(len(cmds), maxMenuCommands))
	for _, c := range cmds {
		if c.Command == "" {
			continue
		}
		d := c.Description
		if d == "" {
			d = c.Command
		}
		if r := []rune(d); len(r) > maxMenuDescLen {
			d = string(r[:maxMenuDescLen])
		}
		out = append(out, tele.Command{Text: c.Command, Description: d})
		if len(out) == maxMenuCommands {
			break
		}
	}
	return out
}

// UpdateMenuCommands publishes the command menu. Telegram is only called
// when the list differs from the last successful publish.
func (a *Adapter) UpdateMenuCommands(ctx context.Context, cmds []kit.BotCommand) error {
	next := menuCommands(cmds)
	a.menuMu.Lock()
	defer a.menuMu.Unlock()
	if a.menu != nil && slices.Equal(a.menu, next) {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := a.call(ctx, func() error { return a.bot.SetCommands(next) }); err != nil {
		return err
	}
	a.menu = next
	a.log.Info("command menu updated", logx.Int("count", len(next)))
	return nil
}
