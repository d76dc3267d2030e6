// Package control turns owner chat commands into fisher engine operations.
package control

import (
	"context"
	"runtime/debug"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	rtsup "fisherbot/internal/runtime/supervisor"
	kit "fisherbot/internal/transport"
	logx "fisherbot/pkg/logx"
)

const (
	defaultWorkers  = 2
	defaultQueueCap = 64
	defaultTimeout  = 45 * time.Second
)

type Command struct {
	Name        string
	Aliases     []string
	Description string
	Usage       string
	Timeout     time.Duration // overrides the router default
	Handle      HandlerFunc
}

type Request struct {
	Message *kit.Message
	Chat    kit.ChatTarget
	Command string
	Args    []string
	ReqID   string
	Log     logx.Logger
}

// Router dispatches owner commands to a small worker pool. Anyone else gets
// "unauthorized"; non-command text is ignored.
type Router struct {
	sender kit.Sender
	log    logx.Logger

	mu       sync.RWMutex
	owners   []int64
	commands map[string]*Command // name and aliases
	ordered  []*Command

	jobs chan func(ctx context.Context)
}

func NewRouter(sender kit.Sender, owners []int64, log logx.Logger) *Router {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Router{
		sender:   sender,
		log:      log,
		owners:   append([]int64(nil), owners...),
		commands: map[string]*Command{},
		jobs:     make(chan func(ctx context.Context), defaultQueueCap),
	}
}

// Register adds commands. A later command with the same name or alias wins.
func (r *Router) Register(cmds ...Command) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range cmds {
		name := strings.ToLower(strings.TrimSpace(c.Name))
		if name == "" || c.Handle == nil {
			continue
		}
		cc := c
		cc.Name = name
		r.ordered = append(r.ordered, &cc)
		r.commands[name] = &cc
		for _, a := range c.Aliases {
			if a = strings.ToLower(strings.TrimSpace(a)); a != "" {
				r.commands[a] = &cc
			}
		}
	}
}

// SetOwners replaces the owner list. Safe during hot reload.
func (r *Router) SetOwners(owners []int64) {
	cp := append([]int64(nil), owners...)
	r.mu.Lock()
	r.owners = cp
	r.mu.Unlock()
}

// Menu lists the registered commands for the chat client's command menu.
func (r *Router) Menu() []kit.BotCommand {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]kit.BotCommand, 0, len(r.ordered))
	for _, c := range r.ordered {
		out = append(out, kit.BotCommand{Command: c.Name, Description: c.Description})
	}
	return out
}

func (r *Router) lookup(name string) (*Command, []int64) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.commands[name], r.owners
}

// Run consumes updates until ctx ends or the channel closes.
func (r *Router) Run(ctx context.Context, updates <-chan kit.Update) error {
	sup := rtsup.New(ctx,
		rtsup.WithLogger(r.log.With(logx.String("comp", "control.router"))),
		rtsup.WithCancelOnError(false),
	)
	for i := range defaultWorkers {
		sup.GoRestart("command.worker."+strconv.Itoa(i), r.worker, rtsup.WithRestartBackoff(200*time.Millisecond, 5*time.Second))
	}
	if up, ok := r.sender.(kit.CommandMenuUpdater); ok {
		menu := r.Menu()
		sup.Go0("menu.update", func(c context.Context) {
			mctx, cancel := context.WithTimeout(c, 5*time.Second)
			defer cancel()
			if err := up.UpdateMenuCommands(mctx, menu); err != nil {
				r.log.Warn("menu update failed", logx.Err(err))
			}
		})
	}
	r.log.Info("command router started", logx.Int("workers", defaultWorkers), logx.Int("queue_cap", cap(r.jobs)))

	defer func() {
		sup.Cancel()
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = sup.Wait(wctx)
		cancel()
		r.log.Info("command router stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			r.route(ctx, up)
		}
	}
}

func (r *Router) worker(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case job := <-r.jobs:
			func() {
				defer func() {
					if p := recover(); p != nil {
						r.log.Error("panic in command job", logx.Any("panic", p), logx.String("stack", string(debug.Stack())))
					}
				}()
				job(ctx)
			}()
		}
	}
}

func (r *Router) route(ctx context.Context, up kit.Update) {
	msg := up.Message
	if msg == nil {
		return
	}
	name, args, ok := parseCommand(msg.Text)
	if !ok {
		return
	}
	chat := kit.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID}
	cmd, owners := r.lookup(name)
	if !slices.Contains(owners, msg.FromID) {
		r.log.Debug("command from non-owner ignored", logx.Int64("from_id", msg.FromID), logx.String("cmd", name))
		r.reply(ctx, chat, "unauthorized")
		return
	}
	if cmd == nil {
		r.reply(ctx, chat, "unknown command, try /help")
		return
	}

	rid := uuid.NewString()
	req := &Request{
		Message: msg,
		Chat:    chat,
		Command: cmd.Name,
		Args:    args,
		ReqID:   rid,
		Log: r.log.With(
			logx.String("rid", rid),
			logx.Int64("chat_id", msg.ChatID),
			logx.Int64("from_id", msg.FromID),
			logx.String("cmd", cmd.Name),
		),
	}
	timeout := cmd.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	final := Chain(cmd.Handle, MWPanicRecover(), MWRequestLog(), MWTimeout(timeout))

	job := func(c context.Context) {
		text, err := final(c, req)
		if err != nil {
			text = "error: " + err.Error()
		}
		r.reply(c, chat, text)
	}
	select {
	case r.jobs <- job:
	default:
		r.reply(ctx, chat, "busy, try again")
	}
}

func (r *Router) reply(ctx context.Context, to kit.ChatTarget, text string) {
	if text == "" || r.sender == nil {
		return
	}
	opt := &kit.SendOptions{DisablePreview: true}
	if strings.HasPrefix(text, "*") {
		opt.ParseMode = "Markdown"
	}
	if _, err := r.sender.SendText(ctx, to, text, opt); err != nil {
		r.log.Warn("reply failed", logx.Int64("chat_id", to.ChatID), logx.Err(err))
	}
}

// parseCommand splits "/name@bot arg1 arg2" into its lowercased name and args.
func parseCommand(text string) (string, []string, bool) {
	parts := strings.Fields(strings.TrimSpace(text))
	if len(parts) == 0 || !strings.HasPrefix(parts[0], "/") {
		return "", nil, false
	}
	name := strings.TrimPrefix(parts[0], "/")
	if i := strings.IndexByte(name, '@'); i >= 0 {
		name = name[:i]
	}
	if name == "" {
		return "", nil, false
	}
	return strings.ToLower(name), parts[1:], true
}
