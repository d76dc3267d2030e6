package control

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"fisherbot/internal/fisher"
	"fisherbot/internal/notifier"
	"fisherbot/internal/runtime/supervisor"
	"fisherbot/internal/storage"
	"fisherbot/internal/task/digest"
	"fisherbot/internal/task/loop"
)

// Engine is the part of the fisher engine the owner can drive.
type Engine interface {
	SetChannel(channel string)
	StartPrimary(ctx context.Context) error
	StopPrimary() error
	PausePrimary() error
	ResumePrimary() error
	StartSecondary(ctx context.Context) error
	StopSecondary() error
	SubmitManualCode(ctx context.Context, code string) error
	SyncInventory(ctx context.Context, refID string) (storage.ActorState, error)
	Status() fisher.Status
}

// Digest flushes the current summary window on demand.
type Digest interface {
	Flush(ctx context.Context) digest.Window
}

// FisherCommands returns the owner command set. d may be nil when the
// digest is disabled.
func FisherCommands(eng Engine, d Digest) []Command {
	cmds := []Command{
		{
			Name:        "fisher",
			Aliases:     []string{"f"},
			Description: "start fishing (optionally in a channel)",
			Usage:       "/fisher [channel_id]",
			Handle: func(ctx context.Context, req *Request) (string, error) {
				if len(req.Args) > 0 {
					eng.SetChannel(req.Args[0])
				}
				if err := eng.StartPrimary(ctx); err != nil {
					return "", explain(err)
				}
				return "fishing started in " + eng.Status().ChannelID, nil
			},
		},
		{
			Name:        "stopfisher",
			Aliases:     []string{"sf"},
			Description: "stop fishing",
			Handle:      simple(eng.StopPrimary, "fishing stopped"),
		},
		{
			Name:        "pausefisher",
			Aliases:     []string{"pf"},
			Description: "pause fishing",
			Handle:      simple(eng.PausePrimary, "fishing paused"),
		},
		{
			Name:        "resumefisher",
			Aliases:     []string{"rf"},
			Description: "resume paused fishing",
			Handle:      simple(eng.ResumePrimary, "fishing resumed"),
		},
		{
			Name:        "worker",
			Aliases:     []string{"w"},
			Description: "start hiring workers with rare fish",
			Handle: func(ctx context.Context, req *Request) (string, error) {
				if err := eng.StartSecondary(ctx); err != nil {
					return "", explain(err)
				}
				return "worker loop started", nil
			},
		},
		{
			Name:        "stopworker",
			Aliases:     []string{"sw"},
			Description: "stop hiring workers",
			Handle:      simple(eng.StopSecondary, "worker loop stopped"),
		},
		{
			Name:        "verify",
			Aliases:     []string{"v"},
			Description: "answer an anti-bot challenge",
			Usage:       "/verify CODE",
			Handle: func(ctx context.Context, req *Request) (string, error) {
				if len(req.Args) == 0 {
					return "usage: /verify CODE", nil
				}
				if err := eng.SubmitManualCode(ctx, strings.Join(req.Args, " ")); err != nil {
					return "", explain(err)
				}
				return "code submitted, fishing resumes", nil
			},
		},
		{
			Name:        "sync",
			Description: "re-read an inventory reply into the stored state",
			Usage:       "/sync REPLY_ID",
			Handle: func(ctx context.Context, req *Request) (string, error) {
				if len(req.Args) != 1 {
					return "usage: /sync REPLY_ID", nil
				}
				st, err := eng.SyncInventory(ctx, req.Args[0])
				if err != nil {
					return "", explain(err)
				}
				return notifier.Format("Inventory Synced", actorFields(st)...), nil
			},
		},
		{
			Name:        "status",
			Aliases:     []string{"s"},
			Description: "show loop states and counters",
			Handle: func(ctx context.Context, req *Request) (string, error) {
				return renderStatus(eng.Status()), nil
			},
		},
	}
	if d != nil {
		cmds = append(cmds, Command{
			Name:        "digest",
			Description: "post the activity digest now",
			Handle: func(ctx context.Context, req *Request) (string, error) {
				w := d.Flush(ctx)
				return fmt.Sprintf("digest posted (%d trips since %s)", w.Trips, w.Since.Format(time.DateTime)), nil
			},
		})
	}
	return cmds
}

// HelpCommand lists the router's commands.
func HelpCommand(r *Router) Command {
	return Command{
		Name:        "help",
		Aliases:     []string{"h"},
		Description: "list commands",
		Handle: func(ctx context.Context, req *Request) (string, error) {
			r.mu.RLock()
			defer r.mu.RUnlock()
			var b strings.Builder
			for _, c := range r.ordered {
				usage := c.Usage
				if usage == "" {
					usage = "/" + c.Name
				}
				fmt.Fprintf(&b, "%s - %s", usage, c.Description)
				if len(c.Aliases) > 0 {
					fmt.Fprintf(&b, " (/%s)", strings.Join(c.Aliases, ", /"))
				}
				b.WriteByte('\n')
			}
			return strings.TrimRight(b.String(), "\n"), nil
		},
	}
}

func simple(fn func() error, ok string) HandlerFunc {
	return func(context.Context, *Request) (string, error) {
		if err := fn(); err != nil {
			return "", explain(err)
		}
		return ok, nil
	}
}

// explain maps engine and loop errors to owner-facing wording.
func explain(err error) error {
	switch {
	case errors.Is(err, loop.ErrAlreadyRunning):
		return errors.New("already running")
	case errors.Is(err, loop.ErrNotRunning):
		return errors.New("not running")
	case errors.Is(err, loop.ErrNotPaused):
		return errors.New("not paused")
	case errors.Is(err, fisher.ErrNoChannel):
		return errors.New("no channel set, use /fisher CHANNEL_ID")
	case errors.Is(err, fisher.ErrNotInventory):
		return errors.New("that reply is not an inventory")
	default:
		return err
	}
}

func actorFields(st storage.ActorState) []notifier.KV {
	return []notifier.KV{
		notifier.F("actor_id", st.ActorID),
		notifier.F("trips", st.Trips),
		notifier.F("balance", st.Balance),
		notifier.F("clan", st.Clan),
		notifier.F("biome", st.Biome),
		notifier.F("gold_fish", st.GoldFish),
		notifier.F("emerald_fish", st.EmeraldFish),
	}
}

type loopView struct {
	Status   string `json:"status"`
	Ticks    uint64 `json:"ticks"`
	Failures uint64 `json:"failures"`
	NextAt   string `json:"next_at,omitempty"`
	LastErr  string `json:"last_err,omitempty"`
}

func viewOf(s loop.Snapshot) loopView {
	v := loopView{Status: s.Status, Ticks: s.Ticks, Failures: s.Failures, LastErr: s.LastErr}
	if !s.NextAt.IsZero() {
		v.NextAt = s.NextAt.Format(time.DateTime)
	}
	return v
}

// taskViews condenses supervisor counters to one line per goroutine name.
func taskViews(tasks []supervisor.Stats) map[string]string {
	out := make(map[string]string, len(tasks))
	for _, t := range tasks {
		line := fmt.Sprintf("active=%d restarts=%d panics=%d", t.Active, t.Restarts, t.Panics)
		if t.LastErr != "" {
			line += " last_err=" + t.LastErr
		}
		out[t.Name] = line
	}
	return out
}

func renderStatus(st fisher.Status) string {
	fields := []notifier.KV{
		notifier.F("channel_id", st.ChannelID),
		notifier.F("loaded", st.Loaded),
		notifier.F("primary", viewOf(st.Primary)),
		notifier.F("secondary", viewOf(st.Secondary)),
	}
	if len(st.Tasks) > 0 {
		fields = append(fields, notifier.F("tasks", taskViews(st.Tasks)))
	}
	return notifier.Format("Fisher Status", append(fields, actorFields(st.Actor)...)...)
}
