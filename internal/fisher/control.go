package fisher

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"fisherbot/internal/classifier"
	"fisherbot/internal/notifier"
	"fisherbot/internal/storage"
	"fisherbot/internal/task/loop"
	logx "fisherbot/pkg/logx"
)

func (e *Engine) StartPrimary(ctx context.Context) error {
	cfg, _ := e.config()
	if cfg.ChannelID == "" {
		return ErrNoChannel
	}
	e.ensureLoaded(ctx)
	return e.primary.Start(ctx)
}

func (e *Engine) StopPrimary() error   { return e.primary.Stop() }
func (e *Engine) PausePrimary() error  { return e.primary.Pause() }
func (e *Engine) ResumePrimary() error { return e.primary.Resume() }

func (e *Engine) StartSecondary(ctx context.Context) error {
	cfg, _ := e.config()
	if cfg.ChannelID == "" {
		return ErrNoChannel
	}
	e.ensureLoaded(ctx)
	return e.secondary.Start(ctx)
}

func (e *Engine) StopSecondary() error { return e.secondary.Stop() }

// Stop ends both loops and waits for them, bounded by ctx.
func (e *Engine) Stop(ctx context.Context) error {
	_ = e.primary.Stop()
	_ = e.secondary.Stop()
	return errors.Join(e.primary.Wait(ctx), e.secondary.Wait(ctx))
}

// SubmitManualCode sends an owner-provided challenge answer and gets the
// primary loop going again: a paused loop resumes, an idle one starts, and a
// tick still handling the challenge will not leave the loop paused.
func (e *Engine) SubmitManualCode(ctx context.Context, code string) error {
	code = strings.TrimSpace(code)
	if code == "" {
		return ErrEmptyCode
	}
	cfg, _ := e.config()
	if cfg.ChannelID == "" {
		return ErrNoChannel
	}
	if _, err := e.invoke(ctx, cfg, cfg.Commands.Verify, map[string]string{"answer": code}); err != nil {
		return fmt.Errorf("fisher: verify: %w", err)
	}
	e.log.Info("manual verification submitted")

	if err := e.primary.Unpause(); !errors.Is(err, loop.ErrNotRunning) {
		return err
	}
	// Idle, or Stopped and still winding down: Start waits for the old run.
	err := e.StartPrimary(ctx)
	if errors.Is(err, loop.ErrAlreadyRunning) {
		return e.primary.Unpause()
	}
	return err
}

// SyncInventory re-reads an inventory reply and overwrites the actor state with
// what it shows. Counters absent from the reply keep their current values.
func (e *Engine) SyncInventory(ctx context.Context, refID string) (storage.ActorState, error) {
	cfg, _ := e.config()
	refID = strings.TrimSpace(refID)
	if refID == "" {
		return storage.ActorState{}, fmt.Errorf("fisher: sync: %w", ErrNotInventory)
	}
	e.ensureLoaded(ctx)

	cctx, cancel := context.WithTimeout(ctx, cfg.CallTimeout)
	reply, err := e.remote.FetchReply(cctx, refID)
	cancel()
	if err != nil {
		return storage.ActorState{}, fmt.Errorf("fisher: sync: %w", err)
	}

	var inv classifier.Inventory
	found := false
	for _, b := range reply.Blocks {
		if inv, found = classifier.ParseInventory(b); found {
			break
		}
	}
	if !found {
		return storage.ActorState{}, ErrNotInventory
	}

	st := e.mutate(ctx, func(st *storage.ActorState) {
		if inv.HasBalance {
			st.Balance = inv.Balance
		}
		st.Clan = inv.Clan
		st.Biome = inv.Biome
		if inv.HasGold {
			st.GoldFish = inv.GoldFish
		}
		if inv.HasEmerald {
			st.EmeraldFish = inv.EmeraldFish
		}
	})
	e.log.Info("inventory synced", logx.Int64("balance", st.Balance), logx.String("clan", st.Clan), logx.String("biome", st.Biome))

	type data struct {
		Clan        string `json:"clan"`
		Biome       string `json:"biome"`
		GoldFish    uint64 `json:"gold_fish"`
		EmeraldFish uint64 `json:"emerald_fish"`
		Money       int64  `json:"money"`
		Trips       uint64 `json:"trips"`
	}
	e.post(ctx, notifier.Format("Virtual Fisher Data Update",
		notifier.F("data", data{
			Clan:        st.Clan,
			Biome:       st.Biome,
			GoldFish:    st.GoldFish,
			EmeraldFish: st.EmeraldFish,
			Money:       st.Balance,
			Trips:       st.Trips,
		}),
		notifier.F("time", e.stamp()),
	))
	e.publish("fisher.synced", Reaction{Kind: "synced", Balance: st.Balance, Trips: st.Trips})
	return st, nil
}

func (e *Engine) Status() Status {
	cfg, _ := e.config()
	e.mu.Lock()
	st, loaded := e.state, e.loaded
	e.mu.Unlock()
	out := Status{
		Actor:     st,
		Loaded:    loaded,
		ChannelID: cfg.ChannelID,
		Primary:   e.primary.Snapshot(),
		Secondary: e.secondary.Snapshot(),
	}
	if e.sup != nil {
		out.Tasks = e.sup.Snapshot()
	}
	return out
}
