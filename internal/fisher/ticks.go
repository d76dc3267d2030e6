package fisher

import (
	"context"
	"time"

	"fisherbot/internal/storage"
	"fisherbot/internal/task/loop"
	logx "fisherbot/pkg/logx"
)

// primaryTick is one fishing trip: fish, react, sell every SellEveryN trips,
// persist, then wait a randomized delay.
func (e *Engine) primaryTick(ctx context.Context) (time.Duration, error) {
	cfg, _ := e.config()
	if cfg.ChannelID == "" {
		e.log.Warn("channel is not set, skipping trip")
		return cfg.IdleInterval, nil
	}
	e.ensureLoaded(ctx)

	e.mu.Lock()
	e.state.Trips++
	trips := e.state.Trips
	e.mu.Unlock()
	e.publish("fisher.trip", Reaction{Loop: primaryName, Kind: "trip", Trips: trips})

	reply, err := e.invoke(ctx, cfg, cfg.Commands.Fish, nil)
	if err != nil {
		e.persist(ctx)
		return e.failure(cfg, cfg.Commands.Fish, err)
	}
	out, err := e.react(ctx, cfg, primaryName, reply)
	if err != nil {
		e.persist(ctx)
		return e.failure(cfg, cfg.Commands.Verify, err)
	}

	if !out.pause && trips%cfg.SellEveryN == 0 {
		reply, err := e.invoke(ctx, cfg, cfg.Commands.Sell, map[string]string{"amount": "all"})
		if err != nil {
			e.persist(ctx)
			return e.failure(cfg, cfg.Commands.Sell, err)
		}
		more, err := e.react(ctx, cfg, primaryName, reply)
		if err != nil {
			e.persist(ctx)
			return e.failure(cfg, cfg.Commands.Verify, err)
		}
		out.merge(more)
	}

	e.persist(ctx)
	if out.pause {
		// The delay applies only when an owner code already arrived mid-tick.
		return cfg.ChallengeFallbackDelay, loop.Pause("challenge needs a human")
	}
	if out.next > 0 {
		return out.next, nil
	}
	return loop.Uniform(cfg.MinDelay, cfg.MaxDelay), nil
}

// secondaryTick buys one worker with rare items, preferring emerald, and
// sleeps for the hired duration. With nothing to spend the loop halts.
func (e *Engine) secondaryTick(ctx context.Context) (time.Duration, error) {
	cfg, _ := e.config()
	if cfg.ChannelID == "" {
		e.log.Warn("channel is not set, skipping worker purchase")
		return cfg.IdleInterval, nil
	}
	e.ensureLoaded(ctx)

	item, emerald, ok := e.affordable(cfg)
	if !ok {
		e.log.Info("not enough rare fish to hire a worker, stopping")
		return 0, loop.Halt("not enough rare fish")
	}

	reply, err := e.invoke(ctx, cfg, cfg.Commands.Buy, map[string]string{"item": item})
	if err != nil {
		return e.failure(cfg, cfg.Commands.Buy, err)
	}
	st := e.mutate(ctx, func(st *storage.ActorState) {
		if emerald {
			st.EmeraldFish -= min(cfg.EmeraldThreshold, st.EmeraldFish)
		} else {
			st.GoldFish -= min(cfg.GoldThreshold, st.GoldFish)
		}
	})
	e.log.Info("worker bought", logx.String("item", item),
		logx.Uint64("emerald", st.EmeraldFish), logx.Uint64("gold", st.GoldFish))
	e.publish("fisher.worker_bought", Reaction{Loop: secondaryName, Kind: "worker_bought", Item: item, Balance: st.Balance, Trips: st.Trips})

	out, err := e.react(ctx, cfg, secondaryName, reply)
	if err != nil {
		return e.failure(cfg, cfg.Commands.Verify, err)
	}
	if out.pause {
		if perr := e.primary.Pause(); perr != nil {
			e.log.Debug("primary not running, nothing to pause", logx.Err(perr))
		}
	}
	if out.hired > 0 {
		return out.hired, nil
	}
	return cfg.HireFallbackDelay, nil
}

// affordable picks the worker item the current rare fish pay for. emerald
// reports which counter is spent.
func (e *Engine) affordable(cfg Config) (item string, emerald, ok bool) {
	e.mu.Lock()
	st := e.state
	e.mu.Unlock()
	enough := func(have, threshold uint64) bool {
		if cfg.StrictThreshold {
			return have > threshold
		}
		return have >= threshold
	}
	switch {
	case enough(st.EmeraldFish, cfg.EmeraldThreshold):
		return cfg.EmeraldItem, true, true
	case enough(st.GoldFish, cfg.GoldThreshold):
		return cfg.GoldItem, false, true
	default:
		return "", false, false
	}
}
