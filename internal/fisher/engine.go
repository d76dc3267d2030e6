// Package fisher drives the actor: a primary loop that fishes and sells, a
// secondary loop that spends rare items on workers, and the reaction table that
// turns classified replies into state changes, notifications and loop control.
//
// The in-memory ActorState is authoritative. The store is written after every
// mutation; when it is unavailable the engine logs and keeps going.
package fisher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"fisherbot/internal/classifier"
	"fisherbot/internal/eventbus"
	"fisherbot/internal/remote"
	"fisherbot/internal/runtime/supervisor"
	"fisherbot/internal/storage"
	"fisherbot/internal/task/loop"
	logx "fisherbot/pkg/logx"
)

// Deps are the engine collaborators. Bus and Supervisor are optional.
type Deps struct {
	Remote     remote.Client
	Store      Store
	Notifier   Notifier
	Log        logx.Logger
	Bus        eventbus.Bus
	Supervisor *supervisor.Supervisor
}

type Engine struct {
	remote remote.Client
	store  Store
	notify Notifier
	log    logx.Logger
	bus    eventbus.Bus

	cfgMu sync.RWMutex
	cfg   Config
	cls   *classifier.Classifier

	// mu guards state across read-modify-persist. It is never held across a
	// remote call.
	mu     sync.Mutex
	state  storage.ActorState
	loaded bool

	primary   *loop.Loop
	secondary *loop.Loop
	sup       *supervisor.Supervisor

	now func() time.Time
}

func New(cfg Config, d Deps) *Engine {
	cfg = cfg.withDefaults()
	log := d.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	e := &Engine{
		remote: d.Remote,
		store:  d.Store,
		notify: d.Notifier,
		log:    log.With(logx.String("comp", "fisher"), logx.String("actor", cfg.ActorID)),
		bus:    d.Bus,
		sup:    d.Supervisor,
		cfg:    cfg,
		cls:    classifier.New(classifier.Options{HireFallback: cfg.HireFallbackDelay}),
		state:  storage.ActorState{ActorID: cfg.ActorID},
		now:    time.Now,
	}
	opt := loop.Options{ErrorDelay: cfg.ErrorDelay, IdleDelay: cfg.IdleInterval}
	e.primary = loop.New(primaryName, e.primaryTick, opt, e.log, d.Bus, d.Supervisor)
	e.secondary = loop.New(secondaryName, e.secondaryTick, opt, e.log, d.Bus, d.Supervisor)
	return e
}

// Apply replaces the tunables. Running loops pick them up on their next tick.
func (e *Engine) Apply(cfg Config) {
	cfg = cfg.withDefaults()
	e.cfgMu.Lock()
	if cfg.ActorID == "" {
		cfg.ActorID = e.cfg.ActorID
	}
	if cfg.ChannelID == "" {
		cfg.ChannelID = e.cfg.ChannelID
	}
	e.cfg = cfg
	e.cls = classifier.New(classifier.Options{HireFallback: cfg.HireFallbackDelay})
	e.cfgMu.Unlock()
}

// SetChannel points both loops at channel.
func (e *Engine) SetChannel(channel string) {
	e.cfgMu.Lock()
	e.cfg.ChannelID = channel
	e.cfgMu.Unlock()
}

func (e *Engine) config() (Config, *classifier.Classifier) {
	e.cfgMu.RLock()
	defer e.cfgMu.RUnlock()
	return e.cfg, e.cls
}

// Load reads the actor row, creating it when absent. A failed load leaves the
// engine on a zero state that a later tick retries to load.
func (e *Engine) Load(ctx context.Context) error {
	cfg, _ := e.config()
	st, err := e.store.LoadActor(ctx, cfg.ActorID)
	if err != nil {
		return fmt.Errorf("fisher: load actor: %w", err)
	}
	e.mu.Lock()
	e.state = st
	e.loaded = true
	e.mu.Unlock()
	e.log.Info("actor state loaded",
		logx.Uint64("trips", st.Trips),
		logx.Int64("balance", st.Balance),
		logx.Uint64("gold", st.GoldFish),
		logx.Uint64("emerald", st.EmeraldFish))
	return nil
}

func (e *Engine) ensureLoaded(ctx context.Context) {
	e.mu.Lock()
	loaded := e.loaded
	e.mu.Unlock()
	if loaded {
		return
	}
	if err := e.Load(ctx); err != nil {
		e.log.Warn("actor state unavailable, continuing from memory", logx.Err(err))
	}
}

// State returns a copy of the in-memory actor state.
func (e *Engine) State() storage.ActorState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// mutate applies fn to the state and persists the whole row under the state lock.
// It returns the state after fn.
func (e *Engine) mutate(ctx context.Context, fn func(st *storage.ActorState)) storage.ActorState {
	e.mu.Lock()
	defer e.mu.Unlock()
	fn(&e.state)
	e.persistLocked(ctx)
	return e.state
}

func (e *Engine) persist(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.persistLocked(ctx)
}

func (e *Engine) persistLocked(ctx context.Context) {
	if e.store == nil {
		return
	}
	st := e.state
	if st.ActorID == "" {
		cfg, _ := e.config()
		st.ActorID = cfg.ActorID
		e.state.ActorID = st.ActorID
	}
	if err := e.store.SaveActor(ctx, st); err != nil {
		if errors.Is(err, storage.ErrUnavailable) {
			e.log.Warn("store unavailable, state kept in memory", logx.Err(err))
			return
		}
		e.log.Error("persist actor state failed", logx.Err(err))
	}
}

// invoke runs a remote action bounded by CallTimeout.
func (e *Engine) invoke(ctx context.Context, cfg Config, action string, args map[string]string) (remote.Reply, error) {
	cctx, cancel := context.WithTimeout(ctx, cfg.CallTimeout)
	defer cancel()
	reply, err := e.remote.Invoke(cctx, action, cfg.ChannelID, args)
	if err != nil {
		return remote.Reply{}, remote.Normalize(action, err)
	}
	return reply, nil
}

// failure maps a remote error onto the loop's next delay.
func (e *Engine) failure(cfg Config, op string, err error) (time.Duration, error) {
	err = fmt.Errorf("%s: %w", op, err)
	switch {
	case errors.Is(err, remote.ErrUnreadable):
		return 0, loop.RetryAfter(err, loop.Uniform(cfg.RecoveryMin, cfg.RecoveryMax))
	case errors.Is(err, remote.ErrTimeout):
		return 0, loop.RetryAfter(err, loop.Uniform(cfg.TimeoutBackoffMin, cfg.TimeoutBackoffMax))
	default:
		return 0, err
	}
}

func (e *Engine) publish(typ string, data any) {
	if e.bus == nil {
		return
	}
	e.bus.Publish(eventbus.Event{Type: typ, Time: e.now(), Data: data})
}

func (e *Engine) stamp() string { return e.now().Format(timeLayout) }
