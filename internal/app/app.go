// Package app wires configuration, storage, transport and the fisher engine
// into one supervised process.
package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"fisherbot/internal/config"
	"fisherbot/internal/control"
	"fisherbot/internal/eventbus"
	"fisherbot/internal/fisher"
	"fisherbot/internal/notifier"
	"fisherbot/internal/remote/httprpc"
	"fisherbot/internal/runtime/supervisor"
	"fisherbot/internal/storage"
	"fisherbot/internal/task/digest"
	kit "fisherbot/internal/transport"
	telegram "fisherbot/internal/transport/telegram/adapter"
	logx "fisherbot/pkg/logx"
)

type App struct {
	cfgm *config.ConfigManager
	sup  *supervisor.Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	store   *storage.Store
	remote  *httprpc.Client
	adapter kit.Adapter
	notif   *notifier.Sink

	engine *fisher.Engine
	digest *digest.Service
	router *control.Router

	updates chan kit.Update
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	if err := validate(cfg); err != nil {
		return nil, err
	}

	pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return nil, err
	}
	ad, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
	}, logx.NewConsole("INFO").With(logx.String("comp", "telegram")))
	if err != nil {
		return nil, err
	}

	// Bootstrap with Telegram logging off, set the target, then enable it, so
	// Apply never sees an enabled sink without a chat.
	logCfg := mapLoggingConfig(cfg)
	boot := logCfg
	boot.Telegram.Enabled = false
	logSvc, log := logx.New(boot, ad)
	if chatID, ok := logTarget(cfg); ok {
		logSvc.SetTelegramTarget(chatID, cfg.Logging.Telegram.ThreadID)
	}
	logSvc.Apply(logCfg)
	log = log.With(logx.String("comp", "app"))

	bus := eventbus.New()

	sc, _ := mapStorageConfig(cfg)
	store, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}

	rc, _ := mapRemoteConfig(cfg)
	rpc, err := httprpc.New(rc, log)
	if err != nil {
		return nil, err
	}

	nc, _ := mapNotifierConfig(cfg)
	notif := notifier.New(nc, ad, log, bus)

	return &App{
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		bus:     bus,
		store:   store,
		remote:  rpc,
		adapter: ad,
		notif:   notif,
		updates: make(chan kit.Update, 256),
	}, nil
}

// Done is closed when the app supervisor context ends (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	cfg := a.cfgm.Get()
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, c *config.Config) error { return validate(c) })

	a.prepareStore(ctx, cfg)

	fc, _ := mapFisherConfig(cfg)
	a.engine = fisher.New(fc, fisher.Deps{
		Remote:     a.remote,
		Store:      a.store,
		Notifier:   a.notif,
		Log:        a.log,
		Bus:        a.bus,
		Supervisor: a.sup,
	})
	if err := a.engine.Load(ctx); err != nil {
		a.log.Warn("actor state not loaded; starting from memory", logx.Err(err))
	}

	dc, _ := mapDigestConfig(cfg)
	a.digest = digest.New(dc, a.engine, a.notif, a.log, a.bus)
	if err := a.digest.Start(ctx); err != nil {
		return fmt.Errorf("digest: %w", err)
	}

	a.router = control.NewRouter(a.adapter, cfg.Telegram.OwnerUserIDs, a.log.With(logx.String("comp", "control")))
	a.router.Register(control.FisherCommands(a.engine, a.digest)...)
	a.router.Register(control.HelpCommand(a.router))

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return err
	}
	a.sup.Go("control.router", func(c context.Context) error {
		return a.router.Run(c, a.updates)
	})

	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})

	sub, unsubCfg := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer unsubCfg()
		last := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case next, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts: apply only the newest config.
				for drained := false; !drained; {
					select {
					case newer := <-sub:
						if newer != nil {
							next = newer
						}
					default:
						drained = true
					}
				}
				a.applyConfig(last, next)
				last = next
			}
		}
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	if cfg.Fisher.Autostart {
		if err := a.engine.StartPrimary(a.sup.Context()); err != nil {
			a.log.Warn("autostart skipped", logx.Err(err))
		}
	}

	a.sdNotify(daemon.SdNotifyReady)
	a.startWatchdog()
	a.log.Info("app started", logx.String("actor", fc.ActorID), logx.String("driver", a.store.Driver()))
	return nil
}

// prepareStore creates the schema and the actor's user and settings rows. A
// store that is down now is not fatal; the engine keeps state in memory.
func (a *App) prepareStore(ctx context.Context, cfg *config.Config) {
	cctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := a.store.Connect(cctx); err != nil {
		a.log.Warn("storage unavailable at startup; continuing in memory", logx.Err(err))
		return
	}
	f := cfg.Fisher
	id := strings.TrimSpace(f.ActorID)
	if err := a.store.UpsertUser(cctx, storage.User{UserID: id, DisplayName: f.Username}); err != nil {
		a.log.Warn("user row not saved", logx.Err(err))
	}
	st := storage.Settings{UserID: id, OwnerID: f.OwnerID, Prefix: f.Prefix, ServerID: f.ServerID}
	if err := a.store.UpsertSettings(cctx, st); err != nil {
		a.log.Warn("settings row not saved", logx.Err(err))
	}
}

func (a *App) applyConfig(prev, next *config.Config) {
	sections, attrs := config.SummarizeConfigChange(prev, next)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	if restart := config.RestartRequired(sections); len(restart) > 0 {
		a.log.Warn("config change needs a restart to take effect", logx.String("sections", strings.Join(restart, ",")))
	}

	// Target first so Apply does not warn about an enabled sink without a chat.
	if chatID, ok := logTarget(next); ok {
		a.logs.SetTelegramTarget(chatID, next.Logging.Telegram.ThreadID)
	} else {
		a.logs.SetTelegramTarget(0, 0)
	}
	a.logs.Apply(mapLoggingConfig(next))

	a.router.SetOwners(next.Telegram.OwnerUserIDs)

	if fc, err := mapFisherConfig(next); err != nil {
		a.log.Warn("invalid fisher config; keeping previous", logx.Err(err))
	} else {
		a.engine.Apply(fc)
	}
	if nc, err := mapNotifierConfig(next); err != nil {
		a.log.Warn("invalid notifier config; keeping previous", logx.Err(err))
	} else {
		a.notif.Apply(nc)
	}
	if dc, err := mapDigestConfig(next); err != nil {
		a.log.Warn("invalid digest config; keeping previous", logx.Err(err))
	} else if err := a.digest.Apply(dc); err != nil {
		a.log.Warn("digest reschedule failed", logx.Err(err))
	}

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	a.sdNotify(daemon.SdNotifyStopping)

	// Cancel first so background loops start unwinding immediately.
	a.sup.Cancel()

	step := func(name string, max time.Duration, fn func(context.Context) error) {
		a.step(ctx, name, max, fn)
	}
	step("fisher", 3*time.Second, a.engine.Stop)
	step("digest", time.Second, func(c context.Context) error { a.digest.Stop(c); return nil })
	step("adapter", 2*time.Second, a.adapter.Stop)
	step("storage", time.Second, func(context.Context) error { return a.store.Close() })
	// Last, the supervised goroutines (router, config watch and reload).
	step("supervisor", 2*time.Second, a.sup.Wait)

	a.log.Info("stopped")
	return a.logs.Close()
}

// step runs one shutdown step bounded by max so a stuck component cannot
// stall the whole stop. It never extends the caller's deadline.
func (a *App) step(ctx context.Context, name string, max time.Duration, fn func(context.Context) error) {
	start := time.Now()
	if dl, ok := ctx.Deadline(); ok {
		max = min(max, time.Until(dl))
	}
	if max <= 0 {
		a.log.Warn("stop step skipped (deadline reached)", logx.String("name", name))
		return
	}
	stepCtx, cancel := context.WithTimeout(ctx, max)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic in stop step %s: %v", name, r)
			}
		}()
		done <- fn(stepCtx)
	}()

	select {
	case err := <-done:
		if err != nil {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
		}
		if took := time.Since(start); took >= 500*time.Millisecond {
			a.log.Info("stop step end", logx.String("name", name), logx.Duration("took", took))
		}
	case <-stepCtx.Done():
		a.log.Warn("stop step deadline reached (continuing)",
			logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
		go func() {
			if err := <-done; err != nil {
				a.log.Warn("stop step finished after deadline", logx.String("name", name), logx.Err(err))
			}
		}()
	}
}
