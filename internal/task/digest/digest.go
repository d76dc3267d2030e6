// Package digest periodically posts a summary of what the fisher loops did
// since the previous digest. It aggregates "fisher." events from the bus and
// reads the current actor counters when the cron schedule fires.
package digest

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"fisherbot/internal/eventbus"
	"fisherbot/internal/fisher"
	"fisherbot/internal/notifier"
	"fisherbot/internal/storage"
	logx "fisherbot/pkg/logx"
)

type Config struct {
	Enabled  bool
	Schedule string
	// Timezone is an IANA name, e.g. "Asia/Jakarta". Empty means local time.
	Timezone string
}

// Source provides the current actor counters.
type Source interface {
	State() storage.ActorState
}

type Notifier interface {
	Notify(ctx context.Context, text string) string
}

// Window is what happened between two digests.
type Window struct {
	Since        time.Time
	Trips        uint64
	Earned       int64
	GoldFound    uint64
	EmeraldFound uint64
	Challenges   uint64
	Escalations  uint64
	WorkersHired uint64
	WorkerFish   uint64
}

type Service struct {
	log    logx.Logger
	bus    eventbus.Bus
	src    Source
	notify Notifier

	mu    sync.Mutex
	cfg   Config
	c     *cron.Cron
	unsub func()
	wg    sync.WaitGroup

	wmu sync.Mutex
	win Window

	now func() time.Time
}

func New(cfg Config, src Source, n Notifier, log logx.Logger, bus eventbus.Bus) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{
		log:    log.With(logx.String("comp", "digest")),
		bus:    bus,
		src:    src,
		notify: n,
		cfg:    cfg,
		now:    time.Now,
	}
	s.win.Since = s.now()
	return s
}

// Start subscribes to the bus and starts the cron trigger. A disabled digest
// only aggregates.
func (s *Service) Start(ctx context.Context) error {
	_ = ctx

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.unsub == nil && s.bus != nil {
		ch, unsub := s.bus.Subscribe(256, "fisher.")
		s.unsub = unsub
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			for ev := range ch {
				s.add(ev)
			}
		}()
	}
	return s.startCronLocked()
}

func (s *Service) startCronLocked() error {
	if s.c != nil || !s.cfg.Enabled {
		return nil
	}
	spec, err := ParseSchedule(s.cfg.Schedule)
	if err != nil {
		return err
	}
	c := cron.New(cron.WithParser(parser), cron.WithLocation(s.locationLocked()))
	if _, err := c.AddFunc(spec, s.fire); err != nil {
		return err
	}
	c.Start()
	s.c = c
	s.log.Info("digest scheduled", logx.String("spec", spec))
	return nil
}

func (s *Service) locationLocked() *time.Location {
	tz := strings.TrimSpace(s.cfg.Timezone)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		s.log.Warn("invalid timezone, using local", logx.String("tz", tz), logx.Err(err))
		return time.Local
	}
	return loc
}

// Apply restarts the cron trigger when the schedule, timezone or flag changed.
func (s *Service) Apply(cfg Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cfg == s.cfg {
		return nil
	}
	s.cfg = cfg
	if s.c != nil {
		<-s.c.Stop().Done()
		s.c = nil
	}
	if s.unsub == nil {
		return nil
	}
	return s.startCronLocked()
}

// Stop stops the trigger and the aggregator, bounded by ctx.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c, unsub := s.c, s.unsub
	s.c, s.unsub = nil, nil
	s.mu.Unlock()

	if c != nil {
		select {
		case <-c.Stop().Done():
		case <-ctx.Done():
		}
	}
	if unsub != nil {
		unsub()
	}
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
}

func (s *Service) fire() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	s.Flush(ctx)
}

// Flush posts the current window and starts a new one.
func (s *Service) Flush(ctx context.Context) Window {
	s.wmu.Lock()
	w := s.win
	s.win = Window{Since: s.now()}
	s.wmu.Unlock()

	var st storage.ActorState
	if s.src != nil {
		st = s.src.State()
	}
	if s.notify != nil {
		s.notify.Notify(ctx, notifier.Format("Fisher Digest",
			notifier.F("since", w.Since.Format("2006-01-02 15:04:05")),
			notifier.F("trips", w.Trips),
			notifier.F("earned", w.Earned),
			notifier.F("gold_found", w.GoldFound),
			notifier.F("emerald_found", w.EmeraldFound),
			notifier.F("challenges", w.Challenges),
			notifier.F("escalations", w.Escalations),
			notifier.F("workers_hired", w.WorkersHired),
			notifier.F("worker_fish", w.WorkerFish),
			notifier.F("balance", st.Balance),
			notifier.F("total_trips", st.Trips),
			notifier.F("gold_fish", st.GoldFish),
			notifier.F("emerald_fish", st.EmeraldFish),
		))
	}
	s.log.Debug("digest flushed", logx.Uint64("trips", w.Trips), logx.Int64("earned", w.Earned))
	return w
}

func (s *Service) add(ev eventbus.Event) {
	r, ok := ev.Data.(fisher.Reaction)
	if !ok {
		return
	}
	s.wmu.Lock()
	defer s.wmu.Unlock()
	switch ev.Type {
	case "fisher.trip":
		s.win.Trips++
	case "fisher.currency":
		s.win.Earned += r.Amount
	case "fisher.rare_item":
		if r.Item == "emerald" {
			s.win.EmeraldFound += r.Count
		} else {
			s.win.GoldFound += r.Count
		}
	case "fisher.challenge":
		s.win.Challenges++
	case "fisher.challenge_escalated":
		s.win.Challenges++
		s.win.Escalations++
	case "fisher.worker_bought":
		s.win.WorkersHired++
	case "fisher.worker_completed":
		s.win.WorkerFish += r.Count
	}
}
