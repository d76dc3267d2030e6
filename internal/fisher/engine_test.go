package fisher

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"

	"fisherbot/internal/classifier"
	"fisherbot/internal/eventbus"
	"fisherbot/internal/remote"
	"fisherbot/internal/storage"
	"fisherbot/internal/task/loop"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type call struct {
	Action string
	Args   map[string]string
}

type fakeRemote struct {
	mu       sync.Mutex
	calls    []call
	replies  map[string]func(args map[string]string) (remote.Reply, error)
	fetched  map[string]remote.Reply
	forwards [][2]string
	// onForward runs outside the lock on every Forward.
	onForward func()
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		replies: map[string]func(map[string]string) (remote.Reply, error){},
		fetched: map[string]remote.Reply{},
	}
}

func (f *fakeRemote) on(action string, blocks ...classifier.TextBlock) {
	f.replies[action] = func(map[string]string) (remote.Reply, error) {
		return remote.Reply{ID: action + "-reply", ChannelID: "chan", Blocks: blocks}, nil
	}
}

func (f *fakeRemote) fail(action string, err error) {
	f.replies[action] = func(map[string]string) (remote.Reply, error) { return remote.Reply{}, err }
}

func (f *fakeRemote) Invoke(_ context.Context, action, _ string, args map[string]string) (remote.Reply, error) {
	f.mu.Lock()
	f.calls = append(f.calls, call{Action: action, Args: args})
	fn := f.replies[action]
	f.mu.Unlock()
	if fn == nil {
		return remote.Reply{ID: action + "-reply"}, nil
	}
	return fn(args)
}

func (f *fakeRemote) FetchReply(_ context.Context, refID string) (remote.Reply, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.fetched[refID]
	if !ok {
		return remote.Reply{}, remote.ErrUnreadable
	}
	return r, nil
}

func (f *fakeRemote) Forward(_ context.Context, refID, userID string) error {
	f.mu.Lock()
	f.forwards = append(f.forwards, [2]string{refID, userID})
	hook := f.onForward
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
	return nil
}

func (f *fakeRemote) count(action string) uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n uint64
	for _, c := range f.calls {
		if c.Action == action {
			n++
		}
	}
	return n
}

func (f *fakeRemote) callAt(i int) call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[i]
}

func (f *fakeRemote) actions() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.calls {
		out = append(out, c.Action)
	}
	return out
}

type fakeStore struct {
	mu      sync.Mutex
	row     storage.ActorState
	saves   []storage.ActorState
	loadErr error
	saveErr error
}

func (s *fakeStore) LoadActor(_ context.Context, id string) (storage.ActorState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadErr != nil {
		return storage.ActorState{}, s.loadErr
	}
	st := s.row
	st.ActorID = id
	return st, nil
}

func (s *fakeStore) SaveActor(_ context.Context, st storage.ActorState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.row = st
	s.saves = append(s.saves, st)
	return nil
}

func (s *fakeStore) last() storage.ActorState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.row
}

type fakeNotifier struct {
	mu      sync.Mutex
	posts   []string
	amended map[string]string
}

func (n *fakeNotifier) Notify(_ context.Context, text string) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.posts = append(n.posts, text)
	return fmt.Sprintf("1:0:%d", len(n.posts))
}

func (n *fakeNotifier) Amend(_ context.Context, id, text string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.amended == nil {
		n.amended = map[string]string{}
	}
	n.amended[id] = text
}

type harness struct {
	e      *Engine
	remote *fakeRemote
	store  *fakeStore
	notes  *fakeNotifier
}

func newHarness(t *testing.T, cfg Config, row storage.ActorState) harness {
	t.Helper()
	if cfg.ActorID == "" {
		cfg.ActorID = "actor-1"
	}
	if cfg.ChannelID == "" {
		cfg.ChannelID = "chan"
	}
	h := harness{remote: newFakeRemote(), store: &fakeStore{row: row}, notes: &fakeNotifier{}}
	h.e = New(cfg, Deps{Remote: h.remote, Store: h.store, Notifier: h.notes})
	h.e.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	if err := h.e.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	return h
}

func TestPrimarySellsOnEveryNthTrip(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		trips uint64
		want  []string
	}{
		{name: "tenth trip sells", trips: 9, want: []string{"fish", "sell"}},
		{name: "fourth trip only fishes", trips: 3, want: []string{"fish"}},
		{name: "twentieth trip sells", trips: 19, want: []string{"fish", "sell"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			h := newHarness(t, Config{MinDelay: time.Second, MaxDelay: 2 * time.Second}, storage.ActorState{Trips: tt.trips})
			d, err := h.e.primaryTick(context.Background())
			if err != nil {
				t.Fatalf("primaryTick: %v", err)
			}
			if d < time.Second || d > 2*time.Second {
				t.Fatalf("delay = %v, want within [1s, 2s]", d)
			}
			if diff := cmp.Diff(tt.want, h.remote.actions()); diff != "" {
				t.Fatalf("actions (-want +got):\n%s", diff)
			}
			if got := h.store.last().Trips; got != tt.trips+1 {
				t.Fatalf("persisted trips = %d, want %d", got, tt.trips+1)
			}
		})
	}
}

func TestSellPassesAmountAll(t *testing.T) {
	t.Parallel()
	h := newHarness(t, Config{}, storage.ActorState{Trips: 9})
	h.remote.on("sell", classifier.TextBlock{Title: "Sold", Body: "You sold all your fish for **$1,200**!"})
	if _, err := h.e.primaryTick(context.Background()); err != nil {
		t.Fatalf("primaryTick: %v", err)
	}
	var sell call
	for _, c := range h.remote.calls {
		if c.Action == "sell" {
			sell = c
		}
	}
	if sell.Args["amount"] != "all" {
		t.Fatalf("sell args = %v, want amount=all", sell.Args)
	}
	if got := h.store.last().Balance; got != 1200 {
		t.Fatalf("balance = %d, want 1200", got)
	}
}

func TestSecondarySpendsRareFish(t *testing.T) {
	t.Parallel()
	hired := classifier.TextBlock{Title: "Worker", Body: "You hired a worker for the next **30** minutes."}
	tests := []struct {
		name      string
		row       storage.ActorState
		strict    bool
		reply     []classifier.TextBlock
		wantItem  string
		wantDelay time.Duration
		wantRow   storage.ActorState
	}{
		{
			name:      "emerald uses hire duration",
			row:       storage.ActorState{EmeraldFish: 8, GoldFish: 8},
			reply:     []classifier.TextBlock{hired},
			wantItem:  "Auto30m",
			wantDelay: 30 * time.Minute,
			wantRow:   storage.ActorState{ActorID: "actor-1", EmeraldFish: 0, GoldFish: 8},
		},
		{
			name:      "gold without duration uses fallback",
			row:       storage.ActorState{EmeraldFish: 7, GoldFish: 12},
			wantItem:  "Auto10m",
			wantDelay: DefaultHireFallbackDelay,
			wantRow:   storage.ActorState{ActorID: "actor-1", EmeraldFish: 7, GoldFish: 4},
		},
		{
			name:      "strict threshold skips an exact emerald balance",
			row:       storage.ActorState{EmeraldFish: 8, GoldFish: 9},
			strict:    true,
			wantItem:  "Auto10m",
			wantDelay: DefaultHireFallbackDelay,
			wantRow:   storage.ActorState{ActorID: "actor-1", EmeraldFish: 8, GoldFish: 1},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			h := newHarness(t, Config{StrictThreshold: tt.strict}, tt.row)
			h.remote.on("buy", tt.reply...)
			d, err := h.e.secondaryTick(context.Background())
			if err != nil {
				t.Fatalf("secondaryTick: %v", err)
			}
			if d != tt.wantDelay {
				t.Fatalf("delay = %v, want %v", d, tt.wantDelay)
			}
			if got := h.remote.calls[0].Args["item"]; got != tt.wantItem {
				t.Fatalf("bought %q, want %q", got, tt.wantItem)
			}
			if diff := cmp.Diff(tt.wantRow, h.store.last()); diff != "" {
				t.Fatalf("persisted row (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSecondaryHaltsWhenBroke(t *testing.T) {
	t.Parallel()
	h := newHarness(t, Config{}, storage.ActorState{EmeraldFish: 7, GoldFish: 7})
	_, err := h.e.secondaryTick(context.Background())
	if !loop.IsHalt(err) {
		t.Fatalf("err = %v, want halt", err)
	}
	if n := len(h.remote.actions()); n != 0 {
		t.Fatalf("remote calls = %d, want 0", n)
	}
}

func TestTextChallengeIsVerified(t *testing.T) {
	t.Parallel()
	h := newHarness(t, Config{ChallengeFallbackDelay: 12 * time.Second}, storage.ActorState{})
	h.remote.on("fish", classifier.TextBlock{Title: "Anti-bot", Body: "Code: **D8fQ**\n\nPlease use /verify D8fQ to continue playing."})

	d, err := h.e.primaryTick(context.Background())
	if err != nil {
		t.Fatalf("primaryTick: %v", err)
	}
	if d != 12*time.Second {
		t.Fatalf("delay = %v, want challenge fallback 12s", d)
	}
	verify := h.remote.calls[len(h.remote.calls)-1]
	if verify.Action != "verify" || verify.Args["answer"] != "D8fQ" {
		t.Fatalf("last call = %+v, want verify answer=D8fQ", verify)
	}
	if len(h.notes.posts) != 1 || !strings.Contains(h.notes.amended["1:0:1"], `"code": "D8fQ"`) {
		t.Fatalf("notification not amended with code: posts=%v amended=%v", h.notes.posts, h.notes.amended)
	}
}

func TestImageChallengePausesAndForwards(t *testing.T) {
	t.Parallel()
	h := newHarness(t, Config{OwnerID: "owner-9"}, storage.ActorState{Trips: 9})
	h.remote.replies["fish"] = func(map[string]string) (remote.Reply, error) {
		return remote.Reply{ID: "fish-reply", ChannelID: "chan", HasImage: true, Blocks: []classifier.TextBlock{{
			Title: "Anti-Bot Check",
			Body:  "Please solve the image below to verify.",
		}}}, nil
	}

	_, err := h.e.primaryTick(context.Background())
	if !loop.IsPause(err) {
		t.Fatalf("err = %v, want pause", err)
	}
	if diff := cmp.Diff([]string{"fish"}, h.remote.actions()); diff != "" {
		t.Fatalf("sell must not run after a challenge (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([][2]string{{"fish-reply", "owner-9"}}, h.remote.forwards); diff != "" {
		t.Fatalf("forwards (-want +got):\n%s", diff)
	}
	if !strings.Contains(h.notes.amended["1:0:1"], `"status":"Yes"`) {
		t.Fatalf("amended = %v, want image status", h.notes.amended)
	}
	if got := h.store.last().Trips; got != 10 {
		t.Fatalf("trips = %d, want 10 persisted before pausing", got)
	}
}

func TestChallengeSuppressesOtherEvents(t *testing.T) {
	t.Parallel()
	h := newHarness(t, Config{OwnerID: "owner-9"}, storage.ActorState{Balance: 100})
	h.remote.on("fish",
		classifier.TextBlock{Body: "You caught a fish worth **$250**"},
		classifier.TextBlock{Title: "Anti-Bot Check", Body: "Please solve the image below to verify."},
		classifier.TextBlock{Body: "You got 3 Emerald Fish"},
	)

	_, err := h.e.primaryTick(context.Background())
	if !loop.IsPause(err) {
		t.Fatalf("err = %v, want pause", err)
	}
	want := storage.ActorState{ActorID: "actor-1", Trips: 1, Balance: 100}
	if diff := cmp.Diff(want, h.e.State()); diff != "" {
		t.Fatalf("state (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(want, h.store.last()); diff != "" {
		t.Fatalf("row (-want +got):\n%s", diff)
	}
	if len(h.notes.posts) != 1 || !strings.Contains(h.notes.posts[0], "Anti-Bot Message Detected") {
		t.Fatalf("posts = %v, want only the challenge notification", h.notes.posts)
	}
	if len(h.remote.forwards) != 1 {
		t.Fatalf("forwards = %v, want 1", h.remote.forwards)
	}
}

func TestTextCodeWithImageIsEscalated(t *testing.T) {
	t.Parallel()
	h := newHarness(t, Config{OwnerID: "owner-9"}, storage.ActorState{})
	h.remote.replies["fish"] = func(map[string]string) (remote.Reply, error) {
		return remote.Reply{ID: "fish-reply", ChannelID: "chan", HasImage: true, Blocks: []classifier.TextBlock{{
			Title: "Anti-bot",
			Body:  "Code: **D8fQ**\n\nPlease use /verify D8fQ to continue playing.",
		}}}, nil
	}

	_, err := h.e.primaryTick(context.Background())
	if !loop.IsPause(err) {
		t.Fatalf("err = %v, want pause", err)
	}
	if diff := cmp.Diff([]string{"fish"}, h.remote.actions()); diff != "" {
		t.Fatalf("no verify expected (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([][2]string{{"fish-reply", "owner-9"}}, h.remote.forwards); diff != "" {
		t.Fatalf("forwards (-want +got):\n%s", diff)
	}
	if got := h.notes.amended["1:0:1"]; !strings.Contains(got, `"status":"Yes"`) || !strings.Contains(got, `"code": "None"`) {
		t.Fatalf("amended = %s, want image status without code", got)
	}
}

func TestReactionsUpdateState(t *testing.T) {
	t.Parallel()
	bus := eventbus.New()
	events, unsub := bus.Subscribe(32, "fisher.")
	defer unsub()

	h := newHarness(t, Config{Username: "fisher"}, storage.ActorState{Balance: 100, GoldFish: 1})
	h.e.bus = bus
	h.remote.on("fish",
		classifier.TextBlock{Body: "You caught a fish worth **$250**"},
		classifier.TextBlock{Body: "You got 2 Gold Fish and You got 3 Emerald Fish"},
		classifier.TextBlock{Body: "Your worker caught a total of **40** fish"},
	)
	if _, err := h.e.primaryTick(context.Background()); err != nil {
		t.Fatalf("primaryTick: %v", err)
	}
	want := storage.ActorState{ActorID: "actor-1", Trips: 1, Balance: 350, GoldFish: 3, EmeraldFish: 3}
	if diff := cmp.Diff(want, h.store.last()); diff != "" {
		t.Fatalf("row (-want +got):\n%s", diff)
	}
	if len(h.notes.posts) != 4 {
		t.Fatalf("posts = %d, want 4", len(h.notes.posts))
	}
	if !strings.Contains(h.notes.posts[0], `"total_balance": 350`) || !strings.Contains(h.notes.posts[0], `"balance": 100`) {
		t.Fatalf("money notification = %s", h.notes.posts[0])
	}

	var kinds []string
	for len(events) > 0 {
		kinds = append(kinds, (<-events).Type)
	}
	wantKinds := []string{"fisher.trip", "fisher.currency", "fisher.rare_item", "fisher.rare_item", "fisher.worker_completed"}
	if diff := cmp.Diff(wantKinds, kinds); diff != "" {
		t.Fatalf("events (-want +got):\n%s", diff)
	}
}

func TestRemoteFailuresBackOff(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		err     error
		minWait time.Duration
		maxWait time.Duration
	}{
		{name: "unreadable", err: remote.ErrUnreadable, minWait: 300 * time.Second, maxWait: 600 * time.Second},
		{name: "timeout", err: remote.ErrTimeout, minWait: DefaultTimeoutBackoffMin, maxWait: DefaultTimeoutBackoffMax},
		{name: "deadline", err: context.DeadlineExceeded, minWait: DefaultTimeoutBackoffMin, maxWait: DefaultTimeoutBackoffMax},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			h := newHarness(t, Config{}, storage.ActorState{})
			h.remote.fail("fish", tt.err)
			_, err := h.e.primaryTick(context.Background())
			var ra loop.RetryAfterError
			if !errors.As(err, &ra) {
				t.Fatalf("err = %v, want retry-after", err)
			}
			if d := ra.RetryAfter(); d < tt.minWait || d > tt.maxWait {
				t.Fatalf("retry after %v, want within [%v, %v]", d, tt.minWait, tt.maxWait)
			}
			if got := h.store.last().Trips; got != 1 {
				t.Fatalf("trips = %d, want 1 persisted", got)
			}
		})
	}
}

func TestStoreUnavailableKeepsMemory(t *testing.T) {
	t.Parallel()
	h := newHarness(t, Config{}, storage.ActorState{Trips: 4})
	h.store.saveErr = fmt.Errorf("save: %w", storage.ErrUnavailable)
	h.remote.on("fish", classifier.TextBlock{Body: "You got 1 Emerald Fish"})

	if _, err := h.e.primaryTick(context.Background()); err != nil {
		t.Fatalf("primaryTick: %v", err)
	}
	st := h.e.State()
	if st.Trips != 5 || st.EmeraldFish != 1 {
		t.Fatalf("memory state = %+v, want trips 5 emerald 1", st)
	}
}

func TestLoadFailureStartsFromMemory(t *testing.T) {
	t.Parallel()
	st := &fakeStore{loadErr: storage.ErrUnavailable}
	e := New(Config{ActorID: "a", ChannelID: "c"}, Deps{Remote: newFakeRemote(), Store: st})
	if _, err := e.primaryTick(context.Background()); err != nil {
		t.Fatalf("primaryTick: %v", err)
	}
	if s := e.Status(); s.Loaded || s.Actor.Trips != 1 || s.Actor.ActorID != "a" {
		t.Fatalf("status = %+v", s)
	}
}

func TestNoChannelSkips(t *testing.T) {
	t.Parallel()
	r := newFakeRemote()
	e := New(Config{ActorID: "a", IdleInterval: 7 * time.Second}, Deps{Remote: r, Store: &fakeStore{}})
	d, err := e.primaryTick(context.Background())
	if err != nil || d != 7*time.Second {
		t.Fatalf("primaryTick = %v, %v; want 7s, nil", d, err)
	}
	if len(r.actions()) != 0 {
		t.Fatalf("remote called without a channel")
	}
	if err := e.StartPrimary(context.Background()); !errors.Is(err, ErrNoChannel) {
		t.Fatalf("StartPrimary = %v, want ErrNoChannel", err)
	}
}

func TestSubmitManualCodeStartsPrimary(t *testing.T) {
	t.Parallel()
	h := newHarness(t, Config{MinDelay: time.Hour, MaxDelay: time.Hour}, storage.ActorState{})
	ctx := context.Background()

	if err := h.e.SubmitManualCode(ctx, "  "); !errors.Is(err, ErrEmptyCode) {
		t.Fatalf("SubmitManualCode(empty) = %v, want ErrEmptyCode", err)
	}
	if err := h.e.SubmitManualCode(ctx, "AB12"); err != nil {
		t.Fatalf("SubmitManualCode: %v", err)
	}
	if got := h.remote.callAt(0); got.Action != "verify" || got.Args["answer"] != "AB12" {
		t.Fatalf("first call = %+v", got)
	}
	if s := h.e.primary.Status(); s != loop.Running {
		t.Fatalf("primary = %v, want running", s)
	}

	stopCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := h.e.Stop(stopCtx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if s := h.e.primary.Status(); s != loop.Idle {
		t.Fatalf("primary = %v, want idle", s)
	}
}

func TestManualCodeDuringChallengeTick(t *testing.T) {
	t.Parallel()
	h := newHarness(t, Config{OwnerID: "owner-9", ChallengeFallbackDelay: time.Hour}, storage.ActorState{})
	h.remote.replies["fish"] = func(map[string]string) (remote.Reply, error) {
		return remote.Reply{ID: "fish-reply", ChannelID: "chan", HasImage: true, Blocks: []classifier.TextBlock{{
			Title: "Anti-Bot Check",
			Body:  "Please solve the image below to verify.",
		}}}, nil
	}
	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	h.remote.onForward = func() {
		once.Do(func() {
			close(entered)
			<-release
		})
	}
	ctx := context.Background()

	if err := h.e.StartPrimary(ctx); err != nil {
		t.Fatalf("StartPrimary: %v", err)
	}
	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("challenge was not forwarded")
	}
	// The tick is parked in Forward, before it can ask for a pause.
	if err := h.e.SubmitManualCode(ctx, "AB12"); err != nil {
		t.Fatalf("SubmitManualCode: %v", err)
	}
	close(release)

	deadline := time.Now().Add(2 * time.Second)
	for h.e.primary.Snapshot().NextDelay != time.Hour && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if s := h.e.primary.Snapshot(); s.Status != loop.Running.String() || s.NextDelay != time.Hour {
		t.Fatalf("primary = %+v, want running on the challenge delay", s)
	}
	if diff := cmp.Diff([]string{"fish", "verify"}, h.remote.actions()); diff != "" {
		t.Fatalf("calls (-want +got):\n%s", diff)
	}

	stopCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := h.e.Stop(stopCtx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestLoopsShareStateConcurrently(t *testing.T) {
	t.Parallel()
	const startEmerald = 20
	h := newHarness(t, Config{
		MinDelay:          time.Millisecond,
		MaxDelay:          2 * time.Millisecond,
		HireFallbackDelay: time.Millisecond,
		EmeraldThreshold:  2,
	}, storage.ActorState{EmeraldFish: startEmerald})
	h.remote.on("fish",
		classifier.TextBlock{Body: "You caught a fish worth **$10**"},
		classifier.TextBlock{Body: "You got 1 Emerald Fish"},
	)
	ctx := context.Background()

	if err := h.e.StartPrimary(ctx); err != nil {
		t.Fatalf("StartPrimary: %v", err)
	}
	if err := h.e.StartSecondary(ctx); err != nil {
		t.Fatalf("StartSecondary: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for (h.remote.count("fish") < 30 || h.remote.count("buy") < 3) && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	stopCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := h.e.Stop(stopCtx); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	fished, bought := h.remote.count("fish"), h.remote.count("buy")
	if fished < 30 || bought < 3 {
		t.Fatalf("fished %d bought %d, want both loops to have run", fished, bought)
	}
	want := storage.ActorState{
		ActorID:     "actor-1",
		Trips:       fished,
		Balance:     10 * int64(fished),
		EmeraldFish: startEmerald + fished - 2*bought,
	}
	if diff := cmp.Diff(want, h.e.State()); diff != "" {
		t.Fatalf("state (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(want, h.store.last()); diff != "" {
		t.Fatalf("row (-want +got):\n%s", diff)
	}
}

func TestSyncInventory(t *testing.T) {
	t.Parallel()
	h := newHarness(t, Config{}, storage.ActorState{Trips: 40, GoldFish: 2, EmeraldFish: 5})
	h.remote.fetched["inv-1"] = remote.Reply{ID: "inv-1", Blocks: []classifier.TextBlock{{
		Title: "fisher's Inventory",
		Body:  "Balance: **$12,345**\nClan: **Sharks**\nCurrent biome: <:ocean:123> **Ocean**\n**7** <:gold:1> Gold Fish",
	}}}
	h.remote.fetched["not-inv"] = remote.Reply{ID: "not-inv", Blocks: []classifier.TextBlock{{Title: "Fish", Body: "You caught a fish"}}}

	st, err := h.e.SyncInventory(context.Background(), "inv-1")
	if err != nil {
		t.Fatalf("SyncInventory: %v", err)
	}
	want := storage.ActorState{ActorID: "actor-1", Trips: 40, Balance: 12345, Clan: "Sharks", Biome: "Ocean", GoldFish: 7, EmeraldFish: 5}
	if diff := cmp.Diff(want, st); diff != "" {
		t.Fatalf("state (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(want, h.store.last()); diff != "" {
		t.Fatalf("persisted (-want +got):\n%s", diff)
	}
	if _, err := h.e.SyncInventory(context.Background(), "not-inv"); !errors.Is(err, ErrNotInventory) {
		t.Fatalf("SyncInventory(non-inventory) = %v, want ErrNotInventory", err)
	}
	if _, err := h.e.SyncInventory(context.Background(), "missing"); !errors.Is(err, remote.ErrUnreadable) {
		t.Fatalf("SyncInventory(missing) = %v, want ErrUnreadable", err)
	}
}

func TestApplyKeepsChannel(t *testing.T) {
	t.Parallel()
	h := newHarness(t, Config{}, storage.ActorState{})
	h.e.SetChannel("other")
	h.e.Apply(Config{SellEveryN: 3})
	cfg, _ := h.e.config()
	if cfg.ChannelID != "other" || cfg.ActorID != "actor-1" || cfg.SellEveryN != 3 {
		t.Fatalf("config = %+v", cfg)
	}
}
