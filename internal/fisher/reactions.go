package fisher

import (
	"context"
	"fmt"
	"slices"

	"fisherbot/internal/classifier"
	"fisherbot/internal/notifier"
	"fisherbot/internal/remote"
	"fisherbot/internal/storage"
	logx "fisherbot/pkg/logx"
)

type imageStatus struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

type exoticFish struct {
	EmeraldFish uint64 `json:"emerald_fish"`
	GoldFish    uint64 `json:"gold_fish"`
}

type rawBlock struct {
	Title string `json:"title,omitempty"`
	Body  string `json:"description,omitempty"`
}

// react classifies reply and applies the reaction table. A challenge anywhere
// in the reply suppresses every other event of that reply. A returned error
// comes from the verify call only; everything else is logged and absorbed.
func (e *Engine) react(ctx context.Context, cfg Config, loopName string, reply remote.Reply) (outcome, error) {
	_, cls := e.config()
	events := cls.Classify(reply.Blocks)
	if i := slices.IndexFunc(events, func(ev classifier.Event) bool { return ev.Kind == classifier.KindChallenge }); i >= 0 {
		if len(events) > 1 {
			e.log.Info("challenge in reply, other events ignored", logx.String("loop", loopName), logx.Int("ignored", len(events)-1))
		}
		events = events[i : i+1]
	}
	var out outcome
	for _, ev := range events {
		e.log.Debug("reply event", logx.String("loop", loopName), logx.String("kind", ev.Kind.String()))
		switch ev.Kind {
		case classifier.KindChallenge:
			o, err := e.onChallenge(ctx, cfg, loopName, reply, ev)
			if err != nil {
				return out, err
			}
			out.merge(o)
		case classifier.KindCurrency:
			e.onCurrency(ctx, cfg, loopName, ev)
		case classifier.KindRareItem:
			e.onRareItem(ctx, cfg, loopName, ev)
		case classifier.KindWorkerCompleted:
			e.onWorkerCompleted(ctx, cfg, loopName, ev)
		case classifier.KindWorkerHired:
			out.merge(e.onWorkerHired(ctx, cfg, loopName, ev))
		}
	}
	return out, nil
}

func (e *Engine) onChallenge(ctx context.Context, cfg Config, loopName string, reply remote.Reply, ev classifier.Event) (outcome, error) {
	e.log.Warn("anti-bot challenge detected", logx.String("loop", loopName), logx.Bool("text_code", ev.HasTextCode))
	payload := func(code string, img imageStatus) string {
		return notifier.Format("Anti-Bot Message Detected",
			notifier.F("username", cfg.Username),
			notifier.F("code", code),
			notifier.F("embed", rawBlock{Title: ev.Raw.Title, Body: ev.Raw.Body}),
			notifier.F("isimage", img),
			notifier.F("time", e.stamp()),
		)
	}
	id := e.post(ctx, payload("None", imageStatus{Status: "No", Message: "No image detected in embed"}))

	// An attached image means the text may not carry the real answer.
	if ev.HasTextCode && !reply.HasImage {
		e.amend(ctx, id, payload(ev.Code, imageStatus{Status: "No", Message: "Code submitted automatically"}))
		if _, err := e.invoke(ctx, cfg, cfg.Commands.Verify, map[string]string{"answer": ev.Code}); err != nil {
			return outcome{}, err
		}
		if loopName != primaryName {
			e.resumePrimary()
		}
		st := e.State()
		e.publish("fisher.challenge", Reaction{Loop: loopName, Kind: "challenge", Code: ev.Code, Balance: st.Balance, Trips: st.Trips})
		return outcome{next: cfg.ChallengeFallbackDelay}, nil
	}

	img := imageStatus{Status: "Yes", Message: "Image is detected, forward message to owner for manual solve"}
	if !reply.HasImage {
		img = imageStatus{Status: "No", Message: "No code found, forward message to owner for manual solve"}
	}
	e.amend(ctx, id, payload("None", img))
	if cfg.OwnerID != "" && reply.ID != "" {
		fctx, cancel := context.WithTimeout(ctx, cfg.CallTimeout)
		err := e.remote.Forward(fctx, reply.ID, cfg.OwnerID)
		cancel()
		if err != nil {
			e.log.Error("forward challenge to owner failed", logx.String("reply", reply.ID), logx.Err(remote.Normalize("forward", err)))
		}
	} else {
		e.log.Warn("challenge cannot be forwarded", logx.String("reply", reply.ID), logx.String("owner", cfg.OwnerID))
	}
	st := e.State()
	e.publish("fisher.challenge_escalated", Reaction{Loop: loopName, Kind: "challenge_escalated", Balance: st.Balance, Trips: st.Trips})
	return outcome{pause: true}, nil
}

func (e *Engine) onCurrency(ctx context.Context, cfg Config, loopName string, ev classifier.Event) {
	var before int64
	st := e.mutate(ctx, func(st *storage.ActorState) {
		before = st.Balance
		st.Balance += ev.Amount
	})
	e.log.Info("money received", logx.Int64("amount", ev.Amount), logx.Int64("balance", st.Balance))
	e.post(ctx, notifier.Format("Money Notification",
		notifier.F("username", cfg.Username),
		notifier.F("balance", before),
		notifier.F("get_money", ev.Amount),
		notifier.F("total_balance", st.Balance),
		notifier.F("time", e.stamp()),
	))
	e.publish("fisher.currency", Reaction{Loop: loopName, Kind: "currency", Amount: ev.Amount, Balance: st.Balance, Trips: st.Trips})
}

func (e *Engine) onRareItem(ctx context.Context, cfg Config, loopName string, ev classifier.Event) {
	st := e.mutate(ctx, func(st *storage.ActorState) {
		switch ev.Item {
		case classifier.ItemEmerald:
			st.EmeraldFish += ev.Count
		case classifier.ItemGold:
			st.GoldFish += ev.Count
		}
	})
	key := ev.Item.String() + "_fish"
	e.log.Info("crate found", logx.String("item", ev.Item.String()), logx.Uint64("count", ev.Count))
	e.post(ctx, notifier.Format("You Found Crate",
		notifier.F("username", cfg.Username),
		notifier.F("containing", map[string]uint64{key: ev.Count}),
		notifier.F("exotic_fish", exoticFish{EmeraldFish: st.EmeraldFish, GoldFish: st.GoldFish}),
		notifier.F("time", e.stamp()),
	))
	e.publish("fisher.rare_item", Reaction{Loop: loopName, Kind: "rare_item", Item: ev.Item.String(), Count: ev.Count, Balance: st.Balance, Trips: st.Trips})
}

func (e *Engine) onWorkerCompleted(ctx context.Context, cfg Config, loopName string, ev classifier.Event) {
	e.post(ctx, notifier.Format("Fish from Worker Notification",
		notifier.F("username", cfg.Username),
		notifier.F("total_fish", ev.TotalItems),
		notifier.F("time", e.stamp()),
	))
	e.publish("fisher.worker_completed", Reaction{Loop: loopName, Kind: "worker_completed", Count: ev.TotalItems})
}

func (e *Engine) onWorkerHired(ctx context.Context, cfg Config, loopName string, ev classifier.Event) outcome {
	minutes := int64(ev.Duration.Minutes())
	e.log.Info("worker hired", logx.Duration("for", ev.Duration))
	e.post(ctx, notifier.Format("Worker Hired",
		notifier.F("username", cfg.Username),
		notifier.F("description", fmt.Sprintf("Worker hired for the next %d minutes", minutes)),
		notifier.F("delay", int64(ev.Duration.Seconds())),
		notifier.F("time", e.stamp()),
	))
	e.publish("fisher.worker_hired", Reaction{Loop: loopName, Kind: "worker_hired", Amount: int64(ev.Duration.Seconds())})
	return outcome{hired: ev.Duration}
}

func (e *Engine) post(ctx context.Context, text string) string {
	if e.notify == nil {
		return ""
	}
	return e.notify.Notify(ctx, text)
}

// amend edits id. A failed post leaves nothing to amend.
func (e *Engine) amend(ctx context.Context, id, text string) {
	if e.notify == nil || id == "" {
		return
	}
	e.notify.Amend(ctx, id, text)
}

func (e *Engine) resumePrimary() {
	if err := e.primary.Resume(); err != nil {
		e.log.Debug("primary not paused", logx.Err(err))
	}
}
