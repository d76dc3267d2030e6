// Package classifier turns free-text reply fragments into typed events.
//
// Classification is pure: no I/O, no shared state, and it never fails. Each
// block is matched against a fixed rule order and yields the events of the
// first rule it satisfies:
//
//  1. anti-bot challenge
//  2. currency gained
//  3. rare item found
//  4. worker completed
//  5. worker hired
//
// A challenge wins over everything else so the caller can pause before any
// other effect is applied. Unmatched blocks produce no events.
package classifier

import (
	"strings"
	"time"
)

// Options tunes classification. The zero value uses the package defaults.
type Options struct {
	// HireFallback is reported when a hire confirmation has no duration.
	HireFallback time.Duration
}

// Classifier is safe for concurrent use.
type Classifier struct {
	hireFallback time.Duration
}

func New(opt Options) *Classifier {
	if opt.HireFallback <= 0 {
		opt.HireFallback = DefaultHireFallback
	}
	return &Classifier{hireFallback: opt.HireFallback}
}

var defaultClassifier = New(Options{})

// Classify runs the default classifier.
func Classify(blocks []TextBlock) []Event {
	return defaultClassifier.Classify(blocks)
}

// Classify returns the events found in blocks, in block order.
func (c *Classifier) Classify(blocks []TextBlock) []Event {
	var out []Event
	for _, b := range blocks {
		out = append(out, c.classifyBlock(b)...)
	}
	return out
}

type rule func(c *Classifier, b TextBlock) []Event

var rules = []rule{
	challengeRule,
	currencyRule,
	rareItemRule,
	workerCompletedRule,
	workerHiredRule,
}

func (c *Classifier) classifyBlock(b TextBlock) []Event {
	for _, r := range rules {
		if evs := r(c, b); len(evs) > 0 {
			return evs
		}
	}
	return nil
}

func challengeRule(_ *Classifier, b TextBlock) []Event {
	title := strings.ToLower(b.Title)
	body := strings.ToLower(b.Body)
	marked := strings.Contains(title, "anti-bot") ||
		strings.Contains(title, "verify") ||
		strings.Contains(body, "verify") ||
		strings.Contains(b.Title, "Code:") ||
		strings.Contains(b.Body, "Code:")
	if !marked {
		return nil
	}
	ev := Event{Kind: KindChallenge, Raw: b}
	if code, ok := ChallengeCode(b.Body); ok {
		ev.HasTextCode = true
		ev.Code = code
	}
	return []Event{ev}
}

func currencyRule(_ *Classifier, b TextBlock) []Event {
	n, ok := CurrencyAmount(b.Body)
	if !ok {
		return nil
	}
	return []Event{{Kind: KindCurrency, Amount: n}}
}

func rareItemRule(_ *Classifier, b TextBlock) []Event {
	return RareItems(b.Body)
}

func workerCompletedRule(_ *Classifier, b TextBlock) []Event {
	if !strings.Contains(strings.ToLower(b.Body), "your worker") {
		return nil
	}
	n, ok := WorkerTotal(b.Body)
	if !ok {
		return nil
	}
	return []Event{{Kind: KindWorkerCompleted, TotalItems: n}}
}

func workerHiredRule(c *Classifier, b TextBlock) []Event {
	if !strings.Contains(strings.ToLower(b.Body), "hired") {
		return nil
	}
	d, ok := HireDuration(b.Body)
	if !ok {
		d = c.hireFallback
	}
	return []Event{{Kind: KindWorkerHired, Duration: d}}
}

// First returns the first event of kind k.
func First(evs []Event, k Kind) (Event, bool) {
	for _, e := range evs {
		if e.Kind == k {
			return e, true
		}
	}
	return Event{}, false
}
