package classifier

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestClassifyScenarios(t *testing.T) {
	t.Parallel()
	codeBody := "Code: **D8fQ**\n\nPlease use /verify D8fQ to continue."
	tests := []struct {
		name   string
		blocks []TextBlock
		want   []Event
	}{
		{
			name:   "text challenge",
			blocks: []TextBlock{{Title: "Anti-bot", Body: codeBody}},
			want: []Event{{
				Kind: KindChallenge, HasTextCode: true, Code: "D8fQ",
				Raw: TextBlock{Title: "Anti-bot", Body: codeBody},
			}},
		},
		{
			name:   "text challenge without title",
			blocks: []TextBlock{{Body: codeBody}},
			want: []Event{{
				Kind: KindChallenge, HasTextCode: true, Code: "D8fQ",
				Raw: TextBlock{Body: codeBody},
			}},
		},
		{
			name:   "image challenge",
			blocks: []TextBlock{{Title: "Anti-Bot Check", Body: "Please solve the image below to verify."}},
			want: []Event{{
				Kind: KindChallenge,
				Raw:  TextBlock{Title: "Anti-Bot Check", Body: "Please solve the image below to verify."},
			}},
		},
		{
			name:   "emerald crate",
			blocks: []TextBlock{{Body: "You got 3 Emerald Fish in a hidden crate!"}},
			want:   []Event{{Kind: KindRareItem, Item: ItemEmerald, Count: 3}},
		},
		{
			name:   "gold crate",
			blocks: []TextBlock{{Body: "You got 12 Gold Fish"}},
			want:   []Event{{Kind: KindRareItem, Item: ItemGold, Count: 12}},
		},
		{
			name:   "currency with separators",
			blocks: []TextBlock{{Title: "Sold", Body: "You sold your fish for **$1,234,567**!"}},
			want:   []Event{{Kind: KindCurrency, Amount: 1234567}},
		},
		{
			name:   "worker summary",
			blocks: []TextBlock{{Body: "Your worker caught a total of **420** fish while you were away."}},
			want:   []Event{{Kind: KindWorkerCompleted, TotalItems: 420}},
		},
		{
			name:   "hired with duration",
			blocks: []TextBlock{{Body: "You hired a worker for the next **30** minutes."}},
			want:   []Event{{Kind: KindWorkerHired, Duration: 30 * time.Minute}},
		},
		{
			name:   "hired without duration",
			blocks: []TextBlock{{Body: "You hired a worker."}},
			want:   []Event{{Kind: KindWorkerHired, Duration: DefaultHireFallback}},
		},
		{
			name:   "hired for longer than a duration holds",
			blocks: []TextBlock{{Body: "You hired a worker for the next **300000000000** minutes."}},
			want:   []Event{{Kind: KindWorkerHired, Duration: DefaultHireFallback}},
		},
		{
			name:   "no match",
			blocks: []TextBlock{{Title: "Fishing", Body: "You caught a boot."}},
			want:   nil,
		},
		{
			name: "one event per block in order",
			blocks: []TextBlock{
				{Body: "You got 1 Gold Fish"},
				{Body: "earned $50"},
			},
			want: []Event{
				{Kind: KindRareItem, Item: ItemGold, Count: 1},
				{Kind: KindCurrency, Amount: 50},
			},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := Classify(tt.blocks)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Fatalf("Classify mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestClassifyChallengeTakesPrecedence(t *testing.T) {
	t.Parallel()
	got := Classify([]TextBlock{{
		Title: "Anti-bot",
		Body:  "You earned $500. Code: **AB12** please /verify AB12",
	}})
	if len(got) != 1 {
		t.Fatalf("len(events) = %d, want 1: %+v", len(got), got)
	}
	if got[0].Kind != KindChallenge {
		t.Fatalf("Kind = %v, want %v", got[0].Kind, KindChallenge)
	}
	if got[0].Code != "AB12" {
		t.Fatalf("Code = %q, want AB12", got[0].Code)
	}
}

func TestClassifyMalformedNumberFallsThrough(t *testing.T) {
	t.Parallel()
	// "$,," has no digits: the currency rule must not match, the rare item rule still runs.
	got := Classify([]TextBlock{{Body: "Lost $,, but You got 2 Emerald Fish"}})
	want := []Event{{Kind: KindRareItem, Item: ItemEmerald, Count: 2}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("Classify mismatch (-want +got):\n%s", diff)
	}

	if got := Classify([]TextBlock{{Body: "$99999999999999999999999 overflow"}}); len(got) != 0 {
		t.Fatalf("expected overflow to be ignored, got %+v", got)
	}
}

func TestClassifyIsTotal(t *testing.T) {
	t.Parallel()
	inputs := [][]TextBlock{
		nil,
		{},
		{{}},
		{{Title: "Code:", Body: ""}},
		{{Body: "$"}},
		{{Body: "hired the next **** minutes"}},
		{{Body: "your worker total of **,** fish"}},
		{{Body: "You got , Gold Fish"}},
	}
	for _, in := range inputs {
		first := Classify(in)
		second := Classify(in)
		if diff := cmp.Diff(first, second); diff != "" {
			t.Fatalf("Classify not deterministic for %+v:\n%s", in, diff)
		}
	}
}

func TestCustomHireFallback(t *testing.T) {
	t.Parallel()
	c := New(Options{HireFallback: time.Minute})
	got := c.Classify([]TextBlock{{Body: "Worker hired!"}})
	if len(got) != 1 || got[0].Duration != time.Minute {
		t.Fatalf("unexpected events: %+v", got)
	}
}

func TestParseInventory(t *testing.T) {
	t.Parallel()
	body := "Clan: **Sharks**\nBalance: **$12,345**\nCurrent biome: <:ocean:123> **Ocean**\n" +
		"**Exotic Fish**\n**7** <:gold:456> Gold Fish\n**1,002** <:emerald:789> Emerald Fish"
	inv, ok := ParseInventory(TextBlock{Title: "User's Inventory", Body: body})
	if !ok {
		t.Fatal("expected inventory block")
	}
	want := Inventory{
		Balance: 12345, HasBalance: true,
		Clan: "Sharks", Biome: "Ocean",
		GoldFish: 7, HasGold: true,
		EmeraldFish: 1002, HasEmerald: true,
	}
	if diff := cmp.Diff(want, inv); diff != "" {
		t.Fatalf("ParseInventory mismatch (-want +got):\n%s", diff)
	}

	if _, ok := ParseInventory(TextBlock{Title: "Fishing", Body: body}); ok {
		t.Fatal("expected non-inventory title to be rejected")
	}
}

func TestParseCount(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want uint64
		ok   bool
	}{
		{in: "1,234", want: 1234, ok: true},
		{in: "0", want: 0, ok: true},
		{in: ",", ok: false},
		{in: "", ok: false},
		{in: "12a", ok: false},
	}
	for _, tt := range tests {
		got, ok := ParseCount(tt.in)
		if ok != tt.ok || got != tt.want {
			t.Fatalf("ParseCount(%q) = (%d, %v), want (%d, %v)", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}
