package classifier

import "time"

// DefaultHireFallback is used when a hire confirmation carries no parseable duration.
const DefaultHireFallback = 1900 * time.Second

// TextBlock is one reply fragment (an embed in the chat platform's terms).
type TextBlock struct {
	Title string
	Body  string
}

// Kind tags an Event.
type Kind int

const (
	KindNone Kind = iota
	KindChallenge
	KindCurrency
	KindRareItem
	KindWorkerCompleted
	KindWorkerHired
)

func (k Kind) String() string {
	switch k {
	case KindChallenge:
		return "challenge"
	case KindCurrency:
		return "currency"
	case KindRareItem:
		return "rare_item"
	case KindWorkerCompleted:
		return "worker_completed"
	case KindWorkerHired:
		return "worker_hired"
	default:
		return "none"
	}
}

// Item is a rare item kind.
type Item int

const (
	ItemGold Item = iota + 1
	ItemEmerald
)

func (i Item) String() string {
	switch i {
	case ItemGold:
		return "gold"
	case ItemEmerald:
		return "emerald"
	default:
		return "unknown"
	}
}

// Event is a classified reply event. Only the fields of its Kind are set.
type Event struct {
	Kind Kind

	// KindChallenge
	HasTextCode bool
	Code        string
	Raw         TextBlock

	// KindCurrency
	Amount int64

	// KindRareItem
	Item  Item
	Count uint64

	// KindWorkerCompleted
	TotalItems uint64

	// KindWorkerHired
	Duration time.Duration
}

// Inventory is the structured view of an inventory reply.
// Zero-valued fields were not present in the text.
type Inventory struct {
	Balance     int64
	HasBalance  bool
	Clan        string
	Biome       string
	GoldFish    uint64
	HasGold     bool
	EmeraldFish uint64
	HasEmerald  bool
}
