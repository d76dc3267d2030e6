package classifier

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Reply scraping patterns. Kept in one place so wording changes on the remote
// side only touch this file.
var (
	codeRe     = regexp.MustCompile(`Code:\s*\*\*([A-Za-z0-9]+)\*\*`)
	currencyRe = regexp.MustCompile(`\$([\d,]+)`)
	rareRe     = regexp.MustCompile(`(?i)you got ([\d,]+) (gold|emerald) fish`)
	totalRe    = regexp.MustCompile(`total of \*\*([\d,]+)\*\* fish`)
	hireRe     = regexp.MustCompile(`the next \*\*(\d+)\*\* minutes`)

	invBalanceRe = regexp.MustCompile(`Balance: \*\*?\$([\d,]+)\*\*?`)
	invClanRe    = regexp.MustCompile(`Clan: \*\*(\w+)\*\*`)
	invBiomeRe   = regexp.MustCompile(`Current biome: (?:<:\w+:\d+> )?\*\*(\w+)\*\*`)
	invGoldRe    = regexp.MustCompile(`\*\*([\d,]+)\*\* (?:<:\w+:\d+> )?Gold Fish`)
	invEmeraldRe = regexp.MustCompile(`\*\*([\d,]+)\*\* (?:<:\w+:\d+> )?Emerald Fish`)
)

// ParseCount parses a non-negative integer token, stripping thousands separators.
// It reports false when no digits remain or the value overflows.
func ParseCount(tok string) (uint64, bool) {
	s := strings.ReplaceAll(strings.TrimSpace(tok), ",", "")
	if s == "" {
		return 0, false
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

func parseAmount(tok string) (int64, bool) {
	s := strings.ReplaceAll(strings.TrimSpace(tok), ",", "")
	if s == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// ChallengeCode extracts the text code of an anti-bot prompt.
func ChallengeCode(body string) (string, bool) {
	m := codeRe.FindStringSubmatch(body)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// CurrencyAmount returns the first $-prefixed amount with a valid number.
func CurrencyAmount(body string) (int64, bool) {
	for _, m := range currencyRe.FindAllStringSubmatch(body, -1) {
		if n, ok := parseAmount(m[1]); ok {
			return n, true
		}
	}
	return 0, false
}

// RareItems returns every "You got N <kind> Fish" mention with a valid count.
func RareItems(body string) []Event {
	var out []Event
	for _, m := range rareRe.FindAllStringSubmatch(body, -1) {
		n, ok := ParseCount(m[1])
		if !ok {
			continue
		}
		item := ItemGold
		if strings.EqualFold(m[2], "emerald") {
			item = ItemEmerald
		}
		out = append(out, Event{Kind: KindRareItem, Item: item, Count: n})
	}
	return out
}

// WorkerTotal extracts the total fish count of a worker summary.
func WorkerTotal(body string) (uint64, bool) {
	m := totalRe.FindStringSubmatch(body)
	if m == nil {
		return 0, false
	}
	return ParseCount(m[1])
}

// maxHireMinutes is the longest hire a time.Duration can hold.
const maxHireMinutes = uint64(math.MaxInt64 / int64(time.Minute))

// HireDuration extracts the hire length of a worker confirmation.
func HireDuration(body string) (time.Duration, bool) {
	m := hireRe.FindStringSubmatch(body)
	if m == nil {
		return 0, false
	}
	minutes, ok := ParseCount(m[1])
	if !ok || minutes > maxHireMinutes {
		return 0, false
	}
	return time.Duration(minutes) * time.Minute, true
}

// ParseInventory scrapes an inventory reply. It reports false when the block
// is not an inventory.
func ParseInventory(b TextBlock) (Inventory, bool) {
	if !strings.Contains(strings.ToLower(b.Title), "inventory") {
		return Inventory{}, false
	}
	var inv Inventory
	if m := invBalanceRe.FindStringSubmatch(b.Body); m != nil {
		inv.Balance, inv.HasBalance = parseAmount(m[1])
	}
	if m := invClanRe.FindStringSubmatch(b.Body); m != nil {
		inv.Clan = m[1]
	}
	if m := invBiomeRe.FindStringSubmatch(b.Body); m != nil {
		inv.Biome = m[1]
	}
	if m := invGoldRe.FindStringSubmatch(b.Body); m != nil {
		inv.GoldFish, inv.HasGold = ParseCount(m[1])
	}
	if m := invEmeraldRe.FindStringSubmatch(b.Body); m != nil {
		inv.EmeraldFish, inv.HasEmerald = ParseCount(m[1])
	}
	return inv, true
}
