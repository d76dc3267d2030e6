package digest

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// parser accepts 5-field and 6-field (with seconds) specs and descriptors.
var parser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

var reHHMM = regexp.MustCompile(`^\s*(\d{1,3}):(\d{2})\s*$`)

// ParseSchedule normalizes a digest schedule to a cron spec.
//
// Accepted forms:
//   - cron: "0 21 * * *", "@daily", "@every 6h"
//   - Go duration: "6h", "90m" (becomes "@every")
//   - HH:MM interval: "06:00" (every 6 hours)
func ParseSchedule(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", fmt.Errorf("schedule required")
	}
	if strings.HasPrefix(strings.ToLower(s), "cron:") {
		s = strings.TrimSpace(s[len("cron:"):])
	}
	if strings.ContainsAny(s, " \t") || strings.HasPrefix(s, "@") {
		if _, err := parser.Parse(s); err != nil {
			return "", fmt.Errorf("invalid cron schedule %q: %w", raw, err)
		}
		return s, nil
	}

	var every time.Duration
	if m := reHHMM.FindStringSubmatch(s); m != nil {
		hh, _ := strconv.Atoi(m[1])
		mm, _ := strconv.Atoi(m[2])
		if mm > 59 {
			return "", fmt.Errorf("invalid minutes in %q", raw)
		}
		every = time.Duration(hh)*time.Hour + time.Duration(mm)*time.Minute
	} else {
		d, err := time.ParseDuration(s)
		if err != nil {
			return "", fmt.Errorf("invalid schedule %q (use cron like '0 21 * * *', HH:MM like '06:00', or duration like '6h')", raw)
		}
		every = d
	}
	if every < time.Second {
		return "", fmt.Errorf("interval must be >= 1s")
	}
	return "@every " + every.String(), nil
}
