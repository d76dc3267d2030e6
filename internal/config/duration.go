package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return def, nil
	}
	return d, nil
}

// Durations parses many fields and reports every bad one at once.
//
//	var p config.Durations
//	min := p.Parse("fisher.min_delay", raw.MinDelay)
//	if err := p.Err(); err != nil { ... }
type Durations struct {
	errs []error
}

// Parse returns the parsed duration, or 0 when raw is empty or invalid.
func (p *Durations) Parse(path, raw string) time.Duration {
	d, err := ParseDurationField(path, raw)
	if err != nil {
		p.errs = append(p.errs, err)
	}
	return d
}

func (p *Durations) Err() error { return errors.Join(p.errs...) }
