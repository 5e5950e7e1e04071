// Package corrid implements C1: duration-literal parsing and correlation ID
// minting.
package corrid

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

var durationLiteral = regexp.MustCompile(`^([0-9]+)([smhd])$`)

// ParseDuration parses a duration literal of the form "30s", "5m", "1h",
// "1d" into a time.Duration. Any other form returns an *invalid duration*
// error (spec §4.1).
func ParseDuration(literal string) (time.Duration, error) {
	m := durationLiteral.FindStringSubmatch(literal)
	if m == nil {
		return 0, fmt.Errorf("invalid duration: %q (expected form like 30s, 5m, 1h, 1d)", literal)
	}
	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid duration: %q: %w", literal, err)
	}
	var unit time.Duration
	switch m[2] {
	case "s":
		unit = time.Second
	case "m":
		unit = time.Minute
	case "h":
		unit = time.Hour
	case "d":
		unit = 24 * time.Hour
	}
	return time.Duration(n) * unit, nil
}

// MustParseDuration is ParseDuration but panics on error; useful for
// compile-time-known literals such as config defaults.
func MustParseDuration(literal string) time.Duration {
	d, err := ParseDuration(literal)
	if err != nil {
		panic(err)
	}
	return d
}

// FormatDuration renders a duration back into the coarsest literal unit
// that divides it evenly, falling back to seconds. Used by the query
// builder (§8 "Parser round-trip") to re-serialize parsed durations.
func FormatDuration(d time.Duration) string {
	switch {
	case d%(24*time.Hour) == 0 && d >= 24*time.Hour:
		return fmt.Sprintf("%dd", d/(24*time.Hour))
	case d%time.Hour == 0 && d >= time.Hour:
		return fmt.Sprintf("%dh", d/time.Hour)
	case d%time.Minute == 0 && d >= time.Minute:
		return fmt.Sprintf("%dm", d/time.Minute)
	default:
		return fmt.Sprintf("%ds", d/time.Second)
	}
}
