// Package schedule implements the calendar reflow engine: valid-date resolution,
// gap-preserving shifts, and split/unsplit transforms over one calendar snapshot.
//
// Every function here is pure. Callers load a calendar, run one operation, and
// persist the returned copy; the input snapshot is never mutated.
package schedule

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/hylla/flexcal/internal/domain"
)

// dayKeyLayout is the canonical day-key format.
const dayKeyLayout = "2006-01-02"

// ErrInvalidDateKey reports an unparseable day key.
var ErrInvalidDateKey = errors.New("invalid date key")

// DateKey normalizes t to its UTC calendar day string.
func DateKey(t time.Time) string {
	return t.UTC().Format(dayKeyLayout)
}

// ParseDateKey parses YYYY-MM-DD or RFC3339 input into a UTC midnight value.
func ParseDateKey(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, ErrInvalidDateKey
	}
	if t, err := time.Parse(dayKeyLayout, raw); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDateKey, raw)
	}
	return domain.TruncateDay(t), nil
}

// IsWeekend reports whether t falls on a UTC Saturday or Sunday.
func IsWeekend(t time.Time) bool {
	switch t.UTC().Weekday() {
	case time.Saturday, time.Sunday:
		return true
	default:
		return false
	}
}

// AddDays moves t by n UTC calendar days and drops the time of day.
func AddDays(t time.Time, n int) time.Time {
	return domain.TruncateDay(t).AddDate(0, 0, n)
}

// DaysBetween returns the signed number of UTC calendar days from a to b.
func DaysBetween(a, b time.Time) int {
	return int(domain.TruncateDay(b).Sub(domain.TruncateDay(a)) / (24 * time.Hour))
}

// DateSet is a set of day keys. A nil set means no filtering.
type DateSet map[string]struct{}

// NewDateSet builds a set from day keys.
func NewDateSet(keys ...string) DateSet {
	out := make(DateSet, len(keys))
	for _, key := range keys {
		out[key] = struct{}{}
	}
	return out
}

// Has reports whether key is in the set.
func (s DateSet) Has(key string) bool {
	if s == nil {
		return false
	}
	_, ok := s[key]
	return ok
}

// Contains reports whether t's day key is in the set.
func (s DateSet) Contains(t time.Time) bool {
	return s.Has(DateKey(t))
}

// Keys returns the sorted day keys.
func (s DateSet) Keys() []string {
	out := make([]string, 0, len(s))
	for key := range s {
		out = append(out, key)
	}
	slices.Sort(out)
	return out
}
