package schedule

import (
	"errors"
	"fmt"
	"time"

	"github.com/hylla/flexcal/internal/domain"
)

// MaxSearchIterations bounds every day-by-day search.
const MaxSearchIterations = 2000

// ErrNoValidDate reports that every candidate inside the search bound was blocked.
var ErrNoValidDate = errors.New("no valid date within search bound")

// IsValidDate reports whether date is neither a disallowed weekend nor blocked.
func IsValidDate(date time.Time, includeWeekends bool, blocked DateSet) bool {
	if !includeWeekends && IsWeekend(date) {
		return false
	}
	return !blocked.Contains(date)
}

// NextValidDate returns candidate, or the first later day that is valid.
func NextValidDate(candidate time.Time, includeWeekends bool, blocked DateSet) (time.Time, error) {
	day := domain.TruncateDay(candidate)
	if includeWeekends && len(blocked) == 0 {
		return day, nil
	}
	for range MaxSearchIterations {
		if IsValidDate(day, includeWeekends, blocked) {
			return day, nil
		}
		day = AddDays(day, 1)
	}
	return time.Time{}, fmt.Errorf("%w: searching forward from %s", ErrNoValidDate, DateKey(candidate))
}

// previousValidDate returns candidate, or the first earlier day that is valid.
func previousValidDate(candidate time.Time, includeWeekends bool, blocked DateSet) (time.Time, error) {
	day := domain.TruncateDay(candidate)
	if includeWeekends && len(blocked) == 0 {
		return day, nil
	}
	for range MaxSearchIterations {
		if IsValidDate(day, includeWeekends, blocked) {
			return day, nil
		}
		day = AddDays(day, -1)
	}
	return time.Time{}, fmt.Errorf("%w: searching backward from %s", ErrNoValidDate, DateKey(candidate))
}

// GenerateValidDates returns count valid days starting at the first valid day >= start.
func GenerateValidDates(start time.Time, count int, includeWeekends bool, blocked DateSet) ([]time.Time, error) {
	if count <= 0 {
		return nil, nil
	}
	out := make([]time.Time, 0, count)
	cursor := start
	for range count {
		next, err := NextValidDate(cursor, includeWeekends, blocked)
		if err != nil {
			return nil, err
		}
		out = append(out, next)
		cursor = AddDays(next, 1)
	}
	return out, nil
}

// ValidDaySpan counts the valid-day steps separating a and b. It is symmetric and
// zero for the same day. A later day that is itself invalid is never landed on, so
// the span comes back as MaxSearchIterations, as it does when the walk runs out.
func ValidDaySpan(a, b time.Time, includeWeekends bool, blocked DateSet) (int, error) {
	earlier, later := domain.TruncateDay(a), domain.TruncateDay(b)
	if later.Before(earlier) {
		earlier, later = later, earlier
	}
	if earlier.Equal(later) {
		return 0, nil
	}

	steps := 0
	cursor := AddDays(earlier, 1)
	for range MaxSearchIterations {
		next, err := NextValidDate(cursor, includeWeekends, blocked)
		if err != nil {
			return 0, err
		}
		steps++
		if next.Equal(later) {
			return steps, nil
		}
		if next.After(later) {
			return MaxSearchIterations, nil
		}
		cursor = AddDays(next, 1)
	}
	return MaxSearchIterations, nil
}

// AdvanceValidDays walks forward steps valid days from start. steps <= 0 returns start.
func AdvanceValidDays(start time.Time, steps int, includeWeekends bool, blocked DateSet) (time.Time, error) {
	result := domain.TruncateDay(start)
	if steps <= 0 {
		return result, nil
	}
	cursor := AddDays(result, 1)
	for range steps {
		next, err := NextValidDate(cursor, includeWeekends, blocked)
		if err != nil {
			return time.Time{}, err
		}
		result = next
		cursor = AddDays(next, 1)
	}
	return result, nil
}

// RetreatValidDays walks backward steps valid days from start. steps <= 0 returns start.
func RetreatValidDays(start time.Time, steps int, includeWeekends bool, blocked DateSet) (time.Time, error) {
	result := domain.TruncateDay(start)
	if steps <= 0 {
		return result, nil
	}
	cursor := AddDays(result, -1)
	for range steps {
		prev, err := previousValidDate(cursor, includeWeekends, blocked)
		if err != nil {
			return time.Time{}, err
		}
		result = prev
		cursor = AddDays(prev, -1)
	}
	return result, nil
}
