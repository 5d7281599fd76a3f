package schedule_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/hylla/flexcal/internal/domain"
	"github.com/hylla/flexcal/internal/schedule"
	"github.com/stretchr/testify/require"
)

func day(t *testing.T, key string) time.Time {
	t.Helper()
	d, err := schedule.ParseDateKey(key)
	require.NoError(t, err)
	return d
}

func layer(t *testing.T, in domain.LayerInput) domain.Layer {
	t.Helper()
	l, err := domain.NewLayer(in)
	require.NoError(t, err)
	return l
}

func item(t *testing.T, id, layerKey string, seq int, date string) domain.ScheduledItem {
	t.Helper()
	it, err := domain.NewScheduledItem(domain.ScheduledItemInput{
		ID:            id,
		Date:          day(t, date),
		LayerKey:      layerKey,
		SequenceIndex: seq,
		Title:         fmt.Sprintf("Lesson %d", seq),
	})
	require.NoError(t, err)
	return it
}

// weekdayCalendar builds one linked "reference" layer plus an exception layer, with
// dates on consecutive weekdays starting at start.
func weekdayCalendar(t *testing.T, start string, count int) domain.Calendar {
	t.Helper()
	cal := domain.Calendar{
		ID:                "cal-1",
		Name:              "School Year",
		IncludeWeekends:   false,
		IncludeExceptions: true,
		Layers: []domain.Layer{
			layer(t, domain.LayerInput{Key: "reference", Name: "Reference"}),
			layer(t, domain.LayerInput{Key: "holidays", Name: "Holidays", Kind: "exception"}),
		},
	}
	dates, err := schedule.GenerateValidDates(day(t, start), count, false, nil)
	require.NoError(t, err)
	for i, d := range dates {
		cal.Items = append(cal.Items, item(t, fmt.Sprintf("r%d", i+1), "reference", i+1, schedule.DateKey(d)))
	}
	require.NoError(t, cal.Validate())
	return cal
}

func addException(t *testing.T, cal *domain.Calendar, id, date string, targets ...string) {
	t.Helper()
	it, err := domain.NewScheduledItem(domain.ScheduledItemInput{
		ID:              id,
		Date:            day(t, date),
		LayerKey:        "holidays",
		SequenceIndex:   len(cal.Items) + 1,
		Title:           "Holiday",
		TargetLayerKeys: targets,
	})
	require.NoError(t, err)
	cal.Items = append(cal.Items, it)
}

func dateOf(t *testing.T, cal domain.Calendar, id string) string {
	t.Helper()
	idx := cal.ItemIndex(id)
	require.GreaterOrEqual(t, idx, 0, "item %s missing", id)
	return schedule.DateKey(cal.Items[idx].Date)
}

func counterIDs(prefix string) func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("%s-%d", prefix, n)
	}
}

// requireLayerOrdered checks that date order agrees with sequence order and that
// no standard item sits on an invalid day.
func requireLayerOrdered(t *testing.T, cal domain.Calendar, layerKey string) {
	t.Helper()
	rules := schedule.RulesFor(cal)
	order := cal.LayerItems(layerKey)
	for i, idx := range order {
		cur := cal.Items[idx]
		require.True(t, rules.IsValid(layerKey, cur.Date), "%s sits on invalid day %s", cur.ID, schedule.DateKey(cur.Date))
		if i == 0 {
			continue
		}
		prev := cal.Items[order[i-1]]
		require.False(t, cur.Date.Before(prev.Date), "%s (%s) before %s (%s)", cur.ID, schedule.DateKey(cur.Date), prev.ID, schedule.DateKey(prev.Date))
	}
}
