package schedule

import (
	"fmt"
	"slices"
	"time"

	"github.com/hylla/flexcal/internal/domain"
)

// DateChange is one item's date movement between two snapshots.
type DateChange struct {
	ItemID   string
	LayerKey string
	From     time.Time
	To       time.Time
}

// Diff lists items present in both snapshots whose date changed, in after's order.
func Diff(before, after domain.Calendar) []DateChange {
	prior := make(map[string]time.Time, len(before.Items))
	for _, item := range before.Items {
		prior[item.ID] = item.Date
	}
	out := make([]DateChange, 0)
	for _, item := range after.Items {
		from, ok := prior[item.ID]
		if !ok || from.Equal(item.Date) {
			continue
		}
		out = append(out, DateChange{ItemID: item.ID, LayerKey: item.LayerKey, From: from, To: item.Date})
	}
	return out
}

// ReflowBlocked moves standard items off days that are no longer valid. Linked
// layers reflow from their first invalid item so later spacing is kept;
// independent layers move each invalid item to its next valid day.
// The ids of moved items are returned alongside the new snapshot.
func ReflowBlocked(cal domain.Calendar) (domain.Calendar, []string, error) {
	out := cal.Clone()
	for _, layer := range cal.Layers {
		if layer.IsException() {
			continue
		}
		var err error
		if layer.IsLinked() {
			out, err = reflowLinkedLayer(out, layer.Key)
		} else {
			out, err = reflowIndependentLayer(out, layer.Key)
		}
		if err != nil {
			return cal.Clone(), nil, err
		}
	}

	changes := Diff(cal, out)
	ids := make([]string, 0, len(changes))
	for _, change := range changes {
		ids = append(ids, change.ItemID)
	}
	return out, ids, nil
}

// reflowLinkedLayer repeats until the layer has no invalid items. Each pass fixes
// the earliest invalid item and everything after it, so the loop is bounded by the
// layer size.
func reflowLinkedLayer(cal domain.Calendar, layerKey string) (domain.Calendar, error) {
	passes := len(cal.LayerItems(layerKey)) + 1
	for range passes {
		rules := RulesFor(cal)
		order := cal.LayerItems(layerKey)
		invalid := slices.IndexFunc(order, func(idx int) bool {
			return !rules.IsValid(layerKey, cal.Items[idx].Date)
		})
		if invalid < 0 {
			return cal, nil
		}
		item := cal.Items[order[invalid]]
		target, err := NextValidDate(item.Date, rules.IncludeWeekends, rules.BlockedFor(layerKey))
		if err != nil {
			return cal, fmt.Errorf("reflow %s off blocked day: %w", item.ID, err)
		}
		cal, err = Shift(cal, ShiftRequest{
			AnchorItemID: item.ID,
			DeltaDays:    DaysBetween(item.Date, target),
			LayerKeys:    []string{layerKey},
		})
		if err != nil {
			return cal, fmt.Errorf("reflow %s off blocked day: %w", item.ID, err)
		}
	}
	return cal, nil
}

func reflowIndependentLayer(cal domain.Calendar, layerKey string) (domain.Calendar, error) {
	rules := RulesFor(cal)
	blocked := rules.BlockedFor(layerKey)
	for _, idx := range cal.LayerItems(layerKey) {
		item := cal.Items[idx]
		if IsValidDate(item.Date, rules.IncludeWeekends, blocked) {
			continue
		}
		target, err := NextValidDate(item.Date, rules.IncludeWeekends, blocked)
		if err != nil {
			return cal, fmt.Errorf("move %s off blocked day: %w", item.ID, err)
		}
		cal.Items[idx].Date = target
	}
	return cal, nil
}
