package schedule

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/hylla/flexcal/internal/domain"
)

// ErrItemNotFound reports a missing anchor item.
var ErrItemNotFound = errors.New("scheduled item not found")

// ShiftRequest moves one anchor item by DeltaDays calendar days.
// LayerKeys opts into cross-layer cascading; empty means the anchor's own layer.
type ShiftRequest struct {
	AnchorItemID string
	DeltaDays    int
	LayerKeys    []string
}

// Shift relocates the anchor to a valid date and carries every downstream item in
// the effective layers along, preserving the valid-day gaps between neighbors.
// On error the returned calendar is an unmodified copy of cal.
func Shift(cal domain.Calendar, req ShiftRequest) (domain.Calendar, error) {
	out := cal.Clone()
	if req.DeltaDays == 0 {
		return out, nil
	}

	anchorIdx := out.ItemIndex(req.AnchorItemID)
	if anchorIdx < 0 {
		return out, fmt.Errorf("%w: %s", ErrItemNotFound, strings.TrimSpace(req.AnchorItemID))
	}
	anchor := out.Items[anchorIdx]
	anchorLayer, ok := out.Layer(anchor.LayerKey)
	if !ok {
		return out, fmt.Errorf("anchor %s layer %q: %w", anchor.ID, anchor.LayerKey, domain.ErrLayerNotFound)
	}
	effective, err := effectiveLayers(out, anchorLayer, req.LayerKeys)
	if err != nil {
		return out, err
	}

	rules := RulesFor(out)
	target, err := NextValidDate(AddDays(anchor.Date, req.DeltaDays), rules.IncludeWeekends, rules.BlockedFor(anchor.LayerKey))
	if err != nil {
		return out, fmt.Errorf("resolve anchor %s target: %w", anchor.ID, err)
	}

	chain := downstreamChain(out, anchorIdx, effective)
	dates, err := reflowDates(out, chain, target, rules)
	if err != nil {
		return cal.Clone(), err
	}
	for i, idx := range chain {
		out.Items[idx].Date = dates[i]
	}
	return out, nil
}

// effectiveLayers resolves the layers that cascade. A nil set means the anchor moves
// alone, which is also the case when explicit keys leave out the anchor's layer.
func effectiveLayers(cal domain.Calendar, anchorLayer domain.Layer, explicit []string) (map[string]struct{}, error) {
	keys := domain.NormalizeLayerKeys(explicit)
	if len(keys) > 0 {
		out := make(map[string]struct{}, len(keys))
		for _, key := range keys {
			if _, ok := cal.Layer(key); !ok {
				return nil, fmt.Errorf("shift layer %q: %w", key, domain.ErrLayerNotFound)
			}
			out[key] = struct{}{}
		}
		if _, ok := out[anchorLayer.Key]; !ok {
			return nil, nil
		}
		return out, nil
	}
	if anchorLayer.IsException() || !anchorLayer.IsLinked() {
		return nil, nil
	}
	return map[string]struct{}{anchorLayer.Key: {}}, nil
}

// downstreamChain returns item indexes at or after the anchor's sequence index in the
// effective layers, ascending, with the anchor forced to the front.
func downstreamChain(cal domain.Calendar, anchorIdx int, effective map[string]struct{}) []int {
	if effective == nil {
		return []int{anchorIdx}
	}
	anchorSeq := cal.Items[anchorIdx].SequenceIndex
	chain := make([]int, 0)
	for i, item := range cal.Items {
		if i == anchorIdx {
			continue
		}
		if _, ok := effective[item.LayerKey]; !ok {
			continue
		}
		if item.SequenceIndex >= anchorSeq {
			chain = append(chain, i)
		}
	}
	slices.SortStableFunc(chain, func(a, b int) int {
		return cal.Items[a].SequenceIndex - cal.Items[b].SequenceIndex
	})
	return append([]int{anchorIdx}, chain...)
}

// reflowDates computes new dates for chain: the head takes target and every later
// item keeps its original valid-day gap to its predecessor, measured and applied
// with the later item's own blocked days.
func reflowDates(cal domain.Calendar, chain []int, target time.Time, rules Rules) ([]time.Time, error) {
	if len(chain) == 0 {
		return nil, nil
	}
	gaps := make([]int, len(chain)-1)
	for i := 0; i < len(chain)-1; i++ {
		current := cal.Items[chain[i]]
		next := cal.Items[chain[i+1]]
		span, err := ValidDaySpan(current.Date, next.Date, rules.IncludeWeekends, rules.BlockedFor(next.LayerKey))
		if err != nil {
			return nil, fmt.Errorf("measure gap %s -> %s: %w", current.ID, next.ID, err)
		}
		if span <= 0 || span >= MaxSearchIterations {
			span = 1
		}
		gaps[i] = span
	}

	dates := make([]time.Time, len(chain))
	dates[0] = target
	for i := 1; i < len(chain); i++ {
		item := cal.Items[chain[i]]
		next, err := AdvanceValidDays(dates[i-1], gaps[i-1], rules.IncludeWeekends, rules.BlockedFor(item.LayerKey))
		if err != nil {
			return nil, fmt.Errorf("place %s: %w", item.ID, err)
		}
		dates[i] = next
	}
	return dates, nil
}
