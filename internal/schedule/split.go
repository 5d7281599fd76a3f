package schedule

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/hylla/flexcal/internal/domain"
)

// Split part bounds.
const (
	MinSplitParts = 2
	MaxSplitParts = 6
)

var (
	ErrAlreadySplit       = errors.New("scheduled item is already split")
	ErrInvalidParts       = errors.New("split parts out of range")
	ErrSplitGroupNotFound = errors.New("split group not found")
	ErrExceptionItem      = errors.New("exception items cannot be split")
)

// ClampParts coerces parts into [MinSplitParts, MaxSplitParts].
func ClampParts(parts int) int {
	return min(max(parts, MinSplitParts), MaxSplitParts)
}

// SplitRequest divides one item into Parts sequential parts.
type SplitRequest struct {
	ItemID string
	Parts  int
}

// UnsplitRequest collapses a split group. SplitGroupID wins when both are set.
type UnsplitRequest struct {
	ItemID       string
	SplitGroupID string
}

// Split turns the target into part 1 of req.Parts, inserts the remaining parts on
// the following valid days, and pushes the rest of the layer forward by the extra
// valid days the parts occupy. newID supplies ids for the group and each new part.
func Split(cal domain.Calendar, req SplitRequest, newID func() string) (domain.Calendar, error) {
	out := cal.Clone()
	if req.Parts < MinSplitParts || req.Parts > MaxSplitParts {
		return out, fmt.Errorf("%w: %d not in [%d,%d]", ErrInvalidParts, req.Parts, MinSplitParts, MaxSplitParts)
	}
	targetIdx := out.ItemIndex(req.ItemID)
	if targetIdx < 0 {
		return out, fmt.Errorf("%w: %s", ErrItemNotFound, strings.TrimSpace(req.ItemID))
	}
	target := out.Items[targetIdx]
	layer, ok := out.Layer(target.LayerKey)
	if !ok {
		return out, fmt.Errorf("item %s layer %q: %w", target.ID, target.LayerKey, domain.ErrLayerNotFound)
	}
	if layer.IsException() {
		return out, fmt.Errorf("%w: %s", ErrExceptionItem, target.ID)
	}
	if target.SplitTotal > 1 {
		return out, fmt.Errorf("%w: %s", ErrAlreadySplit, target.ID)
	}

	rules := RulesFor(out)
	blocked := rules.BlockedFor(layer.Key)
	order := out.LayerItems(layer.Key)
	pos := slices.Index(order, targetIdx)

	// Compute every new date before touching the snapshot.
	parts := make([]domain.ScheduledItem, 0, req.Parts-1)
	base := domain.BaseTitle(target.Title)
	groupID := newID()
	prev := target.Date
	for idx := 2; idx <= req.Parts; idx++ {
		date, err := AdvanceValidDays(prev, 1, rules.IncludeWeekends, blocked)
		if err != nil {
			return cal.Clone(), fmt.Errorf("place part %d of %s: %w", idx, target.ID, err)
		}
		part := target.Clone()
		part.ID = newID()
		part.Date = date
		part.Title = domain.PartTitle(base, idx, req.Parts)
		part.SplitGroupID = groupID
		part.SplitIndex = idx
		part.SplitTotal = req.Parts
		parts = append(parts, part)
		prev = date
	}
	tail := order[pos+1:]
	tailDates := make([]time.Time, len(tail))
	for i, idx := range tail {
		item := out.Items[idx]
		date, err := AdvanceValidDays(item.Date, req.Parts-1, rules.IncludeWeekends, rules.BlockedFor(item.LayerKey))
		if err != nil {
			return cal.Clone(), fmt.Errorf("push %s past split: %w", item.ID, err)
		}
		tailDates[i] = date
	}

	for i, idx := range tail {
		out.Items[idx].Date = tailDates[i]
	}
	head := &out.Items[targetIdx]
	head.Title = domain.PartTitle(base, 1, req.Parts)
	head.SplitGroupID = groupID
	head.SplitIndex = 1
	head.SplitTotal = req.Parts

	layerOrder := make([]string, 0, len(order)+len(parts))
	for i, idx := range order {
		layerOrder = append(layerOrder, out.Items[idx].ID)
		if i == pos {
			for _, part := range parts {
				layerOrder = append(layerOrder, part.ID)
			}
		}
	}
	out.Items = slices.Insert(out.Items, targetIdx+1, parts...)
	renumber(&out, layerOrder)
	return out, nil
}

// Unsplit collapses a split group back into its first member. The last member is
// shifted back onto the first member's day within the group's layer, which pulls
// the rest of the layer back by the same valid days, then the extra parts are removed.
func Unsplit(cal domain.Calendar, req UnsplitRequest) (domain.Calendar, error) {
	out := cal.Clone()
	groupID := strings.TrimSpace(req.SplitGroupID)
	if groupID == "" {
		idx := out.ItemIndex(req.ItemID)
		if idx < 0 {
			return out, fmt.Errorf("%w: %s", ErrItemNotFound, strings.TrimSpace(req.ItemID))
		}
		groupID = out.Items[idx].SplitGroupID
		if groupID == "" {
			return out, nil
		}
	}

	members := make([]int, 0)
	for i, item := range out.Items {
		if item.SplitGroupID == groupID {
			members = append(members, i)
		}
	}
	if len(members) == 0 {
		return out, fmt.Errorf("%w: %s", ErrSplitGroupNotFound, groupID)
	}
	if len(members) < 2 {
		return out, nil
	}
	slices.SortStableFunc(members, func(a, b int) int {
		return out.Items[a].SplitIndex - out.Items[b].SplitIndex
	})

	first := out.Items[members[0]]
	last := out.Items[members[len(members)-1]]
	rules := RulesFor(out)
	target, err := RetreatValidDays(last.Date, len(members)-1, rules.IncludeWeekends, rules.BlockedFor(last.LayerKey))
	if err != nil {
		return out, fmt.Errorf("resolve collapse day for group %s: %w", groupID, err)
	}
	shifted, err := Shift(out, ShiftRequest{
		AnchorItemID: last.ID,
		DeltaDays:    DaysBetween(last.Date, target),
		LayerKeys:    []string{last.LayerKey},
	})
	if err != nil {
		return cal.Clone(), fmt.Errorf("shift group %s back: %w", groupID, err)
	}

	drop := make(map[string]struct{}, len(members)-1)
	for _, idx := range members[1:] {
		drop[out.Items[idx].ID] = struct{}{}
	}
	kept := shifted.Items[:0]
	for _, item := range shifted.Items {
		if _, ok := drop[item.ID]; ok {
			continue
		}
		if item.ID == first.ID {
			item.ClearSplit()
		}
		kept = append(kept, item)
	}
	shifted.Items = kept

	layerOrder := make([]string, 0)
	for _, idx := range shifted.LayerItems(first.LayerKey) {
		layerOrder = append(layerOrder, shifted.Items[idx].ID)
	}
	renumber(&shifted, layerOrder)
	return shifted, nil
}

// renumber assigns 1-based contiguous sequence indexes following ids.
func renumber(cal *domain.Calendar, ids []string) {
	seq := make(map[string]int, len(ids))
	for i, id := range ids {
		seq[id] = i + 1
	}
	for i := range cal.Items {
		if n, ok := seq[cal.Items[i].ID]; ok {
			cal.Items[i].SequenceIndex = n
		}
	}
}
