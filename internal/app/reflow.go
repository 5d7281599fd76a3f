package app

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/hylla/flexcal/internal/domain"
	"github.com/hylla/flexcal/internal/schedule"
)

// ShiftItemsInput holds input values for shift operations.
type ShiftItemsInput struct {
	CalendarID string
	ItemID     string
	DeltaDays  int
	LayerKeys  []string
}

// ShiftItems moves one item and reflows its downstream chain.
func (s *Service) ShiftItems(ctx context.Context, in ShiftItemsInput) (ReflowResult, error) {
	before, after, err := s.shift(ctx, in)
	if err != nil {
		return ReflowResult{}, err
	}
	if in.DeltaDays == 0 {
		return ReflowResult{Calendar: before, Changes: []schedule.DateChange{}}, nil
	}
	return s.save(ctx, before, after, domain.ChangeOperationShift, strings.TrimSpace(in.ItemID), map[string]string{
		"delta_days": fmt.Sprint(in.DeltaDays),
		"layer_keys": strings.Join(domain.NormalizeLayerKeys(in.LayerKeys), ","),
	})
}

// PreviewShift runs the same shift without persisting it.
func (s *Service) PreviewShift(ctx context.Context, in ShiftItemsInput) (ReflowResult, error) {
	before, after, err := s.shift(ctx, in)
	if err != nil {
		return ReflowResult{}, err
	}
	return ReflowResult{Calendar: after, Changes: schedule.Diff(before, after)}, nil
}

func (s *Service) shift(ctx context.Context, in ShiftItemsInput) (domain.Calendar, domain.Calendar, error) {
	before, err := s.repo.GetCalendar(ctx, strings.TrimSpace(in.CalendarID))
	if err != nil {
		return domain.Calendar{}, domain.Calendar{}, err
	}
	after, err := schedule.Shift(before, schedule.ShiftRequest{
		AnchorItemID: strings.TrimSpace(in.ItemID),
		DeltaDays:    in.DeltaDays,
		LayerKeys:    in.LayerKeys,
	})
	if err != nil {
		return domain.Calendar{}, domain.Calendar{}, err
	}
	return before, after, nil
}

// SplitItemInput holds input values for split operations.
type SplitItemInput struct {
	CalendarID string
	ItemID     string
	Parts      int
}

// SplitItem divides one item into parts. Out-of-range parts are rejected unless
// the service is configured to clamp them.
func (s *Service) SplitItem(ctx context.Context, in SplitItemInput) (ReflowResult, error) {
	before, err := s.repo.GetCalendar(ctx, strings.TrimSpace(in.CalendarID))
	if err != nil {
		return ReflowResult{}, err
	}
	parts := in.Parts
	if s.cfg.ClampSplitParts {
		parts = schedule.ClampParts(parts)
	}
	itemID := strings.TrimSpace(in.ItemID)
	after, err := schedule.Split(before, schedule.SplitRequest{ItemID: itemID, Parts: parts}, s.idGen)
	if err != nil {
		return ReflowResult{}, err
	}
	return s.save(ctx, before, after, domain.ChangeOperationSplit, itemID, map[string]string{
		"parts":          fmt.Sprint(parts),
		"split_group_id": after.Items[after.ItemIndex(itemID)].SplitGroupID,
	})
}

// UnsplitItemInput holds input values for unsplit operations. One id is required.
type UnsplitItemInput struct {
	CalendarID   string
	ItemID       string
	SplitGroupID string
}

// UnsplitItem collapses a split group back into one item.
func (s *Service) UnsplitItem(ctx context.Context, in UnsplitItemInput) (ReflowResult, error) {
	itemID := strings.TrimSpace(in.ItemID)
	groupID := strings.TrimSpace(in.SplitGroupID)
	if itemID == "" && groupID == "" {
		return ReflowResult{}, fmt.Errorf("item id or split group id: %w", domain.ErrInvalidID)
	}
	before, err := s.repo.GetCalendar(ctx, strings.TrimSpace(in.CalendarID))
	if err != nil {
		return ReflowResult{}, err
	}
	after, err := schedule.Unsplit(before, schedule.UnsplitRequest{ItemID: itemID, SplitGroupID: groupID})
	if err != nil {
		return ReflowResult{}, err
	}
	return s.save(ctx, before, after, domain.ChangeOperationUnsplit, itemID, map[string]string{
		"split_group_id": groupID,
	})
}

// ExceptionUpdateMode selects how UpdateExceptions treats existing markers.
type ExceptionUpdateMode string

// ExceptionUpdateReplace and related constants define supported modes.
const (
	ExceptionUpdateReplace ExceptionUpdateMode = "replace"
	ExceptionUpdateMerge   ExceptionUpdateMode = "merge"
)

// UpdateExceptionsInput holds input values for exception updates.
// An empty LayerKey selects the calendar's first exception layer.
type UpdateExceptionsInput struct {
	CalendarID        string
	LayerKey          string
	Mode              ExceptionUpdateMode
	IncludeExceptions *bool
	Exceptions        []ExceptionInput
}

// UpdateExceptions replaces or merges one exception layer's markers and reflows
// every item now sitting on a blocked day.
func (s *Service) UpdateExceptions(ctx context.Context, in UpdateExceptionsInput) (ReflowResult, error) {
	mode := ExceptionUpdateMode(strings.ToLower(strings.TrimSpace(string(in.Mode))))
	if mode == "" {
		mode = ExceptionUpdateReplace
	}
	if mode != ExceptionUpdateReplace && mode != ExceptionUpdateMerge {
		return ReflowResult{}, fmt.Errorf("%w: %q", ErrInvalidExceptionMode, in.Mode)
	}
	before, err := s.repo.GetCalendar(ctx, strings.TrimSpace(in.CalendarID))
	if err != nil {
		return ReflowResult{}, err
	}
	cal := before.Clone()
	layerKey, err := exceptionLayerKey(cal, in.LayerKey)
	if err != nil {
		return ReflowResult{}, err
	}
	cal.IncludeExceptions = boolOr(in.IncludeExceptions, cal.IncludeExceptions)

	existing := make([]domain.ScheduledItem, 0)
	others := make([]domain.ScheduledItem, 0, len(cal.Items))
	for _, item := range cal.Items {
		if item.LayerKey == layerKey {
			existing = append(existing, item)
			continue
		}
		others = append(others, item)
	}
	slices.SortStableFunc(existing, func(a, b domain.ScheduledItem) int {
		return a.SequenceIndex - b.SequenceIndex
	})

	kept := make([]domain.ScheduledItem, 0, len(existing)+len(in.Exceptions))
	seen := map[string]struct{}{}
	if mode == ExceptionUpdateMerge {
		for _, item := range existing {
			seen[exceptionKey(item)] = struct{}{}
			kept = append(kept, item)
		}
	}
	incoming, err := s.exceptionItems(layerKey, 1, in.Exceptions)
	if err != nil {
		return ReflowResult{}, err
	}
	for _, item := range incoming {
		key := exceptionKey(item)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		item.SequenceIndex = len(kept) + 1
		kept = append(kept, item)
	}
	cal.Items = append(others, kept...)

	after, moved, err := schedule.ReflowBlocked(cal)
	if err != nil {
		return ReflowResult{}, err
	}
	return s.save(ctx, before, after, domain.ChangeOperationExceptions, "", map[string]string{
		"layer_key":  layerKey,
		"mode":       string(mode),
		"exceptions": fmt.Sprint(len(kept)),
		"moved":      fmt.Sprint(len(moved)),
	})
}

func exceptionLayerKey(cal domain.Calendar, raw string) (string, error) {
	key := domain.NormalizeLayerKey(raw)
	if key == "" {
		for _, layer := range cal.Layers {
			if layer.IsException() {
				return layer.Key, nil
			}
		}
		return "", fmt.Errorf("calendar %s has no exception layer: %w", cal.ID, domain.ErrLayerNotFound)
	}
	layer, ok := cal.Layer(key)
	if !ok {
		return "", fmt.Errorf("layer %q: %w", key, domain.ErrLayerNotFound)
	}
	if !layer.IsException() {
		return "", fmt.Errorf("%w: %q", ErrNotExceptionLayer, key)
	}
	return key, nil
}

// exceptionKey identifies a marker by day and scope for merge de-duplication.
func exceptionKey(item domain.ScheduledItem) string {
	targets := slices.Clone(item.TargetLayerKeys)
	slices.Sort(targets)
	return schedule.DateKey(item.Date) + "|" + strings.Join(targets, ",")
}

// ExceptionSummary is the blocked-day view of one calendar.
type ExceptionSummary struct {
	CalendarID        string
	IncludeWeekends   bool
	IncludeExceptions bool
	Global            []string
	PerLayer          map[string][]string
	BlockedByLayer    map[string][]string
}

// ExceptionLookup reports the calendar's blocked days, globally, per layer, and as
// the effective set each standard layer is scheduled against.
func (s *Service) ExceptionLookup(ctx context.Context, calendarID string) (ExceptionSummary, error) {
	cal, err := s.repo.GetCalendar(ctx, strings.TrimSpace(calendarID))
	if err != nil {
		return ExceptionSummary{}, err
	}
	rules := schedule.RulesFor(cal)
	out := ExceptionSummary{
		CalendarID:        cal.ID,
		IncludeWeekends:   cal.IncludeWeekends,
		IncludeExceptions: cal.IncludeExceptions,
		Global:            rules.Lookup.Global.Keys(),
		PerLayer:          map[string][]string{},
		BlockedByLayer:    map[string][]string{},
	}
	for key, set := range rules.Lookup.PerLayer {
		out.PerLayer[key] = set.Keys()
	}
	for _, layer := range cal.Layers {
		if layer.IsException() {
			continue
		}
		out.BlockedByLayer[layer.Key] = rules.BlockedFor(layer.Key).Keys()
	}
	return out, nil
}
