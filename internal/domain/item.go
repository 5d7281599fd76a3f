package domain

import (
	"fmt"
	"maps"
	"regexp"
	"slices"
	"strings"
	"time"
)

// partSuffixPattern matches the canonical split suffix, e.g. " (Part 2/3)".
var partSuffixPattern = regexp.MustCompile(`\s*\(Part \d+/\d+\)$`)

// ScheduledItem is one dated entry on a layer.
type ScheduledItem struct {
	ID              string
	Date            time.Time
	LayerKey        string
	SequenceIndex   int
	Title           string
	Label           string
	Description     string
	Notes           string
	DurationDays    int
	Metadata        map[string]string
	TargetLayerKeys []string
	SplitGroupID    string
	SplitIndex      int
	SplitTotal      int
}

// ScheduledItemInput holds input values for scheduled item construction.
type ScheduledItemInput struct {
	ID              string
	Date            time.Time
	LayerKey        string
	SequenceIndex   int
	Title           string
	Label           string
	Description     string
	Notes           string
	DurationDays    int
	Metadata        map[string]string
	TargetLayerKeys []string
}

// NewScheduledItem validates and normalizes one scheduled item.
func NewScheduledItem(in ScheduledItemInput) (ScheduledItem, error) {
	in.ID = strings.TrimSpace(in.ID)
	in.LayerKey = NormalizeLayerKey(in.LayerKey)
	in.Title = strings.TrimSpace(in.Title)

	if in.ID == "" {
		return ScheduledItem{}, ErrInvalidID
	}
	if in.LayerKey == "" {
		return ScheduledItem{}, ErrInvalidLayerKey
	}
	if in.Title == "" {
		return ScheduledItem{}, ErrInvalidTitle
	}
	if in.Date.IsZero() {
		return ScheduledItem{}, ErrInvalidDate
	}
	if in.SequenceIndex < 1 {
		return ScheduledItem{}, ErrInvalidSequence
	}
	if in.DurationDays == 0 {
		in.DurationDays = 1
	}
	if in.DurationDays < 1 {
		return ScheduledItem{}, ErrInvalidDuration
	}

	return ScheduledItem{
		ID:              in.ID,
		Date:            TruncateDay(in.Date),
		LayerKey:        in.LayerKey,
		SequenceIndex:   in.SequenceIndex,
		Title:           in.Title,
		Label:           strings.TrimSpace(in.Label),
		Description:     strings.TrimSpace(in.Description),
		Notes:           strings.TrimSpace(in.Notes),
		DurationDays:    in.DurationDays,
		Metadata:        cloneMetadata(in.Metadata),
		TargetLayerKeys: NormalizeLayerKeys(in.TargetLayerKeys),
	}, nil
}

// IsSplit reports whether the item belongs to a split group.
func (it ScheduledItem) IsSplit() bool {
	return it.SplitGroupID != "" && it.SplitTotal > 1
}

// ClearSplit removes split markers and restores the base title.
func (it *ScheduledItem) ClearSplit() {
	it.Title = BaseTitle(it.Title)
	it.SplitGroupID = ""
	it.SplitIndex = 0
	it.SplitTotal = 0
}

// Clone returns a deep copy of the item.
func (it ScheduledItem) Clone() ScheduledItem {
	out := it
	out.Metadata = cloneMetadata(it.Metadata)
	out.TargetLayerKeys = slices.Clone(it.TargetLayerKeys)
	return out
}

// BaseTitle strips a trailing " (Part i/n)" suffix.
func BaseTitle(title string) string {
	return strings.TrimSpace(partSuffixPattern.ReplaceAllString(strings.TrimSpace(title), ""))
}

// PartTitle renders the canonical split title for part index of total.
func PartTitle(base string, index, total int) string {
	return fmt.Sprintf("%s (Part %d/%d)", BaseTitle(base), index, total)
}

// TruncateDay returns UTC midnight of t's UTC calendar day.
func TruncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// NormalizeLayerKeys trims, drops empty values and dedupes while keeping order.
func NormalizeLayerKeys(keys []string) []string {
	if len(keys) == 0 {
		return nil
	}
	out := make([]string, 0, len(keys))
	seen := map[string]struct{}{}
	for _, raw := range keys {
		key := NormalizeLayerKey(raw)
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, key)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// cloneMetadata keeps nil and empty maps apart.
func cloneMetadata(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	return maps.Clone(in)
}
