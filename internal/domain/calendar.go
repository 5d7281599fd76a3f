package domain

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// Calendar is the aggregate root: layers plus the items scheduled on them.
type Calendar struct {
	ID                string
	Name              string
	PresetKey         string
	StartDate         *time.Time
	TotalDays         int
	IncludeWeekends   bool
	IncludeExceptions bool
	Layers            []Layer
	Items             []ScheduledItem
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// CalendarSummary is the list projection of a calendar.
type CalendarSummary struct {
	ID        string
	Name      string
	StartDate *time.Time
	TotalDays int
	Layers    []Layer
	ItemCount int
	UpdatedAt time.Time
}

// CalendarInput holds input values for calendar construction.
type CalendarInput struct {
	ID                string
	Name              string
	PresetKey         string
	StartDate         *time.Time
	TotalDays         int
	IncludeWeekends   bool
	IncludeExceptions bool
	Layers            []Layer
}

// NewCalendar constructs an empty calendar; items are attached by the caller.
func NewCalendar(in CalendarInput, now time.Time) (Calendar, error) {
	in.ID = strings.TrimSpace(in.ID)
	in.Name = strings.TrimSpace(in.Name)
	if in.ID == "" {
		return Calendar{}, ErrInvalidID
	}
	if in.Name == "" {
		return Calendar{}, ErrInvalidName
	}
	if in.TotalDays < 0 {
		return Calendar{}, ErrInvalidTotalDays
	}
	var start *time.Time
	if in.StartDate != nil {
		day := TruncateDay(*in.StartDate)
		start = &day
	}

	cal := Calendar{
		ID:                in.ID,
		Name:              in.Name,
		PresetKey:         strings.TrimSpace(in.PresetKey),
		StartDate:         start,
		TotalDays:         in.TotalDays,
		IncludeWeekends:   in.IncludeWeekends,
		IncludeExceptions: in.IncludeExceptions,
		Layers:            slices.Clone(in.Layers),
		CreatedAt:         now.UTC(),
		UpdatedAt:         now.UTC(),
	}
	if err := cal.Validate(); err != nil {
		return Calendar{}, err
	}
	return cal, nil
}

// Validate checks the aggregate invariants.
func (c Calendar) Validate() error {
	if strings.TrimSpace(c.ID) == "" {
		return ErrInvalidID
	}
	if strings.TrimSpace(c.Name) == "" {
		return ErrInvalidName
	}
	layerKeys := make(map[string]struct{}, len(c.Layers))
	for _, layer := range c.Layers {
		if layer.Key == "" {
			return ErrInvalidLayerKey
		}
		if _, ok := layerKeys[layer.Key]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateLayerKey, layer.Key)
		}
		layerKeys[layer.Key] = struct{}{}
	}
	itemIDs := make(map[string]struct{}, len(c.Items))
	for _, item := range c.Items {
		if item.ID == "" {
			return ErrInvalidID
		}
		if _, ok := itemIDs[item.ID]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateItemID, item.ID)
		}
		itemIDs[item.ID] = struct{}{}
		if _, ok := layerKeys[item.LayerKey]; !ok {
			return fmt.Errorf("item %s references %q: %w", item.ID, item.LayerKey, ErrLayerNotFound)
		}
		if item.SequenceIndex < 1 {
			return fmt.Errorf("item %s: %w", item.ID, ErrInvalidSequence)
		}
		if strings.TrimSpace(item.Title) == "" {
			return fmt.Errorf("item %s: %w", item.ID, ErrInvalidTitle)
		}
		if item.Date.IsZero() {
			return fmt.Errorf("item %s: %w", item.ID, ErrInvalidDate)
		}
	}
	return nil
}

// Clone returns a deep copy so engine results never alias the input snapshot.
func (c Calendar) Clone() Calendar {
	out := c
	if c.StartDate != nil {
		start := *c.StartDate
		out.StartDate = &start
	}
	out.Layers = slices.Clone(c.Layers)
	if c.Items != nil {
		out.Items = make([]ScheduledItem, len(c.Items))
		for i, item := range c.Items {
			out.Items[i] = item.Clone()
		}
	}
	return out
}

// Layer returns the layer with key.
func (c Calendar) Layer(key string) (Layer, bool) {
	for _, layer := range c.Layers {
		if layer.Key == key {
			return layer, true
		}
	}
	return Layer{}, false
}

// ItemIndex returns the slice index of the item with id, or -1.
func (c Calendar) ItemIndex(id string) int {
	id = strings.TrimSpace(id)
	for i := range c.Items {
		if c.Items[i].ID == id {
			return i
		}
	}
	return -1
}

// ExceptionLayerKeys returns the keys of every exception-kind layer.
func (c Calendar) ExceptionLayerKeys() map[string]struct{} {
	out := map[string]struct{}{}
	for _, layer := range c.Layers {
		if layer.IsException() {
			out[layer.Key] = struct{}{}
		}
	}
	return out
}

// LayerItems returns the indexes of items on layerKey ordered by sequence index.
// Ties keep document order.
func (c Calendar) LayerItems(layerKey string) []int {
	out := make([]int, 0)
	for i := range c.Items {
		if c.Items[i].LayerKey == layerKey {
			out = append(out, i)
		}
	}
	slices.SortStableFunc(out, func(a, b int) int {
		return c.Items[a].SequenceIndex - c.Items[b].SequenceIndex
	})
	return out
}

// Summary projects the calendar for list views.
func (c Calendar) Summary() CalendarSummary {
	return CalendarSummary{
		ID:        c.ID,
		Name:      c.Name,
		StartDate: c.StartDate,
		TotalDays: c.TotalDays,
		Layers:    slices.Clone(c.Layers),
		ItemCount: len(c.Items),
		UpdatedAt: c.UpdatedAt,
	}
}

// Touch records a mutation time.
func (c *Calendar) Touch(now time.Time) {
	c.UpdatedAt = now.UTC()
}
