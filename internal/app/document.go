package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/hylla/flexcal/internal/domain"
	"github.com/hylla/flexcal/internal/schedule"
)

// DocumentVersion defines a package constant value.
const DocumentVersion = "flexcal.calendar.v1"

// CalendarDocument is the portable JSON form of one calendar.
type CalendarDocument struct {
	Version           string          `json:"version"`
	ExportedAt        time.Time       `json:"exportedAt"`
	ID                string          `json:"id"`
	Name              string          `json:"name"`
	PresetKey         string          `json:"presetKey,omitempty"`
	StartDate         string          `json:"startDate,omitempty"`
	TotalDays         int             `json:"totalDays"`
	IncludeWeekends   bool            `json:"includeWeekends"`
	IncludeExceptions bool            `json:"includeExceptions"`
	Layers            []DocumentLayer `json:"layers"`
	ScheduledItems    []DocumentItem  `json:"scheduledItems"`
	CreatedAt         time.Time       `json:"createdAt"`
	UpdatedAt         time.Time       `json:"updatedAt"`
}

// DocumentLayer represents document layer data used by this package.
type DocumentLayer struct {
	Key                      string           `json:"key"`
	Name                     string           `json:"name"`
	Color                    string           `json:"color,omitempty"`
	Description              string           `json:"description,omitempty"`
	ChainBehavior            string           `json:"chainBehavior,omitempty"`
	AutoShift                *bool            `json:"autoShift,omitempty"`
	Kind                     string           `json:"kind,omitempty"`
	RespectsGlobalExceptions *bool            `json:"respectsGlobalExceptions,omitempty"`
	Template                 DocumentTemplate `json:"template"`
}

// DocumentTemplate represents document template data used by this package.
type DocumentTemplate struct {
	Mode         string `json:"mode,omitempty"`
	ItemCount    int    `json:"itemCount,omitempty"`
	TitlePattern string `json:"titlePattern,omitempty"`
}

// DocumentItem represents document item data used by this package.
type DocumentItem struct {
	ID              string            `json:"scheduledItemId"`
	Date            string            `json:"date"`
	LayerKey        string            `json:"layerKey"`
	SequenceIndex   int               `json:"sequenceIndex"`
	Title           string            `json:"title"`
	Label           string            `json:"label,omitempty"`
	Description     string            `json:"description,omitempty"`
	Notes           string            `json:"notes,omitempty"`
	DurationDays    int               `json:"durationDays,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
	TargetLayerKeys []string          `json:"targetLayerKeys,omitempty"`
	SplitGroupID    string            `json:"splitGroupId,omitempty"`
	SplitIndex      int               `json:"splitIndex,omitempty"`
	SplitTotal      int               `json:"splitTotal,omitempty"`
}

// UnmarshalJSON accepts the current field names plus the older grouping/day names.
func (d *CalendarDocument) UnmarshalJSON(data []byte) error {
	type plain CalendarDocument
	var raw struct {
		plain
		Groupings       []DocumentLayer `json:"groupings"`
		Days            []DocumentItem  `json:"days"`
		IncludeHolidays *bool           `json:"includeHolidays"`
		Source          string          `json:"source"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*d = CalendarDocument(raw.plain)
	if len(d.Layers) == 0 {
		d.Layers = raw.Groupings
	}
	if len(d.ScheduledItems) == 0 {
		d.ScheduledItems = raw.Days
	}
	if raw.IncludeHolidays != nil && !d.IncludeExceptions {
		d.IncludeExceptions = *raw.IncludeHolidays
	}
	if d.PresetKey == "" {
		d.PresetKey = strings.TrimSpace(raw.Source)
	}
	return nil
}

// UnmarshalJSON accepts the older day shape, where the title lived on a nested event.
func (it *DocumentItem) UnmarshalJSON(data []byte) error {
	type plain DocumentItem
	var raw struct {
		plain
		LegacyID         string `json:"id"`
		DayID            string `json:"dayId"`
		MongoID          string `json:"_id"`
		GroupingKey      string `json:"groupingKey"`
		GroupingSequence int    `json:"groupingSequence"`
		Events           []struct {
			Title        string `json:"title"`
			Description  string `json:"description"`
			DurationDays int    `json:"durationDays"`
		} `json:"events"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*it = DocumentItem(raw.plain)
	for _, alt := range []string{raw.LegacyID, raw.DayID, raw.MongoID} {
		if it.ID == "" {
			it.ID = strings.TrimSpace(alt)
		}
	}
	if it.LayerKey == "" {
		it.LayerKey = raw.GroupingKey
	}
	if it.SequenceIndex == 0 {
		it.SequenceIndex = raw.GroupingSequence
	}
	if it.Title == "" && len(raw.Events) > 0 {
		event := raw.Events[0]
		it.Title = event.Title
		if it.Description == "" {
			it.Description = event.Description
		}
		if it.DurationDays == 0 {
			it.DurationDays = event.DurationDays
		}
	}
	return nil
}

// Validate checks document-level requirements before conversion.
func (d *CalendarDocument) Validate() error {
	if d.Version != "" && d.Version != DocumentVersion {
		return fmt.Errorf("%w: unsupported version %q", ErrInvalidDocument, d.Version)
	}
	if strings.TrimSpace(d.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidDocument)
	}
	if d.TotalDays < 0 {
		return fmt.Errorf("%w: totalDays must be >= 0", ErrInvalidDocument)
	}
	for i, layer := range d.Layers {
		if strings.TrimSpace(layer.Key) == "" {
			return fmt.Errorf("%w: layers[%d].key is required", ErrInvalidDocument, i)
		}
	}
	for i, item := range d.ScheduledItems {
		if strings.TrimSpace(item.Date) == "" {
			return fmt.Errorf("%w: scheduledItems[%d].date is required", ErrInvalidDocument, i)
		}
		if strings.TrimSpace(item.LayerKey) == "" {
			return fmt.Errorf("%w: scheduledItems[%d].layerKey is required", ErrInvalidDocument, i)
		}
	}
	return nil
}

// ExportDocument renders one calendar as a portable document.
func (s *Service) ExportDocument(ctx context.Context, calendarID string) (CalendarDocument, error) {
	cal, err := s.repo.GetCalendar(ctx, strings.TrimSpace(calendarID))
	if err != nil {
		return CalendarDocument{}, err
	}
	return DocumentFromCalendar(cal, s.clock()), nil
}

// ImportDocument validates a document and creates or replaces its calendar.
// Missing calendar and item ids are generated.
func (s *Service) ImportDocument(ctx context.Context, doc CalendarDocument) (domain.Calendar, error) {
	if err := doc.Validate(); err != nil {
		return domain.Calendar{}, err
	}
	cal, err := doc.toDomain(s.clock(), s.idGen)
	if err != nil {
		return domain.Calendar{}, err
	}

	existing, err := s.repo.GetCalendar(ctx, cal.ID)
	switch {
	case err == nil:
		cal.CreatedAt = existing.CreatedAt
		res, saveErr := s.save(ctx, existing, cal, domain.ChangeOperationImport, "", map[string]string{
			"items": fmt.Sprint(len(cal.Items)),
		})
		if saveErr != nil {
			return domain.Calendar{}, saveErr
		}
		return res.Calendar, nil
	case errors.Is(err, ErrNotFound):
		if err := s.repo.CreateCalendar(ctx, cal); err != nil {
			return domain.Calendar{}, err
		}
		return cal, nil
	default:
		return domain.Calendar{}, err
	}
}

// DocumentFromCalendar converts a calendar into its document form. Items are
// ordered by layer, then sequence, keeping document order among ties.
func DocumentFromCalendar(cal domain.Calendar, exportedAt time.Time) CalendarDocument {
	doc := CalendarDocument{
		Version:           DocumentVersion,
		ExportedAt:        exportedAt.UTC(),
		ID:                cal.ID,
		Name:              cal.Name,
		PresetKey:         cal.PresetKey,
		TotalDays:         cal.TotalDays,
		IncludeWeekends:   cal.IncludeWeekends,
		IncludeExceptions: cal.IncludeExceptions,
		Layers:            make([]DocumentLayer, 0, len(cal.Layers)),
		ScheduledItems:    make([]DocumentItem, 0, len(cal.Items)),
		CreatedAt:         cal.CreatedAt.UTC(),
		UpdatedAt:         cal.UpdatedAt.UTC(),
	}
	if cal.StartDate != nil {
		doc.StartDate = schedule.DateKey(*cal.StartDate)
	}
	layerPos := make(map[string]int, len(cal.Layers))
	for i, layer := range cal.Layers {
		layerPos[layer.Key] = i
		respects := layer.RespectsGlobalExceptions
		doc.Layers = append(doc.Layers, DocumentLayer{
			Key:                      layer.Key,
			Name:                     layer.Name,
			Color:                    layer.Color,
			Description:              layer.Description,
			ChainBehavior:            string(layer.ChainBehavior),
			Kind:                     string(layer.Kind),
			RespectsGlobalExceptions: &respects,
			Template: DocumentTemplate{
				Mode:         string(layer.Template.Mode),
				ItemCount:    layer.Template.ItemCount,
				TitlePattern: layer.Template.TitlePattern,
			},
		})
	}
	items := slices.Clone(cal.Items)
	slices.SortStableFunc(items, func(a, b domain.ScheduledItem) int {
		if pa, pb := layerPos[a.LayerKey], layerPos[b.LayerKey]; pa != pb {
			return pa - pb
		}
		return a.SequenceIndex - b.SequenceIndex
	})
	for _, item := range items {
		doc.ScheduledItems = append(doc.ScheduledItems, DocumentItem{
			ID:              item.ID,
			Date:            schedule.DateKey(item.Date),
			LayerKey:        item.LayerKey,
			SequenceIndex:   item.SequenceIndex,
			Title:           item.Title,
			Label:           item.Label,
			Description:     item.Description,
			Notes:           item.Notes,
			DurationDays:    item.DurationDays,
			Metadata:        maps.Clone(item.Metadata),
			TargetLayerKeys: slices.Clone(item.TargetLayerKeys),
			SplitGroupID:    item.SplitGroupID,
			SplitIndex:      item.SplitIndex,
			SplitTotal:      item.SplitTotal,
		})
	}
	return doc
}

// toDomain converts the document through the domain constructors.
func (d CalendarDocument) toDomain(now time.Time, idGen IDGenerator) (domain.Calendar, error) {
	layers := make([]domain.Layer, 0, len(d.Layers))
	for i, dl := range d.Layers {
		layer, err := domain.NewLayer(domain.LayerInput{
			Key:                      dl.Key,
			Name:                     dl.Name,
			Color:                    dl.Color,
			Description:              dl.Description,
			ChainBehavior:            dl.ChainBehavior,
			AutoShift:                dl.AutoShift,
			Kind:                     dl.Kind,
			RespectsGlobalExceptions: dl.RespectsGlobalExceptions,
			Template: domain.LayerTemplate{
				Mode:         domain.TemplateMode(dl.Template.Mode),
				ItemCount:    dl.Template.ItemCount,
				TitlePattern: dl.Template.TitlePattern,
			},
		})
		if err != nil {
			return domain.Calendar{}, fmt.Errorf("layers[%d]: %w", i, err)
		}
		layers = append(layers, layer)
	}

	var start *time.Time
	if strings.TrimSpace(d.StartDate) != "" {
		parsed, err := schedule.ParseDateKey(d.StartDate)
		if err != nil {
			return domain.Calendar{}, fmt.Errorf("startDate: %w", err)
		}
		start = &parsed
	}
	id := strings.TrimSpace(d.ID)
	if id == "" {
		id = idGen()
	}
	created := now
	if !d.CreatedAt.IsZero() {
		created = d.CreatedAt
	}
	cal, err := domain.NewCalendar(domain.CalendarInput{
		ID:                id,
		Name:              d.Name,
		PresetKey:         d.PresetKey,
		StartDate:         start,
		TotalDays:         d.TotalDays,
		IncludeWeekends:   d.IncludeWeekends,
		IncludeExceptions: d.IncludeExceptions,
		Layers:            layers,
	}, created)
	if err != nil {
		return domain.Calendar{}, err
	}

	for i, di := range d.ScheduledItems {
		date, err := schedule.ParseDateKey(di.Date)
		if err != nil {
			return domain.Calendar{}, fmt.Errorf("scheduledItems[%d].date: %w", i, err)
		}
		itemID := strings.TrimSpace(di.ID)
		if itemID == "" {
			itemID = idGen()
		}
		item, err := domain.NewScheduledItem(domain.ScheduledItemInput{
			ID:              itemID,
			Date:            date,
			LayerKey:        di.LayerKey,
			SequenceIndex:   di.SequenceIndex,
			Title:           di.Title,
			Label:           di.Label,
			Description:     di.Description,
			Notes:           di.Notes,
			DurationDays:    di.DurationDays,
			Metadata:        di.Metadata,
			TargetLayerKeys: di.TargetLayerKeys,
		})
		if err != nil {
			return domain.Calendar{}, fmt.Errorf("scheduledItems[%d]: %w", i, err)
		}
		if di.SplitTotal > 1 && strings.TrimSpace(di.SplitGroupID) != "" {
			item.SplitGroupID = strings.TrimSpace(di.SplitGroupID)
			item.SplitIndex = di.SplitIndex
			item.SplitTotal = di.SplitTotal
		}
		cal.Items = append(cal.Items, item)
	}
	cal.Touch(now)
	if err := cal.Validate(); err != nil {
		return domain.Calendar{}, err
	}
	return cal, nil
}
