package ical

import (
	"fmt"
	"slices"
	"strings"
	"time"

	ics "github.com/arran4/golang-ical"

	"github.com/hylla/flexcal/internal/domain"
)

// productID identifies flexcal as the ICS producer.
const productID = "-//hylla//flexcal//EN"

// Export properties that carry flexcal fields through an ICS round trip.
const (
	propertyLayer    ics.ComponentProperty = "X-FLEXCAL-LAYER"
	propertySequence ics.ComponentProperty = "X-FLEXCAL-SEQUENCE"
	propertyKind     ics.ComponentProperty = "X-FLEXCAL-KIND"
	propertyTransp   ics.ComponentProperty = "TRANSP"
)

// ExportOptions narrows which items are rendered.
type ExportOptions struct {
	// LayerKeys limits output to these layers. Empty means every layer.
	LayerKeys []string
	// SkipExceptions drops blackout markers from the feed.
	SkipExceptions bool
}

// Export renders cal as an iCalendar document of all-day events.
func Export(cal domain.Calendar, stampedAt time.Time, opts ExportOptions) string {
	out := ics.NewCalendar()
	out.SetMethod(ics.MethodPublish)
	out.SetProductId(productID)
	out.SetXWRCalName(cal.Name)

	layers := make(map[string]domain.Layer, len(cal.Layers))
	for _, layer := range cal.Layers {
		layers[layer.Key] = layer
	}
	wanted := domain.NormalizeLayerKeys(opts.LayerKeys)
	stampedAt = stampedAt.UTC()

	for _, item := range cal.Items {
		layer, ok := layers[item.LayerKey]
		if !ok {
			continue
		}
		if len(wanted) > 0 && !slices.Contains(wanted, item.LayerKey) {
			continue
		}
		if layer.IsException() && opts.SkipExceptions {
			continue
		}
		ev := out.AddEvent(fmt.Sprintf("%s@%s.flexcal", item.ID, cal.ID))
		ev.SetDtStampTime(stampedAt)
		ev.SetModifiedAt(cal.UpdatedAt.UTC())
		ev.SetAllDayStartAt(item.Date)
		ev.SetAllDayEndAt(item.Date.AddDate(0, 0, max(item.DurationDays, 1)))
		ev.SetSummary(item.Title)
		if desc := itemDescription(item); desc != "" {
			ev.SetDescription(desc)
		}
		ev.SetProperty(ics.ComponentPropertyCategories, layer.Name)
		ev.SetProperty(propertyLayer, layer.Key)
		ev.SetProperty(propertySequence, fmt.Sprint(item.SequenceIndex))
		ev.SetProperty(propertyKind, string(layer.Kind))
		if layer.IsException() {
			ev.SetProperty(propertyTransp, "TRANSPARENT")
		}
	}
	return out.Serialize()
}

func itemDescription(item domain.ScheduledItem) string {
	parts := make([]string, 0, 3)
	for _, part := range []string{item.Label, item.Description, item.Notes} {
		if part = strings.TrimSpace(part); part != "" {
			parts = append(parts, part)
		}
	}
	return strings.Join(parts, "\n\n")
}
