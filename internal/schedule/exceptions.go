package schedule

import (
	"time"

	"github.com/hylla/flexcal/internal/domain"
)

// ExceptionLookup indexes blocked days: global blackouts plus per-layer blackouts.
// It is derived from a snapshot and rebuilt for every operation.
type ExceptionLookup struct {
	Global   DateSet
	PerLayer map[string]DateSet
}

// BuildExceptionLookup scans the calendar's exception-layer items.
func BuildExceptionLookup(cal domain.Calendar) ExceptionLookup {
	return BuildExceptionLookupFrom(cal.Items, cal.ExceptionLayerKeys())
}

// BuildExceptionLookupFrom indexes items whose layer key is in exceptionLayers.
// Items without target layers are global blackouts.
func BuildExceptionLookupFrom(items []domain.ScheduledItem, exceptionLayers map[string]struct{}) ExceptionLookup {
	lookup := ExceptionLookup{
		Global:   DateSet{},
		PerLayer: map[string]DateSet{},
	}
	for _, item := range items {
		if _, ok := exceptionLayers[item.LayerKey]; !ok {
			continue
		}
		key := DateKey(item.Date)
		if len(item.TargetLayerKeys) == 0 {
			lookup.Global[key] = struct{}{}
			continue
		}
		for _, target := range item.TargetLayerKeys {
			set, ok := lookup.PerLayer[target]
			if !ok {
				set = DateSet{}
				lookup.PerLayer[target] = set
			}
			set[key] = struct{}{}
		}
	}
	return lookup
}

// BlockedDatesForLayer returns the days blocked for layerKey, or nil when nothing is.
func BlockedDatesForLayer(layerKey string, lookup ExceptionLookup, respectsGlobal bool) DateSet {
	perLayer := lookup.PerLayer[layerKey]
	if !respectsGlobal {
		if len(perLayer) == 0 {
			return nil
		}
		return perLayer
	}
	if len(lookup.Global) == 0 && len(perLayer) == 0 {
		return nil
	}
	out := make(DateSet, len(lookup.Global)+len(perLayer))
	for key := range lookup.Global {
		out[key] = struct{}{}
	}
	for key := range perLayer {
		out[key] = struct{}{}
	}
	return out
}

// Rules are the date-validity rules of one calendar snapshot.
type Rules struct {
	IncludeWeekends   bool
	IncludeExceptions bool
	Lookup            ExceptionLookup
	respectsGlobal    map[string]bool
}

// RulesFor derives the rules for cal.
func RulesFor(cal domain.Calendar) Rules {
	respects := make(map[string]bool, len(cal.Layers))
	for _, layer := range cal.Layers {
		respects[layer.Key] = layer.RespectsGlobalExceptions
	}
	return Rules{
		IncludeWeekends:   cal.IncludeWeekends,
		IncludeExceptions: cal.IncludeExceptions,
		Lookup:            BuildExceptionLookup(cal),
		respectsGlobal:    respects,
	}
}

// BlockedFor returns the blocked days for layerKey, honoring IncludeExceptions.
func (r Rules) BlockedFor(layerKey string) DateSet {
	if !r.IncludeExceptions {
		return nil
	}
	respects, ok := r.respectsGlobal[layerKey]
	if !ok {
		respects = true
	}
	return BlockedDatesForLayer(layerKey, r.Lookup, respects)
}

// IsValid reports whether date is a valid day for layerKey.
func (r Rules) IsValid(layerKey string, date time.Time) bool {
	return IsValidDate(date, r.IncludeWeekends, r.BlockedFor(layerKey))
}
