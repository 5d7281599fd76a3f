// Package ical reads blackout days from iCalendar payloads and renders calendars as ICS.
package ical

import (
	"bytes"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	ics "github.com/arran4/golang-ical"
	"github.com/teambition/rrule-go"

	"github.com/hylla/flexcal/internal/app"
	"github.com/hylla/flexcal/internal/domain"
	"github.com/hylla/flexcal/internal/schedule"
)

const (
	defaultMaxOccurrencesPerEvent = 2000
	icsDateLayout                 = "20060102"
)

// ErrEmptyPayload reports an ICS body with no content.
var ErrEmptyPayload = errors.New("empty ICS body")

// Window bounds recurrence expansion. Both ends are inclusive days.
type Window struct {
	Start time.Time
	End   time.Time
	// MaxOccurrencesPerEvent caps one RRULE's expansion. Zero means the default.
	MaxOccurrencesPerEvent int
}

// Blackout is one blocked day read from a VEVENT occurrence.
type Blackout struct {
	UID         string
	Date        time.Time
	Title       string
	Description string
}

// parsedEvent is the subset of a VEVENT that blackout expansion needs.
type parsedEvent struct {
	uid         string
	summary     string
	description string
	start       time.Time
	days        int
	rawRRule    string
	exDates     []time.Time
	recurrence  *time.Time
}

// ParseBlackouts parses body and expands every VEVENT into per-day blackouts inside w.
// Multi-day all-day events block each covered day. Results are sorted by day.
func ParseBlackouts(body []byte, w Window) ([]Blackout, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, ErrEmptyPayload
	}
	if w.End.Before(w.Start) {
		return nil, errors.New("expand: window end is before start")
	}
	if w.MaxOccurrencesPerEvent <= 0 {
		w.MaxOccurrencesPerEvent = defaultMaxOccurrencesPerEvent
	}
	cal, err := ics.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse ics: %w", err)
	}

	events := make([]parsedEvent, 0)
	overrides := map[string][]parsedEvent{}
	for _, ve := range cal.Events() {
		ev, err := parseVEvent(ve)
		if err != nil {
			continue
		}
		if ev.recurrence != nil {
			overrides[ev.uid] = append(overrides[ev.uid], ev)
			continue
		}
		events = append(events, ev)
	}

	windowStart := domain.TruncateDay(w.Start)
	windowEnd := domain.TruncateDay(w.End)
	seen := map[string]struct{}{}
	out := make([]Blackout, 0)
	add := func(ev parsedEvent, start time.Time) {
		for i := 0; i < ev.days; i++ {
			day := start.AddDate(0, 0, i)
			if day.Before(windowStart) || day.After(windowEnd) {
				continue
			}
			key := ev.uid + "|" + schedule.DateKey(day)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, Blackout{UID: ev.uid, Date: day, Title: ev.summary, Description: ev.description})
		}
	}

	for _, ev := range events {
		for _, start := range occurrences(ev, windowStart, windowEnd, w.MaxOccurrencesPerEvent) {
			if o, ok := findOverride(overrides[ev.uid], start); ok {
				add(o, o.start)
				continue
			}
			add(ev, start)
		}
	}
	slices.SortStableFunc(out, func(a, b Blackout) int {
		return a.Date.Compare(b.Date)
	})
	return out, nil
}

// ExceptionInputs converts blackouts into exception markers scoped to targets.
// Empty targets produce global markers.
func ExceptionInputs(blackouts []Blackout, targets []string) []app.ExceptionInput {
	out := make([]app.ExceptionInput, 0, len(blackouts))
	for _, b := range blackouts {
		out = append(out, app.ExceptionInput{
			Date:            b.Date,
			Title:           b.Title,
			Description:     b.Description,
			TargetLayerKeys: slices.Clone(targets),
		})
	}
	return out
}

func parseVEvent(ve *ics.VEvent) (parsedEvent, error) {
	var out parsedEvent
	uidProp := ve.GetProperty(ics.ComponentPropertyUniqueId)
	if uidProp == nil || strings.TrimSpace(uidProp.Value) == "" {
		return out, errors.New("missing UID")
	}
	out.uid = strings.TrimSpace(uidProp.Value)
	if p := ve.GetProperty(ics.ComponentPropertySummary); p != nil {
		out.summary = strings.TrimSpace(p.Value)
	}
	if p := ve.GetProperty(ics.ComponentPropertyDescription); p != nil {
		out.description = strings.TrimSpace(p.Value)
	}

	startProp := ve.GetProperty(ics.ComponentPropertyDtStart)
	if startProp == nil {
		return out, errors.New("missing DTSTART")
	}
	start, err := propertyDay(startProp, ve.GetStartAt)
	if err != nil {
		return out, fmt.Errorf("DTSTART: %w", err)
	}
	out.start = start
	out.days = 1
	if endProp := ve.GetProperty(ics.ComponentPropertyDtEnd); endProp != nil {
		end, err := propertyDay(endProp, ve.GetEndAt)
		if err == nil {
			days := int(end.Sub(start).Hours() / 24)
			if !strings.Contains(endProp.Value, "T") {
				// DTEND of an all-day event is exclusive.
				days = max(days, 1)
			} else {
				days = max(days+1, 1)
			}
			out.days = days
		}
	}

	if p := ve.GetProperty(ics.ComponentPropertyRrule); p != nil {
		out.rawRRule = strings.TrimSpace(p.Value)
	}
	for _, p := range ve.GetProperties(ics.ComponentPropertyExdate) {
		for _, part := range strings.Split(p.Value, ",") {
			if day, err := parseICSDay(part); err == nil {
				out.exDates = append(out.exDates, day)
			}
		}
	}
	if p := ve.GetProperty(ics.ComponentProperty("RECURRENCE-ID")); p != nil {
		if day, err := parseICSDay(p.Value); err == nil {
			out.recurrence = &day
		}
	}
	return out, nil
}

// propertyDay reads a DATE or DATE-TIME property as the UTC day of its own wall clock.
func propertyDay(prop *ics.IANAProperty, resolve func() (time.Time, error)) (time.Time, error) {
	if !strings.Contains(prop.Value, "T") {
		return parseICSDay(prop.Value)
	}
	t, err := resolve()
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
}

// parseICSDay parses the date part of a basic DATE or DATE-TIME value.
func parseICSDay(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if len(v) < len(icsDateLayout) {
		return time.Time{}, fmt.Errorf("invalid ics date %q", v)
	}
	return time.Parse(icsDateLayout, v[:len(icsDateLayout)])
}

// occurrences returns the UTC start days of ev inside [from, to].
func occurrences(ev parsedEvent, from, to time.Time, limit int) []time.Time {
	if ev.rawRRule == "" {
		last := ev.start.AddDate(0, 0, ev.days-1)
		if last.Before(from) || ev.start.After(to) {
			return nil
		}
		return []time.Time{ev.start}
	}
	r, err := rrule.StrToRRule(ev.rawRRule)
	if err != nil {
		return nil
	}
	r.DTStart(ev.start)
	var set rrule.Set
	set.RRule(r)
	for _, ex := range ev.exDates {
		set.ExDate(ex)
	}
	// Widen the lower bound so multi-day occurrences starting before the window still count.
	times := set.Between(from.AddDate(0, 0, -(ev.days-1)), to, true)
	if len(times) > limit {
		times = times[:limit]
	}
	out := make([]time.Time, 0, len(times))
	for _, t := range times {
		out = append(out, domain.TruncateDay(t))
	}
	return out
}

func findOverride(overrides []parsedEvent, start time.Time) (parsedEvent, bool) {
	for _, o := range overrides {
		if o.recurrence != nil && o.recurrence.Equal(start) {
			return o, true
		}
	}
	return parsedEvent{}, false
}
