package common

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/hylla/flexcal/internal/adapters/storage/sqlite"
	"github.com/hylla/flexcal/internal/app"
	"github.com/hylla/flexcal/internal/domain"
	"github.com/hylla/flexcal/internal/schedule"
)

// newTestAdapter builds an adapter over an in-memory sqlite-backed service.
func newTestAdapter(t *testing.T) *AppServiceAdapter {
	t.Helper()
	repo, err := sqlite.OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory() error = %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })

	n := 0
	idGen := func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
	now := time.Date(2025, 8, 1, 9, 0, 0, 0, time.UTC)
	svc := app.NewService(repo, idGen, func() time.Time { return now }, app.ServiceConfig{})
	adapter := NewAppServiceAdapter(svc)
	adapter.clock = func() time.Time { return now }
	return adapter
}

// createWeekCalendar creates a five-lesson calendar starting Monday 2025-08-04.
func createWeekCalendar(t *testing.T, a *AppServiceAdapter) Calendar {
	t.Helper()
	weekends, exceptions := false, true
	cal, err := a.CreateCalendar(context.Background(), CreateCalendarRequest{
		Name:              "Fall Term",
		StartDate:         "2025-08-04",
		IncludeWeekends:   &weekends,
		IncludeExceptions: &exceptions,
		Layers: []LayerRequest{
			{Key: "reference", Name: "Reference", Template: &Template{Mode: "generated", ItemCount: 5}},
			{Key: "holidays", Name: "Holidays", Kind: "exception"},
		},
	})
	if err != nil {
		t.Fatalf("CreateCalendar() error = %v", err)
	}
	return cal
}

func itemDates(cal Calendar, layerKey string) []string {
	out := make([]string, 0)
	for _, item := range cal.Items {
		if item.LayerKey == layerKey {
			out = append(out, item.Date)
		}
	}
	return out
}

func itemIDBySequence(t *testing.T, cal Calendar, layerKey string, seq int) string {
	t.Helper()
	for _, item := range cal.Items {
		if item.LayerKey == layerKey && item.SequenceIndex == seq {
			return item.ID
		}
	}
	t.Fatalf("no %s item with sequence %d", layerKey, seq)
	return ""
}

// TestAppServiceAdapterCreateAndGet verifies calendar DTO mapping.
func TestAppServiceAdapterCreateAndGet(t *testing.T) {
	a := newTestAdapter(t)
	created := createWeekCalendar(t, a)

	if created.StartDate != "2025-08-04" {
		t.Fatalf("start_date = %q, want 2025-08-04", created.StartDate)
	}
	want := []string{"2025-08-04", "2025-08-05", "2025-08-06", "2025-08-07", "2025-08-08"}
	if got := itemDates(created, "reference"); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("reference dates = %v, want %v", got, want)
	}
	if created.Layers[1].Kind != "exception" || created.Layers[0].ChainBehavior != "linked" {
		t.Fatalf("layers = %#v, want linked reference and exception holidays", created.Layers)
	}

	got, err := a.GetCalendar(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("GetCalendar() error = %v", err)
	}
	if got.Name != "Fall Term" || len(got.Items) != 5 {
		t.Fatalf("GetCalendar() = %q with %d items, want Fall Term with 5", got.Name, len(got.Items))
	}

	summaries, err := a.ListCalendars(context.Background())
	if err != nil {
		t.Fatalf("ListCalendars() error = %v", err)
	}
	if len(summaries) != 1 || summaries[0].ItemCount != 5 {
		t.Fatalf("ListCalendars() = %#v, want one calendar with 5 items", summaries)
	}
	if strings.Join(summaries[0].LayerKeys, ",") != "reference,holidays" {
		t.Fatalf("layer_keys = %v, want [reference holidays]", summaries[0].LayerKeys)
	}
}

// TestAppServiceAdapterShiftPreviewAndPersist verifies preview does not persist and shift does.
func TestAppServiceAdapterShiftPreviewAndPersist(t *testing.T) {
	a := newTestAdapter(t)
	cal := createWeekCalendar(t, a)
	anchor := itemIDBySequence(t, cal, "reference", 2)
	req := ShiftRequest{CalendarID: cal.ID, ItemID: anchor, DeltaDays: 1}

	preview, err := a.PreviewShift(context.Background(), req)
	if err != nil {
		t.Fatalf("PreviewShift() error = %v", err)
	}
	if len(preview.Changes) != 4 {
		t.Fatalf("preview changes = %d, want 4", len(preview.Changes))
	}
	if preview.Changes[0].From != "2025-08-05" || preview.Changes[0].To != "2025-08-06" {
		t.Fatalf("first change = %#v, want 2025-08-05 -> 2025-08-06", preview.Changes[0])
	}
	stored, err := a.GetCalendar(context.Background(), cal.ID)
	if err != nil {
		t.Fatalf("GetCalendar() error = %v", err)
	}
	if got := itemDates(stored, "reference")[1]; got != "2025-08-05" {
		t.Fatalf("preview persisted date %q, want 2025-08-05", got)
	}

	shifted, err := a.ShiftItems(context.Background(), req)
	if err != nil {
		t.Fatalf("ShiftItems() error = %v", err)
	}
	want := []string{"2025-08-04", "2025-08-06", "2025-08-07", "2025-08-08", "2025-08-11"}
	if got := itemDates(shifted.Calendar, "reference"); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("shifted dates = %v, want %v", got, want)
	}

	events, err := a.ListChanges(context.Background(), cal.ID, 0)
	if err != nil {
		t.Fatalf("ListChanges() error = %v", err)
	}
	if len(events) != 2 || events[0].Operation != "shift" || events[0].ItemID != anchor {
		t.Fatalf("ListChanges() = %#v, want shift then create", events)
	}
}

// TestAppServiceAdapterSplitAndUnsplit verifies split conflicts and unsplit by group.
func TestAppServiceAdapterSplitAndUnsplit(t *testing.T) {
	a := newTestAdapter(t)
	cal := createWeekCalendar(t, a)
	target := itemIDBySequence(t, cal, "reference", 3)

	split, err := a.SplitItem(context.Background(), SplitRequest{CalendarID: cal.ID, ItemID: target, Parts: 2})
	if err != nil {
		t.Fatalf("SplitItem() error = %v", err)
	}
	if got := len(itemDates(split.Calendar, "reference")); got != 6 {
		t.Fatalf("reference items after split = %d, want 6", got)
	}
	var groupID string
	for _, item := range split.Calendar.Items {
		if item.ID == target {
			groupID = item.SplitGroupID
		}
	}
	if groupID == "" {
		t.Fatal("split item has no split_group_id")
	}

	_, err = a.SplitItem(context.Background(), SplitRequest{CalendarID: cal.ID, ItemID: target, Parts: 2})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("second SplitItem() error = %v, want ErrConflict", err)
	}

	unsplit, err := a.UnsplitItem(context.Background(), UnsplitRequest{CalendarID: cal.ID, SplitGroupID: groupID})
	if err != nil {
		t.Fatalf("UnsplitItem() error = %v", err)
	}
	if got := len(itemDates(unsplit.Calendar, "reference")); got != 5 {
		t.Fatalf("reference items after unsplit = %d, want 5", got)
	}
}

// TestAppServiceAdapterExceptions verifies blackout updates, reflow, and lookup mapping.
func TestAppServiceAdapterExceptions(t *testing.T) {
	a := newTestAdapter(t)
	cal := createWeekCalendar(t, a)

	res, err := a.UpdateExceptions(context.Background(), UpdateExceptionsRequest{
		CalendarID: cal.ID,
		Exceptions: []ExceptionRequest{{Date: "2025-08-06", Title: "Fair Day"}},
	})
	if err != nil {
		t.Fatalf("UpdateExceptions() error = %v", err)
	}
	if len(res.Changes) == 0 {
		t.Fatal("UpdateExceptions() changes = 0, want reflowed items")
	}
	for _, date := range itemDates(res.Calendar, "reference") {
		if date == "2025-08-06" {
			t.Fatalf("reference item left on blackout day: %v", itemDates(res.Calendar, "reference"))
		}
	}

	lookup, err := a.ExceptionLookup(context.Background(), cal.ID)
	if err != nil {
		t.Fatalf("ExceptionLookup() error = %v", err)
	}
	if strings.Join(lookup.Global, ",") != "2025-08-06" {
		t.Fatalf("global = %v, want [2025-08-06]", lookup.Global)
	}
	if strings.Join(lookup.BlockedByLayer["reference"], ",") != "2025-08-06" {
		t.Fatalf("blocked_by_layer[reference] = %v, want [2025-08-06]", lookup.BlockedByLayer["reference"])
	}

	_, err = a.UpdateExceptions(context.Background(), UpdateExceptionsRequest{
		CalendarID: cal.ID,
		Exceptions: []ExceptionRequest{{Date: "not-a-day"}},
	})
	if !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("UpdateExceptions(bad date) error = %v, want ErrInvalidRequest", err)
	}
}

// TestAppServiceAdapterAddItemAndExport verifies add_item mapping and ICS export.
func TestAppServiceAdapterAddItemAndExport(t *testing.T) {
	a := newTestAdapter(t)
	cal := createWeekCalendar(t, a)

	added, err := a.AddItem(context.Background(), AddItemRequest{CalendarID: cal.ID, LayerKey: "reference", Title: "Review"})
	if err != nil {
		t.Fatalf("AddItem() error = %v", err)
	}
	if added.Item.Date != "2025-08-11" || added.Item.SequenceIndex != 6 {
		t.Fatalf("added item = %#v, want 2025-08-11 sequence 6", added.Item)
	}

	body, err := a.ExportICS(context.Background(), cal.ID)
	if err != nil {
		t.Fatalf("ExportICS() error = %v", err)
	}
	if !strings.Contains(body, "SUMMARY:Review") || !strings.Contains(body, "X-WR-CALNAME:Fall Term") {
		t.Fatalf("ExportICS() missing expected properties:\n%s", body)
	}

	doc, err := a.ExportDocument(context.Background(), cal.ID)
	if err != nil {
		t.Fatalf("ExportDocument() error = %v", err)
	}
	if doc.Name != "Fall Term" || len(doc.ScheduledItems) != 6 {
		t.Fatalf("ExportDocument() = %q with %d items, want Fall Term with 6", doc.Name, len(doc.ScheduledItems))
	}
}

// TestAppServiceAdapterValidation verifies required-field checks before app calls.
func TestAppServiceAdapterValidation(t *testing.T) {
	a := newTestAdapter(t)
	ctx := context.Background()

	if _, err := a.GetCalendar(ctx, "  "); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("GetCalendar(blank) error = %v, want ErrInvalidRequest", err)
	}
	if _, err := a.GetCalendar(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetCalendar(missing) error = %v, want ErrNotFound", err)
	}
	if _, err := a.ShiftItems(ctx, ShiftRequest{CalendarID: "c1"}); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("ShiftItems(no item) error = %v, want ErrInvalidRequest", err)
	}
	if _, err := a.UnsplitItem(ctx, UnsplitRequest{CalendarID: "c1"}); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("UnsplitItem(no ids) error = %v, want ErrInvalidRequest", err)
	}
	if _, err := a.CreateCalendar(ctx, CreateCalendarRequest{Name: "x", StartDate: "08/04/2025"}); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("CreateCalendar(bad start) error = %v, want ErrInvalidRequest", err)
	}
	if _, err := a.ListChanges(ctx, "c1", -1); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("ListChanges(-1) error = %v, want ErrInvalidRequest", err)
	}
	var nilAdapter *AppServiceAdapter
	if _, err := nilAdapter.ListCalendars(ctx); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("nil ListCalendars() error = %v, want ErrInvalidRequest", err)
	}
}

// TestMapAppError verifies sentinel mapping for transport status codes.
func TestMapAppError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want error
	}{
		{name: "not found", err: app.ErrNotFound, want: ErrNotFound},
		{name: "item not found", err: schedule.ErrItemNotFound, want: ErrNotFound},
		{name: "layer not found", err: domain.ErrLayerNotFound, want: ErrNotFound},
		{name: "already split", err: schedule.ErrAlreadySplit, want: ErrConflict},
		{name: "no valid date", err: schedule.ErrNoValidDate, want: ErrNoValidDate},
		{name: "invalid parts", err: schedule.ErrInvalidParts, want: ErrInvalidRequest},
		{name: "exception mode", err: app.ErrInvalidExceptionMode, want: ErrInvalidRequest},
		{name: "invalid name", err: domain.ErrInvalidName, want: ErrInvalidRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := mapAppError("op", fmt.Errorf("wrapped: %w", tc.err))
			if !errors.Is(got, tc.want) {
				t.Fatalf("mapAppError() = %v, want %v", got, tc.want)
			}
			if !errors.Is(got, tc.err) {
				t.Fatalf("mapAppError() = %v, lost cause %v", got, tc.err)
			}
		})
	}
	if mapAppError("op", nil) != nil {
		t.Fatal("mapAppError(nil) != nil")
	}
	plain := errors.New("boom")
	if got := mapAppError("op", plain); errors.Is(got, ErrInvalidRequest) || !errors.Is(got, plain) {
		t.Fatalf("mapAppError(plain) = %v, want unmapped wrap", got)
	}
}
