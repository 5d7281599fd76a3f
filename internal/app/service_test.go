package app

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"testing"
	"time"

	"github.com/hylla/flexcal/internal/domain"
	"github.com/hylla/flexcal/internal/schedule"
)

type fakeRepo struct {
	calendars map[string]domain.Calendar
	events    []domain.ChangeEvent
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{calendars: map[string]domain.Calendar{}}
}

func (f *fakeRepo) CreateCalendar(_ context.Context, c domain.Calendar) error {
	f.calendars[c.ID] = c.Clone()
	f.events = append(f.events, domain.ChangeEvent{CalendarID: c.ID, Operation: domain.ChangeOperationCreate})
	return nil
}

func (f *fakeRepo) UpdateCalendar(_ context.Context, c domain.Calendar, event domain.ChangeEvent) error {
	if _, ok := f.calendars[c.ID]; !ok {
		return ErrNotFound
	}
	f.calendars[c.ID] = c.Clone()
	f.events = append(f.events, event)
	return nil
}

func (f *fakeRepo) GetCalendar(_ context.Context, id string) (domain.Calendar, error) {
	c, ok := f.calendars[id]
	if !ok {
		return domain.Calendar{}, ErrNotFound
	}
	return c.Clone(), nil
}

func (f *fakeRepo) ListCalendars(_ context.Context) ([]domain.CalendarSummary, error) {
	out := make([]domain.CalendarSummary, 0, len(f.calendars))
	for _, c := range f.calendars {
		out = append(out, c.Summary())
	}
	slices.SortFunc(out, func(a, b domain.CalendarSummary) int {
		if a.ID < b.ID {
			return -1
		}
		if a.ID > b.ID {
			return 1
		}
		return 0
	})
	return out, nil
}

func (f *fakeRepo) DeleteCalendar(_ context.Context, id string) error {
	if _, ok := f.calendars[id]; !ok {
		return ErrNotFound
	}
	delete(f.calendars, id)
	return nil
}

func (f *fakeRepo) ListCalendarChangeEvents(_ context.Context, id string, limit int) ([]domain.ChangeEvent, error) {
	out := make([]domain.ChangeEvent, 0)
	for i := len(f.events) - 1; i >= 0 && len(out) < limit; i-- {
		if f.events[i].CalendarID == id {
			out = append(out, f.events[i])
		}
	}
	return out, nil
}

func newTestService(repo *fakeRepo, cfg ServiceConfig) *Service {
	idCounter := 0
	return NewService(repo, func() string {
		idCounter++
		return fmt.Sprintf("id-%d", idCounter)
	}, func() time.Time {
		return time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC)
	}, cfg)
}

func boolPtr(v bool) *bool { return &v }

func mustDay(t *testing.T, key string) time.Time {
	t.Helper()
	d, err := schedule.ParseDateKey(key)
	if err != nil {
		t.Fatalf("ParseDateKey(%q) error = %v", key, err)
	}
	return d
}

// seedCalendar creates a calendar with one linked "reference" layer of count
// weekday items starting Monday 2025-08-04 and an empty "holidays" layer.
func seedCalendar(t *testing.T, svc *Service, count int) domain.Calendar {
	t.Helper()
	start := mustDay(t, "2025-08-04")
	cal, err := svc.CreateCalendar(context.Background(), CreateCalendarInput{
		Name:              "School Year",
		StartDate:         &start,
		TotalDays:         count,
		IncludeExceptions: boolPtr(true),
		Layers: []domain.LayerInput{
			{Key: "reference", Name: "Reference"},
			{Key: "holidays", Name: "Holidays", Kind: "exception"},
		},
	})
	if err != nil {
		t.Fatalf("CreateCalendar() error = %v", err)
	}
	return cal
}

func itemBySeq(t *testing.T, cal domain.Calendar, layerKey string, seq int) domain.ScheduledItem {
	t.Helper()
	for _, idx := range cal.LayerItems(layerKey) {
		if cal.Items[idx].SequenceIndex == seq {
			return cal.Items[idx]
		}
	}
	t.Fatalf("no item with sequence %d on layer %q", seq, layerKey)
	return domain.ScheduledItem{}
}

func TestCreateCalendarGeneratesLayers(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, ServiceConfig{})
	start := mustDay(t, "2025-08-04")

	cal, err := svc.CreateCalendar(context.Background(), CreateCalendarInput{
		Name:              "School Year",
		StartDate:         &start,
		IncludeExceptions: boolPtr(true),
		Layers: []domain.LayerInput{
			{Key: "reference", Name: "Reference", Template: domain.LayerTemplate{ItemCount: 3}},
			{Key: "progress", Name: "Progress", AutoShift: boolPtr(false), Template: domain.LayerTemplate{ItemCount: 2, TitlePattern: "Check {n}"}},
			{Key: "holidays", Name: "Holidays", Kind: "exception"},
		},
		TemplateItemsByLayer: map[string][]schedule.TemplateItem{
			"reference": {{Title: "Orientation"}},
		},
		Exceptions: map[string][]ExceptionInput{
			"holidays": {{Date: mustDay(t, "2025-08-05"), Title: "Staff day"}},
		},
	})
	if err != nil {
		t.Fatalf("CreateCalendar() error = %v", err)
	}
	if cal.TotalDays != DefaultTotalDays {
		t.Fatalf("expected default total days, got %d", cal.TotalDays)
	}
	if _, ok := repo.calendars[cal.ID]; !ok {
		t.Fatal("expected calendar to be persisted")
	}
	if got := len(cal.LayerItems("reference")); got != 3 {
		t.Fatalf("expected 3 reference items, got %d", got)
	}
	first := itemBySeq(t, cal, "reference", 1)
	second := itemBySeq(t, cal, "reference", 2)
	if first.Title != "Orientation" || second.Title != "Reference Lesson 2" {
		t.Fatalf("unexpected titles %q, %q", first.Title, second.Title)
	}
	if schedule.DateKey(second.Date) != "2025-08-06" {
		t.Fatalf("expected generation to skip the holiday, got %s", schedule.DateKey(second.Date))
	}
	progress, _ := cal.Layer("progress")
	if progress.ChainBehavior != domain.ChainIndependent {
		t.Fatalf("expected autoShift=false to map to independent, got %q", progress.ChainBehavior)
	}
	if got := itemBySeq(t, cal, "progress", 2).Title; got != "Check 2" {
		t.Fatalf("unexpected pattern title %q", got)
	}
}

func TestShiftItemsPersistsAndRecordsEvent(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, ServiceConfig{})
	cal := seedCalendar(t, svc, 4)
	anchor := itemBySeq(t, cal, "reference", 2)

	preview, err := svc.PreviewShift(context.Background(), ShiftItemsInput{CalendarID: cal.ID, ItemID: anchor.ID, DeltaDays: 3})
	if err != nil {
		t.Fatalf("PreviewShift() error = %v", err)
	}
	if len(preview.Changes) != 3 {
		t.Fatalf("expected 3 preview changes, got %#v", preview.Changes)
	}
	stored := repo.calendars[cal.ID]
	if got := schedule.DateKey(itemBySeq(t, stored, "reference", 2).Date); got != "2025-08-05" {
		t.Fatalf("preview must not persist, stored date %s", got)
	}

	res, err := svc.ShiftItems(context.Background(), ShiftItemsInput{CalendarID: cal.ID, ItemID: anchor.ID, DeltaDays: 3})
	if err != nil {
		t.Fatalf("ShiftItems() error = %v", err)
	}
	if got := schedule.DateKey(itemBySeq(t, res.Calendar, "reference", 2).Date); got != "2025-08-08" {
		t.Fatalf("expected anchor on Friday, got %s", got)
	}
	if got := schedule.DateKey(itemBySeq(t, repo.calendars[cal.ID], "reference", 4).Date); got != "2025-08-12" {
		t.Fatalf("expected persisted tail on Tuesday, got %s", got)
	}

	events, err := svc.ListChangeEvents(context.Background(), cal.ID, 0)
	if err != nil {
		t.Fatalf("ListChangeEvents() error = %v", err)
	}
	if len(events) != 2 || events[0].Operation != domain.ChangeOperationShift {
		t.Fatalf("unexpected events %#v", events)
	}
	if events[0].ItemID != anchor.ID || events[0].Metadata["delta_days"] != "3" || events[0].Metadata["changed"] != "3" {
		t.Fatalf("unexpected shift event %#v", events[0])
	}
}

func TestShiftItemsErrors(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, ServiceConfig{})
	cal := seedCalendar(t, svc, 2)

	if _, err := svc.ShiftItems(context.Background(), ShiftItemsInput{CalendarID: "missing", ItemID: "x", DeltaDays: 1}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := svc.ShiftItems(context.Background(), ShiftItemsInput{CalendarID: cal.ID, ItemID: "x", DeltaDays: 1}); !errors.Is(err, schedule.ErrItemNotFound) {
		t.Fatalf("expected ErrItemNotFound, got %v", err)
	}
	first := itemBySeq(t, cal, "reference", 1)
	res, err := svc.ShiftItems(context.Background(), ShiftItemsInput{CalendarID: cal.ID, ItemID: first.ID, DeltaDays: 0})
	if err != nil {
		t.Fatalf("ShiftItems(delta=0) error = %v", err)
	}
	if len(res.Changes) != 0 || len(repo.events) != 1 {
		t.Fatalf("zero delta must not write, events=%d", len(repo.events))
	}
}

func TestSplitAndUnsplitItem(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, ServiceConfig{})
	cal := seedCalendar(t, svc, 4)
	target := itemBySeq(t, cal, "reference", 2)

	split, err := svc.SplitItem(context.Background(), SplitItemInput{CalendarID: cal.ID, ItemID: target.ID, Parts: 2})
	if err != nil {
		t.Fatalf("SplitItem() error = %v", err)
	}
	if got := len(split.Calendar.LayerItems("reference")); got != 5 {
		t.Fatalf("expected 5 items after split, got %d", got)
	}
	if _, err := svc.SplitItem(context.Background(), SplitItemInput{CalendarID: cal.ID, ItemID: target.ID, Parts: 2}); !errors.Is(err, schedule.ErrAlreadySplit) {
		t.Fatalf("expected ErrAlreadySplit, got %v", err)
	}

	restored, err := svc.UnsplitItem(context.Background(), UnsplitItemInput{CalendarID: cal.ID, ItemID: target.ID})
	if err != nil {
		t.Fatalf("UnsplitItem() error = %v", err)
	}
	for _, want := range cal.Items {
		idx := restored.Calendar.ItemIndex(want.ID)
		if idx < 0 {
			t.Fatalf("item %s lost after unsplit", want.ID)
		}
		got := restored.Calendar.Items[idx]
		if !got.Date.Equal(want.Date) || got.Title != want.Title || got.SequenceIndex != want.SequenceIndex {
			t.Fatalf("item %s not restored: got %#v want %#v", want.ID, got, want)
		}
	}

	if _, err := svc.UnsplitItem(context.Background(), UnsplitItemInput{CalendarID: cal.ID}); !errors.Is(err, domain.ErrInvalidID) {
		t.Fatalf("expected ErrInvalidID without ids, got %v", err)
	}
}

func TestSplitItemPartsPolicy(t *testing.T) {
	repo := newFakeRepo()
	strict := newTestService(repo, ServiceConfig{})
	cal := seedCalendar(t, strict, 3)
	target := itemBySeq(t, cal, "reference", 1)

	if _, err := strict.SplitItem(context.Background(), SplitItemInput{CalendarID: cal.ID, ItemID: target.ID, Parts: 9}); !errors.Is(err, schedule.ErrInvalidParts) {
		t.Fatalf("expected ErrInvalidParts, got %v", err)
	}

	clamping := NewService(repo, strict.idGen, strict.clock, ServiceConfig{ClampSplitParts: true})
	res, err := clamping.SplitItem(context.Background(), SplitItemInput{CalendarID: cal.ID, ItemID: target.ID, Parts: 9})
	if err != nil {
		t.Fatalf("SplitItem(clamped) error = %v", err)
	}
	if got := len(res.Calendar.LayerItems("reference")); got != 3+schedule.MaxSplitParts-1 {
		t.Fatalf("expected clamp to %d parts, layer has %d items", schedule.MaxSplitParts, got)
	}
}

func TestUpdateExceptionsReflowsBlockedItems(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, ServiceConfig{})
	cal := seedCalendar(t, svc, 4)
	third := itemBySeq(t, cal, "reference", 3)

	res, err := svc.UpdateExceptions(context.Background(), UpdateExceptionsInput{
		CalendarID: cal.ID,
		Exceptions: []ExceptionInput{{Date: third.Date, Title: "Storm day"}},
	})
	if err != nil {
		t.Fatalf("UpdateExceptions() error = %v", err)
	}
	moved := itemBySeq(t, res.Calendar, "reference", 3)
	fourth := itemBySeq(t, res.Calendar, "reference", 4)
	if moved.Date.Equal(third.Date) {
		t.Fatalf("expected item 3 to leave the exception day %s", schedule.DateKey(third.Date))
	}
	if !fourth.Date.After(moved.Date) {
		t.Fatalf("expected item 4 after item 3, got %s <= %s", schedule.DateKey(fourth.Date), schedule.DateKey(moved.Date))
	}
	if len(res.Changes) != 2 {
		t.Fatalf("expected two moved items, got %#v", res.Changes)
	}

	merged, err := svc.UpdateExceptions(context.Background(), UpdateExceptionsInput{
		CalendarID: cal.ID,
		Mode:       ExceptionUpdateMerge,
		Exceptions: []ExceptionInput{
			{Date: third.Date, Title: "Duplicate"},
			{Date: mustDay(t, "2025-09-01"), Title: "Labor Day"},
		},
	})
	if err != nil {
		t.Fatalf("UpdateExceptions(merge) error = %v", err)
	}
	if got := len(merged.Calendar.LayerItems("holidays")); got != 2 {
		t.Fatalf("expected 2 holiday markers after merge, got %d", got)
	}

	replaced, err := svc.UpdateExceptions(context.Background(), UpdateExceptionsInput{CalendarID: cal.ID, Mode: ExceptionUpdateReplace})
	if err != nil {
		t.Fatalf("UpdateExceptions(replace) error = %v", err)
	}
	if got := len(replaced.Calendar.LayerItems("holidays")); got != 0 {
		t.Fatalf("expected replace with nothing to clear markers, got %d", got)
	}

	if _, err := svc.UpdateExceptions(context.Background(), UpdateExceptionsInput{CalendarID: cal.ID, Mode: "append"}); !errors.Is(err, ErrInvalidExceptionMode) {
		t.Fatalf("expected ErrInvalidExceptionMode, got %v", err)
	}
	if _, err := svc.UpdateExceptions(context.Background(), UpdateExceptionsInput{CalendarID: cal.ID, LayerKey: "reference"}); !errors.Is(err, ErrNotExceptionLayer) {
		t.Fatalf("expected ErrNotExceptionLayer, got %v", err)
	}
}

func TestAddScheduledItem(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, ServiceConfig{})
	cal := seedCalendar(t, svc, 4)

	res, err := svc.AddScheduledItem(context.Background(), AddItemInput{CalendarID: cal.ID, LayerKey: "reference", Title: "Review"})
	if err != nil {
		t.Fatalf("AddScheduledItem() error = %v", err)
	}
	if res.Item.SequenceIndex != 5 || schedule.DateKey(res.Item.Date) != "2025-08-08" {
		t.Fatalf("unexpected appended item %#v", res.Item)
	}

	second := itemBySeq(t, cal, "reference", 2)
	blackout, err := svc.AddScheduledItem(context.Background(), AddItemInput{
		CalendarID: cal.ID,
		LayerKey:   "holidays",
		Title:      "Closure",
		Date:       &second.Date,
	})
	if err != nil {
		t.Fatalf("AddScheduledItem(exception) error = %v", err)
	}
	if len(blackout.Changes) != 4 {
		t.Fatalf("expected items 2 through 5 to move, got %#v", blackout.Changes)
	}

	if _, err := svc.AddScheduledItem(context.Background(), AddItemInput{CalendarID: cal.ID, LayerKey: "ghost", Title: "x"}); !errors.Is(err, domain.ErrLayerNotFound) {
		t.Fatalf("expected ErrLayerNotFound, got %v", err)
	}
}

func TestUpdateCalendarReflowsWhenWeekendsDisabled(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, ServiceConfig{DefaultIncludeWeekends: true})
	cal := seedCalendar(t, svc, 7)
	if !cal.IncludeWeekends {
		t.Fatal("expected configured weekend default")
	}

	name := "Trimmed"
	res, err := svc.UpdateCalendar(context.Background(), UpdateCalendarInput{
		CalendarID:      cal.ID,
		Name:            &name,
		IncludeWeekends: boolPtr(false),
	})
	if err != nil {
		t.Fatalf("UpdateCalendar() error = %v", err)
	}
	if res.Calendar.Name != "Trimmed" {
		t.Fatalf("unexpected name %q", res.Calendar.Name)
	}
	for _, idx := range res.Calendar.LayerItems("reference") {
		if schedule.IsWeekend(res.Calendar.Items[idx].Date) {
			t.Fatalf("item %s still on a weekend", res.Calendar.Items[idx].ID)
		}
	}

	chain := "independent"
	if _, err := svc.UpdateCalendar(context.Background(), UpdateCalendarInput{
		CalendarID: cal.ID,
		Layers:     []LayerPatch{{Key: "reference", ChainBehavior: &chain}},
	}); err != nil {
		t.Fatalf("UpdateCalendar(layer) error = %v", err)
	}
	layer, _ := repo.calendars[cal.ID].Layer("reference")
	if layer.ChainBehavior != domain.ChainIndependent {
		t.Fatalf("expected independent chain, got %q", layer.ChainBehavior)
	}
}

func TestExceptionLookupSummary(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, ServiceConfig{})
	cal := seedCalendar(t, svc, 2)
	if _, err := svc.UpdateExceptions(context.Background(), UpdateExceptionsInput{
		CalendarID: cal.ID,
		Exceptions: []ExceptionInput{
			{Date: mustDay(t, "2025-09-01"), Title: "Labor Day"},
			{Date: mustDay(t, "2025-09-02"), Title: "Reference only", TargetLayerKeys: []string{"reference"}},
		},
	}); err != nil {
		t.Fatalf("UpdateExceptions() error = %v", err)
	}

	summary, err := svc.ExceptionLookup(context.Background(), cal.ID)
	if err != nil {
		t.Fatalf("ExceptionLookup() error = %v", err)
	}
	if !slices.Equal(summary.Global, []string{"2025-09-01"}) {
		t.Fatalf("unexpected global %#v", summary.Global)
	}
	if !slices.Equal(summary.BlockedByLayer["reference"], []string{"2025-09-01", "2025-09-02"}) {
		t.Fatalf("unexpected reference blocked days %#v", summary.BlockedByLayer["reference"])
	}
}

func TestDeleteAndListCalendars(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, ServiceConfig{})
	cal := seedCalendar(t, svc, 1)

	list, err := svc.ListCalendars(context.Background())
	if err != nil || len(list) != 1 || list[0].ItemCount != 1 {
		t.Fatalf("ListCalendars() = %#v, %v", list, err)
	}
	if err := svc.DeleteCalendar(context.Background(), cal.ID); err != nil {
		t.Fatalf("DeleteCalendar() error = %v", err)
	}
	if _, err := svc.GetCalendar(context.Background(), cal.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}
