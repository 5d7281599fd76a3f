package app

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/hylla/flexcal/internal/domain"
	"github.com/hylla/flexcal/internal/schedule"
)

func TestExportImportDocumentRoundTrip(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, ServiceConfig{})
	cal := seedCalendar(t, svc, 3)
	target := itemBySeq(t, cal, "reference", 2)
	if _, err := svc.SplitItem(context.Background(), SplitItemInput{CalendarID: cal.ID, ItemID: target.ID, Parts: 2}); err != nil {
		t.Fatalf("SplitItem() error = %v", err)
	}

	doc, err := svc.ExportDocument(context.Background(), cal.ID)
	if err != nil {
		t.Fatalf("ExportDocument() error = %v", err)
	}
	if doc.Version != DocumentVersion || doc.StartDate != "2025-08-04" {
		t.Fatalf("unexpected document header %#v", doc)
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("json.Marshal() error = %v", err)
	}
	var decoded CalendarDocument
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("json.Unmarshal() error = %v", err)
	}

	fresh := newFakeRepo()
	other := newTestService(fresh, ServiceConfig{})
	imported, err := other.ImportDocument(context.Background(), decoded)
	if err != nil {
		t.Fatalf("ImportDocument() error = %v", err)
	}
	stored := repo.calendars[cal.ID]
	if imported.ID != stored.ID || len(imported.Items) != len(stored.Items) {
		t.Fatalf("unexpected imported calendar %#v", imported)
	}
	for _, want := range stored.Items {
		idx := imported.ItemIndex(want.ID)
		if idx < 0 {
			t.Fatalf("missing item %s", want.ID)
		}
		got := imported.Items[idx]
		if !got.Date.Equal(want.Date) || got.SplitGroupID != want.SplitGroupID || got.SplitIndex != want.SplitIndex {
			t.Fatalf("item %s mismatch: got %#v want %#v", want.ID, got, want)
		}
	}

	again, err := other.ImportDocument(context.Background(), decoded)
	if err != nil {
		t.Fatalf("ImportDocument(existing) error = %v", err)
	}
	if !again.CreatedAt.Equal(imported.CreatedAt) {
		t.Fatal("expected re-import to keep the original created time")
	}
	if fresh.events[len(fresh.events)-1].Operation != domain.ChangeOperationImport {
		t.Fatalf("expected import event, got %#v", fresh.events)
	}
}

func TestImportDocumentLegacyAliases(t *testing.T) {
	const legacy = `{
		"name": "Legacy Year",
		"source": "abeka",
		"startDate": "2025-08-04T00:00:00.000Z",
		"includeHolidays": true,
		"groupings": [
			{"key": "reference", "name": "Reference", "autoShift": false},
			{"key": "holidays", "name": "Holidays", "kind": "exception"}
		],
		"days": [
			{"_id": "d1", "date": "2025-08-04T00:00:00.000Z", "groupingKey": "reference", "groupingSequence": 1, "events": [{"title": "Lesson 1", "durationDays": 1}]},
			{"dayId": "d2", "date": "2025-08-05", "groupingKey": "reference", "groupingSequence": 2, "title": "Lesson 2"},
			{"date": "2025-08-06", "groupingKey": "holidays", "groupingSequence": 1, "title": "Break"}
		]
	}`
	var doc CalendarDocument
	if err := json.Unmarshal([]byte(legacy), &doc); err != nil {
		t.Fatalf("json.Unmarshal() error = %v", err)
	}
	svc := newTestService(newFakeRepo(), ServiceConfig{})
	cal, err := svc.ImportDocument(context.Background(), doc)
	if err != nil {
		t.Fatalf("ImportDocument() error = %v", err)
	}
	if cal.PresetKey != "abeka" || !cal.IncludeExceptions {
		t.Fatalf("unexpected legacy header mapping %#v", cal)
	}
	layer, _ := cal.Layer("reference")
	if layer.ChainBehavior != domain.ChainIndependent {
		t.Fatalf("expected autoShift=false to map to independent, got %q", layer.ChainBehavior)
	}
	if cal.ItemIndex("d1") < 0 || cal.ItemIndex("d2") < 0 {
		t.Fatalf("expected legacy ids to survive, got %#v", cal.Items)
	}
	if got := cal.Items[cal.ItemIndex("d1")].Title; got != "Lesson 1" {
		t.Fatalf("expected title from nested event, got %q", got)
	}
	if len(schedule.BuildExceptionLookup(cal).Global) != 1 {
		t.Fatal("expected one global blackout")
	}
}

func TestImportDocumentValidation(t *testing.T) {
	svc := newTestService(newFakeRepo(), ServiceConfig{})
	cases := []struct {
		name string
		doc  CalendarDocument
		want error
	}{
		{name: "version", doc: CalendarDocument{Version: "other.v9", Name: "x"}, want: ErrInvalidDocument},
		{name: "name", doc: CalendarDocument{}, want: ErrInvalidDocument},
		{
			name: "unknown layer",
			doc: CalendarDocument{
				Name:           "x",
				Layers:         []DocumentLayer{{Key: "a", Name: "A"}},
				ScheduledItems: []DocumentItem{{ID: "i", Date: "2025-08-04", LayerKey: "b", SequenceIndex: 1, Title: "t"}},
			},
			want: domain.ErrLayerNotFound,
		},
		{
			name: "bad date",
			doc: CalendarDocument{
				Name:           "x",
				Layers:         []DocumentLayer{{Key: "a", Name: "A"}},
				ScheduledItems: []DocumentItem{{ID: "i", Date: "someday", LayerKey: "a", SequenceIndex: 1, Title: "t"}},
			},
			want: schedule.ErrInvalidDateKey,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.ImportDocument(context.Background(), tc.doc); !errors.Is(err, tc.want) {
				t.Fatalf("ImportDocument() error = %v, want %v", err, tc.want)
			}
		})
	}
}
