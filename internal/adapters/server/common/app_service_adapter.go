package common

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hylla/flexcal/internal/adapters/ical"
	"github.com/hylla/flexcal/internal/app"
	"github.com/hylla/flexcal/internal/domain"
	"github.com/hylla/flexcal/internal/schedule"
)

// AppServiceAdapter maps transport contracts onto app.Service calendar APIs.
type AppServiceAdapter struct {
	service *app.Service
	clock   func() time.Time
}

// NewAppServiceAdapter builds one common adapter over an app.Service instance.
func NewAppServiceAdapter(service *app.Service) *AppServiceAdapter {
	return &AppServiceAdapter{service: service, clock: time.Now}
}

func (a *AppServiceAdapter) ready() error {
	if a == nil || a.service == nil {
		return fmt.Errorf("app service adapter is not configured: %w", ErrInvalidRequest)
	}
	return nil
}

// ListCalendars lists calendar summaries, most recently updated first.
func (a *AppServiceAdapter) ListCalendars(ctx context.Context) ([]CalendarSummary, error) {
	if err := a.ready(); err != nil {
		return nil, err
	}
	summaries, err := a.service.ListCalendars(ctx)
	if err != nil {
		return nil, mapAppError("list calendars", err)
	}
	out := make([]CalendarSummary, 0, len(summaries))
	for _, s := range summaries {
		keys := make([]string, 0, len(s.Layers))
		for _, layer := range s.Layers {
			keys = append(keys, layer.Key)
		}
		out = append(out, CalendarSummary{
			ID:        s.ID,
			Name:      s.Name,
			StartDate: optionalDateKey(s.StartDate),
			TotalDays: s.TotalDays,
			LayerKeys: keys,
			ItemCount: s.ItemCount,
			UpdatedAt: s.UpdatedAt.UTC(),
		})
	}
	return out, nil
}

// GetCalendar returns one calendar with its layers and items.
func (a *AppServiceAdapter) GetCalendar(ctx context.Context, calendarID string) (Calendar, error) {
	if err := a.ready(); err != nil {
		return Calendar{}, err
	}
	calendarID, err := requireID("calendar_id", calendarID)
	if err != nil {
		return Calendar{}, err
	}
	cal, err := a.service.GetCalendar(ctx, calendarID)
	if err != nil {
		return Calendar{}, mapAppError("get calendar", err)
	}
	return CalendarFromDomain(cal), nil
}

// CreateCalendar creates a calendar and generates its layer items.
func (a *AppServiceAdapter) CreateCalendar(ctx context.Context, in CreateCalendarRequest) (Calendar, error) {
	if err := a.ready(); err != nil {
		return Calendar{}, err
	}
	startDate, err := parseOptionalDate("start_date", in.StartDate)
	if err != nil {
		return Calendar{}, err
	}
	layers := make([]domain.LayerInput, 0, len(in.Layers))
	for _, l := range in.Layers {
		li := domain.LayerInput{
			Key:                      l.Key,
			Name:                     l.Name,
			Color:                    l.Color,
			Description:              l.Description,
			ChainBehavior:            l.ChainBehavior,
			AutoShift:                l.AutoShift,
			Kind:                     l.Kind,
			RespectsGlobalExceptions: l.RespectsGlobalExceptions,
		}
		if l.Template != nil {
			li.Template = domain.LayerTemplate{
				Mode:         domain.TemplateMode(l.Template.Mode),
				ItemCount:    l.Template.ItemCount,
				TitlePattern: l.Template.TitlePattern,
			}
		}
		layers = append(layers, li)
	}
	var templateItems map[string][]schedule.TemplateItem
	if len(in.TemplateItems) > 0 {
		templateItems = make(map[string][]schedule.TemplateItem, len(in.TemplateItems))
		for key, items := range in.TemplateItems {
			converted := make([]schedule.TemplateItem, 0, len(items))
			for _, it := range items {
				converted = append(converted, schedule.TemplateItem{
					Title:        it.Title,
					Description:  it.Description,
					DurationDays: it.DurationDays,
				})
			}
			templateItems[key] = converted
		}
	}
	var exceptions map[string][]app.ExceptionInput
	if len(in.Exceptions) > 0 {
		exceptions = make(map[string][]app.ExceptionInput, len(in.Exceptions))
		for key, list := range in.Exceptions {
			converted, err := exceptionInputs(list)
			if err != nil {
				return Calendar{}, err
			}
			exceptions[key] = converted
		}
	}

	cal, err := a.service.CreateCalendar(ctx, app.CreateCalendarInput{
		Name:                 in.Name,
		PresetKey:            in.PresetKey,
		StartDate:            startDate,
		TotalDays:            in.TotalDays,
		IncludeWeekends:      in.IncludeWeekends,
		IncludeExceptions:    in.IncludeExceptions,
		Layers:               layers,
		TemplateItemsByLayer: templateItems,
		Exceptions:           exceptions,
	})
	if err != nil {
		return Calendar{}, mapAppError("create calendar", err)
	}
	return CalendarFromDomain(cal), nil
}

// UpdateCalendar patches calendar metadata and reflows items on newly blocked days.
func (a *AppServiceAdapter) UpdateCalendar(ctx context.Context, in UpdateCalendarRequest) (ReflowResponse, error) {
	if err := a.ready(); err != nil {
		return ReflowResponse{}, err
	}
	calendarID, err := requireID("calendar_id", in.CalendarID)
	if err != nil {
		return ReflowResponse{}, err
	}
	patches := make([]app.LayerPatch, 0, len(in.Layers))
	for _, p := range in.Layers {
		patches = append(patches, app.LayerPatch{
			Key:                      p.Key,
			Name:                     p.Name,
			Color:                    p.Color,
			Description:              p.Description,
			ChainBehavior:            p.ChainBehavior,
			Kind:                     p.Kind,
			RespectsGlobalExceptions: p.RespectsGlobalExceptions,
		})
	}
	res, err := a.service.UpdateCalendar(ctx, app.UpdateCalendarInput{
		CalendarID:        calendarID,
		Name:              in.Name,
		IncludeWeekends:   in.IncludeWeekends,
		IncludeExceptions: in.IncludeExceptions,
		Layers:            patches,
	})
	if err != nil {
		return ReflowResponse{}, mapAppError("update calendar", err)
	}
	return reflowFromApp(res), nil
}

// DeleteCalendar removes one calendar and its change history.
func (a *AppServiceAdapter) DeleteCalendar(ctx context.Context, calendarID string) error {
	if err := a.ready(); err != nil {
		return err
	}
	calendarID, err := requireID("calendar_id", calendarID)
	if err != nil {
		return err
	}
	if err := a.service.DeleteCalendar(ctx, calendarID); err != nil {
		return mapAppError("delete calendar", err)
	}
	return nil
}

// ShiftItems moves one item and its chain, then persists the result.
func (a *AppServiceAdapter) ShiftItems(ctx context.Context, in ShiftRequest) (ReflowResponse, error) {
	return a.shift(ctx, in, false)
}

// PreviewShift computes a shift without persisting it.
func (a *AppServiceAdapter) PreviewShift(ctx context.Context, in ShiftRequest) (ReflowResponse, error) {
	return a.shift(ctx, in, true)
}

func (a *AppServiceAdapter) shift(ctx context.Context, in ShiftRequest, preview bool) (ReflowResponse, error) {
	if err := a.ready(); err != nil {
		return ReflowResponse{}, err
	}
	calendarID, err := requireID("calendar_id", in.CalendarID)
	if err != nil {
		return ReflowResponse{}, err
	}
	itemID, err := requireID("item_id", in.ItemID)
	if err != nil {
		return ReflowResponse{}, err
	}
	input := app.ShiftItemsInput{
		CalendarID: calendarID,
		ItemID:     itemID,
		DeltaDays:  in.DeltaDays,
		LayerKeys:  in.LayerKeys,
	}
	var res app.ReflowResult
	if preview {
		res, err = a.service.PreviewShift(ctx, input)
	} else {
		res, err = a.service.ShiftItems(ctx, input)
	}
	if err != nil {
		return ReflowResponse{}, mapAppError("shift items", err)
	}
	return reflowFromApp(res), nil
}

// SplitItem divides one item into consecutive parts.
func (a *AppServiceAdapter) SplitItem(ctx context.Context, in SplitRequest) (ReflowResponse, error) {
	if err := a.ready(); err != nil {
		return ReflowResponse{}, err
	}
	calendarID, err := requireID("calendar_id", in.CalendarID)
	if err != nil {
		return ReflowResponse{}, err
	}
	itemID, err := requireID("item_id", in.ItemID)
	if err != nil {
		return ReflowResponse{}, err
	}
	res, err := a.service.SplitItem(ctx, app.SplitItemInput{
		CalendarID: calendarID,
		ItemID:     itemID,
		Parts:      in.Parts,
	})
	if err != nil {
		return ReflowResponse{}, mapAppError("split item", err)
	}
	return reflowFromApp(res), nil
}

// UnsplitItem collapses one split group back into a single item.
func (a *AppServiceAdapter) UnsplitItem(ctx context.Context, in UnsplitRequest) (ReflowResponse, error) {
	if err := a.ready(); err != nil {
		return ReflowResponse{}, err
	}
	calendarID, err := requireID("calendar_id", in.CalendarID)
	if err != nil {
		return ReflowResponse{}, err
	}
	if strings.TrimSpace(in.ItemID) == "" && strings.TrimSpace(in.SplitGroupID) == "" {
		return ReflowResponse{}, fmt.Errorf("item_id or split_group_id is required: %w", ErrInvalidRequest)
	}
	res, err := a.service.UnsplitItem(ctx, app.UnsplitItemInput{
		CalendarID:   calendarID,
		ItemID:       in.ItemID,
		SplitGroupID: in.SplitGroupID,
	})
	if err != nil {
		return ReflowResponse{}, mapAppError("unsplit item", err)
	}
	return reflowFromApp(res), nil
}

// AddItem appends one item to a layer.
func (a *AppServiceAdapter) AddItem(ctx context.Context, in AddItemRequest) (AddItemResponse, error) {
	if err := a.ready(); err != nil {
		return AddItemResponse{}, err
	}
	calendarID, err := requireID("calendar_id", in.CalendarID)
	if err != nil {
		return AddItemResponse{}, err
	}
	date, err := parseOptionalDate("date", in.Date)
	if err != nil {
		return AddItemResponse{}, err
	}
	res, err := a.service.AddScheduledItem(ctx, app.AddItemInput{
		CalendarID:      calendarID,
		LayerKey:        in.LayerKey,
		Date:            date,
		Title:           in.Title,
		Label:           in.Label,
		Description:     in.Description,
		Notes:           in.Notes,
		DurationDays:    in.DurationDays,
		Metadata:        in.Metadata,
		TargetLayerKeys: in.TargetLayerKeys,
	})
	if err != nil {
		return AddItemResponse{}, mapAppError("add item", err)
	}
	reflow := reflowFromApp(res.ReflowResult)
	return AddItemResponse{
		Item:     itemFromDomain(res.Item),
		Calendar: reflow.Calendar,
		Changes:  reflow.Changes,
	}, nil
}

// UpdateExceptions replaces or merges one exception layer's markers.
func (a *AppServiceAdapter) UpdateExceptions(ctx context.Context, in UpdateExceptionsRequest) (ReflowResponse, error) {
	if err := a.ready(); err != nil {
		return ReflowResponse{}, err
	}
	calendarID, err := requireID("calendar_id", in.CalendarID)
	if err != nil {
		return ReflowResponse{}, err
	}
	exceptions, err := exceptionInputs(in.Exceptions)
	if err != nil {
		return ReflowResponse{}, err
	}
	res, err := a.service.UpdateExceptions(ctx, app.UpdateExceptionsInput{
		CalendarID:        calendarID,
		LayerKey:          in.LayerKey,
		Mode:              app.ExceptionUpdateMode(in.Mode),
		IncludeExceptions: in.IncludeExceptions,
		Exceptions:        exceptions,
	})
	if err != nil {
		return ReflowResponse{}, mapAppError("update exceptions", err)
	}
	return reflowFromApp(res), nil
}

// ExceptionLookup reports one calendar's blocked days.
func (a *AppServiceAdapter) ExceptionLookup(ctx context.Context, calendarID string) (ExceptionLookup, error) {
	if err := a.ready(); err != nil {
		return ExceptionLookup{}, err
	}
	calendarID, err := requireID("calendar_id", calendarID)
	if err != nil {
		return ExceptionLookup{}, err
	}
	summary, err := a.service.ExceptionLookup(ctx, calendarID)
	if err != nil {
		return ExceptionLookup{}, mapAppError("exception lookup", err)
	}
	return ExceptionLookup{
		CalendarID:        summary.CalendarID,
		IncludeWeekends:   summary.IncludeWeekends,
		IncludeExceptions: summary.IncludeExceptions,
		Global:            nonNilStrings(summary.Global),
		PerLayer:          summary.PerLayer,
		BlockedByLayer:    summary.BlockedByLayer,
	}, nil
}

// ListChanges lists one calendar's change events, newest first.
func (a *AppServiceAdapter) ListChanges(ctx context.Context, calendarID string, limit int) ([]ChangeEvent, error) {
	if err := a.ready(); err != nil {
		return nil, err
	}
	calendarID, err := requireID("calendar_id", calendarID)
	if err != nil {
		return nil, err
	}
	if limit < 0 {
		return nil, fmt.Errorf("limit must be >= 0: %w", ErrInvalidRequest)
	}
	events, err := a.service.ListChangeEvents(ctx, calendarID, limit)
	if err != nil {
		return nil, mapAppError("list changes", err)
	}
	out := make([]ChangeEvent, 0, len(events))
	for _, ev := range events {
		out = append(out, ChangeEvent{
			ID:         ev.ID,
			CalendarID: ev.CalendarID,
			ItemID:     ev.ItemID,
			Operation:  string(ev.Operation),
			Metadata:   ev.Metadata,
			OccurredAt: ev.OccurredAt.UTC(),
		})
	}
	return out, nil
}

// ExportDocument returns the portable JSON document of one calendar.
func (a *AppServiceAdapter) ExportDocument(ctx context.Context, calendarID string) (app.CalendarDocument, error) {
	if err := a.ready(); err != nil {
		return app.CalendarDocument{}, err
	}
	calendarID, err := requireID("calendar_id", calendarID)
	if err != nil {
		return app.CalendarDocument{}, err
	}
	doc, err := a.service.ExportDocument(ctx, calendarID)
	if err != nil {
		return app.CalendarDocument{}, mapAppError("export document", err)
	}
	return doc, nil
}

// ExportICS renders one calendar as an iCalendar feed.
func (a *AppServiceAdapter) ExportICS(ctx context.Context, calendarID string) (string, error) {
	if err := a.ready(); err != nil {
		return "", err
	}
	calendarID, err := requireID("calendar_id", calendarID)
	if err != nil {
		return "", err
	}
	cal, err := a.service.GetCalendar(ctx, calendarID)
	if err != nil {
		return "", mapAppError("export ics", err)
	}
	return ical.Export(cal, a.clock(), ical.ExportOptions{}), nil
}

// CalendarFromDomain converts a domain calendar into its transport shape.
func CalendarFromDomain(cal domain.Calendar) Calendar {
	out := Calendar{
		ID:                cal.ID,
		Name:              cal.Name,
		PresetKey:         cal.PresetKey,
		StartDate:         optionalDateKey(cal.StartDate),
		TotalDays:         cal.TotalDays,
		IncludeWeekends:   cal.IncludeWeekends,
		IncludeExceptions: cal.IncludeExceptions,
		Layers:            make([]Layer, 0, len(cal.Layers)),
		Items:             make([]Item, 0, len(cal.Items)),
		CreatedAt:         cal.CreatedAt.UTC(),
		UpdatedAt:         cal.UpdatedAt.UTC(),
	}
	for _, layer := range cal.Layers {
		out.Layers = append(out.Layers, Layer{
			Key:                      layer.Key,
			Name:                     layer.Name,
			Color:                    layer.Color,
			Description:              layer.Description,
			ChainBehavior:            string(layer.ChainBehavior),
			Kind:                     string(layer.Kind),
			RespectsGlobalExceptions: layer.RespectsGlobalExceptions,
			Template: Template{
				Mode:         string(layer.Template.Mode),
				ItemCount:    layer.Template.ItemCount,
				TitlePattern: layer.Template.TitlePattern,
			},
		})
	}
	for _, item := range cal.Items {
		out.Items = append(out.Items, itemFromDomain(item))
	}
	return out
}

func itemFromDomain(item domain.ScheduledItem) Item {
	return Item{
		ID:              item.ID,
		Date:            schedule.DateKey(item.Date),
		LayerKey:        item.LayerKey,
		SequenceIndex:   item.SequenceIndex,
		Title:           item.Title,
		Label:           item.Label,
		Description:     item.Description,
		Notes:           item.Notes,
		DurationDays:    item.DurationDays,
		Metadata:        item.Metadata,
		TargetLayerKeys: item.TargetLayerKeys,
		SplitGroupID:    item.SplitGroupID,
		SplitIndex:      item.SplitIndex,
		SplitTotal:      item.SplitTotal,
	}
}

func reflowFromApp(res app.ReflowResult) ReflowResponse {
	changes := make([]DateChange, 0, len(res.Changes))
	for _, c := range res.Changes {
		changes = append(changes, DateChange{
			ItemID:   c.ItemID,
			LayerKey: c.LayerKey,
			From:     schedule.DateKey(c.From),
			To:       schedule.DateKey(c.To),
		})
	}
	return ReflowResponse{Calendar: CalendarFromDomain(res.Calendar), Changes: changes}
}

func exceptionInputs(in []ExceptionRequest) ([]app.ExceptionInput, error) {
	out := make([]app.ExceptionInput, 0, len(in))
	for i, ex := range in {
		date, err := schedule.ParseDateKey(ex.Date)
		if err != nil {
			return nil, fmt.Errorf("exceptions[%d].date %q: %w", i, ex.Date, errors.Join(ErrInvalidRequest, err))
		}
		out = append(out, app.ExceptionInput{
			ID:              ex.ID,
			Date:            date,
			Title:           ex.Title,
			Description:     ex.Description,
			TargetLayerKeys: ex.TargetLayerKeys,
		})
	}
	return out, nil
}

// requireID trims one required identifier.
func requireID(field, raw string) (string, error) {
	id := strings.TrimSpace(raw)
	if id == "" {
		return "", fmt.Errorf("%s is required: %w", field, ErrInvalidRequest)
	}
	return id, nil
}

// parseOptionalDate parses a YYYY-MM-DD field. Blank input yields nil.
func parseOptionalDate(field, raw string) (*time.Time, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	t, err := schedule.ParseDateKey(raw)
	if err != nil {
		return nil, fmt.Errorf("%s %q: %w", field, raw, errors.Join(ErrInvalidRequest, err))
	}
	return &t, nil
}

func optionalDateKey(t *time.Time) string {
	if t == nil {
		return ""
	}
	return schedule.DateKey(*t)
}

func nonNilStrings(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}

// mapAppError maps app/domain/engine errors into transport-facing sentinels.
func mapAppError(operation string, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, app.ErrNotFound),
		errors.Is(err, schedule.ErrItemNotFound),
		errors.Is(err, schedule.ErrSplitGroupNotFound),
		errors.Is(err, domain.ErrLayerNotFound):
		return fmt.Errorf("%s: %w", operation, errors.Join(ErrNotFound, err))
	case errors.Is(err, schedule.ErrAlreadySplit),
		errors.Is(err, domain.ErrDuplicateItemID),
		errors.Is(err, domain.ErrDuplicateLayerKey):
		return fmt.Errorf("%s: %w", operation, errors.Join(ErrConflict, err))
	case errors.Is(err, schedule.ErrNoValidDate):
		return fmt.Errorf("%s: %w", operation, errors.Join(ErrNoValidDate, err))
	case errors.Is(err, schedule.ErrInvalidParts),
		errors.Is(err, schedule.ErrExceptionItem),
		errors.Is(err, schedule.ErrInvalidDateKey),
		errors.Is(err, app.ErrInvalidExceptionMode),
		errors.Is(err, app.ErrNotExceptionLayer),
		errors.Is(err, app.ErrInvalidDocument),
		errors.Is(err, domain.ErrInvalidID),
		errors.Is(err, domain.ErrInvalidName),
		errors.Is(err, domain.ErrInvalidTitle),
		errors.Is(err, domain.ErrInvalidDate),
		errors.Is(err, domain.ErrInvalidLayerKey),
		errors.Is(err, domain.ErrInvalidSequence),
		errors.Is(err, domain.ErrInvalidChainBehavior),
		errors.Is(err, domain.ErrInvalidLayerKind),
		errors.Is(err, domain.ErrInvalidTemplateMode),
		errors.Is(err, domain.ErrInvalidTotalDays),
		errors.Is(err, domain.ErrInvalidDuration):
		return fmt.Errorf("%s: %w", operation, errors.Join(ErrInvalidRequest, err))
	default:
		return fmt.Errorf("%s: %w", operation, err)
	}
}
