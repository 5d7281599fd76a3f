package app

import (
	"context"
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/hylla/flexcal/internal/domain"
	"github.com/hylla/flexcal/internal/schedule"
)

// DefaultTotalDays is the generated run length of a new standard layer.
const DefaultTotalDays = 170

// DefaultChangeLogLimit caps change-event listings when no limit is given.
const DefaultChangeLogLimit = 50

// ServiceConfig holds configuration for service.
type ServiceConfig struct {
	DefaultTotalDays         int
	DefaultIncludeWeekends   bool
	DefaultIncludeExceptions bool
	ClampSplitParts          bool
	ChangeLogLimit           int
}

// IDGenerator returns unique identifiers for new entities.
type IDGenerator func() string

// Clock returns the current time.
type Clock func() time.Time

// Service runs calendar operations: load the whole calendar, apply one engine
// transform, then persist the whole calendar with one change event.
type Service struct {
	repo  Repository
	idGen IDGenerator
	clock Clock
	cfg   ServiceConfig
}

// NewService constructs a new value for this package.
func NewService(repo Repository, idGen IDGenerator, clock Clock, cfg ServiceConfig) *Service {
	if idGen == nil {
		idGen = func() string { return "" }
	}
	if clock == nil {
		clock = time.Now
	}
	if cfg.DefaultTotalDays <= 0 {
		cfg.DefaultTotalDays = DefaultTotalDays
	}
	if cfg.ChangeLogLimit <= 0 {
		cfg.ChangeLogLimit = DefaultChangeLogLimit
	}
	return &Service{
		repo:  repo,
		idGen: idGen,
		clock: clock,
		cfg:   cfg,
	}
}

// ReflowResult is the persisted calendar plus the item dates an operation moved.
type ReflowResult struct {
	Calendar domain.Calendar
	Changes  []schedule.DateChange
}

// ExceptionInput describes one blackout marker on an exception layer.
type ExceptionInput struct {
	ID              string
	Date            time.Time
	Title           string
	Description     string
	TargetLayerKeys []string
}

// CreateCalendarInput holds input values for create calendar operations.
type CreateCalendarInput struct {
	Name                 string
	PresetKey            string
	StartDate            *time.Time
	TotalDays            int
	IncludeWeekends      *bool
	IncludeExceptions    *bool
	Layers               []domain.LayerInput
	TemplateItemsByLayer map[string][]schedule.TemplateItem
	Exceptions           map[string][]ExceptionInput
}

// CreateCalendar creates a calendar and generates items for every standard layer.
// Exceptions are placed first so generated items never land on a blocked day.
func (s *Service) CreateCalendar(ctx context.Context, in CreateCalendarInput) (domain.Calendar, error) {
	now := s.clock()
	layers := make([]domain.Layer, 0, len(in.Layers))
	for _, li := range in.Layers {
		layer, err := domain.NewLayer(li)
		if err != nil {
			return domain.Calendar{}, fmt.Errorf("layer %q: %w", li.Key, err)
		}
		layers = append(layers, layer)
	}
	start := domain.TruncateDay(now)
	if in.StartDate != nil {
		start = domain.TruncateDay(*in.StartDate)
	}
	totalDays := in.TotalDays
	if totalDays == 0 {
		totalDays = s.cfg.DefaultTotalDays
	}

	cal, err := domain.NewCalendar(domain.CalendarInput{
		ID:                s.idGen(),
		Name:              in.Name,
		PresetKey:         in.PresetKey,
		StartDate:         &start,
		TotalDays:         totalDays,
		IncludeWeekends:   boolOr(in.IncludeWeekends, s.cfg.DefaultIncludeWeekends),
		IncludeExceptions: boolOr(in.IncludeExceptions, s.cfg.DefaultIncludeExceptions),
		Layers:            layers,
	}, now)
	if err != nil {
		return domain.Calendar{}, err
	}

	for _, layer := range cal.Layers {
		if !layer.IsException() {
			continue
		}
		items, err := s.exceptionItems(layer.Key, 1, in.Exceptions[layer.Key])
		if err != nil {
			return domain.Calendar{}, err
		}
		cal.Items = append(cal.Items, items...)
	}
	rules := schedule.RulesFor(cal)
	for _, layer := range cal.Layers {
		if layer.IsException() {
			continue
		}
		items, err := schedule.GenerateLayerItems(schedule.GenerateRequest{
			Layer:           layer,
			Start:           start,
			Count:           totalDays,
			IncludeWeekends: cal.IncludeWeekends,
			Blocked:         rules.BlockedFor(layer.Key),
			Templates:       in.TemplateItemsByLayer[layer.Key],
			NewID:           s.idGen,
		})
		if err != nil {
			return domain.Calendar{}, err
		}
		cal.Items = append(cal.Items, items...)
	}
	if err := cal.Validate(); err != nil {
		return domain.Calendar{}, err
	}
	if err := s.repo.CreateCalendar(ctx, cal); err != nil {
		return domain.Calendar{}, err
	}
	return cal, nil
}

// GetCalendar returns one calendar.
func (s *Service) GetCalendar(ctx context.Context, calendarID string) (domain.Calendar, error) {
	return s.repo.GetCalendar(ctx, strings.TrimSpace(calendarID))
}

// ListCalendars lists calendar summaries.
func (s *Service) ListCalendars(ctx context.Context) ([]domain.CalendarSummary, error) {
	return s.repo.ListCalendars(ctx)
}

// DeleteCalendar removes a calendar and its change history.
func (s *Service) DeleteCalendar(ctx context.Context, calendarID string) error {
	return s.repo.DeleteCalendar(ctx, strings.TrimSpace(calendarID))
}

// LayerPatch updates display and behavior fields of one layer. Nil fields are kept.
type LayerPatch struct {
	Key                      string
	Name                     *string
	Color                    *string
	Description              *string
	ChainBehavior            *string
	Kind                     *string
	RespectsGlobalExceptions *bool
}

// UpdateCalendarInput holds input values for update calendar operations.
type UpdateCalendarInput struct {
	CalendarID        string
	Name              *string
	IncludeWeekends   *bool
	IncludeExceptions *bool
	Layers            []LayerPatch
}

// UpdateCalendar patches calendar metadata. Items left on days that became invalid
// are reflowed in the same write.
func (s *Service) UpdateCalendar(ctx context.Context, in UpdateCalendarInput) (ReflowResult, error) {
	before, err := s.repo.GetCalendar(ctx, strings.TrimSpace(in.CalendarID))
	if err != nil {
		return ReflowResult{}, err
	}
	cal := before.Clone()
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return ReflowResult{}, domain.ErrInvalidName
		}
		cal.Name = name
	}
	cal.IncludeWeekends = boolOr(in.IncludeWeekends, cal.IncludeWeekends)
	cal.IncludeExceptions = boolOr(in.IncludeExceptions, cal.IncludeExceptions)
	for _, patch := range in.Layers {
		if err := applyLayerPatch(&cal, patch); err != nil {
			return ReflowResult{}, err
		}
	}

	after, moved, err := schedule.ReflowBlocked(cal)
	if err != nil {
		return ReflowResult{}, err
	}
	return s.save(ctx, before, after, domain.ChangeOperationUpdate, "", map[string]string{
		"moved": fmt.Sprint(len(moved)),
	})
}

func applyLayerPatch(cal *domain.Calendar, patch LayerPatch) error {
	key := domain.NormalizeLayerKey(patch.Key)
	for i := range cal.Layers {
		layer := &cal.Layers[i]
		if layer.Key != key {
			continue
		}
		if patch.Name != nil {
			name := strings.TrimSpace(*patch.Name)
			if name == "" {
				return domain.ErrInvalidName
			}
			layer.Name = name
		}
		if patch.Color != nil {
			layer.Color = strings.TrimSpace(*patch.Color)
		}
		if patch.Description != nil {
			layer.Description = strings.TrimSpace(*patch.Description)
		}
		if patch.ChainBehavior != nil {
			chain, err := domain.NormalizeChainBehavior(*patch.ChainBehavior, nil)
			if err != nil {
				return err
			}
			layer.ChainBehavior = chain
		}
		if patch.Kind != nil {
			kind, err := domain.NormalizeLayerKind(*patch.Kind)
			if err != nil {
				return err
			}
			layer.Kind = kind
		}
		if patch.RespectsGlobalExceptions != nil {
			layer.RespectsGlobalExceptions = *patch.RespectsGlobalExceptions
		}
		return nil
	}
	return fmt.Errorf("layer %q: %w", key, domain.ErrLayerNotFound)
}

// AddItemInput holds input values for add scheduled item operations.
type AddItemInput struct {
	CalendarID      string
	LayerKey        string
	Date            *time.Time
	Title           string
	Label           string
	Description     string
	Notes           string
	DurationDays    int
	Metadata        map[string]string
	TargetLayerKeys []string
}

// AddItemResult is the created item plus the resulting reflow.
type AddItemResult struct {
	Item domain.ScheduledItem
	ReflowResult
}

// AddScheduledItem appends an item to the end of a layer. Without a date it lands
// one valid day after the layer's last item. Blackouts added to exception layers
// reflow any item they now cover.
func (s *Service) AddScheduledItem(ctx context.Context, in AddItemInput) (AddItemResult, error) {
	before, err := s.repo.GetCalendar(ctx, strings.TrimSpace(in.CalendarID))
	if err != nil {
		return AddItemResult{}, err
	}
	cal := before.Clone()
	layerKey := domain.NormalizeLayerKey(in.LayerKey)
	layer, ok := cal.Layer(layerKey)
	if !ok {
		return AddItemResult{}, fmt.Errorf("layer %q: %w", layerKey, domain.ErrLayerNotFound)
	}

	rules := schedule.RulesFor(cal)
	order := cal.LayerItems(layerKey)
	seq := 1
	if len(order) > 0 {
		seq = cal.Items[order[len(order)-1]].SequenceIndex + 1
	}
	var date time.Time
	switch {
	case in.Date != nil && layer.IsException():
		date = *in.Date
	case in.Date != nil:
		date, err = schedule.NextValidDate(*in.Date, rules.IncludeWeekends, rules.BlockedFor(layerKey))
	case len(order) > 0:
		date, err = schedule.AdvanceValidDays(cal.Items[order[len(order)-1]].Date, 1, rules.IncludeWeekends, rules.BlockedFor(layerKey))
	default:
		start := s.clock()
		if cal.StartDate != nil {
			start = *cal.StartDate
		}
		date, err = schedule.NextValidDate(start, rules.IncludeWeekends, rules.BlockedFor(layerKey))
	}
	if err != nil {
		return AddItemResult{}, err
	}

	item, err := domain.NewScheduledItem(domain.ScheduledItemInput{
		ID:              s.idGen(),
		Date:            date,
		LayerKey:        layerKey,
		SequenceIndex:   seq,
		Title:           in.Title,
		Label:           in.Label,
		Description:     in.Description,
		Notes:           in.Notes,
		DurationDays:    in.DurationDays,
		Metadata:        in.Metadata,
		TargetLayerKeys: in.TargetLayerKeys,
	})
	if err != nil {
		return AddItemResult{}, err
	}
	cal.Items = append(cal.Items, item)

	after := cal
	if layer.IsException() {
		after, _, err = schedule.ReflowBlocked(cal)
		if err != nil {
			return AddItemResult{}, err
		}
	}
	res, err := s.save(ctx, before, after, domain.ChangeOperationAddItem, item.ID, map[string]string{
		"layer_key": layerKey,
		"date":      schedule.DateKey(item.Date),
	})
	if err != nil {
		return AddItemResult{}, err
	}
	return AddItemResult{Item: item, ReflowResult: res}, nil
}

// ListChangeEvents lists recent change events, newest first.
func (s *Service) ListChangeEvents(ctx context.Context, calendarID string, limit int) ([]domain.ChangeEvent, error) {
	if limit <= 0 {
		limit = s.cfg.ChangeLogLimit
	}
	return s.repo.ListCalendarChangeEvents(ctx, strings.TrimSpace(calendarID), limit)
}

// save validates after, persists it with one change event, and reports the date diff.
func (s *Service) save(ctx context.Context, before, after domain.Calendar, op domain.ChangeOperation, itemID string, metadata map[string]string) (ReflowResult, error) {
	if err := after.Validate(); err != nil {
		return ReflowResult{}, err
	}
	now := s.clock()
	after.Touch(now)
	changes := schedule.Diff(before, after)

	meta := maps.Clone(metadata)
	if meta == nil {
		meta = map[string]string{}
	}
	meta["changed"] = fmt.Sprint(len(changes))
	event := domain.ChangeEvent{
		CalendarID: after.ID,
		ItemID:     itemID,
		Operation:  op,
		Metadata:   meta,
		OccurredAt: now.UTC(),
	}
	if err := s.repo.UpdateCalendar(ctx, after, event); err != nil {
		return ReflowResult{}, err
	}
	return ReflowResult{Calendar: after, Changes: changes}, nil
}

// exceptionItems builds blackout items for layerKey starting at sequence firstSeq.
func (s *Service) exceptionItems(layerKey string, firstSeq int, in []ExceptionInput) ([]domain.ScheduledItem, error) {
	out := make([]domain.ScheduledItem, 0, len(in))
	for i, ex := range in {
		id := strings.TrimSpace(ex.ID)
		if id == "" {
			id = s.idGen()
		}
		title := strings.TrimSpace(ex.Title)
		if title == "" {
			title = "Blackout"
		}
		item, err := domain.NewScheduledItem(domain.ScheduledItemInput{
			ID:              id,
			Date:            ex.Date,
			LayerKey:        layerKey,
			SequenceIndex:   firstSeq + i,
			Title:           title,
			Description:     ex.Description,
			TargetLayerKeys: ex.TargetLayerKeys,
		})
		if err != nil {
			return nil, fmt.Errorf("exception %d on layer %q: %w", i, layerKey, err)
		}
		out = append(out, item)
	}
	return out, nil
}

func boolOr(v *bool, fallback bool) bool {
	if v == nil {
		return fallback
	}
	return *v
}
