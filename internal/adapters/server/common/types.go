// Package common provides transport-agnostic server contracts used by HTTP and MCP adapters.
package common

import (
	"context"
	"errors"
	"time"

	"github.com/hylla/flexcal/internal/app"
)

// ErrInvalidRequest reports malformed transport input.
var ErrInvalidRequest = errors.New("invalid request")

// ErrNotFound reports missing transport-visible resources.
var ErrNotFound = errors.New("not found")

// ErrConflict reports a request that conflicts with current calendar state.
var ErrConflict = errors.New("conflict")

// ErrNoValidDate reports a reflow that could not find a schedulable day.
var ErrNoValidDate = errors.New("no valid date")

// Template describes item generation for one layer.
type Template struct {
	Mode         string `json:"mode,omitempty"`
	ItemCount    int    `json:"item_count,omitempty"`
	TitlePattern string `json:"title_pattern,omitempty"`
}

// Layer is the transport shape of one calendar layer.
type Layer struct {
	Key                      string   `json:"key"`
	Name                     string   `json:"name"`
	Color                    string   `json:"color,omitempty"`
	Description              string   `json:"description,omitempty"`
	ChainBehavior            string   `json:"chain_behavior"`
	Kind                     string   `json:"kind"`
	RespectsGlobalExceptions bool     `json:"respects_global_exceptions"`
	Template                 Template `json:"template"`
}

// Item is the transport shape of one scheduled item. Dates are YYYY-MM-DD.
type Item struct {
	ID              string            `json:"id"`
	Date            string            `json:"date"`
	LayerKey        string            `json:"layer_key"`
	SequenceIndex   int               `json:"sequence_index"`
	Title           string            `json:"title"`
	Label           string            `json:"label,omitempty"`
	Description     string            `json:"description,omitempty"`
	Notes           string            `json:"notes,omitempty"`
	DurationDays    int               `json:"duration_days"`
	Metadata        map[string]string `json:"metadata,omitempty"`
	TargetLayerKeys []string          `json:"target_layer_keys,omitempty"`
	SplitGroupID    string            `json:"split_group_id,omitempty"`
	SplitIndex      int               `json:"split_index,omitempty"`
	SplitTotal      int               `json:"split_total,omitempty"`
}

// Calendar is the transport shape of one calendar.
type Calendar struct {
	ID                string    `json:"id"`
	Name              string    `json:"name"`
	PresetKey         string    `json:"preset_key,omitempty"`
	StartDate         string    `json:"start_date,omitempty"`
	TotalDays         int       `json:"total_days"`
	IncludeWeekends   bool      `json:"include_weekends"`
	IncludeExceptions bool      `json:"include_exceptions"`
	Layers            []Layer   `json:"layers"`
	Items             []Item    `json:"items"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// CalendarSummary is the list projection of one calendar.
type CalendarSummary struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	StartDate string    `json:"start_date,omitempty"`
	TotalDays int       `json:"total_days"`
	LayerKeys []string  `json:"layer_keys"`
	ItemCount int       `json:"item_count"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DateChange reports one item that moved.
type DateChange struct {
	ItemID   string `json:"item_id"`
	LayerKey string `json:"layer_key"`
	From     string `json:"from"`
	To       string `json:"to"`
}

// ReflowResponse is a calendar plus the item dates an operation moved.
type ReflowResponse struct {
	Calendar Calendar     `json:"calendar"`
	Changes  []DateChange `json:"changes"`
}

// AddItemResponse is the created item plus the resulting reflow.
type AddItemResponse struct {
	Item     Item         `json:"item"`
	Calendar Calendar     `json:"calendar"`
	Changes  []DateChange `json:"changes"`
}

// ChangeEvent is one change-ledger row.
type ChangeEvent struct {
	ID         int64             `json:"id"`
	CalendarID string            `json:"calendar_id"`
	ItemID     string            `json:"item_id,omitempty"`
	Operation  string            `json:"operation"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
}

// ExceptionLookup reports blocked days of one calendar.
type ExceptionLookup struct {
	CalendarID        string              `json:"calendar_id"`
	IncludeWeekends   bool                `json:"include_weekends"`
	IncludeExceptions bool                `json:"include_exceptions"`
	Global            []string            `json:"global"`
	PerLayer          map[string][]string `json:"per_layer"`
	BlockedByLayer    map[string][]string `json:"blocked_by_layer"`
}

// LayerRequest defines one layer on calendar creation. AutoShift is the legacy chain flag.
type LayerRequest struct {
	Key                      string    `json:"key"`
	Name                     string    `json:"name"`
	Color                    string    `json:"color,omitempty"`
	Description              string    `json:"description,omitempty"`
	ChainBehavior            string    `json:"chain_behavior,omitempty"`
	AutoShift                *bool     `json:"auto_shift,omitempty"`
	Kind                     string    `json:"kind,omitempty"`
	RespectsGlobalExceptions *bool     `json:"respects_global_exceptions,omitempty"`
	Template                 *Template `json:"template,omitempty"`
}

// TemplateItemRequest seeds one generated item explicitly.
type TemplateItemRequest struct {
	Title        string `json:"title"`
	Description  string `json:"description,omitempty"`
	DurationDays int    `json:"duration_days,omitempty"`
}

// ExceptionRequest describes one blackout marker.
type ExceptionRequest struct {
	ID              string   `json:"id,omitempty"`
	Date            string   `json:"date"`
	Title           string   `json:"title,omitempty"`
	Description     string   `json:"description,omitempty"`
	TargetLayerKeys []string `json:"target_layer_keys,omitempty"`
}

// CreateCalendarRequest captures calendar creation input.
type CreateCalendarRequest struct {
	Name              string                           `json:"name"`
	PresetKey         string                           `json:"preset_key,omitempty"`
	StartDate         string                           `json:"start_date,omitempty"`
	TotalDays         int                              `json:"total_days,omitempty"`
	IncludeWeekends   *bool                            `json:"include_weekends,omitempty"`
	IncludeExceptions *bool                            `json:"include_exceptions,omitempty"`
	Layers            []LayerRequest                   `json:"layers"`
	TemplateItems     map[string][]TemplateItemRequest `json:"template_items,omitempty"`
	Exceptions        map[string][]ExceptionRequest    `json:"exceptions,omitempty"`
}

// LayerPatchRequest updates one layer. Nil fields are kept.
type LayerPatchRequest struct {
	Key                      string  `json:"key"`
	Name                     *string `json:"name,omitempty"`
	Color                    *string `json:"color,omitempty"`
	Description              *string `json:"description,omitempty"`
	ChainBehavior            *string `json:"chain_behavior,omitempty"`
	Kind                     *string `json:"kind,omitempty"`
	RespectsGlobalExceptions *bool   `json:"respects_global_exceptions,omitempty"`
}

// UpdateCalendarRequest patches calendar metadata.
type UpdateCalendarRequest struct {
	CalendarID        string              `json:"calendar_id,omitempty"`
	Name              *string             `json:"name,omitempty"`
	IncludeWeekends   *bool               `json:"include_weekends,omitempty"`
	IncludeExceptions *bool               `json:"include_exceptions,omitempty"`
	Layers            []LayerPatchRequest `json:"layers,omitempty"`
}

// ShiftRequest moves one item and its downstream chain.
type ShiftRequest struct {
	CalendarID string   `json:"calendar_id,omitempty"`
	ItemID     string   `json:"item_id"`
	DeltaDays  int      `json:"delta_days"`
	LayerKeys  []string `json:"layer_keys,omitempty"`
}

// SplitRequest divides one item into parts.
type SplitRequest struct {
	CalendarID string `json:"calendar_id,omitempty"`
	ItemID     string `json:"item_id"`
	Parts      int    `json:"parts"`
}

// UnsplitRequest collapses one split group. Either id selects the group.
type UnsplitRequest struct {
	CalendarID   string `json:"calendar_id,omitempty"`
	ItemID       string `json:"item_id,omitempty"`
	SplitGroupID string `json:"split_group_id,omitempty"`
}

// AddItemRequest appends one item to a layer. An empty date means "after the last item".
type AddItemRequest struct {
	CalendarID      string            `json:"calendar_id,omitempty"`
	LayerKey        string            `json:"layer_key"`
	Date            string            `json:"date,omitempty"`
	Title           string            `json:"title"`
	Label           string            `json:"label,omitempty"`
	Description     string            `json:"description,omitempty"`
	Notes           string            `json:"notes,omitempty"`
	DurationDays    int               `json:"duration_days,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
	TargetLayerKeys []string          `json:"target_layer_keys,omitempty"`
}

// UpdateExceptionsRequest replaces or merges one exception layer's markers.
type UpdateExceptionsRequest struct {
	CalendarID        string             `json:"calendar_id,omitempty"`
	LayerKey          string             `json:"layer_key,omitempty"`
	Mode              string             `json:"mode,omitempty"`
	IncludeExceptions *bool              `json:"include_exceptions,omitempty"`
	Exceptions        []ExceptionRequest `json:"exceptions"`
}

// CalendarService is the calendar surface shared by the HTTP and MCP adapters.
type CalendarService interface {
	ListCalendars(context.Context) ([]CalendarSummary, error)
	GetCalendar(context.Context, string) (Calendar, error)
	CreateCalendar(context.Context, CreateCalendarRequest) (Calendar, error)
	UpdateCalendar(context.Context, UpdateCalendarRequest) (ReflowResponse, error)
	DeleteCalendar(context.Context, string) error
	ShiftItems(context.Context, ShiftRequest) (ReflowResponse, error)
	PreviewShift(context.Context, ShiftRequest) (ReflowResponse, error)
	SplitItem(context.Context, SplitRequest) (ReflowResponse, error)
	UnsplitItem(context.Context, UnsplitRequest) (ReflowResponse, error)
	AddItem(context.Context, AddItemRequest) (AddItemResponse, error)
	UpdateExceptions(context.Context, UpdateExceptionsRequest) (ReflowResponse, error)
	ExceptionLookup(context.Context, string) (ExceptionLookup, error)
	ListChanges(context.Context, string, int) ([]ChangeEvent, error)
}

// ExportService renders calendars in portable formats.
type ExportService interface {
	ExportDocument(context.Context, string) (app.CalendarDocument, error)
	ExportICS(context.Context, string) (string, error)
}
