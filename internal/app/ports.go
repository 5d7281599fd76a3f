package app

import (
	"context"

	"github.com/hylla/flexcal/internal/domain"
)

// Repository persists whole calendars. Every write replaces the full calendar
// document and appends its change event atomically.
type Repository interface {
	CreateCalendar(context.Context, domain.Calendar) error
	UpdateCalendar(context.Context, domain.Calendar, domain.ChangeEvent) error
	GetCalendar(context.Context, string) (domain.Calendar, error)
	ListCalendars(context.Context) ([]domain.CalendarSummary, error)
	DeleteCalendar(context.Context, string) error
	ListCalendarChangeEvents(context.Context, string, int) ([]domain.ChangeEvent, error)
}
