// Package httpapi provides the REST HTTP adapter for the server surfaces.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/hylla/flexcal/internal/adapters/server/common"
)

// maxRequestBodyBytes limits decoded JSON payload size for fail-closed request handling.
const maxRequestBodyBytes int64 = 1 << 20

// Handler serves the versioned API subrouter mounted under `/api/v1`.
type Handler struct {
	calendars common.CalendarService
	exports   common.ExportService
}

// APIError represents one structured API failure response.
type APIError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Hint    string         `json:"hint,omitempty"`
	Context map[string]any `json:"context,omitempty"`
}

// ErrorEnvelope wraps one structured API error.
type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

// NewHandler constructs one HTTP API adapter from calendar and optional export services.
func NewHandler(calendars common.CalendarService, exports common.ExportService) *Handler {
	return &Handler{
		calendars: calendars,
		exports:   exports,
	}
}

// ServeHTTP routes one versioned API request to the matching handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.calendars == nil {
		writeJSONError(w, http.StatusServiceUnavailable, APIError{
			Code:    "service_unavailable",
			Message: "calendar service is not configured",
		})
		return
	}
	path := normalizePath(r.URL.Path)
	if path == "calendars" {
		switch r.Method {
		case http.MethodGet:
			h.handleListCalendars(w, r)
		case http.MethodPost:
			h.handleCreateCalendar(w, r)
		default:
			writeMethodNotAllowed(w, http.MethodGet, http.MethodPost)
		}
		return
	}

	calendarID, action, ok := resolveCalendarRoute(path)
	if !ok {
		writeJSONError(w, http.StatusNotFound, APIError{
			Code:    "not_found",
			Message: "endpoint not found",
		})
		return
	}
	switch action {
	case "":
		switch r.Method {
		case http.MethodGet:
			h.handleGetCalendar(w, r, calendarID)
		case http.MethodPatch:
			h.handleUpdateCalendar(w, r, calendarID)
		case http.MethodDelete:
			h.handleDeleteCalendar(w, r, calendarID)
		default:
			writeMethodNotAllowed(w, http.MethodGet, http.MethodPatch, http.MethodDelete)
		}
	case "shift", "shift/preview":
		if r.Method != http.MethodPost {
			writeMethodNotAllowed(w, http.MethodPost)
			return
		}
		h.handleShift(w, r, calendarID, action == "shift/preview")
	case "split":
		if r.Method != http.MethodPost {
			writeMethodNotAllowed(w, http.MethodPost)
			return
		}
		h.handleSplit(w, r, calendarID)
	case "unsplit":
		if r.Method != http.MethodPost {
			writeMethodNotAllowed(w, http.MethodPost)
			return
		}
		h.handleUnsplit(w, r, calendarID)
	case "events":
		if r.Method != http.MethodPost {
			writeMethodNotAllowed(w, http.MethodPost)
			return
		}
		h.handleAddItem(w, r, calendarID)
	case "exceptions":
		if r.Method != http.MethodPatch {
			writeMethodNotAllowed(w, http.MethodPatch)
			return
		}
		h.handleUpdateExceptions(w, r, calendarID)
	case "exceptions/lookup":
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w, http.MethodGet)
			return
		}
		h.handleExceptionLookup(w, r, calendarID)
	case "changes":
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w, http.MethodGet)
			return
		}
		h.handleListChanges(w, r, calendarID)
	case "export", "export.ics":
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w, http.MethodGet)
			return
		}
		h.handleExport(w, r, calendarID, action == "export.ics")
	default:
		writeJSONError(w, http.StatusNotFound, APIError{
			Code:    "not_found",
			Message: "endpoint not found",
		})
	}
}

// handleListCalendars serves GET `/calendars`.
func (h *Handler) handleListCalendars(w http.ResponseWriter, r *http.Request) {
	calendars, err := h.calendars.ListCalendars(r.Context())
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"calendars": calendars,
	})
}

// handleCreateCalendar serves POST `/calendars`.
func (h *Handler) handleCreateCalendar(w http.ResponseWriter, r *http.Request) {
	var req common.CreateCalendarRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	cal, err := h.calendars.CreateCalendar(r.Context(), req)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, cal)
}

// handleGetCalendar serves GET `/calendars/{id}`.
func (h *Handler) handleGetCalendar(w http.ResponseWriter, r *http.Request, calendarID string) {
	cal, err := h.calendars.GetCalendar(r.Context(), calendarID)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cal)
}

// handleUpdateCalendar serves PATCH `/calendars/{id}`.
func (h *Handler) handleUpdateCalendar(w http.ResponseWriter, r *http.Request, calendarID string) {
	var req common.UpdateCalendarRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	req.CalendarID = calendarID
	res, err := h.calendars.UpdateCalendar(r.Context(), req)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleDeleteCalendar serves DELETE `/calendars/{id}`.
func (h *Handler) handleDeleteCalendar(w http.ResponseWriter, r *http.Request, calendarID string) {
	if err := h.calendars.DeleteCalendar(r.Context(), calendarID); err != nil {
		writeErrorFrom(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleShift serves POST `/calendars/{id}/shift` and `/calendars/{id}/shift/preview`.
func (h *Handler) handleShift(w http.ResponseWriter, r *http.Request, calendarID string, preview bool) {
	var req common.ShiftRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	req.CalendarID = calendarID
	var (
		res common.ReflowResponse
		err error
	)
	if preview {
		res, err = h.calendars.PreviewShift(r.Context(), req)
	} else {
		res, err = h.calendars.ShiftItems(r.Context(), req)
	}
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleSplit serves POST `/calendars/{id}/split`.
func (h *Handler) handleSplit(w http.ResponseWriter, r *http.Request, calendarID string) {
	var req common.SplitRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	req.CalendarID = calendarID
	res, err := h.calendars.SplitItem(r.Context(), req)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleUnsplit serves POST `/calendars/{id}/unsplit`.
func (h *Handler) handleUnsplit(w http.ResponseWriter, r *http.Request, calendarID string) {
	var req common.UnsplitRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	req.CalendarID = calendarID
	res, err := h.calendars.UnsplitItem(r.Context(), req)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleAddItem serves POST `/calendars/{id}/events`.
func (h *Handler) handleAddItem(w http.ResponseWriter, r *http.Request, calendarID string) {
	var req common.AddItemRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	req.CalendarID = calendarID
	res, err := h.calendars.AddItem(r.Context(), req)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// handleUpdateExceptions serves PATCH `/calendars/{id}/exceptions`.
func (h *Handler) handleUpdateExceptions(w http.ResponseWriter, r *http.Request, calendarID string) {
	var req common.UpdateExceptionsRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	req.CalendarID = calendarID
	res, err := h.calendars.UpdateExceptions(r.Context(), req)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleExceptionLookup serves GET `/calendars/{id}/exceptions/lookup`.
func (h *Handler) handleExceptionLookup(w http.ResponseWriter, r *http.Request, calendarID string) {
	lookup, err := h.calendars.ExceptionLookup(r.Context(), calendarID)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lookup)
}

// handleListChanges serves GET `/calendars/{id}/changes`.
func (h *Handler) handleListChanges(w http.ResponseWriter, r *http.Request, calendarID string) {
	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeJSONError(w, http.StatusBadRequest, APIError{
				Code:    "invalid_request",
				Message: "limit must be a non-negative integer",
			})
			return
		}
		limit = parsed
	}
	events, err := h.calendars.ListChanges(r.Context(), calendarID, limit)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"events": events,
	})
}

// handleExport serves GET `/calendars/{id}/export` and `/calendars/{id}/export.ics`.
func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request, calendarID string, asICS bool) {
	if h.exports == nil {
		writeJSONError(w, http.StatusNotImplemented, APIError{
			Code:    "not_implemented",
			Message: "export APIs are not available",
		})
		return
	}
	if !asICS {
		doc, err := h.exports.ExportDocument(r.Context(), calendarID)
		if err != nil {
			writeErrorFrom(w, err)
			return
		}
		writeJSON(w, http.StatusOK, doc)
		return
	}
	body, err := h.exports.ExportICS(r.Context(), calendarID)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.ics"`, calendarID))
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, body)
}

// resolveCalendarRoute parses `calendars/{id}[/{action}]` and returns `{id}` and `{action}`.
func resolveCalendarRoute(path string) (string, string, bool) {
	const prefix = "calendars/"
	if !strings.HasPrefix(path, prefix) {
		return "", "", false
	}
	rest := strings.TrimPrefix(path, prefix)
	id, action, _ := strings.Cut(rest, "/")
	id = strings.TrimSpace(id)
	if id == "" {
		return "", "", false
	}
	return id, action, true
}

// normalizePath canonicalizes one request path for route matching.
func normalizePath(path string) string {
	path = strings.TrimSpace(path)
	path = strings.Trim(path, "/")
	return path
}

// writeErrorFrom maps adapter errors into structured HTTP responses.
func writeErrorFrom(w http.ResponseWriter, err error) {
	switch {
	case err == nil:
		writeJSONError(w, http.StatusInternalServerError, APIError{
			Code:    "internal_error",
			Message: "unknown error",
		})
	case errors.Is(err, common.ErrNotFound):
		writeJSONError(w, http.StatusNotFound, APIError{
			Code:    "not_found",
			Message: err.Error(),
		})
	case errors.Is(err, common.ErrConflict):
		writeJSONError(w, http.StatusConflict, APIError{
			Code:    "already_split",
			Message: err.Error(),
			Hint:    "Unsplit the item before splitting it again.",
		})
	case errors.Is(err, common.ErrNoValidDate):
		writeJSONError(w, http.StatusUnprocessableEntity, APIError{
			Code:    "no_valid_date",
			Message: err.Error(),
			Hint:    "Check include_weekends and the calendar's exception days.",
		})
	case errors.Is(err, common.ErrInvalidRequest):
		writeJSONError(w, http.StatusBadRequest, APIError{
			Code:    "invalid_request",
			Message: err.Error(),
		})
	default:
		writeJSONError(w, http.StatusInternalServerError, APIError{
			Code:    "internal_error",
			Message: err.Error(),
		})
	}
}

// writeMethodNotAllowed writes a structured 405 response with `Allow` headers.
func writeMethodNotAllowed(w http.ResponseWriter, methods ...string) {
	if len(methods) > 0 {
		w.Header().Set("Allow", strings.Join(methods, ", "))
	}
	writeJSONError(w, http.StatusMethodNotAllowed, APIError{
		Code:    "method_not_allowed",
		Message: "method not allowed",
	})
}

// writeJSONError writes one structured error envelope.
func writeJSONError(w http.ResponseWriter, statusCode int, apiErr APIError) {
	writeJSON(w, statusCode, ErrorEnvelope{Error: apiErr})
}

// writeJSON writes one JSON response envelope.
func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, fmt.Sprintf(`{"error":{"code":"encode_error","message":"%s"}}`, err.Error()), http.StatusInternalServerError)
	}
}

// decodeJSONBody decodes one required JSON request body with strict shape checks.
func decodeJSONBody(ctx context.Context, w http.ResponseWriter, r *http.Request, out any) error {
	reader := http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	defer reader.Close()

	decoder := json.NewDecoder(reader)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(out); err != nil {
		return fmt.Errorf("decode request body: %w", errors.Join(common.ErrInvalidRequest, err))
	}
	// Reject trailing payloads so malformed JSON bodies fail closed.
	if err := decoder.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode request body: trailing content: %w", common.ErrInvalidRequest)
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("request canceled: %w", ctx.Err())
	default:
		return nil
	}
}
