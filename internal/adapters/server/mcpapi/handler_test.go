package mcpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hylla/flexcal/internal/adapters/server/common"
)

// stubCalendarService provides deterministic calendar responses for MCP tool tests.
type stubCalendarService struct {
	calendar common.Calendar
	reflow   common.ReflowResponse
	err      error

	lastShift      common.ShiftRequest
	lastPreview    bool
	lastSplit      common.SplitRequest
	lastUnsplit    common.UnsplitRequest
	lastCalendarID string
	lastLimit      int
}

func (s *stubCalendarService) ListCalendars(context.Context) ([]common.CalendarSummary, error) {
	if s.err != nil {
		return nil, s.err
	}
	return []common.CalendarSummary{{ID: s.calendar.ID, Name: s.calendar.Name}}, nil
}

func (s *stubCalendarService) GetCalendar(_ context.Context, id string) (common.Calendar, error) {
	s.lastCalendarID = id
	if s.err != nil {
		return common.Calendar{}, s.err
	}
	return s.calendar, nil
}

func (s *stubCalendarService) CreateCalendar(context.Context, common.CreateCalendarRequest) (common.Calendar, error) {
	return s.calendar, s.err
}

func (s *stubCalendarService) UpdateCalendar(context.Context, common.UpdateCalendarRequest) (common.ReflowResponse, error) {
	return s.reflow, s.err
}

func (s *stubCalendarService) DeleteCalendar(context.Context, string) error {
	return s.err
}

func (s *stubCalendarService) ShiftItems(_ context.Context, req common.ShiftRequest) (common.ReflowResponse, error) {
	s.lastShift, s.lastPreview = req, false
	return s.reflow, s.err
}

func (s *stubCalendarService) PreviewShift(_ context.Context, req common.ShiftRequest) (common.ReflowResponse, error) {
	s.lastShift, s.lastPreview = req, true
	return s.reflow, s.err
}

func (s *stubCalendarService) SplitItem(_ context.Context, req common.SplitRequest) (common.ReflowResponse, error) {
	s.lastSplit = req
	return s.reflow, s.err
}

func (s *stubCalendarService) UnsplitItem(_ context.Context, req common.UnsplitRequest) (common.ReflowResponse, error) {
	s.lastUnsplit = req
	return s.reflow, s.err
}

func (s *stubCalendarService) AddItem(context.Context, common.AddItemRequest) (common.AddItemResponse, error) {
	return common.AddItemResponse{}, s.err
}

func (s *stubCalendarService) UpdateExceptions(context.Context, common.UpdateExceptionsRequest) (common.ReflowResponse, error) {
	return s.reflow, s.err
}

func (s *stubCalendarService) ExceptionLookup(_ context.Context, id string) (common.ExceptionLookup, error) {
	s.lastCalendarID = id
	if s.err != nil {
		return common.ExceptionLookup{}, s.err
	}
	return common.ExceptionLookup{
		CalendarID:     id,
		Global:         []string{"2025-09-01"},
		BlockedByLayer: map[string][]string{"reference": {"2025-09-01"}},
	}, nil
}

func (s *stubCalendarService) ListChanges(_ context.Context, id string, limit int) ([]common.ChangeEvent, error) {
	s.lastCalendarID, s.lastLimit = id, limit
	if s.err != nil {
		return nil, s.err
	}
	return []common.ChangeEvent{{ID: 1, CalendarID: id, Operation: "create"}}, nil
}

func fixtureService() *stubCalendarService {
	cal := common.Calendar{
		ID:   "c1",
		Name: "Fall Term",
		Items: []common.Item{
			{ID: "r1", Date: "2025-08-04", LayerKey: "reference", SequenceIndex: 1, Title: "Lesson 1"},
		},
	}
	return &stubCalendarService{
		calendar: cal,
		reflow: common.ReflowResponse{
			Calendar: cal,
			Changes:  []common.DateChange{{ItemID: "r1", LayerKey: "reference", From: "2025-08-04", To: "2025-08-05"}},
		},
	}
}

// jsonRPCResponse models minimal JSON-RPC response fields used in MCP adapter tests.
type jsonRPCResponse struct {
	ID     float64        `json:"id"`
	Result map[string]any `json:"result"`
}

// callToolRequest constructs one deterministic tools/call JSON-RPC request payload.
func callToolRequest(id int, toolName string, arguments map[string]any) map[string]any {
	return map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"method":  "tools/call",
		"params": map[string]any{
			"name":      toolName,
			"arguments": arguments,
		},
	}
}

// toolResultText decodes the first text entry from one tool-call result payload.
func toolResultText(t *testing.T, result map[string]any) string {
	t.Helper()

	contentRaw, ok := result["content"].([]any)
	if !ok || len(contentRaw) == 0 {
		t.Fatalf("content missing in tool result: %#v", result)
	}
	first, ok := contentRaw[0].(map[string]any)
	if !ok {
		t.Fatalf("first content entry has unexpected type: %#v", contentRaw[0])
	}
	text, ok := first["text"].(string)
	if !ok {
		t.Fatalf("content text missing in tool result: %#v", first)
	}
	return text
}

// toolResultStructured decodes structuredContent as one map for stable assertions.
func toolResultStructured(t *testing.T, result map[string]any) map[string]any {
	t.Helper()
	structured, ok := result["structuredContent"].(map[string]any)
	if !ok {
		t.Fatalf("structuredContent missing in tool result: %#v", result)
	}
	return structured
}

// postJSONRPC sends one JSON-RPC payload and decodes the response body.
func postJSONRPC(t *testing.T, client *http.Client, url string, payload any) (*http.Response, jsonRPCResponse) {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewBuffer(body))
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	var decoded jsonRPCResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if err := resp.Body.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	return resp, decoded
}

// initializeRequest builds a deterministic MCP initialize request payload.
func initializeRequest() map[string]any {
	return map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "initialize",
		"params": map[string]any{
			"protocolVersion": mcp.LATEST_PROTOCOL_VERSION,
			"clientInfo": map[string]any{
				"name":    "flexcal-test",
				"version": "1.0.0",
			},
		},
	}
}

// startServer starts one MCP test server over svc and runs initialize.
func startServer(t *testing.T, svc common.CalendarService) *httptest.Server {
	t.Helper()
	handler, err := NewHandler(Config{}, svc)
	if err != nil {
		t.Fatalf("NewHandler() error = %v", err)
	}
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	_, _ = postJSONRPC(t, server.Client(), server.URL, initializeRequest())
	return server
}

// TestNewHandlerRequiresService verifies construction fails closed without a service.
func TestNewHandlerRequiresService(t *testing.T) {
	if _, err := NewHandler(Config{}, nil); err == nil {
		t.Fatal("NewHandler(nil) error = nil, want error")
	}
}

// TestHandlerUsesStatelessTransport verifies MCP transport does not issue session ids.
func TestHandlerUsesStatelessTransport(t *testing.T) {
	handler, err := NewHandler(Config{}, fixtureService())
	if err != nil {
		t.Fatalf("NewHandler() error = %v", err)
	}

	server := httptest.NewServer(handler)
	defer server.Close()

	resp, decoded := postJSONRPC(t, server.Client(), server.URL, initializeRequest())
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if decoded.ID != 1 {
		t.Fatalf("id = %v, want 1", decoded.ID)
	}
	if got := resp.Header.Get("Mcp-Session-Id"); got != "" {
		t.Fatalf("Mcp-Session-Id header = %q, want empty (stateless transport)", got)
	}
}

// TestHandlerRegistersCalendarTools verifies MCP tool discovery lists every flexcal tool.
func TestHandlerRegistersCalendarTools(t *testing.T) {
	server := startServer(t, fixtureService())
	_, toolsResp := postJSONRPC(t, server.Client(), server.URL, map[string]any{
		"jsonrpc": "2.0",
		"id":      2,
		"method":  "tools/list",
	})

	toolsRaw, ok := toolsResp.Result["tools"].([]any)
	if !ok {
		t.Fatalf("tools list payload missing tools: %#v", toolsResp.Result)
	}
	toolNames := make([]string, 0, len(toolsRaw))
	for _, toolRaw := range toolsRaw {
		toolMap, ok := toolRaw.(map[string]any)
		if !ok {
			continue
		}
		name, _ := toolMap["name"].(string)
		toolNames = append(toolNames, name)
	}
	for _, required := range []string{
		"flexcal.list_calendars",
		"flexcal.get_calendar",
		"flexcal.preview_shift",
		"flexcal.shift_items",
		"flexcal.split_item",
		"flexcal.unsplit_item",
		"flexcal.exception_lookup",
		"flexcal.list_changes",
	} {
		if !slices.Contains(toolNames, required) {
			t.Fatalf("tool list missing %s: %#v", required, toolNames)
		}
	}
}

// TestHandlerReadTools verifies list, get, lookup, and changes tool wiring.
func TestHandlerReadTools(t *testing.T) {
	svc := fixtureService()
	server := startServer(t, svc)

	_, listResp := postJSONRPC(t, server.Client(), server.URL, callToolRequest(2, "flexcal.list_calendars", map[string]any{}))
	rows, ok := toolResultStructured(t, listResp.Result)["calendars"].([]any)
	if !ok || len(rows) != 1 {
		t.Fatalf("calendars = %#v, want one row", rows)
	}

	_, getResp := postJSONRPC(t, server.Client(), server.URL, callToolRequest(3, "flexcal.get_calendar", map[string]any{
		"calendar_id": "c1",
	}))
	if got, _ := toolResultStructured(t, getResp.Result)["name"].(string); got != "Fall Term" {
		t.Fatalf("name = %q, want Fall Term", got)
	}

	_, lookupResp := postJSONRPC(t, server.Client(), server.URL, callToolRequest(4, "flexcal.exception_lookup", map[string]any{
		"calendar_id": "c1",
	}))
	global, _ := toolResultStructured(t, lookupResp.Result)["global"].([]any)
	if len(global) != 1 || global[0] != "2025-09-01" {
		t.Fatalf("global = %#v, want [2025-09-01]", global)
	}

	_, changesResp := postJSONRPC(t, server.Client(), server.URL, callToolRequest(5, "flexcal.list_changes", map[string]any{
		"calendar_id": "c1",
		"limit":       7,
	}))
	events, _ := toolResultStructured(t, changesResp.Result)["events"].([]any)
	if len(events) != 1 || svc.lastLimit != 7 {
		t.Fatalf("events = %#v limit = %d, want one event and limit 7", events, svc.lastLimit)
	}
}

// TestHandlerReflowTools verifies shift, preview, split, and unsplit argument mapping.
func TestHandlerReflowTools(t *testing.T) {
	svc := fixtureService()
	server := startServer(t, svc)

	_, previewResp := postJSONRPC(t, server.Client(), server.URL, callToolRequest(2, "flexcal.preview_shift", map[string]any{
		"calendar_id": "c1",
		"item_id":     "r1",
		"delta_days":  1,
		"layer_keys":  []string{"progress"},
	}))
	changes, _ := toolResultStructured(t, previewResp.Result)["changes"].([]any)
	if len(changes) != 1 {
		t.Fatalf("changes = %#v, want one change", changes)
	}
	if !svc.lastPreview || svc.lastShift.DeltaDays != 1 || !slices.Equal(svc.lastShift.LayerKeys, []string{"progress"}) {
		t.Fatalf("preview request = %#v preview=%v", svc.lastShift, svc.lastPreview)
	}

	_, _ = postJSONRPC(t, server.Client(), server.URL, callToolRequest(3, "flexcal.shift_items", map[string]any{
		"calendar_id": "c1",
		"item_id":     "r1",
		"delta_days":  -2,
	}))
	if svc.lastPreview || svc.lastShift.DeltaDays != -2 {
		t.Fatalf("shift request = %#v preview=%v", svc.lastShift, svc.lastPreview)
	}

	_, _ = postJSONRPC(t, server.Client(), server.URL, callToolRequest(4, "flexcal.split_item", map[string]any{
		"calendar_id": "c1",
		"item_id":     "r1",
		"parts":       3,
	}))
	if svc.lastSplit.Parts != 3 || svc.lastSplit.ItemID != "r1" {
		t.Fatalf("split request = %#v", svc.lastSplit)
	}

	_, _ = postJSONRPC(t, server.Client(), server.URL, callToolRequest(5, "flexcal.unsplit_item", map[string]any{
		"calendar_id":    "c1",
		"split_group_id": "g1",
	}))
	if svc.lastUnsplit.SplitGroupID != "g1" || svc.lastUnsplit.ItemID != "" {
		t.Fatalf("unsplit request = %#v", svc.lastUnsplit)
	}
}

// TestHandlerToolErrors verifies missing arguments and mapped service errors surface as tool errors.
func TestHandlerToolErrors(t *testing.T) {
	svc := fixtureService()
	server := startServer(t, svc)

	_, missingArgResp := postJSONRPC(t, server.Client(), server.URL, callToolRequest(2, "flexcal.split_item", map[string]any{
		"calendar_id": "c1",
		"item_id":     "r1",
	}))
	if isError, _ := missingArgResp.Result["isError"].(bool); !isError {
		t.Fatalf("isError = %v, want true", missingArgResp.Result["isError"])
	}
	if text := toolResultText(t, missingArgResp.Result); !strings.HasPrefix(text, "invalid_request:") {
		t.Fatalf("text = %q, want invalid_request prefix", text)
	}

	svc.err = errors.Join(common.ErrConflict, errors.New("already split"))
	_, mappedErrResp := postJSONRPC(t, server.Client(), server.URL, callToolRequest(3, "flexcal.split_item", map[string]any{
		"calendar_id": "c1",
		"item_id":     "r1",
		"parts":       2,
	}))
	if isError, _ := mappedErrResp.Result["isError"].(bool); !isError {
		t.Fatalf("isError = %v, want true", mappedErrResp.Result["isError"])
	}
	if text := toolResultText(t, mappedErrResp.Result); !strings.HasPrefix(text, "already_split:") {
		t.Fatalf("text = %q, want already_split prefix", text)
	}
}

// TestToolResultFromError verifies code prefixes for each transport sentinel.
func TestToolResultFromError(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{err: errors.Join(common.ErrInvalidRequest, errors.New("x")), want: "invalid_request:"},
		{err: errors.Join(common.ErrNotFound, errors.New("x")), want: "not_found:"},
		{err: errors.Join(common.ErrConflict, errors.New("x")), want: "already_split:"},
		{err: errors.Join(common.ErrNoValidDate, errors.New("x")), want: "no_valid_date:"},
		{err: errors.New("boom"), want: "internal_error:"},
	}
	for _, tc := range cases {
		result := toolResultFromError(tc.err)
		if !result.IsError {
			t.Fatalf("IsError = false for %v", tc.err)
		}
		text, ok := result.Content[0].(mcp.TextContent)
		if !ok {
			t.Fatalf("content[0] has unexpected type %T", result.Content[0])
		}
		if !strings.HasPrefix(text.Text, tc.want) {
			t.Fatalf("text = %q, want prefix %q", text.Text, tc.want)
		}
	}
}

// TestNormalizeConfig verifies MCP config defaults.
func TestNormalizeConfig(t *testing.T) {
	got := normalizeConfig(Config{EndpointPath: "tools/"})
	if got.ServerName != "flexcal" || got.ServerVersion != "dev" || got.EndpointPath != "/tools" {
		t.Fatalf("normalizeConfig() = %#v", got)
	}
}
