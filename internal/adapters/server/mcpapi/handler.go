// Package mcpapi provides a stateless MCP streamable-HTTP adapter.
package mcpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/hylla/flexcal/internal/adapters/server/common"
)

// Config captures MCP transport configuration.
type Config struct {
	ServerName    string
	ServerVersion string
	EndpointPath  string
}

// Handler wraps one stateless MCP streamable HTTP handler.
type Handler struct {
	httpHandler http.Handler
}

// NewHandler builds one stateless MCP adapter exposing calendar read and reflow tools.
func NewHandler(cfg Config, calendars common.CalendarService) (*Handler, error) {
	if calendars == nil {
		return nil, fmt.Errorf("calendar service is required")
	}
	cfg = normalizeConfig(cfg)

	mcpSrv := mcpserver.NewMCPServer(
		cfg.ServerName,
		cfg.ServerVersion,
		mcpserver.WithToolCapabilities(false),
	)
	registerCalendarTools(mcpSrv, calendars)
	registerReflowTools(mcpSrv, calendars)
	registerExceptionTools(mcpSrv, calendars)

	streamable := mcpserver.NewStreamableHTTPServer(
		mcpSrv,
		mcpserver.WithEndpointPath(cfg.EndpointPath),
		mcpserver.WithStateLess(true),
	)
	return &Handler{httpHandler: streamable}, nil
}

// ServeHTTP handles one MCP streamable HTTP request.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.httpHandler == nil {
		http.Error(w, "mcp handler unavailable", http.StatusServiceUnavailable)
		return
	}
	h.httpHandler.ServeHTTP(w, r)
}

// normalizeConfig applies deterministic defaults to MCP adapter config.
func normalizeConfig(cfg Config) Config {
	cfg.ServerName = strings.TrimSpace(cfg.ServerName)
	if cfg.ServerName == "" {
		cfg.ServerName = "flexcal"
	}
	cfg.ServerVersion = strings.TrimSpace(cfg.ServerVersion)
	if cfg.ServerVersion == "" {
		cfg.ServerVersion = "dev"
	}
	cfg.EndpointPath = strings.TrimSpace(cfg.EndpointPath)
	if cfg.EndpointPath == "" {
		cfg.EndpointPath = "/mcp"
	}
	if !strings.HasPrefix(cfg.EndpointPath, "/") {
		cfg.EndpointPath = "/" + cfg.EndpointPath
	}
	cfg.EndpointPath = "/" + strings.Trim(cfg.EndpointPath, "/")
	return cfg
}

// registerCalendarTools registers the calendar read tools.
func registerCalendarTools(srv *mcpserver.MCPServer, calendars common.CalendarService) {
	srv.AddTool(
		mcp.NewTool(
			"flexcal.list_calendars",
			mcp.WithDescription("List calendars, most recently updated first."),
		),
		func(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			rows, err := calendars.ListCalendars(ctx)
			if err != nil {
				return toolResultFromError(err), nil
			}
			result, err := mcp.NewToolResultJSON(map[string]any{
				"calendars": rows,
			})
			if err != nil {
				return nil, fmt.Errorf("encode list_calendars result: %w", err)
			}
			return result, nil
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"flexcal.get_calendar",
			mcp.WithDescription("Return one calendar with its layers and scheduled items."),
			mcp.WithString("calendar_id", mcp.Required(), mcp.Description("Calendar identifier")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			calendarID, err := req.RequireString("calendar_id")
			if err != nil {
				return invalidRequestToolResult(err), nil
			}
			cal, err := calendars.GetCalendar(ctx, calendarID)
			if err != nil {
				return toolResultFromError(err), nil
			}
			result, err := mcp.NewToolResultJSON(cal)
			if err != nil {
				return nil, fmt.Errorf("encode get_calendar result: %w", err)
			}
			return result, nil
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"flexcal.list_changes",
			mcp.WithDescription("List one calendar's change events, newest first."),
			mcp.WithString("calendar_id", mcp.Required(), mcp.Description("Calendar identifier")),
			mcp.WithNumber("limit", mcp.Description("Maximum rows to return")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			calendarID, err := req.RequireString("calendar_id")
			if err != nil {
				return invalidRequestToolResult(err), nil
			}
			events, err := calendars.ListChanges(ctx, calendarID, req.GetInt("limit", 25))
			if err != nil {
				return toolResultFromError(err), nil
			}
			result, err := mcp.NewToolResultJSON(map[string]any{
				"events": events,
			})
			if err != nil {
				return nil, fmt.Errorf("encode list_changes result: %w", err)
			}
			return result, nil
		},
	)
}

// registerReflowTools registers shift, split, and unsplit tools.
func registerReflowTools(srv *mcpserver.MCPServer, calendars common.CalendarService) {
	shiftTool := func(name, description string, preview bool) {
		srv.AddTool(
			mcp.NewTool(
				name,
				mcp.WithDescription(description),
				mcp.WithString("calendar_id", mcp.Required(), mcp.Description("Calendar identifier")),
				mcp.WithString("item_id", mcp.Required(), mcp.Description("Anchor item identifier")),
				mcp.WithNumber("delta_days", mcp.Required(), mcp.Description("Calendar days to move the anchor; negative moves earlier")),
				mcp.WithArray("layer_keys", mcp.Description("Extra linked layers to cascade into"), mcp.WithStringItems()),
			),
			func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
				calendarID, err := req.RequireString("calendar_id")
				if err != nil {
					return invalidRequestToolResult(err), nil
				}
				itemID, err := req.RequireString("item_id")
				if err != nil {
					return invalidRequestToolResult(err), nil
				}
				delta, err := req.RequireInt("delta_days")
				if err != nil {
					return invalidRequestToolResult(err), nil
				}
				in := common.ShiftRequest{
					CalendarID: calendarID,
					ItemID:     itemID,
					DeltaDays:  delta,
					LayerKeys:  req.GetStringSlice("layer_keys", nil),
				}
				var res common.ReflowResponse
				if preview {
					res, err = calendars.PreviewShift(ctx, in)
				} else {
					res, err = calendars.ShiftItems(ctx, in)
				}
				if err != nil {
					return toolResultFromError(err), nil
				}
				result, err := mcp.NewToolResultJSON(res)
				if err != nil {
					return nil, fmt.Errorf("encode %s result: %w", name, err)
				}
				return result, nil
			},
		)
	}
	shiftTool("flexcal.preview_shift", "Compute the dates a shift would produce without saving it.", true)
	shiftTool("flexcal.shift_items", "Shift one item and reflow its downstream chain.", false)

	srv.AddTool(
		mcp.NewTool(
			"flexcal.split_item",
			mcp.WithDescription("Split one item into 2-6 consecutive parts."),
			mcp.WithString("calendar_id", mcp.Required(), mcp.Description("Calendar identifier")),
			mcp.WithString("item_id", mcp.Required(), mcp.Description("Item identifier")),
			mcp.WithNumber("parts", mcp.Required(), mcp.Description("Number of parts")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			calendarID, err := req.RequireString("calendar_id")
			if err != nil {
				return invalidRequestToolResult(err), nil
			}
			itemID, err := req.RequireString("item_id")
			if err != nil {
				return invalidRequestToolResult(err), nil
			}
			parts, err := req.RequireInt("parts")
			if err != nil {
				return invalidRequestToolResult(err), nil
			}
			res, err := calendars.SplitItem(ctx, common.SplitRequest{
				CalendarID: calendarID,
				ItemID:     itemID,
				Parts:      parts,
			})
			if err != nil {
				return toolResultFromError(err), nil
			}
			result, err := mcp.NewToolResultJSON(res)
			if err != nil {
				return nil, fmt.Errorf("encode split_item result: %w", err)
			}
			return result, nil
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"flexcal.unsplit_item",
			mcp.WithDescription("Collapse one split group back into a single item."),
			mcp.WithString("calendar_id", mcp.Required(), mcp.Description("Calendar identifier")),
			mcp.WithString("item_id", mcp.Description("Any part of the split group")),
			mcp.WithString("split_group_id", mcp.Description("Split group identifier")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			calendarID, err := req.RequireString("calendar_id")
			if err != nil {
				return invalidRequestToolResult(err), nil
			}
			res, err := calendars.UnsplitItem(ctx, common.UnsplitRequest{
				CalendarID:   calendarID,
				ItemID:       req.GetString("item_id", ""),
				SplitGroupID: req.GetString("split_group_id", ""),
			})
			if err != nil {
				return toolResultFromError(err), nil
			}
			result, err := mcp.NewToolResultJSON(res)
			if err != nil {
				return nil, fmt.Errorf("encode unsplit_item result: %w", err)
			}
			return result, nil
		},
	)
}

// registerExceptionTools registers blocked-day lookup.
func registerExceptionTools(srv *mcpserver.MCPServer, calendars common.CalendarService) {
	srv.AddTool(
		mcp.NewTool(
			"flexcal.exception_lookup",
			mcp.WithDescription("Report blocked days globally, per exception target, and per standard layer."),
			mcp.WithString("calendar_id", mcp.Required(), mcp.Description("Calendar identifier")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			calendarID, err := req.RequireString("calendar_id")
			if err != nil {
				return invalidRequestToolResult(err), nil
			}
			lookup, err := calendars.ExceptionLookup(ctx, calendarID)
			if err != nil {
				return toolResultFromError(err), nil
			}
			result, err := mcp.NewToolResultJSON(lookup)
			if err != nil {
				return nil, fmt.Errorf("encode exception_lookup result: %w", err)
			}
			return result, nil
		},
	)
}

// invalidRequestToolResult maps argument errors into MCP-visible invalid_request results.
func invalidRequestToolResult(err error) *mcp.CallToolResult {
	return mcp.NewToolResultError("invalid_request: " + err.Error())
}

// toolResultFromError maps service errors into MCP-visible tool errors.
func toolResultFromError(err error) *mcp.CallToolResult {
	switch {
	case err == nil:
		return mcp.NewToolResultError("unknown error")
	case errors.Is(err, common.ErrInvalidRequest):
		return mcp.NewToolResultError("invalid_request: " + err.Error())
	case errors.Is(err, common.ErrNotFound):
		return mcp.NewToolResultError("not_found: " + err.Error())
	case errors.Is(err, common.ErrConflict):
		return mcp.NewToolResultError("already_split: " + err.Error())
	case errors.Is(err, common.ErrNoValidDate):
		return mcp.NewToolResultError("no_valid_date: " + err.Error())
	default:
		return mcp.NewToolResultError("internal_error: " + err.Error())
	}
}
