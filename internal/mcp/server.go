// Package mcp exposes a read-only view of the logged-in user's diary to MCP clients.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"diary/internal/auth"
	"diary/internal/diary"
	"diary/internal/models"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

type Server struct {
	svc *diary.Service
}

func NewMCPServer(svc *diary.Service) *Server {
	return &Server{svc: svc}
}

func (s *Server) getEntriesHandler(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID, ok := auth.GetUserIDFromContext(ctx)
	if !ok {
		return mcp.NewToolResultError("not logged in"), nil
	}
	start, err := request.RequireString("start_date")
	if err != nil {
		return mcp.NewToolResultError("start_date is required"), nil
	}
	end, err := request.RequireString("end_date")
	if err != nil {
		return mcp.NewToolResultError("end_date is required"), nil
	}

	entries, err := s.svc.EntriesBetween(ctx, userID, start, end)
	if errors.Is(err, models.ErrInvalidDate) {
		return mcp.NewToolResultError("dates must be YYYY-MM-DD"), nil
	} else if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("database error: %v", err)), nil
	}

	if len(entries) == 0 {
		return mcp.NewToolResultText("No entries found for this date range."), nil
	}

	var parts []string
	for _, e := range entries {
		parts = append(parts, formatEntry(e))
	}
	return mcp.NewToolResultText(fmt.Sprintf("Found %d entries:\n%s", len(entries), strings.Join(parts, "\n\n"))), nil
}

func (s *Server) getEntryHandler(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID, ok := auth.GetUserIDFromContext(ctx)
	if !ok {
		return mcp.NewToolResultError("not logged in"), nil
	}
	date, err := request.RequireString("date")
	if err != nil {
		return mcp.NewToolResultError("date is required"), nil
	}

	e, err := s.svc.Entry(ctx, userID, date)
	if errors.Is(err, models.ErrInvalidDate) {
		return mcp.NewToolResultError("date must be YYYY-MM-DD"), nil
	} else if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("database error: %v", err)), nil
	}
	if e == nil {
		return mcp.NewToolResultText("No entry for " + date + "."), nil
	}
	return mcp.NewToolResultText(formatEntry(*e)), nil
}

func formatEntry(e models.Entry) string {
	s := fmt.Sprintf("[%s] %s", e.Date, diary.Label(e))
	if e.Content != "" {
		s += "\n" + e.Content
	}
	return s
}

// Handler returns the streamable HTTP endpoint. Tool calls run with the
// request context, so the session middleware decides whose diary is read.
func (s *Server) Handler() *server.StreamableHTTPServer {
	mcpServer := server.NewMCPServer("Diary", "1.0.0")

	mcpServer.AddTool(mcp.NewTool("get_entries",
		mcp.WithDescription("Retrieve your diary entries within a date range."),
		mcp.WithString("start_date", mcp.Required(), mcp.Description("First date of the range (YYYY-MM-DD), e.g. 2025-01-01")),
		mcp.WithString("end_date", mcp.Required(), mcp.Description("Last date of the range (YYYY-MM-DD), e.g. 2025-12-31")),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	), s.getEntriesHandler)

	mcpServer.AddTool(mcp.NewTool("get_entry",
		mcp.WithDescription("Retrieve your diary entry for one date."),
		mcp.WithString("date", mcp.Required(), mcp.Description("The date (YYYY-MM-DD)")),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	), s.getEntryHandler)

	return server.NewStreamableHTTPServer(mcpServer, server.WithStateLess(true))
}
