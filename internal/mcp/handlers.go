package mcp

import (
	"context"
	"encoding/json"
	stderrors "errors"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hpungsan/gather/internal/config"
	"github.com/hpungsan/gather/internal/errors"
	"github.com/hpungsan/gather/internal/ledger"
	"github.com/hpungsan/gather/internal/ops"
	"github.com/hpungsan/gather/internal/priority"
	"github.com/hpungsan/gather/internal/todo"
)

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	store    todo.Store
	scorer   *priority.Scorer
	cfg      *config.Config
	progress *ledger.Progress
	audit    *ledger.Audit
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(store todo.Store, scorer *priority.Scorer, cfg *config.Config, progress *ledger.Progress, audit *ledger.Audit) *Handlers {
	return &Handlers{store: store, scorer: scorer, cfg: cfg, progress: progress, audit: audit}
}

// ListRequest represents the arguments for todo_list.
type ListRequest struct {
	Statuses []string `json:"statuses,omitempty"`
	Source   string   `json:"source,omitempty"`
	Tag      string   `json:"tag,omitempty"`
	Limit    int      `json:"limit,omitempty"`
	Offset   int      `json:"offset,omitempty"`
}

// IDRequest represents the arguments of the single-todo tools.
type IDRequest struct {
	ID string `json:"id"`
}

// AuditListRequest represents the arguments for audit_list.
type AuditListRequest struct {
	Limit int `json:"limit,omitempty"`
}

// HandleList handles the todo_list tool call.
func (h *Handlers) HandleList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ListRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := ops.List(ctx, h.store, ops.ListInput{
		Statuses: input.Statuses,
		Source:   input.Source,
		Tag:      input.Tag,
		Limit:    input.Limit,
		Offset:   input.Offset,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleGet handles the todo_get tool call.
func (h *Handlers) HandleGet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[IDRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := ops.Get(ctx, h.store, input.ID)
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleComplete handles the todo_complete tool call.
func (h *Handlers) HandleComplete(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[IDRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := ops.Complete(ctx, h.store, h.scorer, input.ID)
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleStart handles the todo_start tool call.
func (h *Handlers) HandleStart(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[IDRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := ops.Start(ctx, h.store, h.scorer, input.ID)
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleBackfillStatus handles the backfill_status tool call.
func (h *Handlers) HandleBackfillStatus(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	result, err := ops.BackfillStatus(ctx, h.store, h.cfg, h.progress)
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleAuditList handles the audit_list tool call.
func (h *Handlers) HandleAuditList(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[AuditListRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := ops.AuditList(h.audit, input.Limit)
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// Result helpers

// errorResult creates an MCP error result from any error.
// Uses IsError: true so MCP clients recognize failures properly.
// Internal error details are not exposed.
func errorResult(err error) *mcp.CallToolResult {
	var payload map[string]any

	var gErr *errors.GatherError
	if stderrors.As(err, &gErr) {
		errorObj := map[string]any{
			"code":    gErr.Code,
			"message": gErr.Message,
			"status":  gErr.Status,
		}
		if gErr.Code == errors.ErrInternal {
			errorObj["message"] = "an internal error occurred"
		} else if gErr.Details != nil {
			errorObj["details"] = gErr.Details
		}
		payload = map[string]any{"error": errorObj}
	} else {
		payload = map[string]any{
			"error": map[string]any{
				"code":    "INTERNAL",
				"message": "an internal error occurred",
				"status":  500,
			},
		}
	}

	content, _ := json.Marshal(payload)
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// successResult creates an MCP success result from any data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
