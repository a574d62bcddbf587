package mcp

import "github.com/mark3labs/mcp-go/mcp"

var listToolDef = mcp.NewTool("todo_list",
	mcp.WithDescription("List aggregated todos ordered by priority (1 = most urgent). Defaults to pending and in-progress items."),
	mcp.WithArray("statuses",
		mcp.Description(`Statuses to include: pending, in_progress, completed, or "all"`),
		mcp.WithStringItems(),
	),
	mcp.WithString("source", mcp.Description("Only todos from this source, e.g. linear, slack, github")),
	mcp.WithString("tag", mcp.Description("Only todos carrying this tag")),
	mcp.WithNumber("limit", mcp.Description("Max items (default 20, max 100)")),
	mcp.WithNumber("offset", mcp.Description("Items to skip")),
	mcp.WithReadOnlyHintAnnotation(true),
)

var getToolDef = mcp.NewTool("todo_get",
	mcp.WithDescription("Get one todo by ID, including completed ones."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Todo ID (ULID)")),
	mcp.WithReadOnlyHintAnnotation(true),
)

var completeToolDef = mcp.NewTool("todo_complete",
	mcp.WithDescription("Mark a todo completed. Completing an already completed todo is a no-op."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Todo ID (ULID)")),
	mcp.WithIdempotentHintAnnotation(true),
	mcp.WithDestructiveHintAnnotation(false),
)

var startToolDef = mcp.NewTool("todo_start",
	mcp.WithDescription("Mark a pending todo in progress."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Todo ID (ULID)")),
	mcp.WithIdempotentHintAnnotation(true),
	mcp.WithDestructiveHintAnnotation(false),
)

var backfillStatusToolDef = mcp.NewTool("backfill_status",
	mcp.WithDescription("Show per-source backfill progress: last completed date, counters and unresolved failed chunks, plus todo counts by status."),
	mcp.WithReadOnlyHintAnnotation(true),
)

var auditListToolDef = mcp.NewTool("audit_list",
	mcp.WithDescription("List recent collection runs, newest first."),
	mcp.WithNumber("limit", mcp.Description("Max entries (default 20, max 500)")),
	mcp.WithReadOnlyHintAnnotation(true),
)
