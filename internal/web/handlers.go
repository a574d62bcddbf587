package web

import (
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/hpungsan/gather/internal/config"
	"github.com/hpungsan/gather/internal/errors"
	"github.com/hpungsan/gather/internal/ledger"
	"github.com/hpungsan/gather/internal/ops"
	"github.com/hpungsan/gather/internal/priority"
	"github.com/hpungsan/gather/internal/todo"
)

// recentRuns is how many audit entries the backfill page shows.
const recentRuns = 20

// Handlers contains HTTP route handlers for the dashboard.
type Handlers struct {
	store    todo.Store
	scorer   *priority.Scorer
	cfg      *config.Config
	progress *ledger.Progress
	audit    *ledger.Audit
	renderer *Renderer
	logger   zerolog.Logger
}

// HandleList handles GET /todos: todos ordered by priority.
func (h *Handlers) HandleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	status := q.Get("status")

	input := ops.ListInput{
		Source: q.Get("source"),
		Tag:    q.Get("tag"),
		Limit:  parseIntParam(r, "limit", ops.DefaultListLimit),
		Offset: parseIntParam(r, "offset", 0),
	}
	if status != "" {
		input.Statuses = []string{status}
	}

	result, err := ops.List(r.Context(), h.store, input)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, result)
		return
	}

	h.renderer.renderPage(w, "list", ListPageData{
		PageData:   h.renderer.page("Todos", "todos"),
		Items:      result.Items,
		Pagination: result.Pagination,
		Status:     status,
		Source:     input.Source,
		Tag:        input.Tag,
		Sources:    todo.AllSources,
	})
}

// HandleDetail handles GET /todos/{id}: one todo with its description rendered as markdown.
func (h *Handlers) HandleDetail(w http.ResponseWriter, r *http.Request) {
	t, err := ops.Get(r.Context(), h.store, r.PathValue("id"))
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, t)
		return
	}

	h.renderer.renderPage(w, "detail", DetailPageData{
		PageData:     h.renderer.page(t.Title, "todos"),
		Todo:         t,
		RenderedHTML: renderMarkdown(t.Description),
	})
}

// HandleComplete handles POST /todos/{id}/complete.
func (h *Handlers) HandleComplete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("todo ID is required"))
		return
	}

	result, err := ops.Complete(r.Context(), h.store, h.scorer, id)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	h.logger.Info().Str("todo_id", result.Todo.ID).Bool("changed", result.Changed).Msg("todo completed from dashboard")

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, result)
		return
	}

	http.Redirect(w, r, "/todos/"+result.Todo.ID, http.StatusSeeOther)
}

// HandleBackfill handles GET /backfill: per-source progress plus recent runs.
func (h *Handlers) HandleBackfill(w http.ResponseWriter, r *http.Request) {
	status, err := ops.BackfillStatus(r.Context(), h.store, h.cfg, h.progress)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	runs, err := ops.AuditList(h.audit, recentRuns)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, map[string]any{"status": status, "runs": runs.Entries})
		return
	}

	h.renderer.renderPage(w, "backfill", BackfillPageData{
		PageData: h.renderer.page("Backfill", "backfill"),
		Status:   status,
		Runs:     runs.Entries,
	})
}

// parseIntParam parses an integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	s := r.URL.Query().Get(name)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return v
}
