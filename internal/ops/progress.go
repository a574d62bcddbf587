package ops

import (
	"context"
	"time"

	"github.com/hpungsan/gather/internal/config"
	"github.com/hpungsan/gather/internal/ledger"
	"github.com/hpungsan/gather/internal/todo"
)

// SourceStatus is the backfill state of one source.
type SourceStatus struct {
	Source            todo.Source           `json:"source"`
	Enabled           bool                  `json:"enabled"`
	LastCompletedDate string                `json:"last_completed_date,omitempty"`
	ItemsCollected    int                   `json:"items_collected"`
	Errors            int                   `json:"errors"`
	StartedAt         *time.Time            `json:"started_at,omitempty"`
	UpdatedAt         *time.Time            `json:"updated_at,omitempty"`
	FailedChunks      []ledger.ChunkFailure `json:"failed_chunks"`
	CompletedChunks   []ledger.DayRange     `json:"completed_chunks,omitempty"`
}

// TodoCounts counts todos by status.
type TodoCounts struct {
	Pending    int `json:"pending"`
	InProgress int `json:"in_progress"`
	Completed  int `json:"completed"`
}

// BackfillStatusOutput contains the result of the BackfillStatus operation.
type BackfillStatusOutput struct {
	ProgressFile string         `json:"progress_file"`
	Sources      []SourceStatus `json:"sources"`
	Todos        TodoCounts     `json:"todos"`
}

// BackfillStatus reports per-source progress for every source that is
// enabled or has a progress entry, in the stable source order.
func BackfillStatus(ctx context.Context, store todo.Store, cfg *config.Config, progress *ledger.Progress) (*BackfillStatusOutput, error) {
	entries, err := progress.Load()
	if err != nil {
		return nil, err
	}

	out := &BackfillStatusOutput{ProgressFile: progress.Path(), Sources: []SourceStatus{}}
	for _, source := range todo.AllSources {
		e, ok := entries[source]
		enabled := cfg.SourceEnabled(string(source))
		if !ok && !enabled {
			continue
		}

		st := SourceStatus{
			Source:            source,
			Enabled:           enabled,
			LastCompletedDate: e.LastCompletedDate,
			ItemsCollected:    e.ItemsCollected,
			Errors:            e.Errors,
			StartedAt:         timePtr(e.StartedAt),
			UpdatedAt:         timePtr(e.UpdatedAt),
			FailedChunks:      e.FailedChunks,
			CompletedChunks:   e.CompletedChunks,
		}
		if st.FailedChunks == nil {
			st.FailedChunks = []ledger.ChunkFailure{}
		}
		out.Sources = append(out.Sources, st)
	}

	counts := []struct {
		status todo.Status
		dst    *int
	}{
		{todo.StatusPending, &out.Todos.Pending},
		{todo.StatusInProgress, &out.Todos.InProgress},
		{todo.StatusCompleted, &out.Todos.Completed},
	}
	for _, c := range counts {
		n, err := store.Count(ctx, todo.Filter{Statuses: []todo.Status{c.status}})
		if err != nil {
			return nil, err
		}
		*c.dst = n
	}

	return out, nil
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
