package ops

import (
	"context"

	"github.com/hpungsan/gather/internal/priority"
	"github.com/hpungsan/gather/internal/todo"
)

// rescorePageSize bounds how many todos are loaded at once.
const rescorePageSize = 200

// RescoreInput contains parameters for the Rescore operation.
type RescoreInput struct {
	DryRun bool
}

// PriorityChange records one todo whose effective priority moved.
type PriorityChange struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	From  int    `json:"from"`
	To    int    `json:"to"`
}

// RescoreOutput contains the result of the Rescore operation.
type RescoreOutput struct {
	Scanned int              `json:"scanned"`
	Changed int              `json:"changed"`
	DryRun  bool             `json:"dry_run"`
	Changes []PriorityChange `json:"changes"`
}

// Rescore recomputes the priority of every active todo. Due dates move closer
// every day, so stored priorities go stale without new ingestion.
func Rescore(ctx context.Context, store todo.Store, scorer *priority.Scorer, input RescoreInput) (*RescoreOutput, error) {
	out := &RescoreOutput{DryRun: input.DryRun, Changes: []PriorityChange{}}

	// Collect first: updating reorders the priority-sorted listing under the pager.
	var active []todo.Todo
	for offset := 0; ; offset += rescorePageSize {
		page, err := store.List(ctx, todo.Filter{Statuses: todo.ActiveStatuses, Limit: rescorePageSize, Offset: offset})
		if err != nil {
			return nil, err
		}
		active = append(active, page...)
		if len(page) < rescorePageSize {
			break
		}
	}

	for _, t := range active {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out.Scanned++

		score := scorer.Score(t)
		if score == t.Priority {
			continue
		}
		out.Changed++
		out.Changes = append(out.Changes, PriorityChange{ID: t.ID, Title: t.Title, From: t.Priority, To: score})

		if input.DryRun {
			continue
		}
		if _, err := store.Update(ctx, t.ID, todo.Patch{Priority: &score}); err != nil {
			return nil, err
		}
	}
	return out, nil
}
