package ops

import (
	"context"
	"fmt"

	"github.com/hpungsan/gather/internal/errors"
	"github.com/hpungsan/gather/internal/priority"
	"github.com/hpungsan/gather/internal/todo"
)

// StatusOutput is returned by Complete, Start and Reopen.
type StatusOutput struct {
	Todo    todo.Todo `json:"todo"`
	Changed bool      `json:"changed"`
}

// Allowed manual status changes. Setting the current status again is a no-op.
var statusTransitions = map[todo.Status][]todo.Status{
	todo.StatusPending:    {todo.StatusInProgress, todo.StatusCompleted},
	todo.StatusInProgress: {todo.StatusPending, todo.StatusCompleted},
	todo.StatusCompleted:  {todo.StatusPending},
}

// ValidateStatusTransition checks if a manual status change is allowed.
func ValidateStatusTransition(from, to todo.Status) error {
	if from == to {
		return nil
	}
	for _, allowed := range statusTransitions[from] {
		if allowed == to {
			return nil
		}
	}
	return errors.NewConflict(fmt.Sprintf("cannot move todo from %s to %s", from, to))
}

// Complete marks a todo completed. Completing a completed todo is a no-op.
func Complete(ctx context.Context, store todo.Store, scorer *priority.Scorer, id string) (*StatusOutput, error) {
	return setStatus(ctx, store, scorer, id, todo.StatusCompleted)
}

// Start marks a todo in progress. A completed todo must be reopened first.
func Start(ctx context.Context, store todo.Store, scorer *priority.Scorer, id string) (*StatusOutput, error) {
	return setStatus(ctx, store, scorer, id, todo.StatusInProgress)
}

// Reopen moves a todo back to pending.
func Reopen(ctx context.Context, store todo.Store, scorer *priority.Scorer, id string) (*StatusOutput, error) {
	return setStatus(ctx, store, scorer, id, todo.StatusPending)
}

// setStatus writes the new status and a fresh priority in one update.
func setStatus(ctx context.Context, store todo.Store, scorer *priority.Scorer, id string, to todo.Status) (*StatusOutput, error) {
	id, err := ValidateID(id)
	if err != nil {
		return nil, err
	}

	current, err := store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status == to {
		return &StatusOutput{Todo: *current}, nil
	}
	if err := ValidateStatusTransition(current.Status, to); err != nil {
		return nil, err
	}

	patch := todo.Patch{Status: &to}
	score := scorer.Score(patch.Apply(*current))
	patch.Priority = &score

	updated, err := store.Update(ctx, id, patch)
	if err != nil {
		return nil, err
	}
	return &StatusOutput{Todo: *updated, Changed: true}, nil
}
