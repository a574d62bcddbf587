package ops

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hpungsan/gather/internal/errors"
	"github.com/hpungsan/gather/internal/priority"
	"github.com/hpungsan/gather/internal/todo"
)

// UpdateInput contains parameters for the Update operation.
type UpdateInput struct {
	ID string

	// Editable fields (nil = don't change)
	Title        *string
	Description  *string
	DueDate      *string // YYYY-MM-DD
	Tags         *[]string
	BasePriority *int
	ActionItem   *bool
}

// Update edits a todo by hand and recomputes its priority.
func Update(ctx context.Context, store todo.Store, scorer *priority.Scorer, input UpdateInput) (*todo.Todo, error) {
	id, err := ValidateID(input.ID)
	if err != nil {
		return nil, err
	}

	if input.Title == nil && input.Description == nil && input.DueDate == nil &&
		input.Tags == nil && input.BasePriority == nil && input.ActionItem == nil {
		return nil, errors.NewInvalidRequest("at least one editable field must be provided")
	}

	var patch todo.Patch
	if input.Title != nil {
		title := strings.TrimSpace(*input.Title)
		if title == "" {
			return nil, errors.NewInvalidRequest("title must not be empty")
		}
		patch.Title = &title
	}
	patch.Description = input.Description
	patch.ActionItem = input.ActionItem

	if input.DueDate != nil {
		due, err := time.Parse("2006-01-02", strings.TrimSpace(*input.DueDate))
		if err != nil {
			return nil, errors.NewInvalidRequest(fmt.Sprintf("invalid due date %q, want YYYY-MM-DD", *input.DueDate))
		}
		patch.DueDate = &due
	}
	if input.Tags != nil {
		tags := todo.TagSet(*input.Tags...)
		patch.Tags = &tags
	}
	if input.BasePriority != nil {
		p := *input.BasePriority
		if p < todo.MinPriority || p > todo.MaxPriority {
			return nil, errors.NewInvalidRequest(fmt.Sprintf("priority must be between %d and %d", todo.MinPriority, todo.MaxPriority))
		}
		patch.BasePriority = &p
	}

	current, err := store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	next := patch.Apply(*current)
	score := scorer.Score(next)
	patch.Priority = &score

	return store.Update(ctx, id, patch)
}
