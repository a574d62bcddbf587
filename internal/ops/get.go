package ops

import (
	"context"

	"github.com/hpungsan/gather/internal/todo"
)

// Get retrieves a todo by ID, in any status.
func Get(ctx context.Context, store todo.Store, id string) (*todo.Todo, error) {
	id, err := ValidateID(id)
	if err != nil {
		return nil, err
	}
	return store.Get(ctx, id)
}
