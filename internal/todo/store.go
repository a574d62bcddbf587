package todo

import "context"

// Filter controls which todos are returned by List and Count.
type Filter struct {
	Statuses []Status // empty means all statuses
	Source   Source   // empty means all sources
	Tag      string   // empty means any tag
	Limit    int      // 0 means no limit
	Offset   int
}

// Store is the canonical record store the ingestion engine reads and writes.
// Lookups that miss return a NOT_FOUND GatherError.
type Store interface {
	// GetBySourceID returns the todo with the given fingerprint, in any status.
	GetBySourceID(ctx context.Context, source Source, sourceID string) (*Todo, error)

	// Get returns a todo by ID.
	Get(ctx context.Context, id string) (*Todo, error)

	// List returns todos matching the filter ordered by priority, then updated_at DESC.
	List(ctx context.Context, filter Filter) ([]Todo, error)

	// Count returns the number of todos matching the filter (ignores Limit/Offset).
	Count(ctx context.Context, filter Filter) (int, error)

	// Create persists a new todo. The store assigns ID and timestamps when unset.
	// A (source, source_id) collision returns a CONFLICT GatherError.
	Create(ctx context.Context, t *Todo) error

	// Update applies a partial update, sets updated_at, and returns the new state.
	Update(ctx context.Context, id string, patch Patch) (*Todo, error)

	// Complete marks a todo completed and returns the new state.
	Complete(ctx context.Context, id string) (*Todo, error)
}
