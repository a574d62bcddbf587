package ops

import (
	"context"

	"github.com/hpungsan/gather/internal/errors"
	"github.com/hpungsan/gather/internal/todo"
)

// ListInput contains parameters for the List operation.
type ListInput struct {
	Statuses []string // default: pending + in_progress; "all" for every status
	Source   string   // optional filter
	Tag      string   // optional filter
	Limit    int      // default: 20, max: 100
	Offset   int      // default: 0
}

// ListOutput contains the result of the List operation.
type ListOutput struct {
	Items      []todo.Todo `json:"items"`
	Pagination Pagination  `json:"pagination"`
	Sort       string      `json:"sort"`
}

// List retrieves todos ordered by priority with pagination.
func List(ctx context.Context, store todo.Store, input ListInput) (*ListOutput, error) {
	statuses, err := ParseStatuses(input.Statuses)
	if err != nil {
		return nil, err
	}

	filter := todo.Filter{
		Statuses: statuses,
		Tag:      todo.NormalizeTag(input.Tag),
		Limit:    clampLimit(input.Limit, DefaultListLimit, MaxListLimit),
		Offset:   max(input.Offset, 0),
	}
	if input.Source != "" {
		src, err := todo.ParseSource(input.Source)
		if err != nil {
			return nil, errors.NewInvalidRequest(err.Error())
		}
		filter.Source = src
	}

	items, err := store.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	total, err := store.Count(ctx, filter)
	if err != nil {
		return nil, err
	}

	// Ensure we return an empty array rather than nil
	if items == nil {
		items = []todo.Todo{}
	}

	return &ListOutput{
		Items: items,
		Pagination: Pagination{
			Limit:   filter.Limit,
			Offset:  filter.Offset,
			HasMore: filter.Offset+len(items) < total,
			Total:   total,
		},
		Sort: "priority_asc_updated_at_desc",
	}, nil
}
