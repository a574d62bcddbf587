// Package ops implements the todo and run operations shared by the CLI, the
// MCP server and the web dashboard.
package ops

import (
	"strings"

	"github.com/hpungsan/gather/internal/errors"
	"github.com/hpungsan/gather/internal/todo"
)

// Pagination limits
const (
	DefaultListLimit  = 20
	MaxListLimit      = 100
	DefaultAuditLimit = 20
	MaxAuditLimit     = 500
)

// Pagination contains pagination metadata for list operations.
type Pagination struct {
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"has_more"`
	Total   int  `json:"total"`
}

// ValidateID trims id and rejects an empty one.
func ValidateID(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", errors.NewInvalidRequest("id is required")
	}
	return id, nil
}

// ParseStatuses validates status names. Empty input selects the active statuses;
// "all" selects every status.
func ParseStatuses(names []string) ([]todo.Status, error) {
	if len(names) == 0 {
		return todo.ActiveStatuses, nil
	}

	out := make([]todo.Status, 0, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if strings.EqualFold(name, "all") {
			return nil, nil
		}
		s, err := todo.ParseStatus(name)
		if err != nil {
			return nil, errors.NewInvalidRequest(err.Error())
		}
		out = append(out, s)
	}
	return out, nil
}

func clampLimit(limit, def, maximum int) int {
	if limit <= 0 {
		return def
	}
	return min(limit, maximum)
}
