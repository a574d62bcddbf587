package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/hpungsan/gather/internal/errors"
	"github.com/hpungsan/gather/internal/todo"
)

// todoColumns is the column list shared by every SELECT.
const todoColumns = `
	id, title, description, priority, base_priority, urgency, action_item,
	due_date, request_date, source, source_id, source_url, status, tags_json,
	created_at, updated_at, completed_at
`

// TodoStore is the SQLite implementation of todo.Store.
type TodoStore struct {
	db  *sql.DB
	now func() time.Time
}

var _ todo.Store = (*TodoStore)(nil)

// NewTodoStore wraps an initialized database.
func NewTodoStore(db *sql.DB) *TodoStore {
	return &TodoStore{db: db, now: time.Now}
}

// WithClock replaces the clock used for created/updated/completed timestamps.
func (s *TodoStore) WithClock(now func() time.Time) *TodoStore {
	s.now = now
	return s
}

// GetBySourceID returns the todo with the given (source, source_id), in any status.
func (s *TodoStore) GetBySourceID(ctx context.Context, source todo.Source, sourceID string) (*todo.Todo, error) {
	query := `SELECT ` + todoColumns + ` FROM todos WHERE source = ? AND source_id = ?`

	t, err := scanTodo(s.db.QueryRowContext(ctx, query, string(source), sourceID))
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound(string(source) + ":" + sourceID)
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return t, nil
}

// Get returns a todo by its ULID.
func (s *TodoStore) Get(ctx context.Context, id string) (*todo.Todo, error) {
	return get(ctx, s.db, id)
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func get(ctx context.Context, q queryRower, id string) (*todo.Todo, error) {
	query := `SELECT ` + todoColumns + ` FROM todos WHERE id = ?`

	t, err := scanTodo(q.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound(id)
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return t, nil
}

// List returns todos matching the filter ordered by priority, then most recently updated.
func (s *TodoStore) List(ctx context.Context, filter todo.Filter) ([]todo.Todo, error) {
	where, args := buildWhere(filter)

	query := `SELECT ` + todoColumns + ` FROM todos` + where +
		` ORDER BY priority ASC, updated_at DESC, id DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, filter.Limit, filter.Offset)
	} else if filter.Offset > 0 {
		query += ` LIMIT -1 OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	todos := make([]todo.Todo, 0)
	for rows.Next() {
		t, err := scanTodo(rows)
		if err != nil {
			return nil, errors.NewInternal(err)
		}
		todos = append(todos, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return todos, nil
}

// Count returns the number of todos matching the filter, ignoring Limit and Offset.
func (s *TodoStore) Count(ctx context.Context, filter todo.Filter) (int, error) {
	where, args := buildWhere(filter)

	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM todos`+where, args...).Scan(&n); err != nil {
		return 0, errors.NewInternal(err)
	}
	return n, nil
}

// Create persists a new todo. ID, status and timestamps are filled in when unset.
func (s *TodoStore) Create(ctx context.Context, t *todo.Todo) error {
	now := s.now().UTC()
	if t.ID == "" {
		t.ID = todo.NewID(now)
	}
	if t.Status == "" {
		t.Status = todo.StatusPending
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = t.CreatedAt
	}
	t.Tags = todo.TagSet(t.Tags...)

	tagsJSON, err := json.Marshal(t.Tags)
	if err != nil {
		return errors.NewInternal(err)
	}

	query := `
		INSERT INTO todos (
			id, title, description, priority, base_priority, urgency, action_item,
			due_date, request_date, source, source_id, source_url, status, tags_json,
			created_at, updated_at, completed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = s.db.ExecContext(ctx, query,
		t.ID, t.Title, toNullString(t.Description), t.Priority, t.BasePriority, t.Urgency, t.ActionItem,
		toNullTime(t.DueDate), toNullTime(t.RequestDate), string(t.Source), toNullString(t.SourceID),
		toNullString(t.SourceURL), string(t.Status), string(tagsJSON),
		t.CreatedAt.UnixMilli(), t.UpdatedAt.UnixMilli(), toNullTime(t.CompletedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return errors.NewConflict(fmt.Sprintf("todo already exists for %s:%s", t.Source, t.SourceID))
		}
		return errors.NewInternal(err)
	}
	return nil
}

// Update applies a partial update inside a transaction and sets updated_at.
// Moving to completed stamps completed_at; moving away from completed clears it.
func (s *TodoStore) Update(ctx context.Context, id string, patch todo.Patch) (*todo.Todo, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer func() { _ = tx.Rollback() }()

	current, err := get(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	next := patch.Apply(*current)
	next.UpdatedAt = now
	switch {
	case next.Status == todo.StatusCompleted && current.Status != todo.StatusCompleted:
		next.CompletedAt = &now
	case next.Status != todo.StatusCompleted:
		next.CompletedAt = nil
	}

	if err := writeTodo(ctx, tx, &next); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return &next, nil
}

// Complete marks a todo completed. Completing an already completed todo
// returns it unchanged.
func (s *TodoStore) Complete(ctx context.Context, id string) (*todo.Todo, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status == todo.StatusCompleted {
		return current, nil
	}
	status := todo.StatusCompleted
	return s.Update(ctx, id, todo.Patch{Status: &status})
}

func writeTodo(ctx context.Context, tx *sql.Tx, t *todo.Todo) error {
	tagsJSON, err := json.Marshal(todo.TagSet(t.Tags...))
	if err != nil {
		return errors.NewInternal(err)
	}

	query := `
		UPDATE todos
		SET title = ?, description = ?, priority = ?, base_priority = ?, urgency = ?,
			action_item = ?, due_date = ?, request_date = ?, source_url = ?, status = ?,
			tags_json = ?, updated_at = ?, completed_at = ?
		WHERE id = ?
	`

	result, err := tx.ExecContext(ctx, query,
		t.Title, toNullString(t.Description), t.Priority, t.BasePriority, t.Urgency,
		t.ActionItem, toNullTime(t.DueDate), toNullTime(t.RequestDate), toNullString(t.SourceURL),
		string(t.Status), string(tagsJSON), t.UpdatedAt.UnixMilli(), toNullTime(t.CompletedAt),
		t.ID,
	)
	if err != nil {
		return errors.NewInternal(err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errors.NewInternal(err)
	}
	if rowsAffected == 0 {
		return errors.NewNotFound(t.ID)
	}
	return nil
}

// buildWhere renders the filter as a WHERE clause and its arguments.
func buildWhere(filter todo.Filter) (string, []any) {
	var clauses []string
	var args []any

	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, st := range filter.Statuses {
			placeholders[i] = "?"
			args = append(args, string(st))
		}
		clauses = append(clauses, "status IN ("+strings.Join(placeholders, ", ")+")")
	}
	if filter.Source != "" {
		clauses = append(clauses, "source = ?")
		args = append(args, string(filter.Source))
	}
	if filter.Tag != "" {
		clauses = append(clauses, "EXISTS (SELECT 1 FROM json_each(todos.tags_json) WHERE json_each.value = ?)")
		args = append(args, todo.NormalizeTag(filter.Tag))
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanTodo scans a single row into a Todo.
func scanTodo(row rowScanner) (*todo.Todo, error) {
	var (
		t                                 todo.Todo
		description, sourceID, sourceURL  sql.NullString
		tagsJSON                          sql.NullString
		dueDate, requestDate, completedAt sql.NullInt64
		source, status                    string
		createdAt, updatedAt              int64
	)

	err := row.Scan(
		&t.ID, &t.Title, &description, &t.Priority, &t.BasePriority, &t.Urgency, &t.ActionItem,
		&dueDate, &requestDate, &source, &sourceID, &sourceURL, &status, &tagsJSON,
		&createdAt, &updatedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}

	t.Description = description.String
	t.SourceID = sourceID.String
	t.SourceURL = sourceURL.String
	t.Source = todo.Source(source)
	t.Status = todo.Status(status)
	t.DueDate = fromNullTime(dueDate)
	t.RequestDate = fromNullTime(requestDate)
	t.CompletedAt = fromNullTime(completedAt)
	t.CreatedAt = time.UnixMilli(createdAt).UTC()
	t.UpdatedAt = time.UnixMilli(updatedAt).UTC()

	t.Tags = []string{}
	if tagsJSON.Valid && tagsJSON.String != "" {
		if err := json.Unmarshal([]byte(tagsJSON.String), &t.Tags); err != nil {
			return nil, fmt.Errorf("decode tags for %s: %w", t.ID, err)
		}
	}

	return &t, nil
}

// isUniqueConstraintError checks if the error is a SQLite UNIQUE constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func toNullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func toNullTime(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}

func fromNullTime(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := time.UnixMilli(n.Int64).UTC()
	return &t
}
