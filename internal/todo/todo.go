// Package todo defines the canonical TODO entity aggregated from upstream sources.
package todo

import (
	"fmt"
	"time"
)

// Status represents the lifecycle state of a Todo.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)

// ActiveStatuses are the statuses considered by fuzzy deduplication.
var ActiveStatuses = []Status{StatusPending, StatusInProgress}

// ParseStatus validates a status string.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusPending, StatusInProgress, StatusCompleted:
		return Status(s), nil
	}
	return "", fmt.Errorf("unknown status %q", s)
}

// Active reports whether the status is pending or in progress.
func (s Status) Active() bool {
	return s == StatusPending || s == StatusInProgress
}

// Priority bounds. 1 is the most urgent.
const (
	MinPriority     = 1
	MaxPriority     = 5
	DefaultPriority = 3
)

// Todo is the single deduplicated record for one real-world actionable item.
type Todo struct {
	// ID is a ULID assigned once at creation and never reused
	ID string `json:"id"`

	Title       string `json:"title"`
	Description string `json:"description,omitempty"`

	// Priority is the effective priority computed by the priority scorer
	Priority int `json:"priority"`

	// BasePriority and Urgency are the inputs the scorer starts from
	BasePriority int  `json:"base_priority"`
	Urgency      int  `json:"urgency"`
	ActionItem   bool `json:"action_item"`

	DueDate *time.Time `json:"due_date,omitempty"`

	// RequestDate is when the item was first raised upstream
	RequestDate *time.Time `json:"request_date,omitempty"`

	Source    Source `json:"source"`
	SourceID  string `json:"source_id,omitempty"`
	SourceURL string `json:"source_url,omitempty"`

	Status Status `json:"status"`

	// Tags is a set; stored sorted and deduplicated
	Tags []string `json:"tags"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Fingerprint is the exact-identity key of a Todo.
type Fingerprint struct {
	Source   Source
	SourceID string
}

// Fingerprint returns the (source, source_id) key. ok is false when the Todo
// has no source identity and can only be matched fuzzily.
func (t *Todo) Fingerprint() (Fingerprint, bool) {
	if t.Source == "" || t.SourceID == "" {
		return Fingerprint{}, false
	}
	return Fingerprint{Source: t.Source, SourceID: t.SourceID}, true
}

// String renders the fingerprint as "source:source_id".
func (f Fingerprint) String() string {
	return string(f.Source) + ":" + f.SourceID
}

// Patch describes a partial update. Nil fields are left unchanged.
type Patch struct {
	Title        *string
	Description  *string
	SourceURL    *string
	Priority     *int
	BasePriority *int
	Urgency      *int
	ActionItem   *bool
	DueDate      *time.Time
	RequestDate  *time.Time
	Tags         *[]string
	Status       *Status
}

// Empty reports whether the patch changes nothing.
func (p Patch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.SourceURL == nil &&
		p.Priority == nil && p.BasePriority == nil && p.Urgency == nil &&
		p.ActionItem == nil && p.DueDate == nil && p.RequestDate == nil &&
		p.Tags == nil && p.Status == nil
}

// Apply returns a copy of t with the patch applied. UpdatedAt is not touched.
func (p Patch) Apply(t Todo) Todo {
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.SourceURL != nil {
		t.SourceURL = *p.SourceURL
	}
	if p.Priority != nil {
		t.Priority = *p.Priority
	}
	if p.BasePriority != nil {
		t.BasePriority = *p.BasePriority
	}
	if p.Urgency != nil {
		t.Urgency = *p.Urgency
	}
	if p.ActionItem != nil {
		t.ActionItem = *p.ActionItem
	}
	if p.DueDate != nil {
		d := *p.DueDate
		t.DueDate = &d
	}
	if p.RequestDate != nil {
		d := *p.RequestDate
		t.RequestDate = &d
	}
	if p.Tags != nil {
		t.Tags = TagSet(*p.Tags...)
	}
	if p.Status != nil {
		t.Status = *p.Status
	}
	return t
}
