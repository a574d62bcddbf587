package dedup

import (
	"time"

	"github.com/hpungsan/gather/internal/todo"
)

// Merge folds incoming into primary and returns the merged record. It is pure,
// idempotent, and order-insensitive for tags, priority, request date and due date:
//
//	tags          union
//	request date  earlier of the two
//	due date      earlier of the two
//	priorities    lower (more urgent) of the two, then the lower of that and score
//	action item   either
//	description, source url  existing non-empty value, else incoming
//
// Identity fields (ID, source, source id, status, created at) always come from
// primary. UpdatedAt is set to now only when a field actually changed.
func Merge(primary, incoming todo.Todo, score func(todo.Todo) int, now time.Time) todo.Todo {
	merged := primary

	merged.Tags = todo.UnionTags(primary.Tags, incoming.Tags)
	merged.RequestDate = earlier(primary.RequestDate, incoming.RequestDate)
	merged.DueDate = earlier(primary.DueDate, incoming.DueDate)
	merged.BasePriority = lower(primary.BasePriority, incoming.BasePriority)
	merged.Urgency = lower(primary.Urgency, incoming.Urgency)
	merged.ActionItem = primary.ActionItem || incoming.ActionItem

	if merged.Description == "" {
		merged.Description = incoming.Description
	}
	if merged.SourceURL == "" {
		merged.SourceURL = incoming.SourceURL
	}

	merged.Priority = lower(primary.Priority, incoming.Priority)
	if score != nil {
		merged.Priority = lower(merged.Priority, score(merged))
	}

	if !diff(primary, merged).Empty() {
		merged.UpdatedAt = now
	}
	return merged
}

// diff returns the patch that turns from into to for mutable fields.
func diff(from, to todo.Todo) todo.Patch {
	var p todo.Patch
	if from.Title != to.Title {
		p.Title = &to.Title
	}
	if from.Description != to.Description {
		p.Description = &to.Description
	}
	if from.SourceURL != to.SourceURL {
		p.SourceURL = &to.SourceURL
	}
	if from.Priority != to.Priority {
		p.Priority = &to.Priority
	}
	if from.BasePriority != to.BasePriority {
		p.BasePriority = &to.BasePriority
	}
	if from.Urgency != to.Urgency {
		p.Urgency = &to.Urgency
	}
	if from.ActionItem != to.ActionItem {
		p.ActionItem = &to.ActionItem
	}
	if !sameTime(from.DueDate, to.DueDate) && to.DueDate != nil {
		p.DueDate = to.DueDate
	}
	if !sameTime(from.RequestDate, to.RequestDate) && to.RequestDate != nil {
		p.RequestDate = to.RequestDate
	}
	if !sameTags(from.Tags, to.Tags) {
		tags := to.Tags
		p.Tags = &tags
	}
	return p
}

// lower returns the more urgent of two priorities, ignoring unset (zero) values.
func lower(a, b int) int {
	switch {
	case a == 0:
		return b
	case b == 0:
		return a
	}
	return min(a, b)
}

func earlier(a, b *time.Time) *time.Time {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	case b.Before(*a):
		return b
	}
	return a
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func sameTags(a, b []string) bool {
	a, b = todo.TagSet(a...), todo.TagSet(b...)
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
