// Package normalize maps raw collector items onto the canonical Todo shape.
package normalize

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/hpungsan/gather/internal/collector"
	"github.com/hpungsan/gather/internal/todo"
)

// DefaultDescriptionMaxChars bounds descriptions when no limit is configured.
const DefaultDescriptionMaxChars = 500

// ErrEmptyTitle is returned for raw items whose title is blank.
var ErrEmptyTitle = errors.New("empty title")

// flagPriorities maps collector P0..P3 flags onto urgency for every source.
var flagPriorities = map[string]int{
	"P0": 1,
	"P1": 2,
	"P2": 3,
	"P3": 4,
}

// severityPriorities maps incident severities onto urgency for incident-io.
var severityPriorities = map[string]int{
	"sev1": 1,
	"sev2": 2,
	"sev3": 3,
}

// Normalizer converts raw items into Todos. It is pure: no I/O, no clock.
type Normalizer struct {
	DescriptionMaxChars int
}

// New returns a Normalizer with the given description bound (runes).
func New(descriptionMaxChars int) *Normalizer {
	if descriptionMaxChars <= 0 {
		descriptionMaxChars = DefaultDescriptionMaxChars
	}
	return &Normalizer{DescriptionMaxChars: descriptionMaxChars}
}

// Normalize maps raw onto a pending Todo. ID and timestamps are left for the store.
func (n *Normalizer) Normalize(raw collector.RawItem) (todo.Todo, error) {
	title := strings.TrimSpace(raw.Title)
	if title == "" {
		return todo.Todo{}, fmt.Errorf("%s item %q: %w", raw.Source, raw.ID, ErrEmptyTitle)
	}
	if id := metaString(raw.Metadata, "identifier"); id != "" && !strings.HasPrefix(title, id) {
		title = id + ": " + title
	}

	urgency := n.urgency(raw)

	t := todo.Todo{
		Title:        title,
		Description:  truncate(strings.TrimSpace(raw.Content), n.DescriptionMaxChars),
		BasePriority: todo.DefaultPriority,
		Urgency:      urgency,
		Priority:     min(todo.DefaultPriority, urgency),
		ActionItem:   raw.Flags.IsActionItem,
		Source:       raw.Source,
		SourceID:     raw.ID,
		SourceURL:    raw.URL,
		Status:       todo.StatusPending,
		Tags:         tags(raw),
	}
	if raw.DueDate != nil {
		due := *raw.DueDate
		t.DueDate = &due
	}
	if !raw.Date.IsZero() {
		req := raw.Date
		t.RequestDate = &req
	}
	return t, nil
}

// urgency translates the source's priority signals; the most urgent wins.
// Without any signal urgency equals the base priority.
func (n *Normalizer) urgency(raw collector.RawItem) int {
	urgency := todo.DefaultPriority
	signal := false

	consider := func(p int) {
		if p < todo.MinPriority || p > todo.MaxPriority {
			return
		}
		if !signal || p < urgency {
			urgency = p
			signal = true
		}
	}

	if p, ok := flagPriorities[strings.ToUpper(strings.TrimSpace(raw.Flags.Priority))]; ok {
		consider(p)
	}

	switch raw.Source {
	case todo.SourceLinear:
		if p, ok := metaInt(raw.Metadata, "priority"); ok && p >= 1 && p <= 4 {
			consider(p)
		}
	case todo.SourceIncidentIO:
		if p, ok := severityPriorities[strings.ToLower(metaString(raw.Metadata, "severity"))]; ok {
			consider(p)
		}
	}

	return urgency
}

// tags returns {source} ∪ {category} ∪ metadata labels, normalized.
func tags(raw collector.RawItem) []string {
	all := []string{string(raw.Source), raw.Flags.Category}
	switch labels := raw.Metadata["labels"].(type) {
	case []string:
		all = append(all, labels...)
	case []any:
		for _, l := range labels {
			if s, ok := l.(string); ok {
				all = append(all, s)
			}
		}
	}
	return todo.TagSet(all...)
}

// truncate bounds s to max runes, appending an ellipsis when cut.
func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	r := []rune(s)
	return strings.TrimSpace(string(r[:max])) + "…"
}

func metaString(meta map[string]any, key string) string {
	if v, ok := meta[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

// metaInt reads an integer that may have been decoded from JSON as float64.
func metaInt(meta map[string]any, key string) (int, bool) {
	switch v := meta[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		if v == float64(int(v)) {
			return int(v), true
		}
	case string:
		if i, err := strconv.Atoi(v); err == nil {
			return i, true
		}
	}
	return 0, false
}
