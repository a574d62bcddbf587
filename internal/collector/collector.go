// Package collector fetches raw actionable items from upstream sources.
//
// Every source kind is bound to exactly one Collector through a static
// registry. Collectors are fail-soft: partial upstream failures are returned
// as strings in Result.Errors alongside whatever items were retrieved. A
// non-nil error from Collect means the whole call failed (network down, auth
// rejected, context cancelled) and is what callers retry.
package collector

import (
	"context"
	"fmt"
	"time"

	"github.com/hpungsan/gather/internal/todo"
)

// Collector fetches raw items from one upstream source.
type Collector interface {
	// Source returns the source kind this collector serves.
	Source() todo.Source

	// Enabled reports whether the source is enabled in config. Pure lookup.
	Enabled() bool

	// Collect fetches raw items for the requested range.
	Collect(ctx context.Context, opts Options) (*Result, error)
}

// Options controls a single Collect call. From and To are calendar days,
// both inclusive. Zero values mean "collector default".
type Options struct {
	From        time.Time
	To          time.Time
	Incremental bool
	Verbose     bool
}

// Flags are classification signals supplied by the collector.
type Flags struct {
	IsActionItem bool `json:"is_action_item"`

	// Priority is one of P0..P3, or empty when the source gives no signal
	Priority string `json:"priority,omitempty"`

	Category string `json:"category,omitempty"`
}

// RawItem is an unprocessed fact from a source. It lives for one collection pass.
type RawItem struct {
	ID           string         `json:"id"`
	Source       todo.Source    `json:"source"`
	Title        string         `json:"title"`
	Content      string         `json:"content,omitempty"`
	URL          string         `json:"url,omitempty"`
	Date         time.Time      `json:"date"`
	Author       string         `json:"author,omitempty"`
	Participants []string       `json:"participants,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	Flags        Flags          `json:"flags"`
	DueDate      *time.Time     `json:"due_date,omitempty"`
}

// DateRange is the inclusive range a result covers.
type DateRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// Result is the outcome of one Collect call.
type Result struct {
	Source     todo.Source `json:"source"`
	Items      []RawItem   `json:"items"`
	Errors     []string    `json:"errors"`
	DurationMs int64       `json:"duration_ms"`
	DateRange  DateRange   `json:"date_range"`
}

func newResult(source todo.Source, from, to time.Time) *Result {
	return &Result{
		Source:    source,
		Items:     []RawItem{},
		Errors:    []string{},
		DateRange: DateRange{From: from, To: to},
	}
}

func (r *Result) addError(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

func (r *Result) finish(started time.Time) *Result {
	r.DurationMs = time.Since(started).Milliseconds()
	return r
}

// DateLayout is the calendar-day layout used by collectors and feeds.
const DateLayout = "2006-01-02"

// ParseDate accepts a YYYY-MM-DD day or an RFC3339 timestamp.
func ParseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q", s)
	}
	return t, nil
}

// Day truncates t to midnight UTC.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// EndOfDay returns the last instant of t's UTC day.
func EndOfDay(t time.Time) time.Time {
	return Day(t).AddDate(0, 0, 1).Add(-time.Nanosecond)
}

// resolveRange fills zero bounds: To defaults to today, From to To.
func resolveRange(opts Options, now time.Time) (time.Time, time.Time) {
	to := opts.To
	if to.IsZero() {
		to = now
	}
	from := opts.From
	if from.IsZero() {
		from = to
	}
	return Day(from), Day(to)
}

// inRange reports whether t falls within the inclusive day range.
func inRange(t, from, to time.Time) bool {
	return !t.Before(Day(from)) && !t.After(EndOfDay(to))
}
