// Package priority computes the effective 1..5 priority of a Todo.
package priority

import (
	"time"

	"github.com/hpungsan/gather/internal/config"
	"github.com/hpungsan/gather/internal/todo"
)

const (
	// dueSoonDays is the window in which an upcoming due date raises priority by one.
	dueSoonDays = 3

	dueNowBoost    = -2
	dueSoonBoost   = -1
	notActionDrift = 1
)

// Scorer is a pure function of a Todo's fields plus per-source weights.
// Lower is more urgent.
type Scorer struct {
	weights map[todo.Source]int
	now     func() time.Time
}

// NewScorer reads source weights from cfg. now defaults to time.Now.
func NewScorer(cfg *config.Config, now func() time.Time) *Scorer {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if now == nil {
		now = time.Now
	}

	weights := make(map[todo.Source]int, len(todo.AllSources))
	for _, source := range todo.AllSources {
		if w := cfg.SourceWeight(string(source)); w != 0 {
			weights[source] = w
		}
	}
	return &Scorer{weights: weights, now: now}
}

// Score computes the effective priority using the scorer's clock.
func (s *Scorer) Score(t todo.Todo) int {
	return s.Calculate(t, s.now())
}

// Calculate computes the effective priority of t as of now:
//
//	start from min(base priority, urgency)
//	due today or overdue: -2, due within 3 days: -1
//	not an action item: +1
//	plus the source weight, clamped to [1,5]
func (s *Scorer) Calculate(t todo.Todo, now time.Time) int {
	p := min(orDefault(t.BasePriority), orDefault(t.Urgency))

	if t.DueDate != nil {
		switch days := daysUntil(*t.DueDate, now); {
		case days <= 0:
			p += dueNowBoost
		case days <= dueSoonDays:
			p += dueSoonBoost
		}
	}

	if !t.ActionItem {
		p += notActionDrift
	}

	p += s.weights[t.Source]

	return clamp(p)
}

// Apply sets t.Priority to the score as of now and returns t.
func (s *Scorer) Apply(t todo.Todo) todo.Todo {
	t.Priority = s.Score(t)
	return t
}

// daysUntil counts whole calendar days (UTC) from now to due.
func daysUntil(due, now time.Time) int {
	d := time.Date(due.UTC().Year(), due.UTC().Month(), due.UTC().Day(), 0, 0, 0, 0, time.UTC)
	n := time.Date(now.UTC().Year(), now.UTC().Month(), now.UTC().Day(), 0, 0, 0, 0, time.UTC)
	return int(d.Sub(n).Hours() / 24)
}

func orDefault(p int) int {
	if p == 0 {
		return todo.DefaultPriority
	}
	return p
}

func clamp(p int) int {
	return max(todo.MinPriority, min(todo.MaxPriority, p))
}
