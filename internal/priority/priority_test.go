package priority

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/hpungsan/gather/internal/config"
	"github.com/hpungsan/gather/internal/todo"
)

var now = time.Date(2025, 1, 15, 15, 30, 0, 0, time.UTC)

func dayOffset(days int) *time.Time {
	d := time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC).AddDate(0, 0, days)
	return &d
}

func TestCalculate(t *testing.T) {
	s := NewScorer(config.DefaultConfig(), nil)

	tests := []struct {
		name string
		todo todo.Todo
		want int
	}{
		{"defaults", todo.Todo{ActionItem: true}, 3},
		{"not an action item", todo.Todo{BasePriority: 3, Urgency: 3}, 4},
		{"urgency below base", todo.Todo{BasePriority: 3, Urgency: 1, ActionItem: true}, 1},
		{"overdue", todo.Todo{BasePriority: 3, Urgency: 3, ActionItem: true, DueDate: dayOffset(-4)}, 1},
		{"due today", todo.Todo{BasePriority: 3, Urgency: 3, ActionItem: true, DueDate: dayOffset(0)}, 1},
		{"due in three days", todo.Todo{BasePriority: 3, Urgency: 3, ActionItem: true, DueDate: dayOffset(3)}, 2},
		{"due next week", todo.Todo{BasePriority: 3, Urgency: 3, ActionItem: true, DueDate: dayOffset(7)}, 3},
		{"incident weight", todo.Todo{BasePriority: 3, Urgency: 3, ActionItem: true, Source: todo.SourceIncidentIO}, 2},
		{"analytics weight", todo.Todo{BasePriority: 3, Urgency: 3, ActionItem: true, Source: todo.SourceDevAnalytics}, 4},
		{"clamped low", todo.Todo{BasePriority: 1, Urgency: 1, ActionItem: true, DueDate: dayOffset(-1), Source: todo.SourceIncidentIO}, 1},
		{"clamped high", todo.Todo{BasePriority: 5, Urgency: 5, Source: todo.SourceDevAnalytics}, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, s.Calculate(tt.todo, now))
		})
	}
}

func TestCalculate_Pure(t *testing.T) {
	s := NewScorer(config.DefaultConfig(), nil)
	td := todo.Todo{BasePriority: 2, Urgency: 3, DueDate: dayOffset(2), Source: todo.SourceSlack}

	first := s.Calculate(td, now)
	second := s.Calculate(td, now)
	assert.Equal(t, first, second)
}

func TestScore_UsesInjectedClock(t *testing.T) {
	td := todo.Todo{BasePriority: 3, Urgency: 3, ActionItem: true, DueDate: dayOffset(2)}

	early := NewScorer(nil, func() time.Time { return now.AddDate(0, 0, -10) })
	late := NewScorer(nil, func() time.Time { return now })

	assert.Equal(t, 3, early.Score(td))
	assert.Equal(t, 2, late.Score(td))
	assert.Equal(t, 2, late.Apply(td).Priority)
}

func TestNewScorer_ConfiguredWeights(t *testing.T) {
	cfg := config.DefaultConfig()
	w := -2
	cfg.Sources["gmail"] = config.SourceConfig{Weight: &w}

	s := NewScorer(cfg, nil)
	assert.Equal(t, 1, s.Calculate(todo.Todo{BasePriority: 3, Urgency: 3, ActionItem: true, Source: todo.SourceGmail}, now))
}
