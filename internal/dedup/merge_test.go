package dedup

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/hpungsan/gather/internal/config"
	"github.com/hpungsan/gather/internal/priority"
	"github.com/hpungsan/gather/internal/todo"
)

var mergeNow = time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)

func datePtr(s string) *time.Time {
	t, _ := time.Parse("2006-01-02", s)
	return &t
}

func mergeFixtures() (todo.Todo, todo.Todo, todo.Todo) {
	primary := todo.Todo{
		ID: "01P", Title: "Fix login bug", Source: todo.SourceLinear, SourceID: "ENG-1",
		Priority: 4, BasePriority: 3, Urgency: 3, Status: todo.StatusPending,
		Tags: []string{"linear"}, RequestDate: datePtr("2025-01-05"),
		UpdatedAt: mergeNow.Add(-time.Hour),
	}
	a := todo.Todo{
		Title: "fix login bug", Source: todo.SourceSlack, SourceID: "C1/1",
		Priority: 2, BasePriority: 3, Urgency: 2, ActionItem: true,
		Tags: []string{"slack", "auth"}, RequestDate: datePtr("2025-01-03"),
		DueDate: datePtr("2025-01-25"), Description: "from slack", SourceURL: "https://slack/1",
	}
	b := todo.Todo{
		Title: "Fix the login bug", Source: todo.SourceGmail, SourceID: "m-1",
		Priority: 3, BasePriority: 3, Urgency: 1,
		Tags: []string{"gmail", "auth"}, RequestDate: datePtr("2025-01-07"),
		DueDate: datePtr("2025-01-16"), Description: "from gmail",
	}
	return primary, a, b
}

func TestMerge_Fields(t *testing.T) {
	primary, a, _ := mergeFixtures()

	got := Merge(primary, a, nil, mergeNow)

	assert.Equal(t, "01P", got.ID)
	assert.Equal(t, todo.SourceLinear, got.Source)
	assert.Equal(t, "ENG-1", got.SourceID)
	assert.Equal(t, "Fix login bug", got.Title)
	assert.Equal(t, []string{"auth", "linear", "slack"}, got.Tags)
	assert.Equal(t, *datePtr("2025-01-03"), *got.RequestDate)
	assert.Equal(t, *datePtr("2025-01-25"), *got.DueDate)
	assert.Equal(t, 2, got.Priority)
	assert.Equal(t, 2, got.Urgency)
	assert.True(t, got.ActionItem)
	assert.Equal(t, "from slack", got.Description, "empty existing takes incoming")
	assert.Equal(t, mergeNow, got.UpdatedAt)
}

func TestMerge_ExistingNonEmptyWins(t *testing.T) {
	primary, a, b := mergeFixtures()
	withDesc := Merge(primary, a, nil, mergeNow)

	got := Merge(withDesc, b, nil, mergeNow)
	assert.Equal(t, "from slack", got.Description)
	assert.Equal(t, "https://slack/1", got.SourceURL)
}

func TestMerge_Commutative(t *testing.T) {
	primary, a, b := mergeFixtures()
	scorer := priority.NewScorer(config.DefaultConfig(), nil)
	score := func(t todo.Todo) int { return scorer.Calculate(t, mergeNow) }

	ab := Merge(Merge(primary, a, score, mergeNow), b, score, mergeNow)
	ba := Merge(Merge(primary, b, score, mergeNow), a, score, mergeNow)

	assert.Equal(t, ab.Priority, ba.Priority)
	assert.Equal(t, ab.Tags, ba.Tags)
	assert.Equal(t, *ab.RequestDate, *ba.RequestDate)
	assert.Equal(t, *ab.DueDate, *ba.DueDate)
	assert.Equal(t, ab.Urgency, ba.Urgency)
	assert.Equal(t, ab.ActionItem, ba.ActionItem)
}

func TestMerge_Idempotent(t *testing.T) {
	primary, a, _ := mergeFixtures()

	once := Merge(primary, a, nil, mergeNow)
	twice := Merge(once, a, nil, mergeNow.Add(time.Hour))

	assert.Equal(t, once, twice, "re-merging the same item changes nothing, not even UpdatedAt")
	assert.True(t, diff(once, twice).Empty())
}
