package dedup

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpungsan/gather/internal/config"
	"github.com/hpungsan/gather/internal/db"
	"github.com/hpungsan/gather/internal/priority"
	"github.com/hpungsan/gather/internal/todo"
)

var testNow = time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)

func newTestDedup(t *testing.T) (*Deduplicator, *db.TodoStore) {
	t.Helper()

	conn, err := db.Init(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	clock := func() time.Time { return testNow }
	store := db.NewTodoStore(conn).WithClock(clock)
	scorer := priority.NewScorer(config.DefaultConfig(), clock)
	return New(store, scorer, WithClock(clock)), store
}

func incoming(source todo.Source, id, title string) todo.Todo {
	return todo.Todo{
		Title: title, Source: source, SourceID: id,
		BasePriority: 3, Urgency: 3, ActionItem: true,
		Status: todo.StatusPending, Tags: []string{string(source)},
	}
}

func count(t *testing.T, store todo.Store) int {
	t.Helper()
	n, err := store.Count(context.Background(), todo.Filter{})
	require.NoError(t, err)
	return n
}

func TestReconcile_CreatesThenExactNoop(t *testing.T) {
	ctx := context.Background()
	d, store := newTestDedup(t)
	in := incoming(todo.SourceLinear, "ENG-1", "ENG-1: Fix login bug")

	first, err := d.Reconcile(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, ActionCreated, first.Action)
	assert.Equal(t, NoMatch, first.Match.Kind)
	assert.NotEmpty(t, first.Todo.ID)
	assert.Equal(t, 3, first.Todo.Priority)

	second, err := d.Reconcile(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, ActionUnchanged, second.Action)
	assert.Equal(t, MatchExact, second.Match.Kind)
	assert.Equal(t, first.Todo.ID, second.Todo.ID)
	assert.True(t, first.Todo.UpdatedAt.Equal(second.Todo.UpdatedAt))
	assert.Equal(t, 1, count(t, store))
}

func TestReconcile_ExactUpdatesTitleAndURL(t *testing.T) {
	ctx := context.Background()
	d, store := newTestDedup(t)

	in := incoming(todo.SourceLinear, "ENG-1", "ENG-1: Fix login bug")
	created, err := d.Reconcile(ctx, in)
	require.NoError(t, err)

	in.Title = "ENG-1: Fix SSO login bug"
	in.SourceURL = "https://linear.app/acme/issue/ENG-1"
	in.Description = "ignored on the exact path"
	out, err := d.Reconcile(ctx, in)
	require.NoError(t, err)

	assert.Equal(t, ActionUpdated, out.Action)
	assert.Equal(t, created.Todo.ID, out.Todo.ID)
	assert.Equal(t, "ENG-1: Fix SSO login bug", out.Todo.Title)
	assert.Equal(t, "https://linear.app/acme/issue/ENG-1", out.Todo.SourceURL)
	assert.Empty(t, out.Todo.Description)
	assert.Equal(t, 1, count(t, store))
}

func TestReconcile_CompletedNotResurrected(t *testing.T) {
	ctx := context.Background()
	d, store := newTestDedup(t)

	in := incoming(todo.SourceGitHub, "acme/api#7", "Review PR #7")
	created, err := d.Reconcile(ctx, in)
	require.NoError(t, err)
	_, err = store.Complete(ctx, created.Todo.ID)
	require.NoError(t, err)

	out, err := d.Reconcile(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, MatchExact, out.Match.Kind)
	assert.Equal(t, todo.StatusCompleted, out.Todo.Status)
	assert.Equal(t, 1, count(t, store))
}

func TestReconcile_FuzzyMerge(t *testing.T) {
	ctx := context.Background()
	d, store := newTestDedup(t)

	first, err := d.Reconcile(ctx, incoming(todo.SourceGmail, "m-1", "Fix login bug"))
	require.NoError(t, err)

	in := incoming(todo.SourceGmail, "m-2", "fix login bug")
	in.Tags = []string{"gmail", "auth"}
	in.Urgency = 1
	out, err := d.Reconcile(ctx, in)
	require.NoError(t, err)

	assert.Equal(t, ActionMerged, out.Action)
	assert.Equal(t, MatchFuzzy, out.Match.Kind)
	assert.Equal(t, 1.0, out.Match.Score)
	assert.Equal(t, first.Todo.ID, out.Todo.ID)
	assert.Equal(t, "m-1", out.Todo.SourceID, "primary keeps its identity")
	assert.Equal(t, []string{"auth", "gmail"}, out.Todo.Tags)
	assert.Equal(t, 1, out.Todo.Priority)
	assert.Equal(t, 1, count(t, store))

	// Replaying the duplicate leaves state unchanged.
	again, err := d.Reconcile(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, ActionUnchanged, again.Action)
	assert.Equal(t, 1, count(t, store))
}

func TestReconcile_DistinctTitlesDoNotMerge(t *testing.T) {
	ctx := context.Background()
	d, store := newTestDedup(t)

	_, err := d.Reconcile(ctx, incoming(todo.SourceGmail, "m-1", "Fix login bug"))
	require.NoError(t, err)
	out, err := d.Reconcile(ctx, incoming(todo.SourceGmail, "m-2", "Update quarterly roadmap"))
	require.NoError(t, err)

	assert.Equal(t, ActionCreated, out.Action)
	assert.Equal(t, 2, count(t, store))
}

func TestReconcile_SameSourceDifferentDeadlinesDoNotMerge(t *testing.T) {
	ctx := context.Background()
	d, store := newTestDedup(t)

	feb := time.Date(2025, 2, 3, 0, 0, 0, 0, time.UTC)
	mar := time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)

	a := incoming(todo.SourceHumaans, "ta1", "Approve time away for Bo Chen (2025-02-03 to 2025-02-07)")
	a.DueDate = &feb
	_, err := d.Reconcile(ctx, a)
	require.NoError(t, err)

	b := incoming(todo.SourceHumaans, "ta2", "Approve time away for Bo Chen (2025-03-03 to 2025-03-04)")
	b.DueDate = &mar
	out, err := d.Reconcile(ctx, b)
	require.NoError(t, err)
	assert.Equal(t, ActionCreated, out.Action)
	assert.Equal(t, 2, count(t, store))

	// Another source with a different deadline still merges.
	c := incoming(todo.SourceSlack, "C1/9", "approve time away for bo chen (2025-03-03 to 2025-03-04)")
	c.DueDate = &feb
	out, err = d.Reconcile(ctx, c)
	require.NoError(t, err)
	assert.Equal(t, ActionMerged, out.Action)
	assert.Equal(t, 2, count(t, store))
}

func TestReconcile_FuzzyIgnoresCompleted(t *testing.T) {
	ctx := context.Background()
	d, store := newTestDedup(t)

	first, err := d.Reconcile(ctx, incoming(todo.SourceNotion, "p-1", "Review hiring RFC"))
	require.NoError(t, err)
	_, err = store.Complete(ctx, first.Todo.ID)
	require.NoError(t, err)

	out, err := d.Reconcile(ctx, incoming(todo.SourceNotion, "p-2", "Review hiring RFC"))
	require.NoError(t, err)
	assert.Equal(t, ActionCreated, out.Action)
	assert.Equal(t, 2, count(t, store))
}

func TestReconcile_InvalidTitleCreates(t *testing.T) {
	ctx := context.Background()
	d, store := newTestDedup(t)

	_, err := d.Reconcile(ctx, incoming(todo.SourceSlack, "C1/1", "Fix login bug"))
	require.NoError(t, err)

	out, err := d.Reconcile(ctx, incoming(todo.SourceSlack, "C1/2", "Fix login bug \xff"))
	require.NoError(t, err)
	assert.Equal(t, ActionCreated, out.Action)
	assert.Equal(t, 2, count(t, store))
}

func TestBestMatch_TieBreaks(t *testing.T) {
	d := New(nil, nil)

	older := todo.Todo{ID: "01B", Title: "Fix login bug", UpdatedAt: testNow.Add(-time.Hour)}
	newer := todo.Todo{ID: "01C", Title: "fix login bug", UpdatedAt: testNow}
	sameTimeLowID := todo.Todo{ID: "01A", Title: "Fix Login Bug", UpdatedAt: testNow}

	m := d.BestMatch(todo.Todo{Title: "fix login bug"}, []todo.Todo{older, newer})
	require.Equal(t, MatchFuzzy, m.Kind)
	assert.Equal(t, "01C", m.Target.ID)

	m = d.BestMatch(todo.Todo{Title: "fix login bug"}, []todo.Todo{older, newer, sameTimeLowID})
	assert.Equal(t, "01A", m.Target.ID)

	// A strictly better score beats recency.
	exactish := todo.Todo{ID: "01Z", Title: "fix login bugs", UpdatedAt: testNow.Add(time.Hour)}
	m = d.BestMatch(todo.Todo{Title: "fix login bug"}, []todo.Todo{exactish, older})
	assert.Equal(t, "01B", m.Target.ID)
}

func TestBestMatch_Threshold(t *testing.T) {
	strict := New(nil, nil, WithThreshold(0.99))
	m := strict.BestMatch(todo.Todo{Title: "Fix logn bug"}, []todo.Todo{{ID: "1", Title: "Fix login bug"}})
	assert.Equal(t, NoMatch, m.Kind)

	loose := New(nil, nil, WithThreshold(0.8))
	m = loose.BestMatch(todo.Todo{Title: "Fix logn bug"}, []todo.Todo{{ID: "1", Title: "Fix login bug"}})
	assert.Equal(t, MatchFuzzy, m.Kind)
}
