package collector

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpungsan/gather/internal/todo"
)

func TestIncrementalCache_SaveAndLoad(t *testing.T) {
	cache := NewIncrementalCache(filepath.Join(t.TempDir(), "cache"))

	_, ok, err := cache.LastCheck(todo.SourceLinear)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, cache.Save(todo.SourceLinear, fixedNow))

	got, ok, err := cache.LastCheck(todo.SourceLinear)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, fixedNow.Equal(got))
}

func TestIncrementalCache_Corrupt(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "slack.json"), []byte("{"), 0600))

	_, _, err := NewIncrementalCache(dir).LastCheck(todo.SourceSlack)
	assert.Error(t, err)
}

func TestIncremental_NarrowsFromAndAdvancesOnCleanCollect(t *testing.T) {
	cache := NewIncrementalCache(t.TempDir())
	require.NoError(t, cache.Save(todo.SourceGmail, day("2025-01-10").Add(3*time.Hour)))

	fake := &fakeCollector{source: todo.SourceGmail, enabled: true, result: newResult(todo.SourceGmail, day("2025-01-10"), day("2025-01-15"))}
	wrapped := &incremental{Collector: fake, cache: cache, now: func() time.Time { return fixedNow }}

	_, err := wrapped.Collect(context.Background(), Options{From: day("2025-01-01"), To: day("2025-01-15"), Incremental: true})
	require.NoError(t, err)

	require.Len(t, fake.calls, 1)
	assert.Equal(t, day("2025-01-10"), fake.calls[0].From)

	last, _, err := cache.LastCheck(todo.SourceGmail)
	require.NoError(t, err)
	assert.True(t, fixedNow.Equal(last))
}

func TestIncremental_DoesNotAdvanceOnFailure(t *testing.T) {
	cache := NewIncrementalCache(t.TempDir())
	start := day("2025-01-10")
	require.NoError(t, cache.Save(todo.SourceGmail, start))

	soft := newResult(todo.SourceGmail, start, start)
	soft.addError("page 2: timeout")

	for _, fake := range []*fakeCollector{
		{source: todo.SourceGmail, err: errors.New("network down")},
		{source: todo.SourceGmail, result: soft},
	} {
		wrapped := &incremental{Collector: fake, cache: cache, now: func() time.Time { return fixedNow }}
		_, _ = wrapped.Collect(context.Background(), Options{Incremental: true})

		last, _, err := cache.LastCheck(todo.SourceGmail)
		require.NoError(t, err)
		assert.True(t, start.Equal(last))
	}
}

func TestIncremental_FullRunBypassesCache(t *testing.T) {
	cache := NewIncrementalCache(t.TempDir())
	require.NoError(t, cache.Save(todo.SourceGmail, day("2025-01-10")))

	fake := &fakeCollector{source: todo.SourceGmail, result: newResult(todo.SourceGmail, time.Time{}, time.Time{})}
	wrapped := &incremental{Collector: fake, cache: cache, now: func() time.Time { return fixedNow }}

	_, err := wrapped.Collect(context.Background(), Options{From: day("2025-01-01")})
	require.NoError(t, err)
	assert.Equal(t, day("2025-01-01"), fake.calls[0].From)
}
