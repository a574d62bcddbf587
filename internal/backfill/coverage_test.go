package backfill

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpungsan/gather/internal/ledger"
)

func span(from, to string) Chunk { return Chunk{From: d(from), To: d(to)} }

func TestSubtract(t *testing.T) {
	week := span("2025-01-01", "2025-01-07")

	tests := []struct {
		name string
		cut  Chunk
		want []string
	}{
		{"disjoint", span("2025-01-09", "2025-01-10"), []string{"2025-01-01..2025-01-07"}},
		{"covers all", span("2024-12-31", "2025-01-08"), []string{}},
		{"head", span("2025-01-01", "2025-01-02"), []string{"2025-01-03..2025-01-07"}},
		{"tail", span("2025-01-06", "2025-01-09"), []string{"2025-01-01..2025-01-05"}},
		{"middle", span("2025-01-03", "2025-01-04"), []string{"2025-01-01..2025-01-02", "2025-01-05..2025-01-07"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ranges(subtract(week, tt.cut)))
		})
	}
}

func TestMergeRanges(t *testing.T) {
	got := mergeRanges([]Chunk{
		span("2025-01-05", "2025-01-06"),
		span("2025-01-01", "2025-01-02"),
		span("2025-01-03", "2025-01-03"),
		span("2025-01-09", "2025-01-09"),
	})
	assert.Equal(t, []string{"2025-01-01..2025-01-06", "2025-01-09..2025-01-09"}, ranges(got))
	assert.Nil(t, mergeRanges(nil))
}

func TestMarkCompleted_SplitsWeekFailureByDays(t *testing.T) {
	e := ledger.ProgressEntry{}
	markFailed(&e, span("2025-01-01", "2025-01-07"), ledger.ChunkFailure{Error: "503", Attempts: 3})
	require.Len(t, e.FailedChunks, 1)

	markCompleted(&e, span("2025-01-03", "2025-01-03"))
	require.Len(t, e.FailedChunks, 2)
	assert.Equal(t, "2025-01-01", e.FailedChunks[0].From)
	assert.Equal(t, "2025-01-02", e.FailedChunks[0].To)
	assert.Equal(t, "2025-01-04", e.FailedChunks[1].From)
	assert.Equal(t, "2025-01-07", e.FailedChunks[1].To)
	assert.Equal(t, "503", e.FailedChunks[1].Error)
	assert.Empty(t, e.LastCompletedDate, "a failure precedes the completed day")
	assert.Equal(t, []ledger.DayRange{{From: "2025-01-03", To: "2025-01-03"}}, e.CompletedChunks)

	markCompleted(&e, span("2025-01-01", "2025-01-02"))
	assert.Equal(t, "2025-01-03", e.LastCompletedDate)
	assert.Empty(t, e.CompletedChunks)
	require.Len(t, e.FailedChunks, 1)
	assert.Equal(t, "2025-01-04", e.FailedChunks[0].From)

	markCompleted(&e, span("2025-01-04", "2025-01-10"))
	assert.Equal(t, "2025-01-10", e.LastCompletedDate)
	assert.Nil(t, e.FailedChunks)
}

func TestMarkFailed_IgnoresDaysAlreadyCollected(t *testing.T) {
	e := ledger.ProgressEntry{
		LastCompletedDate: "2025-01-03",
		CompletedChunks:   []ledger.DayRange{{From: "2025-01-06", To: "2025-01-06"}},
	}

	markFailed(&e, span("2025-01-01", "2025-01-07"), ledger.ChunkFailure{Attempts: 3})
	require.Len(t, e.FailedChunks, 2)
	assert.Equal(t, "2025-01-04", e.FailedChunks[0].From)
	assert.Equal(t, "2025-01-05", e.FailedChunks[0].To)
	assert.Equal(t, "2025-01-07", e.FailedChunks[1].From)

	markFailed(&e, span("2025-01-01", "2025-01-03"), ledger.ChunkFailure{Attempts: 3})
	assert.Len(t, e.FailedChunks, 2, "days behind the pointer are never recorded as failed")
}

func TestPendingChunks(t *testing.T) {
	e := ledger.ProgressEntry{CompletedChunks: []ledger.DayRange{{From: "2025-01-03", To: "2025-01-04"}}}

	pending, skipped := pendingChunks([]Chunk{
		span("2025-01-02", "2025-01-02"),
		span("2025-01-03", "2025-01-03"),
		span("2025-01-04", "2025-01-06"),
	}, e)
	assert.Equal(t, 1, skipped)
	assert.Equal(t, []string{"2025-01-02..2025-01-02", "2025-01-05..2025-01-06"}, ranges(pending))
}
