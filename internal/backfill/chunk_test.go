package backfill

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpungsan/gather/internal/config"
)

func d(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func ranges(chunks []Chunk) []string {
	out := make([]string, len(chunks))
	for i, c := range chunks {
		out[i] = c.String()
	}
	return out
}

func TestSplit(t *testing.T) {
	tests := []struct {
		name     string
		from, to string
		size     string
		want     []string
	}{
		{"day", "2025-01-01", "2025-01-03", config.ChunkDay,
			[]string{"2025-01-01..2025-01-01", "2025-01-02..2025-01-02", "2025-01-03..2025-01-03"}},
		{"week from range start", "2025-01-03", "2025-01-20", config.ChunkWeek,
			[]string{"2025-01-03..2025-01-09", "2025-01-10..2025-01-16", "2025-01-17..2025-01-20"}},
		{"month to calendar end", "2025-01-15", "2025-03-10", config.ChunkMonth,
			[]string{"2025-01-15..2025-01-31", "2025-02-01..2025-02-28", "2025-03-01..2025-03-10"}},
		{"single day", "2025-02-01", "2025-02-01", config.ChunkWeek,
			[]string{"2025-02-01..2025-02-01"}},
		{"leap february", "2024-02-10", "2024-03-01", config.ChunkMonth,
			[]string{"2024-02-10..2024-02-29", "2024-03-01..2024-03-01"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chunks, err := Split(d(tt.from), d(tt.to), tt.size)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ranges(chunks))
		})
	}
}

func TestSplit_EmptyAndInvalid(t *testing.T) {
	chunks, err := Split(d("2025-01-05"), d("2025-01-01"), config.ChunkDay)
	require.NoError(t, err)
	assert.Empty(t, chunks)

	_, err = Split(d("2025-01-01"), d("2025-01-05"), "fortnight")
	require.Error(t, err)
}

func TestSplit_ContiguousCover(t *testing.T) {
	for _, size := range []string{config.ChunkDay, config.ChunkWeek, config.ChunkMonth} {
		chunks, err := Split(d("2024-12-17"), d("2025-04-02"), size)
		require.NoError(t, err)
		require.NotEmpty(t, chunks)

		assert.Equal(t, d("2024-12-17"), chunks[0].From, size)
		assert.Equal(t, d("2025-04-02"), chunks[len(chunks)-1].To, size)
		for i := 1; i < len(chunks); i++ {
			assert.Equal(t, chunks[i-1].To.AddDate(0, 0, 1), chunks[i].From, size)
		}
	}
}
