package dedup

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimilarity(t *testing.T) {
	tests := []struct {
		name    string
		a, b    string
		atLeast float64
		below   float64
	}{
		{"case and whitespace", "Fix login bug", "  fix   LOGIN bug", 1, 0},
		{"reordered tokens", "login bug fix", "fix login bug", 1, 0},
		{"one char typo", "Fix login bug", "Fix logn bug", 0.85, 0},
		{"different prefix", "ENG-1: Fix login bug", "ENG-3: fix login bug", 0.85, 0},
		{"unrelated", "Fix login bug", "Update quarterly roadmap", 0, 0.85},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score, err := Similarity(tt.a, tt.b)
			require.NoError(t, err)
			assert.GreaterOrEqual(t, score, tt.atLeast)
			assert.LessOrEqual(t, score, 1.0)
			if tt.below > 0 {
				assert.Less(t, score, tt.below)
			}

			// symmetric
			rev, err := Similarity(tt.b, tt.a)
			require.NoError(t, err)
			assert.InDelta(t, score, rev, 1e-9)
		})
	}
}

func TestSimilarity_Errors(t *testing.T) {
	_, err := Similarity("ok", "bad \xff title")
	assert.ErrorIs(t, err, ErrInvalidUTF8)

	_, err = Similarity(" \t", "title")
	assert.ErrorIs(t, err, ErrEmptyTitle)
}
