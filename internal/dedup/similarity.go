package dedup

import (
	"errors"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/xrash/smetrics"

	"github.com/hpungsan/gather/internal/todo"
)

// DefaultThreshold is the minimum similarity for a fuzzy merge.
const DefaultThreshold = 0.85

var (
	// ErrInvalidUTF8 is returned when a title is not valid UTF-8.
	ErrInvalidUTF8 = errors.New("title is not valid UTF-8")

	// ErrEmptyTitle is returned when a title normalizes to nothing.
	ErrEmptyTitle = errors.New("title is empty after normalization")
)

// Similarity scores two titles in [0,1] after case and whitespace
// normalization. The score is the better of the edit-distance ratio of the
// titles and that of their sorted tokens, so reordered words still match.
func Similarity(a, b string) (float64, error) {
	if !utf8.ValidString(a) || !utf8.ValidString(b) {
		return 0, ErrInvalidUTF8
	}

	na, nb := todo.NormalizeTitle(a), todo.NormalizeTitle(b)
	if na == "" || nb == "" {
		return 0, ErrEmptyTitle
	}
	if na == nb {
		return 1, nil
	}

	return max(editRatio(na, nb), editRatio(sortTokens(na), sortTokens(nb))), nil
}

// editRatio is 1 - levenshtein(a, b) / max(len(a), len(b)).
func editRatio(a, b string) float64 {
	longest := max(len(a), len(b))
	if longest == 0 {
		return 1
	}
	d := smetrics.WagnerFischer(a, b, 1, 1, 1)
	return 1 - float64(d)/float64(longest)
}

func sortTokens(s string) string {
	tokens := strings.Fields(s)
	sort.Strings(tokens)
	return strings.Join(tokens, " ")
}
