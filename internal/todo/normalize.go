package todo

import (
	"regexp"
	"sort"
	"strings"
)

// whitespaceRegex matches one or more whitespace characters
var whitespaceRegex = regexp.MustCompile(`\s+`)

// NormalizeTitle prepares a title for comparison:
// trim, lowercase, collapse internal whitespace to single spaces.
func NormalizeTitle(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ToLower(s)
	return whitespaceRegex.ReplaceAllString(s, " ")
}

// NormalizeTag lowercases a tag and replaces inner whitespace with dashes.
func NormalizeTag(s string) string {
	return strings.ReplaceAll(NormalizeTitle(s), " ", "-")
}

// TagSet builds a sorted, deduplicated tag list. Empty tags are dropped.
func TagSet(tags ...string) []string {
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = NormalizeTag(t)
		if t != "" && !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	sort.Strings(out)
	return out
}

// UnionTags returns the set union of a and b.
func UnionTags(a, b []string) []string {
	all := make([]string, 0, len(a)+len(b))
	all = append(all, a...)
	all = append(all, b...)
	return TagSet(all...)
}

// HasTag reports whether tags contains tag (after normalization).
func HasTag(tags []string, tag string) bool {
	tag = NormalizeTag(tag)
	for _, t := range tags {
		if t == tag {
			return true
		}
	}
	return false
}
