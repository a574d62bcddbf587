package todo

import (
	"fmt"
	"strings"
)

// Source identifies one upstream system. The set is closed.
type Source string

const (
	SourceLinear       Source = "linear"
	SourceGitHub       Source = "github"
	SourceSlack        Source = "slack"
	SourceGmail        Source = "gmail"
	SourceGoogleDocs   Source = "google-docs"
	SourceGoogleSlides Source = "google-slides"
	SourceNotion       Source = "notion"
	SourceGranola      Source = "granola"
	SourceHumaans      Source = "humaans"
	SourceDevAnalytics Source = "dev-analytics"
	SourceCalendar     Source = "calendar"
	SourceIncidentIO   Source = "incident-io"
)

// AllSources lists every source in a stable order.
var AllSources = []Source{
	SourceLinear,
	SourceGitHub,
	SourceSlack,
	SourceGmail,
	SourceGoogleDocs,
	SourceGoogleSlides,
	SourceNotion,
	SourceGranola,
	SourceHumaans,
	SourceDevAnalytics,
	SourceCalendar,
	SourceIncidentIO,
}

// Valid reports whether s is one of the known sources.
func (s Source) Valid() bool {
	for _, known := range AllSources {
		if s == known {
			return true
		}
	}
	return false
}

// ParseSource validates a source name (case-insensitive).
func ParseSource(name string) (Source, error) {
	s := Source(strings.ToLower(strings.TrimSpace(name)))
	if !s.Valid() {
		return "", fmt.Errorf("unknown source %q", name)
	}
	return s, nil
}

// ParseSources parses a list of source names, dropping duplicates.
func ParseSources(names []string) ([]Source, error) {
	seen := make(map[Source]bool, len(names))
	out := make([]Source, 0, len(names))
	for _, n := range names {
		s, err := ParseSource(n)
		if err != nil {
			return nil, err
		}
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out, nil
}
