package collector

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/hpungsan/gather/internal/config"
	"github.com/hpungsan/gather/internal/todo"
)

var fixedNow = time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)

// testDeps enables source and points it at baseURL.
func testDeps(t *testing.T, source todo.Source, sc config.SourceConfig) Deps {
	t.Helper()

	enabled := true
	sc.Enabled = &enabled

	cfg := config.DefaultConfig()
	cfg.FeedDir = t.TempDir()
	cfg.Sources[string(source)] = sc

	return Deps{
		Config: cfg,
		HTTP:   NewHTTPClient(5 * time.Second),
		Cache:  NewIncrementalCache(t.TempDir()),
		Lookup: NewLookupCache(16),
		Logger: zerolog.Nop(),
		Now:    func() time.Time { return fixedNow },
	}
}

func day(s string) time.Time {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

// fakeCollector returns canned results; used to exercise the incremental wrapper.
type fakeCollector struct {
	source  todo.Source
	enabled bool
	calls   []Options
	result  *Result
	err     error
}

func (f *fakeCollector) Source() todo.Source { return f.source }
func (f *fakeCollector) Enabled() bool       { return f.enabled }
func (f *fakeCollector) Collect(_ context.Context, opts Options) (*Result, error) {
	f.calls = append(f.calls, opts)
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}
