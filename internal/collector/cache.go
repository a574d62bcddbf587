package collector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hpungsan/gather/internal/todo"
)

// IncrementalCache stores the last successful check per source as
// <dir>/<source>.json so incremental runs only fetch what changed since.
type IncrementalCache struct {
	dir string
}

type cacheFile struct {
	LastCheck time.Time `json:"last_check"`
}

// NewIncrementalCache returns a cache rooted at dir (usually <base>/cache).
func NewIncrementalCache(dir string) *IncrementalCache {
	return &IncrementalCache{dir: dir}
}

func (c *IncrementalCache) path(source todo.Source) string {
	return filepath.Join(c.dir, string(source)+".json")
}

// LastCheck returns the stored last_check for source. ok is false when no
// cache file exists yet.
func (c *IncrementalCache) LastCheck(source todo.Source) (t time.Time, ok bool, err error) {
	data, err := os.ReadFile(c.path(source))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, err
	}

	var f cacheFile
	if err := json.Unmarshal(data, &f); err != nil {
		return time.Time{}, false, fmt.Errorf("corrupt cache %s: %w", c.path(source), err)
	}
	return f.LastCheck, !f.LastCheck.IsZero(), nil
}

// Save records t as the last successful check, writing to a temp file then renaming.
func (c *IncrementalCache) Save(source todo.Source, t time.Time) error {
	if err := os.MkdirAll(c.dir, 0700); err != nil {
		return err
	}

	data, err := json.Marshal(cacheFile{LastCheck: t.UTC()})
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(c.dir, "."+string(source)+"-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer func() { _ = os.Remove(tmpPath) }()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, c.path(source))
}

// incremental wraps a collector so Options.Incremental narrows From to the
// cached last check, and the cache advances only after a clean collect.
type incremental struct {
	Collector
	cache *IncrementalCache
	now   func() time.Time
}

func (i *incremental) Collect(ctx context.Context, opts Options) (*Result, error) {
	if !opts.Incremental || i.cache == nil {
		return i.Collector.Collect(ctx, opts)
	}

	started := i.now()
	last, ok, err := i.cache.LastCheck(i.Source())
	if err != nil {
		return nil, err
	}
	if ok && (opts.From.IsZero() || last.After(opts.From)) {
		opts.From = Day(last)
	}

	res, err := i.Collector.Collect(ctx, opts)
	if err != nil {
		return nil, err
	}
	if len(res.Errors) == 0 {
		if err := i.cache.Save(i.Source(), started); err != nil {
			res.addError("save incremental cache: %v", err)
		}
	}
	return res, nil
}
