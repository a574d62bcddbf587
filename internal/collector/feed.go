package collector

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hpungsan/gather/internal/todo"
)

// maxFeedLine bounds a single JSON line in a feed file.
const maxFeedLine = 1 << 20

// feedCollector reads items exported by external tooling to
// <feed_dir>/<source>.jsonl, one JSON object per line, and keeps those whose
// date falls in the requested range. A missing feed file yields no items.
// Malformed lines are reported in Result.Errors and skipped.
type feedCollector struct {
	base
	dir string
}

func feedFactory(source todo.Source) Factory {
	return func(deps Deps) Collector {
		return &feedCollector{base: newBase(source, deps), dir: deps.Config.FeedDir}
	}
}

// feedLine is the on-disk shape of one exported item.
type feedLine struct {
	ID           string         `json:"id"`
	Source       string         `json:"source"`
	Title        string         `json:"title"`
	Content      string         `json:"content"`
	URL          string         `json:"url"`
	Date         string         `json:"date"`
	Author       string         `json:"author"`
	Participants []string       `json:"participants"`
	Metadata     map[string]any `json:"metadata"`
	Flags        struct {
		IsActionItem bool   `json:"isActionItem"`
		Priority     string `json:"priority"`
		Category     string `json:"category"`
	} `json:"flags"`
	DueDate string `json:"dueDate"`
}

func (c *feedCollector) path() string {
	if p := c.settings().FeedPath; p != "" {
		return p
	}
	return filepath.Join(c.dir, string(c.source)+".jsonl")
}

func (c *feedCollector) Collect(ctx context.Context, opts Options) (*Result, error) {
	started := time.Now()
	from, to := resolveRange(opts, c.now())
	res := newResult(c.source, from, to)

	f, err := os.Open(c.path())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			c.logger.Debug().Str("path", c.path()).Msg("no feed file")
			return res.finish(started), nil
		}
		return nil, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxFeedLine)

	lineNo := 0
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		item, err := c.parseLine(line)
		if err != nil {
			res.addError("%s line %d: %v", filepath.Base(c.path()), lineNo, err)
			c.logger.Warn().Err(err).Int("line", lineNo).Msg("skipping malformed feed line")
			continue
		}
		if inRange(item.Date, from, to) {
			res.Items = append(res.Items, item)
		}
	}
	if err := scanner.Err(); err != nil {
		res.addError("read %s: %v", filepath.Base(c.path()), err)
	}

	if opts.Verbose {
		c.logger.Info().Int("items", len(res.Items)).Int("errors", len(res.Errors)).Msg("feed collect complete")
	}
	return res.finish(started), nil
}

func (c *feedCollector) parseLine(line []byte) (RawItem, error) {
	var fl feedLine
	if err := json.Unmarshal(line, &fl); err != nil {
		return RawItem{}, err
	}
	if fl.ID == "" {
		return RawItem{}, fmt.Errorf("missing id")
	}
	if fl.Source != "" && fl.Source != string(c.source) {
		return RawItem{}, fmt.Errorf("source %q does not match feed %q", fl.Source, c.source)
	}

	date, err := ParseDate(fl.Date)
	if err != nil {
		return RawItem{}, err
	}

	item := RawItem{
		ID:           fl.ID,
		Source:       c.source,
		Title:        fl.Title,
		Content:      fl.Content,
		URL:          fl.URL,
		Date:         date,
		Author:       fl.Author,
		Participants: fl.Participants,
		Metadata:     fl.Metadata,
		Flags: Flags{
			IsActionItem: fl.Flags.IsActionItem,
			Priority:     fl.Flags.Priority,
			Category:     fl.Flags.Category,
		},
	}
	if fl.DueDate != "" {
		due, err := ParseDate(fl.DueDate)
		if err != nil {
			return RawItem{}, fmt.Errorf("dueDate: %w", err)
		}
		item.DueDate = &due
	}
	return item, nil
}
