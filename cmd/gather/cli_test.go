package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpungsan/gather/internal/collector"
	"github.com/hpungsan/gather/internal/config"
	"github.com/hpungsan/gather/internal/db"
	"github.com/hpungsan/gather/internal/todo"
)

// dailyCollector returns one action item per requested day, titled from titles.
type dailyCollector struct {
	source todo.Source
	titles map[string]string

	// verbose records opts.Verbose for each call
	verbose []bool
}

func (d *dailyCollector) Source() todo.Source { return d.source }
func (d *dailyCollector) Enabled() bool       { return true }

func (d *dailyCollector) Collect(_ context.Context, opts collector.Options) (*collector.Result, error) {
	d.verbose = append(d.verbose, opts.Verbose)
	res := &collector.Result{
		Source:    d.source,
		Items:     []collector.RawItem{},
		Errors:    []string{},
		DateRange: collector.DateRange{From: opts.From, To: opts.To},
	}
	for day := opts.From; !day.After(opts.To); day = day.AddDate(0, 0, 1) {
		key := day.Format(collector.DateLayout)
		title, ok := d.titles[key]
		if !ok {
			continue
		}
		res.Items = append(res.Items, collector.RawItem{
			ID:     string(d.source) + "-" + key,
			Source: d.source,
			Title:  title,
			Date:   day,
			Flags:  collector.Flags{IsActionItem: true},
		})
	}
	return res, nil
}

// testOpener builds environments under t.TempDir() with a fake GitHub collector
// and no throttling delays.
func testOpener(t *testing.T) envOpener {
	t.Helper()
	return openerFor(newGitHubCollector())
}

func newGitHubCollector() *dailyCollector {
	return &dailyCollector{source: todo.SourceGitHub, titles: map[string]string{
		"2025-01-01": "Review payments refactor",
		"2025-01-02": "Fix flaky login test",
	}}
}

func openerFor(gh *dailyCollector) envOpener {
	return func(baseDir string) (*appEnv, error) {
		cfg := config.DefaultConfig()
		cfg.ResolvePaths(baseDir)
		cfg.Backfill.ChunkSize = config.ChunkDay
		cfg.Backfill.RetryDelay = 0
		cfg.Backfill.ChunkDelay = 0
		cfg.Backfill.CollectorDelay = 0

		database, err := db.Init(baseDir)
		if err != nil {
			return nil, err
		}
		return buildEnv(baseDir, cfg, database, zerolog.Nop(), nil, collector.NewStaticRegistry(gh)), nil
	}
}

type cliRun struct {
	stdout string
	stderr string
	err    error
}

func runCLI(t *testing.T, open envOpener, baseDir string, args ...string) cliRun {
	t.Helper()
	var stdout, stderr bytes.Buffer
	app := newCLIApp(open)
	app.Writer = &stdout
	app.ErrWriter = &stderr

	err := app.Run(append([]string{"gather", "--base-dir", baseDir}, args...))
	return cliRun{stdout: stdout.String(), stderr: stderr.String(), err: err}
}

func decode[T any](t *testing.T, s string) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal([]byte(s), &v), "output: %s", s)
	return v
}

func TestBackfillThenInspect(t *testing.T) {
	open := testOpener(t)
	dir := t.TempDir()

	run := runCLI(t, open, dir, "backfill", "--from", "2025-01-01", "--to", "2025-01-02", "--sources", "github")
	require.NoError(t, run.err)
	assert.Contains(t, run.stderr, "backfill success: 2 items, 0 errors (2 created")

	report := decode[struct {
		Result  string `json:"result"`
		Sources []struct {
			LastCompletedDate string `json:"last_completed_date"`
		} `json:"sources"`
	}](t, run.stdout)
	assert.Equal(t, "success", report.Result)
	require.Len(t, report.Sources, 1)
	assert.Equal(t, "2025-01-02", report.Sources[0].LastCompletedDate)

	run = runCLI(t, open, dir, "list")
	require.NoError(t, run.err)
	list := decode[struct {
		Items []todo.Todo `json:"items"`
	}](t, run.stdout)
	assert.Len(t, list.Items, 2)

	run = runCLI(t, open, dir, "status")
	require.NoError(t, run.err)
	assert.Contains(t, run.stdout, `"last_completed_date": "2025-01-02"`)

	run = runCLI(t, open, dir, "audit")
	require.NoError(t, run.err)
	audit := decode[struct {
		Entries []struct {
			Action string `json:"action"`
			Result string `json:"result"`
		} `json:"entries"`
	}](t, run.stdout)
	require.Len(t, audit.Entries, 1)
	assert.Equal(t, "backfill", audit.Entries[0].Action)
	assert.Equal(t, "success", audit.Entries[0].Result)

	// Rerunning the same range changes nothing.
	run = runCLI(t, open, dir, "backfill", "--from", "2025-01-01", "--to", "2025-01-02", "--sources", "github")
	require.NoError(t, run.err)
	assert.Contains(t, run.stderr, "(0 created, 0 merged, 0 updated)")
}

func TestBackfillReset(t *testing.T) {
	open := testOpener(t)
	dir := t.TempDir()

	require.NoError(t, runCLI(t, open, dir, "backfill", "--from", "2025-01-01", "--to", "2025-01-02", "--sources", "github").err)

	// Without --from the run resumes after the pointer and has nothing to do.
	run := runCLI(t, open, dir, "backfill", "--to", "2025-01-02", "--sources", "github")
	require.NoError(t, run.err)
	assert.Contains(t, run.stdout, `"up_to_date": true`)

	run = runCLI(t, open, dir, "backfill", "--reset", "--to", "2025-01-01", "--sources", "github")
	require.NoError(t, run.err)
	assert.NotContains(t, run.stdout, `"up_to_date": true`)
}

func TestVerboseReachesCollector(t *testing.T) {
	gh := newGitHubCollector()
	open := openerFor(gh)
	dir := t.TempDir()

	require.NoError(t, runCLI(t, open, dir, "backfill", "--from", "2025-01-01", "--to", "2025-01-01", "--sources", "github").err)
	require.NoError(t, runCLI(t, open, dir, "backfill", "--verbose", "--from", "2025-01-02", "--to", "2025-01-02", "--sources", "github").err)
	require.NoError(t, runCLI(t, open, dir, "collect", "--verbose", "--sources", "github").err)

	assert.Equal(t, []bool{false, true, true}, gh.verbose)
}

func TestBackfillInvalidFlags(t *testing.T) {
	open := testOpener(t)
	dir := t.TempDir()

	run := runCLI(t, open, dir, "backfill", "--from", "01/02/2025")
	require.Error(t, run.err)
	assert.Contains(t, run.err.Error(), "[INVALID_REQUEST]")

	run = runCLI(t, open, dir, "backfill", "--sources", "jira")
	require.Error(t, run.err)
	assert.Contains(t, run.err.Error(), "[INVALID_REQUEST]")

	run = runCLI(t, open, dir, "backfill", "--from", "2025-02-01", "--to", "2025-01-01")
	require.Error(t, run.err)
	assert.Contains(t, run.err.Error(), "[INVALID_REQUEST]")
}

func TestStatusChanges(t *testing.T) {
	open := testOpener(t)
	dir := t.TempDir()
	require.NoError(t, runCLI(t, open, dir, "backfill", "--from", "2025-01-01", "--to", "2025-01-01", "--sources", "github").err)

	list := decode[struct {
		Items []todo.Todo `json:"items"`
	}](t, runCLI(t, open, dir, "list").stdout)
	require.Len(t, list.Items, 1)
	id := list.Items[0].ID

	run := runCLI(t, open, dir, "complete", id)
	require.NoError(t, run.err)
	assert.Contains(t, run.stdout, `"status": "completed"`)

	run = runCLI(t, open, dir, "start", id)
	require.Error(t, run.err)
	assert.Contains(t, run.err.Error(), "[CONFLICT]")

	run = runCLI(t, open, dir, "reopen", id)
	require.NoError(t, run.err)
	assert.Contains(t, run.stdout, `"status": "pending"`)

	run = runCLI(t, open, dir, "get", "01NOPE")
	require.Error(t, run.err)
	assert.Contains(t, run.err.Error(), "[NOT_FOUND]")
}

func TestUpdateAndRescore(t *testing.T) {
	open := testOpener(t)
	dir := t.TempDir()
	require.NoError(t, runCLI(t, open, dir, "backfill", "--from", "2025-01-01", "--to", "2025-01-01", "--sources", "github").err)

	list := decode[struct {
		Items []todo.Todo `json:"items"`
	}](t, runCLI(t, open, dir, "list").stdout)
	require.Len(t, list.Items, 1)
	id := list.Items[0].ID

	due := time.Now().UTC().AddDate(0, 0, 1).Format(collector.DateLayout)
	run := runCLI(t, open, dir, "update", id, "--title", "Review payments v2", "--tags", "review, payments", "--due", due)
	require.NoError(t, run.err)
	updated := decode[todo.Todo](t, run.stdout)
	assert.Equal(t, "Review payments v2", updated.Title)
	assert.Equal(t, []string{"payments", "review"}, updated.Tags)
	require.NotNil(t, updated.DueDate)

	run = runCLI(t, open, dir, "rescore", "--dry-run")
	require.NoError(t, run.err)
	assert.Contains(t, run.stderr, "rescored 1 todos")
}

func TestConfigValidate(t *testing.T) {
	dir := t.TempDir()

	run := runCLI(t, openEnv, dir, "config", "validate")
	require.NoError(t, run.err)
	assert.Contains(t, run.stdout, `"valid": true`)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("backfill:\n  chunk_size: fortnight\n"), 0o600))
	run = runCLI(t, openEnv, dir, "config", "validate")
	require.Error(t, run.err)
	assert.Contains(t, run.err.Error(), "[INVALID_REQUEST]")
	assert.Contains(t, run.err.Error(), "chunk_size")
}

func TestOpenEnv_InvalidConfig(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("dedup:\n  threshold: 2\n"), 0o600))

	_, err := openEnv(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dedup.threshold")
}

func TestOpenEnv_WiresStack(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("log_file: \"-\"\n"), 0o600))

	env, err := openEnv(dir)
	require.NoError(t, err)
	defer env.Close()

	assert.Equal(t, filepath.Join(dir, "backfill-progress.json"), env.progress.Path())
	assert.Equal(t, filepath.Join(dir, "audit.jsonl"), env.audit.Path())
	assert.NotNil(t, env.orch)
	assert.NoError(t, env.db.Ping())
}

func TestAbortOnSignal_ReleasesAfterFirstSignal(t *testing.T) {
	var registered chan<- os.Signal
	stopped := make(chan chan<- os.Signal, 2)
	notifySignals = func(c chan<- os.Signal, _ ...os.Signal) { registered = c }
	stopSignals = func(c chan<- os.Signal) { stopped <- c }
	t.Cleanup(func() {
		notifySignals = signal.Notify
		stopSignals = signal.Stop
	})

	env, err := testOpener(t)(t.TempDir())
	require.NoError(t, err)
	defer env.Close()

	release := abortOnSignal(env.orch)
	require.NotNil(t, registered)
	registered <- os.Interrupt

	select {
	case c := <-stopped:
		assert.Equal(t, registered, c)
	case <-time.After(time.Second):
		t.Fatal("signal handler still registered after the first signal")
	}
	release()
}

func TestParseTags(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{"empty string", "", []string{}},
		{"single tag", "foo", []string{"foo"}},
		{"tags with spaces", " foo , bar ", []string{"foo", "bar"}},
		{"empty tags filtered", "foo,,bar,", []string{"foo", "bar"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, parseTags(tt.input))
		})
	}
}

func TestEnabledSources_DefaultNone(t *testing.T) {
	assert.Empty(t, enabledSources(config.DefaultConfig()))

	cfg := config.DefaultConfig()
	cfg.Sources["github"] = config.SourceConfig{Enabled: boolPtr(true)}
	assert.Equal(t, []todo.Source{todo.SourceGitHub}, enabledSources(cfg))
}

func boolPtr(v bool) *bool { return &v }
