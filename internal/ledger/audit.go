package ledger

import (
	"bufio"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/hpungsan/gather/internal/errors"
	"github.com/hpungsan/gather/internal/todo"
)

// Action is the kind of run recorded in the audit log.
type Action string

const (
	ActionGenerate   Action = "generate"
	ActionRegenerate Action = "regenerate"
	ActionBackfill   Action = "backfill"
)

// Trigger says what started a run.
type Trigger string

const (
	TriggerManual     Trigger = "manual"
	TriggerScheduled  Trigger = "scheduled"
	TriggerDependency Trigger = "dependency"
)

// RunResult is the terminal outcome of a run.
type RunResult string

const (
	ResultSuccess RunResult = "success"
	ResultPartial RunResult = "partial"
	ResultFailed  RunResult = "failed"
)

// AuditEntry records one run attempt. Entries are written once, with a
// terminal Result, and never rewritten.
type AuditEntry struct {
	ID             string    `json:"id"`
	Action         Action    `json:"action"`
	Target         string    `json:"target"`
	TriggeredBy    Trigger   `json:"triggered_by"`
	StartedAt      time.Time `json:"started_at"`
	CompletedAt    time.Time `json:"completed_at"`
	Result         RunResult `json:"result"`
	OutputPath     string    `json:"output_path,omitempty"`
	ItemsCollected int       `json:"items_collected"`
	Errors         int       `json:"errors"`
	Created        int       `json:"created"`
	Merged         int       `json:"merged"`
	Message        string    `json:"message,omitempty"`
}

// Audit is the append-only JSON-Lines run history.
type Audit struct {
	path   string
	mu     sync.Mutex
	logger zerolog.Logger
}

// NewAudit returns an audit log backed by path.
func NewAudit(path string, logger zerolog.Logger) *Audit {
	return &Audit{path: path, logger: logger.With().Str("component", "audit").Logger()}
}

// Path returns the audit log location.
func (a *Audit) Path() string { return a.path }

// Target renders the source list of a run; an empty list means "all".
func Target(sources []todo.Source) string {
	if len(sources) == 0 {
		return "all"
	}
	names := make([]string, len(sources))
	for i, s := range sources {
		names[i] = string(s)
	}
	return strings.Join(names, ",")
}

// Append writes e as one line. A missing ID is assigned; a missing Result is
// rejected. Write failures are returned as LEDGER_WRITE errors.
func (a *Audit) Append(e AuditEntry) (AuditEntry, error) {
	if e.Result == "" {
		return e, errors.NewInvalidRequest("audit entry requires a terminal result")
	}
	if e.CompletedAt.IsZero() {
		e.CompletedAt = time.Now().UTC()
	}
	if e.ID == "" {
		e.ID = todo.NewID(e.CompletedAt)
	}

	line, err := json.Marshal(e)
	if err != nil {
		return e, errors.NewInternal(err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.appendLine(append(line, '\n')); err != nil {
		return e, errors.NewLedgerWrite(a.path, err)
	}
	return e, nil
}

func (a *Audit) appendLine(line []byte) error {
	if err := os.MkdirAll(filepath.Dir(a.path), 0700); err != nil {
		return err
	}

	f, err := openFileNoFollow(a.path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0600)
	if err != nil {
		return err
	}

	if _, err := f.Write(line); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// List returns up to limit entries, newest first. limit <= 0 returns all.
// Malformed lines are skipped with a warning.
func (a *Audit) List(limit int) ([]AuditEntry, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	f, err := os.Open(a.path)
	if err != nil {
		if stderrors.Is(err, os.ErrNotExist) {
			return []AuditEntry{}, nil
		}
		return nil, errors.NewInternal(fmt.Errorf("read audit log: %w", err))
	}
	defer f.Close()

	var entries []AuditEntry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e AuditEntry
		if err := json.Unmarshal(line, &e); err != nil || e.Result == "" {
			a.logger.Warn().Int("line", lineNo).Str("path", a.path).Msg("skipping malformed audit line")
			continue
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("read audit log: %w", err))
	}

	out := make([]AuditEntry, 0, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		out = append(out, entries[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}
