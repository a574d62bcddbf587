// Package ledger persists backfill progress and the append-only run audit log.
package ledger

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/hpungsan/gather/internal/errors"
	"github.com/hpungsan/gather/internal/todo"
)

// DateLayout is the layout of dates stored in the progress file.
const DateLayout = "2006-01-02"

// ChunkFailure flags a chunk that exhausted its retries and is still unresolved.
type ChunkFailure struct {
	From     string    `json:"from"`
	To       string    `json:"to"`
	Error    string    `json:"error"`
	Attempts int       `json:"attempts"`
	FailedAt time.Time `json:"failed_at"`
}

// DayRange is an inclusive range of days.
type DayRange struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// ProgressEntry is the per-source resumption watermark.
type ProgressEntry struct {
	// LastCompletedDate never decreases across runs
	LastCompletedDate string         `json:"last_completed_date,omitempty"`
	ItemsCollected    int            `json:"items_collected"`
	Errors            int            `json:"errors"`
	StartedAt         time.Time      `json:"started_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
	FailedChunks      []ChunkFailure `json:"failed_chunks,omitempty"`

	// CompletedChunks are days collected past the pointer while an earlier
	// gap is unresolved. They are skipped on resume and absorbed by the
	// pointer once the gap closes.
	CompletedChunks []DayRange `json:"completed_chunks,omitempty"`
}

// LastCompleted parses LastCompletedDate. ok is false when no chunk has completed.
func (e ProgressEntry) LastCompleted() (time.Time, bool) {
	if e.LastCompletedDate == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(DateLayout, e.LastCompletedDate)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// Progress is the single-writer progress file: a JSON object keyed by source,
// rewritten whole on every update via temp file, fsync and rename.
type Progress struct {
	path string
	mu   sync.Mutex
}

// NewProgress returns a ledger backed by path.
func NewProgress(path string) *Progress {
	return &Progress{path: path}
}

// Path returns the progress file location.
func (p *Progress) Path() string { return p.path }

// Load reads every entry. A missing file is an empty ledger; a corrupt file is an error.
func (p *Progress) Load() (map[todo.Source]ProgressEntry, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.load()
}

// Get returns the entry for source.
func (p *Progress) Get(source todo.Source) (ProgressEntry, bool, error) {
	all, err := p.Load()
	if err != nil {
		return ProgressEntry{}, false, err
	}
	e, ok := all[source]
	return e, ok, nil
}

// Update applies fn to the source's entry and persists the whole ledger.
// A decrease of LastCompletedDate made by fn is discarded. Write failures are
// returned as LEDGER_WRITE errors.
func (p *Progress) Update(source todo.Source, fn func(*ProgressEntry)) (ProgressEntry, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	all, err := p.load()
	if err != nil {
		return ProgressEntry{}, err
	}

	prev := all[source]
	next := prev
	next.FailedChunks = append([]ChunkFailure(nil), prev.FailedChunks...)
	next.CompletedChunks = append([]DayRange(nil), prev.CompletedChunks...)
	fn(&next)

	if prev.LastCompletedDate != "" && next.LastCompletedDate < prev.LastCompletedDate {
		next.LastCompletedDate = prev.LastCompletedDate
	}

	all[source] = next
	if err := p.write(all); err != nil {
		return ProgressEntry{}, errors.NewLedgerWrite(p.path, err)
	}
	return next, nil
}

// Reset removes the entry for source so the next backfill starts from its
// configured start date.
func (p *Progress) Reset(source todo.Source) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	all, err := p.load()
	if err != nil {
		return err
	}
	if _, ok := all[source]; !ok {
		return nil
	}
	delete(all, source)
	if err := p.write(all); err != nil {
		return errors.NewLedgerWrite(p.path, err)
	}
	return nil
}

func (p *Progress) load() (map[todo.Source]ProgressEntry, error) {
	all := make(map[todo.Source]ProgressEntry)

	data, err := os.ReadFile(p.path)
	if err != nil {
		if stderrors.Is(err, os.ErrNotExist) {
			return all, nil
		}
		return nil, errors.NewInternal(fmt.Errorf("read progress: %w", err))
	}
	if len(data) == 0 {
		return all, nil
	}
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("corrupt progress file %s: %w", p.path, err))
	}
	return all, nil
}

// write replaces the progress file atomically: temp file, fsync, rename.
func (p *Progress) write(all map[todo.Source]ProgressEntry) error {
	data, err := json.MarshalIndent(all, "", "  ")
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(p.path), 0700); err != nil {
		return err
	}

	randBytes := make([]byte, 8)
	if _, err := rand.Read(randBytes); err != nil {
		return fmt.Errorf("failed to generate temp file name: %w", err)
	}
	tempPath := p.path + "." + hex.EncodeToString(randBytes) + ".tmp"
	file, err := openFileNoFollow(tempPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}

	success := false
	defer func() {
		if file != nil {
			file.Close()
		}
		if !success {
			os.Remove(tempPath)
		}
	}()

	if _, err := file.Write(append(data, '\n')); err != nil {
		return err
	}
	if err := file.Sync(); err != nil {
		return err
	}
	if err := file.Close(); err != nil {
		return err
	}
	file = nil

	if info, err := os.Lstat(p.path); err == nil && info.Mode()&os.ModeSymlink != 0 {
		return fmt.Errorf("progress path is a symlink")
	}

	if err := replaceFile(tempPath, p.path); err != nil {
		return err
	}
	success = true
	return nil
}
