// Package dedup reconciles normalized Todos against the canonical store so
// each real-world item has at most one active record.
//
// Reconciliation is two-pass: exact identity on (source, source id) across
// every status, then fuzzy title similarity against the active set. The
// decision is returned as data (Match, Outcome) rather than signalled through
// control flow.
package dedup

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/hpungsan/gather/internal/errors"
	"github.com/hpungsan/gather/internal/priority"
	"github.com/hpungsan/gather/internal/todo"
)

// MatchKind says how an incoming todo matched the store.
type MatchKind int

const (
	NoMatch MatchKind = iota
	MatchExact
	MatchFuzzy
)

func (k MatchKind) String() string {
	switch k {
	case MatchExact:
		return "exact"
	case MatchFuzzy:
		return "fuzzy"
	default:
		return "none"
	}
}

// Match is the identity decision for one incoming todo.
type Match struct {
	Kind   MatchKind
	Target *todo.Todo
	Score  float64
}

// Action is what reconciliation did to the store.
type Action string

const (
	ActionCreated   Action = "created"
	ActionMerged    Action = "merged"
	ActionUpdated   Action = "updated"
	ActionUnchanged Action = "unchanged"
)

// Outcome is the result of reconciling one incoming todo.
type Outcome struct {
	Action Action
	Todo   todo.Todo
	Match  Match
}

// Deduplicator reconciles incoming todos against a todo.Store.
type Deduplicator struct {
	store     todo.Store
	scorer    *priority.Scorer
	threshold float64
	now       func() time.Time
	logger    zerolog.Logger
}

// Option configures a Deduplicator.
type Option func(*Deduplicator)

// WithThreshold sets the fuzzy match threshold in (0,1].
func WithThreshold(threshold float64) Option {
	return func(d *Deduplicator) {
		if threshold > 0 && threshold <= 1 {
			d.threshold = threshold
		}
	}
}

// WithClock sets the clock used for merge timestamps and scoring.
func WithClock(now func() time.Time) Option {
	return func(d *Deduplicator) { d.now = now }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(d *Deduplicator) { d.logger = l.With().Str("component", "dedup").Logger() }
}

// New returns a Deduplicator over store.
func New(store todo.Store, scorer *priority.Scorer, opts ...Option) *Deduplicator {
	d := &Deduplicator{
		store:     store,
		scorer:    scorer,
		threshold: DefaultThreshold,
		now:       time.Now,
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Reconcile decides and applies create, merge, update or no-op for t.
func (d *Deduplicator) Reconcile(ctx context.Context, t todo.Todo) (Outcome, error) {
	match, err := d.Find(ctx, t)
	if err != nil {
		return Outcome{}, err
	}

	switch match.Kind {
	case MatchExact:
		return d.applyExact(ctx, *match.Target, t, match)
	case MatchFuzzy:
		return d.applyMerge(ctx, *match.Target, t, match)
	}

	created := t
	created.ID = ""
	created.Priority = d.score(created)
	if err := d.store.Create(ctx, &created); err != nil {
		if errors.Is(err, errors.ErrConflict) {
			// Created concurrently by another writer; fall back to the exact path.
			if existing, getErr := d.store.GetBySourceID(ctx, t.Source, t.SourceID); getErr == nil {
				return d.applyExact(ctx, *existing, t, Match{Kind: MatchExact, Target: existing, Score: 1})
			}
		}
		return Outcome{}, err
	}
	return Outcome{Action: ActionCreated, Todo: created, Match: match}, nil
}

// Find looks t up by exact identity, then by fuzzy title similarity against
// the active set. It does not modify the store.
func (d *Deduplicator) Find(ctx context.Context, t todo.Todo) (Match, error) {
	if fp, ok := t.Fingerprint(); ok {
		existing, err := d.store.GetBySourceID(ctx, fp.Source, fp.SourceID)
		switch {
		case err == nil:
			return Match{Kind: MatchExact, Target: existing, Score: 1}, nil
		case !errors.Is(err, errors.ErrNotFound):
			return Match{}, err
		}
	}

	active, err := d.store.List(ctx, todo.Filter{Statuses: todo.ActiveStatuses})
	if err != nil {
		return Match{}, err
	}
	return d.BestMatch(t, active), nil
}

// BestMatch picks the most similar candidate at or above the threshold.
// Ties go to the most recently updated candidate, then to the lowest ID.
// Titles that cannot be scored never match, and neither do distinct records
// from the same source with different due dates.
func (d *Deduplicator) BestMatch(t todo.Todo, candidates []todo.Todo) Match {
	best := Match{Kind: NoMatch}
	if !validTitle(t.Title) {
		d.logger.Debug().Str("source_id", t.SourceID).Msg("incoming title cannot be scored, treating as no match")
		return best
	}

	for i := range candidates {
		c := &candidates[i]
		if distinctRecords(t, *c) {
			continue
		}
		score, err := Similarity(t.Title, c.Title)
		if err != nil {
			d.logger.Debug().Err(err).Str("candidate", c.ID).Msg("similarity failed, skipping candidate")
			continue
		}
		if score < d.threshold {
			continue
		}
		if best.Kind == NoMatch || better(score, c, best.Score, best.Target) {
			best = Match{Kind: MatchFuzzy, Target: c, Score: score}
		}
	}
	return best
}

// distinctRecords reports whether a and b are separate upstream records of the
// same source with their own deadlines.
func distinctRecords(a, b todo.Todo) bool {
	if a.Source != b.Source || a.SourceID == "" || b.SourceID == "" || a.SourceID == b.SourceID {
		return false
	}
	return a.DueDate != nil && b.DueDate != nil && !sameTime(a.DueDate, b.DueDate)
}

func better(score float64, c *todo.Todo, bestScore float64, best *todo.Todo) bool {
	if score != bestScore {
		return score > bestScore
	}
	if !c.UpdatedAt.Equal(best.UpdatedAt) {
		return c.UpdatedAt.After(best.UpdatedAt)
	}
	return c.ID < best.ID
}

// applyExact updates title and url in place when they changed.
func (d *Deduplicator) applyExact(ctx context.Context, existing, t todo.Todo, match Match) (Outcome, error) {
	next := existing
	if t.Title != "" && t.Title != existing.Title {
		next.Title = t.Title
	}
	if t.SourceURL != "" && t.SourceURL != existing.SourceURL {
		next.SourceURL = t.SourceURL
	}

	if next.Title == existing.Title && next.SourceURL == existing.SourceURL {
		return Outcome{Action: ActionUnchanged, Todo: existing, Match: match}, nil
	}

	next.Priority = d.score(next)
	updated, err := d.store.Update(ctx, existing.ID, diff(existing, next))
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Action: ActionUpdated, Todo: *updated, Match: match}, nil
}

// applyMerge folds t into the fuzzy-matched target.
func (d *Deduplicator) applyMerge(ctx context.Context, target, t todo.Todo, match Match) (Outcome, error) {
	t.Priority = d.score(t)
	merged := Merge(target, t, d.score, d.now())

	patch := diff(target, merged)
	if patch.Empty() {
		return Outcome{Action: ActionUnchanged, Todo: target, Match: match}, nil
	}

	updated, err := d.store.Update(ctx, target.ID, patch)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Action: ActionMerged, Todo: *updated, Match: match}, nil
}

func (d *Deduplicator) score(t todo.Todo) int {
	if d.scorer == nil {
		return min(max(t.Priority, todo.MinPriority), todo.MaxPriority)
	}
	return d.scorer.Calculate(t, d.now())
}

func validTitle(s string) bool {
	_, err := Similarity(s, s)
	return err == nil
}
