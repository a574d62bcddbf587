// Package ingest commits one collection result to the canonical store:
// normalize, reconcile, score, write.
package ingest

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/hpungsan/gather/internal/collector"
	"github.com/hpungsan/gather/internal/dedup"
	"github.com/hpungsan/gather/internal/normalize"
)

// Summary counts what happened to the items of one result.
type Summary struct {
	Collected int      `json:"collected"`
	Created   int      `json:"created"`
	Merged    int      `json:"merged"`
	Updated   int      `json:"updated"`
	Unchanged int      `json:"unchanged"`
	Skipped   int      `json:"skipped"`
	Errors    []string `json:"errors,omitempty"`
}

// Add accumulates other into s.
func (s *Summary) Add(other Summary) {
	s.Collected += other.Collected
	s.Created += other.Created
	s.Merged += other.Merged
	s.Updated += other.Updated
	s.Unchanged += other.Unchanged
	s.Skipped += other.Skipped
	s.Errors = append(s.Errors, other.Errors...)
}

// Pipeline runs raw items through normalization and deduplication.
type Pipeline struct {
	normalizer *normalize.Normalizer
	dedup      *dedup.Deduplicator
	logger     zerolog.Logger
}

// New returns a Pipeline.
func New(n *normalize.Normalizer, d *dedup.Deduplicator, logger zerolog.Logger) *Pipeline {
	return &Pipeline{
		normalizer: n,
		dedup:      d,
		logger:     logger.With().Str("component", "ingest").Logger(),
	}
}

// Ingest reconciles every item in res. Items that fail to normalize are
// skipped and reported in Summary.Errors. A store failure or cancellation
// stops ingestion and is returned; items already committed stay committed.
func (p *Pipeline) Ingest(ctx context.Context, res *collector.Result) (Summary, error) {
	var sum Summary
	if res == nil {
		return sum, nil
	}

	for _, raw := range res.Items {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		sum.Collected++

		t, err := p.normalizer.Normalize(raw)
		if err != nil {
			sum.Skipped++
			sum.Errors = append(sum.Errors, err.Error())
			p.logger.Warn().Err(err).Str("source", string(raw.Source)).Str("source_id", raw.ID).Msg("skipping item")
			continue
		}

		out, err := p.dedup.Reconcile(ctx, t)
		if err != nil {
			return sum, err
		}

		switch out.Action {
		case dedup.ActionCreated:
			sum.Created++
		case dedup.ActionMerged:
			sum.Merged++
		case dedup.ActionUpdated:
			sum.Updated++
		default:
			sum.Unchanged++
		}

		p.logger.Debug().
			Str("source", string(t.Source)).
			Str("source_id", t.SourceID).
			Str("action", string(out.Action)).
			Str("match", out.Match.Kind.String()).
			Float64("score", out.Match.Score).
			Str("todo_id", out.Todo.ID).
			Msg("reconciled")
	}

	return sum, nil
}
