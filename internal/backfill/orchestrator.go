// Package backfill drives chunked, resumable, retrying collection across
// sources and records the outcome in the progress and audit ledgers.
package backfill

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/hpungsan/gather/internal/collector"
	"github.com/hpungsan/gather/internal/config"
	"github.com/hpungsan/gather/internal/errors"
	"github.com/hpungsan/gather/internal/ingest"
	"github.com/hpungsan/gather/internal/ledger"
	"github.com/hpungsan/gather/internal/todo"
)

// Request describes a backfill run.
type Request struct {
	// Sources to run; empty means every enabled source
	Sources []todo.Source

	// From is the first day to collect. Zero resumes each source from its
	// progress entry, its from_date, or the global default start date.
	From time.Time

	// To is the last day to collect, inclusive. Zero means today.
	To time.Time

	// Verbose asks collectors to log per-chunk detail
	Verbose bool

	TriggeredBy ledger.Trigger
}

// CollectRequest describes an incremental collection run over the recent
// lookback window. Full bypasses the incremental caches.
type CollectRequest struct {
	Sources     []todo.Source
	Full        bool
	Verbose     bool
	TriggeredBy ledger.Trigger
}

// ChunkReport is the outcome of one chunk.
type ChunkReport struct {
	From     string         `json:"from"`
	To       string         `json:"to"`
	State    ChunkState     `json:"state"`
	Attempts int            `json:"attempts"`
	Items    int            `json:"items"`
	Errors   []string       `json:"errors,omitempty"`
	Error    string         `json:"error,omitempty"`
	Ingest   ingest.Summary `json:"ingest"`
}

// SourceReport is the outcome of one source within a run.
type SourceReport struct {
	Source            todo.Source    `json:"source"`
	From              string         `json:"from,omitempty"`
	To                string         `json:"to,omitempty"`
	Chunks            []ChunkReport  `json:"chunks"`
	ItemsCollected    int            `json:"items_collected"`
	Errors            int            `json:"errors"`
	FailedChunks      int            `json:"failed_chunks"`
	LastCompletedDate string         `json:"last_completed_date,omitempty"`
	Ingest            ingest.Summary `json:"ingest"`
	SkippedChunks     int            `json:"skipped_chunks,omitempty"`
	UpToDate          bool           `json:"up_to_date,omitempty"`
	Aborted           bool           `json:"aborted,omitempty"`
}

// Report summarizes a whole run.
type Report struct {
	Action      ledger.Action    `json:"action"`
	TriggeredBy ledger.Trigger   `json:"triggered_by"`
	State       RunState         `json:"state"`
	Result      ledger.RunResult `json:"result"`
	StartedAt   time.Time        `json:"started_at"`
	CompletedAt time.Time        `json:"completed_at"`
	Sources     []SourceReport   `json:"sources"`
	AuditID     string           `json:"audit_id,omitempty"`
}

// Totals sums the per-source counters.
func (r *Report) Totals() (items, errs int, sum ingest.Summary) {
	for _, s := range r.Sources {
		items += s.ItemsCollected
		errs += s.Errors
		sum.Add(s.Ingest)
	}
	return items, errs, sum
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithClock sets the time source used for dates and ledger timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// Orchestrator runs backfill and collect jobs. One run at a time.
type Orchestrator struct {
	cfg      *config.Config
	registry *collector.Registry
	pipeline *ingest.Pipeline
	progress *ledger.Progress
	audit    *ledger.Audit
	logger   zerolog.Logger
	now      func() time.Time

	mu      sync.Mutex
	state   RunState
	abort   chan struct{}
	aborted bool
}

// New returns an idle Orchestrator.
func New(cfg *config.Config, registry *collector.Registry, pipeline *ingest.Pipeline,
	progress *ledger.Progress, audit *ledger.Audit, logger zerolog.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		cfg:      cfg,
		registry: registry,
		pipeline: pipeline,
		progress: progress,
		audit:    audit,
		logger:   logger.With().Str("component", "backfill").Logger(),
		now:      time.Now,
		state:    StateIdle,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// State returns the current run state.
func (o *Orchestrator) State() RunState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Abort stops the current run from scheduling further chunks. A chunk that
// is already collecting finishes first.
func (o *Orchestrator) Abort() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state == StateRunning && !o.aborted {
		o.aborted = true
		close(o.abort)
	}
}

func (o *Orchestrator) transition(to RunState) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := ValidateRunTransition(o.state, to); err != nil {
		if o.state == StateRunning && to == StateRunning {
			return errors.NewConflict("a run is already in progress")
		}
		return errors.NewInternal(err)
	}
	if to == StateRunning {
		o.abort = make(chan struct{})
		o.aborted = false
	}
	o.state = to
	return nil
}

func (o *Orchestrator) abortRequested() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.aborted
}

func (o *Orchestrator) abortCh() <-chan struct{} {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.abort
}

// job is one source's share of a run.
type job struct {
	collector   collector.Collector
	from, to    time.Time
	incremental bool
	verbose     bool

	// track advances the progress ledger
	track bool
}

// Backfill collects [From, To] for every selected source. Chunk failures are
// recorded and do not fail the run. The returned error is non-nil only when a
// ledger write failed or the request was invalid; the report is still
// returned in the former case.
func (o *Orchestrator) Backfill(ctx context.Context, req Request) (*Report, error) {
	collectors, err := o.registry.Select(req.Sources)
	if err != nil {
		return nil, errors.NewInvalidRequest(err.Error())
	}

	today := collector.Day(o.now())
	to := today
	if !req.To.IsZero() {
		to = collector.Day(req.To)
	}
	if !req.From.IsZero() && collector.Day(req.From).After(to) {
		return nil, errors.NewInvalidRequest("from date is after to date")
	}

	progress, err := o.progress.Load()
	if err != nil {
		return nil, err
	}

	jobs := make([]job, 0, len(collectors))
	for _, c := range collectors {
		from := collector.Day(req.From)
		if req.From.IsZero() {
			from, err = o.resumeStart(c.Source(), progress[c.Source()])
			if err != nil {
				return nil, err
			}
		}
		jobs = append(jobs, job{collector: c, from: from, to: to, verbose: req.Verbose, track: true})
	}

	return o.run(ctx, ledger.ActionBackfill, req.TriggeredBy, jobs)
}

// Collect runs one incremental chunk over [today - lookback_days, today] for
// every selected source. It never moves the backfill progress pointer.
func (o *Orchestrator) Collect(ctx context.Context, req CollectRequest) (*Report, error) {
	collectors, err := o.registry.Select(req.Sources)
	if err != nil {
		return nil, errors.NewInvalidRequest(err.Error())
	}

	today := collector.Day(o.now())
	from := today.AddDate(0, 0, -o.cfg.Schedule.LookbackDays)

	jobs := make([]job, 0, len(collectors))
	for _, c := range collectors {
		jobs = append(jobs, job{collector: c, from: from, to: today, incremental: !req.Full, verbose: req.Verbose})
	}

	action := ledger.ActionGenerate
	if req.Full {
		action = ledger.ActionRegenerate
	}
	return o.run(ctx, action, req.TriggeredBy, jobs)
}

// resumeStart is the day after the last completed date, else the source's
// from_date, else the global default start date.
func (o *Orchestrator) resumeStart(source todo.Source, entry ledger.ProgressEntry) (time.Time, error) {
	if last, ok := entry.LastCompleted(); ok {
		return last.AddDate(0, 0, 1), nil
	}

	start := o.cfg.Source(string(source)).FromDate
	if start == "" {
		start = o.cfg.Backfill.DefaultStartDate
	}
	t, err := collector.ParseDate(start)
	if err != nil {
		return time.Time{}, errors.NewInvalidRequest(fmt.Sprintf("start date for %s: %v", source, err))
	}
	return collector.Day(t), nil
}

func (o *Orchestrator) run(ctx context.Context, action ledger.Action, trigger ledger.Trigger, jobs []job) (*Report, error) {
	if trigger == "" {
		trigger = ledger.TriggerManual
	}
	if err := o.transition(StateRunning); err != nil {
		return nil, err
	}

	report := &Report{
		Action:      action,
		TriggeredBy: trigger,
		StartedAt:   o.now(),
		Sources:     make([]SourceReport, len(jobs)),
	}
	sources := make([]todo.Source, len(jobs))
	for i, j := range jobs {
		sources[i] = j.collector.Source()
	}

	log := o.logger.With().Str("action", string(action)).Str("triggered_by", string(trigger)).Logger()
	log.Info().Str("target", ledger.Target(sources)).Msg("run started")

	maxParallel := o.cfg.Backfill.MaxParallel
	if maxParallel < 1 {
		maxParallel = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallel)

	for i, j := range jobs {
		if i > 0 {
			if err := o.sleep(gctx, o.cfg.Backfill.CollectorDelay.Std()); err != nil {
				break
			}
		}
		g.Go(func() error {
			sr, err := o.runSource(gctx, j)
			report.Sources[i] = sr
			return err
		})
	}
	fatal := g.Wait()

	// Sources never started because of abort or cancellation.
	for i, j := range jobs {
		if report.Sources[i].Source == "" {
			report.Sources[i] = SourceReport{Source: j.collector.Source(), Aborted: true, Chunks: []ChunkReport{}}
		}
	}

	final := StateCompleted
	if fatal != nil || o.abortRequested() || ctx.Err() != nil {
		final = StateAborted
	}
	report.State = final
	report.CompletedAt = o.now()
	report.Result = resultOf(report, fatal)

	if err := o.transition(final); err != nil {
		log.Error().Err(err).Msg("state transition")
	}

	items, errs, sum := report.Totals()
	entry, auditErr := o.audit.Append(ledger.AuditEntry{
		Action:         action,
		Target:         ledger.Target(sources),
		TriggeredBy:    trigger,
		StartedAt:      report.StartedAt,
		CompletedAt:    report.CompletedAt,
		Result:         report.Result,
		OutputPath:     o.outputPath(action),
		ItemsCollected: items,
		Errors:         errs,
		Created:        sum.Created,
		Merged:         sum.Merged,
		Message:        errString(fatal),
	})
	if auditErr == nil {
		report.AuditID = entry.ID
	}

	log.Info().
		Str("state", string(final)).
		Str("result", string(report.Result)).
		Int("items_collected", items).
		Int("errors", errs).
		Int("created", sum.Created).
		Int("merged", sum.Merged).
		Msg("run finished")

	if fatal != nil {
		log.Error().Err(fatal).Msg("run aborted by ledger failure")
		return report, fatal
	}
	if auditErr != nil {
		return report, auditErr
	}
	return report, nil
}

func (o *Orchestrator) outputPath(action ledger.Action) string {
	if action == ledger.ActionBackfill {
		return o.progress.Path()
	}
	return ""
}

func resultOf(r *Report, fatal error) ledger.RunResult {
	if fatal != nil {
		return ledger.ResultFailed
	}
	if r.State == StateAborted {
		return ledger.ResultPartial
	}
	for _, s := range r.Sources {
		if s.FailedChunks > 0 || s.Errors > 0 {
			return ledger.ResultPartial
		}
	}
	return ledger.ResultSuccess
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// runSource processes a source's chunks strictly in order. Only ledger write
// failures are returned; they cancel the other sources.
func (o *Orchestrator) runSource(ctx context.Context, j job) (SourceReport, error) {
	source := j.collector.Source()
	log := o.logger.With().Str("source", string(source)).Logger()

	sr := SourceReport{
		Source: source,
		From:   j.from.Format(collector.DateLayout),
		To:     j.to.Format(collector.DateLayout),
		Chunks: []ChunkReport{},
	}

	if j.from.After(j.to) {
		sr.UpToDate = true
		sr.From = ""
		if j.track {
			if e, ok, err := o.progress.Get(source); err == nil && ok {
				sr.LastCompletedDate = e.LastCompletedDate
			}
		}
		log.Info().Msg("already up to date")
		return sr, nil
	}

	chunks := []Chunk{{From: j.from, To: j.to}}
	if j.track {
		var err error
		chunks, err = Split(j.from, j.to, o.cfg.Backfill.ChunkSize)
		if err != nil {
			return sr, errors.NewInvalidRequest(err.Error())
		}

		started := o.now()
		entry, err := o.progress.Update(source, func(e *ledger.ProgressEntry) {
			e.StartedAt = started
			e.UpdatedAt = started
		})
		if err != nil {
			return sr, err
		}

		// Days collected on an earlier run past a gap are not collected or counted again.
		chunks, sr.SkippedChunks = pendingChunks(chunks, entry)
		if sr.SkippedChunks > 0 {
			log.Info().Int("skipped_chunks", sr.SkippedChunks).Msg("skipping days already collected")
		}
	}

	for i, ch := range chunks {
		if o.abortRequested() || ctx.Err() != nil {
			sr.Aborted = true
			break
		}
		if i > 0 {
			if err := o.sleep(ctx, o.cfg.Backfill.ChunkDelay.Std()); err != nil {
				sr.Aborted = true
				break
			}
		}

		cr, res, err := o.runChunk(ctx, j, ch, log)
		if err != nil && ctx.Err() != nil {
			// Cancelled mid-chunk: not a failure, the chunk is simply redone on resume.
			sr.Aborted = true
			break
		}
		sr.Chunks = append(sr.Chunks, cr)
		sr.Ingest.Add(cr.Ingest)

		if cr.State == ChunkFailed {
			sr.FailedChunks++
			sr.Errors++
			if j.track {
				if err := o.recordFailure(source, ch, cr); err != nil {
					return sr, err
				}
			}
			continue
		}

		sr.ItemsCollected += len(res.Items)
		sr.Errors += len(res.Errors)
		if j.track {
			if err := o.recordSuccess(source, ch, len(res.Items), len(res.Errors)); err != nil {
				return sr, err
			}
		}
	}

	if j.track {
		e, _, err := o.progress.Get(source)
		if err != nil {
			return sr, err
		}
		sr.LastCompletedDate = e.LastCompletedDate
	}

	log.Info().
		Int("chunks", len(sr.Chunks)).
		Int("failed_chunks", sr.FailedChunks).
		Int("items_collected", sr.ItemsCollected).
		Bool("aborted", sr.Aborted).
		Msg("source finished")
	return sr, nil
}

// runChunk collects one chunk with retries, then ingests it. The returned
// error is set only when the chunk failed; cr.State tells which.
func (o *Orchestrator) runChunk(ctx context.Context, j job, ch Chunk, log zerolog.Logger) (ChunkReport, *collector.Result, error) {
	cr := ChunkReport{
		From:  ch.From.Format(collector.DateLayout),
		To:    ch.To.Format(collector.DateLayout),
		State: ChunkPending,
	}
	step := func(to ChunkState) {
		if err := ValidateChunkTransition(cr.State, to); err != nil {
			log.Error().Err(err).Str("chunk", ch.String()).Msg("chunk state")
		}
		cr.State = to
	}

	step(ChunkRunning)

	attempts := o.cfg.Backfill.MaxRetries
	if attempts < 1 {
		attempts = 1
	}
	b := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(o.cfg.Backfill.RetryDelay.Std()), uint64(attempts-1)),
		ctx,
	)

	var res *collector.Result
	operation := func() error {
		cr.Attempts++
		r, err := j.collector.Collect(ctx, collector.Options{From: ch.From, To: ch.To, Incremental: j.incremental, Verbose: j.verbose})
		if err != nil {
			return err
		}
		res = r
		return nil
	}
	notify := func(err error, wait time.Duration) {
		step(ChunkRetrying)
		log.Warn().Err(err).Str("chunk", ch.String()).Int("attempt", cr.Attempts).Dur("retry_in", wait).Msg("collect failed, retrying")
	}

	if err := backoff.RetryNotify(operation, b, notify); err != nil {
		step(ChunkFailed)
		cr.Error = err.Error()
		log.Error().Err(err).Str("chunk", ch.String()).Int("attempts", cr.Attempts).Msg("chunk failed")
		return cr, nil, err
	}
	if res == nil {
		res = &collector.Result{Source: j.collector.Source()}
	}
	cr.Items = len(res.Items)
	cr.Errors = res.Errors

	sum, err := o.pipeline.Ingest(ctx, res)
	cr.Ingest = sum
	if err != nil {
		step(ChunkFailed)
		cr.Error = fmt.Sprintf("ingest: %v", err)
		log.Error().Err(err).Str("chunk", ch.String()).Msg("ingest failed")
		return cr, nil, err
	}

	step(ChunkSucceeded)
	log.Debug().Str("chunk", ch.String()).Int("items", cr.Items).Int("errors", len(cr.Errors)).Msg("chunk succeeded")
	return cr, res, nil
}

func (o *Orchestrator) recordFailure(source todo.Source, ch Chunk, cr ChunkReport) error {
	failedAt := o.now()
	_, err := o.progress.Update(source, func(e *ledger.ProgressEntry) {
		e.Errors++
		e.UpdatedAt = failedAt
		markFailed(e, ch, ledger.ChunkFailure{Error: cr.Error, Attempts: cr.Attempts, FailedAt: failedAt})
	})
	return err
}

// recordSuccess counts the chunk and folds it into the day coverage.
func (o *Orchestrator) recordSuccess(source todo.Source, ch Chunk, items, errs int) error {
	updatedAt := o.now()
	_, err := o.progress.Update(source, func(e *ledger.ProgressEntry) {
		e.ItemsCollected += items
		e.Errors += errs
		e.UpdatedAt = updatedAt
		markCompleted(e, ch)
	})
	return err
}

// sleep waits d, returning early on cancellation or Abort.
func (o *Orchestrator) sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	abort := o.abortCh()
	if d <= 0 {
		select {
		case <-abort:
			return errAborted
		default:
			return nil
		}
	}

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-abort:
		return errAborted
	case <-timer.C:
		return nil
	}
}

var errAborted = stderrors.New("run aborted")
