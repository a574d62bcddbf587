// Package schedule runs incremental collection on a cron schedule.
package schedule

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/hpungsan/gather/internal/backfill"
	"github.com/hpungsan/gather/internal/errors"
	"github.com/hpungsan/gather/internal/ledger"
)

// Runner starts a collect run. *backfill.Orchestrator satisfies it.
type Runner interface {
	Collect(ctx context.Context, req backfill.CollectRequest) (*backfill.Report, error)
}

// Scheduler triggers a collect run each time the cron expression fires.
// Overlapping firings are skipped while a run is still in progress.
type Scheduler struct {
	cron   *cron.Cron
	parser cron.Parser
	spec   string
	runner Runner
	logger zerolog.Logger

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	entry  cron.EntryID
}

// New validates spec and returns a stopped Scheduler.
func New(spec string, runner Runner, logger zerolog.Logger) (*Scheduler, error) {
	if spec == "" {
		return nil, errors.NewInvalidRequest("schedule.collect is empty; nothing to schedule")
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if _, err := parser.Parse(spec); err != nil {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("invalid cron expression %q: %v", spec, err))
	}

	logger = logger.With().Str("component", "schedule").Logger()
	cl := cronLogger{logger: logger}
	return &Scheduler{
		cron:   cron.New(cron.WithParser(parser), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)), cron.WithLogger(cl)),
		parser: parser,
		spec:   spec,
		runner: runner,
		logger: logger,
	}, nil
}

// Start registers the job and starts the cron loop. Runs use ctx, so
// cancelling it stops an in-flight run between chunks.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ctx, s.cancel = context.WithCancel(ctx)
	entry, err := s.cron.AddFunc(s.spec, func() { s.RunOnce(s.ctx) })
	if err != nil {
		return errors.NewInvalidRequest(fmt.Sprintf("failed to add cron job: %v", err))
	}
	s.entry = entry
	s.cron.Start()

	s.logger.Info().Str("schedule", s.spec).Time("next_run", s.next()).Msg("scheduler started")
	return nil
}

// Stop stops the cron loop, cancels the in-flight run and waits for it.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()

	stopped := s.cron.Stop()
	if cancel != nil {
		cancel()
	}
	<-stopped.Done()
	s.logger.Info().Msg("scheduler stopped")
}

// Next returns the next time the schedule fires after now.
func (s *Scheduler) Next() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next()
}

func (s *Scheduler) next() time.Time {
	if s.entry != 0 {
		if e := s.cron.Entry(s.entry); e.Valid() && !e.Next.IsZero() {
			return e.Next
		}
	}
	sched, err := s.parser.Parse(s.spec)
	if err != nil {
		return time.Time{}
	}
	return sched.Next(time.Now())
}

// RunOnce performs one scheduled collect run. Failures are logged, not returned.
func (s *Scheduler) RunOnce(ctx context.Context) {
	started := time.Now()
	s.logger.Info().Str("schedule", s.spec).Msg("cron triggered collect")

	report, err := s.runner.Collect(ctx, backfill.CollectRequest{TriggeredBy: ledger.TriggerScheduled})
	if err != nil {
		if errors.Is(err, errors.ErrConflict) {
			s.logger.Warn().Err(err).Msg("skipping scheduled collect, another run is active")
			return
		}
		s.logger.Error().Err(err).Msg("scheduled collect failed")
		return
	}

	items, errs, sum := report.Totals()
	s.logger.Info().
		Str("result", string(report.Result)).
		Int("items_collected", items).
		Int("errors", errs).
		Int("created", sum.Created).
		Int("merged", sum.Merged).
		Dur("took", time.Since(started)).
		Msg("scheduled collect finished")
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
