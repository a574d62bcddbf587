package main

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/hpungsan/gather/internal/backfill"
	"github.com/hpungsan/gather/internal/collector"
	"github.com/hpungsan/gather/internal/config"
	"github.com/hpungsan/gather/internal/db"
	"github.com/hpungsan/gather/internal/dedup"
	"github.com/hpungsan/gather/internal/ingest"
	"github.com/hpungsan/gather/internal/ledger"
	"github.com/hpungsan/gather/internal/logging"
	"github.com/hpungsan/gather/internal/mcp"
	"github.com/hpungsan/gather/internal/normalize"
	"github.com/hpungsan/gather/internal/priority"
	"github.com/hpungsan/gather/internal/todo"
)

// appEnv holds everything a command needs, built from one base directory.
type appEnv struct {
	baseDir  string
	cfg      *config.Config
	db       *sql.DB
	store    *db.TodoStore
	logger   zerolog.Logger
	scorer   *priority.Scorer
	progress *ledger.Progress
	audit    *ledger.Audit
	orch     *backfill.Orchestrator

	closeLog func()
}

// envOpener builds an appEnv; tests substitute their own clock or collectors.
type envOpener func(baseDir string) (*appEnv, error)

// defaultBaseDir returns ~/.gather.
func defaultBaseDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ".gather"
	}
	return filepath.Join(homeDir, ".gather")
}

// openEnv loads config, opens the database and wires the ingestion stack.
func openEnv(baseDir string) (*appEnv, error) {
	cfg, err := config.Load(baseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logger, closeLog, err := logging.New(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return nil, fmt.Errorf("failed to open log: %w", err)
	}

	database, err := db.Init(baseDir)
	if err != nil {
		closeLog()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	db.ConfigurePool(database, cfg)

	for _, name := range mcp.ValidateDisabledTools(cfg.DisabledTools) {
		logger.Warn().Str("tool", name).Msg("unknown tool in disabled_tools")
	}

	return buildEnv(baseDir, cfg, database, logger, closeLog, collector.NewRegistry(collector.Deps{
		Config: cfg,
		Cache:  collector.NewIncrementalCache(filepath.Join(baseDir, "cache")),
		Logger: logger,
	})), nil
}

// buildEnv wires the pipeline and ledgers around an open database.
func buildEnv(baseDir string, cfg *config.Config, database *sql.DB, logger zerolog.Logger,
	closeLog func(), registry *collector.Registry, opts ...backfill.Option) *appEnv {
	store := db.NewTodoStore(database)
	scorer := priority.NewScorer(cfg, nil)
	dd := dedup.New(store, scorer,
		dedup.WithThreshold(cfg.Dedup.Threshold),
		dedup.WithLogger(logger),
	)
	pipeline := ingest.New(normalize.New(cfg.Dedup.DescriptionMaxChars), dd, logger)

	progress := ledger.NewProgress(cfg.Backfill.ProgressFile)
	audit := ledger.NewAudit(cfg.Backfill.AuditFile, logger)

	return &appEnv{
		baseDir:  baseDir,
		cfg:      cfg,
		db:       database,
		store:    store,
		logger:   logger,
		scorer:   scorer,
		progress: progress,
		audit:    audit,
		orch:     backfill.New(cfg, registry, pipeline, progress, audit, logger, opts...),
		closeLog: closeLog,
	}
}

// Close releases the database and log file.
func (e *appEnv) Close() {
	if e.db != nil {
		_ = e.db.Close()
	}
	if e.closeLog != nil {
		e.closeLog()
	}
}

// selectedSources parses --sources, or returns nil for every enabled source.
func selectedSources(names []string) ([]todo.Source, error) {
	if len(names) == 0 {
		return nil, nil
	}
	return todo.ParseSources(names)
}
