package main

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v2"

	"github.com/hpungsan/gather/internal/backfill"
	"github.com/hpungsan/gather/internal/collector"
	"github.com/hpungsan/gather/internal/config"
	"github.com/hpungsan/gather/internal/errors"
	"github.com/hpungsan/gather/internal/ledger"
	"github.com/hpungsan/gather/internal/mcp"
	"github.com/hpungsan/gather/internal/ops"
	"github.com/hpungsan/gather/internal/priority"
	"github.com/hpungsan/gather/internal/schedule"
	"github.com/hpungsan/gather/internal/todo"
	"github.com/hpungsan/gather/internal/web"
)

// newCLIApp creates the CLI application with all commands.
func newCLIApp(open envOpener) *cli.App {
	app := &cli.App{
		Name:    "gather",
		Usage:   "Collect todos from every source into one ranked list",
		Version: Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "base-dir",
				EnvVars: []string{"GATHER_HOME"},
				Value:   defaultBaseDir(),
				Usage:   "Directory holding the database, config, ledgers and logs",
			},
		},
		Commands: []*cli.Command{
			backfillCmd(open),
			collectCmd(open),
			listCmd(open),
			getCmd(open),
			statusChangeCmd(open, "complete", "Mark a todo completed", ops.Complete),
			statusChangeCmd(open, "start", "Mark a todo in progress", ops.Start),
			statusChangeCmd(open, "reopen", "Move a todo back to pending", ops.Reopen),
			updateCmd(open),
			rescoreCmd(open),
			statusCmd(open),
			auditCmd(open),
			scheduleCmd(open),
			serveCmd(open),
			mcpCmd(open),
			configCmd(),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// withEnv opens the environment for the --base-dir of c and closes it afterwards.
func withEnv(open envOpener, fn func(c *cli.Context, env *appEnv) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		env, err := open(c.String("base-dir"))
		if err != nil {
			return outputError(err)
		}
		defer env.Close()
		return fn(c, env)
	}
}

// backfillCmd creates the backfill command.
func backfillCmd(open envOpener) *cli.Command {
	return &cli.Command{
		Name:  "backfill",
		Usage: "Collect history day by day, resuming from the progress ledger",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "from", Usage: "First day to collect (YYYY-MM-DD); default resumes each source"},
			&cli.StringFlag{Name: "to", Usage: "Last day to collect, inclusive (YYYY-MM-DD); default today"},
			&cli.StringSliceFlag{Name: "sources", Aliases: []string{"s"}, Usage: "Comma-separated sources; default every enabled source"},
			&cli.BoolFlag{Name: "reset", Usage: "Forget progress for the selected sources before running"},
			&cli.BoolFlag{Name: "verbose", Usage: "Log per-chunk collector detail"},
		},
		Action: withEnv(open, func(c *cli.Context, env *appEnv) error {
			sources, err := selectedSources(c.StringSlice("sources"))
			if err != nil {
				return outputError(errors.NewInvalidRequest(err.Error()))
			}

			req := backfill.Request{Sources: sources, Verbose: c.Bool("verbose"), TriggeredBy: ledger.TriggerManual}
			if req.From, err = parseDateFlag(c, "from"); err != nil {
				return outputError(err)
			}
			if req.To, err = parseDateFlag(c, "to"); err != nil {
				return outputError(err)
			}

			if c.Bool("reset") {
				if err := resetProgress(env, sources); err != nil {
					return outputError(err)
				}
			}

			stop := abortOnSignal(env.orch)
			defer stop()

			report, err := env.orch.Backfill(c.Context, req)
			return outputReport(c, report, err)
		}),
	}
}

// collectCmd creates the collect command.
func collectCmd(open envOpener) *cli.Command {
	return &cli.Command{
		Name:  "collect",
		Usage: "Collect recent items over the lookback window",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{Name: "sources", Aliases: []string{"s"}, Usage: "Comma-separated sources; default every enabled source"},
			&cli.BoolFlag{Name: "full", Usage: "Ignore incremental caches and re-read the whole window"},
			&cli.BoolFlag{Name: "verbose", Usage: "Log per-chunk collector detail"},
		},
		Action: withEnv(open, func(c *cli.Context, env *appEnv) error {
			sources, err := selectedSources(c.StringSlice("sources"))
			if err != nil {
				return outputError(errors.NewInvalidRequest(err.Error()))
			}

			stop := abortOnSignal(env.orch)
			defer stop()

			report, err := env.orch.Collect(c.Context, backfill.CollectRequest{
				Sources:     sources,
				Full:        c.Bool("full"),
				Verbose:     c.Bool("verbose"),
				TriggeredBy: ledger.TriggerManual,
			})
			return outputReport(c, report, err)
		}),
	}
}

// listCmd creates the list command.
func listCmd(open envOpener) *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List todos ordered by priority",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{Name: "status", Usage: "pending, in_progress, completed or all; default active"},
			&cli.StringFlag{Name: "source", Usage: "Filter by source"},
			&cli.StringFlag{Name: "tag", Usage: "Filter by tag"},
			&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Value: ops.DefaultListLimit, Usage: "Maximum items to return"},
			&cli.IntFlag{Name: "offset", Aliases: []string{"o"}, Value: 0, Usage: "Items to skip"},
		},
		Action: withEnv(open, func(c *cli.Context, env *appEnv) error {
			output, err := ops.List(c.Context, env.store, ops.ListInput{
				Statuses: c.StringSlice("status"),
				Source:   c.String("source"),
				Tag:      c.String("tag"),
				Limit:    c.Int("limit"),
				Offset:   c.Int("offset"),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c, output)
		}),
	}
}

// getCmd creates the get command.
func getCmd(open envOpener) *cli.Command {
	return &cli.Command{
		Name:      "get",
		Usage:     "Show one todo",
		ArgsUsage: "<id>",
		Action: withEnv(open, func(c *cli.Context, env *appEnv) error {
			output, err := ops.Get(c.Context, env.store, c.Args().First())
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c, output)
		}),
	}
}

// statusChangeCmd creates the complete, start and reopen commands.
func statusChangeCmd(open envOpener, name, usage string,
	op func(ctx context.Context, store todo.Store, scorer *priority.Scorer, id string) (*ops.StatusOutput, error)) *cli.Command {
	return &cli.Command{
		Name:      name,
		Usage:     usage,
		ArgsUsage: "<id>",
		Action: withEnv(open, func(c *cli.Context, env *appEnv) error {
			output, err := op(c.Context, env.store, env.scorer, c.Args().First())
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c, output)
		}),
	}
}

// updateCmd creates the update command.
func updateCmd(open envOpener) *cli.Command {
	return &cli.Command{
		Name:      "update",
		Usage:     "Edit a todo by hand; its priority is recomputed",
		ArgsUsage: "<id>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "title", Aliases: []string{"t"}, Usage: "New title"},
			&cli.StringFlag{Name: "description", Aliases: []string{"d"}, Usage: "New description"},
			&cli.StringFlag{Name: "due", Usage: "Due date (YYYY-MM-DD); empty clears it"},
			&cli.StringFlag{Name: "tags", Usage: "New comma-separated tags"},
			&cli.IntFlag{Name: "base-priority", Usage: "Base priority, 1 to 5"},
			&cli.BoolFlag{Name: "action-item", Usage: "Whether the todo needs action from you"},
		},
		Action: withEnv(open, func(c *cli.Context, env *appEnv) error {
			input := ops.UpdateInput{ID: c.Args().First()}

			if c.IsSet("title") {
				title := c.String("title")
				input.Title = &title
			}
			if c.IsSet("description") {
				description := c.String("description")
				input.Description = &description
			}
			if c.IsSet("due") {
				due := c.String("due")
				input.DueDate = &due
			}
			if c.IsSet("tags") {
				tags := parseTags(c.String("tags"))
				input.Tags = &tags
			}
			if c.IsSet("base-priority") {
				bp := c.Int("base-priority")
				input.BasePriority = &bp
			}
			if c.IsSet("action-item") {
				ai := c.Bool("action-item")
				input.ActionItem = &ai
			}

			output, err := ops.Update(c.Context, env.store, env.scorer, input)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c, output)
		}),
	}
}

// rescoreCmd creates the rescore command.
func rescoreCmd(open envOpener) *cli.Command {
	return &cli.Command{
		Name:  "rescore",
		Usage: "Recompute the priority of every active todo",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "dry-run", Usage: "Report changes without writing them"},
		},
		Action: withEnv(open, func(c *cli.Context, env *appEnv) error {
			output, err := ops.Rescore(c.Context, env.store, env.scorer, ops.RescoreInput{DryRun: c.Bool("dry-run")})
			if err != nil {
				return outputError(err)
			}
			fmt.Fprintf(c.App.ErrWriter, "rescored %s todos, %s changed\n",
				humanize.Comma(int64(output.Scanned)), humanize.Comma(int64(output.Changed)))
			return outputJSON(c, output)
		}),
	}
}

// statusCmd creates the status command.
func statusCmd(open envOpener) *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show backfill progress per source and todo counts",
		Action: withEnv(open, func(c *cli.Context, env *appEnv) error {
			output, err := ops.BackfillStatus(c.Context, env.store, env.cfg, env.progress)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c, output)
		}),
	}
}

// auditCmd creates the audit command.
func auditCmd(open envOpener) *cli.Command {
	return &cli.Command{
		Name:  "audit",
		Usage: "Show recent runs, newest first",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Value: ops.DefaultAuditLimit, Usage: "Maximum entries to return"},
		},
		Action: withEnv(open, func(c *cli.Context, env *appEnv) error {
			output, err := ops.AuditList(env.audit, c.Int("limit"))
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c, output)
		}),
	}
}

// scheduleCmd creates the schedule command.
func scheduleCmd(open envOpener) *cli.Command {
	return &cli.Command{
		Name:  "schedule",
		Usage: "Run collect on the schedule.collect cron expression until interrupted",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "once", Usage: "Trigger one scheduled run now and exit"},
		},
		Action: withEnv(open, func(c *cli.Context, env *appEnv) error {
			sched, err := schedule.New(env.cfg.Schedule.Collect, env.orch, env.logger)
			if err != nil {
				return outputError(err)
			}

			if c.Bool("once") {
				sched.RunOnce(c.Context)
				return nil
			}

			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := sched.Start(ctx); err != nil {
				return outputError(err)
			}
			fmt.Fprintf(c.App.ErrWriter, "scheduler running (%s), next run %s\n",
				env.cfg.Schedule.Collect, humanize.Time(sched.Next()))

			<-ctx.Done()
			sched.Stop()
			return nil
		}),
	}
}

// serveCmd creates the serve command.
func serveCmd(open envOpener) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the web dashboard",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "bind", Usage: "Address to bind (default from config)"},
			&cli.IntFlag{Name: "port", Aliases: []string{"p"}, Usage: "Port to listen on (default from config)"},
		},
		Action: withEnv(open, func(c *cli.Context, env *appEnv) error {
			if c.IsSet("bind") {
				env.cfg.Web.Bind = c.String("bind")
			}
			if c.IsSet("port") {
				env.cfg.Web.Port = c.Int("port")
			}

			srv, err := web.NewServer(web.Deps{
				Store:    env.store,
				Scorer:   env.scorer,
				Config:   env.cfg,
				Progress: env.progress,
				Audit:    env.audit,
				Logger:   env.logger,
			}, Version)
			if err != nil {
				return outputError(err)
			}

			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			fmt.Fprintf(c.App.ErrWriter, "Gather dashboard running at http://%s\n", srv.Addr)
			if err := web.Run(ctx, srv, env.logger); err != nil {
				return outputError(errors.NewInternal(err))
			}
			return nil
		}),
	}
}

// mcpCmd creates the mcp command.
func mcpCmd(open envOpener) *cli.Command {
	return &cli.Command{
		Name:  "mcp",
		Usage: "Serve the MCP tools over stdio",
		Action: withEnv(open, func(_ *cli.Context, env *appEnv) error {
			h := mcp.NewHandlers(env.store, env.scorer, env.cfg, env.progress, env.audit)
			return mcp.Run(h, Version)
		}),
	}
}

// configCmd creates the config command group.
func configCmd() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Inspect configuration",
		Subcommands: []*cli.Command{
			{
				Name:  "validate",
				Usage: "Load and validate the config file",
				Action: func(c *cli.Context) error {
					baseDir := c.String("base-dir")
					cfg, err := config.Load(baseDir)
					if err != nil {
						return outputError(errors.NewInvalidRequest(err.Error()))
					}
					if err := cfg.Validate(); err != nil {
						return outputError(errors.NewInvalidRequest(err.Error()))
					}

					return outputJSON(c, map[string]any{
						"valid":   true,
						"path":    config.FindFile(baseDir),
						"enabled": enabledSources(cfg),
					})
				},
			},
		},
	}
}

// Helper functions

// outputJSON marshals result to the app's stdout as JSON.
func outputJSON(c *cli.Context, v any) error {
	enc := json.NewEncoder(c.App.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	var gErr *errors.GatherError
	if stderrors.As(err, &gErr) {
		return cli.Exit(fmt.Sprintf("[%s] %s", gErr.Code, gErr.Message), 1)
	}
	return cli.Exit(err.Error(), 1)
}

// outputReport prints a run report as JSON plus a one-line human summary.
// A report comes back even when the run failed on a ledger write.
func outputReport(c *cli.Context, report *backfill.Report, runErr error) error {
	if report != nil {
		printSummary(c.App.ErrWriter, report)
		if err := outputJSON(c, report); err != nil {
			return err
		}
	}
	if runErr != nil {
		return outputError(runErr)
	}
	return nil
}

// printSummary writes e.g. "backfill partial: 1,204 items, 3 errors (52 created, 7 merged) in 2 minutes".
func printSummary(w io.Writer, r *backfill.Report) {
	items, errs, sum := r.Totals()
	took := humanize.RelTime(r.StartedAt, r.CompletedAt, "", "")
	fmt.Fprintf(w, "%s %s: %s items, %s errors (%s created, %s merged, %s updated) in %s\n",
		r.Action, r.Result,
		humanize.Comma(int64(items)), humanize.Comma(int64(errs)),
		humanize.Comma(int64(sum.Created)), humanize.Comma(int64(sum.Merged)), humanize.Comma(int64(sum.Updated)),
		strings.TrimSpace(took))
	for _, s := range r.Sources {
		if s.FailedChunks > 0 {
			fmt.Fprintf(w, "  %s: %d failed chunk(s), resume stays at %s\n", s.Source, s.FailedChunks, s.LastCompletedDate)
		}
	}
}

// Signal registration, swapped out in tests.
var (
	notifySignals = signal.Notify
	stopSignals   = signal.Stop
)

// abortOnSignal asks the orchestrator to stop between chunks on SIGINT/SIGTERM.
// The returned func stops listening.
func abortOnSignal(orch *backfill.Orchestrator) func() {
	sigCh := make(chan os.Signal, 1)
	done := make(chan struct{})
	notifySignals(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			orch.Abort()
			// A second signal falls through to the default handler.
			stopSignals(sigCh)
		case <-done:
		}
	}()
	return func() {
		stopSignals(sigCh)
		close(done)
	}
}

// parseDateFlag parses a YYYY-MM-DD flag; unset yields the zero time.
func parseDateFlag(c *cli.Context, name string) (time.Time, error) {
	s := c.String(name)
	if s == "" {
		return time.Time{}, nil
	}
	t, err := collector.ParseDate(s)
	if err != nil {
		return time.Time{}, errors.NewInvalidRequest(fmt.Sprintf("--%s: %v", name, err))
	}
	return t, nil
}

// resetProgress drops progress entries for sources, or for every source when empty.
func resetProgress(env *appEnv, sources []todo.Source) error {
	if len(sources) == 0 {
		sources = todo.AllSources
	}
	for _, s := range sources {
		if err := env.progress.Reset(s); err != nil {
			return err
		}
	}
	env.logger.Info().Str("target", ledger.Target(sources)).Msg("backfill progress reset")
	return nil
}

// enabledSources lists the sources the config turns on.
func enabledSources(cfg *config.Config) []todo.Source {
	out := make([]todo.Source, 0)
	for _, s := range todo.AllSources {
		if cfg.SourceEnabled(string(s)) {
			out = append(out, s)
		}
	}
	return out
}

// parseTags splits a comma-separated string into a slice of tags.
func parseTags(s string) []string {
	if s == "" {
		return []string{}
	}
	parts := strings.Split(s, ",")
	tags := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}
