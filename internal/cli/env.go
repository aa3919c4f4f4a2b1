package cli

import (
	"context"
	"fmt"

	"github.com/roach88/qsync/internal/api"
	"github.com/roach88/qsync/internal/cache"
	"github.com/roach88/qsync/internal/clock"
	"github.com/roach88/qsync/internal/config"
	"github.com/roach88/qsync/internal/console"
	"github.com/roach88/qsync/internal/invalidate"
	"github.com/roach88/qsync/internal/journal"
	"github.com/roach88/qsync/internal/mutation"
	"github.com/roach88/qsync/internal/session"
)

// env is the console stack built from the configuration.
type env struct {
	cfg     config.Config
	console *console.Console
	journal *journal.Journal // nil without journal_path
}

// openEnv loads the config and wires store, router, executor and client.
func openEnv(ctx context.Context, opts *RootOptions) (*env, error) {
	log := opts.logger()

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}

	var j *journal.Journal
	if cfg.JournalPath != "" {
		j, err = journal.Open(cfg.JournalPath, journal.WithLogger(log))
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to open journal", err)
		}
	}
	closeJournal := func() {
		if j != nil {
			j.Close()
		}
	}

	sess, err := session.Open(session.Scope(cfg.TokenScope), j)
	if err != nil {
		closeJournal()
		return nil, WrapExitError(ExitCommandError, "failed to open session", err)
	}
	var tokens api.TokenSource = sess
	if opts.Token != "" {
		tokens = api.StaticToken(opts.Token)
	}

	client, err := api.New(cfg.BackendURL,
		api.WithTokenSource(tokens),
		api.WithTimeout(cfg.RequestTimeout),
		api.WithLogger(log))
	if err != nil {
		closeJournal()
		return nil, WrapExitError(ExitCommandError, "invalid backend url", err)
	}

	start := int64(0)
	if j != nil {
		if start, err = j.LastSeq(ctx); err != nil {
			closeJournal()
			return nil, WrapExitError(ExitCommandError, "failed to read journal", err)
		}
	}
	seq := clock.NewLogicalAt(start)

	store := cache.New(
		cache.WithDefaultStaleAfter(cfg.DefaultStaleAfter),
		cache.WithClock(seq),
		cache.WithLogger(log))
	router := invalidate.New(store, invalidate.WithLogger(log))
	execOpts := []mutation.Option{mutation.WithClock(seq), mutation.WithLogger(log)}
	if j != nil {
		execOpts = append(execOpts, mutation.WithRecorder(j))
	}
	exec := mutation.NewExecutor(router, execOpts...)

	c, err := console.New(store, exec, client,
		console.WithSession(sess),
		console.WithLogger(log),
		console.WithTuning(tuning(cfg.Queries)))
	if err != nil {
		store.Close()
		closeJournal()
		return nil, WrapExitError(ExitCommandError, "invalid query overrides", err)
	}

	return &env{cfg: cfg, console: c, journal: j}, nil
}

func (e *env) Close() {
	e.console.Store().Close()
	if e.journal != nil {
		e.journal.Close()
	}
}

// tuning converts config overrides to console tuning.
func tuning(queries map[string]config.Query) map[string]console.Tuning {
	out := make(map[string]console.Tuning, len(queries))
	for name, q := range queries {
		out[name] = console.Tuning{
			StaleAfter:      q.StaleAfter,
			RefetchInterval: q.RefetchInterval,
			Retries:         q.Retry,
		}
	}
	return out
}

// requireJournal opens the journal at path, failing when it does not exist.
func requireJournal(path string, opts *RootOptions) (*journal.Journal, error) {
	if path == "" {
		return nil, NewExitError(ExitCommandError, "no journal: pass --db or set journal_path")
	}
	if !fileExists(path) {
		return nil, NewExitError(ExitCommandError, fmt.Sprintf("database not found: %s", path))
	}
	j, err := journal.Open(path, journal.WithLogger(opts.logger()))
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open journal", err)
	}
	return j, nil
}
