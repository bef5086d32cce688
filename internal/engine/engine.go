// Package engine executes declarative pipelines and records their lineage.
// Every step is driven through the pipeline adapters so reads, SQL
// transforms and writes land in the run's lineage graph, which is persisted
// to the snapshot store when the run completes.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/souptikmandal/lineagekit/internal/adapter"
	"github.com/souptikmandal/lineagekit/internal/hints"
	"github.com/souptikmandal/lineagekit/internal/pipeline"
	"github.com/souptikmandal/lineagekit/internal/tracker"
	"github.com/souptikmandal/lineagekit/pkg/core"
)

// Engine runs pipelines on an execution adapter.
type Engine struct {
	// db is a caller-owned adapter. When nil, Run opens one from the
	// pipeline's engine config and closes it afterwards.
	db     adapter.Adapter
	store  core.Store
	hints  hints.Provider
	logger *slog.Logger
}

// Config holds engine configuration.
type Config struct {
	// Store receives the snapshot of every run (optional).
	Store core.Store
	// Adapter overrides the adapter named by the pipeline (optional).
	Adapter adapter.Adapter
	// Hints analyzes transform SQL. Defaults to the SQL projection analyzer.
	Hints hints.Provider
	// Logger is the structured logger (optional, uses discard if nil)
	Logger *slog.Logger
}

// New creates an engine.
func New(cfg Config) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	h := cfg.Hints
	if h == nil {
		h = hints.SQL{}
	}
	return &Engine{
		db:     cfg.Adapter,
		store:  cfg.Store,
		hints:  h,
		logger: logger,
	}
}

// Run executes p and returns the run's snapshot. Tracker options (run id,
// clock) are passed through to the run's tracker.
func (e *Engine) Run(ctx context.Context, p *Pipeline, opts ...tracker.Option) (snap *core.Snapshot, err error) {
	steps, err := p.Plan()
	if err != nil {
		return nil, err
	}

	db := e.db
	if db == nil {
		db, err = adapter.NewAdapter(p.Engine)
		if err != nil {
			return nil, err
		}
		if err := db.Connect(ctx, p.Engine); err != nil {
			return nil, fmt.Errorf("failed to connect to %s: %w", p.Engine.Type, err)
		}
		defer func() {
			err = errors.Join(err, db.Close())
		}()
	}

	t := tracker.New(append([]tracker.Option{tracker.WithLogger(e.logger)}, opts...)...)
	runner := pipeline.NewRunner(t, pipeline.WithHints(e.hints), pipeline.WithLogger(e.logger))

	e.logger.Info("running pipeline", "pipeline", p.Name, "run_id", t.RunID(), "steps", len(steps))

	frames := make(map[string]*core.Frame, len(steps))
	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		switch {
		case step.Source != nil:
			s := step.Source
			e.logger.Debug("reading source", "source", s.Name, "path", s.Path)
			frame, err := runner.Read(ctx, &tableSource{db: db, file: p.File, def: *s})
			if err != nil {
				return nil, err
			}
			frames[s.Name] = frame

		case step.Transform != nil:
			tr := step.Transform
			e.logger.Debug("applying transform", "transform", tr.Name, "input", tr.Input, "produces", tr.Produces)
			out, err := runner.Apply(ctx, &sqlTransform{db: db, file: p.File, def: *tr}, frames[tr.Input])
			if err != nil {
				return nil, err
			}
			frames[tr.Produces] = out

		case step.Sink != nil:
			s := step.Sink
			e.logger.Debug("writing sink", "sink", s.Name, "input", s.Input, "path", s.Path)
			if err := runner.Write(ctx, &tableSink{db: db, file: p.File, def: *s}, frames[s.Input]); err != nil {
				return nil, err
			}
		}
	}

	snap = t.Snapshot()
	if e.store != nil {
		if err := e.store.Persist(ctx, snap); err != nil {
			return nil, fmt.Errorf("failed to persist run %s: %w", snap.Run.ID, err)
		}
	}

	e.logger.Info("pipeline complete",
		"pipeline", p.Name,
		"run_id", snap.Run.ID,
		"datasets", len(snap.Datasets),
		"columns", len(snap.Columns),
		"transforms", len(snap.Transforms),
	)
	return snap, nil
}
