package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/matsen/sift/internal/config"
	"github.com/matsen/sift/internal/discovery"
	"github.com/matsen/sift/internal/graph"
	"github.com/matsen/sift/internal/llm"
	"github.com/matsen/sift/internal/matcher"
	"github.com/matsen/sift/internal/source"
	"github.com/matsen/sift/internal/store"
)

// engine bundles the wired components behind the CLI commands.
type engine struct {
	cfg   config.Config
	log   *zap.Logger
	db    *store.DB
	graph *graph.Store
	orch  *discovery.Orchestrator
}

// newLogger builds a stderr logger so stdout stays clean for JSON output.
func newLogger() *zap.Logger {
	zc := zap.NewProductionConfig()
	zc.OutputPaths = []string{"stderr"}
	if verbose {
		zc.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	log, err := zc.Build()
	if err != nil {
		return zap.NewNop()
	}
	return log
}

// openEngine loads configuration, opens the database, and wires the full
// discovery pipeline.
func openEngine(ctx context.Context) (*engine, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	log := newLogger()

	db, err := store.Open(cfg.DatabasePath, log)
	if err != nil {
		return nil, fmt.Errorf("opening database %s: %w", cfg.DatabasePath, err)
	}

	g := graph.NewStore(db, log)
	if err := g.Load(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("loading citation graph: %w", err)
	}

	reg := source.NewRegistry(log)
	reg.Register(source.NewJSONLSource("inbox", cfg.InboxPath, log))

	oracle := llm.NewOllamaClient(
		llm.WithBaseURL(cfg.LLM.BaseURL),
		llm.WithModel(cfg.LLM.Model),
		llm.WithRateLimit(cfg.LLM.RateLimit),
		llm.WithTimeout(time.Duration(cfg.LLM.TimeoutSeconds)*time.Second),
	)
	m := matcher.New(oracle, db, log)

	return &engine{
		cfg:   cfg,
		log:   log,
		db:    db,
		graph: g,
		orch:  discovery.New(reg, g, m, db, log),
	}, nil
}

// mustOpenEngine opens the engine, exiting on configuration errors.
func mustOpenEngine(ctx context.Context) *engine {
	e, err := openEngine(ctx)
	if err != nil {
		exitWithError(ExitConfigError, "%v", err)
	}
	return e
}

func (e *engine) Close() {
	if err := e.db.Close(); err != nil {
		e.log.Warn("closing database", zap.Error(err))
	}
	_ = e.log.Sync()
}
