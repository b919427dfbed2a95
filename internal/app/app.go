// Package app wires the configured backends into the services the CLI
// drives.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/abhisek/examprep/internal/catalog"
	"github.com/abhisek/examprep/internal/config"
	"github.com/abhisek/examprep/internal/ingest"
	"github.com/abhisek/examprep/internal/llm"
	"github.com/abhisek/examprep/internal/logger"
	"github.com/abhisek/examprep/internal/planformat"
	"github.com/abhisek/examprep/internal/retrieval"
	"github.com/abhisek/examprep/internal/store"
	"github.com/abhisek/examprep/internal/store/memstore"
	"github.com/abhisek/examprep/internal/store/mongostore"
	"github.com/abhisek/examprep/internal/studyplan"
	"github.com/abhisek/examprep/internal/synthesis"
	"github.com/abhisek/examprep/internal/vectorindex"
	"github.com/abhisek/examprep/internal/vectorindex/pinecone"
)

// App holds the open backends. Services that need external credentials
// (vector index, LLM) are built on first use.
type App struct {
	Config *config.Config
	Log    *logger.Logger

	Topics     catalog.Repo
	Plans      studyplan.Repo
	Reconciler *studyplan.Reconciler

	// Events is nil unless the sqlite backend is in use.
	Events store.EventRepo

	mu      sync.Mutex
	index   vectorindex.Index
	closers []func(context.Context) error
}

// Open connects the configured store backend.
func Open(ctx context.Context, cfg *config.Config, log *logger.Logger) (*App, error) {
	a := &App{Config: cfg, Log: logger.OrNop(log)}

	switch cfg.Store.Backend {
	case config.StoreSQLite:
		st, err := store.Open(ctx, cfg.Store.DBPath)
		if err != nil {
			return nil, fmt.Errorf("open store: %w", err)
		}
		a.Topics, a.Plans, a.Events = st.Topics(), st.Plans(), st.EventRepo()
		a.closers = append(a.closers, func(context.Context) error { return st.Close() })

	case config.StoreMongo:
		st, err := mongostore.Connect(ctx, cfg.Store.MongoURI, cfg.Store.MongoDatabase, a.Log)
		if err != nil {
			return nil, fmt.Errorf("connect mongo: %w", err)
		}
		a.Topics, a.Plans = st.Topics(), st.Plans()
		a.closers = append(a.closers, st.Close)

	case config.StoreMemory:
		st := memstore.New()
		a.Topics, a.Plans = st.Topics(), st.Plans()

	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}

	a.Reconciler = studyplan.NewReconciler(a.Plans, a.Topics, cfg.Plan, a.Log)
	return a, nil
}

// Index opens the configured vector index once.
func (a *App) Index(ctx context.Context) (vectorindex.Index, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.index != nil {
		return a.index, nil
	}

	vc := a.Config.Vector
	switch vc.Backend {
	case config.VectorChromem:
		idx, err := vectorindex.NewChromemIndex(vc.Path, vc.Collection, vc.Dimension, a.Log)
		if err != nil {
			return nil, err
		}
		a.index = idx

	case config.VectorPinecone:
		pc, err := pinecone.New(pinecone.Config{APIKey: vc.Pinecone.APIKey})
		if err != nil {
			return nil, err
		}
		idx, err := vectorindex.NewPineconeIndex(ctx, pc, vectorindex.PineconeConfig{
			IndexName: vc.Pinecone.IndexName,
			IndexHost: vc.Pinecone.IndexHost,
			Namespace: vc.Pinecone.Namespace,
			Dimension: vc.Dimension,
		}, a.Log)
		if err != nil {
			return nil, err
		}
		a.index = idx

	default:
		return nil, fmt.Errorf("unknown vector backend %q", vc.Backend)
	}
	return a.index, nil
}

// Pipeline builds the ingestion pipeline with an LLM provider discovered
// from the environment.
func (a *App) Pipeline(ctx context.Context) (*ingest.Pipeline, error) {
	provider, llmCfg, err := llm.NewProviderFromEnv(ctx, a.Events, a.Log)
	if err != nil {
		return nil, fmt.Errorf("configure LLM provider: %w", err)
	}
	a.Log.Debug("using LLM provider", "provider", llmCfg.Provider, "model", provider.ModelID())
	return a.PipelineWith(ctx, provider)
}

// PipelineWith builds the ingestion pipeline around provider.
func (a *App) PipelineWith(ctx context.Context, provider llm.Provider) (*ingest.Pipeline, error) {
	idx, err := a.Index(ctx)
	if err != nil {
		return nil, fmt.Errorf("open vector index: %w", err)
	}
	retriever := retrieval.New(idx, a.Config.Retrieval, a.Log)
	synth := synthesis.New(retriever, provider, a.Config.Synthesis, a.Log)
	return ingest.New(a.Topics, idx, synth, planformat.New(nil, a.Log), a.Reconciler,
		ingest.Config{BatchSize: a.Config.IngestBatchSize}, a.Log), nil
}

// Close releases every backend, returning the joined errors.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
