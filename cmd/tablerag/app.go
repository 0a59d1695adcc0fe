package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spetr/tablerag/internal/config"
	"github.com/spetr/tablerag/internal/factory"
	"github.com/spetr/tablerag/internal/rag"
	"github.com/spetr/tablerag/internal/sqlagent"
	"github.com/spetr/tablerag/pkg/plugin/host"
	"github.com/spetr/tablerag/pkg/provider"
)

// app holds the providers and controllers a command needs.
type app struct {
	cfg        *config.Config
	plugins    *host.Manager
	llm        *factory.LLMProviderFactory
	embedding  provider.EmbeddingProvider
	generation provider.GenerationProvider
	store      provider.VectorStore
	rag        *rag.Controller
}

// appOptions selects what openApp builds.
type appOptions struct {
	embed      bool // re-embed the dataset on Reindex
	generation bool // create the chat generation provider
	required   bool // fail instead of warning when generation is unavailable
	onProgress func(done, total int)
}

// loadConfig loads and validates the project configuration.
func loadConfig() (*config.Config, error) {
	cfg, warnings, err := config.Load(projectDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	for _, w := range warnings {
		slog.Debug(w)
	}
	if errs := config.Validate(cfg); len(errs) > 0 {
		return nil, errs[0]
	}
	return cfg, nil
}

// openApp creates the providers from configuration and connects the store.
func openApp(ctx context.Context, opts appOptions) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:     cfg,
		plugins: host.NewManager(cfg.PluginsDir()),
	}
	a.llm = factory.NewLLMProviderFactory(cfg, azure, a.plugins)

	a.embedding, err = a.llm.CreateEmbedding(cfg.Embedding.Backend)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.embedding.SetEmbeddingModel(cfg.Embedding.ModelID)

	if opts.generation {
		gen, err := a.llm.CreateGeneration(cfg.Generation.Backend)
		if err != nil {
			if opts.required {
				a.Close()
				return nil, err
			}
			slog.Warn("generation provider unavailable", "backend", cfg.Generation.Backend, "error", err)
		} else {
			gen.SetGenerationModel(cfg.Generation.ModelID)
			a.generation = gen
		}
	}

	a.store, err = factory.NewVectorDBFactory(cfg).Create(cfg.VectorDB.Backend)
	if err != nil {
		a.Close()
		return nil, err
	}
	if err := a.store.Connect(ctx); err != nil {
		a.store = nil
		a.Close()
		return nil, fmt.Errorf("failed to connect to %s: %w", cfg.VectorDB.Backend, err)
	}

	a.rag = rag.New(rag.Config{
		Config:     cfg,
		Embedding:  a.embedding,
		Generation: a.generation,
		Store:      a.store,
		Embed:      opts.embed,
		OnProgress: opts.onProgress,
	})
	return a, nil
}

// sqlAgent creates the SQL agent with the sql model settings.
func (a *app) sqlAgent() (*sqlagent.Agent, error) {
	gen, err := a.llm.CreateSQLGeneration(a.cfg.SQL.Backend)
	if err != nil {
		return nil, err
	}
	gen.SetGenerationModel(a.cfg.SQL.ModelID)

	return sqlagent.New(sqlagent.Config{
		Generation:   gen,
		DatabasePath: a.cfg.SQLDatabasePath(a.cfg.Data.DatabaseSQL),
	}), nil
}

// Close releases the store, the embedding provider and any plugin processes.
func (a *app) Close() {
	if a.store != nil {
		if err := a.store.Disconnect(); err != nil {
			slog.Warn("failed to close store", "error", err)
		}
	}
	if a.embedding != nil {
		if err := a.embedding.Close(); err != nil {
			slog.Warn("failed to close embedding", "error", err)
		}
	}
	if a.plugins != nil {
		a.plugins.UnloadAll()
	}
}
