// Package rag ties the ingestion pipeline, the embedding provider and the
// vector store together into indexing, retrieval and answering.
package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spetr/tablerag/internal/config"
	"github.com/spetr/tablerag/internal/ingest"
	"github.com/spetr/tablerag/pkg/provider"
	"github.com/spetr/tablerag/pkg/types"
)

// DefaultLimit is the number of rows retrieved when no limit is given.
const DefaultLimit = 3

// Controller runs the index and query stages against one collection.
type Controller struct {
	config     *config.Config
	embedding  provider.EmbeddingProvider
	generation provider.GenerationProvider
	store      provider.VectorStore
	embed      bool
	onProgress func(done, total int)
}

// Config contains controller configuration.
type Config struct {
	Config     *config.Config
	Embedding  provider.EmbeddingProvider
	Generation provider.GenerationProvider // optional, required by Answer
	Store      provider.VectorStore        // must be connected
	Embed      bool                        // re-embed the dataset on Reindex
	OnProgress func(done, total int)
}

// New creates a new controller.
func New(cfg Config) *Controller {
	return &Controller{
		config:     cfg.Config,
		embedding:  cfg.Embedding,
		generation: cfg.Generation,
		store:      cfg.Store,
		embed:      cfg.Embed,
		onProgress: cfg.OnProgress,
	}
}

// Collection returns the name of the collection the controller works on.
func (c *Controller) Collection() string {
	return c.config.VectorDB.Collection
}

// Store returns the underlying vector store.
func (c *Controller) Store() provider.VectorStore {
	return c.store
}

// Reindex rebuilds the collection from the dataset and returns its info.
// In read-only mode it only reports the current collection.
func (c *Controller) Reindex(ctx context.Context) (*types.CollectionInfo, error) {
	return c.reindex(ctx, c.embed)
}

// ForceReindex rebuilds the collection regardless of the embed switch.
func (c *Controller) ForceReindex(ctx context.Context) (*types.CollectionInfo, error) {
	return c.reindex(ctx, true)
}

func (c *Controller) reindex(ctx context.Context, embed bool) (*types.CollectionInfo, error) {
	name := c.Collection()
	if !embed {
		return c.store.GetCollectionInfo(ctx, name)
	}

	info, err := c.rebuild(ctx, name)
	if err != nil {
		slog.Error("Error during vector DB indexing", "collection", name, "error", err)
		return nil, err
	}
	return info, nil
}

func (c *Controller) rebuild(ctx context.Context, name string) (*types.CollectionInfo, error) {
	table, baseName, err := ingest.Load(c.config.DatasetPath(c.config.Data.Dataset))
	if err != nil {
		return nil, err
	}

	pipeline := ingest.New(ingest.Config{
		Embedding:  c.embedding,
		OnProgress: c.onProgress,
	})
	prepared, err := pipeline.Prepare(ctx, table, baseName)
	if err != nil {
		return nil, fmt.Errorf("embedding failed: %w", err)
	}

	size := 0
	if prepared.Len() > 0 {
		size = len(prepared.Vectors[0])
	}
	if _, err := c.store.CreateCollection(ctx, name, size, true); err != nil {
		return nil, fmt.Errorf("failed to create collection: %w", err)
	}

	ok := c.store.InsertMany(ctx, name, prepared.Texts, prepared.Vectors, prepared.Metadata, prepared.IDs, c.config.VectorDB.BatchSize)
	if !ok {
		slog.Warn("some rows were not stored", "collection", name, "rows", prepared.Len())
	}

	slog.Info("Data is stored in the vector database.", "collection", name, "rows", prepared.Len())
	info, err := c.store.GetCollectionInfo(ctx, name)
	if err != nil {
		return nil, err
	}
	slog.Info("Vector DB Info", "info", info.String())
	return info, nil
}

// Search embeds text and returns the closest rows, best first. Failures are
// logged and reported as an empty result.
func (c *Controller) Search(ctx context.Context, text string, limit int) []types.RetrievedDocument {
	if limit <= 0 {
		limit = DefaultLimit
	}

	vector, err := c.embedding.EmbedText(ctx, text)
	if err != nil {
		slog.Error("Error during vector DB search", "collection", c.Collection(), "error", err)
		return []types.RetrievedDocument{}
	}
	if len(vector) == 0 {
		slog.Warn("Embedding returned an empty vector; returning empty result set.")
		return []types.RetrievedDocument{}
	}

	return c.store.SearchByVector(ctx, c.Collection(), vector, limit)
}

// Answer retrieves rows for question and asks the generation model to answer
// from them. It returns the answer and the rows used as context.
func (c *Controller) Answer(ctx context.Context, question string, limit int) (string, []types.RetrievedDocument, error) {
	if c.generation == nil {
		return "", nil, errors.New("no generation provider configured")
	}

	docs := c.Search(ctx, question, limit)
	history := []types.ChatMessage{
		c.generation.ConstructPrompt(systemPrompt, types.RoleSystem),
	}

	answer, err := c.generation.GenerateText(ctx, userPrompt(question, docs), history, 0, -1)
	if err != nil {
		return "", docs, err
	}
	return answer, docs, nil
}
