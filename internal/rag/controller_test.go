package rag

import (
	"context"
	"crypto/sha256"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spetr/tablerag/builtin/vectorstore/bolt"
	"github.com/spetr/tablerag/internal/config"
	"github.com/spetr/tablerag/pkg/provider"
	"github.com/spetr/tablerag/pkg/types"
)

// hashEmbedder maps identical texts to identical unit vectors.
type hashEmbedder struct {
	empty bool
	err   error
	calls int
}

func (h *hashEmbedder) Name() string             { return "hash" }
func (h *hashEmbedder) SetEmbeddingModel(string) {}
func (h *hashEmbedder) Dimensions() int          { return 8 }
func (h *hashEmbedder) Close() error             { return nil }

func (h *hashEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	h.calls++
	if h.err != nil {
		return nil, h.err
	}
	if h.empty {
		return []float32{}, nil
	}
	sum := sha256.Sum256([]byte(text))
	v := make([]float32, 8)
	var norm float64
	for i := range v {
		v[i] = float32(sum[i]) + 1
		norm += float64(v[i]) * float64(v[i])
	}
	for i := range v {
		v[i] = float32(float64(v[i]) / math.Sqrt(norm))
	}
	return v, nil
}

type fakeGenerator struct {
	prompt  string
	history []types.ChatMessage
}

func (f *fakeGenerator) Name() string              { return "fake" }
func (f *fakeGenerator) SetGenerationModel(string) {}

func (f *fakeGenerator) GenerateText(ctx context.Context, prompt string, history []types.ChatMessage, maxTokens int, temperature float32) (string, error) {
	f.prompt = prompt
	f.history = history
	return "The Honda is from 2019.", nil
}

func (f *fakeGenerator) ConstructPrompt(prompt, role string) types.ChatMessage {
	return types.ChatMessage{Role: role, Content: prompt}
}

const carsCSV = "make,year\nToyota,2020\nHonda,2019\nFord,2021\n"

func setup(t *testing.T, emb provider.EmbeddingProvider, embed bool) (*Controller, *config.Config) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Root = t.TempDir()

	dataset := cfg.DatasetPath(cfg.Data.Dataset)
	if err := os.MkdirAll(filepath.Dir(dataset), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(dataset, []byte(carsCSV), 0644); err != nil {
		t.Fatal(err)
	}

	dir, err := cfg.DatabasePath(cfg.VectorDB.Path)
	if err != nil {
		t.Fatal(err)
	}
	store := bolt.New(bolt.Config{Path: dir})
	if err := store.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Disconnect() })

	c := New(Config{
		Config:    cfg,
		Embedding: emb,
		Store:     store,
		Embed:     embed,
	})
	return c, cfg
}

func TestReindexAndSearch(t *testing.T) {
	ctx := context.Background()
	c, _ := setup(t, &hashEmbedder{}, true)

	info, err := c.Reindex(ctx)
	if err != nil {
		t.Fatalf("Reindex() error = %v", err)
	}
	if info.Count != 3 {
		t.Errorf("Count = %d, want 3", info.Count)
	}
	if info.VectorSize != 8 {
		t.Errorf("VectorSize = %d, want 8", info.VectorSize)
	}

	results := c.Search(ctx, "make: Honda,\nyear: 2019,\n", 2)
	if len(results) != 2 {
		t.Fatalf("Search() returned %d results, want 2", len(results))
	}
	if results[0].ID != "id1" {
		t.Errorf("top result id = %q, want id1", results[0].ID)
	}
	if results[0].Metadata["source"] != "dataset" {
		t.Errorf("metadata = %v, want source=dataset", results[0].Metadata)
	}

	// Reindexing replaces the collection instead of appending to it.
	info, err = c.Reindex(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if info.Count != 3 {
		t.Errorf("Count after second reindex = %d, want 3", info.Count)
	}
}

func TestReindexReadOnly(t *testing.T) {
	ctx := context.Background()
	emb := &hashEmbedder{}
	c, _ := setup(t, emb, false)

	if _, err := c.Reindex(ctx); !errors.Is(err, types.ErrCollectionNotFound) {
		t.Fatalf("Reindex() on empty store error = %v, want ErrCollectionNotFound", err)
	}

	if _, err := c.ForceReindex(ctx); err != nil {
		t.Fatal(err)
	}
	calls := emb.calls

	info, err := c.Reindex(ctx)
	if err != nil {
		t.Fatalf("Reindex() error = %v", err)
	}
	if info.Count != 3 {
		t.Errorf("Count = %d, want 3", info.Count)
	}
	if emb.calls != calls {
		t.Errorf("read-only Reindex embedded %d rows", emb.calls-calls)
	}
}

func TestReindexEmbeddingFailure(t *testing.T) {
	ctx := context.Background()
	c, _ := setup(t, &hashEmbedder{err: types.ErrEmbeddingFailed}, true)

	info, err := c.Reindex(ctx)
	if !errors.Is(err, types.ErrEmbeddingFailed) {
		t.Fatalf("Reindex() error = %v, want ErrEmbeddingFailed", err)
	}
	if info != nil {
		t.Errorf("Reindex() info = %v, want nil", info)
	}
	exists, _ := c.Store().IsCollectionExisted(ctx, c.Collection())
	if exists {
		t.Error("collection created despite embedding failure")
	}
}

func TestReindexUnsupportedDataset(t *testing.T) {
	c, cfg := setup(t, &hashEmbedder{}, true)
	cfg.Data.Dataset = "dataset.txt"

	if _, err := c.Reindex(context.Background()); !errors.Is(err, types.ErrUnsupportedFormat) {
		t.Errorf("Reindex() error = %v, want ErrUnsupportedFormat", err)
	}
}

func TestSearchDegradesToEmpty(t *testing.T) {
	tests := []struct {
		name string
		emb  *hashEmbedder
	}{
		{name: "empty vector", emb: &hashEmbedder{empty: true}},
		{name: "embedding error", emb: &hashEmbedder{err: types.ErrEmbeddingFailed}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := setup(t, tt.emb, true)
			results := c.Search(context.Background(), "anything", 3)
			if results == nil || len(results) != 0 {
				t.Errorf("Search() = %#v, want empty non-nil slice", results)
			}
		})
	}
}

func TestSearchMissingCollection(t *testing.T) {
	c, _ := setup(t, &hashEmbedder{}, true)
	results := c.Search(context.Background(), "make: Ford,\nyear: 2021,\n", 3)
	if results == nil || len(results) != 0 {
		t.Errorf("Search() = %#v, want empty non-nil slice", results)
	}
}

func TestAnswer(t *testing.T) {
	ctx := context.Background()
	c, _ := setup(t, &hashEmbedder{}, true)
	gen := &fakeGenerator{}
	c.generation = gen

	if _, err := c.Reindex(ctx); err != nil {
		t.Fatal(err)
	}

	answer, docs, err := c.Answer(ctx, "make: Honda,\nyear: 2019,\n", 1)
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if answer != "The Honda is from 2019." {
		t.Errorf("answer = %q", answer)
	}
	if len(docs) != 1 || docs[0].ID != "id1" {
		t.Errorf("docs = %+v, want id1", docs)
	}
	if len(gen.history) != 1 || gen.history[0].Role != types.RoleSystem {
		t.Errorf("history = %+v, want one system message", gen.history)
	}
	if !strings.Contains(gen.prompt, "User query and provided documents:") || !strings.Contains(gen.prompt, "make: Honda,") {
		t.Errorf("prompt missing context:\n%s", gen.prompt)
	}
}

func TestAnswerWithoutGenerator(t *testing.T) {
	c, _ := setup(t, &hashEmbedder{}, true)
	if _, _, err := c.Answer(context.Background(), "q", 3); err == nil {
		t.Error("Answer() without generation provider error = nil")
	}
}
