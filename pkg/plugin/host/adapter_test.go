package host

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/spetr/tablerag/pkg/types"
)

type stubPlugin struct {
	lastModel string
	closes    int
}

func (s *stubPlugin) Name() string { return "stub" }

func (s *stubPlugin) EmbedText(model, text string) ([]float32, error) {
	s.lastModel = model
	if text == "boom" {
		return nil, errors.New("plugin failure")
	}
	return []float32{1, 2, 3}, nil
}

func (s *stubPlugin) Dimensions() int { return 3 }

func (s *stubPlugin) Close() error {
	s.closes++
	return nil
}

func TestEmbeddingAdapter(t *testing.T) {
	stub := &stubPlugin{}
	a := NewEmbeddingAdapter(stub)
	ctx := context.Background()

	if _, err := a.EmbedText(ctx, "x"); !errors.Is(err, types.ErrEmbeddingFailed) {
		t.Errorf("EmbedText() without model error = %v, want ErrEmbeddingFailed", err)
	}

	a.SetEmbeddingModel("hash-384")
	vec, err := a.EmbedText(ctx, "x")
	if err != nil || len(vec) != 3 {
		t.Fatalf("EmbedText() = %v, %v", vec, err)
	}
	if stub.lastModel != "hash-384" {
		t.Errorf("model forwarded = %q, want hash-384", stub.lastModel)
	}

	if _, err := a.EmbedText(ctx, "boom"); !errors.Is(err, types.ErrEmbeddingFailed) {
		t.Errorf("EmbedText(boom) error = %v, want ErrEmbeddingFailed", err)
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := a.EmbedText(cancelled, "x"); !errors.Is(err, context.Canceled) {
		t.Errorf("EmbedText(cancelled) error = %v, want context.Canceled", err)
	}
}

func TestEmbeddingAdapterCloseOnce(t *testing.T) {
	stub := &stubPlugin{}
	a := NewEmbeddingAdapter(stub)
	a.SetEmbeddingModel("hash-384")

	for i := 0; i < 2; i++ {
		if err := a.Close(); err != nil {
			t.Fatalf("Close() #%d error = %v", i, err)
		}
	}
	if stub.closes != 1 {
		t.Errorf("plugin closed %d times, want 1", stub.closes)
	}
	if _, err := a.EmbedText(context.Background(), "x"); !errors.Is(err, types.ErrEmbeddingFailed) {
		t.Errorf("EmbedText() after Close error = %v, want ErrEmbeddingFailed", err)
	}
}

func TestDiscover(t *testing.T) {
	dir := t.TempDir()
	for name, mode := range map[string]os.FileMode{
		"zeta-embedding": 0755,
		"hash-embedding": 0755,
		"README.md":      0644,
	} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("#!/bin/sh\n"), mode); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "subdir"), 0755); err != nil {
		t.Fatal(err)
	}

	m := NewManager(dir)
	plugins, err := m.Discover()
	if err != nil {
		t.Fatal(err)
	}
	if len(plugins) != 2 || plugins[0].Name != "hash-embedding" || plugins[1].Name != "zeta-embedding" {
		t.Fatalf("Discover() = %+v, want hash-embedding and zeta-embedding", plugins)
	}
	if plugins[0].Path != filepath.Join(dir, "hash-embedding") || plugins[0].Loaded {
		t.Errorf("Discover()[0] = %+v", plugins[0])
	}

	empty := NewManager(filepath.Join(dir, "nope"))
	if plugins, err := empty.Discover(); err != nil || len(plugins) != 0 {
		t.Errorf("Discover(missing dir) = %v, %v", plugins, err)
	}
}

func TestPath(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "hash-embedding"), []byte("#!/bin/sh\n"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	m := NewManager(dir)

	tests := []struct {
		name    string
		plugin  string
		wantErr error
	}{
		{name: "executable", plugin: "hash-embedding"},
		{name: "missing", plugin: "missing", wantErr: types.ErrNotFound},
		{name: "not executable", plugin: "notes.txt", wantErr: types.ErrProviderNotAvailable},
		{name: "empty", plugin: "", wantErr: types.ErrInvalidConfig},
		{name: "parent", plugin: "..", wantErr: types.ErrInvalidConfig},
		{name: "escapes dir", plugin: "../bin/sh", wantErr: types.ErrInvalidConfig},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path, err := m.Path(tt.plugin)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("Path(%q) error = %v, want %v", tt.plugin, err, tt.wantErr)
				}
				return
			}
			if err != nil || path != filepath.Join(dir, tt.plugin) {
				t.Errorf("Path(%q) = %q, %v", tt.plugin, path, err)
			}
		})
	}
}

func TestLoadEmbeddingErrors(t *testing.T) {
	m := NewManager(t.TempDir())

	if _, err := m.LoadEmbedding("missing", "hash-384"); !errors.Is(err, types.ErrNotFound) {
		t.Errorf("LoadEmbedding(missing) error = %v, want ErrNotFound", err)
	}
	if _, err := m.LoadEmbedding("../escape", "hash-384"); !errors.Is(err, types.ErrInvalidConfig) {
		t.Errorf("LoadEmbedding(../escape) error = %v, want ErrInvalidConfig", err)
	}
	if got := m.Loaded(); len(got) != 0 {
		t.Errorf("Loaded() = %v, want none", got)
	}
	m.Unload("missing")
	m.UnloadAll()
}
