package factory

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	_ "github.com/spetr/tablerag/builtin"
	"github.com/spetr/tablerag/internal/config"
	"github.com/spetr/tablerag/pkg/types"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Root = t.TempDir()
	return cfg
}

func TestCreateEmbedding(t *testing.T) {
	tests := []struct {
		name    string
		backend string
		azure   bool
		setup   func(*config.Config)
		want    string
		wantErr bool
	}{
		{name: "openai without key", backend: "openai", wantErr: true},
		{
			name:    "openai with key",
			backend: "openai",
			setup:   func(c *config.Config) { c.OpenAI.APIKey = "sk-test" },
			want:    "openai",
		},
		{
			name:    "azure needs endpoint",
			backend: "openai",
			azure:   true,
			setup:   func(c *config.Config) { c.AzureOpenAI.APIKey = "az" },
			wantErr: true,
		},
		{
			name:    "azure with key and endpoint",
			backend: "openai",
			azure:   true,
			setup: func(c *config.Config) {
				c.AzureOpenAI.APIKey = "az"
				c.AzureOpenAI.Endpoint = "https://example.openai.azure.com"
			},
			want: "openai",
		},
		{name: "groq without key", backend: "groq", wantErr: true},
		{
			name:    "groq with key",
			backend: "groq",
			setup:   func(c *config.Config) { c.Groq.APIKey = "gsk" },
			want:    "groq",
		},
		{name: "ollama needs no key", backend: "ollama", want: "ollama"},
		{name: "plugin without manager", backend: "plugin", wantErr: true},
		{name: "unknown backend", backend: "cohere", wantErr: true},
		{name: "empty backend", backend: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			if tt.setup != nil {
				tt.setup(cfg)
			}

			p, err := NewLLMProviderFactory(cfg, tt.azure, nil).CreateEmbedding(tt.backend)
			if tt.wantErr {
				if !errors.Is(err, types.ErrInvalidConfig) {
					t.Fatalf("CreateEmbedding(%q) error = %v, want ErrInvalidConfig", tt.backend, err)
				}
				if p != nil {
					t.Errorf("CreateEmbedding(%q) returned a provider on error", tt.backend)
				}
				return
			}
			if err != nil {
				t.Fatalf("CreateEmbedding(%q) error = %v", tt.backend, err)
			}
			if p.Name() != tt.want {
				t.Errorf("Name() = %q, want %q", p.Name(), tt.want)
			}
		})
	}
}

func TestCreateGeneration(t *testing.T) {
	cfg := testConfig(t)
	cfg.OpenAI.APIKey = "sk-test"
	f := NewLLMProviderFactory(cfg, false, nil)

	g, err := f.CreateGeneration("openai")
	if err != nil {
		t.Fatalf("CreateGeneration(openai) error = %v", err)
	}
	if g.Name() != "openai" {
		t.Errorf("Name() = %q, want openai", g.Name())
	}

	if _, err := f.CreateGeneration("ollama"); !errors.Is(err, types.ErrInvalidConfig) {
		t.Errorf("CreateGeneration(ollama) error = %v, want ErrInvalidConfig", err)
	}
}

func TestVectorDBFactory(t *testing.T) {
	for _, backend := range []string{"sqlitevec", "bolt", "qdrant"} {
		t.Run(backend, func(t *testing.T) {
			cfg := testConfig(t)
			store, err := NewVectorDBFactory(cfg).Create(backend)
			if err != nil {
				t.Fatalf("Create(%q) error = %v", backend, err)
			}
			if store.Name() != backend {
				t.Errorf("Name() = %q, want %q", store.Name(), backend)
			}

			dir := filepath.Join(cfg.Root, "assets", "database", "vectordb")
			if fi, err := os.Stat(dir); err != nil || !fi.IsDir() {
				t.Errorf("database path %s not created: %v", dir, err)
			}
		})
	}
}

func TestVectorDBFactoryUnknown(t *testing.T) {
	cfg := testConfig(t)
	store, err := NewVectorDBFactory(cfg).Create("chroma")
	if !errors.Is(err, types.ErrInvalidConfig) {
		t.Fatalf("Create(chroma) error = %v, want ErrInvalidConfig", err)
	}
	if store != nil {
		t.Error("Create(chroma) returned a store")
	}
	if _, err := os.Stat(filepath.Join(cfg.Root, "assets")); !os.IsNotExist(err) {
		t.Error("unknown backend should not create directories")
	}
}
