package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spetr/tablerag/pkg/types"
)

func TestValidateBackends(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"groq embedding", func(c *Config) { c.Embedding.Backend = "groq" }, false},
		{"unknown embedding", func(c *Config) { c.Embedding.Backend = "cohere" }, true},
		{"plugin without name", func(c *Config) { c.Embedding.Backend = "plugin" }, true},
		{"plugin with name", func(c *Config) { c.Embedding.Backend = "plugin"; c.Embedding.Plugin = "hash" }, false},
		{"bolt store", func(c *Config) { c.VectorDB.Backend = "bolt" }, false},
		{"qdrant store", func(c *Config) { c.VectorDB.Backend = "qdrant" }, false},
		{"unknown store", func(c *Config) { c.VectorDB.Backend = "chroma" }, true},
		{"empty collection", func(c *Config) { c.VectorDB.Collection = "" }, true},
		{"ollama generation", func(c *Config) { c.Generation.Backend = "ollama" }, true},
		{"bad log level", func(c *Config) { c.Logging.Level = "INFO" }, true},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			errs := Validate(cfg)

			if (len(errs) > 0) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", errs, tt.wantErr)
			}
			for _, err := range errs {
				if !errors.Is(err, types.ErrInvalidConfig) {
					t.Errorf("error %v does not wrap ErrInvalidConfig", err)
				}
			}
		})
	}
}

func TestLoadDefaults(t *testing.T) {
	root := t.TempDir()

	cfg, warnings, err := Load(root)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(warnings) == 0 {
		t.Error("expected a warning about the missing config file")
	}
	if cfg.VectorDB.Backend != "sqlitevec" || cfg.VectorDB.BatchSize != 50 {
		t.Errorf("vectordb = %+v", cfg.VectorDB)
	}
	if cfg.Index.Debounce != 2*time.Second {
		t.Errorf("debounce = %v, want 2s", cfg.Index.Debounce)
	}
	if cfg.Root != root {
		t.Errorf("Root = %q, want %q", cfg.Root, root)
	}
}

func TestLoadPrecedence(t *testing.T) {
	root := t.TempDir()

	cfg := DefaultConfig()
	cfg.Embedding.Backend = "groq"
	cfg.VectorDB.Collection = "from_file"
	cfg.Data.Dataset = "from_file.csv"
	if err := Save(root, cfg); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	env := "VECTORDB_COLLECTION=from_dotenv\nGROQ_API_KEY=gsk-dotenv\nDATASET=cars.csv\n"
	if err := os.WriteFile(EnvPath(root), []byte(env), 0644); err != nil {
		t.Fatal(err)
	}
	// The process environment beats .env.
	t.Setenv("GROQ_API_KEY", "gsk-process")
	t.Cleanup(func() {
		os.Unsetenv("VECTORDB_COLLECTION")
		os.Unsetenv("DATASET")
	})

	got, _, err := Load(root)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.Embedding.Backend != "groq" {
		t.Errorf("embedding.backend = %q, want groq from config.yaml", got.Embedding.Backend)
	}
	if got.VectorDB.Collection != "from_dotenv" {
		t.Errorf("vectordb.collection = %q, want from_dotenv", got.VectorDB.Collection)
	}
	if got.Groq.APIKey != "gsk-process" {
		t.Errorf("groq.api_key = %q, want gsk-process", got.Groq.APIKey)
	}
	if got.Data.Dataset != "cars.csv" {
		t.Errorf("data.dataset = %q, want cars.csv via alias", got.Data.Dataset)
	}
}

func TestPaths(t *testing.T) {
	root := t.TempDir()
	cfg := DefaultConfig()
	cfg.Root = root

	wantDB := filepath.Join(root, "assets", "database")
	if cfg.DatabaseDir() != wantDB {
		t.Errorf("DatabaseDir() = %q, want %q", cfg.DatabaseDir(), wantDB)
	}

	for i := 0; i < 2; i++ {
		p, err := cfg.DatabasePath("vectordb")
		if err != nil {
			t.Fatalf("DatabasePath() #%d error = %v", i, err)
		}
		if info, err := os.Stat(p); err != nil || !info.IsDir() {
			t.Errorf("DatabasePath() did not create %s", p)
		}
	}

	if got := cfg.DatasetPath("cars.csv"); got != filepath.Join(wantDB, "csv", "cars.csv") {
		t.Errorf("DatasetPath() = %q", got)
	}
	if got := cfg.SQLDatabasePath("cars.db"); got != filepath.Join(wantDB, "db_sql", "cars.db") {
		t.Errorf("SQLDatabasePath() = %q", got)
	}
}
