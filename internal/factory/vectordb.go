package factory

import (
	"fmt"
	"log/slog"

	"github.com/spetr/tablerag/internal/config"
	"github.com/spetr/tablerag/pkg/provider"
	"github.com/spetr/tablerag/pkg/types"
)

// VectorDBFactory creates vector stores.
type VectorDBFactory struct {
	cfg      *config.Config
	registry *provider.Registry
}

// NewVectorDBFactory creates a factory for the stores described by cfg.
func NewVectorDBFactory(cfg *config.Config) *VectorDBFactory {
	return &VectorDBFactory{
		cfg:      cfg,
		registry: provider.DefaultRegistry,
	}
}

// Create returns an unconnected store for backend. Local engines persist
// under <database>/<vectordb.path>, which is created if needed.
func (f *VectorDBFactory) Create(backend string) (provider.VectorStore, error) {
	if !f.registry.HasVectorStore(backend) {
		slog.Warn(fmt.Sprintf("Unsupported provider: %s", backend))
		return nil, fmt.Errorf("%w: unsupported vector store: %s", types.ErrInvalidConfig, backend)
	}

	path, err := f.cfg.DatabasePath(f.cfg.VectorDB.Path)
	if err != nil {
		return nil, err
	}

	return f.registry.CreateVectorStore(backend, provider.VectorStoreConfig{
		Provider: backend,
		Path:     path,
		Host:     f.cfg.VectorDB.QdrantHost,
		Port:     f.cfg.VectorDB.QdrantPort,
		APIKey:   f.cfg.VectorDB.QdrantAPIKey,
	})
}
