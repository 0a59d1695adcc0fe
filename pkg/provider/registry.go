package provider

import (
	"fmt"
	"sort"
	"sync"

	"github.com/spetr/tablerag/pkg/types"
)

// EmbeddingFactory creates an EmbeddingProvider from configuration.
type EmbeddingFactory func(config LLMConfig) (EmbeddingProvider, error)

// GenerationFactory creates a GenerationProvider from configuration.
type GenerationFactory func(config LLMConfig) (GenerationProvider, error)

// VectorStoreFactory creates an unconnected VectorStore.
type VectorStoreFactory func(config VectorStoreConfig) (VectorStore, error)

// Registry holds factories for all provider types.
type Registry struct {
	mu sync.RWMutex

	embeddingFactories   map[string]EmbeddingFactory
	generationFactories  map[string]GenerationFactory
	vectorStoreFactories map[string]VectorStoreFactory
}

// NewRegistry creates a new empty registry.
func NewRegistry() *Registry {
	return &Registry{
		embeddingFactories:   make(map[string]EmbeddingFactory),
		generationFactories:  make(map[string]GenerationFactory),
		vectorStoreFactories: make(map[string]VectorStoreFactory),
	}
}

// RegisterEmbedding registers an embedding provider factory.
func (r *Registry) RegisterEmbedding(name string, factory EmbeddingFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.embeddingFactories[name] = factory
}

// RegisterGeneration registers a generation provider factory.
func (r *Registry) RegisterGeneration(name string, factory GenerationFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.generationFactories[name] = factory
}

// RegisterVectorStore registers a vector store factory.
func (r *Registry) RegisterVectorStore(name string, factory VectorStoreFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.vectorStoreFactories[name] = factory
}

// CreateEmbedding creates an embedding provider by name.
func (r *Registry) CreateEmbedding(name string, config LLMConfig) (EmbeddingProvider, error) {
	r.mu.RLock()
	factory, ok := r.embeddingFactories[name]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: unknown embedding provider: %s (available: %v)", types.ErrInvalidConfig, name, r.ListEmbeddings())
	}
	return factory(config)
}

// CreateGeneration creates a generation provider by name.
func (r *Registry) CreateGeneration(name string, config LLMConfig) (GenerationProvider, error) {
	r.mu.RLock()
	factory, ok := r.generationFactories[name]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: unknown generation provider: %s (available: %v)", types.ErrInvalidConfig, name, r.ListGenerations())
	}
	return factory(config)
}

// CreateVectorStore creates a vector store by name.
func (r *Registry) CreateVectorStore(name string, config VectorStoreConfig) (VectorStore, error) {
	r.mu.RLock()
	factory, ok := r.vectorStoreFactories[name]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: unknown vector store: %s (available: %v)", types.ErrInvalidConfig, name, r.ListVectorStores())
	}
	return factory(config)
}

// ListEmbeddings returns all registered embedding provider names.
func (r *Registry) ListEmbeddings() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.embeddingFactories)
}

// ListGenerations returns all registered generation provider names.
func (r *Registry) ListGenerations() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.generationFactories)
}

// ListVectorStores returns all registered vector store names.
func (r *Registry) ListVectorStores() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.vectorStoreFactories)
}

// HasEmbedding checks if an embedding provider is registered.
func (r *Registry) HasEmbedding(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.embeddingFactories[name]
	return ok
}

// HasVectorStore checks if a vector store is registered.
func (r *Registry) HasVectorStore(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.vectorStoreFactories[name]
	return ok
}

func sortedKeys[T any](m map[string]T) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultRegistry is the global default registry.
var DefaultRegistry = NewRegistry()

// Register functions for the default registry.

// RegisterEmbedding registers an embedding provider in the default registry.
func RegisterEmbedding(name string, factory EmbeddingFactory) {
	DefaultRegistry.RegisterEmbedding(name, factory)
}

// RegisterGeneration registers a generation provider in the default registry.
func RegisterGeneration(name string, factory GenerationFactory) {
	DefaultRegistry.RegisterGeneration(name, factory)
}

// RegisterVectorStore registers a vector store in the default registry.
func RegisterVectorStore(name string, factory VectorStoreFactory) {
	DefaultRegistry.RegisterVectorStore(name, factory)
}
