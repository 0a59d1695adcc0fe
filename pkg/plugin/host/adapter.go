package host

import (
	"context"
	"fmt"
	"sync"

	"github.com/spetr/tablerag/pkg/plugin/shared"
	"github.com/spetr/tablerag/pkg/provider"
	"github.com/spetr/tablerag/pkg/types"
)

// EmbeddingAdapter adapts a plugin EmbeddingProvider to the provider.EmbeddingProvider interface.
type EmbeddingAdapter struct {
	plugin shared.EmbeddingProvider

	mu     sync.RWMutex
	model  string
	closed bool
}

// NewEmbeddingAdapter creates a new embedding adapter.
func NewEmbeddingAdapter(p shared.EmbeddingProvider) *EmbeddingAdapter {
	return &EmbeddingAdapter{plugin: p}
}

// Name returns the provider name.
func (a *EmbeddingAdapter) Name() string {
	return a.plugin.Name()
}

// SetEmbeddingModel records the model passed to the plugin on every call.
func (a *EmbeddingAdapter) SetEmbeddingModel(modelID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.model = modelID
}

// EmbedText embeds a single text through the plugin process.
func (a *EmbeddingAdapter) EmbedText(ctx context.Context, text string) ([]float32, error) {
	// Check context before calling plugin
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	a.mu.RLock()
	model, closed := a.model, a.closed
	a.mu.RUnlock()
	if closed {
		return nil, fmt.Errorf("%w: plugin %s is closed", types.ErrEmbeddingFailed, a.plugin.Name())
	}
	if model == "" {
		return nil, fmt.Errorf("%w: plugin %s embedding model is not set", types.ErrEmbeddingFailed, a.plugin.Name())
	}

	vec, err := a.plugin.EmbedText(model, text)
	if err != nil {
		return nil, fmt.Errorf("%w: plugin %s: %w", types.ErrEmbeddingFailed, a.plugin.Name(), err)
	}
	return vec, nil
}

// Dimensions returns the embedding dimensions.
func (a *EmbeddingAdapter) Dimensions() int {
	return a.plugin.Dimensions()
}

// Close closes the plugin side of the provider once; later calls are no-ops.
func (a *EmbeddingAdapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true
	return a.plugin.Close()
}

// Ensure EmbeddingAdapter implements provider.EmbeddingProvider
var _ provider.EmbeddingProvider = (*EmbeddingAdapter)(nil)
