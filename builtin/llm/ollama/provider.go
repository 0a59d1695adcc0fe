// Package ollama implements EmbeddingProvider using Ollama's API.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/spetr/tablerag/pkg/provider"
	"github.com/spetr/tablerag/pkg/types"
)

// Default values
const (
	DefaultEndpoint           = "http://localhost:11434"
	DefaultInputMaxCharacters = 8000
)

// Config contains Ollama provider configuration.
type Config struct {
	Endpoint           string
	InputMaxCharacters int
}

// Provider implements the EmbeddingProvider interface for Ollama.
type Provider struct {
	config Config
	client *http.Client

	mu         sync.RWMutex
	model      string
	dimensions int
}

// New creates a new Ollama embedding provider.
func New(cfg Config) *Provider {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.InputMaxCharacters == 0 {
		cfg.InputMaxCharacters = DefaultInputMaxCharacters
	}

	return &Provider{
		config: cfg,
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "ollama"
}

// SetEmbeddingModel selects the embedding model.
func (p *Provider) SetEmbeddingModel(modelID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.model = modelID
	p.dimensions = 0
}

// EmbedText embeds a single text. Text over the budget is truncated.
func (p *Provider) EmbedText(ctx context.Context, text string) ([]float32, error) {
	p.mu.RLock()
	model := p.model
	p.mu.RUnlock()

	if model == "" {
		return nil, fmt.Errorf("%w: ollama embedding model is not set", types.ErrEmbeddingFailed)
	}

	text = provider.TruncateInput(text, p.config.InputMaxCharacters)

	jsonBody, err := json.Marshal(map[string]any{
		"model":  model,
		"prompt": text,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.Endpoint+"/api/embeddings", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: ollama request failed: %w", types.ErrEmbeddingFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: ollama returned status %d: %s", types.ErrEmbeddingFailed, resp.StatusCode, string(body))
	}

	var result struct {
		Embedding []float64 `json:"embedding"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("%w: failed to decode response: %w", types.ErrEmbeddingFailed, err)
	}

	embedding := make([]float32, len(result.Embedding))
	for i, v := range result.Embedding {
		embedding[i] = float32(v)
	}

	if len(embedding) > 0 {
		p.mu.Lock()
		p.dimensions = len(embedding)
		p.mu.Unlock()
	}

	return embedding, nil
}

// Dimensions returns the embedding dimensions, 0 until the first embedding.
func (p *Provider) Dimensions() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.dimensions
}

// Close releases resources.
func (p *Provider) Close() error {
	return nil
}

// Available checks if Ollama is running.
func (p *Provider) Available(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.config.Endpoint+"/api/version", nil)
	if err != nil {
		return err
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("ollama not available at %s: %w", p.config.Endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama returned status %d", resp.StatusCode)
	}
	return nil
}

// Ensure Provider implements EmbeddingProvider interface
var _ provider.EmbeddingProvider = (*Provider)(nil)
