// Package factory turns configuration into ready-to-use providers and stores.
package factory

import (
	"fmt"
	"log/slog"

	"github.com/spetr/tablerag/internal/config"
	"github.com/spetr/tablerag/pkg/plugin/host"
	"github.com/spetr/tablerag/pkg/provider"
	"github.com/spetr/tablerag/pkg/types"
)

// LLMProviderFactory creates embedding and generation providers.
// Construction never performs network I/O.
type LLMProviderFactory struct {
	cfg      *config.Config
	azure    bool
	plugins  *host.Manager
	registry *provider.Registry
}

// NewLLMProviderFactory creates a factory. azure selects Azure OpenAI
// authentication for the openai backend. plugins may be nil when the plugin
// backend is not used.
func NewLLMProviderFactory(cfg *config.Config, azure bool, plugins *host.Manager) *LLMProviderFactory {
	return &LLMProviderFactory{
		cfg:      cfg,
		azure:    azure,
		plugins:  plugins,
		registry: provider.DefaultRegistry,
	}
}

// CreateEmbedding creates the embedding provider for backend. The caller
// selects the model with SetEmbeddingModel.
func (f *LLMProviderFactory) CreateEmbedding(backend string) (provider.EmbeddingProvider, error) {
	if backend == "plugin" {
		return f.createPlugin()
	}

	llmCfg, err := f.llmConfig(backend)
	if err != nil {
		return nil, err
	}

	p, err := f.registry.CreateEmbedding(backend, llmCfg)
	if err != nil {
		slog.Warn(fmt.Sprintf("Unsupported provider: %s", backend))
		return nil, err
	}
	return p, nil
}

// CreateGeneration creates the generation provider for backend.
func (f *LLMProviderFactory) CreateGeneration(backend string) (provider.GenerationProvider, error) {
	llmCfg, err := f.llmConfig(backend)
	if err != nil {
		return nil, err
	}

	p, err := f.registry.CreateGeneration(backend, llmCfg)
	if err != nil {
		slog.Warn(fmt.Sprintf("Unsupported provider: %s", backend))
		return nil, err
	}
	return p, nil
}

// CreateSQLGeneration creates a generation provider for the SQL agent. Its
// prompts carry a whole schema and query result, so the input budget that
// applies to embeddings and RAG prompts is turned off.
func (f *LLMProviderFactory) CreateSQLGeneration(backend string) (provider.GenerationProvider, error) {
	llmCfg, err := f.llmConfig(backend)
	if err != nil {
		return nil, err
	}
	llmCfg.InputMaxCharacters = provider.NoInputLimit

	p, err := f.registry.CreateGeneration(backend, llmCfg)
	if err != nil {
		slog.Warn(fmt.Sprintf("Unsupported provider: %s", backend))
		return nil, err
	}
	return p, nil
}

// llmConfig validates the credentials backend needs and collects them with
// the shared defaults.
func (f *LLMProviderFactory) llmConfig(backend string) (provider.LLMConfig, error) {
	c := provider.LLMConfig{
		InputMaxCharacters: f.cfg.Defaults.InputMaxCharacters,
		MaxOutputTokens:    f.cfg.Defaults.MaxOutputTokens,
		Temperature:        f.cfg.Defaults.Temperature,
	}

	switch backend {
	case "openai":
		if f.azure {
			az := f.cfg.AzureOpenAI
			if az.APIKey == "" || az.Endpoint == "" {
				slog.Error("Missing Azure OpenAI API key or endpoint in configuration.")
				return c, fmt.Errorf("%w: azure_openai.api_key and azure_openai.endpoint are required", types.ErrInvalidConfig)
			}
			c.Azure = true
			c.APIKey = az.APIKey
			c.Endpoint = az.Endpoint
			c.APIVersion = az.APIVersion
			return c, nil
		}
		if f.cfg.OpenAI.APIKey == "" {
			slog.Error("Missing OpenAI API key in configuration.")
			return c, fmt.Errorf("%w: openai.api_key is required", types.ErrInvalidConfig)
		}
		c.APIKey = f.cfg.OpenAI.APIKey
		c.BaseURL = f.cfg.OpenAI.APIURL

	case "groq":
		if f.cfg.Groq.APIKey == "" {
			slog.Error("Missing Groq API key in configuration.")
			return c, fmt.Errorf("%w: groq.api_key is required", types.ErrInvalidConfig)
		}
		c.APIKey = f.cfg.Groq.APIKey
		c.BaseURL = f.cfg.Groq.APIURL

	case "ollama":
		c.Endpoint = f.cfg.Ollama.Endpoint

	default:
		slog.Warn(fmt.Sprintf("Unsupported provider: %s", backend))
		return c, fmt.Errorf("%w: unsupported provider: %s", types.ErrInvalidConfig, backend)
	}

	return c, nil
}

func (f *LLMProviderFactory) createPlugin() (provider.EmbeddingProvider, error) {
	name := f.cfg.Embedding.Plugin
	if f.plugins == nil || name == "" {
		slog.Error("Missing embedding plugin in configuration.")
		return nil, fmt.Errorf("%w: embedding.plugin is required for the plugin backend", types.ErrInvalidConfig)
	}

	p, err := f.plugins.LoadEmbedding(name, f.cfg.Embedding.ModelID)
	if err != nil {
		slog.Error("failed to load embedding plugin", "plugin", name, "error", err)
		return nil, err
	}
	return p, nil
}
