// Package builtin registers all built-in providers with the default registry.
package builtin

import (
	"github.com/spetr/tablerag/builtin/llm/groq"
	"github.com/spetr/tablerag/builtin/llm/ollama"
	"github.com/spetr/tablerag/builtin/llm/openai"
	"github.com/spetr/tablerag/builtin/vectorstore/bolt"
	"github.com/spetr/tablerag/builtin/vectorstore/qdrant"
	"github.com/spetr/tablerag/builtin/vectorstore/sqlitevec"
	"github.com/spetr/tablerag/pkg/provider"
)

func init() {
	// Register embedding providers
	provider.RegisterEmbedding("openai", func(cfg provider.LLMConfig) (provider.EmbeddingProvider, error) {
		return newOpenAI(cfg), nil
	})

	provider.RegisterEmbedding("groq", func(cfg provider.LLMConfig) (provider.EmbeddingProvider, error) {
		return newGroq(cfg), nil
	})

	provider.RegisterEmbedding("ollama", func(cfg provider.LLMConfig) (provider.EmbeddingProvider, error) {
		return ollama.New(ollama.Config{
			Endpoint:           cfg.Endpoint,
			InputMaxCharacters: cfg.InputMaxCharacters,
		}), nil
	})

	// Register generation providers
	provider.RegisterGeneration("openai", func(cfg provider.LLMConfig) (provider.GenerationProvider, error) {
		return newOpenAI(cfg), nil
	})

	provider.RegisterGeneration("groq", func(cfg provider.LLMConfig) (provider.GenerationProvider, error) {
		return newGroq(cfg), nil
	})

	// Register vector stores
	provider.RegisterVectorStore("sqlitevec", func(cfg provider.VectorStoreConfig) (provider.VectorStore, error) {
		return sqlitevec.New(sqlitevec.Config{Path: cfg.Path}), nil
	})

	provider.RegisterVectorStore("bolt", func(cfg provider.VectorStoreConfig) (provider.VectorStore, error) {
		return bolt.New(bolt.Config{Path: cfg.Path}), nil
	})

	provider.RegisterVectorStore("qdrant", func(cfg provider.VectorStoreConfig) (provider.VectorStore, error) {
		return qdrant.New(qdrant.Config{
			Host:   cfg.Host,
			Port:   cfg.Port,
			APIKey: cfg.APIKey,
		}), nil
	})
}

func newOpenAI(cfg provider.LLMConfig) *openai.Provider {
	return openai.New(openai.Config{
		APIKey:             cfg.APIKey,
		BaseURL:            cfg.BaseURL,
		Azure:              cfg.Azure,
		Endpoint:           cfg.Endpoint,
		APIVersion:         cfg.APIVersion,
		InputMaxCharacters: cfg.InputMaxCharacters,
		MaxOutputTokens:    cfg.MaxOutputTokens,
		Temperature:        cfg.Temperature,
	})
}

func newGroq(cfg provider.LLMConfig) *openai.Provider {
	return groq.New(groq.Config{
		APIKey:             cfg.APIKey,
		BaseURL:            cfg.BaseURL,
		InputMaxCharacters: cfg.InputMaxCharacters,
		MaxOutputTokens:    cfg.MaxOutputTokens,
		Temperature:        cfg.Temperature,
	})
}
