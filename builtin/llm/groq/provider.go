// Package groq implements embedding and generation providers for Groq's
// OpenAI-compatible API.
package groq

import (
	openaillm "github.com/spetr/tablerag/builtin/llm/openai"
)

// DefaultBaseURL is Groq's OpenAI-compatible endpoint.
const DefaultBaseURL = "https://api.groq.com/openai/v1"

// Config contains Groq provider configuration.
type Config struct {
	APIKey  string
	BaseURL string // Optional override, mainly for tests

	InputMaxCharacters int
	MaxOutputTokens    int
	Temperature        float32
}

// New creates a Groq provider. Input longer than InputMaxCharacters is
// rejected rather than truncated.
func New(cfg Config) *openaillm.Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	return openaillm.New(openaillm.Config{
		Name:               "groq",
		APIKey:             cfg.APIKey,
		BaseURL:            cfg.BaseURL,
		InputMaxCharacters: cfg.InputMaxCharacters,
		MaxOutputTokens:    cfg.MaxOutputTokens,
		Temperature:        cfg.Temperature,
		OverBudget:         openaillm.Reject,
	})
}

