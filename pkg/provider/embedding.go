// Package provider defines interfaces for pluggable components.
package provider

import (
	"context"
	"unicode/utf8"
)

// EmbeddingProvider generates vector embeddings from text.
type EmbeddingProvider interface {
	// Name returns the provider name (e.g., "openai", "groq").
	Name() string

	// SetEmbeddingModel selects the model used by subsequent EmbedText calls.
	// It must be called before EmbedText.
	SetEmbeddingModel(modelID string)

	// EmbedText maps one string to one fixed-length vector.
	// Input over the provider's character budget is truncated or rejected,
	// depending on the provider.
	EmbedText(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the embedding dimension size of the current model,
	// or 0 when it is not known yet.
	Dimensions() int

	// Close releases any resources.
	Close() error
}

// LLMConfig contains credentials and defaults shared by embedding and
// generation providers.
type LLMConfig struct {
	APIKey     string // API key (OpenAI, Groq, Azure)
	BaseURL    string // Optional custom API endpoint
	Azure      bool   // Use Azure OpenAI authentication
	APIVersion string // Azure API version
	Endpoint   string // Local endpoint (Ollama)

	InputMaxCharacters int     // Character budget for a single input, NoInputLimit disables it
	MaxOutputTokens    int     // Default generation max tokens
	Temperature        float32 // Default generation temperature
}

// NoInputLimit as InputMaxCharacters turns the input budget off.
const NoInputLimit = -1

// TruncateInput cuts text to at most maxChars runes. A budget <= 0 disables truncation.
func TruncateInput(text string, maxChars int) string {
	if maxChars <= 0 || len(text) <= maxChars {
		return text
	}
	runes := []rune(text)
	if len(runes) <= maxChars {
		return text
	}
	return string(runes[:maxChars])
}

// ExceedsInput reports whether text is longer than maxChars runes.
func ExceedsInput(text string, maxChars int) bool {
	if maxChars <= 0 || len(text) <= maxChars {
		return false
	}
	return utf8.RuneCountInString(text) > maxChars
}
