package provider

import (
	"context"

	"github.com/spetr/tablerag/pkg/types"
)

// GenerationProvider produces text completions from a chat-style prompt.
type GenerationProvider interface {
	// Name returns the provider name.
	Name() string

	// SetGenerationModel selects the chat model used by GenerateText.
	SetGenerationModel(modelID string)

	// GenerateText sends history plus prompt (as a user message) to the model.
	// maxTokens <= 0 and temperature < 0 fall back to the provider defaults.
	GenerateText(ctx context.Context, prompt string, history []types.ChatMessage, maxTokens int, temperature float32) (string, error)

	// ConstructPrompt builds a chat message for the given role.
	ConstructPrompt(prompt, role string) types.ChatMessage
}
