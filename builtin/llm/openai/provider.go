// Package openai implements embedding and generation providers using OpenAI's API.
package openai

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sashabaranov/go-openai"

	"github.com/spetr/tablerag/pkg/provider"
	"github.com/spetr/tablerag/pkg/types"
)

// Default values
const (
	DefaultInputMaxCharacters = 1000
	DefaultMaxOutputTokens    = 1000
	DefaultTemperature        = 0.1
	DefaultAzureAPIVersion    = "2024-02-01"
)

// Model dimensions for known models
var modelDimensions = map[string]int{
	"text-embedding-ada-002": 1536,
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
}

// OverBudget selects what happens to input longer than InputMaxCharacters.
type OverBudget int

const (
	// Truncate cuts the input to the budget.
	Truncate OverBudget = iota
	// Reject fails the call.
	Reject
)

// Config contains OpenAI provider configuration.
type Config struct {
	Name       string // Reported provider name, defaults to "openai"
	APIKey     string
	BaseURL    string // Optional: custom API endpoint (OpenAI-compatible servers)
	Azure      bool   // Authenticate against Azure OpenAI
	Endpoint   string // Azure resource endpoint
	APIVersion string // Azure API version

	InputMaxCharacters int
	MaxOutputTokens    int
	Temperature        float32
	OverBudget         OverBudget
}

// Provider implements provider.EmbeddingProvider and provider.GenerationProvider.
type Provider struct {
	config Config
	client *openai.Client

	mu              sync.RWMutex
	embeddingModel  string
	generationModel string
	dimensions      int
}

// New creates a new OpenAI provider. No network I/O happens here.
func New(cfg Config) *Provider {
	if cfg.Name == "" {
		cfg.Name = "openai"
	}
	if cfg.InputMaxCharacters == 0 {
		cfg.InputMaxCharacters = DefaultInputMaxCharacters
	}
	if cfg.MaxOutputTokens == 0 {
		cfg.MaxOutputTokens = DefaultMaxOutputTokens
	}

	var clientConfig openai.ClientConfig
	if cfg.Azure {
		clientConfig = openai.DefaultAzureConfig(cfg.APIKey, cfg.Endpoint)
		if cfg.APIVersion == "" {
			cfg.APIVersion = DefaultAzureAPIVersion
		}
		clientConfig.APIVersion = cfg.APIVersion
	} else {
		clientConfig = openai.DefaultConfig(cfg.APIKey)
		if cfg.BaseURL != "" {
			clientConfig.BaseURL = cfg.BaseURL
		}
	}

	return &Provider{
		config: cfg,
		client: openai.NewClientWithConfig(clientConfig),
	}
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return p.config.Name
}

// SetEmbeddingModel selects the embedding model.
func (p *Provider) SetEmbeddingModel(modelID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.embeddingModel = modelID
	p.dimensions = modelDimensions[modelID]
}

// SetGenerationModel selects the chat model.
func (p *Provider) SetGenerationModel(modelID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.generationModel = modelID
}

// EmbedText embeds a single text.
func (p *Provider) EmbedText(ctx context.Context, text string) ([]float32, error) {
	p.mu.RLock()
	model := p.embeddingModel
	p.mu.RUnlock()

	if model == "" {
		return nil, fmt.Errorf("%w: %s embedding model is not set", types.ErrEmbeddingFailed, p.config.Name)
	}

	text, err := p.processInput(text)
	if err != nil {
		return nil, err
	}

	resp, err := p.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(model),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s embedding failed: %w", types.ErrEmbeddingFailed, p.config.Name, err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("%w: %s returned no embedding", types.ErrEmbeddingFailed, p.config.Name)
	}

	embedding := resp.Data[0].Embedding
	p.mu.Lock()
	p.dimensions = len(embedding)
	p.mu.Unlock()

	return embedding, nil
}

// GenerateText runs a chat completion over history followed by prompt.
func (p *Provider) GenerateText(ctx context.Context, prompt string, history []types.ChatMessage, maxTokens int, temperature float32) (string, error) {
	p.mu.RLock()
	model := p.generationModel
	p.mu.RUnlock()

	if model == "" {
		return "", fmt.Errorf("%w: %s generation model is not set", types.ErrGenerationFailed, p.config.Name)
	}
	if maxTokens <= 0 {
		maxTokens = p.config.MaxOutputTokens
	}
	if temperature < 0 {
		temperature = p.config.Temperature
	}

	prompt, err := p.processInput(prompt)
	if err != nil {
		return "", fmt.Errorf("%w: %w", types.ErrGenerationFailed, err)
	}

	messages := make([]openai.ChatCompletionMessage, 0, len(history)+1)
	for _, m := range history {
		messages = append(messages, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}
	user := p.ConstructPrompt(prompt, types.RoleUser)
	messages = append(messages, openai.ChatCompletionMessage{Role: user.Role, Content: user.Content})

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: temperature,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %s chat completion failed: %w", types.ErrGenerationFailed, p.config.Name, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: %s returned no choices", types.ErrGenerationFailed, p.config.Name)
	}

	return resp.Choices[0].Message.Content, nil
}

// ConstructPrompt builds a chat message for the given role.
func (p *Provider) ConstructPrompt(prompt, role string) types.ChatMessage {
	return types.ChatMessage{Role: role, Content: prompt}
}

// Dimensions returns the embedding dimensions, 0 if not yet known.
func (p *Provider) Dimensions() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.dimensions
}

// Close releases resources.
func (p *Provider) Close() error {
	// HTTP client doesn't need explicit cleanup
	return nil
}

var errOverBudget = errors.New("input exceeds character budget")

func (p *Provider) processInput(text string) (string, error) {
	if !provider.ExceedsInput(text, p.config.InputMaxCharacters) {
		return text, nil
	}
	if p.config.OverBudget == Reject {
		return "", fmt.Errorf("%w: %s: %w (%d characters)", types.ErrEmbeddingFailed, p.config.Name, errOverBudget, p.config.InputMaxCharacters)
	}
	return provider.TruncateInput(text, p.config.InputMaxCharacters), nil
}

// Ensure Provider implements both provider interfaces
var (
	_ provider.EmbeddingProvider  = (*Provider)(nil)
	_ provider.GenerationProvider = (*Provider)(nil)
)
