package llm

import (
	"context"
	"fmt"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type CompletionRequest struct {
	Messages    []Message
	MaxTokens   int
	Temperature float64
	Model       string
}

type CompletionResponse struct {
	Content      string
	FinishReason string
}

// Provider is a single chat-completion backend.
type Provider interface {
	Name() string
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
	IsAvailable() bool
}

type ProviderType string

const (
	ProviderOpenAI ProviderType = "openai"
	ProviderClaude ProviderType = "claude"
	ProviderOllama ProviderType = "ollama"
	ProviderMock   ProviderType = "mock"
)

type Config struct {
	OpenAIAPIKey    string
	ClaudeAPIKey    string
	OllamaHost      string
	Model           string
	DefaultProvider ProviderType
}

// Manager holds the configured providers and picks the first available one,
// falling back in a fixed order so diagnosis keeps working when a backend
// is down or unconfigured.
type Manager struct {
	providers map[ProviderType]Provider
	config    *Config
}

func NewManager(config *Config) *Manager {
	providers := make(map[ProviderType]Provider)

	if config.OpenAIAPIKey != "" {
		providers[ProviderOpenAI] = NewOpenAIProvider(config.OpenAIAPIKey, config.Model)
	}

	if config.ClaudeAPIKey != "" {
		providers[ProviderClaude] = NewClaudeProvider(config.ClaudeAPIKey, config.Model)
	}

	if config.OllamaHost != "" {
		providers[ProviderOllama] = NewOllamaProvider(config.OllamaHost, config.Model)
	}

	providers[ProviderMock] = NewMockProvider()

	return &Manager{
		providers: providers,
		config:    config,
	}
}

func (m *Manager) GetProvider() (Provider, error) {
	fallbackOrder := []ProviderType{
		m.config.DefaultProvider,
		ProviderClaude,
		ProviderOpenAI,
		ProviderOllama,
		ProviderMock,
	}

	for _, pt := range fallbackOrder {
		if provider, ok := m.providers[pt]; ok && provider.IsAvailable() {
			return provider, nil
		}
	}

	return nil, fmt.Errorf("no LLM provider available")
}

func (m *Manager) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	provider, err := m.GetProvider()
	if err != nil {
		return nil, err
	}

	return provider.Complete(ctx, req)
}

// AddProvider registers or replaces a provider. Tests use this to install
// deterministic backends.
func (m *Manager) AddProvider(providerType ProviderType, provider Provider) {
	m.providers[providerType] = provider
}
