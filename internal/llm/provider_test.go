package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type canned struct {
	name      string
	available bool
	content   string
}

func (c *canned) Name() string      { return c.name }
func (c *canned) IsAvailable() bool { return c.available }

func (c *canned) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	return &CompletionResponse{Content: c.content}, nil
}

func TestManagerPrefersDefaultProvider(t *testing.T) {
	m := NewManager(&Config{DefaultProvider: ProviderOllama, OllamaHost: "http://localhost:11434"})
	m.AddProvider(ProviderOllama, &canned{name: "ollama", available: true, content: "from ollama"})
	m.AddProvider(ProviderClaude, &canned{name: "claude", available: true, content: "from claude"})

	resp, err := m.Complete(context.Background(), CompletionRequest{})
	require.NoError(t, err)
	assert.Equal(t, "from ollama", resp.Content)
}

func TestManagerFallsBackWhenDefaultUnavailable(t *testing.T) {
	m := NewManager(&Config{DefaultProvider: ProviderOpenAI})
	m.AddProvider(ProviderOpenAI, &canned{name: "openai", available: false})
	m.AddProvider(ProviderClaude, &canned{name: "claude", available: true, content: "from claude"})

	provider, err := m.GetProvider()
	require.NoError(t, err)
	assert.Equal(t, "claude", provider.Name())
}

func TestManagerAlwaysHasMockFallback(t *testing.T) {
	m := NewManager(&Config{DefaultProvider: ProviderOpenAI})

	provider, err := m.GetProvider()
	require.NoError(t, err)
	assert.Equal(t, "mock", provider.Name())
}

func TestMockProviderClassifiesFromLogContent(t *testing.T) {
	p := NewMockProvider()

	cases := map[string]string{
		"container killed, Out of memory":       "resource",
		"dial tcp: connection refused":          "dependency",
		"invalid value for flag --listen":       "config",
		"panic: runtime error: nil dereference": "app-crash",
		"nothing interesting here":              "unknown",
	}

	for input, wantCause := range cases {
		resp, err := p.Complete(context.Background(), CompletionRequest{
			Messages: []Message{{Role: "user", Content: input}},
		})
		require.NoError(t, err)

		var parsed struct {
			RootCause   string `json:"root_cause"`
			RestartSafe bool   `json:"restart_safe"`
		}
		require.NoError(t, json.Unmarshal([]byte(resp.Content), &parsed))
		assert.Equal(t, wantCause, parsed.RootCause, "input: %s", input)
		assert.True(t, parsed.RestartSafe)
	}
}

func TestOllamaProviderCompletes(t *testing.T) {
	var gotBody map[string]interface{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		json.NewEncoder(w).Encode(map[string]interface{}{
			"message":     map[string]string{"role": "assistant", "content": "diagnosis text"},
			"done_reason": "stop",
		})
	}))
	defer server.Close()

	p := NewOllamaProvider(server.URL, "llama3.2:latest")

	resp, err := p.Complete(context.Background(), CompletionRequest{
		Messages:    []Message{{Role: "user", Content: "why did it crash"}},
		Temperature: 0,
	})
	require.NoError(t, err)

	assert.Equal(t, "diagnosis text", resp.Content)
	assert.Equal(t, "stop", resp.FinishReason)
	assert.Equal(t, "llama3.2:latest", gotBody["model"])
	assert.Equal(t, false, gotBody["stream"])
}

func TestOllamaProviderRejectsAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer server.Close()

	p := NewOllamaProvider(server.URL, "nope")

	_, err := p.Complete(context.Background(), CompletionRequest{
		Messages: []Message{{Role: "user", Content: "hi"}},
	})
	assert.Error(t, err)
}

func TestOllamaProviderDefaultsModel(t *testing.T) {
	p := NewOllamaProvider("http://localhost:11434/", "")
	assert.Equal(t, "llama3.2:latest", p.model)
	assert.Equal(t, "http://localhost:11434", p.host)
}
