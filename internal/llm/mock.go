package llm

import (
	"context"
	"strings"
)

// MockProvider is the last-resort backend. It returns a conservative
// diagnosis payload so the control loop stays functional in development
// environments with no model configured.
type MockProvider struct{}

func NewMockProvider() *MockProvider {
	return &MockProvider{}
}

func (p *MockProvider) Name() string {
	return "mock"
}

func (p *MockProvider) IsAvailable() bool {
	return true
}

func (p *MockProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	var userMessage string
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == "user" {
			userMessage = req.Messages[i].Content
			break
		}
	}

	return &CompletionResponse{
		Content:      p.generateResponse(userMessage),
		FinishReason: "stop",
	}, nil
}

func (p *MockProvider) generateResponse(userMessage string) string {
	lower := strings.ToLower(userMessage)

	cause := "unknown"
	summary := "Mock diagnosis: no model configured, cause undetermined."

	switch {
	case strings.Contains(lower, "oom") || strings.Contains(lower, "out of memory"):
		cause = "resource"
		summary = "Mock diagnosis: log tail mentions memory pressure."
	case strings.Contains(lower, "connection refused") || strings.Contains(lower, "timeout"):
		cause = "dependency"
		summary = "Mock diagnosis: log tail mentions an unreachable dependency."
	case strings.Contains(lower, "config") || strings.Contains(lower, "invalid"):
		cause = "config"
		summary = "Mock diagnosis: log tail mentions a configuration problem."
	case strings.Contains(lower, "panic") || strings.Contains(lower, "exit code 1"):
		cause = "app-crash"
		summary = "Mock diagnosis: the application appears to have crashed."
	}

	return `{"root_cause":"` + cause + `","summary":"` + summary + `","restart_safe":true,"confidence":0.3}`
}
