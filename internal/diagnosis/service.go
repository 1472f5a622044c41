package diagnosis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"incident-service/internal/llm"
	"incident-service/pkg/logger"
	"incident-service/pkg/models"
)

// ErrUnavailable means the diagnosis backend was down, timed out, or
// returned something unusable. Callers fall back to the conservative
// restart-safety default instead of failing.
var ErrUnavailable = errors.New("diagnosis unavailable")

const systemPrompt = `You are a Docker infrastructure diagnosis assistant.

You are given the status of a failed container and the tail of its logs.
Classify the most likely root cause as exactly one of:
- config: configuration issues (bad env vars, invalid flags, missing files)
- resource: resource constraints (out of memory, disk full, CPU starvation)
- dependency: a dependency failure (database down, unreachable service)
- app-crash: an application error (panic, unhandled exception, bug)
- unknown: not enough signal to decide

Also decide whether an automatic restart is safe. A restart is NOT safe when
the failure will immediately recur (bad configuration) or when restarting
could corrupt state.

Respond with ONLY a JSON object, no prose:
{"root_cause": "...", "summary": "<one or two sentences>", "restart_safe": true|false, "confidence": 0.0-1.0}`

// Service produces structured diagnoses from container state and log tails.
// The concrete LLM backend is injected; tests substitute a deterministic
// provider.
type Service struct {
	manager *llm.Manager
	timeout time.Duration
}

func NewService(manager *llm.Manager, timeout time.Duration) *Service {
	return &Service{
		manager: manager,
		timeout: timeout,
	}
}

// Diagnose asks the model to classify the failure. Every failure mode maps
// to ErrUnavailable so the orchestrator has a single fallback path.
func (s *Service) Diagnose(ctx context.Context, snap models.ContainerSnapshot, logTail []string) (*models.DiagnosisResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req := llm.CompletionRequest{
		Messages: []llm.Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: buildPrompt(snap, logTail)},
		},
		MaxTokens:   512,
		Temperature: 0,
	}

	resp, err := s.manager.Complete(ctx, req)
	if err != nil {
		logger.Warn("Diagnosis backend failed",
			logger.String("container", snap.Name),
			logger.Err(err),
		)
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	result, err := parseResult(resp.Content)
	if err != nil {
		logger.Warn("Diagnosis response unparseable",
			logger.String("container", snap.Name),
			logger.Err(err),
		)
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return result, nil
}

func buildPrompt(snap models.ContainerSnapshot, logTail []string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Container: %s\n", snap.Name)
	fmt.Fprintf(&b, "Image: %s\n", snap.Image)
	fmt.Fprintf(&b, "Status: %s\n", snap.Status)
	if snap.ExitCode != nil {
		fmt.Fprintf(&b, "Exit code: %d\n", *snap.ExitCode)
	}
	if !snap.TransitionAt.IsZero() {
		fmt.Fprintf(&b, "Last transition: %s\n", snap.TransitionAt.UTC().Format(time.RFC3339))
	}

	if len(logTail) == 0 {
		b.WriteString("\nNo logs available.\n")
	} else {
		fmt.Fprintf(&b, "\nLast %d log lines:\n", len(logTail))
		for _, line := range logTail {
			b.WriteString(line)
			b.WriteByte('\n')
		}
	}

	return b.String()
}

// parseResult extracts the JSON object from the model output. Models often
// wrap JSON in code fences or prose despite instructions.
func parseResult(content string) (*models.DiagnosisResult, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object in response")
	}

	var result models.DiagnosisResult
	if err := json.Unmarshal([]byte(content[start:end+1]), &result); err != nil {
		return nil, fmt.Errorf("decode diagnosis: %w", err)
	}

	switch result.Cause {
	case models.CauseConfig, models.CauseResource, models.CauseDependency, models.CauseAppCrash, models.CauseUnknown:
	default:
		result.Cause = models.CauseUnknown
	}

	if result.Confidence < 0 {
		result.Confidence = 0
	}
	if result.Confidence > 1 {
		result.Confidence = 1
	}

	return &result, nil
}
