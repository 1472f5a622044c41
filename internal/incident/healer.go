package incident

import (
	"context"
	"fmt"
	"sync"
	"time"

	"incident-service/pkg/logger"
	"incident-service/pkg/models"
)

// Healer executes the bounded-retry restart protocol against a single
// container: restart, wait up to the restart timeout for the runtime to
// report running, and on timeout immediately issue the next attempt. No
// backoff between attempts; the per-attempt timeout is the pacing.
type Healer struct {
	runtime        Runtime
	maxAttempts    int
	restartTimeout time.Duration
	pollInterval   time.Duration

	mu       sync.Mutex
	inflight map[string]bool
}

func NewHealer(runtime Runtime, maxAttempts int, restartTimeout time.Duration) *Healer {
	return &Healer{
		runtime:        runtime,
		maxAttempts:    maxAttempts,
		restartTimeout: restartTimeout,
		pollInterval:   500 * time.Millisecond,
		inflight:       make(map[string]bool),
	}
}

// Heal runs the restart protocol. The attempt sequence is always at most
// maxAttempts long. Cancellation is honored between attempts, never in the
// middle of one, so a restart is never issued and left unobserved.
func (h *Healer) Heal(ctx context.Context, containerID string) (models.HealResult, error) {
	h.mu.Lock()
	if h.inflight[containerID] {
		h.mu.Unlock()
		return models.HealResult{}, ErrHealInFlight
	}
	h.inflight[containerID] = true
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.inflight, containerID)
		h.mu.Unlock()
	}()

	var result models.HealResult

	for attempt := 1; attempt <= h.maxAttempts; attempt++ {
		if attempt > 1 && ctx.Err() != nil {
			break
		}

		record := models.HealAttempt{
			Attempt:   attempt,
			StartedAt: time.Now().UTC(),
		}

		logger.Info("Restart attempt",
			logger.String("container", containerID),
			logger.Int("attempt", attempt),
			logger.Int("max_attempts", h.maxAttempts),
		)

		if err := h.runtime.Restart(ctx, containerID, h.restartTimeout); err != nil {
			record.Outcome = models.AttemptFailed
			record.Error = err.Error()
			result.Attempts = append(result.Attempts, record)
			continue
		}

		if h.waitRunning(containerID) {
			record.Outcome = models.AttemptSucceeded
			result.Attempts = append(result.Attempts, record)
			result.Succeeded = true
			return result, nil
		}

		record.Outcome = models.AttemptTimedOut
		record.Error = fmt.Sprintf("container not running after %s", h.restartTimeout)
		result.Attempts = append(result.Attempts, record)
	}

	return result, nil
}

// waitRunning polls the runtime until the container reports running or the
// restart timeout elapses. The wait deliberately ignores cancellation: an
// issued restart is always observed to completion.
func (h *Healer) waitRunning(containerID string) bool {
	deadline := time.Now().Add(h.restartTimeout)

	for {
		snap, err := h.runtime.Snapshot(context.Background(), containerID)
		if err == nil && snap.Status == models.StatusRunning && snap.Healthy {
			return true
		}

		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(h.pollInterval)
	}
}
