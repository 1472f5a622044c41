package incident

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"incident-service/pkg/models"
)

// fakeRuntime reports running once restartCalls reaches runningAfter.
// runningAfter of zero means the container never comes back.
type fakeRuntime struct {
	mu           sync.Mutex
	restartCalls int
	failRestarts int
	runningAfter int
	block        chan struct{}
}

func (f *fakeRuntime) Restart(ctx context.Context, containerID string, stopTimeout time.Duration) error {
	if f.block != nil {
		<-f.block
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.restartCalls++
	if f.restartCalls <= f.failRestarts {
		return fmt.Errorf("engine busy")
	}
	return nil
}

func (f *fakeRuntime) Snapshot(ctx context.Context, containerID string) (models.ContainerSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.runningAfter > 0 && f.restartCalls >= f.runningAfter {
		return models.ContainerSnapshot{ID: containerID, Status: models.StatusRunning, Healthy: true}, nil
	}
	return models.ContainerSnapshot{ID: containerID, Status: models.StatusExited}, nil
}

func (f *fakeRuntime) restarts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.restartCalls
}

func newTestHealer(rt *fakeRuntime, maxAttempts int) *Healer {
	h := NewHealer(rt, maxAttempts, 10*time.Millisecond)
	h.pollInterval = time.Millisecond
	return h
}

func TestHealerSucceedsFirstAttempt(t *testing.T) {
	rt := &fakeRuntime{runningAfter: 1}
	h := newTestHealer(rt, 3)

	result, err := h.Heal(context.Background(), "c1")
	require.NoError(t, err)

	assert.True(t, result.Succeeded)
	require.Len(t, result.Attempts, 1)
	assert.Equal(t, models.AttemptSucceeded, result.Attempts[0].Outcome)
	assert.Equal(t, 1, rt.restarts())
}

func TestHealerRetriesUntilSuccess(t *testing.T) {
	rt := &fakeRuntime{runningAfter: 2}
	h := newTestHealer(rt, 3)

	result, err := h.Heal(context.Background(), "c1")
	require.NoError(t, err)

	assert.True(t, result.Succeeded)
	require.Len(t, result.Attempts, 2)
	assert.Equal(t, models.AttemptTimedOut, result.Attempts[0].Outcome)
	assert.Equal(t, models.AttemptSucceeded, result.Attempts[1].Outcome)
}

func TestHealerStopsAtMaxAttempts(t *testing.T) {
	rt := &fakeRuntime{}
	h := newTestHealer(rt, 3)

	result, err := h.Heal(context.Background(), "c1")
	require.NoError(t, err)

	assert.False(t, result.Succeeded)
	require.Len(t, result.Attempts, 3)
	for _, attempt := range result.Attempts {
		assert.Equal(t, models.AttemptTimedOut, attempt.Outcome)
	}
	assert.Equal(t, 3, rt.restarts())
}

func TestHealerRecordsRestartErrors(t *testing.T) {
	rt := &fakeRuntime{failRestarts: 1, runningAfter: 2}
	h := newTestHealer(rt, 3)

	result, err := h.Heal(context.Background(), "c1")
	require.NoError(t, err)

	assert.True(t, result.Succeeded)
	require.Len(t, result.Attempts, 2)
	assert.Equal(t, models.AttemptFailed, result.Attempts[0].Outcome)
	assert.Contains(t, result.Attempts[0].Error, "engine busy")
	assert.Equal(t, models.AttemptSucceeded, result.Attempts[1].Outcome)
}

func TestHealerHonorsCancellationBetweenAttempts(t *testing.T) {
	rt := &fakeRuntime{}
	h := newTestHealer(rt, 5)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := h.Heal(ctx, "c1")
	require.NoError(t, err)

	// The first attempt still runs to completion; later ones do not start.
	assert.Len(t, result.Attempts, 1)
	assert.False(t, result.Succeeded)
}

func TestHealerRejectsConcurrentHealForSameContainer(t *testing.T) {
	rt := &fakeRuntime{runningAfter: 1, block: make(chan struct{})}
	h := newTestHealer(rt, 3)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := h.Heal(context.Background(), "c1")
		assert.NoError(t, err)
	}()

	// Wait until the first heal is registered in flight.
	require.Eventually(t, func() bool {
		h.mu.Lock()
		defer h.mu.Unlock()
		return h.inflight["c1"]
	}, time.Second, time.Millisecond)

	_, err := h.Heal(context.Background(), "c1")
	assert.ErrorIs(t, err, ErrHealInFlight)

	close(rt.block)
	<-done

	// The guard releases once the heal finishes.
	_, err = h.Heal(context.Background(), "c1")
	assert.NoError(t, err)
}
