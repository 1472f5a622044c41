package alertlog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"incident-service/pkg/models"
)

func TestAppendWritesOneLinePerAlert(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alerts.log")
	l := New(path)

	ts := time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)

	require.NoError(t, l.Append(models.AlertPayload{
		Severity:   models.SeverityCritical,
		Transition: models.TransitionHealFailed,
		Container:  "prod-db-01",
		Subject:    "URGENT: container prod-db-01 DOWN, auto-heal failed",
		Timestamp:  ts,
	}))
	require.NoError(t, l.Append(models.AlertPayload{
		Severity:   models.SeverityInfo,
		Transition: models.TransitionHealed,
		Container:  "api-server",
		Subject:    "Container api-server auto-healed after 1 attempt(s)",
		Timestamp:  ts.Add(time.Minute),
	}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "[2025-03-14T09:26:53Z] [CRITICAL] [heal-failed] prod-db-01: URGENT: container prod-db-01 DOWN, auto-heal failed", lines[0])
	assert.Contains(t, lines[1], "[INFO] [healed] api-server")
}

func TestAppendCreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested.log")
	l := New(path)

	require.NoError(t, l.Append(models.AlertPayload{
		Severity:   models.SeverityWarning,
		Transition: models.TransitionDetected,
		Container:  "worker",
		Subject:    "Container worker is exited",
		Timestamp:  time.Now(),
	}))

	_, err := os.Stat(path)
	assert.NoError(t, err)
}
