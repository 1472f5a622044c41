package alertlog

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"incident-service/pkg/models"
)

// Log is an append-only audit trail of every alert the service raised,
// including ones suppressed from email by severity. One line per alert.
type Log struct {
	path string
	mu   sync.Mutex
}

func New(path string) *Log {
	return &Log{path: path}
}

// Append writes one audit line. The file is opened per append so rotation
// by an external tool needs no coordination.
func (l *Log) Append(payload models.AlertPayload) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open alert log: %w", err)
	}
	defer f.Close()

	line := fmt.Sprintf("[%s] [%s] [%s] %s: %s\n",
		payload.Timestamp.UTC().Format(time.RFC3339),
		strings.ToUpper(string(payload.Severity)),
		payload.Transition,
		payload.Container,
		payload.Subject,
	)

	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("failed to append alert log: %w", err)
	}
	return nil
}
