package incident

import (
	"context"
	"errors"
	"time"

	"incident-service/pkg/models"
)

// ErrInventoryUnavailable wraps a failure to reach the container runtime.
// Fatal in single-shot mode, skip-and-retry in continuous mode.
var ErrInventoryUnavailable = errors.New("inventory unavailable")

// ErrHealInFlight is returned when a heal is requested for a container that
// already has one running. Heals for the same container are never run in
// parallel with themselves.
var ErrHealInFlight = errors.New("heal already in flight for container")

// Inventory enumerates and observes managed containers.
type Inventory interface {
	ListManaged(ctx context.Context, labelKey, labelValue string) ([]models.ContainerSnapshot, error)
	Snapshot(ctx context.Context, containerID string) (models.ContainerSnapshot, error)
	LogTail(ctx context.Context, containerID string, lines int) ([]string, error)
}

// Runtime is the restart surface of the container runtime. The healing
// engine is its sole consumer.
type Runtime interface {
	Restart(ctx context.Context, containerID string, stopTimeout time.Duration) error
	Snapshot(ctx context.Context, containerID string) (models.ContainerSnapshot, error)
}

// Diagnoser classifies a container failure. Any returned error means the
// diagnosis was unavailable; the caller applies the conservative fallback.
type Diagnoser interface {
	Diagnose(ctx context.Context, snap models.ContainerSnapshot, logTail []string) (*models.DiagnosisResult, error)
}

// Dispatcher delivers an alert. Delivery failures are logged and never
// retried within the same cycle.
type Dispatcher interface {
	Send(ctx context.Context, payload models.AlertPayload) error
}

// AuditSink records every alert to the append-only audit trail.
type AuditSink interface {
	Append(payload models.AlertPayload) error
}

// HistorySink optionally persists alerts and closed incidents.
type HistorySink interface {
	RecordAlert(ctx context.Context, payload models.AlertPayload) error
	RecordIncident(ctx context.Context, rec models.IncidentRecord) error
}
