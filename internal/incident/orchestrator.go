package incident

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"incident-service/pkg/config"
	"incident-service/pkg/logger"
	"incident-service/pkg/models"
)

// Mode selects the response posture of a cycle.
type Mode string

const (
	// ModeCheck diagnoses and alerts but never mutates container state.
	ModeCheck Mode = "check"
	// ModeHeal diagnoses, restarts with bounded retries, and verifies.
	ModeHeal Mode = "heal"
)

const (
	logTailLines        = 50
	closedIncidentsKept = 100
)

// CycleStats summarizes the most recent completed poll cycle.
type CycleStats struct {
	CompletedAt time.Time `json:"completed_at"`
	Total       int       `json:"total"`
	Healthy     int       `json:"healthy"`
	Unhealthy   int       `json:"unhealthy"`
}

// Orchestrator drives the incident state machine. One record per container
// tracks a continuous unhealthy episode from detection to resolution or
// failure; a healthy observation closes it. Containers are processed
// sequentially within a cycle.
type Orchestrator struct {
	mode      Mode
	cfg       *config.Config
	inventory Inventory
	diagnoser Diagnoser
	healer    *Healer
	alerts    *AlertManager

	mu      sync.Mutex
	records map[string]*models.IncidentRecord
	closed  []models.IncidentRecord
	stats   CycleStats
}

func NewOrchestrator(mode Mode, cfg *config.Config, inventory Inventory, diagnoser Diagnoser, healer *Healer, alerts *AlertManager) *Orchestrator {
	return &Orchestrator{
		mode:      mode,
		cfg:       cfg,
		inventory: inventory,
		diagnoser: diagnoser,
		healer:    healer,
		alerts:    alerts,
		records:   make(map[string]*models.IncidentRecord),
	}
}

func (o *Orchestrator) Mode() Mode {
	return o.mode
}

// RunCycle performs one full poll: list the managed fleet, classify each
// container, and run detection or healing for the unhealthy ones.
// Cancellation is honored between containers, never in the middle of one.
func (o *Orchestrator) RunCycle(ctx context.Context) error {
	snaps, err := o.inventory.ListManaged(ctx, o.cfg.LabelKey, o.cfg.LabelValue)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInventoryUnavailable, err)
	}

	healthy, unhealthy := 0, 0
	for _, snap := range snaps {
		if ctx.Err() != nil {
			break
		}

		if isHealthy(snap) {
			healthy++
		} else {
			unhealthy++
		}
		o.processContainer(ctx, snap)
	}

	o.mu.Lock()
	o.stats = CycleStats{
		CompletedAt: time.Now().UTC(),
		Total:       len(snaps),
		Healthy:     healthy,
		Unhealthy:   unhealthy,
	}
	o.mu.Unlock()

	if unhealthy == 0 {
		logger.Info("All managed containers healthy",
			logger.Int("total", len(snaps)),
		)
	} else {
		logger.Info("Cycle complete",
			logger.Int("total", len(snaps)),
			logger.Int("healthy", healthy),
			logger.Int("unhealthy", unhealthy),
		)
	}

	return nil
}

func isHealthy(snap models.ContainerSnapshot) bool {
	return snap.Status == models.StatusRunning && snap.Healthy
}

func (o *Orchestrator) processContainer(ctx context.Context, snap models.ContainerSnapshot) {
	rec := o.openRecord(snap.ID)

	if isHealthy(snap) {
		if rec != nil {
			// Recovery without our intervention still closes the episode.
			o.update(rec, func(r *models.IncidentRecord) { r.Resolution = models.IncidentResolved })
			o.closeRecord(ctx, rec)
			logger.Info("Container recovered, incident closed",
				logger.String("container", snap.Name),
			)
		}
		return
	}

	if rec != nil {
		if rec.Status != snap.Status {
			// A different failure status is a fresh signal: close the old
			// episode and open a new one.
			o.closeRecord(ctx, rec)
			logger.Info("Container status changed, opening new incident",
				logger.String("container", snap.Name),
				logger.String("old_status", string(rec.Status)),
				logger.String("new_status", string(snap.Status)),
			)
			o.handleDetection(ctx, snap)
			return
		}

		// Same ongoing episode.
		if o.mode == ModeHeal && rec.Resolution == models.IncidentFailed {
			o.maybeRealert(ctx, rec)
		}
		return
	}

	o.handleDetection(ctx, snap)
}

// handleDetection opens a record for a newly observed unhealthy container
// and runs the mode-specific response.
func (o *Orchestrator) handleDetection(ctx context.Context, snap models.ContainerSnapshot) {
	rec := &models.IncidentRecord{
		ContainerID:   snap.ID,
		ContainerName: snap.Name,
		DetectedAt:    time.Now().UTC(),
		Status:        snap.Status,
		ExitCode:      snap.ExitCode,
		Resolution:    models.IncidentOpen,
	}

	o.mu.Lock()
	o.records[snap.ID] = rec
	o.mu.Unlock()

	logger.Warn("Unhealthy container detected",
		logger.String("container", snap.Name),
		logger.String("status", string(snap.Status)),
	)

	tail, err := o.inventory.LogTail(ctx, snap.ID, logTailLines)
	if err != nil {
		logger.Warn("Could not fetch container logs",
			logger.String("container", snap.Name),
			logger.Err(err),
		)
		tail = nil
	}

	if o.mode == ModeCheck {
		o.runCheck(ctx, snap, rec, tail)
		return
	}
	o.runHeal(ctx, snap, rec, tail)
}

// runCheck diagnoses and alerts. Container state is never mutated; the open
// record suppresses repeat alerts on later ticks.
func (o *Orchestrator) runCheck(ctx context.Context, snap models.ContainerSnapshot, rec *models.IncidentRecord, tail []string) {
	diag, err := o.diagnoser.Diagnose(ctx, snap, tail)
	if err != nil {
		logger.Warn("Diagnosis unavailable, alerting without it",
			logger.String("container", snap.Name),
			logger.Err(err),
		)
	} else {
		o.update(rec, func(r *models.IncidentRecord) { r.PreDiagnosis = diag })
	}

	payload := buildDetectedAlert(o.cfg, snap, rec)
	o.alerts.Emit(ctx, payload)
	o.update(rec, func(r *models.IncidentRecord) {
		r.AlertedDetected = true
		r.LastAlertAt = payload.Timestamp
	})
}

// runHeal diagnoses, restarts with bounded retries, verifies, and emits a
// single episode-summary alert.
func (o *Orchestrator) runHeal(ctx context.Context, snap models.ContainerSnapshot, rec *models.IncidentRecord, tail []string) {
	critical := o.cfg.IsCriticalService(snap.Name)

	diag, err := o.diagnoser.Diagnose(ctx, snap, tail)
	switch {
	case err != nil && critical:
		// Critical services are never restarted blind.
		o.failIncident(ctx, rec, "diagnosis unavailable and service is critical, refusing blind restart")
		return
	case err != nil:
		logger.Warn("Diagnosis unavailable, applying conservative fallback",
			logger.String("container", snap.Name),
			logger.Err(err),
		)
	default:
		o.update(rec, func(r *models.IncidentRecord) { r.PreDiagnosis = diag })
		if !diag.RestartSafe {
			o.failIncident(ctx, rec, fmt.Sprintf("diagnosis marked restart unsafe: %s", diag.Summary))
			return
		}
	}

	result, err := o.healer.Heal(ctx, snap.ID)
	if err != nil {
		if errors.Is(err, ErrHealInFlight) {
			logger.Warn("Heal already in flight, skipping",
				logger.String("container", snap.Name),
			)
			return
		}
		o.failIncident(ctx, rec, fmt.Sprintf("heal aborted: %v", err))
		return
	}

	o.update(rec, func(r *models.IncidentRecord) { r.Attempts = result.Attempts })

	if !result.Succeeded {
		o.failIncident(ctx, rec, fmt.Sprintf("restart attempts exhausted (%d)", len(result.Attempts)))
		return
	}

	// Verify and close. The post-heal diagnosis is best effort.
	post, err := o.inventory.Snapshot(ctx, snap.ID)
	if err != nil {
		post = models.ContainerSnapshot{ID: snap.ID, Name: snap.Name, Status: models.StatusRunning, Healthy: true}
	}
	if postTail, tailErr := o.inventory.LogTail(ctx, snap.ID, logTailLines); tailErr == nil {
		if verdict, diagErr := o.diagnoser.Diagnose(ctx, post, postTail); diagErr == nil {
			o.update(rec, func(r *models.IncidentRecord) { r.PostDiagnosis = verdict })
		}
	}

	o.update(rec, func(r *models.IncidentRecord) {
		r.Resolution = models.IncidentResolved
		r.AlertedClosed = true
	})

	payload := buildHealedAlert(o.cfg, post, rec)
	o.update(rec, func(r *models.IncidentRecord) { r.LastAlertAt = payload.Timestamp })
	o.alerts.Emit(ctx, payload)
	o.closeRecord(ctx, rec)

	logger.Info("Container healed",
		logger.String("container", snap.Name),
		logger.Int("attempts", len(result.Attempts)),
	)
}

// failIncident marks the record failed and escalates. The record stays open
// so later ticks suppress duplicate alerts until the cool-down elapses.
func (o *Orchestrator) failIncident(ctx context.Context, rec *models.IncidentRecord, reason string) {
	o.update(rec, func(r *models.IncidentRecord) {
		r.Resolution = models.IncidentFailed
		r.AlertedClosed = true
	})

	payload := buildHealFailedAlert(o.cfg, rec, reason)
	o.update(rec, func(r *models.IncidentRecord) { r.LastAlertAt = payload.Timestamp })
	o.alerts.Emit(ctx, payload)

	logger.Error("Heal failed, manual intervention required",
		logger.String("container", rec.ContainerName),
		logger.String("reason", reason),
	)
}

// maybeRealert re-escalates a failed incident at most once per cool-down
// window while the container stays down.
func (o *Orchestrator) maybeRealert(ctx context.Context, rec *models.IncidentRecord) {
	if time.Since(rec.LastAlertAt) < o.cfg.HealCooldown {
		return
	}

	payload := buildHealFailedAlert(o.cfg, rec, "container still down after failed heal")
	payload.DedupeKey = payload.DedupeKey + "#" + payload.Timestamp.Format(time.RFC3339Nano)
	o.update(rec, func(r *models.IncidentRecord) { r.LastAlertAt = payload.Timestamp })
	o.alerts.Emit(ctx, payload)

	logger.Warn("Container still down after failed heal",
		logger.String("container", rec.ContainerName),
	)
}

// update serializes record mutations against API readers.
func (o *Orchestrator) update(rec *models.IncidentRecord, fn func(*models.IncidentRecord)) {
	o.mu.Lock()
	fn(rec)
	o.mu.Unlock()
}

func (o *Orchestrator) openRecord(containerID string) *models.IncidentRecord {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.records[containerID]
}

func (o *Orchestrator) closeRecord(ctx context.Context, rec *models.IncidentRecord) {
	o.mu.Lock()
	delete(o.records, rec.ContainerID)
	o.closed = append(o.closed, *rec)
	if len(o.closed) > closedIncidentsKept {
		o.closed = o.closed[len(o.closed)-closedIncidentsKept:]
	}
	o.mu.Unlock()

	o.alerts.RecordIncident(ctx, *rec)
}

// OpenIncidents returns the currently tracked incident records.
func (o *Orchestrator) OpenIncidents() []models.IncidentRecord {
	o.mu.Lock()
	defer o.mu.Unlock()

	out := make([]models.IncidentRecord, 0, len(o.records))
	for _, rec := range o.records {
		out = append(out, *rec)
	}
	return out
}

// History returns recently closed incidents, oldest first.
func (o *Orchestrator) History() []models.IncidentRecord {
	o.mu.Lock()
	defer o.mu.Unlock()

	out := make([]models.IncidentRecord, len(o.closed))
	copy(out, o.closed)
	return out
}

// LastCycle returns stats for the most recent completed cycle.
func (o *Orchestrator) LastCycle() CycleStats {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.stats
}
