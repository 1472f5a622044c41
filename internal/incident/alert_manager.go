package incident

import (
	"context"
	"sync"

	"incident-service/pkg/logger"
	"incident-service/pkg/models"
)

const recentAlertsKept = 100

// AlertManager routes alert payloads: dedupe guard, audit trail, optional
// history sink, email dispatch, and a broadcast channel for the status API.
// Info-severity alerts are audited but not emailed, so successful auto-heals
// don't spam the operator inbox.
type AlertManager struct {
	dispatcher Dispatcher  // nil when email is not configured
	audit      AuditSink
	history    HistorySink // nil when Postgres is not configured

	mu          sync.Mutex
	sent        map[string]bool
	recent      []models.AlertPayload
	subscribers map[int]chan models.AlertPayload
	nextSubID   int
}

func NewAlertManager(dispatcher Dispatcher, audit AuditSink, history HistorySink) *AlertManager {
	return &AlertManager{
		dispatcher:  dispatcher,
		audit:       audit,
		history:     history,
		sent:        make(map[string]bool),
		subscribers: make(map[int]chan models.AlertPayload),
	}
}

// Emit delivers one alert for one incident state transition. A repeated
// emit with the same dedupe key and transition is dropped, never resent.
// Delivery failures are logged and non-fatal.
func (am *AlertManager) Emit(ctx context.Context, payload models.AlertPayload) {
	key := payload.DedupeKey + "|" + string(payload.Transition)

	am.mu.Lock()
	if am.sent[key] {
		am.mu.Unlock()
		logger.Debug("Alert suppressed by dedupe",
			logger.String("container", payload.Container),
			logger.String("transition", string(payload.Transition)),
		)
		return
	}
	am.sent[key] = true

	am.recent = append(am.recent, payload)
	if len(am.recent) > recentAlertsKept {
		am.recent = am.recent[len(am.recent)-recentAlertsKept:]
	}
	am.mu.Unlock()

	if err := am.audit.Append(payload); err != nil {
		logger.Error("Failed to append alert to audit log", logger.Err(err))
	}

	if am.history != nil {
		if err := am.history.RecordAlert(ctx, payload); err != nil {
			logger.Error("Failed to record alert history", logger.Err(err))
		}
	}

	if am.dispatcher != nil && payload.Severity != models.SeverityInfo {
		if err := am.dispatcher.Send(ctx, payload); err != nil {
			logger.Error("Alert delivery failed",
				logger.String("container", payload.Container),
				logger.String("subject", payload.Subject),
				logger.Err(err),
			)
		} else {
			logger.Info("Alert sent",
				logger.String("container", payload.Container),
				logger.String("severity", string(payload.Severity)),
				logger.String("transition", string(payload.Transition)),
			)
		}
	}

	am.broadcast(payload)
}

// RecordIncident persists a closed incident to the history sink, if any.
func (am *AlertManager) RecordIncident(ctx context.Context, rec models.IncidentRecord) {
	if am.history == nil {
		return
	}
	if err := am.history.RecordIncident(ctx, rec); err != nil {
		logger.Error("Failed to record incident history", logger.Err(err))
	}
}

// Recent returns the most recent alerts, newest last.
func (am *AlertManager) Recent() []models.AlertPayload {
	am.mu.Lock()
	defer am.mu.Unlock()

	out := make([]models.AlertPayload, len(am.recent))
	copy(out, am.recent)
	return out
}

// Subscribe registers a live alert feed. The returned cancel func must be
// called to release the channel.
func (am *AlertManager) Subscribe() (<-chan models.AlertPayload, func()) {
	am.mu.Lock()
	defer am.mu.Unlock()

	id := am.nextSubID
	am.nextSubID++
	ch := make(chan models.AlertPayload, 16)
	am.subscribers[id] = ch

	cancel := func() {
		am.mu.Lock()
		defer am.mu.Unlock()
		if _, ok := am.subscribers[id]; ok {
			delete(am.subscribers, id)
			close(ch)
		}
	}

	return ch, cancel
}

func (am *AlertManager) broadcast(payload models.AlertPayload) {
	am.mu.Lock()
	defer am.mu.Unlock()

	for _, ch := range am.subscribers {
		select {
		case ch <- payload:
		default:
			// Slow consumer; drop rather than stall the control loop.
		}
	}
}
