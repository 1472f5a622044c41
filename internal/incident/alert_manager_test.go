package incident

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"incident-service/pkg/models"
)

func warningAlert(key string) models.AlertPayload {
	return models.AlertPayload{
		Severity:   models.SeverityWarning,
		Transition: models.TransitionDetected,
		Container:  "api-server",
		Subject:    "Container api-server is exited",
		DedupeKey:  key,
		Timestamp:  time.Now().UTC(),
	}
}

func TestEmitDeliversAndAudits(t *testing.T) {
	dispatcher := &fakeDispatcher{}
	audit := &fakeAudit{}
	am := NewAlertManager(dispatcher, audit, nil)

	am.Emit(context.Background(), warningAlert("c1@t0"))

	assert.Len(t, dispatcher.all(), 1)
	assert.Len(t, audit.all(), 1)
	assert.Len(t, am.Recent(), 1)
}

func TestEmitDedupesByKeyAndTransition(t *testing.T) {
	dispatcher := &fakeDispatcher{}
	audit := &fakeAudit{}
	am := NewAlertManager(dispatcher, audit, nil)

	am.Emit(context.Background(), warningAlert("c1@t0"))
	am.Emit(context.Background(), warningAlert("c1@t0"))

	assert.Len(t, dispatcher.all(), 1)
	assert.Len(t, audit.all(), 1)

	// Same key, different transition: a distinct state change, delivered.
	healed := warningAlert("c1@t0")
	healed.Transition = models.TransitionHealFailed
	am.Emit(context.Background(), healed)
	assert.Len(t, dispatcher.all(), 2)
}

func TestEmitSkipsEmailForInfoSeverity(t *testing.T) {
	dispatcher := &fakeDispatcher{}
	audit := &fakeAudit{}
	am := NewAlertManager(dispatcher, audit, nil)

	info := warningAlert("c1@t0")
	info.Severity = models.SeverityInfo
	am.Emit(context.Background(), info)

	assert.Empty(t, dispatcher.all())
	assert.Len(t, audit.all(), 1)
}

func TestEmitWorksWithoutDispatcher(t *testing.T) {
	audit := &fakeAudit{}
	am := NewAlertManager(nil, audit, nil)

	am.Emit(context.Background(), warningAlert("c1@t0"))
	assert.Len(t, audit.all(), 1)
}

func TestSubscribeReceivesBroadcasts(t *testing.T) {
	am := NewAlertManager(nil, &fakeAudit{}, nil)

	feed, cancel := am.Subscribe()
	defer cancel()

	am.Emit(context.Background(), warningAlert("c1@t0"))

	select {
	case payload := <-feed:
		assert.Equal(t, "api-server", payload.Container)
	case <-time.After(time.Second):
		t.Fatal("no broadcast received")
	}
}

func TestSubscribeCancelIsIdempotent(t *testing.T) {
	am := NewAlertManager(nil, &fakeAudit{}, nil)

	_, cancel := am.Subscribe()
	cancel()
	cancel()

	// Emitting after cancel must not panic on the closed channel.
	am.Emit(context.Background(), warningAlert("c1@t0"))
}

func TestRecentIsBounded(t *testing.T) {
	am := NewAlertManager(nil, &fakeAudit{}, nil)

	for i := 0; i < recentAlertsKept+20; i++ {
		am.Emit(context.Background(), warningAlert(fmt.Sprintf("c%d@t0", i)))
	}

	recent := am.Recent()
	require.Len(t, recent, recentAlertsKept)
}
