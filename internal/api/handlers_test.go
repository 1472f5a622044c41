package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"incident-service/internal/incident"
	"incident-service/pkg/config"
	"incident-service/pkg/models"
)

type staticInventory struct {
	mu    sync.Mutex
	snaps []models.ContainerSnapshot
	err   error
}

func (s *staticInventory) ListManaged(ctx context.Context, labelKey, labelValue string) ([]models.ContainerSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return s.snaps, nil
}

func (s *staticInventory) Snapshot(ctx context.Context, containerID string) (models.ContainerSnapshot, error) {
	return models.ContainerSnapshot{ID: containerID}, nil
}

func (s *staticInventory) LogTail(ctx context.Context, containerID string, lines int) ([]string, error) {
	return nil, nil
}

type nopAudit struct{}

func (nopAudit) Append(models.AlertPayload) error { return nil }

func newTestServer(inventory incident.Inventory) (*Server, *incident.AlertManager) {
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{
		Environment: "test",
		LabelKey:    "environment",
		LabelValue:  "production",
	}
	alerts := incident.NewAlertManager(nil, nopAudit{}, nil)
	orch := incident.NewOrchestrator(incident.ModeCheck, cfg, inventory, nil, nil, alerts)
	return NewServer(cfg, orch, alerts, inventory), alerts
}

func TestHealthEndpoint(t *testing.T) {
	server, _ := newTestServer(&staticInventory{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	server.Router().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "starting", body["status"])
	assert.Equal(t, "check", body["mode"])
}

func TestContainersEndpoint(t *testing.T) {
	code := 1
	inventory := &staticInventory{snaps: []models.ContainerSnapshot{
		{ID: "c1", Name: "api-server", Image: "api:1.0", Status: models.StatusRunning, Healthy: true},
		{ID: "c2", Name: "worker", Image: "worker:2.1", Status: models.StatusExited, ExitCode: &code},
	}}
	server, _ := newTestServer(inventory)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/containers", nil)
	server.Router().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Containers []map[string]interface{} `json:"containers"`
		Count      int                      `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 2, body.Count)
	assert.Equal(t, "api-server", body.Containers[0]["name"])
	assert.Equal(t, float64(1), body.Containers[1]["exit_code"])
}

func TestContainersEndpointRuntimeDown(t *testing.T) {
	inventory := &staticInventory{err: context.DeadlineExceeded}
	server, _ := newTestServer(inventory)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/containers", nil)
	server.Router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestRecentAlertsEndpoint(t *testing.T) {
	server, alerts := newTestServer(&staticInventory{})

	alerts.Emit(context.Background(), models.AlertPayload{
		Severity:   models.SeverityWarning,
		Transition: models.TransitionDetected,
		Container:  "api-server",
		Subject:    "Container api-server is exited",
		DedupeKey:  "c1@t0",
		Timestamp:  time.Now().UTC(),
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/alerts/recent", nil)
	server.Router().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var body []map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body, 1)
	assert.Equal(t, "detected", body[0]["transition"])
}

func TestIncidentsEndpointEmpty(t *testing.T) {
	server, _ := newTestServer(&staticInventory{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/incidents", nil)
	server.Router().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Open    []interface{} `json:"open"`
		History []interface{} `json:"history"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Empty(t, body.Open)
	assert.Empty(t, body.History)
}
