package api

import (
	"context"
	"net/http"
	"time"

	"incident-service/internal/incident"
	"incident-service/pkg/config"
	"incident-service/pkg/logger"
	"incident-service/pkg/models"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Server is the read-only status API served in continuous mode. It observes
// the orchestrator and alert manager; it never mutates container state.
type Server struct {
	config       *config.Config
	orchestrator *incident.Orchestrator
	alerts       *incident.AlertManager
	inventory    incident.Inventory
	router       *gin.Engine
}

func NewServer(cfg *config.Config, orch *incident.Orchestrator, alerts *incident.AlertManager, inventory incident.Inventory) *Server {
	// Set Gin mode based on environment
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		config:       cfg,
		orchestrator: orch,
		alerts:       alerts,
		inventory:    inventory,
		router:       gin.New(),
	}

	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) Router() *gin.Engine {
	return s.router
}

func (s *Server) setupMiddleware() {
	// Recovery middleware recovers from any panics
	s.router.Use(gin.Recovery())

	// Custom logging middleware
	s.router.Use(s.loggingMiddleware())

	// CORS middleware
	s.router.Use(s.corsMiddleware())

	// Request timeout middleware
	s.router.Use(s.timeoutMiddleware())
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	api := s.router.Group("/api")
	{
		api.GET("/incidents", s.handleGetIncidents)
		api.GET("/containers", s.handleGetContainers)
		api.GET("/alerts/recent", s.handleGetRecentAlerts)
	}

	ws := s.router.Group("/ws")
	{
		ws.GET("/incidents", s.handleWebSocketIncidents)
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	stats := s.orchestrator.LastCycle()

	health := gin.H{
		"status":     "healthy",
		"mode":       string(s.orchestrator.Mode()),
		"time":       time.Now().Format(time.RFC3339),
		"last_cycle": stats,
	}

	if stats.CompletedAt.IsZero() {
		health["status"] = "starting"
	}

	c.JSON(http.StatusOK, health)
}

func (s *Server) handleGetIncidents(c *gin.Context) {
	open := s.orchestrator.OpenIncidents()
	history := s.orchestrator.History()

	openOut := make([]gin.H, 0, len(open))
	for _, rec := range open {
		openOut = append(openOut, incidentJSON(rec))
	}

	historyOut := make([]gin.H, 0, len(history))
	for _, rec := range history {
		historyOut = append(historyOut, incidentJSON(rec))
	}

	c.JSON(http.StatusOK, gin.H{
		"open":    openOut,
		"history": historyOut,
	})
}

func incidentJSON(rec models.IncidentRecord) gin.H {
	out := gin.H{
		"container_id":     rec.ContainerID,
		"container_name":   rec.ContainerName,
		"detected_at":      rec.DetectedAt,
		"status":           string(rec.Status),
		"restart_attempts": len(rec.Attempts),
		"resolution":       string(rec.Resolution),
	}
	if rec.ExitCode != nil {
		out["exit_code"] = *rec.ExitCode
	}
	if rec.PreDiagnosis != nil {
		out["pre_diagnosis"] = rec.PreDiagnosis
	}
	if rec.PostDiagnosis != nil {
		out["post_diagnosis"] = rec.PostDiagnosis
	}
	return out
}

func (s *Server) handleGetContainers(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	snaps, err := s.inventory.ListManaged(ctx, s.config.LabelKey, s.config.LabelValue)
	if err != nil {
		logger.Error("Failed to list containers for API", logger.Err(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Container runtime unavailable"})
		return
	}

	containers := make([]gin.H, 0, len(snaps))
	for _, snap := range snaps {
		entry := gin.H{
			"id":      snap.ID,
			"name":    snap.Name,
			"image":   snap.Image,
			"status":  string(snap.Status),
			"healthy": snap.Healthy,
		}
		if snap.ExitCode != nil {
			entry["exit_code"] = *snap.ExitCode
		}
		containers = append(containers, entry)
	}

	c.JSON(http.StatusOK, gin.H{
		"containers": containers,
		"count":      len(containers),
	})
}

func (s *Server) handleGetRecentAlerts(c *gin.Context) {
	recent := s.alerts.Recent()

	alerts := make([]gin.H, 0, len(recent))
	for _, a := range recent {
		alerts = append(alerts, gin.H{
			"severity":   string(a.Severity),
			"transition": string(a.Transition),
			"container":  a.Container,
			"subject":    a.Subject,
			"timestamp":  a.Timestamp,
		})
	}

	c.JSON(http.StatusOK, alerts)
}

// WebSocket stream of live incident transitions
func (s *Server) handleWebSocketIncidents(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Error("Failed to upgrade WebSocket connection", logger.Err(err))
		return
	}
	defer conn.Close()

	logger.Info("WebSocket incident stream started", zap.String("client_ip", c.ClientIP()))

	feed, cancelFeed := s.alerts.Subscribe()
	defer cancelFeed()

	// Keep connection alive with ping/pong
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case payload, ok := <-feed:
			if !ok {
				return
			}
			event := gin.H{
				"severity":   string(payload.Severity),
				"transition": string(payload.Transition),
				"container":  payload.Container,
				"subject":    payload.Subject,
				"timestamp":  payload.Timestamp,
			}
			if err := conn.WriteJSON(event); err != nil {
				logger.Error("Failed to write incident event to WebSocket", logger.Err(err))
				return
			}
		case <-ticker.C:
			if err := conn.WriteMessage(websocket.PingMessage, []byte{}); err != nil {
				logger.Error("WebSocket ping failed", logger.Err(err))
				return
			}
		}
	}
}

// Middleware
func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		// Process request
		c.Next()

		// Log after request
		duration := time.Since(start)
		statusCode := c.Writer.Status()

		logger.Info("HTTP Request",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", statusCode),
			zap.Duration("duration", duration),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}

func (s *Server) corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusOK)
			return
		}

		c.Next()
	}
}

func (s *Server) timeoutMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Set a default timeout of 30 seconds for all requests
		ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
		defer cancel()

		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
