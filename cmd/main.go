package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"incident-service/internal/api"
	"incident-service/internal/diagnosis"
	"incident-service/internal/incident"
	"incident-service/internal/llm"
	"incident-service/internal/worker"
	"incident-service/pkg/alertlog"
	"incident-service/pkg/config"
	"incident-service/pkg/db"
	"incident-service/pkg/docker"
	"incident-service/pkg/logger"
	"incident-service/pkg/mailer"
)

func main() {
	modeFlag := flag.String("mode", "", "operating mode: check (diagnose and alert) or heal (diagnose, restart, verify)")
	continuous := flag.Bool("continuous", false, "poll forever instead of running a single cycle")
	flag.Parse()

	mode, err := parseMode(*modeFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		flag.Usage()
		os.Exit(1)
	}

	if err := logger.Init(os.Getenv("GO_ENV")); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load configuration", logger.Err(err))
	}

	logger.Info("Configuration loaded",
		logger.String("environment", cfg.Environment),
		logger.String("mode", string(mode)),
		logger.String("label_selector", cfg.LabelKey+"="+cfg.LabelValue),
		logger.Bool("continuous", *continuous),
	)

	dockerClient, err := docker.NewClient()
	if err != nil {
		logger.Fatal("Failed to create Docker client", logger.Err(err))
	}
	defer dockerClient.Close()

	llmManager := llm.NewManager(&llm.Config{
		OpenAIAPIKey:    cfg.OpenAIAPIKey,
		ClaudeAPIKey:    cfg.ClaudeAPIKey,
		OllamaHost:      cfg.OllamaHost,
		Model:           cfg.LLMModel,
		DefaultProvider: llm.ProviderType(cfg.LLMProvider),
	})

	diagnoser := diagnosis.NewService(llmManager, cfg.DiagnosisTimeout)

	var dispatcher incident.Dispatcher
	if cfg.EmailConfigured() {
		dispatcher = mailer.New(cfg)
		logger.Info("Email alerting enabled", logger.String("to", cfg.EmailTo))
	} else {
		logger.Warn("Email not configured, alerts go to audit log only")
	}

	var history incident.HistorySink
	if cfg.PostgresConfigured() {
		dbConn, err := db.NewPostgresConnection(cfg)
		if err != nil {
			logger.Fatal("Failed to connect to PostgreSQL", logger.Err(err))
		}
		defer func() {
			if err := dbConn.Close(); err != nil {
				logger.Error("Error closing database connection", logger.Err(err))
			}
		}()

		store := db.NewStore(dbConn)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := store.EnsureSchema(ctx); err != nil {
			cancel()
			logger.Fatal("Failed to prepare history schema", logger.Err(err))
		}
		cancel()
		history = store
		logger.Info("Connected to PostgreSQL, incident history enabled")
	}

	audit := alertlog.New(cfg.AlertLogPath)
	alerts := incident.NewAlertManager(dispatcher, audit, history)
	healer := incident.NewHealer(dockerClient, cfg.MaxRestartAttempts, cfg.RestartTimeout)
	orchestrator := incident.NewOrchestrator(mode, cfg, dockerClient, diagnoser, healer, alerts)

	if !*continuous {
		runOnce(orchestrator)
		return
	}

	pollWorker := worker.New(cfg, orchestrator)
	pollWorker.Start()
	defer pollWorker.Stop()

	apiServer := api.NewServer(cfg, orchestrator, alerts, dockerClient)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      apiServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("Starting status API",
			logger.String("port", cfg.Port),
			logger.String("address", fmt.Sprintf("http://localhost:%s", cfg.Port)),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", logger.Err(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down incident service...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", logger.Err(err))
	}

	logger.Info("Incident service stopped")
}

func parseMode(raw string) (incident.Mode, error) {
	switch raw {
	case "check":
		return incident.ModeCheck, nil
	case "heal":
		return incident.ModeHeal, nil
	case "":
		return "", errors.New("--mode is required (check or heal)")
	default:
		return "", fmt.Errorf("unknown mode %q (want check or heal)", raw)
	}
}

// runOnce executes a single cycle. An unreachable container runtime is
// fatal here, unlike in continuous mode where it is retried next tick.
func runOnce(orchestrator *incident.Orchestrator) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	if err := orchestrator.RunCycle(ctx); err != nil {
		logger.Error("Cycle failed", logger.Err(err))
		logger.Sync()
		os.Exit(1)
	}
}
