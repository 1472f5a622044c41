package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"incident-service/internal/incident"
	"incident-service/pkg/config"
	"incident-service/pkg/logger"
)

// Worker drives the orchestrator in continuous mode: one poll cycle per
// monitoring interval, first cycle immediately on start. Cancellation is
// observed at cycle boundaries; a cycle in progress runs to completion.
type Worker struct {
	config       *config.Config
	orchestrator *incident.Orchestrator
	ctx          context.Context
	cancel       context.CancelFunc
	wg           sync.WaitGroup
}

func New(cfg *config.Config, orch *incident.Orchestrator) *Worker {
	ctx, cancel := context.WithCancel(context.Background())

	return &Worker{
		config:       cfg,
		orchestrator: orch,
		ctx:          ctx,
		cancel:       cancel,
	}
}

func (w *Worker) Start() {
	logger.Info("Starting poll loop",
		logger.String("mode", string(w.orchestrator.Mode())),
		logger.Duration("interval", w.config.MonitoringInterval),
	)

	w.wg.Add(1)
	go w.pollLoop()
}

func (w *Worker) Stop() {
	logger.Info("Stopping poll loop...")
	w.cancel()
	w.wg.Wait()
	logger.Info("Poll loop stopped")
}

func (w *Worker) pollLoop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.MonitoringInterval)
	defer ticker.Stop()

	// First cycle runs immediately, not one interval in.
	w.runCycle()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.runCycle()
		}
	}
}

func (w *Worker) runCycle() {
	// A cycle gets a bounded slice of time; diagnosis and healing for a
	// full fleet must fit well inside it.
	timeout := 4 * w.config.MonitoringInterval
	ctx, cancel := context.WithTimeout(w.ctx, timeout)
	defer cancel()

	if err := w.orchestrator.RunCycle(ctx); err != nil {
		if errors.Is(err, incident.ErrInventoryUnavailable) {
			// Transient runtime outage: skip this cycle, retry next tick.
			logger.Error("Container runtime unreachable, skipping cycle", logger.Err(err))
			return
		}
		logger.Error("Poll cycle failed", logger.Err(err))
	}
}
