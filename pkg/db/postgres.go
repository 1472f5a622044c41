package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"incident-service/pkg/config"
	"incident-service/pkg/models"

	_ "github.com/lib/pq"
)

func NewPostgresConnection(cfg *config.Config) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.GetPostgresConnString())
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres connection: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(1 * time.Minute)

	// Verify connection with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	return db, nil
}

// Store persists alert and incident history. It is optional: when Postgres
// is not configured the service runs without it.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// EnsureSchema creates the history tables if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS incident_alerts (
	id SERIAL PRIMARY KEY,
	container_name TEXT NOT NULL,
	severity TEXT NOT NULL,
	transition TEXT NOT NULL,
	subject TEXT NOT NULL,
	dedupe_key TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS incident_history (
	id SERIAL PRIMARY KEY,
	container_id TEXT NOT NULL,
	container_name TEXT NOT NULL,
	detected_at TIMESTAMPTZ NOT NULL,
	status TEXT NOT NULL,
	restart_attempts INT NOT NULL,
	resolution TEXT NOT NULL,
	closed_at TIMESTAMPTZ NOT NULL
);`

	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to ensure history schema: %w", err)
	}
	return nil
}

func (s *Store) RecordAlert(ctx context.Context, payload models.AlertPayload) error {
	query := `
		INSERT INTO incident_alerts (container_name, severity, transition, subject, dedupe_key, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := s.db.ExecContext(ctx, query,
		payload.Container,
		string(payload.Severity),
		string(payload.Transition),
		payload.Subject,
		payload.DedupeKey,
		payload.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to record alert: %w", err)
	}
	return nil
}

func (s *Store) RecordIncident(ctx context.Context, rec models.IncidentRecord) error {
	query := `
		INSERT INTO incident_history (container_id, container_name, detected_at, status, restart_attempts, resolution, closed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := s.db.ExecContext(ctx, query,
		rec.ContainerID,
		rec.ContainerName,
		rec.DetectedAt,
		string(rec.Status),
		len(rec.Attempts),
		string(rec.Resolution),
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to record incident: %w", err)
	}
	return nil
}
