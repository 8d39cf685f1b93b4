// Package store persists the opportunity snapshot between monitoring cycles,
// plus alert and cycle history. Two backends share one contract: an embedded
// sqlite file for single-host runs and postgres for shared deployments.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/rednix/eu-grants-monitor-agent/internal/config"
	"github.com/rednix/eu-grants-monitor-agent/internal/models"
)

// CycleRecord is one row of monitoring history.
type CycleRecord struct {
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	SourcesOK     int `json:"sources_ok"`
	SourcesFailed int `json:"sources_failed"`

	NewCount       int `json:"new_count"`
	UpdatedCount   int `json:"updated_count"`
	UnchangedCount int `json:"unchanged_count"`
	DroppedCount   int `json:"dropped_count"`
	AlertCount     int `json:"alert_count"`

	Error string `json:"error,omitempty"`
}

// SnapshotStore is the persistence contract the orchestrator depends on.
// Save must be atomic: a failed save leaves the previous snapshot intact.
type SnapshotStore interface {
	Load(ctx context.Context) (map[uuid.UUID]models.Opportunity, error)
	Save(ctx context.Context, snapshot map[uuid.UUID]models.Opportunity) error

	RecordCycle(ctx context.Context, rec CycleRecord) error
	RecordAlerts(ctx context.Context, alerts []models.Alert) error
	ListAlerts(ctx context.Context, limit int) ([]models.Alert, error)

	Close() error
}

// Open builds the store the configuration names.
func Open(ctx context.Context, cfg config.StoreConfig) (SnapshotStore, error) {
	switch cfg.Driver {
	case "sqlite", "":
		return OpenSQLite(ctx, cfg.Path)
	case "postgres":
		return OpenPostgres(ctx, cfg.DatabaseURL)
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
}
