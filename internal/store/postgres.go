package store

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/rednix/eu-grants-monitor-agent/internal/models"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS opportunities (
	id            UUID PRIMARY KEY,
	source_system TEXT NOT NULL,
	status        TEXT NOT NULL,
	payload       JSONB NOT NULL,
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE TABLE IF NOT EXISTS alerts (
	id             UUID PRIMARY KEY,
	opportunity_id UUID NOT NULL,
	reason         TEXT NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL,
	payload        JSONB NOT NULL
);
CREATE TABLE IF NOT EXISTS cycles (
	id          BIGSERIAL PRIMARY KEY,
	started_at  TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ NOT NULL,
	payload     JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_alerts_created ON alerts(created_at);
`

// PostgresStore backs the snapshot with a shared postgres database.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects, pings, and ensures the schema.
func OpenPostgres(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, eris.Wrap(err, "store: connect postgres")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "store: ping postgres")
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "store: apply postgres schema")
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Load(ctx context.Context) (map[uuid.UUID]models.Opportunity, error) {
	rows, err := s.pool.Query(ctx, `SELECT payload FROM opportunities`)
	if err != nil {
		return nil, eris.Wrap(err, "store: load snapshot")
	}
	defer rows.Close()

	snapshot := make(map[uuid.UUID]models.Opportunity)
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, eris.Wrap(err, "store: scan opportunity")
		}
		var opp models.Opportunity
		if err := json.Unmarshal(payload, &opp); err != nil {
			return nil, eris.Wrap(err, "store: decode opportunity")
		}
		snapshot[opp.ID] = opp
	}
	return snapshot, rows.Err()
}

// Save upserts every opportunity and prunes rows that left the snapshot,
// all inside one transaction.
func (s *PostgresStore) Save(ctx context.Context, snapshot map[uuid.UUID]models.Opportunity) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return eris.Wrap(err, "store: begin save")
	}
	defer tx.Rollback(ctx)

	ids := make([]uuid.UUID, 0, len(snapshot))
	for _, opp := range snapshot {
		payload, err := json.Marshal(opp)
		if err != nil {
			return eris.Wrapf(err, "store: encode opportunity %s", opp.ID)
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO opportunities (id, source_system, status, payload, updated_at)
			VALUES ($1, $2, $3, $4, NOW())
			ON CONFLICT (id) DO UPDATE SET
				source_system = EXCLUDED.source_system,
				status        = EXCLUDED.status,
				payload       = EXCLUDED.payload,
				updated_at    = NOW()`,
			opp.ID, opp.SourceSystem, string(opp.Status), payload)
		if err != nil {
			return eris.Wrapf(err, "store: upsert opportunity %s", opp.ID)
		}
		ids = append(ids, opp.ID)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM opportunities WHERE NOT (id = ANY($1))`, ids); err != nil {
		return eris.Wrap(err, "store: prune snapshot")
	}

	return eris.Wrap(tx.Commit(ctx), "store: commit save")
}

func (s *PostgresStore) RecordCycle(ctx context.Context, rec CycleRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return eris.Wrap(err, "store: encode cycle")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO cycles (started_at, finished_at, payload) VALUES ($1, $2, $3)`,
		rec.StartedAt, rec.FinishedAt, payload)
	return eris.Wrap(err, "store: record cycle")
}

func (s *PostgresStore) RecordAlerts(ctx context.Context, alerts []models.Alert) error {
	if len(alerts) == 0 {
		return nil
	}
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return eris.Wrap(err, "store: begin alerts")
	}
	defer tx.Rollback(ctx)

	for _, a := range alerts {
		payload, err := json.Marshal(a)
		if err != nil {
			return eris.Wrapf(err, "store: encode alert %s", a.ID)
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO alerts (id, opportunity_id, reason, created_at, payload)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (id) DO NOTHING`,
			a.ID, a.OpportunityID, string(a.Reason), a.CreatedAt, payload)
		if err != nil {
			return eris.Wrapf(err, "store: insert alert %s", a.ID)
		}
	}
	return eris.Wrap(tx.Commit(ctx), "store: commit alerts")
}

func (s *PostgresStore) ListAlerts(ctx context.Context, limit int) ([]models.Alert, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT payload FROM alerts ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "store: list alerts")
	}
	defer rows.Close()

	var alerts []models.Alert
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, eris.Wrap(err, "store: scan alert")
		}
		var a models.Alert
		if err := json.Unmarshal(payload, &a); err != nil {
			return nil, eris.Wrap(err, "store: decode alert")
		}
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
