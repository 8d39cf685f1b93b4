package store

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/rednix/eu-grants-monitor-agent/internal/models"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS opportunities (
	id            TEXT PRIMARY KEY,
	source_system TEXT NOT NULL,
	status        TEXT NOT NULL,
	payload       TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS alerts (
	id             TEXT PRIMARY KEY,
	opportunity_id TEXT NOT NULL,
	reason         TEXT NOT NULL,
	created_at     TEXT NOT NULL,
	payload        TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS cycles (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	started_at  TEXT NOT NULL,
	finished_at TEXT NOT NULL,
	payload     TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_alerts_created ON alerts(created_at);
`

// SQLiteStore keeps the snapshot in an embedded database file. The pure-Go
// driver keeps the binary cgo-free.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (and if needed creates) the database at path.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrapf(err, "store: open sqlite %s", path)
	}
	// The driver serializes writes; a single connection avoids SQLITE_BUSY
	// under concurrent readers.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, eris.Wrap(err, "store: apply sqlite schema")
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Load(ctx context.Context) (map[uuid.UUID]models.Opportunity, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT payload FROM opportunities`)
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

// Save replaces the whole snapshot in one transaction. A failure rolls back
// to the previous snapshot.
func (s *SQLiteStore) Save(ctx context.Context, snapshot map[uuid.UUID]models.Opportunity) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "store: begin save")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM opportunities`); err != nil {
		return eris.Wrap(err, "store: clear snapshot")
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO opportunities (id, source_system, status, payload) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return eris.Wrap(err, "store: prepare insert")
	}
	defer stmt.Close()

	for _, opp := range snapshot {
		payload, err := json.Marshal(opp)
		if err != nil {
			return eris.Wrapf(err, "store: encode opportunity %s", opp.ID)
		}
		if _, err := stmt.ExecContext(ctx, opp.ID.String(), opp.SourceSystem, string(opp.Status), payload); err != nil {
			return eris.Wrapf(err, "store: insert opportunity %s", opp.ID)
		}
	}

	return eris.Wrap(tx.Commit(), "store: commit save")
}

func (s *SQLiteStore) RecordCycle(ctx context.Context, rec CycleRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return eris.Wrap(err, "store: encode cycle")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO cycles (started_at, finished_at, payload) VALUES (?, ?, ?)`,
		rec.StartedAt.UTC().Format("2006-01-02T15:04:05Z"),
		rec.FinishedAt.UTC().Format("2006-01-02T15:04:05Z"),
		payload)
	return eris.Wrap(err, "store: record cycle")
}

// RecordAlerts inserts alerts, silently skipping IDs already recorded. The
// deterministic alert ID makes replayed cycles no-ops here.
func (s *SQLiteStore) RecordAlerts(ctx context.Context, alerts []models.Alert) error {
	if len(alerts) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "store: begin alerts")
	}
	defer tx.Rollback()

	for _, a := range alerts {
		payload, err := json.Marshal(a)
		if err != nil {
			return eris.Wrapf(err, "store: encode alert %s", a.ID)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO alerts (id, opportunity_id, reason, created_at, payload) VALUES (?, ?, ?, ?, ?)`,
			a.ID.String(), a.OpportunityID.String(), string(a.Reason),
			a.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"), payload)
		if err != nil {
			return eris.Wrapf(err, "store: insert alert %s", a.ID)
		}
	}
	return eris.Wrap(tx.Commit(), "store: commit alerts")
}

func (s *SQLiteStore) ListAlerts(ctx context.Context, limit int) ([]models.Alert, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT payload FROM alerts ORDER BY created_at DESC LIMIT ?`, limit)
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

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
