package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/trailhound/trailhound/internal/errors"
	"github.com/trailhound/trailhound/internal/models"
)

// Investigations and reports are stored as JSON documents; the relational
// columns exist only for listing and retention queries.
const sqlSchema = `
CREATE TABLE IF NOT EXISTS investigations (
	id         TEXT PRIMARY KEY,
	started_at TIMESTAMP NOT NULL,
	status     TEXT NOT NULL,
	payload    TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_investigations_started_at ON investigations (started_at);
CREATE TABLE IF NOT EXISTS reports (
	investigation_id TEXT PRIMARY KEY,
	payload          TEXT NOT NULL
);
`

// SQL is the sqlx-backed store, shared by the sqlite and postgres
// drivers. Placeholder style is rebound per driver.
type SQL struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// OpenSQL opens a store on the named database/sql driver. For sqlite3
// the DSN is a file path; for postgres a connection string.
func OpenSQL(driver, dsn string) (*SQL, error) {
	if driver == "sqlite3" {
		if err := os.MkdirAll(filepath.Dir(dsn), 0o700); err != nil {
			return nil, errors.Wrap(err, errors.KindInternal, errors.SeverityCritical, "create storage directory")
		}
	}
	db, err := sqlx.Connect(driver, dsn)
	if err != nil {
		return nil, errors.Wrap(err, errors.KindInternal, errors.SeverityCritical, "connect to "+driver)
	}
	if _, err := db.Exec(sqlSchema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, errors.KindInternal, errors.SeverityCritical, "apply storage schema")
	}
	return &SQL{db: db, logger: slog.Default().With("component", "storage", "driver", driver)}, nil
}

func (s *SQL) SaveInvestigation(ctx context.Context, inv *models.Investigation) error {
	payload, err := json.Marshal(inv)
	if err != nil {
		return errors.Wrap(err, errors.KindInternal, errors.SeverityHigh, "encode investigation")
	}
	query := s.db.Rebind(`
		INSERT INTO investigations (id, started_at, status, payload) VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET started_at = excluded.started_at,
			status = excluded.status, payload = excluded.payload`)
	_, err = s.db.ExecContext(ctx, query, inv.ID(), inv.StartedAt.UTC(), string(inv.Status), string(payload))
	if err != nil {
		return errors.Wrap(err, errors.KindInternal, errors.SeverityHigh, "save investigation")
	}
	return nil
}

func (s *SQL) GetInvestigation(ctx context.Context, id string) (*models.Investigation, error) {
	var payload string
	query := s.db.Rebind(`SELECT payload FROM investigations WHERE id = ?`)
	if err := s.db.GetContext(ctx, &payload, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFoundf("investigation %s not found", id)
		}
		return nil, errors.Wrap(err, errors.KindInternal, errors.SeverityHigh, "load investigation")
	}
	inv := &models.Investigation{}
	if err := json.Unmarshal([]byte(payload), inv); err != nil {
		return nil, errors.Wrap(err, errors.KindInternal, errors.SeverityHigh, "decode investigation")
	}
	return inv, nil
}

func (s *SQL) ListInvestigations(ctx context.Context, limit, offset int) ([]*models.Investigation, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	var payloads []string
	query := s.db.Rebind(`
		SELECT payload FROM investigations
		ORDER BY started_at DESC, id ASC LIMIT ? OFFSET ?`)
	if err := s.db.SelectContext(ctx, &payloads, query, limit, offset); err != nil {
		return nil, errors.Wrap(err, errors.KindInternal, errors.SeverityHigh, "list investigations")
	}
	out := make([]*models.Investigation, 0, len(payloads))
	for _, p := range payloads {
		inv := &models.Investigation{}
		if err := json.Unmarshal([]byte(p), inv); err != nil {
			return nil, errors.Wrap(err, errors.KindInternal, errors.SeverityHigh, "decode investigation")
		}
		out = append(out, inv.WithoutReport())
	}
	return out, nil
}

func (s *SQL) DeleteInvestigation(ctx context.Context, id string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, errors.KindInternal, errors.SeverityHigh, "begin delete")
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, s.db.Rebind(`DELETE FROM investigations WHERE id = ?`), id)
	if err != nil {
		return errors.Wrap(err, errors.KindInternal, errors.SeverityHigh, "delete investigation")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.NotFoundf("investigation %s not found", id)
	}
	if _, err := tx.ExecContext(ctx, s.db.Rebind(`DELETE FROM reports WHERE investigation_id = ?`), id); err != nil {
		return errors.Wrap(err, errors.KindInternal, errors.SeverityHigh, "delete report")
	}
	return tx.Commit()
}

func (s *SQL) SaveReport(ctx context.Context, rep *models.Report) error {
	payload, err := json.Marshal(rep)
	if err != nil {
		return errors.Wrap(err, errors.KindInternal, errors.SeverityHigh, "encode report")
	}
	query := s.db.Rebind(`
		INSERT INTO reports (investigation_id, payload) VALUES (?, ?)
		ON CONFLICT (investigation_id) DO UPDATE SET payload = excluded.payload`)
	if _, err := s.db.ExecContext(ctx, query, rep.InvestigationID, string(payload)); err != nil {
		return errors.Wrap(err, errors.KindInternal, errors.SeverityHigh, "save report")
	}
	return nil
}

func (s *SQL) GetReport(ctx context.Context, investigationID string) (*models.Report, error) {
	var payload string
	query := s.db.Rebind(`SELECT payload FROM reports WHERE investigation_id = ?`)
	if err := s.db.GetContext(ctx, &payload, query, investigationID); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFoundf("report for investigation %s not found", investigationID)
		}
		return nil, errors.Wrap(err, errors.KindInternal, errors.SeverityHigh, "load report")
	}
	rep := &models.Report{}
	if err := json.Unmarshal([]byte(payload), rep); err != nil {
		return nil, errors.Wrap(err, errors.KindInternal, errors.SeverityHigh, "decode report")
	}
	return rep, nil
}

func (s *SQL) Close() error {
	return s.db.Close()
}

// Ping verifies backend connectivity, for the health endpoint
func (s *SQL) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return s.db.PingContext(ctx)
}
