package lifecycle

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"cshealth/internal/clock"
	"cshealth/internal/domain"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS alert_updates (
	alert_id   TEXT PRIMARY KEY,
	payload    TEXT NOT NULL,
	updated_at TEXT NOT NULL
);`

// SQLiteStore persists lifecycle state in one local SQLite table.
// Params: database handle limited to one connection, clock, and note ID generator.
// Returns: durable single-node store.
type SQLiteStore struct {
	db    *sql.DB
	clock clock.Clock
	newID func() string
}

// NewSQLiteStore opens database file and ensures schema.
// Params: database path and clock.
// Returns: initialized store or open/schema error.
func NewSQLiteStore(path string, clk clock.Clock) (*SQLiteStore, error) {
	if clk == nil {
		clk = clock.RealClock{}
	}
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLiteStore{db: db, clock: clk, newID: uuid.NewString}, nil
}

// Get reads stored state for alert ID.
// Params: context and alert ID.
// Returns: state or ErrNotFound.
func (s *SQLiteStore) Get(ctx context.Context, alertID string) (domain.StoredUpdate, error) {
	return loadRow(s.db.QueryRowContext(ctx, `SELECT payload FROM alert_updates WHERE alert_id = ?`, alertID))
}

// Upsert merges update inside one transaction.
// Params: context, alert ID, and update.
// Returns: merge result or database error.
func (s *SQLiteStore) Upsert(ctx context.Context, alertID string, update domain.AlertUpdate) (UpsertResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return UpsertResult{}, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	current, err := loadRow(tx.QueryRowContext(ctx, `SELECT payload FROM alert_updates WHERE alert_id = ?`, alertID))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return UpsertResult{}, err
	}
	next, changed, note := ApplyUpdate(current, alertID, update, s.clock.Now(), s.newID)
	body, err := json.Marshal(next)
	if err != nil {
		return UpsertResult{}, fmt.Errorf("encode lifecycle state: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO alert_updates (alert_id, payload, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(alert_id) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`,
		alertID, string(body), next.UpdatedAt.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
	)
	if err != nil {
		return UpsertResult{}, fmt.Errorf("write lifecycle state: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return UpsertResult{}, fmt.Errorf("commit: %w", err)
	}
	return UpsertResult{Changed: changed, Note: note, Stored: next}, nil
}

// List reads every stored state ordered by alert ID.
func (s *SQLiteStore) List(ctx context.Context) ([]domain.StoredUpdate, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT payload FROM alert_updates ORDER BY alert_id`)
	if err != nil {
		return nil, fmt.Errorf("list lifecycle state: %w", err)
	}
	defer rows.Close()

	var out []domain.StoredUpdate
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan lifecycle state: %w", err)
		}
		var stored domain.StoredUpdate
		if err := json.Unmarshal([]byte(payload), &stored); err != nil {
			return nil, fmt.Errorf("decode lifecycle state: %w", err)
		}
		out = append(out, stored)
	}
	return out, rows.Err()
}

// Close closes database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func loadRow(row *sql.Row) (domain.StoredUpdate, error) {
	var payload string
	if err := row.Scan(&payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.StoredUpdate{}, ErrNotFound
		}
		return domain.StoredUpdate{}, fmt.Errorf("read lifecycle state: %w", err)
	}
	var stored domain.StoredUpdate
	if err := json.Unmarshal([]byte(payload), &stored); err != nil {
		return domain.StoredUpdate{}, fmt.Errorf("decode lifecycle state: %w", err)
	}
	return stored, nil
}
