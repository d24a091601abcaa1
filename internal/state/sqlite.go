// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/bcem/leadtracker/internal/models"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS processed_events (
    event_id    TEXT PRIMARY KEY,
    received_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_processed_events_received_at ON processed_events(received_at);
CREATE TABLE IF NOT EXISTS cycle_cursor (
    id            INTEGER PRIMARY KEY CHECK (id = 1),
    last_cycle_at INTEGER NOT NULL
);
`

// SQLiteStore keeps the processing state in a local SQLite file. It suits
// single-host deployments and offline replays.
type SQLiteStore struct {
	db        *sql.DB
	retention time.Duration
	now       func() time.Time
}

// OpenSQLite opens (or creates) the state database at path. Use ":memory:"
// for a throwaway store.
func OpenSQLite(path string, retention time.Duration) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create state directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open state database: %w", err)
	}
	// A single connection keeps ":memory:" databases alive and serialises writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialise state schema: %w", err)
	}

	return &SQLiteStore{db: db, retention: retention, now: time.Now}, nil
}

// Load reads the processing state. A fresh database loads as empty.
func (s *SQLiteStore) Load(ctx context.Context) (*models.ProcessingState, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT event_id, received_at FROM processed_events`)
	if err != nil {
		return nil, fmt.Errorf("load processed ids: %w", err)
	}
	defer rows.Close()

	st := models.NewProcessingState()
	for rows.Next() {
		var id string
		var ms int64
		if err := rows.Scan(&id, &ms); err != nil {
			return nil, fmt.Errorf("scan processed id: %w", err)
		}
		st.ProcessedEventIDs[id] = time.UnixMilli(ms).UTC()
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate processed ids: %w", err)
	}

	var ms int64
	err = s.db.QueryRowContext(ctx, `SELECT last_cycle_at FROM cycle_cursor WHERE id = 1`).Scan(&ms)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return nil, fmt.Errorf("load cycle cursor: %w", err)
	default:
		st.LastCycleAt = time.UnixMilli(ms).UTC()
	}
	return st, nil
}

// Save writes st in one transaction.
func (s *SQLiteStore) Save(ctx context.Context, st *models.ProcessingState) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin state transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT OR IGNORE INTO processed_events (event_id, received_at) VALUES (?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare processed id insert: %w", err)
	}
	defer stmt.Close()

	for id, at := range st.ProcessedEventIDs {
		if _, err := stmt.ExecContext(ctx, id, at.UnixMilli()); err != nil {
			return fmt.Errorf("insert processed id %s: %w", id, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO cycle_cursor (id, last_cycle_at) VALUES (1, ?)
		ON CONFLICT(id) DO UPDATE SET last_cycle_at = excluded.last_cycle_at
	`, st.LastCycleAt.UnixMilli()); err != nil {
		return fmt.Errorf("save cycle cursor: %w", err)
	}

	if s.retention > 0 {
		cutoff := s.now().Add(-s.retention).UnixMilli()
		if _, err := tx.ExecContext(ctx, `DELETE FROM processed_events WHERE received_at < ?`, cutoff); err != nil {
			return fmt.Errorf("trim processed ids: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit state transaction: %w", err)
	}
	return nil
}

// Ping checks the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
