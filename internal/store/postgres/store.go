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

// Package postgres provides a Postgres-backed opportunity store: the
// opportunities that make up the registry and the interactions logged
// against them.
package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bcem/leadtracker/internal/models"
)

// Store reads and appends opportunity records in Postgres.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates an opportunity store backed by the given Postgres pool.
// It ensures the tables exist on creation.
func NewStore(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	s := &Store{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure opportunity schema: %w", err)
	}
	slog.Info("opportunity store initialised", "backend", "postgres")
	return s, nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS opportunities (
			seq              BIGSERIAL,
			opportunity_id   TEXT PRIMARY KEY,
			contact_name     TEXT DEFAULT '',
			contact_company  TEXT DEFAULT '',
			contact_email    TEXT DEFAULT '',
			title            TEXT DEFAULT '',
			status           TEXT NOT NULL,
			first_mention_at TIMESTAMPTZ NOT NULL,
			thread_id        TEXT DEFAULT '',
			summary          TEXT DEFAULT '',
			created_at       TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_opps_seq ON opportunities(seq);

		CREATE TABLE IF NOT EXISTS interactions (
			id                 UUID PRIMARY KEY,
			opportunity_id     TEXT NOT NULL REFERENCES opportunities(opportunity_id),
			event_id           TEXT NOT NULL,
			occurred_at        TIMESTAMPTZ NOT NULL,
			kind               TEXT NOT NULL,
			channel            TEXT NOT NULL,
			actor_display_name TEXT DEFAULT '',
			summary            TEXT DEFAULT '',
			action_item        TEXT DEFAULT '',
			note               TEXT DEFAULT '',
			created_at         TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_interactions_opp ON interactions(opportunity_id);
		CREATE INDEX IF NOT EXISTS idx_interactions_event ON interactions(event_id);
	`)
	return err
}

// ListOpportunities returns every opportunity, oldest first.
func (s *Store) ListOpportunities(ctx context.Context) ([]models.OpportunityRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT opportunity_id, contact_name, contact_company, contact_email,
		       title, status, first_mention_at, thread_id, summary
		FROM opportunities
		ORDER BY seq
	`)
	if err != nil {
		return nil, fmt.Errorf("list opportunities: %w", err)
	}
	defer rows.Close()

	var out []models.OpportunityRecord
	for rows.Next() {
		var r models.OpportunityRecord
		if err := rows.Scan(
			&r.OpportunityID, &r.ContactName, &r.ContactCompany, &r.ContactEmail,
			&r.Title, &r.Status, &r.FirstMentionAt, &r.ThreadID, &r.Summary,
		); err != nil {
			return nil, fmt.Errorf("scan opportunity: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate opportunities: %w", err)
	}
	return out, nil
}

// Append writes opps and interactions in one transaction. Opportunities
// that already exist are left untouched.
func (s *Store) Append(ctx context.Context, opps []models.OpportunityRecord, interactions []models.InteractionRecord) error {
	if len(opps) == 0 && len(interactions) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin append: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, o := range opps {
		batch.Queue(`
			INSERT INTO opportunities
				(opportunity_id, contact_name, contact_company, contact_email,
				 title, status, first_mention_at, thread_id, summary)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (opportunity_id) DO NOTHING
		`, o.OpportunityID, o.ContactName, o.ContactCompany, o.ContactEmail,
			o.Title, o.Status, o.FirstMentionAt, o.ThreadID, o.Summary)
	}
	for _, i := range interactions {
		batch.Queue(`
			INSERT INTO interactions
				(id, opportunity_id, event_id, occurred_at, kind, channel,
				 actor_display_name, summary, action_item, note)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`, uuid.New(), i.OpportunityID, i.EventID, i.OccurredAt, i.Kind, i.Channel,
			i.ActorDisplayName, i.Summary, i.ActionItem, i.Note)
	}

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("append records: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit append: %w", err)
	}

	slog.Debug("appended records",
		"opportunities", len(opps),
		"interactions", len(interactions),
	)
	return nil
}

// Ping checks connectivity to Postgres.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}
