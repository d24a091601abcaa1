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

// Package memory is an in-process opportunity store for dry runs.
package memory

import (
	"context"
	"sync"

	"github.com/bcem/leadtracker/internal/models"
)

// Store keeps records in memory, oldest first.
type Store struct {
	mu           sync.Mutex
	opps         []models.OpportunityRecord
	interactions []models.InteractionRecord
}

// NewStore returns a store seeded with records, oldest first.
func NewStore(records ...models.OpportunityRecord) *Store {
	return &Store{opps: append([]models.OpportunityRecord(nil), records...)}
}

// ListOpportunities returns a copy of the stored opportunities.
func (s *Store) ListOpportunities(context.Context) ([]models.OpportunityRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.OpportunityRecord(nil), s.opps...), nil
}

// Append records new opportunities and interactions.
func (s *Store) Append(_ context.Context, opps []models.OpportunityRecord, interactions []models.InteractionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opps = append(s.opps, opps...)
	s.interactions = append(s.interactions, interactions...)
	return nil
}

// Interactions returns a copy of the logged interactions.
func (s *Store) Interactions() []models.InteractionRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.InteractionRecord(nil), s.interactions...)
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }
