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

package resolve

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/bcem/leadtracker/internal/models"
	"github.com/bcem/leadtracker/internal/registry"
)

// Resolution is the outcome for one candidate of one event.
type Resolution struct {
	EventID     string
	Candidate   models.OpportunityCandidate
	Result      models.MatchResult
	Created     *models.OpportunityRecord
	Interaction models.InteractionRecord
}

// BatchResult collects everything a batch produced, in processing order.
type BatchResult struct {
	Opportunities []models.OpportunityRecord
	Interactions  []models.InteractionRecord
	Resolutions   []Resolution
	// Processed lists the events that were fully resolved.
	Processed []models.CommunicationEvent
}

// Engine turns inbound events into opportunity and interaction records.
type Engine struct {
	policy *Policy
	oracle Oracle
	newID  func() string
}

// NewEngine creates an engine with the given policy settings.
func NewEngine(cfg Config, o Oracle) (*Engine, error) {
	p, err := NewPolicy(cfg, o)
	if err != nil {
		return nil, err
	}
	return &Engine{policy: p, oracle: o, newID: p.cfg.NewID}, nil
}

// Policy returns the engine's resolution policy.
func (e *Engine) Policy() *Policy { return e.policy }

// Candidates extracts the opportunities ev describes. Extraction failures
// and empty answers yield the generic candidate so every event leaves a
// trace in the store.
func (e *Engine) Candidates(ctx context.Context, ev models.CommunicationEvent) ([]models.OpportunityCandidate, error) {
	extracted, err := e.oracle.Extract(ctx, ev)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		slog.Warn("candidate extraction failed",
			"event_id", ev.EventID,
			"kind", errorKind(err),
			"error", err,
		)
		extracted = nil
	}
	if len(extracted) == 0 {
		return []models.OpportunityCandidate{models.GenericCandidate(ev)}, nil
	}
	out := make([]models.OpportunityCandidate, 0, len(extracted))
	for _, c := range extracted {
		out = append(out, c.WithDefaults(ev))
	}
	return out, nil
}

// ProcessEvent resolves every candidate of ev against reg. Created
// opportunities are added to reg before the next candidate is resolved.
func (e *Engine) ProcessEvent(ctx context.Context, ev models.CommunicationEvent, reg *registry.Registry, history []models.CommunicationEvent) ([]Resolution, error) {
	if err := ev.Validate(); err != nil {
		return nil, err
	}
	candidates, err := e.Candidates(ctx, ev)
	if err != nil {
		return nil, err
	}

	out := make([]Resolution, 0, len(candidates))
	for _, c := range candidates {
		r, err := e.resolveCandidate(ctx, c, ev, reg, history)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func (e *Engine) resolveCandidate(ctx context.Context, c models.OpportunityCandidate, ev models.CommunicationEvent, reg *registry.Registry, history []models.CommunicationEvent) (Resolution, error) {
	d, err := e.policy.Resolve(ctx, c, ev, reg, history)
	if err != nil {
		return Resolution{}, err
	}

	r := Resolution{EventID: ev.EventID, Candidate: c, Result: d.Result}
	if d.Result.Matched() {
		kind := models.KindFollowUp
		if c.Generic {
			kind = models.KindGeneralCommunication
		}
		r.Interaction = models.NewInteraction(d.Result.OpportunityID, kind, ev, c)
		slog.Info("matched existing opportunity",
			"event_id", ev.EventID,
			"opportunity_id", d.Result.OpportunityID,
			"tier", d.Result.Tier,
			"confidence", d.Result.Confidence,
		)
		return r, nil
	}

	first, backdated, err := e.policy.FirstMention(ctx, c, ev, d.Relevant)
	if err != nil {
		return Resolution{}, err
	}

	id := e.freshID(reg)
	status, kind := models.StatusNewLead, models.KindNewLead
	if c.Generic {
		status, kind = models.StatusGeneralCommunication, models.KindGeneralCommunication
	}
	rec := models.OpportunityRecord{
		OpportunityID:  id,
		ContactName:    c.ContactName,
		ContactCompany: c.ContactCompany,
		ContactEmail:   c.ContactEmail,
		Title:          c.Title,
		Status:         status,
		FirstMentionAt: first.ReceivedAt,
		ThreadID:       ev.ThreadID,
		Summary:        c.Summary,
	}
	if !reg.Add(registry.EntryFromRecord(rec)) {
		return Resolution{}, fmt.Errorf("add opportunity %s to registry", id)
	}

	r.Result.OpportunityID = id
	r.Created = &rec
	r.Interaction = models.NewInteraction(id, kind, ev, c)
	if backdated {
		r.Interaction.Note = fmt.Sprintf("first mentioned in %s", first.EventID)
	}
	slog.Info("created opportunity",
		"event_id", ev.EventID,
		"opportunity_id", id,
		"status", status,
		"first_mention_at", rec.FirstMentionAt,
		"backdated", backdated,
	)
	return r, nil
}

func (e *Engine) freshID(reg *registry.Registry) string {
	for {
		id := e.newID()
		if id != "" && !reg.Contains(id) {
			return id
		}
	}
}

// ProcessBatch resolves events in ascending receipt order against reg.
// Events that fail validation are logged and skipped. The batch stops at
// the first context error; a partial result is never returned.
func (e *Engine) ProcessBatch(ctx context.Context, reg *registry.Registry, history, events []models.CommunicationEvent) (*BatchResult, error) {
	ordered := make([]models.CommunicationEvent, len(events))
	copy(ordered, events)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].ReceivedAt.Before(ordered[j].ReceivedAt)
	})

	res := &BatchResult{}
	for _, ev := range ordered {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := ev.Validate(); err != nil {
			slog.Warn("skipping invalid event", "event_id", ev.EventID, "error", err)
			continue
		}

		resolutions, err := e.ProcessEvent(ctx, ev, reg, history)
		if err != nil {
			return nil, fmt.Errorf("process event %s: %w", ev.EventID, err)
		}
		for _, r := range resolutions {
			if r.Created != nil {
				res.Opportunities = append(res.Opportunities, *r.Created)
			}
			res.Interactions = append(res.Interactions, r.Interaction)
		}
		res.Resolutions = append(res.Resolutions, resolutions...)
		res.Processed = append(res.Processed, ev)
	}
	return res, nil
}
