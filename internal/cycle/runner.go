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

// Package cycle runs the periodic batch: load the processing state, fetch
// the recent event window and the historical window, resolve every new
// event, write the records and only then commit the state.
package cycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bcem/leadtracker/internal/models"
	"github.com/bcem/leadtracker/internal/registry"
	"github.com/bcem/leadtracker/internal/resolve"
	"github.com/bcem/leadtracker/internal/senders"
)

// MailSource lists inbound messages. Both methods return events newest
// first; FetchHistoricalEvents excludes own-domain and automated senders.
type MailSource interface {
	FetchEvents(ctx context.Context, since time.Time) ([]models.CommunicationEvent, error)
	FetchHistoricalEvents(ctx context.Context, since time.Time) ([]models.CommunicationEvent, error)
}

// OpportunityStore holds the opportunity registry and the interaction log.
// ListOpportunities returns records oldest first.
type OpportunityStore interface {
	ListOpportunities(ctx context.Context) ([]models.OpportunityRecord, error)
	Append(ctx context.Context, opps []models.OpportunityRecord, interactions []models.InteractionRecord) error
}

// StateStore persists the processing state between cycles.
type StateStore interface {
	Load(ctx context.Context) (*models.ProcessingState, error)
	Save(ctx context.Context, st *models.ProcessingState) error
}

// Own-domain policies for events in the recent window.
const (
	OwnDomainInclude = "include"
	OwnDomainSkip    = "skip"
)

// ErrCycleInProgress is returned when a cycle is requested while another
// one is running.
var ErrCycleInProgress = errors.New("cycle already in progress")

// RunnerConfig holds the collaborators and windows of a cycle.
type RunnerConfig struct {
	Mail   MailSource
	Store  OpportunityStore
	State  StateStore
	Engine *resolve.Engine

	// Window is the recent event window. Defaults to 24h.
	Window time.Duration
	// HistoricalWindow is how far back history is fetched. Defaults to 180 days.
	HistoricalWindow time.Duration

	// Senders and OwnDomainPolicy decide what happens to events sent from
	// the mailbox owner's own domains.
	Senders         *senders.Filter
	OwnDomainPolicy string

	Now func() time.Time
}

// Runner executes cycles.
type Runner struct {
	mail      MailSource
	store     OpportunityStore
	state     StateStore
	engine    *resolve.Engine
	window    time.Duration
	history   time.Duration
	senders   *senders.Filter
	ownPolicy string
	now       func() time.Time
}

// NewRunner creates a cycle runner.
func NewRunner(cfg RunnerConfig) (*Runner, error) {
	if cfg.Mail == nil || cfg.Store == nil || cfg.State == nil || cfg.Engine == nil {
		return nil, errors.New("cycle runner requires mail, store, state and engine")
	}
	r := &Runner{
		mail:      cfg.Mail,
		store:     cfg.Store,
		state:     cfg.State,
		engine:    cfg.Engine,
		window:    cfg.Window,
		history:   cfg.HistoricalWindow,
		senders:   cfg.Senders,
		ownPolicy: cfg.OwnDomainPolicy,
		now:       cfg.Now,
	}
	if r.window <= 0 {
		r.window = 24 * time.Hour
	}
	if r.history <= 0 {
		r.history = 180 * 24 * time.Hour
	}
	if r.senders == nil {
		r.senders = senders.NewFilter(nil, nil)
	}
	switch r.ownPolicy {
	case "":
		r.ownPolicy = OwnDomainInclude
	case OwnDomainInclude, OwnDomainSkip:
	default:
		return nil, fmt.Errorf("unknown own-domain policy %q", cfg.OwnDomainPolicy)
	}
	if r.now == nil {
		r.now = time.Now
	}
	return r, nil
}

// Report summarises one cycle.
type Report struct {
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Elapsed    time.Duration `json:"elapsed"`

	Fetched          int `json:"fetched"`
	AlreadyProcessed int `json:"already_processed"`
	SkippedOwnDomain int `json:"skipped_own_domain"`
	Processed        int `json:"processed"`
	Created          int `json:"created"`
	Interactions     int `json:"interactions"`

	// ByTier counts resolutions per policy tier.
	ByTier map[models.Tier]int `json:"by_tier"`

	Error string `json:"error,omitempty"`
}

// Run executes one cycle. Any collaborator failure aborts the cycle
// before the state is saved, so the next cycle retries the same events.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	now := r.now().UTC()
	rep := &Report{StartedAt: now, ByTier: map[models.Tier]int{}}

	st, err := r.state.Load(ctx)
	if err != nil {
		return r.fail(rep, fmt.Errorf("load processing state: %w", err))
	}

	since := now.Add(-r.window)
	// Catch up after downtime, bounded by the historical window.
	if !st.LastCycleAt.IsZero() && st.LastCycleAt.Before(since) {
		since = st.LastCycleAt
		if floor := now.Add(-r.history); since.Before(floor) {
			since = floor
		}
	}

	var (
		records []models.OpportunityRecord
		events  []models.CommunicationEvent
		history []models.CommunicationEvent
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if records, err = r.store.ListOpportunities(gctx); err != nil {
			return fmt.Errorf("list opportunities: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if events, err = r.mail.FetchEvents(gctx, since); err != nil {
			return fmt.Errorf("fetch events: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if history, err = r.mail.FetchHistoricalEvents(gctx, now.Add(-r.history)); err != nil {
			return fmt.Errorf("fetch historical events: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return r.fail(rep, err)
	}

	reg := registry.FromRecords(records)
	next := st.Clone()
	rep.Fetched = len(events)

	pending := make([]models.CommunicationEvent, 0, len(events))
	// A window can list the same message twice when paging shifts under
	// newly arrived mail. Only the first copy is resolved.
	queued := make(map[string]struct{}, len(events))
	for _, ev := range events {
		_, dup := queued[ev.EventID]
		switch {
		case dup || next.Processed(ev.EventID):
			rep.AlreadyProcessed++
		case r.ownPolicy == OwnDomainSkip && r.senders.IsOwn(ev.SenderAddress):
			rep.SkippedOwnDomain++
			next.MarkProcessed(ev.EventID, ev.ReceivedAt)
		default:
			queued[ev.EventID] = struct{}{}
			pending = append(pending, ev)
		}
	}
	sort.SliceStable(pending, func(i, j int) bool {
		return pending[i].ReceivedAt.Before(pending[j].ReceivedAt)
	})

	slog.Info("cycle started",
		"since", since,
		"fetched", rep.Fetched,
		"pending", len(pending),
		"already_processed", rep.AlreadyProcessed,
		"registry", reg.Len(),
		"history", len(history),
	)

	res, err := r.engine.ProcessBatch(ctx, reg, history, pending)
	if err != nil {
		return r.fail(rep, fmt.Errorf("resolve events: %w", err))
	}

	if err := r.store.Append(ctx, res.Opportunities, res.Interactions); err != nil {
		return r.fail(rep, fmt.Errorf("append records: %w", err))
	}

	for _, ev := range res.Processed {
		next.MarkProcessed(ev.EventID, ev.ReceivedAt)
	}
	next.LastCycleAt = now
	if err := r.state.Save(ctx, next); err != nil {
		return r.fail(rep, fmt.Errorf("save processing state: %w", err))
	}

	rep.Processed = len(res.Processed)
	rep.Created = len(res.Opportunities)
	rep.Interactions = len(res.Interactions)
	for _, rs := range res.Resolutions {
		rep.ByTier[rs.Result.Tier]++
	}
	r.finish(rep)

	slog.Info("cycle complete",
		"processed", rep.Processed,
		"created", rep.Created,
		"interactions", rep.Interactions,
		"elapsed", rep.Elapsed,
	)
	return rep, nil
}

func (r *Runner) finish(rep *Report) {
	rep.FinishedAt = r.now().UTC()
	rep.Elapsed = rep.FinishedAt.Sub(rep.StartedAt)
}

func (r *Runner) fail(rep *Report, err error) (*Report, error) {
	r.finish(rep)
	rep.Error = err.Error()
	slog.Error("cycle failed, state not saved", "error", err)
	return rep, err
}
