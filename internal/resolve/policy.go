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
	"errors"
	"fmt"
	"log/slog"

	"github.com/bcem/leadtracker/internal/matching"
	"github.com/bcem/leadtracker/internal/models"
	"github.com/bcem/leadtracker/internal/oracle"
	"github.com/bcem/leadtracker/internal/registry"
)

// Oracle is the semantic classifier as the policy sees it.
// *oracle.Adapter implements it.
type Oracle interface {
	Extract(ctx context.Context, ev models.CommunicationEvent) ([]models.OpportunityCandidate, error)
	Match(ctx context.Context, req oracle.MatchRequest) (oracle.Verdict, error)
	EarliestMention(ctx context.Context, c models.OpportunityCandidate, relevant []models.CommunicationEvent) (oracle.EarliestVerdict, error)
}

// Decision is the policy's answer for one candidate, plus the historical
// messages it judged relevant. Relevant is reused by the earliest-mention
// lookup when the decision is to create.
type Decision struct {
	Result   models.MatchResult
	Relevant []models.CommunicationEvent
}

// Policy walks a candidate through the deterministic, score and oracle
// checks in that order and stops at the first one that decides.
type Policy struct {
	cfg     Config
	scorer  *matching.Scorer
	history matching.HistoryFilter
	oracle  Oracle
}

// NewPolicy creates a resolution policy.
func NewPolicy(cfg Config, o Oracle) (*Policy, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid resolve config: %w", err)
	}
	if o == nil {
		return nil, errors.New("resolve policy requires an oracle")
	}
	return &Policy{
		cfg:    cfg,
		scorer: matching.NewScorer(cfg.Weights, cfg.ProjectTerms),
		history: matching.HistoryFilter{
			ScanLimit:         cfg.HistoricalScanLimit,
			MinKeywordOverlap: cfg.MinKeywordOverlap,
		},
		oracle: o,
	}, nil
}

// Resolve decides whether c, extracted from trigger, continues an entry in
// reg. An unmatched result has Tier TierCreate. Oracle failures count as
// "no match"; the only error returned is the context's.
func (p *Policy) Resolve(ctx context.Context, c models.OpportunityCandidate, trigger models.CommunicationEvent, reg *registry.Registry, history []models.CommunicationEvent) (Decision, error) {
	if entry, rel := matching.MatchCompany(c.ContactCompany, reg); entry != nil {
		kind := "partial"
		if rel == matching.Exact {
			kind = "exact"
		}
		return Decision{Result: models.MatchResult{
			OpportunityID: entry.ID,
			Confidence:    1.0,
			Rationale:     fmt.Sprintf("%s company match: %q ~ %q", kind, c.ContactCompany, entry.Company),
			Tier:          models.TierDeterministic,
		}}, nil
	}

	ranked := p.scorer.Rank(c, reg, p.cfg.MaxCandidatesToOracle)
	if len(ranked) > 0 && ranked[0].Score >= p.cfg.ScoreShortCircuit {
		top := ranked[0]
		return Decision{Result: models.MatchResult{
			OpportunityID: top.Entry.ID,
			Confidence:    scoreConfidence(top.Score, p.cfg.Weights.CompanyExact),
			Rationale:     fmt.Sprintf("relevance score %d >= %d", top.Score, p.cfg.ScoreShortCircuit),
			Tier:          models.TierScore,
		}}, nil
	}

	relevant := p.history.Relevant(c, trigger, history)
	entries := make([]*registry.Entry, 0, len(ranked))
	for _, s := range ranked {
		entries = append(entries, s.Entry)
	}

	created := Decision{
		Result:   models.MatchResult{Tier: models.TierCreate, Rationale: "no existing opportunity matched"},
		Relevant: relevant,
	}

	v, err := p.oracle.Match(ctx, oracle.MatchRequest{Candidate: c, Entries: entries, History: relevant})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Decision{}, ctxErr
		}
		slog.Warn("oracle match failed, treating as no match",
			"event_id", trigger.EventID,
			"kind", errorKind(err),
			"error", err,
		)
		created.Result.Rationale = "oracle unavailable: " + err.Error()
		return created, nil
	}
	if !v.Consulted {
		return created, nil
	}

	if v.Match && v.Confidence >= p.cfg.ConfidenceThresholdMatch {
		return Decision{Result: models.MatchResult{
			OpportunityID: v.OpportunityID,
			Confidence:    v.Confidence,
			Rationale:     v.Reason,
			Tier:          models.TierOracle,
		}, Relevant: relevant}, nil
	}
	if v.Match {
		slog.Info("rejected low-confidence oracle match",
			"event_id", trigger.EventID,
			"opportunity_id", v.OpportunityID,
			"confidence", v.Confidence,
			"threshold", p.cfg.ConfidenceThresholdMatch,
		)
		created.Result.Rationale = fmt.Sprintf("oracle match %s rejected: confidence %.2f below %.2f",
			v.OpportunityID, v.Confidence, p.cfg.ConfidenceThresholdMatch)
		return created, nil
	}
	if v.Reason != "" {
		created.Result.Rationale = v.Reason
	}
	return created, nil
}

// FirstMention returns when the matter of c was first raised: the receipt
// time of the earliest relevant message the oracle names with enough
// confidence, else the trigger's own receipt time. The result is never
// later than trigger.ReceivedAt.
func (p *Policy) FirstMention(ctx context.Context, c models.OpportunityCandidate, trigger models.CommunicationEvent, relevant []models.CommunicationEvent) (models.CommunicationEvent, bool, error) {
	if len(relevant) == 0 {
		return trigger, false, nil
	}
	v, err := p.oracle.EarliestMention(ctx, c, relevant)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return models.CommunicationEvent{}, false, ctxErr
		}
		slog.Warn("earliest-mention lookup failed, using event time",
			"event_id", trigger.EventID,
			"kind", errorKind(err),
			"error", err,
		)
		return trigger, false, nil
	}
	if v.Event == nil || v.Confidence < p.cfg.ConfidenceThresholdEarliestMention {
		return trigger, false, nil
	}
	if v.Event.ReceivedAt.After(trigger.ReceivedAt) {
		return trigger, false, nil
	}
	return *v.Event, true, nil
}

func scoreConfidence(score, exact int) float64 {
	c := float64(score) / float64(exact)
	switch {
	case c < 0:
		return 0
	case c > 1:
		return 1
	}
	return c
}

func errorKind(err error) string {
	var ce *oracle.ClassifyError
	if errors.As(err, &ce) {
		return string(ce.Kind)
	}
	return "unknown"
}
