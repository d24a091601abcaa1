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

package oracle

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/bcem/leadtracker/internal/matching"
	"github.com/bcem/leadtracker/internal/models"
	"github.com/bcem/leadtracker/internal/registry"
)

// AdapterConfig holds the classifier and the bounds applied to prompts.
type AdapterConfig struct {
	Classifier Classifier

	// MaxHistoryInPrompt caps historical emails in a match prompt.
	MaxHistoryInPrompt int
	// MaxEarliestCandidates caps emails offered to the earliest-mention question.
	MaxEarliestCandidates int
	// MaxBodyRunes caps the email body sent for extraction.
	MaxBodyRunes int
}

// Adapter asks the classifier the engine's three questions.
type Adapter struct {
	classifier  Classifier
	maxHistory  int
	maxEarliest int
	maxBody     int
	schemas     *schemas
}

// NewAdapter creates an oracle adapter.
func NewAdapter(cfg AdapterConfig) (*Adapter, error) {
	if cfg.Classifier == nil {
		return nil, fmt.Errorf("oracle adapter requires a classifier")
	}
	s, err := compileSchemas()
	if err != nil {
		return nil, err
	}
	a := &Adapter{
		classifier:  cfg.Classifier,
		maxHistory:  cfg.MaxHistoryInPrompt,
		maxEarliest: cfg.MaxEarliestCandidates,
		maxBody:     cfg.MaxBodyRunes,
		schemas:     s,
	}
	if a.maxHistory <= 0 {
		a.maxHistory = 10
	}
	if a.maxEarliest <= 0 {
		a.maxEarliest = 15
	}
	if a.maxBody <= 0 {
		a.maxBody = 2000
	}
	return a, nil
}

func (a *Adapter) ask(ctx context.Context, prompt string) ([]byte, error) {
	raw, err := a.classifier.Classify(ctx, prompt)
	if err != nil {
		return nil, &ClassifyError{Kind: KindTransport, Err: err}
	}
	return raw, nil
}

// Extract asks which opportunities ev describes. Missing fields come back
// empty; the caller fills defaults.
func (a *Adapter) Extract(ctx context.Context, ev models.CommunicationEvent) ([]models.OpportunityCandidate, error) {
	raw, err := a.ask(ctx, extractionPrompt(ev, a.maxBody))
	if err != nil {
		return nil, err
	}

	var out []models.OpportunityCandidate
	if err := decode(a.schemas.extraction, raw, &out); err != nil {
		return nil, err
	}

	// Drop entries with nothing in them; models sometimes pad the list.
	kept := out[:0]
	for _, c := range out {
		if strings.TrimSpace(c.Title+c.Summary+c.ContactCompany+c.ContactEmail) == "" {
			continue
		}
		kept = append(kept, c)
	}
	return kept, nil
}

// MatchRequest is what the match question is asked about.
type MatchRequest struct {
	Candidate models.OpportunityCandidate
	// Entries are the top-ranked registry entries, best first.
	Entries []*registry.Entry
	// History holds relevant historical emails, newest first.
	History []models.CommunicationEvent
}

// Verdict is the classifier's answer to the match question.
type Verdict struct {
	Match         bool    `json:"match"`
	OpportunityID string  `json:"opportunity_id"`
	Confidence    float64 `json:"confidence"`
	Reason        string  `json:"reason"`

	// Consulted is false when the classifier was not asked.
	Consulted bool `json:"-"`
}

// Match asks whether req.Candidate continues one of req.Entries. When
// there are neither entries nor history it answers "no match" without
// calling the classifier. A verdict naming an opportunity that was not
// offered is rejected with KindUnknownOpportunity.
func (a *Adapter) Match(ctx context.Context, req MatchRequest) (Verdict, error) {
	history := matching.Latest(req.History, a.maxHistory)
	if len(req.Entries) == 0 && len(history) == 0 {
		return Verdict{Reason: "no registry entries or history to compare"}, nil
	}

	raw, err := a.ask(ctx, matchPrompt(req.Candidate, req.Entries, history))
	if err != nil {
		return Verdict{}, err
	}

	var v Verdict
	if err := decode(a.schemas.match, raw, &v); err != nil {
		return Verdict{}, err
	}
	v.Consulted = true
	v.OpportunityID = strings.TrimSpace(v.OpportunityID)

	if !v.Match {
		v.OpportunityID = ""
		return v, nil
	}
	if v.OpportunityID == "" || strings.EqualFold(v.OpportunityID, "null") {
		return Verdict{}, classifyErr(KindSchema, "match=true without an opportunity_id")
	}
	for _, e := range req.Entries {
		if e.ID == v.OpportunityID {
			return v, nil
		}
	}
	slog.Warn("oracle named an opportunity that was not offered",
		"opportunity_id", v.OpportunityID,
		"offered", len(req.Entries),
	)
	return Verdict{}, classifyErr(KindUnknownOpportunity, "opportunity %q was not offered", v.OpportunityID)
}

// EarliestVerdict is the classifier's answer to the earliest-mention
// question. Event is nil when the classifier found no first mention.
type EarliestVerdict struct {
	Event      *models.CommunicationEvent
	Index      int
	Confidence float64
	Reason     string

	// Consulted is false when the classifier was not asked.
	Consulted bool
}

type earliestAnswer struct {
	Number     *float64 `json:"first_mention_email_number"`
	Confidence float64  `json:"confidence"`
	Reason     string   `json:"reason"`
}

// EarliestMention offers the oldest relevant emails, oldest first, and
// asks which one first raised the candidate's matter.
func (a *Adapter) EarliestMention(ctx context.Context, c models.OpportunityCandidate, relevant []models.CommunicationEvent) (EarliestVerdict, error) {
	if len(relevant) == 0 {
		return EarliestVerdict{Reason: "no relevant history"}, nil
	}
	emails := matching.OldestFirst(relevant, a.maxEarliest)

	raw, err := a.ask(ctx, earliestPrompt(c, emails))
	if err != nil {
		return EarliestVerdict{}, err
	}

	var ans earliestAnswer
	if err := decode(a.schemas.earliest, raw, &ans); err != nil {
		return EarliestVerdict{}, err
	}

	v := EarliestVerdict{Confidence: ans.Confidence, Reason: ans.Reason, Consulted: true}
	if ans.Number == nil {
		return v, nil
	}
	n := *ans.Number
	if n != math.Trunc(n) || n < 1 || int(n) > len(emails) {
		return EarliestVerdict{}, classifyErr(KindOutOfRange, "email number %v not in 1..%d", n, len(emails))
	}
	v.Index = int(n)
	v.Event = &emails[v.Index-1]
	return v, nil
}
