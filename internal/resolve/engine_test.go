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
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bcem/leadtracker/internal/models"
	"github.com/bcem/leadtracker/internal/oracle"
	"github.com/bcem/leadtracker/internal/registry"
)

// scriptedClassifier answers each of the three prompt kinds with its own
// function and counts how often each kind was asked.
type scriptedClassifier struct {
	extract  func(prompt string) (string, error)
	match    func(prompt string) (string, error)
	earliest func(prompt string) (string, error)
	calls    map[string]int
}

func newScripted() *scriptedClassifier {
	return &scriptedClassifier{
		extract:  func(string) (string, error) { return `[]`, nil },
		match:    func(string) (string, error) { return `{"match": false, "opportunity_id": null, "confidence": 0.0}`, nil },
		earliest: func(string) (string, error) { return `{"first_mention_email_number": null, "confidence": 0.0}`, nil },
		calls:    map[string]int{},
	}
}

func (s *scriptedClassifier) Classify(_ context.Context, prompt string) ([]byte, error) {
	var fn func(string) (string, error)
	switch {
	case strings.HasPrefix(prompt, "You are a CRM assistant"):
		s.calls["extract"]++
		fn = s.extract
	case strings.HasPrefix(prompt, "You are de-duplicating"):
		s.calls["match"]++
		fn = s.match
	case strings.HasPrefix(prompt, "You are finding the first"):
		s.calls["earliest"]++
		fn = s.earliest
	default:
		return nil, fmt.Errorf("unexpected prompt: %.40s", prompt)
	}
	out, err := fn(prompt)
	if err != nil {
		return nil, err
	}
	return []byte(out), nil
}

func extracted(t *testing.T, cands ...models.OpportunityCandidate) string {
	t.Helper()
	b, err := json.Marshal(cands)
	require.NoError(t, err)
	return string(b)
}

func sequentialIDs(ids ...string) func() string {
	i := 0
	return func() string {
		id := ids[i%len(ids)]
		i++
		return id
	}
}

func newEngine(t *testing.T, sc *scriptedClassifier, mutate ...func(*Config)) *Engine {
	t.Helper()
	a, err := oracle.NewAdapter(oracle.AdapterConfig{Classifier: sc})
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.NewID = sequentialIDs("N1", "N2", "N3", "N4")
	for _, m := range mutate {
		m(&cfg)
	}
	e, err := NewEngine(cfg, a)
	require.NoError(t, err)
	return e
}

var base = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

func event(id, sender, subject, body string, at time.Time) models.CommunicationEvent {
	return models.CommunicationEvent{
		EventID:       id,
		ReceivedAt:    at,
		SenderAddress: sender,
		Subject:       subject,
		BodyText:      body,
		ThreadID:      "thread-" + id,
	}
}

func TestProcessEvent_DeterministicTierSkipsOracleMatch(t *testing.T) {
	sc := newScripted()
	sc.extract = func(string) (string, error) {
		return extracted(t, models.OpportunityCandidate{Title: "Website Redesign", ContactCompany: "Globex"}), nil
	}
	e := newEngine(t, sc)
	reg := registry.FromRecords([]models.OpportunityRecord{
		{OpportunityID: "O1", ContactCompany: "Globex Corporation", Title: "Website", Status: models.StatusNewLead},
	})

	out, err := e.ProcessEvent(context.Background(), event("e1", "jane@globex.com", "Redesign", "Let's talk", base), reg, nil)
	require.NoError(t, err)
	require.Len(t, out, 1)

	r := out[0]
	assert.Equal(t, "O1", r.Result.OpportunityID)
	assert.Equal(t, models.TierDeterministic, r.Result.Tier)
	assert.Equal(t, 1.0, r.Result.Confidence)
	assert.Nil(t, r.Created)
	assert.Equal(t, models.KindFollowUp, r.Interaction.Kind)
	assert.Equal(t, "O1", r.Interaction.OpportunityID)
	assert.Equal(t, 0, sc.calls["match"])
	assert.Equal(t, 1, reg.Len())
}

func TestProcessEvent_ScoreShortCircuitSkipsOracleMatch(t *testing.T) {
	sc := newScripted()
	sc.extract = func(string) (string, error) {
		return extracted(t, models.OpportunityCandidate{Title: "Portal", ContactCompany: "Globex"}), nil
	}
	e := newEngine(t, sc, func(c *Config) { c.Weights.CompanyMention = 600 })
	reg := registry.FromRecords([]models.OpportunityRecord{
		{OpportunityID: "O1", ContactCompany: "Initech", Title: "Globex portal rebuild", Status: models.StatusNewLead},
	})

	out, err := e.ProcessEvent(context.Background(), event("e1", "jane@globex.com", "Portal", "", base), reg, nil)
	require.NoError(t, err)
	require.Len(t, out, 1)

	assert.Equal(t, "O1", out[0].Result.OpportunityID)
	assert.Equal(t, models.TierScore, out[0].Result.Tier)
	assert.InDelta(t, 0.61, out[0].Result.Confidence, 1e-9)
	assert.Equal(t, 0, sc.calls["match"])
}

func TestProcessEvent_EmptyRegistryCreatesWithEventTime(t *testing.T) {
	sc := newScripted()
	sc.extract = func(string) (string, error) {
		return extracted(t, models.OpportunityCandidate{Title: "Cloud migration", Summary: "Move ERP", ActionItem: "Call back"}), nil
	}
	e := newEngine(t, sc)
	reg := registry.New()

	ev := event("e1", "Bob@Example.org", "Question", "We want to move to the cloud", base)
	out, err := e.ProcessEvent(context.Background(), ev, reg, nil)
	require.NoError(t, err)
	require.Len(t, out, 1)

	r := out[0]
	require.NotNil(t, r.Created)
	assert.Equal(t, "N1", r.Created.OpportunityID)
	assert.Equal(t, models.CompanyUnknown, r.Created.ContactCompany)
	assert.Equal(t, "bob@example.org", r.Created.ContactEmail)
	assert.Equal(t, models.StatusNewLead, r.Created.Status)
	assert.True(t, r.Created.FirstMentionAt.Equal(ev.ReceivedAt))
	assert.Equal(t, "thread-e1", r.Created.ThreadID)
	assert.Equal(t, models.TierCreate, r.Result.Tier)
	assert.Equal(t, models.KindNewLead, r.Interaction.Kind)
	assert.Equal(t, "Call back", r.Interaction.ActionItem)
	assert.Equal(t, models.ChannelEmail, r.Interaction.Channel)

	assert.Equal(t, 0, sc.calls["match"])
	assert.Equal(t, 0, sc.calls["earliest"])
	assert.True(t, reg.Contains("N1"))
}

func TestProcessEvent_LowConfidenceOracleMatchCreates(t *testing.T) {
	sc := newScripted()
	sc.extract = func(string) (string, error) {
		return extracted(t, models.OpportunityCandidate{Title: "Cloud migration", ContactCompany: "Globex"}), nil
	}
	sc.match = func(string) (string, error) {
		return `{"match": true, "opportunity_id": "O1", "confidence": 0.3, "reason": "same topic"}`, nil
	}
	e := newEngine(t, sc)
	reg := registry.FromRecords([]models.OpportunityRecord{
		{OpportunityID: "O1", ContactCompany: "Initech", Title: "Cloud migration", Status: models.StatusNewLead},
	})

	out, err := e.ProcessEvent(context.Background(), event("e1", "jane@globex.com", "Cloud", "", base), reg, nil)
	require.NoError(t, err)
	require.Len(t, out, 1)

	r := out[0]
	assert.Equal(t, 1, sc.calls["match"])
	assert.Equal(t, models.TierCreate, r.Result.Tier)
	assert.Contains(t, r.Result.Rationale, "rejected")
	require.NotNil(t, r.Created)
	assert.Equal(t, "N1", r.Created.OpportunityID)
	assert.Equal(t, 2, reg.Len())
}

func TestProcessEvent_ConfidentOracleMatch(t *testing.T) {
	sc := newScripted()
	sc.extract = func(string) (string, error) {
		return extracted(t, models.OpportunityCandidate{Title: "Cloud migration", ContactCompany: "Globex"}), nil
	}
	sc.match = func(prompt string) (string, error) {
		if !strings.Contains(prompt, "ID: O1") {
			return "", errors.New("O1 not offered")
		}
		return `{"match": true, "opportunity_id": "O1", "confidence": 0.8, "reason": "same migration"}`, nil
	}
	e := newEngine(t, sc)
	reg := registry.FromRecords([]models.OpportunityRecord{
		{OpportunityID: "O1", ContactCompany: "Initech", Title: "Cloud migration", Status: models.StatusNewLead},
	})

	out, err := e.ProcessEvent(context.Background(), event("e1", "jane@globex.com", "Cloud", "", base), reg, nil)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "O1", out[0].Result.OpportunityID)
	assert.Equal(t, models.TierOracle, out[0].Result.Tier)
	assert.Equal(t, "same migration", out[0].Result.Rationale)
	assert.Nil(t, out[0].Created)
}

func TestProcessEvent_OracleFailureCreatesAndContinues(t *testing.T) {
	sc := newScripted()
	sc.extract = func(string) (string, error) {
		return extracted(t, models.OpportunityCandidate{Title: "Cloud migration", ContactCompany: "Globex"}), nil
	}
	sc.match = func(string) (string, error) { return "", errors.New("deadline exceeded") }
	e := newEngine(t, sc)
	reg := registry.FromRecords([]models.OpportunityRecord{
		{OpportunityID: "O1", ContactCompany: "Initech", Title: "Cloud migration", Status: models.StatusNewLead},
	})

	out, err := e.ProcessEvent(context.Background(), event("e1", "jane@globex.com", "Cloud", "", base), reg, nil)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, models.TierCreate, out[0].Result.Tier)
	assert.NotNil(t, out[0].Created)
}

func TestProcessEvent_ExtractionFailureUsesGenericCandidate(t *testing.T) {
	sc := newScripted()
	sc.extract = func(string) (string, error) { return "Sorry, I cannot help with that.", nil }
	e := newEngine(t, sc)
	reg := registry.New()

	ev := event("e1", "ann@example.org", "Lunch?", "Are you free on Friday?", base)
	ev.SenderDisplayName = "Ann"
	out, err := e.ProcessEvent(context.Background(), ev, reg, nil)
	require.NoError(t, err)
	require.Len(t, out, 1)

	r := out[0]
	require.NotNil(t, r.Created)
	assert.Equal(t, models.StatusGeneralCommunication, r.Created.Status)
	assert.Equal(t, "Lunch?", r.Created.Title)
	assert.Equal(t, "Ann", r.Created.ContactName)
	assert.Equal(t, models.KindGeneralCommunication, r.Interaction.Kind)
	assert.Equal(t, models.ActionReview, r.Interaction.ActionItem)
}

func TestProcessEvent_GenericCandidateMatchedLogsGeneralCommunication(t *testing.T) {
	sc := newScripted()
	sc.match = func(string) (string, error) {
		return `{"match": true, "opportunity_id": "O1", "confidence": 0.9}`, nil
	}
	e := newEngine(t, sc)
	reg := registry.FromRecords([]models.OpportunityRecord{
		{OpportunityID: "O1", ContactCompany: "Initech", Title: "Website", Status: "Proposal Sent"},
	})

	out, err := e.ProcessEvent(context.Background(), event("e1", "bob@initech.com", "Thanks", "Got it", base), reg, nil)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "O1", out[0].Result.OpportunityID)
	assert.Equal(t, models.KindGeneralCommunication, out[0].Interaction.Kind)
}

func TestProcessEvent_MultipleCandidatesEachGetInteraction(t *testing.T) {
	sc := newScripted()
	sc.extract = func(string) (string, error) {
		return extracted(t,
			models.OpportunityCandidate{Title: "Mobile app", ContactCompany: "Globex"},
			models.OpportunityCandidate{Title: "Staff training", ContactCompany: "Hooli"},
		), nil
	}
	e := newEngine(t, sc)
	reg := registry.New()

	out, err := e.ProcessEvent(context.Background(), event("e1", "jane@globex.com", "Two things", "", base), reg, nil)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "N1", out[0].Created.OpportunityID)
	assert.Equal(t, "N2", out[1].Created.OpportunityID)
	assert.Equal(t, 2, reg.Len())
}

func TestProcessEvent_FreshIDsSkipRegistryCollisions(t *testing.T) {
	sc := newScripted()
	sc.extract = func(string) (string, error) {
		return extracted(t, models.OpportunityCandidate{Title: "Mobile app", ContactCompany: "Globex"}), nil
	}
	e := newEngine(t, sc, func(c *Config) { c.NewID = sequentialIDs("O1", "", "N9") })
	reg := registry.FromRecords([]models.OpportunityRecord{
		{OpportunityID: "O1", ContactCompany: "Initech", Title: "Payroll", Status: models.StatusNewLead},
	})

	out, err := e.ProcessEvent(context.Background(), event("e1", "jane@globex.com", "App", "", base), reg, nil)
	require.NoError(t, err)
	require.NotNil(t, out[0].Created)
	assert.Equal(t, "N9", out[0].Created.OpportunityID)
}

func TestProcessEvent_BackdatesToEarliestMention(t *testing.T) {
	sc := newScripted()
	sc.extract = func(string) (string, error) {
		return extracted(t, models.OpportunityCandidate{Title: "Warehouse upgrade", ContactCompany: "Globex", ContactEmail: "jane@globex.com"}), nil
	}
	sc.earliest = func(prompt string) (string, error) {
		return `{"first_mention_email_number": 1, "confidence": 0.9, "reason": "first ask"}`, nil
	}
	e := newEngine(t, sc)

	history := []models.CommunicationEvent{
		event("h2", "jane@globex.com", "Warehouse follow up", "", base.Add(-24*time.Hour)),
		event("h1", "jane@globex.com", "Warehouse upgrade idea", "", base.Add(-30*24*time.Hour)),
		event("future", "jane@globex.com", "Warehouse again", "", base.Add(time.Hour)),
	}

	out, err := e.ProcessEvent(context.Background(), event("e1", "jane@globex.com", "Warehouse", "", base), registry.New(), history)
	require.NoError(t, err)
	require.NotNil(t, out[0].Created)
	assert.True(t, out[0].Created.FirstMentionAt.Equal(base.Add(-30*24*time.Hour)))
	assert.Equal(t, "first mentioned in h1", out[0].Interaction.Note)
	assert.True(t, out[0].Interaction.OccurredAt.Equal(base))
	assert.Equal(t, 1, sc.calls["earliest"])
}

func TestProcessEvent_LowConfidenceEarliestMentionKeepsEventTime(t *testing.T) {
	sc := newScripted()
	sc.extract = func(string) (string, error) {
		return extracted(t, models.OpportunityCandidate{Title: "Warehouse upgrade", ContactCompany: "Globex", ContactEmail: "jane@globex.com"}), nil
	}
	sc.earliest = func(string) (string, error) {
		return `{"first_mention_email_number": 1, "confidence": 0.5}`, nil
	}
	e := newEngine(t, sc)

	history := []models.CommunicationEvent{
		event("h1", "jane@globex.com", "Warehouse upgrade idea", "", base.Add(-48*time.Hour)),
	}
	out, err := e.ProcessEvent(context.Background(), event("e1", "jane@globex.com", "Warehouse", "", base), registry.New(), history)
	require.NoError(t, err)
	require.NotNil(t, out[0].Created)
	assert.True(t, out[0].Created.FirstMentionAt.Equal(base))
	assert.Empty(t, out[0].Interaction.Note)
}

func TestProcessBatch_ReadYourWrites(t *testing.T) {
	sc := newScripted()
	sc.extract = func(string) (string, error) {
		return extracted(t, models.OpportunityCandidate{Title: "Website Redesign", ContactCompany: "Globex"}), nil
	}
	e := newEngine(t, sc)
	reg := registry.New()

	events := []models.CommunicationEvent{
		event("e2", "jane@globex.com", "Re: Website", "", base.Add(time.Hour)),
		event("e1", "jane@globex.com", "Website", "", base),
	}
	res, err := e.ProcessBatch(context.Background(), reg, nil, events)
	require.NoError(t, err)

	require.Len(t, res.Opportunities, 1)
	require.Len(t, res.Interactions, 2)
	assert.Equal(t, "e1", res.Processed[0].EventID)
	assert.Equal(t, "e2", res.Processed[1].EventID)
	assert.Equal(t, models.KindNewLead, res.Interactions[0].Kind)
	assert.Equal(t, models.KindFollowUp, res.Interactions[1].Kind)
	assert.Equal(t, res.Opportunities[0].OpportunityID, res.Interactions[1].OpportunityID)
	assert.Equal(t, models.TierDeterministic, res.Resolutions[1].Result.Tier)
}

func TestProcessBatch_SkipsInvalidEvents(t *testing.T) {
	e := newEngine(t, newScripted())

	events := []models.CommunicationEvent{
		{EventID: "", ReceivedAt: base},
		event("e1", "ann@example.org", "Hello", "", base),
	}
	res, err := e.ProcessBatch(context.Background(), registry.New(), nil, events)
	require.NoError(t, err)
	require.Len(t, res.Processed, 1)
	assert.Equal(t, "e1", res.Processed[0].EventID)
}

func TestProcessBatch_StopsOnCancelledContext(t *testing.T) {
	sc := newScripted()
	ctx, cancel := context.WithCancel(context.Background())
	sc.extract = func(string) (string, error) {
		cancel()
		return "", context.Canceled
	}
	e := newEngine(t, sc)

	res, err := e.ProcessBatch(ctx, registry.New(), nil, []models.CommunicationEvent{
		event("e1", "ann@example.org", "Hello", "", base),
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, res)
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	cfg.ConfidenceThresholdMatch = 1.5
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Weights.CompanyExact = 0
	assert.Error(t, cfg.Validate())
}
