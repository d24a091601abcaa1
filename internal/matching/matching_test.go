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

package matching

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bcem/leadtracker/internal/models"
	"github.com/bcem/leadtracker/internal/registry"
)

func newRegistry(t *testing.T, entries ...registry.Entry) *registry.Registry {
	t.Helper()
	r := registry.New()
	for _, e := range entries {
		require.True(t, r.Add(e), "add %s", e.ID)
	}
	return r
}

func TestCompanyKey(t *testing.T) {
	for _, unknown := range []string{"", "   ", "NA", "na", " N/A "} {
		_, ok := CompanyKey(unknown)
		assert.False(t, ok, "CompanyKey(%q)", unknown)
	}
	key, ok := CompanyKey("  Globex CORP ")
	assert.True(t, ok)
	assert.Equal(t, "globex corp", key)
}

func TestRelate(t *testing.T) {
	assert.Equal(t, Exact, Relate("ibm", "ibm"))
	assert.Equal(t, Partial, Relate("globex corp", "globex"))
	assert.Equal(t, Partial, Relate("acme", "acme holdings"))
	// Containment needs both sides at MinPartialLen runes.
	assert.Equal(t, Unrelated, Relate("abc", "abcd"))
	assert.Equal(t, Unrelated, Relate("globex", "initech"))
	assert.Equal(t, Unrelated, Relate("", "globex"))
}

func TestMatchCompany_PartialContainment(t *testing.T) {
	reg := newRegistry(t, registry.Entry{ID: "O1", Company: "Globex", Title: "Website Redesign"})

	e, rel := MatchCompany("Globex Corp", reg)
	require.NotNil(t, e)
	assert.Equal(t, "O1", e.ID)
	assert.Equal(t, Partial, rel)
}

func TestMatchCompany_FirstQualifyingEntryWins(t *testing.T) {
	reg := newRegistry(t,
		registry.Entry{ID: "O1", Company: "Acme Holdings"},
		registry.Entry{ID: "O2", Company: "Acme"},
	)

	e, rel := MatchCompany("ACME", reg)
	require.NotNil(t, e)
	assert.Equal(t, "O1", e.ID)
	assert.Equal(t, Partial, rel)
}

func TestMatchCompany_UnknownNeverMatches(t *testing.T) {
	reg := newRegistry(t,
		registry.Entry{ID: "O1", Company: "NA"},
		registry.Entry{ID: "O2", Company: ""},
	)

	for _, company := range []string{"NA", "", "na"} {
		e, _ := MatchCompany(company, reg)
		assert.Nil(t, e, "company %q", company)
	}

	// A real company never matches an unlabelled entry either.
	e, _ := MatchCompany("Nash Industries", reg)
	assert.Nil(t, e)
}

func TestScorer_ExactCompany(t *testing.T) {
	reg := newRegistry(t, registry.Entry{ID: "O1", Company: "Globex", Title: "Website Redesign"})
	s := NewScorer(DefaultWeights(), nil)

	got := s.Score(models.OpportunityCandidate{
		ContactCompany: "Globex",
		ContactEmail:   "jane@globex.com",
		Title:          "Website Redesign Update",
	}, reg.Get("O1"))

	// exact 1000 + company mention 200 + 2 keywords 20 + project term 30
	assert.Equal(t, 1250, got)
}

func TestScorer_PartialCompany(t *testing.T) {
	reg := newRegistry(t, registry.Entry{ID: "O1", Company: "Globex", Title: "Website Redesign"})
	s := NewScorer(DefaultWeights(), nil)

	got := s.Score(models.OpportunityCandidate{
		ContactCompany: "Globex Corp",
		Title:          "Website Redesign Update",
	}, reg.Get("O1"))

	// partial 500 + 2 keywords 20 + project term 30
	assert.Equal(t, 550, got)
}

func TestScorer_DomainMention(t *testing.T) {
	reg := newRegistry(t, registry.Entry{
		ID:      "O1",
		Company: "Initech",
		Summary: "Follow up with bob@initech.com",
	})
	s := NewScorer(DefaultWeights(), nil)

	got := s.Score(models.OpportunityCandidate{
		ContactCompany: "NA",
		ContactEmail:   "peter@initech.com",
		Title:          "hello",
	}, reg.Get("O1"))

	assert.Equal(t, 100, got)
}

func TestScorer_CustomWeights(t *testing.T) {
	reg := newRegistry(t, registry.Entry{ID: "O1", Title: "Cloud training"})
	s := NewScorer(Weights{Keyword: 1, ProjectType: 7}, []string{"Training"})

	got := s.Score(models.OpportunityCandidate{Title: "Cloud training plan"}, reg.Get("O1"))

	// two shared keywords at 1 point + one project term at 7
	assert.Equal(t, 9, got)
}

func TestScorer_RankOrdersByScoreThenRecency(t *testing.T) {
	reg := newRegistry(t,
		registry.Entry{ID: "O1", Company: "Umbrella"},
		registry.Entry{ID: "O2", Company: "Hooli", Title: "Mobile app"},
		registry.Entry{ID: "O3", Company: "Vandelay"},
		registry.Entry{ID: "O4", Company: "Soylent"},
	)
	s := NewScorer(DefaultWeights(), nil)

	ranked := s.Rank(models.OpportunityCandidate{Title: "Mobile app quote"}, reg, 3)

	require.Len(t, ranked, 3)
	assert.Equal(t, "O2", ranked[0].Entry.ID)
	assert.Greater(t, ranked[0].Score, 0)
	// zero-score ties: most recently added first
	assert.Equal(t, "O4", ranked[1].Entry.ID)
	assert.Equal(t, "O3", ranked[2].Entry.ID)
}

func TestScorer_RankEmptyRegistry(t *testing.T) {
	s := NewScorer(DefaultWeights(), nil)
	assert.Empty(t, s.Rank(models.OpportunityCandidate{Title: "x"}, registry.New(), 30))
	assert.Empty(t, s.Rank(models.OpportunityCandidate{Title: "x"}, nil, 30))
}

func TestHistoryFilter_Relevant(t *testing.T) {
	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	trigger := models.CommunicationEvent{EventID: "now", ReceivedAt: base, SenderAddress: "jane@globex.com"}
	history := []models.CommunicationEvent{
		{EventID: "a", ReceivedAt: base.Add(-72 * time.Hour), SenderAddress: "jane@globex.com", Subject: "hi"},
		{EventID: "b", ReceivedAt: base.Add(-48 * time.Hour), SenderAddress: "x@other.com", Subject: "Globex intro"},
		{EventID: "c", ReceivedAt: base.Add(-24 * time.Hour), SenderAddress: "y@other.com", Subject: "Portal redesign scope"},
		{EventID: "d", ReceivedAt: base.Add(-12 * time.Hour), SenderAddress: "z@other.com", Subject: "Lunch"},
		{EventID: "later", ReceivedAt: base.Add(time.Hour), SenderAddress: "jane@globex.com"},
		{EventID: "now", ReceivedAt: base, SenderAddress: "jane@globex.com"},
	}
	c := models.OpportunityCandidate{
		ContactCompany: "Globex",
		ContactEmail:   "jane@globex.com",
		Title:          "Portal redesign",
	}

	got := HistoryFilter{ScanLimit: 50, MinKeywordOverlap: 1}.Relevant(c, trigger, history)

	ids := make([]string, 0, len(got))
	for _, ev := range got {
		ids = append(ids, ev.EventID)
	}
	assert.Equal(t, []string{"c", "b", "a"}, ids)
}

func TestHistoryFilter_ScanLimitKeepsMostRecent(t *testing.T) {
	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	trigger := models.CommunicationEvent{EventID: "now", ReceivedAt: base}
	history := []models.CommunicationEvent{
		{EventID: "old", ReceivedAt: base.Add(-48 * time.Hour), SenderAddress: "jane@globex.com"},
		{EventID: "new", ReceivedAt: base.Add(-time.Hour), SenderAddress: "jane@globex.com"},
	}
	c := models.OpportunityCandidate{ContactEmail: "jane@globex.com"}

	got := HistoryFilter{ScanLimit: 1}.Relevant(c, trigger, history)

	require.Len(t, got, 1)
	assert.Equal(t, "new", got[0].EventID)
}

func TestOldestFirst(t *testing.T) {
	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	events := []models.CommunicationEvent{
		{EventID: "3", ReceivedAt: base.Add(3 * time.Hour)},
		{EventID: "1", ReceivedAt: base.Add(1 * time.Hour)},
		{EventID: "2", ReceivedAt: base.Add(2 * time.Hour)},
	}

	got := OldestFirst(events, 2)

	require.Len(t, got, 2)
	assert.Equal(t, "1", got[0].EventID)
	assert.Equal(t, "2", got[1].EventID)
	assert.Equal(t, "3", events[0].EventID, "input must not be reordered")
}
