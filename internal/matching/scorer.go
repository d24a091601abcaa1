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
	"log/slog"
	"sort"
	"strings"

	"github.com/bcem/leadtracker/internal/models"
	"github.com/bcem/leadtracker/internal/registry"
	"github.com/bcem/leadtracker/internal/textnorm"
)

// Weights are the points each relevance signal contributes. Signals are
// independent and additive.
type Weights struct {
	CompanyExact   int `yaml:"company_exact"`
	CompanyPartial int `yaml:"company_partial"`
	CompanyMention int `yaml:"company_mention"`
	DomainMention  int `yaml:"domain_mention"`
	Keyword        int `yaml:"keyword"`
	ProjectType    int `yaml:"project_type"`
}

// DefaultWeights returns the production weights.
func DefaultWeights() Weights {
	return Weights{
		CompanyExact:   1000,
		CompanyPartial: 500,
		CompanyMention: 200,
		DomainMention:  100,
		Keyword:        10,
		ProjectType:    30,
	}
}

// DefaultProjectTerms is the project-type vocabulary.
var DefaultProjectTerms = []string{
	"mobile app", "website", "cloud", "training", "development", "redesign", "upgrade",
}

// Scored pairs a registry entry with its relevance score.
type Scored struct {
	Entry *registry.Entry
	Score int
}

// Scorer ranks registry entries against a candidate. It is a pre-filter for
// the oracle, not a verdict.
type Scorer struct {
	weights      Weights
	projectTerms []string
}

// NewScorer creates a scorer. A nil projectTerms uses DefaultProjectTerms.
func NewScorer(w Weights, projectTerms []string) *Scorer {
	if projectTerms == nil {
		projectTerms = DefaultProjectTerms
	}
	terms := make([]string, 0, len(projectTerms))
	for _, t := range projectTerms {
		if t = textnorm.Lower(t); t != "" {
			terms = append(terms, t)
		}
	}
	return &Scorer{weights: w, projectTerms: terms}
}

// candidateView is the normalised form of a candidate, computed once per
// ranking.
type candidateView struct {
	companyKey string
	hasCompany bool
	domain     string
	text       string
	keywords   []string
}

func viewOf(c models.OpportunityCandidate) candidateView {
	key, ok := CompanyKey(c.ContactCompany)
	text := textnorm.Lower(c.Title + " " + c.Summary)
	return candidateView{
		companyKey: key,
		hasCompany: ok,
		domain:     textnorm.Domain(c.ContactEmail),
		text:       text,
		keywords:   textnorm.Keywords(text),
	}
}

// Score computes the relevance of e to c.
func (s *Scorer) Score(c models.OpportunityCandidate, e *registry.Entry) int {
	return s.score(viewOf(c), e)
}

func (s *Scorer) score(v candidateView, e *registry.Entry) int {
	total := 0

	if v.hasCompany {
		if other, ok := CompanyKey(e.Company); ok {
			switch Relate(v.companyKey, other) {
			case Exact:
				total += s.weights.CompanyExact
			case Partial:
				total += s.weights.CompanyPartial
			}
		}
		if strings.Contains(e.Text(), v.companyKey) {
			total += s.weights.CompanyMention
		}
	}

	if v.domain != "" && strings.Contains(e.Text(), v.domain) {
		total += s.weights.DomainMention
	}

	for _, kw := range v.keywords {
		if e.HasKeyword(kw) {
			total += s.weights.Keyword
		}
	}

	for _, term := range s.projectTerms {
		if strings.Contains(v.text, term) && strings.Contains(e.Text(), term) {
			total += s.weights.ProjectType
			break
		}
	}

	return total
}

// Rank scores every registry entry against c and returns the top limit
// entries, highest score first. Ties go to the most recently added entry.
// A limit <= 0 returns every entry.
func (s *Scorer) Rank(c models.OpportunityCandidate, reg *registry.Registry, limit int) []Scored {
	if reg == nil || reg.Len() == 0 {
		return nil
	}

	v := viewOf(c)
	ranked := make([]Scored, 0, reg.Len())
	for _, e := range reg.Entries() {
		if e == nil || e.ID == "" {
			slog.Warn("skipping malformed registry entry during scoring")
			continue
		}
		ranked = append(ranked, Scored{Entry: e, Score: s.score(v, e)})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].Entry.Seq > ranked[j].Entry.Seq
	})

	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}
