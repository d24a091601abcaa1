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

// Package matching holds the cheap, deterministic parts of opportunity
// resolution: exact/partial company matching, the weighted relevance
// scorer that ranks registry entries before the oracle is consulted, and
// the filter that picks historical messages relevant to a candidate.
package matching

import (
	"strings"
	"unicode/utf8"

	"github.com/bcem/leadtracker/internal/registry"
	"github.com/bcem/leadtracker/internal/textnorm"
)

// MinPartialLen is the minimum length, in runes, both company names need
// before substring containment counts as a match.
const MinPartialLen = 4

// CompanyKey normalises a company name and reports whether it may take part
// in matching. Empty names and the "NA" placeholder never match, otherwise
// every unlabelled opportunity would collapse into one.
func CompanyKey(company string) (string, bool) {
	key := textnorm.Lower(company)
	switch key {
	case "", "na", "n/a":
		return "", false
	}
	return key, true
}

// Relation describes how two company keys relate.
type Relation int

const (
	Unrelated Relation = iota
	Partial
	Exact
)

// Relate compares two normalised company keys.
func Relate(a, b string) Relation {
	if a == "" || b == "" {
		return Unrelated
	}
	if a == b {
		return Exact
	}
	if utf8.RuneCountInString(a) < MinPartialLen || utf8.RuneCountInString(b) < MinPartialLen {
		return Unrelated
	}
	if strings.Contains(a, b) || strings.Contains(b, a) {
		return Partial
	}
	return Unrelated
}

// MatchCompany returns the first registry entry, in registry order, whose
// company equals company or contains / is contained by it. It returns nil
// when company is empty or "NA", or nothing qualifies.
func MatchCompany(company string, reg *registry.Registry) (*registry.Entry, Relation) {
	key, ok := CompanyKey(company)
	if !ok || reg == nil {
		return nil, Unrelated
	}
	for _, e := range reg.Entries() {
		other, ok := CompanyKey(e.Company)
		if !ok {
			continue
		}
		if rel := Relate(key, other); rel != Unrelated {
			return e, rel
		}
	}
	return nil, Unrelated
}
