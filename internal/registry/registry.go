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

// Package registry holds the in-run working set of known opportunities.
// It is seeded from the opportunity store at the start of a cycle and grows
// as the resolution policy creates opportunities, so later events in the
// same batch can match them.
package registry

import (
	"log/slog"
	"strings"

	"github.com/bcem/leadtracker/internal/models"
	"github.com/bcem/leadtracker/internal/textnorm"
)

// Entry is the registry's view of one opportunity: the fields matching
// reads, plus their normalised forms.
type Entry struct {
	ID      string
	Company string
	Title   string
	Summary string

	// Seq is the insertion position; higher means more recently added.
	Seq int

	companyKey string
	text       string
	keywords   map[string]struct{}
}

// CompanyKey is the lower-cased, trimmed company name.
func (e *Entry) CompanyKey() string { return e.companyKey }

// Text is the lower-cased title, summary and company joined together.
func (e *Entry) Text() string { return e.text }

// HasKeyword reports whether kw is one of the entry's keywords.
func (e *Entry) HasKeyword(kw string) bool {
	_, ok := e.keywords[kw]
	return ok
}

// EntryFromRecord builds the registry summary of an opportunity record.
func EntryFromRecord(r models.OpportunityRecord) Entry {
	return Entry{
		ID:      strings.TrimSpace(r.OpportunityID),
		Company: r.ContactCompany,
		Title:   r.Title,
		Summary: r.Summary,
	}
}

// Registry is an append-only ordered collection of entries. It is not safe
// for concurrent use; a cycle owns its registry exclusively.
type Registry struct {
	entries []*Entry
	byID    map[string]*Entry
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{byID: make(map[string]*Entry)}
}

// FromRecords seeds a registry from persisted opportunities, preserving
// their order. Records without an id or with a repeated id are logged and
// skipped.
func FromRecords(records []models.OpportunityRecord) *Registry {
	r := New()
	for i, rec := range records {
		if !r.Add(EntryFromRecord(rec)) {
			slog.Warn("skipping malformed registry record",
				"position", i,
				"opportunity_id", rec.OpportunityID,
			)
		}
	}
	return r
}

// Add appends e and reports whether it was accepted. Entries without an id
// or whose id is already present are rejected.
func (r *Registry) Add(e Entry) bool {
	e.ID = strings.TrimSpace(e.ID)
	if e.ID == "" {
		return false
	}
	if _, dup := r.byID[e.ID]; dup {
		return false
	}

	e.Seq = len(r.entries)
	e.companyKey = textnorm.Lower(e.Company)
	e.text = textnorm.Lower(e.Title + " " + e.Summary + " " + e.Company)
	e.keywords = textnorm.KeywordSet(e.text)

	entry := &e
	r.entries = append(r.entries, entry)
	r.byID[e.ID] = entry
	return true
}

// Entries returns the entries in insertion order. Callers must not modify
// the returned slice.
func (r *Registry) Entries() []*Entry {
	return r.entries
}

// Get returns the entry with the given id, or nil.
func (r *Registry) Get(id string) *Entry {
	return r.byID[strings.TrimSpace(id)]
}

// Contains reports whether id is registered.
func (r *Registry) Contains(id string) bool {
	return r.Get(id) != nil
}

// Len returns the number of entries.
func (r *Registry) Len() int {
	return len(r.entries)
}
