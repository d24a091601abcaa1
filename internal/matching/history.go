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
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/bcem/leadtracker/internal/models"
	"github.com/bcem/leadtracker/internal/textnorm"
)

// historyKeywordMinLen is the minimum rune length of a title keyword used
// for history relevance; shorter words are too common to signal a topic.
const historyKeywordMinLen = 4

// HistoryFilter selects the historical messages that may discuss the same
// matter as a candidate.
type HistoryFilter struct {
	// ScanLimit bounds how many of the most recent messages are examined.
	ScanLimit int
	// MinKeywordOverlap is how many title keywords a message must share to
	// count as relevant on keywords alone.
	MinKeywordOverlap int
}

// Relevant returns the messages in history that were received no later
// than before, are not the triggering event itself, and either come from
// the candidate's address, mention the candidate's company, or share
// enough title keywords. The result is ordered newest first.
func (f HistoryFilter) Relevant(c models.OpportunityCandidate, trigger models.CommunicationEvent, history []models.CommunicationEvent) []models.CommunicationEvent {
	if len(history) == 0 {
		return nil
	}

	recent := make([]models.CommunicationEvent, 0, len(history))
	for _, ev := range history {
		if ev.EventID == trigger.EventID || ev.ReceivedAt.After(trigger.ReceivedAt) {
			continue
		}
		recent = append(recent, ev)
	}
	sort.SliceStable(recent, func(i, j int) bool {
		return recent[i].ReceivedAt.After(recent[j].ReceivedAt)
	})
	if f.ScanLimit > 0 && len(recent) > f.ScanLimit {
		recent = recent[:f.ScanLimit]
	}

	companyKey, hasCompany := CompanyKey(c.ContactCompany)
	sender := textnorm.Lower(c.ContactEmail)
	var titleWords []string
	for _, kw := range textnorm.Keywords(c.Title) {
		if utf8.RuneCountInString(kw) >= historyKeywordMinLen {
			titleWords = append(titleWords, kw)
		}
	}
	minOverlap := f.MinKeywordOverlap
	if minOverlap <= 0 {
		minOverlap = 1
	}

	var out []models.CommunicationEvent
	for _, ev := range recent {
		content := textnorm.Lower(ev.Subject + " " + ev.BodyText)

		switch {
		case sender != "" && sender == textnorm.Lower(ev.SenderAddress):
		case hasCompany && strings.Contains(content, companyKey):
		case len(titleWords) > 0 && keywordOverlap(titleWords, content) >= minOverlap:
		default:
			continue
		}
		out = append(out, ev)
	}
	return out
}

func keywordOverlap(words []string, content string) int {
	set := textnorm.KeywordSet(content)
	n := 0
	for _, w := range words {
		if _, ok := set[w]; ok {
			n++
		}
	}
	return n
}

// OldestFirst returns a copy of events sorted by receipt time ascending,
// truncated to limit when limit > 0.
func OldestFirst(events []models.CommunicationEvent, limit int) []models.CommunicationEvent {
	out := make([]models.CommunicationEvent, len(events))
	copy(out, events)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ReceivedAt.Before(out[j].ReceivedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Latest returns the first limit events of an already newest-first slice.
func Latest(events []models.CommunicationEvent, limit int) []models.CommunicationEvent {
	if limit > 0 && len(events) > limit {
		return events[:limit]
	}
	return events
}
