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

package models

import (
	"strings"
	"time"

	"github.com/bcem/leadtracker/internal/textnorm"
)

// Opportunity statuses assigned by the engine. Any other status string is
// treated as CRM-assigned and preserved as-is.
const (
	StatusNewLead              = "New Lead"
	StatusGeneralCommunication = "General Communication"
)

// Interaction kinds.
const (
	KindNewLead              = "New Lead"
	KindFollowUp             = "Follow-up"
	KindGeneralCommunication = "General Communication"
)

const (
	// ChannelEmail is the only channel the engine logs.
	ChannelEmail = "Email"

	// CompanyUnknown is written when no company could be extracted.
	CompanyUnknown = "NA"

	// SummaryLimit bounds interaction and generic-candidate summaries, in runes.
	SummaryLimit = 500

	// ActionReview is the action item attached to general communication.
	ActionReview = "Review"
)

// OpportunityCandidate is a provisional opportunity extracted from one
// event. It only lives while that event is being resolved.
type OpportunityCandidate struct {
	Title          string `json:"title"`
	Summary        string `json:"summary"`
	ActionItem     string `json:"action_item"`
	ContactName    string `json:"contact_name"`
	ContactCompany string `json:"contact_company"`
	ContactEmail   string `json:"contact_email"`

	// Generic marks the fallback candidate built from an event that yielded
	// no extracted opportunities.
	Generic bool `json:"-"`
}

// WithDefaults fills empty contact and title fields from the triggering event.
func (c OpportunityCandidate) WithDefaults(ev CommunicationEvent) OpportunityCandidate {
	if strings.TrimSpace(c.ContactEmail) == "" {
		c.ContactEmail = ev.SenderAddress
	}
	c.ContactEmail = strings.ToLower(strings.TrimSpace(c.ContactEmail))
	if strings.TrimSpace(c.ContactName) == "" {
		c.ContactName = ev.SenderName()
	}
	if strings.TrimSpace(c.ContactCompany) == "" {
		c.ContactCompany = CompanyUnknown
	}
	if strings.TrimSpace(c.Title) == "" {
		c.Title = ev.Subject
	}
	return c
}

// GenericCandidate builds the candidate used when extraction finds nothing.
func GenericCandidate(ev CommunicationEvent) OpportunityCandidate {
	return OpportunityCandidate{
		Title:          ev.Subject,
		Summary:        textnorm.Truncate(ev.BodyText, SummaryLimit),
		ActionItem:     ActionReview,
		ContactName:    ev.SenderName(),
		ContactCompany: CompanyUnknown,
		ContactEmail:   strings.ToLower(strings.TrimSpace(ev.SenderAddress)),
		Generic:        true,
	}
}

// OpportunityRecord is a resolved business opportunity.
type OpportunityRecord struct {
	OpportunityID  string    `json:"opportunity_id"`
	ContactName    string    `json:"contact_name"`
	ContactCompany string    `json:"contact_company"`
	ContactEmail   string    `json:"contact_email"`
	Title          string    `json:"title"`
	Status         string    `json:"status"`
	FirstMentionAt time.Time `json:"first_mention_at"`
	ThreadID       string    `json:"thread_id,omitempty"`
	Summary        string    `json:"summary"`
}

// Validate checks the fields the registry and stores rely on.
func (o OpportunityRecord) Validate() error {
	if strings.TrimSpace(o.OpportunityID) == "" {
		return &ValidationError{Record: "OpportunityRecord", Field: "opportunity_id", Reason: "required"}
	}
	if strings.TrimSpace(o.Status) == "" {
		return &ValidationError{Record: "OpportunityRecord", Field: "status", Reason: "required"}
	}
	return nil
}

// InteractionRecord is one logged touch against an opportunity.
type InteractionRecord struct {
	OpportunityID    string    `json:"opportunity_id"`
	EventID          string    `json:"event_id"`
	OccurredAt       time.Time `json:"occurred_at"`
	Kind             string    `json:"kind"`
	Channel          string    `json:"channel"`
	ActorDisplayName string    `json:"actor_display_name"`
	Summary          string    `json:"summary"`
	ActionItem       string    `json:"action_item"`
	Note             string    `json:"note,omitempty"`
}

// NewInteraction builds the interaction logged for a candidate of ev.
func NewInteraction(opportunityID, kind string, ev CommunicationEvent, c OpportunityCandidate) InteractionRecord {
	action := strings.TrimSpace(c.ActionItem)
	if action == "" {
		action = "N/A"
	}
	summary := c.Summary
	if strings.TrimSpace(summary) == "" {
		summary = "N/A"
	}
	return InteractionRecord{
		OpportunityID:    opportunityID,
		EventID:          ev.EventID,
		OccurredAt:       ev.ReceivedAt,
		Kind:             kind,
		Channel:          ChannelEmail,
		ActorDisplayName: ev.SenderName(),
		Summary:          textnorm.Truncate(summary, SummaryLimit),
		ActionItem:       action,
	}
}

// Tier names the policy stage that produced a MatchResult.
type Tier string

const (
	TierDeterministic Tier = "deterministic"
	TierScore         Tier = "score"
	TierOracle        Tier = "oracle"
	TierCreate        Tier = "create"
)

// MatchResult is the policy's verdict for one candidate. An empty
// OpportunityID means no existing opportunity matched.
type MatchResult struct {
	OpportunityID string  `json:"opportunity_id,omitempty"`
	Confidence    float64 `json:"confidence"`
	Rationale     string  `json:"rationale"`
	Tier          Tier    `json:"tier"`
}

// Matched reports whether the result points at an existing opportunity.
func (m MatchResult) Matched() bool {
	return m.OpportunityID != ""
}
