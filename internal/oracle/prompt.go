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
	"fmt"
	"strings"
	"time"

	"github.com/bcem/leadtracker/internal/models"
	"github.com/bcem/leadtracker/internal/registry"
	"github.com/bcem/leadtracker/internal/textnorm"
)

const (
	entrySummaryPreview = 200
	historyPreview      = 200
	earliestPreview     = 300
	dateLayout          = "2006-01-02"
	missing             = "NA"
)

// oneLine collapses whitespace and cuts s to n runes, marking the cut.
func oneLine(s string, n int) string {
	flat := strings.Join(strings.Fields(s), " ")
	if cut := textnorm.Truncate(flat, n); cut != flat {
		return cut + "..."
	}
	return flat
}

func orMissing(s string) string {
	if s = strings.TrimSpace(s); s == "" {
		return missing
	}
	return s
}

func extractionPrompt(ev models.CommunicationEvent, maxBody int) string {
	var b strings.Builder
	b.WriteString("You are a CRM assistant. List every distinct sales opportunity described in the email below.\n")
	b.WriteString("For each one return: title, summary, action_item, contact_name, contact_company, contact_email.\n\n")
	b.WriteString("A sales opportunity is a potential deal or project: a request for a proposal or quote, a product\n")
	b.WriteString("inquiry with commercial intent, a service request that could bring revenue, or a partnership with\n")
	b.WriteString("business potential. Support requests, administrative notes, social messages and general questions\n")
	b.WriteString("without commercial intent are not opportunities.\n\n")
	b.WriteString("Respond ONLY with a JSON array. Return [] when there is no opportunity.\n\n")
	b.WriteString("EMAIL:\n")
	fmt.Fprintf(&b, "Subject: %s\n", ev.Subject)
	fmt.Fprintf(&b, "Sender: %s\n", ev.SenderAddress)
	fmt.Fprintf(&b, "Body: %s\n", textnorm.Truncate(ev.BodyText, maxBody))
	return b.String()
}

func matchPrompt(c models.OpportunityCandidate, entries []*registry.Entry, history []models.CommunicationEvent) string {
	var b strings.Builder
	b.WriteString("You are de-duplicating CRM opportunities. Decide whether the new email continues one of the\n")
	b.WriteString("existing opportunities listed below.\n\n")
	b.WriteString("Rules:\n")
	b.WriteString("1. Match only when the new email names the same project, product or deal as the existing opportunity.\n")
	b.WriteString("2. The sender alone is never enough: a known contact may be raising a different matter.\n")
	b.WriteString("3. Generic messages (thanks, quick question, status check) never match unless they name the project.\n")
	b.WriteString("4. When in doubt, answer match=false.\n\n")

	b.WriteString("NEW EMAIL:\n")
	fmt.Fprintf(&b, "- Title: %s\n", orMissing(c.Title))
	fmt.Fprintf(&b, "- Summary: %s\n", orMissing(c.Summary))
	fmt.Fprintf(&b, "- From: %s\n", orMissing(c.ContactEmail))
	fmt.Fprintf(&b, "- Company: %s\n", orMissing(c.ContactCompany))

	b.WriteString("\nEXISTING OPPORTUNITIES:\n")
	if len(entries) == 0 {
		b.WriteString("(none)\n")
	}
	for _, e := range entries {
		fmt.Fprintf(&b, "- ID: %s, Company: %s, Title: %s, Summary: %s\n",
			e.ID, orMissing(e.Company), orMissing(e.Title), oneLine(e.Summary, entrySummaryPreview))
	}

	b.WriteString("\nRELEVANT HISTORICAL EMAILS:\n")
	if len(history) == 0 {
		b.WriteString("(none)\n")
	}
	for _, ev := range history {
		fmt.Fprintf(&b, "- Date: %s, From: %s, Subject: %s, Preview: %s\n",
			ev.ReceivedAt.UTC().Format(dateLayout), ev.SenderName(), ev.Subject, oneLine(ev.BodyText, historyPreview))
	}

	b.WriteString("\nRespond ONLY with JSON: ")
	b.WriteString(`{"match": true or false, "opportunity_id": "<ID of the best match or null>", "confidence": 0.0-1.0, "reason": "<which specific content overlaps>"}`)
	b.WriteString("\n")
	return b.String()
}

func earliestPrompt(c models.OpportunityCandidate, emails []models.CommunicationEvent) string {
	var b strings.Builder
	b.WriteString("You are finding the first email that raised a specific business opportunity.\n\n")
	b.WriteString("OPPORTUNITY:\n")
	fmt.Fprintf(&b, "- Company: %s\n", orMissing(c.ContactCompany))
	fmt.Fprintf(&b, "- Title: %s\n", orMissing(c.Title))
	fmt.Fprintf(&b, "- Summary: %s\n", orMissing(c.Summary))

	b.WriteString("\nHISTORICAL EMAILS (oldest first):\n")
	for i, ev := range emails {
		fmt.Fprintf(&b, "Email %d: Date: %s, From: %s, Subject: %s, Content: %s\n",
			i+1, ev.ReceivedAt.UTC().Format(time.RFC3339), ev.SenderName(), ev.Subject, oneLine(ev.BodyText, earliestPreview))
	}

	b.WriteString("\nPick the email that FIRST discusses this same opportunity: the same project, product or service\n")
	b.WriteString("for the same company. Being from the same sender is not enough. Answer null when no email clearly\n")
	b.WriteString("qualifies.\n\n")
	b.WriteString("Respond ONLY with JSON: ")
	b.WriteString(`{"first_mention_email_number": <1-based number or null>, "confidence": 0.0-1.0, "reason": "<short explanation>"}`)
	b.WriteString("\n")
	return b.String()
}
