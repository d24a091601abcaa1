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

package graph

import (
	"log/slog"
	"strings"
	"time"

	"github.com/bcem/leadtracker/internal/htmltext"
	"github.com/bcem/leadtracker/internal/models"
)

// graphMessage represents the relevant fields from a Graph API message response.
type graphMessage struct {
	ID               string    `json:"id"`
	Subject          string    `json:"subject"`
	ReceivedDateTime time.Time `json:"receivedDateTime"`
	ConversationID   string    `json:"conversationId"`
	From             struct {
		EmailAddress struct {
			Address string `json:"address"`
			Name    string `json:"name"`
		} `json:"emailAddress"`
	} `json:"from"`
	Body struct {
		ContentType string `json:"contentType"`
		Content     string `json:"content"`
	} `json:"body"`
}

// messagesPage is one page of a message list response.
type messagesPage struct {
	Value    []graphMessage `json:"value"`
	NextLink string         `json:"@odata.nextLink"`
}

const noSubject = "No Subject"

// toEvent converts a Graph message into a communication event. HTML bodies
// are reduced to plain text.
func (m graphMessage) toEvent() models.CommunicationEvent {
	body := m.Body.Content
	if htmltext.IsHTML(m.Body.ContentType) {
		body = htmltext.ToText(body)
	}
	subject := strings.TrimSpace(m.Subject)
	if subject == "" {
		subject = noSubject
	}
	return models.CommunicationEvent{
		EventID:           m.ID,
		ReceivedAt:        m.ReceivedDateTime.UTC(),
		SenderAddress:     strings.ToLower(strings.TrimSpace(m.From.EmailAddress.Address)),
		SenderDisplayName: strings.TrimSpace(m.From.EmailAddress.Name),
		Subject:           subject,
		BodyText:          body,
		ThreadID:          m.ConversationID,
	}
}

// eventsFromPage converts the valid messages of a page, logging and
// skipping the rest.
func eventsFromPage(page *messagesPage) []models.CommunicationEvent {
	out := make([]models.CommunicationEvent, 0, len(page.Value))
	for _, m := range page.Value {
		ev := m.toEvent()
		if err := ev.Validate(); err != nil {
			slog.Warn("skipping malformed graph message", "message_id", m.ID, "error", err)
			continue
		}
		out = append(out, ev)
	}
	return out
}
