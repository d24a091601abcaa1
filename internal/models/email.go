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

// Package models defines the records exchanged between the mail source, the
// resolution engine and the opportunity store.
package models

import (
	"fmt"
	"strings"
	"time"
)

// CommunicationEvent is one inbound email, already converted to plain text.
// Events are immutable once fetched.
type CommunicationEvent struct {
	EventID           string    `json:"event_id"`
	ReceivedAt        time.Time `json:"received_at"`
	SenderAddress     string    `json:"sender_address"`
	SenderDisplayName string    `json:"sender_display_name,omitempty"`
	Subject           string    `json:"subject"`
	BodyText          string    `json:"body_text"`
	ThreadID          string    `json:"thread_id,omitempty"`
}

// Validate checks the fields the engine relies on.
func (e CommunicationEvent) Validate() error {
	if strings.TrimSpace(e.EventID) == "" {
		return &ValidationError{Record: "CommunicationEvent", Field: "event_id", Reason: "required"}
	}
	if e.ReceivedAt.IsZero() {
		return &ValidationError{Record: "CommunicationEvent", Field: "received_at", Reason: "required"}
	}
	return nil
}

// SenderName returns the display name, falling back to the address.
func (e CommunicationEvent) SenderName() string {
	if name := strings.TrimSpace(e.SenderDisplayName); name != "" {
		return name
	}
	return e.SenderAddress
}

// ValidationError reports a record that is missing a required field or
// carries a value outside its allowed range.
type ValidationError struct {
	Record string
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s %s", e.Record, e.Field, e.Reason)
}
