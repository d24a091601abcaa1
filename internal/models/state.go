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

import "time"

// ProcessingState is the set of handled event ids plus the cursor of the
// last committed cycle. It is loaded at the start of a cycle and saved only
// after every record of the cycle was written.
type ProcessingState struct {
	ProcessedEventIDs map[string]time.Time `json:"processed_event_ids"`
	LastCycleAt       time.Time            `json:"last_cycle_at"`
}

// NewProcessingState returns an empty state.
func NewProcessingState() *ProcessingState {
	return &ProcessingState{ProcessedEventIDs: make(map[string]time.Time)}
}

// Processed reports whether eventID was handled by an earlier cycle.
func (s *ProcessingState) Processed(eventID string) bool {
	_, ok := s.ProcessedEventIDs[eventID]
	return ok
}

// MarkProcessed records eventID with the receipt time of its event. The
// receipt time lets stores expire ids that can no longer reappear in a
// fetch window.
func (s *ProcessingState) MarkProcessed(eventID string, receivedAt time.Time) {
	if s.ProcessedEventIDs == nil {
		s.ProcessedEventIDs = make(map[string]time.Time)
	}
	if _, ok := s.ProcessedEventIDs[eventID]; ok {
		return
	}
	s.ProcessedEventIDs[eventID] = receivedAt
}

// Len returns the number of processed ids.
func (s *ProcessingState) Len() int {
	return len(s.ProcessedEventIDs)
}

// Clone returns a deep copy so a cycle can stage changes without touching
// the loaded state.
func (s *ProcessingState) Clone() *ProcessingState {
	out := &ProcessingState{
		ProcessedEventIDs: make(map[string]time.Time, len(s.ProcessedEventIDs)),
		LastCycleAt:       s.LastCycleAt,
	}
	for id, at := range s.ProcessedEventIDs {
		out.ProcessedEventIDs[id] = at
	}
	return out
}
