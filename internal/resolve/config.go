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

// Package resolve decides, for every opportunity candidate found in an
// inbound email, whether it continues an opportunity already in the
// registry or starts a new one. Decisions run through cheap deterministic
// checks first and consult the semantic oracle only when those are
// inconclusive.
package resolve

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/bcem/leadtracker/internal/matching"
)

// Config holds the thresholds, limits and weights of the resolution policy.
type Config struct {
	// ConfidenceThresholdMatch is the minimum oracle confidence for a match.
	ConfidenceThresholdMatch float64
	// ConfidenceThresholdEarliestMention is the minimum oracle confidence
	// for backdating a new opportunity.
	ConfidenceThresholdEarliestMention float64
	// HistoricalWindowDays is how far back historical messages are fetched.
	HistoricalWindowDays int
	// MaxCandidatesToOracle is how many ranked entries the oracle sees.
	MaxCandidatesToOracle int
	// ScoreShortCircuit is the top score at which the scorer alone decides.
	ScoreShortCircuit int
	// HistoricalScanLimit bounds how many recent messages the history
	// relevance filter examines per candidate.
	HistoricalScanLimit int
	// MinKeywordOverlap is the title keyword overlap that makes a
	// historical message relevant on its own.
	MinKeywordOverlap int

	Weights      matching.Weights
	ProjectTerms []string

	// NewID mints opportunity ids. Defaults to random UUIDs.
	NewID func() string
}

// DefaultConfig returns the production policy settings.
func DefaultConfig() Config {
	return Config{
		ConfidenceThresholdMatch:           0.5,
		ConfidenceThresholdEarliestMention: 0.7,
		HistoricalWindowDays:               180,
		MaxCandidatesToOracle:              30,
		ScoreShortCircuit:                  500,
		HistoricalScanLimit:                50,
		MinKeywordOverlap:                  1,
		Weights:                            matching.DefaultWeights(),
		ProjectTerms:                       matching.DefaultProjectTerms,
		NewID:                              uuid.NewString,
	}
}

// Validate rejects settings the policy cannot run with.
func (c Config) Validate() error {
	if c.ConfidenceThresholdMatch < 0 || c.ConfidenceThresholdMatch > 1 {
		return fmt.Errorf("confidence_threshold_match must be within [0, 1], got %v", c.ConfidenceThresholdMatch)
	}
	if c.ConfidenceThresholdEarliestMention < 0 || c.ConfidenceThresholdEarliestMention > 1 {
		return fmt.Errorf("confidence_threshold_earliest_mention must be within [0, 1], got %v", c.ConfidenceThresholdEarliestMention)
	}
	if c.HistoricalWindowDays <= 0 {
		return fmt.Errorf("historical_window_days must be positive, got %d", c.HistoricalWindowDays)
	}
	if c.MaxCandidatesToOracle <= 0 {
		return fmt.Errorf("max_candidates_to_oracle must be positive, got %d", c.MaxCandidatesToOracle)
	}
	if c.ScoreShortCircuit <= 0 {
		return fmt.Errorf("score_short_circuit must be positive, got %d", c.ScoreShortCircuit)
	}
	if c.Weights.CompanyExact <= 0 {
		return fmt.Errorf("weights.company_exact must be positive, got %d", c.Weights.CompanyExact)
	}
	return nil
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.NewID == nil {
		c.NewID = d.NewID
	}
	if c.ProjectTerms == nil {
		c.ProjectTerms = d.ProjectTerms
	}
	if c.HistoricalScanLimit <= 0 {
		c.HistoricalScanLimit = d.HistoricalScanLimit
	}
	if c.MinKeywordOverlap <= 0 {
		c.MinKeywordOverlap = d.MinKeywordOverlap
	}
	return c
}
