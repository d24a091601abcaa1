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

package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/fatih/color"

	"github.com/bcem/leadtracker/internal/cycle"
	"github.com/bcem/leadtracker/internal/models"
)

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printReport writes a cycle summary.
func printReport(w io.Writer, format string, rep *cycle.Report) error {
	if format == "json" {
		return writeJSON(w, rep)
	}

	status := color.New(color.FgGreen).Sprint("OK")
	if rep.Error != "" {
		status = color.New(color.FgRed).Sprint("FAILED")
	}
	fmt.Fprintf(w, "Cycle %s in %s\n", status, rep.Elapsed.Round(time.Millisecond))
	fmt.Fprintf(w, "  fetched:            %d\n", rep.Fetched)
	fmt.Fprintf(w, "  already processed:  %d\n", rep.AlreadyProcessed)
	fmt.Fprintf(w, "  skipped own domain: %d\n", rep.SkippedOwnDomain)
	fmt.Fprintf(w, "  processed:          %d\n", rep.Processed)
	fmt.Fprintf(w, "  new opportunities:  %s\n", color.New(color.FgCyan).Sprint(rep.Created))
	fmt.Fprintf(w, "  interactions:       %d\n", rep.Interactions)

	tiers := make([]string, 0, len(rep.ByTier))
	for t := range rep.ByTier {
		tiers = append(tiers, string(t))
	}
	sort.Strings(tiers)
	for _, t := range tiers {
		fmt.Fprintf(w, "    %-14s %d\n", t+":", rep.ByTier[models.Tier(t)])
	}
	if rep.Error != "" {
		fmt.Fprintf(w, "  error: %s\n", color.New(color.FgRed).Sprint(rep.Error))
	}
	return nil
}

// printInteractions lists logged interactions, one per line.
func printInteractions(w io.Writer, format string, interactions []models.InteractionRecord) error {
	if format == "json" {
		return writeJSON(w, interactions)
	}
	for _, in := range interactions {
		kind := color.New(color.FgYellow).Sprint(in.Kind)
		if in.Kind == models.KindNewLead {
			kind = color.New(color.FgGreen).Sprint(in.Kind)
		}
		fmt.Fprintf(w, "%s  %-36s  %s  %s\n",
			in.OccurredAt.UTC().Format(time.RFC3339), in.OpportunityID, kind, in.EventID)
	}
	return nil
}

// printState writes the processing state summary.
func printState(w io.Writer, format string, st *models.ProcessingState) error {
	if format == "json" {
		return writeJSON(w, struct {
			Processed   int       `json:"processed"`
			LastCycleAt time.Time `json:"last_cycle_at"`
		}{st.Len(), st.LastCycleAt})
	}
	last := color.New(color.FgYellow).Sprint("never")
	if !st.LastCycleAt.IsZero() {
		last = st.LastCycleAt.UTC().Format(time.RFC3339)
	}
	fmt.Fprintf(w, "Processed events: %d\n", st.Len())
	fmt.Fprintf(w, "Last cycle:       %s\n", last)
	return nil
}
