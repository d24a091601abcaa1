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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bcem/leadtracker/internal/cycle"
	"github.com/bcem/leadtracker/internal/models"
	"github.com/bcem/leadtracker/internal/state"
)

func init() {
	color.NoColor = true
}

func writeConfig(t *testing.T, body string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	t.Setenv("CONFIG_PATH", path)
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := NewRootCommand()
	root.SetArgs(args)
	root.SetOut(&out)
	root.SetErr(io.Discard)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

// fakeGemini answers every extraction with no opportunities and every
// other question with a negative verdict.
func fakeGemini(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Contents []struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"contents"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		answer := `{"match": false, "first_mention_email_number": null, "confidence": 0}`
		if strings.HasPrefix(req.Contents[0].Parts[0].Text, "You are a CRM assistant") {
			answer = `[]`
		}
		resp := map[string]any{
			"candidates": []any{map[string]any{
				"content": map[string]any{"parts": []any{map[string]any{"text": answer}}},
			}},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRoot_RejectsUnknownFormat(t *testing.T) {
	_, err := execute(t, "state", "--format", "yaml")
	assert.ErrorContains(t, err, "invalid format")
}

func TestStateCommand(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "state.db")
	writeConfig(t, fmt.Sprintf(`
store:
  backend: postgres
  database_url: postgres://unused
state:
  backend: sqlite
  sqlite_path: %s
`, dbPath))

	st, err := state.OpenSQLite(dbPath, 0)
	require.NoError(t, err)
	ps := models.NewProcessingState()
	ps.MarkProcessed("e1", time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	ps.MarkProcessed("e2", time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC))
	ps.LastCycleAt = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	require.NoError(t, st.Save(context.Background(), ps))
	require.NoError(t, st.Close())

	out, err := execute(t, "state", "--format", "json")
	require.NoError(t, err)
	var got struct {
		Processed   int       `json:"processed"`
		LastCycleAt time.Time `json:"last_cycle_at"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, 2, got.Processed)
	assert.True(t, got.LastCycleAt.Equal(ps.LastCycleAt))

	out, err = execute(t, "state")
	require.NoError(t, err)
	assert.Contains(t, out, "Processed events: 2")
	assert.Contains(t, out, "2026-03-10T12:00:00Z")
}

func TestReplayCommand_DryRun(t *testing.T) {
	srv := fakeGemini(t)
	writeConfig(t, fmt.Sprintf(`
mailbox:
  own_domains: [acme.com]
oracle:
  api_key: test
  base_url: %s
store:
  backend: postgres
  database_url: postgres://unused
`, srv.URL))

	statePath := filepath.Join(t.TempDir(), "replay.db")
	out, err := execute(t, "replay", "--dir", "../mailfile/testdata/inbox", "--state", statePath, "--dry-run", "--format", "json")
	require.NoError(t, err)

	dec := json.NewDecoder(strings.NewReader(out))
	var rep cycle.Report
	require.NoError(t, dec.Decode(&rep))
	var interactions []models.InteractionRecord
	require.NoError(t, dec.Decode(&interactions))

	assert.Empty(t, rep.Error)
	assert.Positive(t, rep.Processed)
	assert.Len(t, interactions, rep.Interactions)

	// The state file remembers the replayed messages.
	out, err = execute(t, "replay", "--dir", "../mailfile/testdata/inbox", "--state", statePath, "--dry-run", "--format", "json")
	require.NoError(t, err)
	dec = json.NewDecoder(strings.NewReader(out))
	require.NoError(t, dec.Decode(&rep))
	assert.Zero(t, rep.Processed)
}

func TestReplayCommand_RequiresDir(t *testing.T) {
	_, err := execute(t, "replay")
	assert.ErrorContains(t, err, `required flag(s) "dir" not set`)
}

func TestPrintReport_Text(t *testing.T) {
	var buf bytes.Buffer
	rep := &cycle.Report{
		Elapsed:   1500 * time.Millisecond,
		Fetched:   4,
		Processed: 3,
		Created:   1,
		ByTier:    map[models.Tier]int{models.TierOracle: 2, models.TierCreate: 1},
		Error:     "append records: boom",
	}
	require.NoError(t, printReport(&buf, "text", rep))

	out := buf.String()
	assert.Contains(t, out, "Cycle FAILED in 1.5s")
	assert.Contains(t, out, "processed:          3")
	assert.Less(t, strings.Index(out, "create:"), strings.Index(out, "oracle:"))
	assert.Contains(t, out, "error: append records: boom")
}
