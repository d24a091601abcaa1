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

package app

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bcem/leadtracker/internal/config"
	"github.com/bcem/leadtracker/internal/oracle"
	"github.com/bcem/leadtracker/internal/state"
	"github.com/bcem/leadtracker/internal/store/memory"
)

var noOpportunities = oracle.ClassifierFunc(func(_ context.Context, prompt string) ([]byte, error) {
	if strings.HasPrefix(prompt, "You are a CRM assistant") {
		return []byte(`[]`), nil
	}
	return []byte(`{"match": false, "first_mention_email_number": null, "confidence": 0}`), nil
})

func TestNew_ReplaysMailDirectory(t *testing.T) {
	cfg := config.Default()
	cfg.Mailbox.OwnDomains = []string{"acme.com"}
	cfg.CycleWindow = 10 * 365 * 24 * time.Hour
	cfg.Engine.HistoricalWindowDays = 10 * 365

	st, err := state.OpenSQLite(":memory:", 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	store := memory.NewStore()

	a, err := New(context.Background(), &cfg, Options{
		MailDir:    "../mailfile/testdata/inbox",
		Classifier: noOpportunities,
		Store:      store,
		State:      st,
	})
	require.NoError(t, err)
	defer a.Close()

	assert.Equal(t, []string{"acme.com"}, a.Senders.OwnDomains())

	rep, err := a.Runner.Run(context.Background())
	require.NoError(t, err)
	assert.Positive(t, rep.Processed)
	assert.Len(t, store.Interactions(), rep.Interactions)

	rep, err = a.Runner.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, rep.Processed)
}

func TestNew_RequiresMailboxForGraph(t *testing.T) {
	cfg := config.Default()
	_, err := New(context.Background(), &cfg, Options{Classifier: noOpportunities})
	assert.ErrorContains(t, err, "mailbox config")
}

func TestNewEngine_RequiresOracleKey(t *testing.T) {
	cfg := config.Default()
	_, err := NewEngine(&cfg, nil)
	assert.ErrorContains(t, err, "oracle config")
}
