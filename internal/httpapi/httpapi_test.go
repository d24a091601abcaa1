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

package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bcem/leadtracker/internal/cycle"
	"github.com/bcem/leadtracker/internal/models"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

type fakeCycles struct {
	report  *cycle.Report
	err     error
	running bool
	calls   int
	ctxErr  error
}

func (f *fakeCycles) Trigger(ctx context.Context) (*cycle.Report, error) {
	f.calls++
	f.ctxErr = ctx.Err()
	return f.report, f.err
}

func (f *fakeCycles) LastReport() *cycle.Report { return f.report }
func (f *fakeCycles) Running() bool             { return f.running }

func do(t *testing.T, h http.Handler, method, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return rec, body
}

func TestHealth(t *testing.T) {
	ok := pingFunc(func(context.Context) error { return nil })
	down := pingFunc(func(context.Context) error { return errors.New("connection refused") })

	h := NewRouter(Config{Cycles: &fakeCycles{}, Checks: map[string]Pinger{"state": ok, "store": ok}})
	rec, body := do(t, h, http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", body["status"])

	h = NewRouter(Config{Cycles: &fakeCycles{}, Checks: map[string]Pinger{"state": ok, "store": down}})
	rec, body = do(t, h, http.MethodGet, "/health")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "unhealthy", body["status"])
	assert.Equal(t, map[string]any{"state": "ok", "store": "connection refused"}, body["checks"])
}

func TestStatus(t *testing.T) {
	h := NewRouter(Config{Cycles: &fakeCycles{}})
	rec, body := do(t, h, http.MethodGet, "/status")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, body["running"])
	assert.Nil(t, body["last_cycle"])

	rep := &cycle.Report{Processed: 3, ByTier: map[models.Tier]int{models.TierOracle: 2}}
	h = NewRouter(Config{Cycles: &fakeCycles{report: rep, running: true}})
	_, body = do(t, h, http.MethodGet, "/status")
	assert.Equal(t, true, body["running"])
	last := body["last_cycle"].(map[string]any)
	assert.Equal(t, float64(3), last["processed"])
	assert.Equal(t, map[string]any{"oracle": float64(2)}, last["by_tier"])
}

func TestTriggerCycle(t *testing.T) {
	fc := &fakeCycles{report: &cycle.Report{Processed: 1}}
	h := NewRouter(Config{Cycles: fc})

	rec, body := do(t, h, http.MethodPost, "/cycles")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), body["processed"])
	assert.Equal(t, 1, fc.calls)
	assert.NoError(t, fc.ctxErr)
}

func TestTriggerCycle_InProgress(t *testing.T) {
	h := NewRouter(Config{Cycles: &fakeCycles{err: cycle.ErrCycleInProgress}})
	rec, body := do(t, h, http.MethodPost, "/cycles")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "cycle already in progress", body["error"])
}

func TestTriggerCycle_Failure(t *testing.T) {
	rep := &cycle.Report{Error: "append records: boom"}
	h := NewRouter(Config{Cycles: &fakeCycles{report: rep, err: errors.New("append records: boom")}})
	rec, body := do(t, h, http.MethodPost, "/cycles")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "append records: boom", body["error"])
	assert.NotNil(t, body["report"])
}

func TestMethodNotAllowed(t *testing.T) {
	h := NewRouter(Config{Cycles: &fakeCycles{}})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/cycles", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
