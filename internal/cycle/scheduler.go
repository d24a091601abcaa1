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

package cycle

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Scheduler runs a cycle immediately and then at a fixed interval, and
// accepts manual triggers. At most one cycle runs at a time.
type Scheduler struct {
	runner   *Runner
	interval time.Duration

	running sync.Mutex
	busy    atomic.Bool

	mu   sync.RWMutex
	last *Report

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler creates a scheduler. A non-positive interval defaults to 1h.
func NewScheduler(runner *Runner, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Scheduler{runner: runner, interval: interval}
}

// Start launches the periodic loop. It returns immediately.
func (s *Scheduler) Start(ctx context.Context) {
	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.wg.Add(1)

	go func() {
		defer s.wg.Done()

		s.tick(loopCtx)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-loopCtx.Done():
				slog.Info("cycle scheduler stopping")
				return
			case <-ticker.C:
				s.tick(loopCtx)
			}
		}
	}()

	slog.Info("cycle scheduler started", "interval", s.interval)
}

func (s *Scheduler) tick(ctx context.Context) {
	if _, err := s.Trigger(ctx); errors.Is(err, ErrCycleInProgress) {
		slog.Warn("skipping scheduled cycle, previous cycle still running")
	}
}

// Trigger runs one cycle now and returns its report. It returns
// ErrCycleInProgress without waiting when a cycle is already running.
func (s *Scheduler) Trigger(ctx context.Context) (*Report, error) {
	if !s.running.TryLock() {
		return nil, ErrCycleInProgress
	}
	defer s.running.Unlock()
	s.busy.Store(true)
	defer s.busy.Store(false)

	rep, err := s.runner.Run(ctx)

	s.mu.Lock()
	s.last = rep
	s.mu.Unlock()
	return rep, err
}

// Running reports whether a cycle is in progress.
func (s *Scheduler) Running() bool {
	return s.busy.Load()
}

// LastReport returns the report of the most recent cycle, or nil.
func (s *Scheduler) LastReport() *Report {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last
}

// Stop shuts down the periodic loop and waits for a running cycle.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}
