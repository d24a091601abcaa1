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

// Lead tracker service
//
// Entry point for the long-running service. It:
//  1. Loads configuration from config.yaml and the environment
//  2. Connects the opportunity store and the processing state store
//  3. Resolves the mailbox owner's own domains through Microsoft Graph
//  4. Runs a resolution cycle immediately and then every CYCLE_INTERVAL
//  5. Serves /health, /status and POST /cycles
//  6. Handles graceful shutdown on SIGTERM/SIGINT
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bcem/leadtracker/internal/app"
	"github.com/bcem/leadtracker/internal/config"
	"github.com/bcem/leadtracker/internal/cycle"
	"github.com/bcem/leadtracker/internal/httpapi"
)

func main() {
	// --- Load Configuration ---
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Structured JSON logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))
	slog.SetDefault(logger)

	slog.Info("starting lead tracker service")
	slog.Info("configuration loaded",
		"mailbox", cfg.Mailbox.User,
		"store", cfg.Store.Backend,
		"state", cfg.State.Backend,
		"cycle_interval", cfg.CycleInterval,
		"cycle_window", cfg.CycleWindow,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.New(ctx, cfg, app.Options{})
	if err != nil {
		slog.Error("failed to initialise service", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	// --- Cycle Scheduler ---
	scheduler := cycle.NewScheduler(a.Runner, cfg.CycleInterval)
	scheduler.Start(ctx)

	// --- HTTP Server ---
	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{
		Addr: addr,
		Handler: httpapi.NewRouter(httpapi.Config{
			Cycles: scheduler,
			Checks: map[string]httpapi.Pinger{
				"store": a.Store,
				"state": a.State,
			},
		}),
		ReadTimeout: 10 * time.Second,
		// POST /cycles waits for a whole cycle.
		WriteTimeout: 15 * time.Minute,
	}

	// --- Graceful Shutdown ---
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
		sig := <-sigCh

		slog.Info("received shutdown signal", "signal", sig)
		cancel() // Stop the scheduler loop

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
		scheduler.Stop()
	}()

	slog.Info("lead tracker listening", "addr", addr)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	// Wait for the in-flight cycle before closing the backends.
	scheduler.Stop()
	slog.Info("lead tracker stopped")
}
