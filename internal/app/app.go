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

// Package app assembles the cycle runner and its backends from
// configuration. It is shared by the service and the operator CLI.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/bcem/leadtracker/internal/config"
	"github.com/bcem/leadtracker/internal/cycle"
	"github.com/bcem/leadtracker/internal/graph"
	"github.com/bcem/leadtracker/internal/mailfile"
	"github.com/bcem/leadtracker/internal/oracle"
	"github.com/bcem/leadtracker/internal/resolve"
	"github.com/bcem/leadtracker/internal/senders"
	"github.com/bcem/leadtracker/internal/state"
	"github.com/bcem/leadtracker/internal/store/postgres"
	"github.com/bcem/leadtracker/internal/store/workbook"
)

// Store is an opportunity store with a health probe.
type Store interface {
	cycle.OpportunityStore
	Ping(ctx context.Context) error
}

// State is a processing state store with a health probe.
type State interface {
	cycle.StateStore
	Ping(ctx context.Context) error
}

// Options replace configured collaborators.
type Options struct {
	// MailDir reads events from an .eml directory instead of the mailbox.
	MailDir string
	// Classifier replaces the configured oracle provider.
	Classifier oracle.Classifier
	Store      Store
	State      State
}

// App is an assembled cycle runner.
type App struct {
	Runner  *cycle.Runner
	Store   Store
	State   State
	Senders *senders.Filter

	closers []func()
}

// New connects every backend and builds the runner.
func New(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	a := &App{}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	var gc *graph.Client
	needGraph := opts.MailDir == "" || (opts.Store == nil && cfg.Store.Backend == config.StoreWorkbook)
	if needGraph {
		if err := cfg.Mailbox.Validate(); err != nil {
			return nil, fmt.Errorf("mailbox config: %w", err)
		}
		gc = graph.NewClient(GraphHTTPClient(ctx, cfg.Mailbox), graph.DefaultBaseURL)
	}

	domains := cfg.Mailbox.OwnDomains
	if gc != nil && cfg.Mailbox.User != "" {
		d, err := graph.NewIdentity(gc).OwnDomains(ctx, cfg.Mailbox.User, cfg.Mailbox.OwnDomains)
		if err != nil {
			return nil, fmt.Errorf("resolve own domains: %w", err)
		}
		domains = d
	}
	a.Senders = senders.NewFilter(domains, cfg.Mailbox.AutomatedSenders)
	slog.Info("own domains resolved", "domains", a.Senders.OwnDomains())

	var mail cycle.MailSource
	if opts.MailDir != "" {
		mail = mailfile.NewSource(opts.MailDir, a.Senders)
	} else {
		mail = graph.NewMailSource(graph.MailSourceConfig{
			Client:  gc,
			Mailbox: cfg.Mailbox.User,
			Senders: a.Senders,
		})
	}

	engine, err := NewEngine(cfg, opts.Classifier)
	if err != nil {
		return nil, err
	}

	a.Store = opts.Store
	if a.Store == nil {
		if a.Store, err = a.openStore(ctx, cfg, gc); err != nil {
			return nil, err
		}
	}
	a.State = opts.State
	if a.State == nil {
		st, closeFn, err := OpenState(ctx, cfg)
		if err != nil {
			return nil, err
		}
		a.State = st
		a.closers = append(a.closers, closeFn)
	}

	a.Runner, err = cycle.NewRunner(cycle.RunnerConfig{
		Mail:             mail,
		Store:            a.Store,
		State:            a.State,
		Engine:           engine,
		Window:           cfg.CycleWindow,
		HistoricalWindow: cfg.HistoricalWindow(),
		Senders:          a.Senders,
		OwnDomainPolicy:  cfg.Mailbox.OwnDomainPolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("create cycle runner: %w", err)
	}
	ok = true
	return a, nil
}

// Close releases every backend connection.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// GraphHTTPClient returns an HTTP client authenticated with the app
// registration's client credentials.
func GraphHTTPClient(ctx context.Context, m config.MailboxConfig) *http.Client {
	creds := &clientcredentials.Config{
		ClientID:     m.ClientID,
		ClientSecret: m.ClientSecret,
		TokenURL:     fmt.Sprintf("https://login.microsoftonline.com/%s/oauth2/v2.0/token", m.TenantID),
		Scopes:       []string{"https://graph.microsoft.com/.default"},
	}
	return creds.Client(ctx)
}

// NewEngine builds the resolution engine. A nil classifier selects the
// configured oracle provider.
func NewEngine(cfg *config.Config, classifier oracle.Classifier) (*resolve.Engine, error) {
	if classifier == nil {
		if err := cfg.Oracle.Validate(); err != nil {
			return nil, fmt.Errorf("oracle config: %w", err)
		}
		classifier = oracle.NewGeminiClient(cfg.Oracle.Gemini())
	}
	adapter, err := oracle.NewAdapter(cfg.AdapterConfig(classifier))
	if err != nil {
		return nil, fmt.Errorf("create oracle adapter: %w", err)
	}
	engine, err := resolve.NewEngine(cfg.EngineConfig(), adapter)
	if err != nil {
		return nil, fmt.Errorf("create engine: %w", err)
	}
	return engine, nil
}

func (a *App) openStore(ctx context.Context, cfg *config.Config, gc *graph.Client) (Store, error) {
	switch cfg.Store.Backend {
	case config.StorePostgres:
		pool, err := pgxpool.New(ctx, cfg.Store.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("create Postgres pool: %w", err)
		}
		a.closers = append(a.closers, pool.Close)
		if err := pool.Ping(ctx); err != nil {
			return nil, fmt.Errorf("connect to PostgreSQL: %w", err)
		}
		slog.Info("connected to PostgreSQL")
		return postgres.NewStore(ctx, pool)
	case config.StoreWorkbook:
		w := cfg.Store.Workbook
		return workbook.NewStore(workbook.Config{
			Client:             gc,
			ShareLink:          w.ShareLink,
			OpportunitiesSheet: w.OpportunitiesSheet,
			OpportunitiesTable: w.OpportunitiesTable,
			InteractionsSheet:  w.InteractionsSheet,
			InteractionsTable:  w.InteractionsTable,
		}), nil
	}
	return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
}

// OpenState opens the configured processing state store. The returned
// function releases its connection.
func OpenState(ctx context.Context, cfg *config.Config) (State, func(), error) {
	switch cfg.State.Backend {
	case config.StateRedis:
		opt, err := redis.ParseURL(cfg.State.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid redis url: %w", err)
		}
		rdb := redis.NewClient(opt)
		closeFn := func() { _ = rdb.Close() }
		st := state.NewRedisStore(state.RedisConfig{Client: rdb, Retention: cfg.State.Retention})
		if err := st.Ping(ctx); err != nil {
			closeFn()
			return nil, nil, fmt.Errorf("connect to Redis: %w", err)
		}
		slog.Info("connected to Redis")
		return st, closeFn, nil
	case config.StateSQLite:
		st, err := state.OpenSQLite(cfg.State.SQLitePath, cfg.State.Retention)
		if err != nil {
			return nil, nil, err
		}
		return st, func() { _ = st.Close() }, nil
	}
	return nil, nil, errors.New("unknown state backend " + cfg.State.Backend)
}
