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

// Package config loads configuration from config.yaml and environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/bcem/leadtracker/internal/cycle"
	"github.com/bcem/leadtracker/internal/matching"
	"github.com/bcem/leadtracker/internal/oracle"
	"github.com/bcem/leadtracker/internal/resolve"
	"github.com/bcem/leadtracker/internal/store/workbook"
)

// Store and state backends.
const (
	StorePostgres = "postgres"
	StoreWorkbook = "workbook"

	StateRedis  = "redis"
	StateSQLite = "sqlite"
)

// MailboxConfig holds the app registration and the monitored mailbox.
type MailboxConfig struct {
	TenantID     string `yaml:"tenant_id"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	// User is the UPN or id of the monitored mailbox.
	User string `yaml:"user"`

	OwnDomains       []string `yaml:"own_domains"`
	OwnDomainPolicy  string   `yaml:"own_domain_policy"`
	AutomatedSenders []string `yaml:"automated_senders"`
}

// Validate checks the fields needed to reach Microsoft Graph.
func (m MailboxConfig) Validate() error {
	var missing []string
	for _, f := range []struct{ name, value string }{
		{"mailbox.tenant_id", m.TenantID},
		{"mailbox.client_id", m.ClientID},
		{"mailbox.client_secret", m.ClientSecret},
		{"mailbox.user", m.User},
	} {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing %s", strings.Join(missing, ", "))
	}
	return nil
}

// OracleConfig selects and configures the language model.
type OracleConfig struct {
	Provider string        `yaml:"provider"`
	APIKey   string        `yaml:"api_key"`
	Model    string        `yaml:"model"`
	BaseURL  string        `yaml:"base_url"`
	Timeout  time.Duration `yaml:"timeout"`
}

// Validate checks the oracle settings.
func (o OracleConfig) Validate() error {
	if o.Provider != "gemini" {
		return fmt.Errorf("unsupported oracle provider %q", o.Provider)
	}
	if strings.TrimSpace(o.APIKey) == "" {
		return errors.New("missing oracle.api_key")
	}
	return nil
}

// Gemini returns the classifier settings for the Gemini provider.
func (o OracleConfig) Gemini() oracle.GeminiConfig {
	return oracle.GeminiConfig{
		APIKey:  o.APIKey,
		Model:   o.Model,
		BaseURL: o.BaseURL,
		Timeout: o.Timeout,
	}
}

// EngineConfig holds the resolution policy settings.
type EngineConfig struct {
	ConfidenceThresholdMatch           float64          `yaml:"confidence_threshold_match"`
	ConfidenceThresholdEarliestMention float64          `yaml:"confidence_threshold_earliest_mention"`
	HistoricalWindowDays               int              `yaml:"historical_window_days"`
	MaxCandidatesToOracle              int              `yaml:"max_candidates_to_oracle"`
	ScoreShortCircuit                  int              `yaml:"score_short_circuit"`
	MaxHistoricalInPrompt              int              `yaml:"max_historical_in_prompt"`
	MaxEarliestCandidates              int              `yaml:"max_earliest_candidates"`
	HistoricalScanLimit                int              `yaml:"historical_scan_limit"`
	MinKeywordOverlap                  int              `yaml:"min_keyword_overlap"`
	Weights                            matching.Weights `yaml:"weights"`
	ProjectTerms                       []string         `yaml:"project_terms"`
}

// WorkbookConfig locates the spreadsheet store.
type WorkbookConfig struct {
	ShareLink          string `yaml:"share_link"`
	OpportunitiesSheet string `yaml:"opportunities_sheet"`
	OpportunitiesTable string `yaml:"opportunities_table"`
	InteractionsSheet  string `yaml:"interactions_sheet"`
	InteractionsTable  string `yaml:"interactions_table"`
}

// StoreConfig selects the opportunity store.
type StoreConfig struct {
	Backend     string         `yaml:"backend"`
	DatabaseURL string         `yaml:"database_url"`
	Workbook    WorkbookConfig `yaml:"workbook"`
}

// StateConfig selects the processing state store.
type StateConfig struct {
	Backend    string        `yaml:"backend"`
	RedisURL   string        `yaml:"redis_url"`
	SQLitePath string        `yaml:"sqlite_path"`
	Retention  time.Duration `yaml:"retention"`
}

// Config holds all configuration for the service and the CLI.
type Config struct {
	Mailbox MailboxConfig `yaml:"mailbox"`
	Oracle  OracleConfig  `yaml:"oracle"`
	Engine  EngineConfig  `yaml:"engine"`
	Store   StoreConfig   `yaml:"store"`
	State   StateConfig   `yaml:"state"`

	// Cycle schedule
	CycleInterval time.Duration `yaml:"-"`
	CycleWindow   time.Duration `yaml:"-"`

	// Server
	Port     int    `yaml:"-"`
	LogLevel string `yaml:"-"`
}

// Default returns the configuration used for settings absent from the file.
func Default() Config {
	e := resolve.DefaultConfig()
	return Config{
		Mailbox: MailboxConfig{OwnDomainPolicy: cycle.OwnDomainInclude},
		Oracle:  OracleConfig{Provider: "gemini", Model: oracle.DefaultGeminiModel, Timeout: 60 * time.Second},
		Engine: EngineConfig{
			ConfidenceThresholdMatch:           e.ConfidenceThresholdMatch,
			ConfidenceThresholdEarliestMention: e.ConfidenceThresholdEarliestMention,
			HistoricalWindowDays:               e.HistoricalWindowDays,
			MaxCandidatesToOracle:              e.MaxCandidatesToOracle,
			ScoreShortCircuit:                  e.ScoreShortCircuit,
			MaxHistoricalInPrompt:              10,
			MaxEarliestCandidates:              15,
			HistoricalScanLimit:                e.HistoricalScanLimit,
			MinKeywordOverlap:                  e.MinKeywordOverlap,
			Weights:                            e.Weights,
		},
		Store: StoreConfig{
			Backend: StoreWorkbook,
			Workbook: WorkbookConfig{
				OpportunitiesSheet: workbook.DefaultOpportunitiesSheet,
				OpportunitiesTable: workbook.DefaultOpportunitiesTable,
				InteractionsSheet:  workbook.DefaultInteractionsSheet,
				InteractionsTable:  workbook.DefaultInteractionsTable,
			},
		},
		State: StateConfig{Backend: StateSQLite, SQLitePath: "data/state.db"},
	}
}

// Load reads configuration from config.yaml (with env var expansion) and
// environment variables for non-YAML settings. Values missing from the
// file keep their defaults.
func Load() (*Config, error) {
	configPath := envOrDefault("CONFIG_PATH", "/app/config/config.yaml")

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("read config file %s: %w", configPath, err)
	}

	// Expand ${VAR} references in the YAML
	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config YAML: %w", err)
	}

	cfg.Oracle.APIKey = firstNonEmpty(cfg.Oracle.APIKey, os.Getenv("GEMINI_API_KEY"))
	cfg.Store.DatabaseURL = firstNonEmpty(cfg.Store.DatabaseURL, os.Getenv("DATABASE_URL"))
	cfg.State.RedisURL = firstNonEmpty(cfg.State.RedisURL, envOrDefault("REDIS_URL", "redis://localhost:6379/0"))
	cfg.CycleInterval = envOrDefaultDuration("CYCLE_INTERVAL", time.Hour)
	cfg.CycleWindow = envOrDefaultDuration("CYCLE_WINDOW", 24*time.Hour)
	cfg.Port = envOrDefaultInt("PORT", 8080)
	cfg.LogLevel = envOrDefault("LOG_LEVEL", "info")

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", configPath, err)
	}
	return &cfg, nil
}

// Validate checks backend selections and policy settings. Mailbox and
// oracle credentials are checked by the commands that need them.
func (c *Config) Validate() error {
	switch c.Mailbox.OwnDomainPolicy {
	case cycle.OwnDomainInclude, cycle.OwnDomainSkip:
	default:
		return fmt.Errorf("mailbox.own_domain_policy must be %q or %q, got %q",
			cycle.OwnDomainInclude, cycle.OwnDomainSkip, c.Mailbox.OwnDomainPolicy)
	}

	switch c.Store.Backend {
	case StorePostgres:
		if c.Store.DatabaseURL == "" {
			return errors.New("store.database_url is required for the postgres backend")
		}
	case StoreWorkbook:
		if c.Store.Workbook.ShareLink == "" {
			return errors.New("store.workbook.share_link is required for the workbook backend")
		}
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}

	switch c.State.Backend {
	case StateRedis:
	case StateSQLite:
		if c.State.SQLitePath == "" {
			return errors.New("state.sqlite_path is required for the sqlite backend")
		}
	default:
		return fmt.Errorf("unknown state backend %q", c.State.Backend)
	}
	if c.State.Retention < 0 {
		return fmt.Errorf("state.retention must not be negative, got %s", c.State.Retention)
	}
	// Trimming ids still inside a fetch window would let the next cycle
	// resolve those messages again.
	if r := c.State.Retention; r > 0 && (r < c.HistoricalWindow() || r < c.CycleWindow) {
		return fmt.Errorf("state.retention %s must cover the historical window (%s) and the cycle window (%s)",
			r, c.HistoricalWindow(), c.CycleWindow)
	}

	if c.Engine.MaxHistoricalInPrompt <= 0 || c.Engine.MaxEarliestCandidates <= 0 {
		return errors.New("engine.max_historical_in_prompt and engine.max_earliest_candidates must be positive")
	}
	if err := c.EngineConfig().Validate(); err != nil {
		return fmt.Errorf("engine: %w", err)
	}
	return nil
}

// EngineConfig derives the resolution policy settings.
func (c *Config) EngineConfig() resolve.Config {
	out := resolve.DefaultConfig()
	e := c.Engine
	out.ConfidenceThresholdMatch = e.ConfidenceThresholdMatch
	out.ConfidenceThresholdEarliestMention = e.ConfidenceThresholdEarliestMention
	out.HistoricalWindowDays = e.HistoricalWindowDays
	out.MaxCandidatesToOracle = e.MaxCandidatesToOracle
	out.ScoreShortCircuit = e.ScoreShortCircuit
	out.HistoricalScanLimit = e.HistoricalScanLimit
	out.MinKeywordOverlap = e.MinKeywordOverlap
	out.Weights = e.Weights
	if len(e.ProjectTerms) > 0 {
		out.ProjectTerms = e.ProjectTerms
	}
	return out
}

// AdapterConfig derives the oracle adapter settings for classifier.
func (c *Config) AdapterConfig(classifier oracle.Classifier) oracle.AdapterConfig {
	return oracle.AdapterConfig{
		Classifier:            classifier,
		MaxHistoryInPrompt:    c.Engine.MaxHistoricalInPrompt,
		MaxEarliestCandidates: c.Engine.MaxEarliestCandidates,
	}
}

// HistoricalWindow is the look-back of the historical fetch.
func (c *Config) HistoricalWindow() time.Duration {
	return time.Duration(c.Engine.HistoricalWindowDays) * 24 * time.Hour
}

// SlogLevel parses LogLevel, defaulting to Info.
func (c *Config) SlogLevel() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envOrDefaultDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
