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
	"context"

	"github.com/spf13/cobra"

	"github.com/bcem/leadtracker/internal/app"
	"github.com/bcem/leadtracker/internal/config"
	"github.com/bcem/leadtracker/internal/state"
	"github.com/bcem/leadtracker/internal/store/memory"
)

// replayWindowDays makes the replay windows cover every file.
const replayWindowDays = 50 * 365

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Dir       string
	StatePath string
	DryRun    bool
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Run one cycle over a directory of .eml files",
		Long: `Run one cycle over a directory of .eml files.

Every message in the directory serves as both the event window and the
history. Processed message ids are kept in a local SQLite file so a
second replay only resolves new files. With --dry-run the registry starts
empty and nothing is written to the configured store.

Examples:
  oppctl replay --dir ./exports
  oppctl replay --dir ./exports --state ./replay.db
  oppctl replay --dir ./exports --dry-run --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Dir, "dir", "", "directory of .eml files (required)")
	_ = cmd.MarkFlagRequired("dir")
	cmd.Flags().StringVar(&opts.StatePath, "state", ":memory:", "SQLite processing state file")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "resolve into an in-memory store and print the interactions")

	return cmd
}

func runReplay(cmd *cobra.Command, opts *ReplayOptions) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	// Replayed mail can be arbitrarily old.
	cfg.Engine.HistoricalWindowDays = replayWindowDays
	cfg.CycleWindow = cfg.HistoricalWindow()

	st, err := state.OpenSQLite(opts.StatePath, 0)
	if err != nil {
		return err
	}
	defer st.Close()

	appOpts := app.Options{MailDir: opts.Dir, State: st}
	var mem *memory.Store
	if opts.DryRun {
		mem = memory.NewStore()
		appOpts.Store = mem
	}

	a, err := app.New(ctx, cfg, appOpts)
	if err != nil {
		return err
	}
	defer a.Close()

	rep, runErr := a.Runner.Run(ctx)
	out := cmd.OutOrStdout()
	if err := printReport(out, opts.Format, rep); err != nil {
		return err
	}
	if mem != nil && runErr == nil {
		if err := printInteractions(out, opts.Format, mem.Interactions()); err != nil {
			return err
		}
	}
	return runErr
}
