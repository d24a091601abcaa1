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
)

// NewCycleCommand creates the cycle command.
func NewCycleCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "cycle",
		Short: "Run one resolution cycle against the configured mailbox and stores",
		Long: `Run one resolution cycle against the configured mailbox and stores.

The cycle uses the same configuration as the service (CONFIG_PATH) and
commits the processing state only when every record was written.

Examples:
  oppctl cycle
  oppctl cycle --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			a, err := app.New(ctx, cfg, app.Options{})
			if err != nil {
				return err
			}
			defer a.Close()

			rep, runErr := a.Runner.Run(ctx)
			if err := printReport(cmd.OutOrStdout(), rootOpts.Format, rep); err != nil {
				return err
			}
			return runErr
		},
	}
}
