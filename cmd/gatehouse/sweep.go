// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/gatehouse/gatehouse/internal/auth"
	"github.com/gatehouse/gatehouse/internal/config"
	"github.com/gatehouse/gatehouse/internal/logging"
)

const defaultSweepTimeout = 30 * time.Second

// NewSweepCmd creates the sweep subcommand.
func NewSweepCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Purge idle-expired sessions and expired remember tokens once",
		Long: `Run a single sweep of idle-expired sessions and expired remember
tokens. The serve command runs the same sweep periodically; this command is
for cron-style deployments and operational cleanup.`,
		RunE: runSweep,
	}

	cmd.Flags().String("database.url", "", "PostgreSQL connection string (overrides config)")
	cmd.Flags().Duration("timeout", defaultSweepTimeout, "timeout for the sweep")

	return cmd
}

func runSweep(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(resolveConfigFile(), cmd.Flags())
	if err != nil {
		return err
	}

	logging.SetDefault("gatehouse", version, cfg.Log.Format)

	timeout, err := cmd.Flags().GetDuration("timeout")
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	r, err := openRepos(ctx, cfg)
	if err != nil {
		return err
	}
	defer r.close()

	janitor := auth.NewJanitor(r.sessions, r.tokens, cfg.Session.IdleTimeout, cfg.Janitor.Interval)
	if err := janitor.RunOnce(ctx); err != nil {
		return err
	}

	cmd.Println("Sweep completed")
	return nil
}
