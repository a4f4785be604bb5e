// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package main

import (
	"bufio"
	"context"
	"strings"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/gatehouse/gatehouse/internal/auth"
	"github.com/gatehouse/gatehouse/internal/config"
	"github.com/gatehouse/gatehouse/internal/logging"
)

const defaultUserTimeout = 30 * time.Second

// NewUserCmd creates the user subcommand.
func NewUserCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage user accounts",
	}

	cmd.PersistentFlags().String("database.url", "", "PostgreSQL connection string (overrides config)")

	create := &cobra.Command{
		Use:   "create <username>",
		Short: "Create a user account",
		Long: `Create a user account. The password is read from the first line of
standard input so it never appears in shell history or process listings.`,
		Args: cobra.ExactArgs(1),
		RunE: runUserCreate,
	}
	cmd.AddCommand(create)

	return cmd
}

func runUserCreate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(resolveConfigFile(), cmd.Flags())
	if err != nil {
		return err
	}

	logging.SetDefault("gatehouse", version, cfg.Log.Format)

	password, err := readPassword(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), defaultUserTimeout)
	defer cancel()

	r, err := openRepos(ctx, cfg)
	if err != nil {
		return err
	}
	defer r.close()

	hasher := auth.NewArgon2idHasher()
	authenticator, err := auth.NewAuthenticator(r.users, hasher)
	if err != nil {
		return err
	}

	user, err := authenticator.Register(ctx, args[0], password)
	if err != nil {
		return err
	}

	cmd.Printf("Created user %s (id: %s)\n", user.Username, user.ID.String())
	return nil
}

func readPassword(cmd *cobra.Command) (string, error) {
	reader := bufio.NewReader(cmd.InOrStdin())
	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		return "", oops.Code("PASSWORD_READ_FAILED").Wrap(err)
	}
	password := strings.TrimRight(line, "\r\n")
	if password == "" {
		return "", oops.Code("PASSWORD_READ_FAILED").Errorf("password must not be empty")
	}
	return password, nil
}
