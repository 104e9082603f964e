// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/verbavid/verbavid-api/internal/core/services"
)

// EnvAdminPassword supplies the admin password without a flag.
const EnvAdminPassword = "VERBAVID_ADMIN_PASSWORD"

func newAdminCommand(ctx *commandContext) *cobra.Command {
	adminCmd := &cobra.Command{
		Use:   "admin",
		Short: "Manage admin accounts",
	}
	adminCmd.AddCommand(newAdminCreateCommand(ctx))
	adminCmd.AddCommand(newAdminCheckCommand(ctx))
	return adminCmd
}

func newAdminCreateCommand(ctx *commandContext) *cobra.Command {
	var name, email, password string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an admin, or promote an existing account",
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				password = os.Getenv(EnvAdminPassword)
			}
			if len(password) < 6 {
				return fmt.Errorf("password must be at least 6 characters (use --password or $%s)", EnvAdminPassword)
			}
			accounts, err := ctx.accounts()
			if err != nil {
				return err
			}
			user, err := accounts.CreateAdmin(cmd.Context(), strings.TrimSpace(name), email, password)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Admin ready: %s (id %d)\n", user.Email, user.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "Administrator", "Display name")
	cmd.Flags().StringVar(&email, "email", "", "Login email")
	cmd.Flags().StringVar(&password, "password", "", "Login password")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func newAdminCheckCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "check <email>",
		Short: "Report whether an account exists and is an admin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			accounts, err := ctx.accounts()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			user, err := accounts.Store.FindUserByEmail(cmd.Context(), strings.ToLower(strings.TrimSpace(args[0])))
			if errors.Is(err, services.ErrUserNotFound) {
				fmt.Fprintf(out, "%s: no such account\n", args[0])
				return nil
			}
			if err != nil {
				return err
			}
			if user.IsAdmin() {
				fmt.Fprintf(out, "%s: admin (id %d)\n", user.Email, user.ID)
			} else {
				fmt.Fprintf(out, "%s: not an admin (role %s)\n", user.Email, user.Role)
			}
			return nil
		},
	}
}

func newUsersCommand(ctx *commandContext) *cobra.Command {
	usersCmd := &cobra.Command{
		Use:   "users",
		Short: "Inspect user accounts",
	}
	usersCmd.AddCommand(newUsersListCommand(ctx))
	usersCmd.AddCommand(newUsersStatsCommand(ctx))
	usersCmd.AddCommand(newUsersResetTokenCommand(ctx))
	return usersCmd
}

func newUsersListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every account",
		RunE: func(cmd *cobra.Command, args []string) error {
			accounts, err := ctx.accounts()
			if err != nil {
				return err
			}
			users, err := accounts.ListUsers(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(users) == 0 {
				fmt.Fprintln(out, "No users")
				return nil
			}
			rows := make([][]string, 0, len(users))
			for _, u := range users {
				rows = append(rows, []string{
					strconv.FormatUint(uint64(u.ID), 10),
					u.Name,
					u.Email,
					u.Role,
					u.CreatedAt.Local().Format("2006-01-02 15:04"),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"ID", "Name", "Email", "Role", "Created"},
				rows,
				[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft},
			))
			return nil
		},
	}
}

func newUsersStatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show sign-up statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			accounts, err := ctx.accounts()
			if err != nil {
				return err
			}
			stats, err := accounts.Stats(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Total users: %d\n", stats.TotalUsers)
			fmt.Fprintf(out, "New (7 days): %d\n", stats.NewUsers)
			rows := make([][]string, 0, len(stats.MonthlyStats))
			for _, m := range stats.MonthlyStats {
				rows = append(rows, []string{m.Month, strconv.FormatInt(m.Count, 10)})
			}
			fmt.Fprintln(out, renderTable([]string{"Month", "Sign-ups"}, rows, []columnAlignment{alignLeft, alignRight}))
			return nil
		},
	}
}

func newUsersResetTokenCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "reset-token <email>",
		Short: "Issue a password reset token and print it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			accounts, err := ctx.accounts()
			if err != nil {
				return err
			}
			token, err := accounts.ForgotPassword(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
}
