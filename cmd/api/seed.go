package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/spec-kit/factory-support/internal/auth"
	"github.com/spec-kit/factory-support/internal/config"
	"github.com/spec-kit/factory-support/internal/domain"
	"github.com/spec-kit/factory-support/internal/observability"
)

func newSeedCmd(v *viper.Viper) *cobra.Command {
	var (
		name     string
		email    string
		password string
		role     string
		issue    string
		ownerID  int64
	)
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create an account, and optionally an issue it owns, in the configured store",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadWith(v)
			if err != nil {
				return err
			}
			logger, err := observability.NewLogger(cfg.App, cfg.Logger)
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck
			ctx := cmd.Context()

			st, err := openStores(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer st.Close()

			out := cmd.OutOrStdout()
			if email != "" {
				r := domain.Role(role)
				if !r.Valid() || password == "" {
					return fmt.Errorf("--password and a valid --role are required with --email")
				}
				hash, err := auth.HashPassword(password, cfg.Auth.BcryptCost)
				if err != nil {
					return err
				}
				user := &domain.User{FullName: name, Email: email, PasswordHash: hash, Role: r}
				if err := st.repos.Users.Create(ctx, user); err != nil {
					return err
				}
				fmt.Fprintf(out, "user %d %s (%s)\n", user.ID, user.Email, user.Role)
				if ownerID == 0 {
					ownerID = user.ID
				}
			}
			if issue != "" {
				if ownerID <= 0 {
					return fmt.Errorf("--owner-id is required to create an issue without --email")
				}
				created := &domain.Issue{OwnerID: ownerID, Title: issue}
				if err := st.repos.Issues.Create(ctx, created); err != nil {
					return err
				}
				fmt.Fprintf(out, "issue %d %q owned by %d\n", created.ID, created.Title, created.OwnerID)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "full name of the account")
	cmd.Flags().StringVar(&email, "email", "", "email of the account to create")
	cmd.Flags().StringVar(&password, "password", "", "password of the account")
	cmd.Flags().StringVar(&role, "role", string(domain.RoleDepartment), "account role")
	cmd.Flags().StringVar(&issue, "issue", "", "title of an issue to create")
	cmd.Flags().Int64Var(&ownerID, "owner-id", 0, "owner of the issue when no account is created")
	return cmd
}
