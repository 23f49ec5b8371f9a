package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/spec-kit/factory-support/internal/auth"
	"github.com/spec-kit/factory-support/internal/config"
	"github.com/spec-kit/factory-support/internal/domain"
)

func newTokenCmd(v *viper.Viper) *cobra.Command {
	var (
		userID int64
		role   string
		email  string
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Print a session token for local testing",
		Long: `Prints a signed session token for the given user id and role. Pass it as the
token cookie, a Bearer header or the token query parameter of /ws.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadWith(v)
			if err != nil {
				return err
			}
			r := domain.Role(role)
			if userID <= 0 || !r.Valid() {
				return fmt.Errorf("--user-id must be positive and --role one of admin, technician, department")
			}
			tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL())
			token, exp, err := tokens.GenerateToken(&domain.User{ID: userID, Email: email, Role: r})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", exp.Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().Int64Var(&userID, "user-id", 0, "user id to embed")
	cmd.Flags().StringVar(&role, "role", string(domain.RoleAdmin), "role to embed")
	cmd.Flags().StringVar(&email, "email", "", "email to embed")
	return cmd
}
