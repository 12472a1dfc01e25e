package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"taxdesk/internal/auth"
	"taxdesk/internal/core"
	"taxdesk/internal/log"
)

func newTokenCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Bearer token utilities",
	}

	var (
		email  string
		userID string
	)
	issue := &cobra.Command{
		Use:   "issue",
		Short: "Issue a bearer token for an existing account",
		Long: `Issue signs a token for the account identified by --email or --user-id
with JWT_SECRET, valid for TOKEN_TTL (or --ttl).`,
		Example: `  taxdeskctl token issue --email ayesha@example.pk
  taxdeskctl token issue --user-id 6f1c... --ttl 15m`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if (email == "") == (userID == "") {
				return errors.New("exactly one of --email or --user-id is required")
			}
			if len(opts.cfg.JWTSecret) < 32 {
				return errors.New("JWT_SECRET must be at least 32 characters")
			}
			ttl, err := cmd.Flags().GetDuration("ttl")
			if err != nil {
				return err
			}
			if ttl <= 0 {
				ttl = opts.cfg.TokenTTL
			}

			repo, err := opts.openRepository()
			if err != nil {
				return err
			}
			defer repo.Close()

			var u core.User
			if email != "" {
				normalized, nerr := core.NormalizeEmail(email)
				if nerr != nil {
					return nerr
				}
				u, err = repo.UserByEmail(cmd.Context(), normalized)
			} else {
				u, err = repo.UserByID(cmd.Context(), userID)
			}
			if errors.Is(err, core.ErrNotFound) {
				return fmt.Errorf("no such account")
			}
			if err != nil {
				return err
			}

			token, err := auth.NewJWTManager(opts.cfg.JWTSecret, ttl).Generate(u)
			if err != nil {
				return err
			}
			opts.logger.Info("Token issued", log.FieldUserID, u.ID, "ttl", ttl.String())
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	issue.Flags().StringVar(&email, "email", "", "Account email")
	issue.Flags().StringVar(&userID, "user-id", "", "Account id")
	issue.Flags().Duration("ttl", 0, "Token lifetime (defaults to TOKEN_TTL)")

	cmd.AddCommand(issue)
	return cmd
}
