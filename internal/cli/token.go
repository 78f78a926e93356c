package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/spec-kit/helpdesk/internal/auth"
	"github.com/spec-kit/helpdesk/internal/config"
	"github.com/spec-kit/helpdesk/internal/domain"
)

// TokenCmd groups bearer token helpers.
func TokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Bearer token helpers",
	}
	cmd.AddCommand(tokenIssueCmd())
	return cmd
}

func tokenIssueCmd() *cobra.Command {
	var (
		userID string
		role   string
		ttl    int
	)
	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Sign an access token for a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			userID = strings.TrimSpace(userID)
			if userID == "" {
				return fmt.Errorf("--user-id is required")
			}
			userRole := domain.UserRole(role)
			switch userRole {
			case domain.UserRoleClient, domain.UserRoleAgent, domain.UserRoleAdmin:
			default:
				return fmt.Errorf("unknown role %q", role)
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if ttl <= 0 {
				ttl = cfg.Auth.AccessTokenTTLMinutes
			}
			token, _, err := auth.NewTokenManager(cfg.Auth.JWTSecret, ttl).GenerateToken(userID, userRole)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user-id", "", "user id to embed in the token")
	cmd.Flags().StringVar(&role, "role", string(domain.UserRoleAdmin), "client, agent or admin")
	cmd.Flags().IntVar(&ttl, "ttl", 0, "lifetime in minutes (defaults to AUTH_ACCESS_TOKEN_TTL_MINUTES)")
	return cmd
}
