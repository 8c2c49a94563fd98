package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"identity-hub/internal/domain"
	infratoken "identity-hub/internal/infrastructure/token"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

const secretEnv = "PL_JWT_SECRET"

var errNoSecret = errors.New("signing secret not set: pass --secret or set " + secretEnv)

// newRootCmd builds the command tree. A fresh tree per call keeps flag state out of tests.
func newRootCmd() *cobra.Command {
	var secret string

	root := &cobra.Command{
		Use:   "pl-token",
		Short: "Mint and verify console session tokens",
		Long: `pl-token signs and checks the HS256 session tokens that the management
proxy accepts in the x-pl-auth-token header.

Example usage:
  pl-token mint --sub user-1 --email admin@example.com --roles admin
  pl-token verify eyJhbGciOiJIUzI1NiIs...`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			_ = godotenv.Load()
			if secret == "" {
				secret = os.Getenv(secretEnv)
			}
			if secret == "" {
				return errNoSecret
			}
			return nil
		},
	}
	root.PersistentFlags().StringVar(&secret, "secret", "", "HMAC signing secret (default $"+secretEnv+")")

	root.AddCommand(newMintCmd(&secret), newVerifyCmd(&secret))
	return root
}

func newMintCmd(secret *string) *cobra.Command {
	var (
		claims domain.SessionClaims
		roles  string
		scopes string
		ttl    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "mint",
		Short: "Print a signed session token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if claims.Subject == "" {
				return errors.New("--sub is required")
			}
			if ttl <= 0 {
				return errors.New("--ttl must be positive")
			}
			claims.Roles = splitFlag(roles)
			claims.Scopes = splitFlag(scopes)

			issuer := infratoken.NewSessionIssuer(infratoken.SessionConfig{Secret: *secret, TTL: ttl})
			signed, err := issuer.Issue(claims)
			if err != nil {
				return fmt.Errorf("sign token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), signed)
			return nil
		},
	}

	cmd.Flags().StringVar(&claims.Subject, "sub", "", "subject (user id)")
	cmd.Flags().StringVar(&claims.Email, "email", "", "email claim")
	cmd.Flags().StringVar(&claims.OrgID, "org", "", "organization id claim")
	cmd.Flags().StringVar(&roles, "roles", "admin", "comma-separated roles")
	cmd.Flags().StringVar(&scopes, "scopes", "", "comma-separated scopes")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}

func newVerifyCmd(secret *string) *cobra.Command {
	return &cobra.Command{
		Use:   "verify <token>",
		Short: "Verify a session token and print its claims as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			claims, err := infratoken.NewSessionVerifier(*secret).Verify(strings.TrimSpace(args[0]))
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]any{
				"sub":        claims.Subject,
				"email":      claims.Email,
				"org_id":     claims.OrgID,
				"roles":      claims.Roles,
				"scopes":     claims.Scopes,
				"issued_at":  claims.IssuedAt.UTC().Format(time.RFC3339),
				"expires_at": claims.ExpiresAt.UTC().Format(time.RFC3339),
			})
		},
	}
}

func splitFlag(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
