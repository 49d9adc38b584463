package commands

import (
	"fmt"
	"time"

	"github.com/marmos91/sipauth/pkg/api/auth"
	"github.com/marmos91/sipauth/pkg/config"
	"github.com/spf13/cobra"
)

var (
	tokenSubject  string
	tokenRole     string
	tokenDuration time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint an admin API token",
	Long: `Mint a bearer token for the admin API, signed with the configured secret.

The secret is read from SIPAUTH_API_SECRET or api.jwt.secret.

Examples:
  # Admin token valid for the configured duration
  sipauth token

  # Read-only token for a dashboard, valid one day
  sipauth token --subject grafana --role readonly --duration 24h`,
	RunE: runToken,
}

func init() {
	tokenCmd.Flags().StringVar(&tokenSubject, "subject", "admin", "Token subject")
	tokenCmd.Flags().StringVar(&tokenRole, "role", string(auth.RoleAdmin), "Token role (admin|readonly)")
	tokenCmd.Flags().DurationVar(&tokenDuration, "duration", 0, "Token lifetime (default: api.jwt.access_token_duration)")
}

func runToken(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}
	token, expiresAt, err := mintToken(cfg, tokenSubject, auth.Role(tokenRole), tokenDuration)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(cmd.OutOrStdout(), token)
	_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "expires at %s\n", expiresAt.Format(time.RFC3339))
	return nil
}

func mintToken(cfg *config.Config, subject string, role auth.Role, duration time.Duration) (string, time.Time, error) {
	secret := cfg.API.GetJWTSecret()
	if secret == "" {
		return "", time.Time{}, fmt.Errorf("no API secret configured (set api.jwt.secret or SIPAUTH_API_SECRET)")
	}
	if duration <= 0 {
		duration = cfg.API.JWT.AccessTokenDuration
	}
	svc, err := auth.NewJWTService(secret, duration)
	if err != nil {
		return "", time.Time{}, err
	}
	return svc.GenerateToken(subject, role)
}
