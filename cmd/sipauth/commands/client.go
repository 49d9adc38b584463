package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/marmos91/sipauth/pkg/api/auth"
	"github.com/marmos91/sipauth/pkg/apiclient"
	"github.com/marmos91/sipauth/pkg/config"
	"github.com/spf13/cobra"
)

// EnvAPIToken supplies the bearer token of the client commands.
const EnvAPIToken = "SIPAUTH_API_TOKEN"

var (
	serverURL string
	apiToken  string
)

// addClientFlags registers the flags shared by commands talking to a
// running server.
func addClientFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&serverURL, "server", "", "Server URL (default: http://localhost:<api.port>)")
	cmd.Flags().StringVar(&apiToken, "token", "", "Bearer token (default: $"+EnvAPIToken+", or minted from the configured secret)")
}

// newClient builds an API client. With admin set and no explicit token, one
// is minted from the local configuration.
func newClient(admin bool) (*apiclient.Client, error) {
	cfg, cfgErr := config.Load(GetConfigFile())

	url := serverURL
	if url == "" {
		port := 8080
		if cfgErr == nil && cfg.API.Port != 0 {
			port = cfg.API.Port
		}
		url = fmt.Sprintf("http://localhost:%d", port)
	}
	if !strings.Contains(url, "://") {
		url = "http://" + url
	}
	client := apiclient.New(url)

	token := apiToken
	if token == "" {
		token = os.Getenv(EnvAPIToken)
	}
	if token == "" && admin {
		if cfgErr != nil {
			return nil, fmt.Errorf("no token given and config unavailable: %w", cfgErr)
		}
		var err error
		token, _, err = mintToken(cfg, "sipauth-cli", auth.RoleAdmin, 0)
		if err != nil {
			return nil, fmt.Errorf("no token given: %w", err)
		}
	}
	if token != "" {
		client.SetToken(token)
	}
	return client, nil
}
