package commands

import (
	"fmt"

	"github.com/marmos91/sipauth/internal/cli/prompt"
	"github.com/marmos91/sipauth/pkg/api"
	"github.com/marmos91/sipauth/pkg/config"
	"github.com/marmos91/sipauth/pkg/hss"
	"github.com/spf13/cobra"
)

var (
	initForce       bool
	initInteractive bool
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a configuration file",
	Long: `Initialize a sipauth configuration file.

By default, the configuration file is created at $XDG_CONFIG_HOME/sipauth/config.yaml.
Use --config to specify a custom path.

Examples:
  # Initialize with defaults
  sipauth init

  # Answer a few questions first
  sipauth init --interactive

  # Force overwrite existing config
  sipauth init --force --config /etc/sipauth/config.yaml`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Force overwrite existing config file")
	initCmd.Flags().BoolVarP(&initInteractive, "interactive", "i", false, "Prompt for the main settings")
}

func runInit(cmd *cobra.Command, args []string) error {
	cfg := config.GetDefaultConfig()
	secret, err := config.GenerateSecret()
	if err != nil {
		return err
	}
	cfg.API.JWT.Secret = secret

	if initInteractive {
		if err := promptConfig(cfg); err != nil {
			if prompt.IsAborted(err) {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Aborted.")
				return nil
			}
			return err
		}
	}

	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	configPath := resolveConfigFile()
	if err := config.WriteInitialConfig(cfg, configPath, initForce); err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "Configuration file created at: %s\n", configPath)
	_, _ = fmt.Fprintln(out, "\nNext steps:")
	_, _ = fmt.Fprintln(out, "  1. Edit the configuration file to point hss.url at your HSS")
	_, _ = fmt.Fprintln(out, "  2. Start the server with: sipauth start")
	_, _ = fmt.Fprintf(out, "  3. Or specify custom config: sipauth start --config %s\n", configPath)
	_, _ = fmt.Fprintln(out, "\nSecurity note:")
	_, _ = fmt.Fprintln(out, "  A random API secret has been written to the file.")
	_, _ = fmt.Fprintln(out, "  For production, supply it through the environment instead:")
	_, _ = fmt.Fprintf(out, "    export %s=$(openssl rand -hex 32)\n", api.EnvAPISecret)
	return nil
}

func promptConfig(cfg *config.Config) error {
	realm, err := prompt.Input("Realm (empty uses the host name)", cfg.Auth.Realm)
	if err != nil {
		return err
	}
	cfg.Auth.Realm = realm

	port, err := prompt.InputPort("API port", cfg.API.Port)
	if err != nil {
		return err
	}
	cfg.API.Port = port

	ttl, err := prompt.InputDuration("Challenge lifetime", cfg.Auth.VectorTTL)
	if err != nil {
		return err
	}
	cfg.Auth.VectorTTL = ttl

	hssType, err := prompt.Select("Credential source", []string{config.HSSTypeHTTP, config.HSSTypeStatic})
	if err != nil {
		return err
	}
	cfg.HSS.Type = hssType

	switch hssType {
	case config.HSSTypeHTTP:
		url, err := prompt.InputWithValidation("HSS base URL", cfg.HSS.URL, requireValue)
		if err != nil {
			return err
		}
		cfg.HSS.URL = url
	case config.HSSTypeStatic:
		if err := promptSubscriber(cfg); err != nil {
			return err
		}
	}

	storeType, err := prompt.Select("Vector store", []string{config.VectorStoreMemory, config.VectorStoreBadger, config.VectorStoreSQL})
	if err != nil {
		return err
	}
	cfg.VectorStore.Type = storeType
	if storeType == config.VectorStoreBadger {
		path, err := prompt.InputWithValidation("Badger directory", cfg.VectorStore.Badger.Path, requireValue)
		if err != nil {
			return err
		}
		cfg.VectorStore.Badger.Path = path
	}

	metricsOn, err := prompt.Confirm("Enable Prometheus metrics", cfg.Metrics.Enabled)
	if err != nil {
		return err
	}
	cfg.Metrics.Enabled = metricsOn
	return nil
}

func promptSubscriber(cfg *config.Config) error {
	impi, err := prompt.InputWithValidation("Subscriber private identity", "", requireValue)
	if err != nil {
		return err
	}
	password, err := prompt.Password("Subscriber password")
	if err != nil {
		return err
	}
	cfg.HSS.Subscribers = append(cfg.HSS.Subscribers, hss.Subscriber{IMPI: impi, Password: password, QoP: "auth"})
	return nil
}

func requireValue(s string) error {
	if s == "" {
		return fmt.Errorf("value is required")
	}
	return nil
}
