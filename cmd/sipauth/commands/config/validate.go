package config

import (
	"fmt"

	"github.com/marmos91/sipauth/pkg/config"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long: `Validate the sipauth configuration file.

Checks for syntax errors, missing required fields, and invalid values.

Examples:
  sipauth config validate
  sipauth config validate --config /etc/sipauth/config.yaml`,
	RunE: runConfigValidate,
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	path := configPath(cmd)
	cfg, err := config.MustLoad(path)
	if err != nil {
		return err
	}

	displayPath := path
	if displayPath == "" {
		displayPath = config.GetDefaultConfigPath()
	}

	var warnings []string
	if cfg.API.GetJWTSecret() == "" {
		warnings = append(warnings, "API secret not configured - admin endpoints are disabled")
	}
	if cfg.Auth.Realm == "" {
		warnings = append(warnings, "Realm not configured - the host name is used")
	}
	if cfg.VectorStore.Type == config.VectorStoreMemory {
		warnings = append(warnings, "Memory vector store - challenges do not survive a restart or span replicas")
	}
	if cfg.HSS.Type == config.HSSTypeStatic {
		warnings = append(warnings, "Static credential source - intended for labs")
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "Configuration file: %s\n", displayPath)
	_, _ = fmt.Fprintln(out, "Validation: OK")

	if len(warnings) > 0 {
		_, _ = fmt.Fprintln(out, "\nWarnings:")
		for _, w := range warnings {
			_, _ = fmt.Fprintf(out, "  - %s\n", w)
		}
	}

	_, _ = fmt.Fprintf(out, "\nConfiguration summary:\n")
	_, _ = fmt.Fprintf(out, "  Realm:           %s\n", cfg.Auth.Realm)
	_, _ = fmt.Fprintf(out, "  Vector store:    %s\n", cfg.VectorStore.Type)
	_, _ = fmt.Fprintf(out, "  HSS:             %s\n", cfg.HSS.Type)
	_, _ = fmt.Fprintf(out, "  API port:        %d\n", cfg.API.Port)
	_, _ = fmt.Fprintf(out, "  Log level:       %s\n", cfg.Logging.Level)
	return nil
}
