// Package commands implements the sipauth command line.
package commands

import (
	"github.com/marmos91/sipauth/cmd/sipauth/commands/config"
	"github.com/spf13/cobra"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"

	// Global flags.
	cfgFile string
)

var rootCmd = &cobra.Command{
	Use:   "sipauth",
	Short: "sipauth - SIP registration authentication",
	Long: `sipauth decides, for each SIP request handed to it by the signaling
layer, whether the request passes, is challenged with a 401, is rejected or
is silently discarded. REGISTER requests are authenticated with HTTP Digest
(RFC 3261) or 3GPP AKA (RFC 3310) using vectors fetched from an HSS.

Use "sipauth [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. Called once by main.main().
func Execute() error {
	return rootCmd.Execute()
}

// GetRootCmd returns the root command for testing purposes.
func GetRootCmd() *cobra.Command {
	return rootCmd
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $XDG_CONFIG_HOME/sipauth/config.yaml)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(vectorsCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(config.Cmd)
	rootCmd.AddCommand(completionCmd)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// GetConfigFile returns the config file path from the global flag.
func GetConfigFile() string {
	return cfgFile
}
