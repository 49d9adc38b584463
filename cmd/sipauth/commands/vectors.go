package commands

import (
	"fmt"

	"github.com/marmos91/sipauth/pkg/apiclient"
	"github.com/spf13/cobra"
)

var vectorsCmd = &cobra.Command{
	Use:   "vectors",
	Short: "Manage outstanding authentication vectors",
}

var purgeCmd = &cobra.Command{
	Use:   "purge <impi>",
	Short: "Drop every outstanding challenge of a private identity",
	Long: `Drop every outstanding challenge of a private identity on a running
server. The subscriber's next REGISTER is challenged afresh.

Examples:
  sipauth vectors purge alice@ims.example.com
  sipauth vectors purge alice@ims.example.com --server http://sipauth:8080 --token $TOKEN`,
	Args: cobra.ExactArgs(1),
	RunE: runPurge,
}

func init() {
	addClientFlags(purgeCmd)
	vectorsCmd.AddCommand(purgeCmd)
}

func runPurge(cmd *cobra.Command, args []string) error {
	client, err := newClient(true)
	if err != nil {
		return err
	}
	purged, err := client.PurgeVectors(cmd.Context(), args[0])
	if err != nil {
		if apiclient.IsAuthError(err) {
			return fmt.Errorf("purge refused: %w", err)
		}
		return err
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Purged %d vector(s) of %s\n", purged, args[0])
	return nil
}
