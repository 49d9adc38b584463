package commands

import (
	"os"
	"strconv"

	"github.com/marmos91/sipauth/internal/cli/output"
	"github.com/marmos91/sipauth/pkg/api/handlers"
	"github.com/marmos91/sipauth/pkg/apiclient"
	"github.com/marmos91/sipauth/pkg/sip"
	"github.com/spf13/cobra"
)

var (
	checkMethod        string
	checkFrom          string
	checkTo            string
	checkCallID        string
	checkURI           string
	checkAuthorization string
	checkOutput        string
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Ask a running server to decide a request",
	Long: `Send a synthetic SIP request to the decision endpoint of a running
server and print the decision.

Examples:
  # Expect a 401 challenge
  sipauth check --from sip:alice@ims.example.com --to sip:alice@ims.example.com

  # Answer it
  sipauth check --from sip:alice@ims.example.com --to sip:alice@ims.example.com \
    --authorization 'Digest username="alice@ims.example.com", ...'`,
	RunE: runCheck,
}

func init() {
	addClientFlags(checkCmd)
	checkCmd.Flags().StringVar(&checkMethod, "method", string(sip.REGISTER), "SIP method")
	checkCmd.Flags().StringVar(&checkFrom, "from", "", "From header")
	checkCmd.Flags().StringVar(&checkTo, "to", "", "To header")
	checkCmd.Flags().StringVar(&checkCallID, "call-id", "sipauth-check", "Call-ID header")
	checkCmd.Flags().StringVar(&checkURI, "uri", "", "Request-URI")
	checkCmd.Flags().StringVar(&checkAuthorization, "authorization", "", "Authorization header value")
	checkCmd.Flags().StringVarP(&checkOutput, "output", "o", "table", "Output format (table|json|yaml)")
	_ = checkCmd.MarkFlagRequired("to")
}

func runCheck(cmd *cobra.Command, args []string) error {
	format, err := output.ParseFormat(checkOutput)
	if err != nil {
		return err
	}
	client, err := newClient(false)
	if err != nil {
		return err
	}

	from := checkFrom
	if from == "" {
		from = checkTo
	}
	resp, err := client.Authenticate(cmd.Context(), apiclient.AuthenticateRequest{
		Method:        sip.ParseMethod(checkMethod),
		RequestURI:    checkURI,
		From:          from,
		To:            checkTo,
		CallID:        checkCallID,
		Authorization: checkAuthorization,
	})
	if err != nil {
		return err
	}
	if format == output.FormatTable {
		return output.PrintTable(os.Stdout, decisionTable(resp))
	}
	return output.Print(os.Stdout, format, resp)
}

func decisionTable(resp *handlers.DecisionResponse) *output.Table {
	t := output.NewTable("FIELD", "VALUE")
	t.AddRow("outcome", resp.Outcome.String())
	if resp.StatusCode != 0 {
		t.AddRow("status", strconv.Itoa(resp.StatusCode))
	}
	if resp.Reason != "" {
		t.AddRow("reason", resp.Reason)
	}
	if resp.WWWAuthenticate != "" {
		t.AddRow("www-authenticate", resp.WWWAuthenticate)
	}
	t.AddRow("trace id", resp.TraceID)
	return t
}
