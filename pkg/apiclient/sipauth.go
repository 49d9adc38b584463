package apiclient

import (
	"context"
	"net/http"

	"github.com/marmos91/sipauth/pkg/api/handlers"
	"github.com/marmos91/sipauth/pkg/sip"
)

// AuthenticateRequest is a SIP request as sent to the decision endpoint.
// Authorization is the raw header value, empty when the request has none.
type AuthenticateRequest struct {
	Method        sip.Method `json:"method"`
	RequestURI    string     `json:"request_uri,omitempty"`
	From          string     `json:"from"`
	To            string     `json:"to"`
	CallID        string     `json:"call_id"`
	TraceID       string     `json:"trace_id,omitempty"`
	Authorization string     `json:"authorization,omitempty"`
}

// Authenticate asks the decision engine what to do with req.
func (c *Client) Authenticate(ctx context.Context, req AuthenticateRequest) (*handlers.DecisionResponse, error) {
	var resp handlers.DecisionResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/authenticate", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// PurgeVectors removes every outstanding vector of impi. Needs an admin
// token.
func (c *Client) PurgeVectors(ctx context.Context, impi string) (int, error) {
	var resp handlers.PurgeResponse
	if err := c.do(ctx, http.MethodDelete, "/api/v1/vectors/"+escape(impi), nil, &resp); err != nil {
		return 0, err
	}
	return resp.Purged, nil
}

// Health is the body of the health endpoints.
type Health = handlers.Response

// Ready queries GET /health/ready. A not-ready server yields an APIError
// with status 503.
func (c *Client) Ready(ctx context.Context) (*Health, error) {
	var resp Health
	if err := c.do(ctx, http.MethodGet, "/health/ready", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
