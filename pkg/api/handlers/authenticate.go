package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/marmos91/sipauth/internal/logger"
	"github.com/marmos91/sipauth/pkg/authn"
	"github.com/marmos91/sipauth/pkg/sip"
)

// maxRequestBody bounds a decoded SIP request.
const maxRequestBody = 64 << 10

// Decider is the decision engine as seen by the HTTP boundary.
type Decider interface {
	Decide(ctx context.Context, req *sip.Request) authn.Decision
	DecideMalformed(ctx context.Context, req *sip.Request, cause error) authn.Decision
}

// DecisionResponse is the body of POST /api/v1/authenticate.
type DecisionResponse struct {
	authn.Decision

	// WWWAuthenticate is the header value to send with a 401.
	WWWAuthenticate string `json:"www_authenticate,omitempty"`

	// TraceID echoes the request's trace id, generated when it had none.
	TraceID string `json:"trace_id"`
}

// AuthenticateHandler serves the decision endpoint.
type AuthenticateHandler struct {
	decider Decider
}

// NewAuthenticateHandler creates the decision handler.
func NewAuthenticateHandler(decider Decider) *AuthenticateHandler {
	return &AuthenticateHandler{decider: decider}
}

// authenticateRequest is a sip.Request with a raw Authorization header, so
// an unparseable header is still a decidable request.
type authenticateRequest struct {
	sip.Request
	Authorization string `json:"authorization,omitempty"`
}

// Authenticate handles POST /api/v1/authenticate.
//
// A request the engine decided on always answers 200, whatever the SIP
// outcome; HTTP errors are reserved for bodies that are not a SIP request.
func (h *AuthenticateHandler) Authenticate(w http.ResponseWriter, r *http.Request) {
	var body authenticateRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&body); err != nil {
		BadRequest(w, "Invalid request body")
		return
	}

	req := body.Request
	req.Method = sip.ParseMethod(req.Method.String())
	if req.Method == "" {
		BadRequest(w, "method is required")
		return
	}
	if req.TraceID == "" {
		req.TraceID = uuid.NewString()
	}

	lc := logger.NewLogContext(req.TraceID, req.Method.String(), req.CallID).WithClientIP(r.RemoteAddr)
	ctx := logger.WithContext(r.Context(), lc)

	if body.Authorization != "" {
		a, err := sip.ParseAuthorization(body.Authorization)
		if err != nil {
			h.respond(w, req.TraceID, h.decider.DecideMalformed(ctx, &req, err))
			return
		}
		req.Authorization = a
	}
	h.respond(w, req.TraceID, h.decider.Decide(ctx, &req))
}

func (h *AuthenticateHandler) respond(w http.ResponseWriter, traceID string, d authn.Decision) {
	resp := DecisionResponse{Decision: d, TraceID: traceID}
	if d.Challenge != nil {
		resp.WWWAuthenticate = d.Challenge.Header()
	}
	WriteJSONOK(w, resp)
}
