package hss

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/marmos91/sipauth/internal/logger"
	"github.com/marmos91/sipauth/internal/telemetry"
	"github.com/marmos91/sipauth/pkg/metrics"
	"github.com/marmos91/sipauth/pkg/sip/av"
)

// DefaultTimeout bounds one fetch when Config.Timeout is unset.
const DefaultTimeout = 2 * time.Second

// HeaderTraceID carries the SIP trace identifier to the source.
const HeaderTraceID = "X-Trace-ID"

// maxResponseBytes bounds the vector document read from the source.
const maxResponseBytes = 64 << 10

// HTTPClient fetches vectors over HTTP:
//
//	GET {url}/impi/{impi}/av?impu={impu}[&autn={resync}]
//
// The response body is the JSON vector document.
type HTTPClient struct {
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
	metrics    metrics.AuthMetrics
}

var _ Source = (*HTTPClient)(nil)

// NewHTTPClient creates a client for the source at baseURL. m may be nil.
func NewHTTPClient(baseURL string, timeout time.Duration, m metrics.AuthMetrics) *HTTPClient {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		timeout:    timeout,
		httpClient: &http.Client{},
		metrics:    m,
	}
}

// Fetch implements Source.
func (c *HTTPClient) Fetch(ctx context.Context, req FetchRequest) (*av.Vector, error) {
	ctx, span := telemetry.StartClientSpan(ctx, telemetry.SpanHSSFetch,
		telemetry.IMPI(req.PrivateID),
		telemetry.IMPU(req.PublicID),
		telemetry.AuthResync(req.ResyncToken != ""),
	)
	defer span.End()

	start := time.Now()
	v, err := c.fetch(ctx, req)
	metrics.ObserveCredentialFetch(c.metrics, fetchResult(err), time.Since(start))

	if err != nil {
		telemetry.RecordError(ctx, err)
		logger.WarnCtx(ctx, "Credential fetch failed",
			logger.KeyURL, c.baseURL,
			logger.KeyDurationMs, time.Since(start).Milliseconds(),
			logger.Err(err))
		return nil, err
	}
	return v, nil
}

func (c *HTTPClient) fetch(ctx context.Context, req FetchRequest) (*av.Vector, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.vectorURL(req), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create request: %w", ErrBackendUnavailable, err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if req.TraceID != "" {
		httpReq.Header.Set(HeaderTraceID, req.TraceID)
	}
	telemetry.InjectHTTP(ctx, httpReq.Header)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: request failed: %w", ErrBackendUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response body: %w", ErrBackendUnavailable, err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrUnknownIdentity, req.PrivateID)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: unexpected status %d", ErrBackendUnavailable, resp.StatusCode)
	}

	v := new(av.Vector)
	if err := json.Unmarshal(body, v); err != nil {
		return nil, fmt.Errorf("%w: failed to decode vector: %w", ErrBackendUnavailable, err)
	}
	return v, nil
}

func (c *HTTPClient) vectorURL(req FetchRequest) string {
	q := url.Values{}
	q.Set("impu", req.PublicID)
	if req.ResyncToken != "" {
		q.Set("autn", req.ResyncToken)
	}
	return c.baseURL + "/impi/" + url.PathEscape(req.PrivateID) + "/av?" + q.Encode()
}

func fetchResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrUnknownIdentity):
		return "unknown_identity"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "unavailable"
	}
}
