// Package trail emits searchable markers for requests the front-end absorbs
// (challenged, rejected) so a request's trail can be found by caller, callee
// or Call-ID.
package trail

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	"github.com/marmos91/sipauth/internal/logger"
	"github.com/marmos91/sipauth/internal/telemetry"
	"github.com/marmos91/sipauth/pkg/sip"
)

// Kind names a marker.
type Kind string

const (
	KindStart     Kind = "start"
	KindCallingDN Kind = "calling_dn"
	KindCalledDN  Kind = "called_dn"
	KindCallID    Kind = "sip_call_id"
	KindEnd       Kind = "end"
)

// Scope is how far a marker associates: the single branch or the whole trace.
type Scope string

const (
	ScopeBranch Scope = "branch"
	ScopeTrace  Scope = "trace"
)

// Marker is one indexed trail entry.
type Marker struct {
	Kind  Kind
	Value string
	Scope Scope
}

// Reporter delivers markers for a trace.
type Reporter interface {
	Report(ctx context.Context, traceID string, m Marker) error
}

// Nop discards markers.
type Nop struct{}

// Report implements Reporter.
func (Nop) Report(context.Context, string, Marker) error { return nil }

// SpanReporter records markers as events on the active span.
type SpanReporter struct{}

// Attribute keys of marker events.
const (
	AttrMarkerValue = "trail.value"
	AttrMarkerScope = "trail.scope"
)

// Report implements Reporter.
func (SpanReporter) Report(ctx context.Context, traceID string, m Marker) error {
	attrs := []attribute.KeyValue{
		telemetry.SIPTraceID(traceID),
		attribute.String(AttrMarkerScope, string(m.Scope)),
	}
	if m.Value != "" {
		attrs = append(attrs, attribute.String(AttrMarkerValue, m.Value))
	}
	telemetry.AddEvent(ctx, "trail."+string(m.Kind), attrs...)
	return nil
}

// Markers returns the marker sequence of an absorbed request: start, the
// calling and called numbers when From/To are present, the Call-ID when
// present (trace scope), end.
func Markers(req *sip.Request) []Marker {
	markers := []Marker{{Kind: KindStart, Scope: ScopeBranch}}
	if req.From != "" {
		markers = append(markers, Marker{Kind: KindCallingDN, Value: sip.User(req.From), Scope: ScopeBranch})
	}
	if req.To != "" {
		markers = append(markers, Marker{Kind: KindCalledDN, Value: sip.User(req.To), Scope: ScopeBranch})
	}
	if req.CallID != "" {
		markers = append(markers, Marker{Kind: KindCallID, Value: req.CallID, Scope: ScopeTrace})
	}
	return append(markers, Marker{Kind: KindEnd, Scope: ScopeBranch})
}

// ReportRequest sends the markers of req to r. Delivery is best effort:
// failures are logged and never returned.
func ReportRequest(ctx context.Context, r Reporter, req *sip.Request) {
	if r == nil {
		return
	}
	for _, m := range Markers(req) {
		if err := r.Report(ctx, req.TraceID, m); err != nil {
			logger.WarnCtx(ctx, "Failed to report trail marker", "marker", string(m.Kind), logger.Err(err))
		}
	}
}
