package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys for authentication spans and events.
const (
	AttrSIPMethod  = "sip.method"
	AttrSIPCallID  = "sip.call_id"
	AttrSIPTraceID = "sip.trace_id"
	AttrSIPStatus  = "sip.status_code"
	AttrSIPFrom    = "sip.from"
	AttrSIPTo      = "sip.to"

	AttrIMPI       = "ims.impi"
	AttrIMPU       = "ims.impu"
	AttrAuthScheme = "auth.scheme"
	AttrAuthResync = "auth.resync"
	AttrOutcome    = "auth.outcome"
	AttrReason     = "auth.reason"

	AttrStoreType = "store.type"
	AttrClientIP  = "client.ip"
)

// Span names.
const (
	SpanDecide    = "sipauth.decide"
	SpanChallenge = "sipauth.challenge"
	SpanHSSFetch  = "sipauth.hss.fetch"
	SpanStoreTake = "sipauth.store.take"
)

func SIPMethod(m string) attribute.KeyValue   { return attribute.String(AttrSIPMethod, m) }
func SIPCallID(id string) attribute.KeyValue  { return attribute.String(AttrSIPCallID, id) }
func SIPTraceID(id string) attribute.KeyValue { return attribute.String(AttrSIPTraceID, id) }
func SIPStatus(code int) attribute.KeyValue   { return attribute.Int(AttrSIPStatus, code) }
func IMPI(id string) attribute.KeyValue       { return attribute.String(AttrIMPI, id) }
func IMPU(id string) attribute.KeyValue       { return attribute.String(AttrIMPU, id) }
func AuthScheme(s string) attribute.KeyValue  { return attribute.String(AttrAuthScheme, s) }
func AuthResync(b bool) attribute.KeyValue    { return attribute.Bool(AttrAuthResync, b) }
func Outcome(o string) attribute.KeyValue     { return attribute.String(AttrOutcome, o) }
func Reason(r string) attribute.KeyValue      { return attribute.String(AttrReason, r) }
func StoreType(t string) attribute.KeyValue   { return attribute.String(AttrStoreType, t) }
func ClientIP(ip string) attribute.KeyValue   { return attribute.String(AttrClientIP, ip) }

// StartDecideSpan starts the server span covering one authentication decision.
func StartDecideSpan(ctx context.Context, method, callID, sipTraceID string) (context.Context, trace.Span) {
	return StartSpan(ctx, SpanDecide,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(SIPMethod(method), SIPCallID(callID), SIPTraceID(sipTraceID)),
	)
}

// StartClientSpan starts a client span for a call to an external backend.
func StartClientSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return StartSpan(ctx, name,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...),
	)
}
