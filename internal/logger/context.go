package logger

import (
	"context"
	"time"
)

type contextKey struct{}

var logContextKey = contextKey{}

// LogContext holds request-scoped logging context
type LogContext struct {
	TraceID   string    // SIP trace identifier or OpenTelemetry trace ID
	SpanID    string    // OpenTelemetry span ID
	Method    string    // SIP method (REGISTER, INVITE, ...)
	CallID    string    // SIP Call-ID
	IMPI      string    // Private identity under authentication
	ClientIP  string    // Address of the caller of the decision API
	StartTime time.Time // For duration calculation
}

// WithContext returns a new context with the given LogContext
func WithContext(ctx context.Context, lc *LogContext) context.Context {
	return context.WithValue(ctx, logContextKey, lc)
}

// FromContext retrieves the LogContext from context, or nil if not present
func FromContext(ctx context.Context) *LogContext {
	if ctx == nil {
		return nil
	}
	lc, _ := ctx.Value(logContextKey).(*LogContext)
	return lc
}

// NewLogContext creates a new LogContext for one SIP request.
func NewLogContext(traceID, method, callID string) *LogContext {
	return &LogContext{
		TraceID:   traceID,
		Method:    method,
		CallID:    callID,
		StartTime: time.Now(),
	}
}

// Clone creates a copy of the LogContext
func (lc *LogContext) Clone() *LogContext {
	if lc == nil {
		return nil
	}
	c := *lc
	return &c
}

// WithIMPI returns a copy with the private identity set
func (lc *LogContext) WithIMPI(impi string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.IMPI = impi
	}
	return clone
}

// WithClientIP returns a copy with the client address set
func (lc *LogContext) WithClientIP(ip string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.ClientIP = ip
	}
	return clone
}

// DurationMs returns the duration since StartTime in milliseconds
func (lc *LogContext) DurationMs() float64 {
	if lc == nil || lc.StartTime.IsZero() {
		return 0
	}
	return float64(time.Since(lc.StartTime).Microseconds()) / 1000.0
}
