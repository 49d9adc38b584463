package logger

import (
	"log/slog"
)

// Standard field keys for structured logging.
// Use these keys consistently across all log statements for log aggregation and querying.
const (
	// ========================================================================
	// Distributed Tracing
	// ========================================================================
	KeyTraceID = "trace_id" // SIP trace identifier / OpenTelemetry trace ID
	KeySpanID  = "span_id"  // OpenTelemetry span ID

	// ========================================================================
	// SIP Request
	// ========================================================================
	KeyMethod = "method"  // SIP method
	KeyCallID = "call_id" // Call-ID header
	KeyFrom   = "from"    // From URI
	KeyTo     = "to"      // To URI

	// ========================================================================
	// Identity & Credentials
	// ========================================================================
	KeyIMPI      = "impi"      // Private identity
	KeyIMPU      = "impu"      // Public identity
	KeyRealm     = "realm"     // Authentication realm
	KeyNonce     = "nonce"     // Challenge nonce (redacted)
	KeyScheme    = "scheme"    // Vector variant: digest, aka
	KeyAlgorithm = "algorithm" // Digest algorithm: MD5, AKAv1-MD5
	KeyResync    = "resync"    // Whether an AKA resync token was supplied

	// ========================================================================
	// Decision
	// ========================================================================
	KeyOutcome = "outcome" // pass_through, challenge, reject, discard
	KeyStatus  = "status"  // SIP status code
	KeyReason  = "reason"  // Verification failure reason

	// ========================================================================
	// Client Identification
	// ========================================================================
	KeyClientIP  = "client_ip"  // Caller of the decision API
	KeyRequestID = "request_id" // HTTP request id

	// ========================================================================
	// Operation Metadata
	// ========================================================================
	KeyDurationMs = "duration_ms" // Operation duration in milliseconds
	KeyError      = "error"       // Error message
	KeyStoreType  = "store_type"  // Vector store backend
	KeyEvicted    = "evicted"     // Number of entries evicted
	KeyURL        = "url"         // Backend URL
)

// TraceID returns a trace id attribute.
func TraceID(id string) slog.Attr {
	return slog.String(KeyTraceID, id)
}

// Method returns a SIP method attribute.
func Method(m string) slog.Attr {
	return slog.String(KeyMethod, m)
}

// CallID returns a Call-ID attribute.
func CallID(id string) slog.Attr {
	return slog.String(KeyCallID, id)
}

// IMPI returns a private identity attribute.
func IMPI(id string) slog.Attr {
	return slog.String(KeyIMPI, id)
}

// IMPU returns a public identity attribute.
func IMPU(id string) slog.Attr {
	return slog.String(KeyIMPU, id)
}

// Nonce returns a redacted nonce attribute.
func Nonce(n string) slog.Attr {
	return slog.String(KeyNonce, Redact(n))
}

// Outcome returns a decision outcome attribute.
func Outcome(o string) slog.Attr {
	return slog.String(KeyOutcome, o)
}

// Status returns a SIP status code attribute.
func Status(code int) slog.Attr {
	return slog.Int(KeyStatus, code)
}

// DurationMs returns a duration attribute in milliseconds.
func DurationMs(ms float64) slog.Attr {
	return slog.Float64(KeyDurationMs, ms)
}

// Err returns an error attribute; a nil error yields an empty attribute.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// Redact keeps the first six characters of a secret-bearing value so log
// lines can still be correlated without disclosing it.
func Redact(s string) string {
	const keep = 6
	if len(s) <= keep {
		return "***"
	}
	return s[:keep] + "***"
}
