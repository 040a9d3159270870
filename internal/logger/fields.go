package logger

import (
	"log/slog"
)

// Standard field keys for structured logging across the gateway and its
// supporting clients. Use these keys consistently across all log
// statements for log aggregation and querying.
const (
	// ========================================================================
	// Distributed Tracing
	// ========================================================================
	KeyTraceID = "trace_id" // OpenTelemetry trace ID for request correlation
	KeySpanID  = "span_id"  // OpenTelemetry span ID for operation tracking

	// ========================================================================
	// Gateway operation
	// ========================================================================
	KeyOperation  = "operation"  // archive, retrieve, destroy, listmatch, head
	KeyCollection = "collection" // collection name
	KeyKey        = "key"        // object key
	KeyKeyID      = "key_id"     // signing key id presented on the request

	// ========================================================================
	// Cluster / node
	// ========================================================================
	KeyNode       = "node"        // storage node name
	KeySegmentNum = "segment_num" // 1-based segment number

	// ========================================================================
	// I/O sizing
	// ========================================================================
	KeyBytesRead    = "bytes_read"    // actual bytes read
	KeyBytesWritten = "bytes_written" // actual bytes written
	KeySize         = "size"          // object or slice size in bytes

	// ========================================================================
	// Client Identification
	// ========================================================================
	KeyClientIP   = "client_ip"   // client IP address
	KeyClientPort = "client_port" // client source port

	// ========================================================================
	// Operation Metadata
	// ========================================================================
	KeyDurationMs = "duration_ms" // operation duration in milliseconds
	KeyError      = "error"       // error message
	KeyErrorCode  = "error_code"  // numeric error code
	KeyAttempt    = "attempt"     // retry attempt number
	KeyMaxRetries = "max_retries" // maximum retry attempts

	// ========================================================================
	// Listmatch
	// ========================================================================
	KeyPattern = "pattern" // prefix filter for listmatch
	KeyEntries = "entries" // number of matched keys returned
)

// ============================================================================
// Field constructors for type safety
// These functions provide type-safe construction of slog.Attr values.
// ============================================================================

// TraceID returns a slog.Attr for OpenTelemetry trace ID
func TraceID(id string) slog.Attr {
	return slog.String(KeyTraceID, id)
}

// SpanID returns a slog.Attr for OpenTelemetry span ID
func SpanID(id string) slog.Attr {
	return slog.String(KeySpanID, id)
}

// Operation returns a slog.Attr for the gateway operation name
func Operation(op string) slog.Attr {
	return slog.String(KeyOperation, op)
}

// Collection returns a slog.Attr for the collection name
func Collection(name string) slog.Attr {
	return slog.String(KeyCollection, name)
}

// Key returns a slog.Attr for the object key
func Key(k string) slog.Attr {
	return slog.String(KeyKey, k)
}

// KeyID returns a slog.Attr for the signing key id presented on a request.
func KeyID(id string) slog.Attr {
	return slog.String(KeyKeyID, id)
}

// Node returns a slog.Attr for a storage node's name
func Node(name string) slog.Attr {
	return slog.String(KeyNode, name)
}

// SegmentNum returns a slog.Attr for a node's 1-based segment number
func SegmentNum(n int) slog.Attr {
	return slog.Int(KeySegmentNum, n)
}

// BytesRead returns a slog.Attr for actual bytes read
func BytesRead(n int) slog.Attr {
	return slog.Int(KeyBytesRead, n)
}

// BytesWritten returns a slog.Attr for actual bytes written
func BytesWritten(n int) slog.Attr {
	return slog.Int(KeyBytesWritten, n)
}

// Size returns a slog.Attr for object or slice size in bytes
func Size(s int64) slog.Attr {
	return slog.Int64(KeySize, s)
}

// ClientIP returns a slog.Attr for client IP address
func ClientIP(addr string) slog.Attr {
	return slog.String(KeyClientIP, addr)
}

// ClientPort returns a slog.Attr for client source port
func ClientPort(port int) slog.Attr {
	return slog.Int(KeyClientPort, port)
}

// DurationMs returns a slog.Attr for duration in milliseconds
func DurationMs(ms float64) slog.Attr {
	return slog.Float64(KeyDurationMs, ms)
}

// Err returns a slog.Attr for an error
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// ErrorCode returns a slog.Attr for numeric error code
func ErrorCode(code int) slog.Attr {
	return slog.Int(KeyErrorCode, code)
}

// Attempt returns a slog.Attr for retry attempt number
func Attempt(n int) slog.Attr {
	return slog.Int(KeyAttempt, n)
}

// MaxRetries returns a slog.Attr for maximum retry attempts
func MaxRetries(n int) slog.Attr {
	return slog.Int(KeyMaxRetries, n)
}

// Pattern returns a slog.Attr for a listmatch prefix filter
func Pattern(p string) slog.Attr {
	return slog.String(KeyPattern, p)
}

// Entries returns a slog.Attr for the number of matched keys returned
func Entries(n int) slog.Attr {
	return slog.Int(KeyEntries, n)
}
