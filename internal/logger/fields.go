package logger

import (
	"fmt"
	"log/slog"
)

// Standard field keys for structured logging.
// Use these keys consistently across all log statements for log
// aggregation and querying.
const (
	// ========================================================================
	// Distributed Tracing
	// ========================================================================
	KeyTraceID = "trace_id" // OpenTelemetry trace ID for request correlation
	KeySpanID  = "span_id"  // OpenTelemetry span ID for operation tracking

	// ========================================================================
	// Identity
	// ========================================================================
	KeyNID     = "nid"     // Network identifier: addr@net
	KeyPID     = "pid"     // Process identifier within a NID
	KeyNet     = "net"     // Network name (o2ib0, tcp0, ...)
	KeyGateway = "gateway" // Gateway NID used to reach a remote net

	// ========================================================================
	// Message / wire
	// ========================================================================
	KeyMsgType     = "msg_type"     // PUT, GET, REPLY, ACK, HELLO
	KeyProcedure   = "procedure"    // RPC operation name
	KeyPortal      = "portal"       // Portal index
	KeyMatchBits   = "match_bits"   // 64-bit match bits
	KeyXID         = "xid"          // RPC transaction id
	KeyHandle      = "handle"       // Wire handle (cookie pair), hex-formatted
	KeyPayloadLen  = "payload_len"  // Payload length in bytes
	KeyOffset      = "offset"       // Offset into an MD
	KeyMLength     = "mlength"      // Matched length
	KeyRLength     = "rlength"      // Remaining/requested length

	// ========================================================================
	// Service / RPC
	// ========================================================================
	KeyService   = "service"   // RPC service name
	KeyOpcode    = "opcode"    // RPC opcode
	KeyStatus    = "status"    // Reply status code
	KeyTransno   = "transno"   // Transaction number
	KeyDeadline  = "deadline"  // Request deadline, seconds from now
	KeyHPQueue   = "hp_queue"  // Whether the request used the high-priority queue

	// ========================================================================
	// Credits / flow control
	// ========================================================================
	KeyCreditPool  = "credit_pool"  // Credit pool identifier
	KeyCreditValue = "credit_value" // Signed credit counter value
	KeyQueueDepth  = "queue_depth"  // Pending-send queue depth

	// ========================================================================
	// Operation Metadata
	// ========================================================================
	KeyDurationMs = "duration_ms" // Operation duration in milliseconds
	KeyError      = "error"       // Error message
	KeyErrorCode  = "error_code"  // Numeric error code
	KeyReason     = "reason"      // Drop/failure reason (error-kind taxonomy)
	KeyAttempt    = "attempt"     // Retry attempt number
)

// ----------------------------------------------------------------------------
// Distributed Tracing
// ----------------------------------------------------------------------------

// TraceID returns a slog.Attr for OpenTelemetry trace ID
func TraceID(id string) slog.Attr {
	return slog.String(KeyTraceID, id)
}

// SpanID returns a slog.Attr for OpenTelemetry span ID
func SpanID(id string) slog.Attr {
	return slog.String(KeySpanID, id)
}

// ----------------------------------------------------------------------------
// Identity
// ----------------------------------------------------------------------------

// NID returns a slog.Attr for a network identifier.
func NID(nid string) slog.Attr {
	return slog.String(KeyNID, nid)
}

// PID returns a slog.Attr for a process identifier.
func PID(pid uint32) slog.Attr {
	return slog.Any(KeyPID, pid)
}

// Net returns a slog.Attr for a network name.
func Net(net string) slog.Attr {
	return slog.String(KeyNet, net)
}

// Gateway returns a slog.Attr for a gateway NID.
func Gateway(nid string) slog.Attr {
	return slog.String(KeyGateway, nid)
}

// ----------------------------------------------------------------------------
// Message / wire
// ----------------------------------------------------------------------------

// MsgType returns a slog.Attr for a message type name.
func MsgType(t string) slog.Attr {
	return slog.String(KeyMsgType, t)
}

// Procedure returns a slog.Attr for an RPC operation name.
func Procedure(name string) slog.Attr {
	return slog.String(KeyProcedure, name)
}

// Portal returns a slog.Attr for a portal index.
func Portal(idx uint32) slog.Attr {
	return slog.Any(KeyPortal, idx)
}

// MatchBits returns a slog.Attr for 64-bit match bits.
func MatchBits(bits uint64) slog.Attr {
	return slog.Uint64(KeyMatchBits, bits)
}

// XID returns a slog.Attr for an RPC transaction id.
func XID(xid uint64) slog.Attr {
	return slog.Uint64(KeyXID, xid)
}

// Handle returns a slog.Attr for a wire handle, hex-formatted as cookie:seq.
func Handle(cookie, seq uint64) slog.Attr {
	return slog.String(KeyHandle, fmt.Sprintf("%x:%x", cookie, seq))
}

// PayloadLen returns a slog.Attr for a payload length.
func PayloadLen(n uint32) slog.Attr {
	return slog.Any(KeyPayloadLen, n)
}

// Offset returns a slog.Attr for an MD offset.
func Offset(off uint32) slog.Attr {
	return slog.Any(KeyOffset, off)
}

// MLength returns a slog.Attr for a matched length.
func MLength(n uint32) slog.Attr {
	return slog.Any(KeyMLength, n)
}

// RLength returns a slog.Attr for a remaining/requested length.
func RLength(n uint32) slog.Attr {
	return slog.Any(KeyRLength, n)
}

// ----------------------------------------------------------------------------
// Service / RPC
// ----------------------------------------------------------------------------

// Service returns a slog.Attr for an RPC service name.
func Service(name string) slog.Attr {
	return slog.String(KeyService, name)
}

// Opcode returns a slog.Attr for an RPC opcode.
func Opcode(op uint32) slog.Attr {
	return slog.Any(KeyOpcode, op)
}

// Status returns a slog.Attr for a reply status code.
func Status(code int32) slog.Attr {
	return slog.Any(KeyStatus, code)
}

// Transno returns a slog.Attr for a transaction number.
func Transno(n uint64) slog.Attr {
	return slog.Uint64(KeyTransno, n)
}

// Deadline returns a slog.Attr for a request deadline, in seconds.
func Deadline(seconds float64) slog.Attr {
	return slog.Float64(KeyDeadline, seconds)
}

// HPQueue returns a slog.Attr indicating high-priority queue usage.
func HPQueue(hp bool) slog.Attr {
	return slog.Bool(KeyHPQueue, hp)
}

// ----------------------------------------------------------------------------
// Credits / flow control
// ----------------------------------------------------------------------------

// CreditPool returns a slog.Attr for a credit pool identifier.
func CreditPool(name string) slog.Attr {
	return slog.String(KeyCreditPool, name)
}

// CreditValue returns a slog.Attr for a signed credit counter value.
func CreditValue(v int) slog.Attr {
	return slog.Int(KeyCreditValue, v)
}

// QueueDepth returns a slog.Attr for a pending-send queue depth.
func QueueDepth(n int) slog.Attr {
	return slog.Int(KeyQueueDepth, n)
}

// ----------------------------------------------------------------------------
// Operation Metadata
// ----------------------------------------------------------------------------

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

// Reason returns a slog.Attr for a drop/failure reason.
func Reason(reason string) slog.Attr {
	return slog.String(KeyReason, reason)
}

// Attempt returns a slog.Attr for retry attempt number
func Attempt(n int) slog.Attr {
	return slog.Int(KeyAttempt, n)
}
