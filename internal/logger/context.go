package logger

import (
	"context"
	"time"
)

// contextKey is a private type for context keys to avoid collisions
type contextKey struct{}

// logContextKey is the key for LogContext in context.Context
var logContextKey = contextKey{}

// LogContext holds request-scoped logging context.
type LogContext struct {
	TraceID   string    // OpenTelemetry trace ID
	SpanID    string    // OpenTelemetry span ID
	Service   string    // RPC service name (e.g. "ost_io", "mdt")
	Procedure string    // RPC operation name (PUT, GET, REPLY, ACK)
	NID       string    // Peer network identifier (addr@net)
	XID       uint64    // RPC transaction id
	Portal    uint32    // Portal index involved in the operation
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

// NewLogContext creates a new LogContext scoped to a peer NID.
func NewLogContext(nid string) *LogContext {
	return &LogContext{
		NID:       nid,
		StartTime: time.Now(),
	}
}

// Clone creates a copy of the LogContext
func (lc *LogContext) Clone() *LogContext {
	if lc == nil {
		return nil
	}
	return &LogContext{
		TraceID:   lc.TraceID,
		SpanID:    lc.SpanID,
		Service:   lc.Service,
		Procedure: lc.Procedure,
		NID:       lc.NID,
		XID:       lc.XID,
		Portal:    lc.Portal,
		StartTime: lc.StartTime,
	}
}

// WithProcedure returns a copy with the procedure set
func (lc *LogContext) WithProcedure(procedure string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.Procedure = procedure
	}
	return clone
}

// WithService returns a copy with the service name set
func (lc *LogContext) WithService(service string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.Service = service
	}
	return clone
}

// WithXID returns a copy with the RPC transaction id set
func (lc *LogContext) WithXID(xid uint64) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.XID = xid
	}
	return clone
}

// WithPortal returns a copy with the portal index set
func (lc *LogContext) WithPortal(portal uint32) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.Portal = portal
	}
	return clone
}

// WithTrace returns a copy with trace info set
func (lc *LogContext) WithTrace(traceID, spanID string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.TraceID = traceID
		clone.SpanID = spanID
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
