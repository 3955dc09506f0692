package tracing

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ContextKey is the type for context keys
type ContextKey string

const (
	// TraceIDKey is the context key for trace ID
	TraceIDKey ContextKey = "trace_id"
	// RequestIDKey is the context key for the inbound request ID
	RequestIDKey ContextKey = "request_id"
	// CycleIDKey is the context key for a synchronization cycle ID
	CycleIDKey ContextKey = "cycle_id"
	// SubjectKey is the context key for the authenticated caller
	SubjectKey ContextKey = "subject"
)

// TraceContext holds tracing information
type TraceContext struct {
	TraceID   string
	RequestID string
	CycleID   string
	Subject   string
}

// NewTraceID generates a new trace ID
func NewTraceID() string {
	return uuid.New().String()
}

// NewRequestID generates a new request ID
func NewRequestID() string {
	return uuid.New().String()
}

// NewCycleID generates a new synchronization cycle ID
func NewCycleID() string {
	return uuid.New().String()
}

// WithTraceID adds a trace ID to the context
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// WithRequestID adds a request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// WithCycleID adds a synchronization cycle ID to the context
func WithCycleID(ctx context.Context, cycleID string) context.Context {
	return context.WithValue(ctx, CycleIDKey, cycleID)
}

// WithSubject adds the authenticated caller to the context
func WithSubject(ctx context.Context, subject string) context.Context {
	return context.WithValue(ctx, SubjectKey, subject)
}

func getString(ctx context.Context, key ContextKey) string {
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}

// GetTraceID retrieves the trace ID from the context
func GetTraceID(ctx context.Context) string { return getString(ctx, TraceIDKey) }

// GetRequestID retrieves the request ID from the context
func GetRequestID(ctx context.Context) string { return getString(ctx, RequestIDKey) }

// GetCycleID retrieves the synchronization cycle ID from the context
func GetCycleID(ctx context.Context) string { return getString(ctx, CycleIDKey) }

// GetSubject retrieves the authenticated caller from the context
func GetSubject(ctx context.Context) string { return getString(ctx, SubjectKey) }

// FromContext extracts all tracing information from the context
func FromContext(ctx context.Context) *TraceContext {
	return &TraceContext{
		TraceID:   GetTraceID(ctx),
		RequestID: GetRequestID(ctx),
		CycleID:   GetCycleID(ctx),
		Subject:   GetSubject(ctx),
	}
}

// NewRequestContext creates a context for an inbound request with fresh
// trace and request IDs.
func NewRequestContext(ctx context.Context) context.Context {
	ctx = WithTraceID(ctx, NewTraceID())
	return WithRequestID(ctx, NewRequestID())
}

// NewCycleContext creates a context for one synchronization cycle.
func NewCycleContext(ctx context.Context) context.Context {
	if GetTraceID(ctx) == "" {
		ctx = WithTraceID(ctx, NewTraceID())
	}
	return WithCycleID(ctx, NewCycleID())
}

// LoggerFromContext adds tracing fields from ctx to logger
func LoggerFromContext(ctx context.Context, logger zerolog.Logger) zerolog.Logger {
	tc := FromContext(ctx)

	if tc.TraceID != "" {
		logger = logger.With().Str("trace_id", tc.TraceID).Logger()
	}
	if tc.RequestID != "" {
		logger = logger.With().Str("request_id", tc.RequestID).Logger()
	}
	if tc.CycleID != "" {
		logger = logger.With().Str("cycle_id", tc.CycleID).Logger()
	}
	if tc.Subject != "" {
		logger = logger.With().Str("subject", tc.Subject).Logger()
	}

	return logger
}
