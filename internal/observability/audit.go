package observability

import (
	"context"
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/harun/toolserver/internal/tracing"
)

// AuditEvent represents a structured event for the audit log
type AuditEvent struct {
	Type      string                 `json:"event_type"`
	Timestamp time.Time              `json:"timestamp"`
	Actor     string                 `json:"actor,omitempty"` // token subject or sync cycle
	Action    string                 `json:"action"`          // e.g., "embed:multiply", "execute:add"
	Status    string                 `json:"status"`          // "success", "failure", "pending"
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	TraceID   string                 `json:"trace_id,omitempty"`
}

// AuditLogger handles recording and persisting audit events
type AuditLogger struct {
	logger zerolog.Logger
	mu     sync.Mutex
	file   *os.File
}

var (
	auditOnce sync.Once
	auditInst *AuditLogger
)

// GetAuditLogger returns the global audit logger instance
func GetAuditLogger() *AuditLogger {
	auditOnce.Do(func() {
		// Default to stderr if not initialized
		auditInst = &AuditLogger{
			logger: zerolog.New(os.Stderr).With().Timestamp().Logger(),
		}
	})
	return auditInst
}

// InitAuditLogger redirects the global audit logger to the file at path.
func InitAuditLogger(path string) error {
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}

	SetAuditWriter(file)
	auditInst.file = file
	return nil
}

// SetAuditWriter redirects the global audit logger to w.
func SetAuditWriter(w io.Writer) {
	// consume the default so a later GetAuditLogger keeps w
	auditOnce.Do(func() {})
	auditInst = &AuditLogger{
		logger: zerolog.New(w).With().Timestamp().Logger(),
	}
}

// Record emits an audit event to the log file and optionally to OpenTelemetry
func (a *AuditLogger) Record(ctx context.Context, event AuditEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	// Extract tracing info if available
	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		event.TraceID = span.SpanContext().TraceID().String()

		// Also record as a span event for Otel
		span.AddEvent(event.Action, trace.WithAttributes(
			attribute.String("audit.type", event.Type),
			attribute.String("audit.status", event.Status),
			attribute.String("audit.actor", event.Actor),
		))
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	// Direct JSON logging to file/logger
	entry := a.logger.Log().
		Str("type", event.Type).
		Str("actor", event.Actor).
		Str("action", event.Action).
		Str("status", event.Status).
		Str("trace_id", event.TraceID)

	if event.Metadata != nil {
		entry.Interface("metadata", event.Metadata)
	}

	entry.Msg("")
}

// Close closes the audit logger's file handle
func (a *AuditLogger) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.file != nil {
		return a.file.Close()
	}
	return nil
}

// Helper methods for common events

// RecordEmbedAudit records a script embed attempt.
func RecordEmbedAudit(ctx context.Context, toolName, status string, metadata map[string]interface{}) {
	GetAuditLogger().Record(ctx, AuditEvent{
		Type:     "script",
		Actor:    actorFrom(ctx),
		Action:   "embed:" + toolName,
		Status:   status,
		Metadata: metadata,
	})
}

// RecordEvictAudit records the removal of a script tool.
func RecordEvictAudit(ctx context.Context, toolName string) {
	GetAuditLogger().Record(ctx, AuditEvent{
		Type:   "script",
		Actor:  actorFrom(ctx),
		Action: "evict:" + toolName,
		Status: "success",
	})
}

// RecordDispatchAudit records the outcome of one tool request.
func RecordDispatchAudit(ctx context.Context, toolName, path, status string) {
	GetAuditLogger().Record(ctx, AuditEvent{
		Type:     "tool",
		Actor:    actorFrom(ctx),
		Action:   "execute:" + toolName,
		Status:   status,
		Metadata: map[string]interface{}{"path": path},
	})
}

func actorFrom(ctx context.Context) string {
	if subject := tracing.GetSubject(ctx); subject != "" {
		return subject
	}
	if cycle := tracing.GetCycleID(ctx); cycle != "" {
		return "sync:" + cycle
	}
	return "anonymous"
}
