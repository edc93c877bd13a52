// Package observability defines the structured logging surface shared by the stack
// assembler, the local backends and the todo handler.
package observability

import (
	"context"
	"time"
)

type SanitizerFunc func(key string, value any) any

// LogEntry is a structured log entry as recorded by TestLogger.
type LogEntry struct {
	Timestamp time.Time      `json:"timestamp"`
	Level     string         `json:"level"`
	Message   string         `json:"message"`
	Fields    map[string]any `json:"fields,omitempty"`

	RequestID string `json:"request_id,omitempty"`
	RouteKey  string `json:"route_key,omitempty"`
	TraceID   string `json:"trace_id,omitempty"`
}

// StructuredLogger logs a message with map fields. Derived loggers carry their fields
// into every entry.
type StructuredLogger interface {
	Debug(message string, fields ...map[string]any)
	Info(message string, fields ...map[string]any)
	Warn(message string, fields ...map[string]any)
	Error(message string, fields ...map[string]any)

	WithField(key string, value any) StructuredLogger
	WithFields(fields map[string]any) StructuredLogger

	WithRequestID(requestID string) StructuredLogger
	WithRouteKey(routeKey string) StructuredLogger
	WithTraceID(traceID string) StructuredLogger

	Flush(ctx context.Context) error
	Close() error
	IsHealthy() bool
	GetStats() LoggerStats
}

type LoggerStats struct {
	LastFlush     time.Time     `json:"last_flush"`
	LastError     string        `json:"last_error,omitempty"`
	EntriesLogged int64         `json:"entries_logged"`
	FlushCount    int64         `json:"flush_count"`
	ErrorCount    int64         `json:"error_count"`
	AverageFlush  time.Duration `json:"average_flush_time"`
}

// LoggerConfig configures logger implementations. An empty Format picks JSON inside
// Lambda and console output elsewhere.
type LoggerConfig struct {
	Format       string `json:"format" yaml:"format"`
	Level        string `json:"level" yaml:"level"`
	EnableStack  bool   `json:"enable_stack" yaml:"enableStack"`
	EnableCaller bool   `json:"enable_caller" yaml:"enableCaller"`
}
