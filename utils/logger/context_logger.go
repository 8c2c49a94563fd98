package logger

import (
	"context"
	"log/slog"
)

type ContextKey string

const (
	RequestIDKey ContextKey = "request_id"
	UserIDKey    ContextKey = "user_id"
	JobIDKey     ContextKey = "job_id"
	OperationKey ContextKey = "operation"
)

// GlobalContext is the process-wide ContextLogger set by Init.
var GlobalContext *ContextLogger

// ContextLogger enriches log records with request-scoped values carried in context.
type ContextLogger struct {
	logger *slog.Logger
}

// NewContextLogger creates a ContextLogger over logger.
func NewContextLogger(logger *slog.Logger) *ContextLogger {
	return &ContextLogger{logger: logger}
}

// WithContext returns a logger carrying every known context value present in ctx.
func (cl *ContextLogger) WithContext(ctx context.Context) *slog.Logger {
	var fields []any
	for _, key := range []ContextKey{RequestIDKey, UserIDKey, JobIDKey, OperationKey} {
		if v, ok := ctx.Value(key).(string); ok && v != "" {
			fields = append(fields, string(key), v)
		}
	}
	if len(fields) == 0 {
		return cl.logger
	}
	return cl.logger.With(fields...)
}

// LogDuration logs how long an operation took.
func (cl *ContextLogger) LogDuration(ctx context.Context, operation string, durationMs int64) {
	cl.WithContext(ctx).InfoContext(ctx, "operation completed",
		"operation", operation,
		"duration_ms", durationMs)
}

// LogError logs a failed operation.
func (cl *ContextLogger) LogError(ctx context.Context, operation string, err error) {
	cl.WithContext(ctx).ErrorContext(ctx, "operation failed",
		"operation", operation,
		"error", err)
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

func WithJobID(ctx context.Context, jobID string) context.Context {
	return context.WithValue(ctx, JobIDKey, jobID)
}

func WithOperation(ctx context.Context, operation string) context.Context {
	return context.WithValue(ctx, OperationKey, operation)
}

// FromContext returns the global context logger bound to ctx, or slog.Default when
// Init has not run.
func FromContext(ctx context.Context) *slog.Logger {
	if GlobalContext == nil {
		return NewContextLogger(slog.Default()).WithContext(ctx)
	}
	return GlobalContext.WithContext(ctx)
}
