/*-------------------------------------------------------------------------
 *
 * log_context.go
 *    Log context helpers for structured logging
 *
 * Provides helpers for consistent structured logging with request_id,
 * approval_id, plugin, and action fields across all components.
 *
 * IDENTIFICATION
 *    internal/metrics/log_context.go
 *
 *-------------------------------------------------------------------------
 */

package metrics

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type contextKey string

const (
	requestIDKey  contextKey = "request_id"
	approvalIDKey contextKey = "approval_id"
	pluginKey     contextKey = "plugin"
	actionKey     contextKey = "action"
)

/* WithRequestID adds the HTTP correlation id to the log context */
func WithRequestID(ctx context.Context, requestID string) context.Context {
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

/* WithApprovalID adds the approval request id to the log context */
func WithApprovalID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, approvalIDKey, id.String())
}

/* WithPluginAction adds plugin and action names to the log context */
func WithPluginAction(ctx context.Context, plugin, action string) context.Context {
	if plugin != "" {
		ctx = context.WithValue(ctx, pluginKey, plugin)
	}
	if action != "" {
		ctx = context.WithValue(ctx, actionKey, action)
	}
	return ctx
}

/* GetRequestIDFromContext gets the HTTP correlation id from context */
func GetRequestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

/* LoggerFromContext creates a zerolog logger with fields from context */
func LoggerFromContext(ctx context.Context) zerolog.Logger {
	logger := log.Logger

	if id, ok := ctx.Value(requestIDKey).(string); ok && id != "" {
		logger = logger.With().Str("request_id", id).Logger()
	}
	if id, ok := ctx.Value(approvalIDKey).(string); ok && id != "" {
		logger = logger.With().Str("approval_id", id).Logger()
	}
	if p, ok := ctx.Value(pluginKey).(string); ok && p != "" {
		logger = logger.With().Str("plugin", p).Logger()
	}
	if a, ok := ctx.Value(actionKey).(string); ok && a != "" {
		logger = logger.With().Str("action", a).Logger()
	}

	return logger
}

/* LogWithContext logs a message with context fields */
func LogWithContext(ctx context.Context, level zerolog.Level, message string, fields map[string]interface{}) {
	logger := LoggerFromContext(ctx)
	event := logger.WithLevel(level)

	for key, value := range fields {
		event = event.Interface(key, value)
	}

	event.Msg(message)
}

/* DebugWithContext logs a debug message with context */
func DebugWithContext(ctx context.Context, message string, fields map[string]interface{}) {
	LogWithContext(ctx, zerolog.DebugLevel, message, fields)
}

/* InfoWithContext logs an info message with context */
func InfoWithContext(ctx context.Context, message string, fields map[string]interface{}) {
	LogWithContext(ctx, zerolog.InfoLevel, message, fields)
}

/* WarnWithContext logs a warning message with context */
func WarnWithContext(ctx context.Context, message string, fields map[string]interface{}) {
	LogWithContext(ctx, zerolog.WarnLevel, message, fields)
}

/* ErrorWithContext logs an error message with context */
func ErrorWithContext(ctx context.Context, message string, err error, fields map[string]interface{}) {
	if fields == nil {
		fields = make(map[string]interface{})
	}
	if err != nil {
		fields["error"] = err.Error()
	}
	LogWithContext(ctx, zerolog.ErrorLevel, message, fields)
}
