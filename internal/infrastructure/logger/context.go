package logger

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type ctxKey int

const (
	requestIDKey ctxKey = iota
	userIDKey
	commandKey
)

// WithRequestID pins the X-Request-ID the HTTP client sends. Without one
// every attempt gets a fresh ID.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestID returns the pinned request ID, or "".
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// WithUserID records the signed-in user on ctx
func WithUserID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, userIDKey, id)
}

// WithCommand records the CLI command being run
func WithCommand(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, commandKey, name)
}

// Enrich returns l with whatever correlation fields ctx carries: the active
// span, the pinned request ID, the user and the command.
//
//	logger.Enrich(ctx, s.logger).Info("signed in")
func Enrich(ctx context.Context, l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}

	var fields []zap.Field
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		fields = append(fields,
			zap.Stringer("trace_id", sc.TraceID()),
			zap.Stringer("span_id", sc.SpanID()))
	}
	for _, f := range []struct {
		key ctxKey
		log string
	}{
		{requestIDKey, "request_id"},
		{userIDKey, "user_id"},
		{commandKey, "command"},
	} {
		if v, _ := ctx.Value(f.key).(string); v != "" {
			fields = append(fields, zap.String(f.log, v))
		}
	}
	if len(fields) == 0 {
		return l
	}
	return l.With(fields...)
}
