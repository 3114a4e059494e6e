package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestFromContext(t *testing.T) {
	assert.NotNil(t, FromContext(context.Background()))

	l := zap.NewExample()
	assert.Same(t, l, FromContext(WithContext(context.Background(), l)))
}

func TestWithRequestID(t *testing.T) {
	core, recorded := observer.New(zapcore.InfoLevel)

	ctx, l := WithRequestID(context.Background(), zap.New(core), "req-123")
	l.Info("hello")

	assert.Equal(t, "req-123", GetRequestID(ctx))
	assert.Equal(t, "req-123", recorded.All()[0].ContextMap()["request_id"])
	assert.Empty(t, GetRequestID(context.Background()))
}

func TestContextLogger_AddsTraceAndRequestIDs(t *testing.T) {
	core, recorded := observer.New(zapcore.DebugLevel)
	tp := sdktrace.NewTracerProvider()
	defer func() { _ = tp.Shutdown(context.Background()) }()

	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	defer span.End()
	ctx = context.WithValue(ctx, RequestIDKey, "req-9")

	WithLogger(ctx, zap.New(core)).With(zap.String("run_id", "r1")).Info("run started")

	require.Equal(t, 1, recorded.Len())
	fields := recorded.All()[0].ContextMap()
	assert.Equal(t, span.SpanContext().TraceID().String(), fields["trace_id"])
	assert.Equal(t, span.SpanContext().SpanID().String(), fields["span_id"])
	assert.Equal(t, "req-9", fields["request_id"])
	assert.Equal(t, "r1", fields["run_id"])
	assert.Equal(t, span.SpanContext().TraceID().String(), GetTraceID(ctx))
}

func TestContextLogger_WithoutSpan(t *testing.T) {
	core, recorded := observer.New(zapcore.DebugLevel)

	L(WithContext(context.Background(), zap.New(core))).Warn("plain")

	require.Equal(t, 1, recorded.Len())
	_, hasTrace := recorded.All()[0].ContextMap()["trace_id"]
	assert.False(t, hasTrace)
	assert.Empty(t, GetTraceID(context.Background()))
}

func TestContextLogger_NilLogger(t *testing.T) {
	assert.NotPanics(t, func() {
		WithLogger(context.Background(), nil).With(zap.Int("n", 1)).Error("dropped")
	})
}
