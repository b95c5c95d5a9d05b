//go:build unit

package zap

import (
	"context"
	"errors"
	"testing"

	logpkg "github.com/LerianStudio/lib-syncore/syncore/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newObservedLogger(level zapcore.Level) (*Logger, *observer.ObservedLogs) {
	core, observed := observer.New(level)

	return NewFromZap(zap.New(core)), observed
}

func TestLoggerNilReceiverFallsBackToNop(t *testing.T) {
	t.Parallel()

	var nilLogger *Logger

	assert.NotPanics(t, func() {
		nilLogger.Log(context.Background(), logpkg.LevelInfo, "message")
	})
}

func TestLogMapsLevels(t *testing.T) {
	t.Parallel()

	logger, observed := newObservedLogger(zapcore.DebugLevel)

	logger.Log(context.Background(), logpkg.LevelDebug, "debug")
	logger.Log(context.Background(), logpkg.LevelInfo, "info")
	logger.Log(context.Background(), logpkg.LevelWarn, "warn")
	logger.Log(context.Background(), logpkg.LevelError, "error", logpkg.Err(errors.New("boom")))

	entries := observed.All()
	require.Len(t, entries, 4)
	assert.Equal(t, zapcore.DebugLevel, entries[0].Level)
	assert.Equal(t, zapcore.InfoLevel, entries[1].Level)
	assert.Equal(t, zapcore.WarnLevel, entries[2].Level)
	assert.Equal(t, zapcore.ErrorLevel, entries[3].Level)
	assert.Equal(t, "boom", entries[3].ContextMap()["error"])
}

func TestLogEscapesControlCharacters(t *testing.T) {
	t.Parallel()

	logger, observed := newObservedLogger(zapcore.InfoLevel)

	logger.Log(context.Background(), logpkg.LevelInfo, "line1\nline2", logpkg.String("uri", "/events/1\r\nforged"))

	entries := observed.All()
	require.Len(t, entries, 1)
	assert.Equal(t, `line1\nline2`, entries[0].Message)
	assert.Equal(t, `/events/1\r\nforged`, entries[0].ContextMap()["uri"])
}

func TestLogWithSpanInjectsTraceFields(t *testing.T) {
	t.Parallel()

	logger, observed := newObservedLogger(zapcore.InfoLevel)

	traceID, err := trace.TraceIDFromHex("0102030405060708090a0b0c0d0e0f10")
	require.NoError(t, err)
	spanID, err := trace.SpanIDFromHex("0102030405060708")
	require.NoError(t, err)

	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	}))

	logger.Log(ctx, logpkg.LevelInfo, "with span")

	fields := observed.All()[0].ContextMap()
	assert.Equal(t, traceID.String(), fields["trace_id"])
	assert.Equal(t, spanID.String(), fields["span_id"])
}

func TestWithAndWithGroup(t *testing.T) {
	t.Parallel()

	logger, observed := newObservedLogger(zapcore.InfoLevel)

	logger.With(logpkg.String("component", "outbox")).Log(context.Background(), logpkg.LevelInfo, "child")
	logger.WithGroup("poller").With(logpkg.Int("attempt", 2)).Log(context.Background(), logpkg.LevelInfo, "grouped")
	logger.Log(context.Background(), logpkg.LevelInfo, "parent")

	entries := observed.All()
	require.Len(t, entries, 3)
	assert.Equal(t, "outbox", entries[0].ContextMap()["component"])
	assert.Equal(t, map[string]any{"attempt": int64(2)}, entries[1].ContextMap()["poller"])
	assert.NotContains(t, entries[2].ContextMap(), "component")
}

func TestEnabled(t *testing.T) {
	t.Parallel()

	logger, _ := newObservedLogger(zapcore.WarnLevel)

	assert.True(t, logger.Enabled(logpkg.LevelError))
	assert.True(t, logger.Enabled(logpkg.LevelWarn))
	assert.False(t, logger.Enabled(logpkg.LevelInfo))
	assert.False(t, logger.Enabled(logpkg.LevelDebug))
}

func TestSyncWithCancelledContext(t *testing.T) {
	t.Parallel()

	logger, _ := newObservedLogger(zapcore.InfoLevel)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.ErrorIs(t, logger.Sync(ctx), context.Canceled)
}

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("rejects unknown environment", func(t *testing.T) {
		t.Parallel()

		_, err := New(Config{Environment: "moon"})
		require.Error(t, err)
	})

	t.Run("rejects invalid level", func(t *testing.T) {
		t.Parallel()

		_, err := New(Config{Environment: EnvironmentProduction, Level: "loud"})
		require.Error(t, err)
	})

	t.Run("local defaults to debug", func(t *testing.T) {
		t.Parallel()

		logger, err := New(Config{Environment: EnvironmentLocal})
		require.NoError(t, err)
		assert.Equal(t, zapcore.DebugLevel, logger.Level().Level())
	})

	t.Run("production defaults to info with bridge", func(t *testing.T) {
		t.Parallel()

		logger, err := New(Config{Environment: EnvironmentProduction, ServiceName: "syncd"})
		require.NoError(t, err)
		assert.Equal(t, zapcore.InfoLevel, logger.Level().Level())
		assert.False(t, logger.Enabled(logpkg.LevelDebug))
	})
}
