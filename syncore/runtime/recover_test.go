//go:build unit

package runtime

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	libLog "github.com/LerianStudio/lib-syncore/syncore/log"
)

type captureLogger struct {
	libLog.NopLogger
	mu       sync.Mutex
	messages []string
	fields   [][]libLog.Field
}

func (l *captureLogger) Log(_ context.Context, _ libLog.Level, msg string, fields ...libLog.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.messages = append(l.messages, msg)
	l.fields = append(l.fields, fields)
}

func (l *captureLogger) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.messages)
}

func TestPanicPolicyString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "KeepRunning", KeepRunning.String())
	assert.Equal(t, "CrashProcess", CrashProcess.String())
	assert.Equal(t, "Unknown", PanicPolicy(9).String())
}

func TestRecoverAndLogSwallowsPanic(t *testing.T) {
	t.Parallel()

	logger := &captureLogger{}

	assert.NotPanics(t, func() {
		defer RecoverAndLog(context.Background(), logger, "outbox", "flush")
		panic("boom")
	})

	require.Equal(t, 1, logger.count())
	assert.Equal(t, "panic recovered", logger.messages[0])
	assert.Equal(t, libLog.String("panic.component", "outbox"), logger.fields[0][0])
}

func TestRecoverWithPolicyCrashRepanics(t *testing.T) {
	t.Parallel()

	logger := &captureLogger{}

	assert.PanicsWithValue(t, "boom", func() {
		defer RecoverWithPolicy(context.Background(), logger, "outbox", "flush", CrashProcess)
		panic("boom")
	})
	assert.Equal(t, 1, logger.count())
}

func TestSafeGoRecovers(t *testing.T) {
	t.Parallel()

	logger := &captureLogger{}

	SafeGo(logger, "worker", KeepRunning, func() { panic("boom") })

	require.Eventually(t, func() bool { return logger.count() == 1 }, time.Second, 5*time.Millisecond)
}

func TestHandlePanicValueRecordsSpanEvent(t *testing.T) {
	t.Parallel()

	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	ctx, span := provider.Tracer("test").Start(context.Background(), "op")
	HandlePanicValue(ctx, nil, "boom", "eventstream", "poll")
	span.End()

	ended := recorder.Ended()
	require.Len(t, ended, 1)
	require.Len(t, ended[0].Events(), 1)
	assert.Equal(t, "panic.recovered", ended[0].Events()[0].Name)
}

func TestHandlePanicValueIgnoresNil(t *testing.T) {
	t.Parallel()

	logger := &captureLogger{}
	HandlePanicValue(context.Background(), logger, nil, "c", "n")

	assert.Zero(t, logger.count())
}
