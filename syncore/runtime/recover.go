package runtime

import (
	"context"
	"fmt"
	"runtime/debug"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	libLog "github.com/LerianStudio/lib-syncore/syncore/log"
)

// RecoverAndLog recovers from a panic and logs it with its stack trace.
// Use it in defer statements of workers that must survive a panic.
//
//	defer runtime.RecoverAndLog(ctx, logger, "outbox", "flush")
func RecoverAndLog(ctx context.Context, logger libLog.Logger, component, name string) {
	if recovered := recover(); recovered != nil {
		HandlePanicValue(ctx, logger, recovered, component, name)
	}
}

// RecoverWithPolicy is like RecoverAndLog but re-panics when policy is CrashProcess.
func RecoverWithPolicy(ctx context.Context, logger libLog.Logger, component, name string, policy PanicPolicy) {
	if recovered := recover(); recovered != nil {
		HandlePanicValue(ctx, logger, recovered, component, name)

		if policy == CrashProcess {
			panic(recovered)
		}
	}
}

// HandlePanicValue records a panic value that was already recovered by the caller.
func HandlePanicValue(ctx context.Context, logger libLog.Logger, panicValue any, component, name string) {
	if panicValue == nil {
		return
	}

	if ctx == nil {
		ctx = context.Background()
	}

	stack := debug.Stack()

	libLog.OrNop(logger).Log(ctx, libLog.LevelError, "panic recovered",
		libLog.String("panic.component", component),
		libLog.String("panic.goroutine_name", name),
		libLog.String("panic.value", fmt.Sprint(panicValue)),
		libLog.String("panic.stack", string(stack)),
	)

	recordPanicToSpan(ctx, panicValue, component, name)
}

func recordPanicToSpan(ctx context.Context, panicValue any, component, name string) {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}

	span.AddEvent("panic.recovered", trace.WithAttributes(
		attribute.String("panic.component", component),
		attribute.String("panic.goroutine_name", name),
		attribute.String("panic.value", fmt.Sprint(panicValue)),
	))
	span.SetStatus(codes.Error, "panic recovered")
}
