package runtime

import (
	"context"

	libLog "github.com/LerianStudio/lib-syncore/syncore/log"
)

// SafeGo runs fn in a new goroutine with panic recovery.
func SafeGo(logger libLog.Logger, name string, policy PanicPolicy, fn func()) {
	SafeGoWithContext(context.Background(), logger, "syncore", name, policy, fn)
}

// SafeGoWithContext is SafeGo with a context and component for observability.
func SafeGoWithContext(
	ctx context.Context,
	logger libLog.Logger,
	component, name string,
	policy PanicPolicy,
	fn func(),
) {
	if fn == nil {
		return
	}

	go func() {
		defer RecoverWithPolicy(ctx, logger, component, name, policy)

		fn()
	}()
}
