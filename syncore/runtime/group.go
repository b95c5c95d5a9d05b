package runtime

import (
	"context"
	"errors"
	"fmt"
	"sync"

	libLog "github.com/LerianStudio/lib-syncore/syncore/log"
)

// ErrGroupPanic is returned by Group.Wait when a member goroutine panicked.
var ErrGroupPanic = errors.New("runtime: group member panicked")

// Group runs named goroutines that share a context. The first failure, error
// or panic, cancels the context and is the one Wait reports.
type Group struct {
	ctx    context.Context
	cancel context.CancelFunc
	logger libLog.Logger

	wg   sync.WaitGroup
	once sync.Once
	err  error
}

// NewGroup derives the group context from ctx.
func NewGroup(ctx context.Context, logger libLog.Logger) (*Group, context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}

	ctx, cancel := context.WithCancel(ctx)

	return &Group{ctx: ctx, cancel: cancel, logger: libLog.OrNop(logger)}, ctx
}

// Go starts fn under name.
func (g *Group) Go(name string, fn func(ctx context.Context) error) {
	g.wg.Add(1)

	go func() {
		defer g.wg.Done()
		defer func() {
			if recovered := recover(); recovered != nil {
				HandlePanicValue(g.ctx, g.logger, recovered, "group", name)
				g.fail(fmt.Errorf("%w: %s: %v", ErrGroupPanic, name, recovered))
			}
		}()

		if err := fn(g.ctx); err != nil {
			g.fail(fmt.Errorf("%s: %w", name, err))
		}
	}()
}

// Wait blocks until every member returns, then releases the context.
func (g *Group) Wait() error {
	g.wg.Wait()
	g.cancel()

	return g.err
}

func (g *Group) fail(err error) {
	g.once.Do(func() {
		g.err = err
		g.cancel()
	})
}
