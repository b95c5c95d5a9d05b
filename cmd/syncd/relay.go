package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/LerianStudio/lib-syncore/syncore/backoff"
	"github.com/LerianStudio/lib-syncore/syncore/config"
	"github.com/LerianStudio/lib-syncore/syncore/eventstream"
	libLog "github.com/LerianStudio/lib-syncore/syncore/log"
	"github.com/LerianStudio/lib-syncore/syncore/outbox"
	"github.com/LerianStudio/lib-syncore/syncore/platform"
	"github.com/LerianStudio/lib-syncore/syncore/redis"
	"github.com/LerianStudio/lib-syncore/syncore/transport"
)

// relay moves command lines from an input to the outbox and writes polled
// events to an output.
type relay struct {
	cfg    *config.Config
	stores *storage
	loop   *platform.Loop
	http   *transport.Client
	logger libLog.Logger

	outbox *outbox.Client
	poller *eventstream.Poller

	fatal chan error
	outMu sync.Mutex
	out   io.Writer
}

const leaseRetryBase = 250 * time.Millisecond

type commandLine struct {
	Name    string          `json:"name"`
	Payload json.RawMessage `json:"payload"`
}

func newRelay(ctx context.Context, cfg *config.Config, stores *storage, loop *platform.Loop, logger libLog.Logger) (*relay, error) {
	tcfg := transport.DefaultConfig()
	tcfg.Timeout = cfg.Upstream.Timeout
	tcfg.Headers = cfg.Upstream.Headers

	httpClient, err := transport.NewClient(cfg.Upstream.BaseURL,
		transport.WithConfig(tcfg),
		transport.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}

	r := &relay{
		cfg:    cfg,
		stores: stores,
		loop:   loop,
		http:   httpClient,
		logger: logger,
		fatal:  make(chan error, 2),
	}

	if cfg.Outbox.Enabled {
		r.outbox, err = outbox.NewClient(stores.commands, httpClient,
			outbox.WithPrefix(cfg.Outbox.Prefix),
			outbox.WithScheduler(loop),
			outbox.WithLogger(logger),
			outbox.WithPolicy(backoff.Policy{
				ServerErrorIncrease: backoff.Additive(cfg.Outbox.ServerErrorStep),
				ClientErrorIncrease: backoff.Additive(cfg.Outbox.ClientErrorStep),
			}),
			outbox.WithFatalHandler(func(_ context.Context, err error) { r.fatal <- err }),
		)
		if err != nil {
			return nil, err
		}
	}

	return r, nil
}

func (r *relay) run(ctx context.Context, in io.Reader, out io.Writer) error {
	r.out = out

	if r.cfg.Events.Enabled {
		if err := r.startPoller(ctx); err != nil {
			return err
		}
	}

	lines := make(chan error, 1)

	if r.outbox != nil {
		go func() { lines <- r.readCommands(ctx, in) }()
	}

	var extend <-chan time.Time

	if lease := r.stores.lease; lease != nil {
		ticker := time.NewTicker(lease.TTL() / 3)
		defer ticker.Stop()

		extend = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-r.fatal:
			return err
		case err := <-lines:
			if err != nil {
				return err
			}

			lines = nil
		case <-extend:
			if err := r.stores.lease.Extend(ctx); err != nil {
				r.poller.Disable()

				return err
			}
		}
	}
}

// startPoller waits for the stream lease, when one is configured, before
// resuming from the stored position.
func (r *relay) startPoller(ctx context.Context) error {
	if lease := r.stores.lease; lease != nil {
		if err := acquire(ctx, lease, r.logger); err != nil {
			return err
		}
	}

	protocol, err := eventstream.ParseProtocol(r.cfg.Events.Protocol)
	if err != nil {
		return err
	}

	r.poller, err = eventstream.NewPoller(r.cfg.Events.InitialURI, r, r.http,
		eventstream.WithProtocol(protocol),
		eventstream.WithPositionStore(r.stores.positions),
		eventstream.WithScheduler(r.loop),
		eventstream.WithLogger(r.logger),
		eventstream.WithPolicy(backoff.Policy{
			ServerErrorIncrease: backoff.Additive(r.cfg.Events.ServerErrorStep),
			ClientErrorIncrease: backoff.Additive(r.cfg.Events.ClientErrorStep),
			WaitingIncrease:     backoff.Constant(r.cfg.Events.WaitingInterval),
		}),
		eventstream.WithFatalHandler(func(_ context.Context, err error) { r.fatal <- err }),
	)

	return err
}

func acquire(ctx context.Context, lease *redis.Lease, logger libLog.Logger) error {
	ceiling := lease.TTL()

	for attempt := 0; ; attempt++ {
		err := lease.TryAcquire(ctx)
		if err == nil {
			return nil
		}

		if !errors.Is(err, redis.ErrLeaseHeld) {
			return err
		}

		delay := min(backoff.ExponentialWithJitter(leaseRetryBase, attempt), ceiling)

		logger.Log(ctx, libLog.LevelDebug, "stream lease held elsewhere, waiting",
			libLog.Duration("delay", delay))

		if err := backoff.SleepWithContext(ctx, delay); err != nil {
			return err
		}
	}
}

func (r *relay) readCommands(ctx context.Context, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), outbox.DefaultMaxPayloadBytes+1024)

	for scanner.Scan() {
		if len(scanner.Bytes()) == 0 {
			continue
		}

		var line commandLine
		if err := json.Unmarshal(scanner.Bytes(), &line); err != nil {
			r.logger.Log(ctx, libLog.LevelWarn, "skipping malformed command line", libLog.Err(err))
			continue
		}

		cmd, err := outbox.NewCommand(line.Name, line.Payload)
		if err != nil {
			r.logger.Log(ctx, libLog.LevelWarn, "skipping invalid command", libLog.Err(err))
			continue
		}

		if err := r.outbox.Submit(ctx, cmd); err != nil {
			return fmt.Errorf("submit %s: %w", cmd.Name, err)
		}
	}

	return scanner.Err()
}

// OnEvent writes the event as a JSON line.
func (r *relay) OnEvent(ctx context.Context, event eventstream.Event) {
	r.outMu.Lock()
	defer r.outMu.Unlock()

	if err := json.NewEncoder(r.out).Encode(map[string]any{
		"uri":     event.URI,
		"type":    event.Type,
		"message": event.Message,
	}); err != nil {
		r.logger.Log(ctx, libLog.LevelError, "writing event failed", libLog.Err(err))
	}
}

func (r *relay) OnError(ctx context.Context, uri string, err error) {
	r.logger.Log(ctx, libLog.LevelWarn, "event stream error", libLog.String("uri", uri), libLog.Err(err))
}

func (r *relay) Close() {
	if r.poller != nil {
		r.poller.Close()
	}

	if r.outbox != nil {
		r.outbox.Close()
	}

	if lease := r.stores.lease; lease != nil {
		_ = lease.Release(context.Background())
	}
}
