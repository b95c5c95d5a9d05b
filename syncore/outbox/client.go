package outbox

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/LerianStudio/lib-syncore/syncore/backoff"
	"github.com/LerianStudio/lib-syncore/syncore/dispatch"
	"github.com/LerianStudio/lib-syncore/syncore/internal/nilcheck"
	libLog "github.com/LerianStudio/lib-syncore/syncore/log"
	"github.com/LerianStudio/lib-syncore/syncore/platform"
	"github.com/LerianStudio/lib-syncore/syncore/transport"
)

type retryKind string

const (
	retryServer     retryKind = "server_error"
	retryNetwork    retryKind = "network_error"
	retryRepository retryKind = "repository_error"
)

// attempt is one POST of the queue head.
type attempt struct {
	ctx      context.Context
	span     trace.Span
	cmd      Command
	endpoint string
	delay    time.Duration
	started  time.Time
	resp     transport.Response
}

// Client drains a Repository into an HTTP endpoint, one command at a time.
//
// All loop state changes run as tasks on the scheduler. Submit, Disable and
// the accessors may be called from any goroutine.
type Client struct {
	repo      Repository
	http      transport.HTTPClient
	scheduler platform.Scheduler
	ownLoop   *platform.Loop
	logger    libLog.Logger
	tracer    trace.Tracer
	cfg       Config
	onFatal   FatalHandler
	local     LocalHandler
	rules     *dispatch.Table[*attempt, State]
	metrics   clientMetrics

	busy     atomic.Bool
	disabled atomic.Bool
	halted   atomic.Bool
	state    atomic.Int32

	errMu sync.Mutex
	err   error
}

// NewClient creates an outbox client. Without WithScheduler the client starts
// its own platform.Loop, released by Close.
func NewClient(repo Repository, httpClient transport.HTTPClient, opts ...Option) (*Client, error) {
	if nilcheck.Interface(repo) {
		return nil, ErrRepositoryRequired
	}

	if nilcheck.Interface(httpClient) {
		return nil, ErrHTTPClientRequired
	}

	client := &Client{
		repo:   repo,
		http:   httpClient,
		logger: libLog.NewNop(),
		tracer: noop.NewTracerProvider().Tracer("syncore.noop"),
		cfg:    DefaultConfig(),
	}

	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}

	client.cfg.normalize()

	if client.onFatal == nil {
		client.onFatal = client.logFatal
	}

	if client.scheduler == nil {
		loop := platform.NewLoop(platform.WithLoopLogger(client.logger))
		if err := loop.Start(context.Background()); err != nil {
			return nil, fmt.Errorf("start outbox loop: %w", err)
		}

		client.ownLoop = loop
		client.scheduler = loop
	}

	metrics, err := newClientMetrics(client.cfg.MeterProvider)
	if err != nil {
		client.Close()

		return nil, fmt.Errorf("init outbox metrics: %w", err)
	}

	client.metrics = metrics
	client.rules = client.responseRules()

	return client, nil
}

func (c *Client) responseRules() *dispatch.Table[*attempt, State] {
	return dispatch.NewTable[*attempt, State](describeAttempt).MustRegister(
		dispatch.Rule[*attempt, State]{
			Name:   "network-error",
			Match:  func(a *attempt) bool { return a.resp.Failed() },
			Action: func(a *attempt) State { return c.retry(a, retryNetwork) },
		},
		dispatch.Rule[*attempt, State]{
			Name:   "success",
			Match:  func(a *attempt) bool { return a.resp.Success() },
			Action: c.acknowledge,
		},
		dispatch.Rule[*attempt, State]{
			Name:   "server-error",
			Match:  func(a *attempt) bool { return a.resp.ServerError() },
			Action: func(a *attempt) State { return c.retry(a, retryServer) },
		},
	)
}

func describeAttempt(a *attempt) string {
	return fmt.Sprintf("POST %s status=%d", a.endpoint, a.resp.Status)
}

// Submit runs the local handler, persists cmd and wakes the flush loop.
// It returns before delivery. A nil error means the command is queued.
func (c *Client) Submit(ctx context.Context, cmd Command) error {
	if c == nil {
		return ErrClientRequired
	}

	if ctx == nil {
		ctx = context.Background()
	}

	if err := cmd.Validate(); err != nil {
		return err
	}

	cmd = cmd.normalized()

	if c.local != nil {
		if err := c.local(ctx, cmd); err != nil {
			return fmt.Errorf("%w: %w", ErrLocalHandler, err)
		}
	}

	if err := c.repo.Add(ctx, cmd); err != nil {
		return fmt.Errorf("%w: add %q: %w", ErrPersistence, cmd.Name, err)
	}

	c.metrics.commandsSubmitted.Add(ctx, 1, metric.WithAttributes(attribute.String("command", cmd.Name)))

	c.wake(c.cfg.Policy.Initial)

	return nil
}

// Disable stops the loop from scheduling any further flush. A POST already
// in flight completes and its result is still applied to the queue.
func (c *Client) Disable() {
	c.disabled.Store(true)
}

// Disabled reports whether Disable was called.
func (c *Client) Disabled() bool { return c.disabled.Load() }

// Busy reports whether a flush is scheduled or in flight.
func (c *Client) Busy() bool { return c.busy.Load() }

// State returns the current loop state.
func (c *Client) State() State { return State(c.state.Load()) }

// Err returns the error that halted the client, if any.
func (c *Client) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()

	return c.err
}

// Close disables the client and stops the loop it owns, if any.
func (c *Client) Close() {
	c.Disable()

	if c.ownLoop != nil {
		c.ownLoop.Stop()
	}
}

// Endpoint returns the POST target for a command name.
func (c *Client) Endpoint(name string) string {
	return strings.TrimRight(c.cfg.Prefix, "/") + "/" + url.PathEscape(name)
}

func (c *Client) wake(delay time.Duration) {
	if c.disabled.Load() || c.halted.Load() {
		return
	}

	if !c.busy.CompareAndSwap(false, true) {
		return
	}

	c.state.Store(int32(StateFlushing))
	c.scheduler.Schedule(delay, func() { c.exhaustQueue(delay) })
}

func (c *Client) idle() {
	c.state.Store(int32(StateIdle))
	c.busy.Store(false)
}

func (c *Client) exhaustQueue(delay time.Duration) {
	if c.disabled.Load() || c.halted.Load() {
		c.idle()
		return
	}

	ctx := context.Background()

	head, err := c.repo.First(ctx)
	if err != nil {
		c.readFailed(ctx, delay, err)
		return
	}

	if head == nil {
		c.idle()
		c.recheck(ctx)

		return
	}

	c.flush(ctx, *head, delay)
}

// recheck closes the window where Submit saw busy=true after the loop had
// already found the queue empty.
func (c *Client) recheck(ctx context.Context) {
	if c.disabled.Load() || c.halted.Load() {
		return
	}

	head, err := c.repo.First(ctx)
	if err != nil {
		if c.busy.CompareAndSwap(false, true) {
			c.readFailed(ctx, 0, err)
		}

		return
	}

	if head != nil {
		c.wake(0)
	}
}

// readFailed halts on a corrupt head and backs off on any other read error.
// The caller must hold busy.
func (c *Client) readFailed(ctx context.Context, delay time.Duration, err error) {
	if errors.Is(err, ErrCorruptCommand) {
		c.logger.Log(ctx, libLog.LevelError, "outbox head is corrupt", libLog.Err(err))
		c.halt(ctx, err)

		return
	}

	c.retry(&attempt{ctx: ctx, delay: delay, resp: transport.Response{Err: fmt.Errorf("%w: %w", ErrPersistence, err)}}, retryRepository)
}

func (c *Client) flush(ctx context.Context, cmd Command, delay time.Duration) {
	c.state.Store(int32(StateFlushing))

	endpoint := c.Endpoint(cmd.Name)

	ctx, span := c.tracer.Start(ctx, "outbox.client.flush")
	span.SetAttributes(
		attribute.String("outbox.command", cmd.Name),
		attribute.String("outbox.endpoint", endpoint),
		attribute.Int64("outbox.delay_ms", delay.Milliseconds()),
	)

	a := &attempt{
		ctx:      ctx,
		span:     span,
		cmd:      cmd,
		endpoint: endpoint,
		delay:    delay,
		started:  time.Now(),
	}

	var once sync.Once

	c.http.Post(ctx, endpoint, cmd.Payload, func(resp transport.Response) {
		once.Do(func() {
			a.resp = resp
			c.scheduler.Schedule(0, func() { c.complete(a) })
		})
	})
}

func (c *Client) complete(a *attempt) {
	defer a.span.End()

	c.metrics.flushLatency.Record(a.ctx, time.Since(a.started).Seconds())

	if a.resp.URI == "" {
		a.resp.URI = a.endpoint
	}

	next, err := c.rules.Dispatch(a)
	if err != nil {
		if errors.Is(err, dispatch.ErrNoMatchingRule) {
			err = transport.NewUnexpectedResponseError(a.resp)
		}

		a.span.RecordError(err)
		a.span.SetStatus(codes.Error, "outbox halted")
		c.halt(a.ctx, err)

		return
	}

	a.span.SetAttributes(
		attribute.Int("http.response.status_code", a.resp.Status),
		attribute.String("outbox.next_state", next.String()),
	)
}

// acknowledge removes the delivered head and moves on to the next command.
func (c *Client) acknowledge(a *attempt) State {
	if err := c.repo.RemoveFirst(a.ctx); err != nil {
		a.resp = transport.Response{Err: fmt.Errorf("%w: remove delivered %q: %w", ErrPersistence, a.cmd.Name, err)}

		return c.retry(a, retryRepository)
	}

	c.metrics.commandsDelivered.Add(a.ctx, 1, metric.WithAttributes(attribute.String("command", a.cmd.Name)))
	c.logger.Log(a.ctx, libLog.LevelDebug, "outbox command delivered",
		libLog.String("command", a.cmd.Name), libLog.Int("status", a.resp.Status))

	if c.disabled.Load() {
		c.idle()
		return StateIdle
	}

	c.scheduler.Schedule(0, func() { c.exhaustQueue(0) })

	return StateFlushing
}

// retry grows the delay for kind, reports it to the policy hooks and retries
// the same head after the new delay.
func (c *Client) retry(a *attempt, kind retryKind) State {
	policy := c.cfg.Policy

	var (
		next time.Duration
		hook func(backoff.Retry)
	)

	if kind == retryServer {
		next = policy.NextServerError(a.delay)
		hook = policy.Hooks.ServerError
	} else {
		next = policy.NextClientError(a.delay)
		hook = policy.Hooks.ClientError
	}

	report := backoff.Retry{URI: a.endpoint, Err: a.resp.Err, Status: a.resp.Status, Delay: next}
	c.scheduler.Schedule(0, func() { hook(report) })

	c.metrics.commandsRetried.Add(a.ctx, 1, metric.WithAttributes(attribute.String("reason", string(kind))))

	fields := []libLog.Field{
		libLog.String("reason", string(kind)),
		libLog.String("endpoint", a.endpoint),
		libLog.Duration("delay", next),
	}
	if a.resp.Err != nil {
		fields = append(fields, libLog.Err(a.resp.Err))
	} else {
		fields = append(fields, libLog.Int("status", a.resp.Status))
	}

	c.logger.Log(a.ctx, libLog.LevelWarn, "outbox flush failed, backing off", fields...)

	if c.disabled.Load() {
		c.idle()
		return StateIdle
	}

	c.state.Store(int32(StateBackoff))
	c.scheduler.Schedule(next, func() { c.exhaustQueue(next) })

	return StateBackoff
}

func (c *Client) halt(ctx context.Context, err error) {
	c.errMu.Lock()
	c.err = fmt.Errorf("%w: %w", ErrHalted, err)
	c.errMu.Unlock()

	c.halted.Store(true)
	c.state.Store(int32(StateHalted))
	c.busy.Store(false)

	c.onFatal(ctx, err)
}

func (c *Client) logFatal(ctx context.Context, err error) {
	c.logger.Log(ctx, libLog.LevelError, "outbox client halted", libLog.Err(err))
}
