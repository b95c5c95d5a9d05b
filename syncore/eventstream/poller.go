package eventstream

import (
	"context"
	"errors"
	"fmt"
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
	"github.com/LerianStudio/lib-syncore/syncore/runtime"
	"github.com/LerianStudio/lib-syncore/syncore/transport"
)

// observation is one classified GET.
type observation struct {
	ctx        context.Context
	span       trace.Span
	uri        string
	delay      time.Duration
	transition bool
	resp       transport.Response
	resource   Resource
	decodeErr  error
}

// Poller walks an event stream, one GET at a time.
//
// A successor is only fetched from inside the classification of its
// predecessor's response, so GETs are never concurrent.
type Poller struct {
	http      transport.HTTPClient
	consumer  Consumer
	positions PositionStore
	scheduler platform.Scheduler
	ownLoop   *platform.Loop
	logger    libLog.Logger
	tracer    trace.Tracer
	cfg       Config
	onFatal   FatalHandler
	rules     *dispatch.Table[*observation, State]
	metrics   pollerMetrics

	enabled atomic.Bool
	halted  atomic.Bool
	state   atomic.Int32

	mu     sync.Mutex
	cursor string
	err    error
}

// NewPoller starts polling the last recorded position, or initialURI when
// the PositionStore has none. It returns as soon as the first poll is
// scheduled. Without WithScheduler the poller runs its own platform.Loop,
// released by Close.
func NewPoller(initialURI string, consumer Consumer, httpClient transport.HTTPClient, opts ...Option) (*Poller, error) {
	initialURI = strings.TrimSpace(initialURI)
	if initialURI == "" {
		return nil, ErrInitialURIRequired
	}

	if nilcheck.Interface(consumer) {
		return nil, ErrConsumerRequired
	}

	if nilcheck.Interface(httpClient) {
		return nil, ErrHTTPClientRequired
	}

	p := &Poller{
		http:      httpClient,
		consumer:  consumer,
		positions: NopPositionStore{},
		logger:    libLog.NewNop(),
		tracer:    noop.NewTracerProvider().Tracer("syncore.noop"),
		cfg:       DefaultConfig(),
	}

	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}

	p.cfg.normalize()

	if p.onFatal == nil {
		p.onFatal = p.logFatal
	}

	metrics, err := newPollerMetrics(p.cfg.MeterProvider)
	if err != nil {
		return nil, fmt.Errorf("init eventstream metrics: %w", err)
	}

	p.metrics = metrics
	p.rules = p.responseRules()

	start := initialURI

	latest, ok, err := p.positions.Latest(context.Background())
	if err != nil {
		return nil, fmt.Errorf("%w: read latest position: %w", ErrPosition, err)
	}

	if ok && latest != "" {
		start = latest
	}

	if p.scheduler == nil {
		loop := platform.NewLoop(platform.WithLoopLogger(p.logger))
		if err := loop.Start(context.Background()); err != nil {
			return nil, fmt.Errorf("start eventstream loop: %w", err)
		}

		p.ownLoop = loop
		p.scheduler = loop
	}

	p.logger.Log(context.Background(), libLog.LevelInfo, "eventstream poller started",
		libLog.String("uri", start), libLog.String("protocol", p.cfg.Protocol.Name))

	p.enabled.Store(true)
	p.poll(start, 0, false)

	return p, nil
}

func (p *Poller) responseRules() *dispatch.Table[*observation, State] {
	protocol := p.cfg.Protocol

	return dispatch.NewTable[*observation, State](describeObservation).MustRegister(
		dispatch.Rule[*observation, State]{
			Name:   "no-events-yet",
			Match:  func(o *observation) bool { return protocol.noEvents(o.resp) },
			Action: p.wait,
		},
		dispatch.Rule[*observation, State]{
			Name: "placeholder",
			Match: func(o *observation) bool {
				if protocol.redirect(o.resp) {
					return o.resource.HasNext()
				}

				return protocol.eventShaped(o.resp) && !o.resource.HasMessage() && o.resource.HasNext()
			},
			Action: p.advance,
		},
		dispatch.Rule[*observation, State]{
			Name: "at-head",
			Match: func(o *observation) bool {
				return protocol.eventShaped(o.resp) && o.resource.HasMessage() && !o.resource.HasNext()
			},
			Action: p.wait,
		},
		dispatch.Rule[*observation, State]{
			Name: "continuation",
			Match: func(o *observation) bool {
				return protocol.eventShaped(o.resp) && o.resource.HasMessage() && o.resource.HasNext()
			},
			Action: p.advance,
		},
		dispatch.Rule[*observation, State]{
			Name:   "server-error",
			Match:  func(o *observation) bool { return o.resp.ServerError() },
			Action: p.backoffServer,
		},
		dispatch.Rule[*observation, State]{
			Name:   "network-error",
			Match:  func(o *observation) bool { return o.resp.Failed() },
			Action: p.backoffNetwork,
		},
	)
}

func describeObservation(o *observation) string {
	return fmt.Sprintf("GET %s status=%d err=%v", o.uri, o.resp.Status, o.resp.Err)
}

// Disable stops the poller. A GET already in flight completes and an event
// it carries is still delivered, but no further GET is issued.
func (p *Poller) Disable() {
	p.enabled.Store(false)
}

// Enabled reports whether the poller may still issue requests.
func (p *Poller) Enabled() bool { return p.enabled.Load() }

// State returns the current poll state.
func (p *Poller) State() State {
	if p.halted.Load() {
		return StateHalted
	}

	if !p.enabled.Load() {
		return StateDisabled
	}

	return State(p.state.Load())
}

// Cursor returns the URI being polled.
func (p *Poller) Cursor() string {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.cursor
}

// Err returns the error that halted the poller, if any.
func (p *Poller) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.err
}

// Close disables the poller and stops the loop it owns, if any.
func (p *Poller) Close() {
	p.Disable()

	if p.ownLoop != nil {
		p.ownLoop.Stop()
	}
}

// poll fetches uri after delay. transition marks uri as a genuine event whose
// delivery is still owed.
func (p *Poller) poll(uri string, delay time.Duration, transition bool) {
	if !p.enabled.Load() || p.halted.Load() {
		return
	}

	p.mu.Lock()
	p.cursor = uri
	p.mu.Unlock()

	p.scheduler.Schedule(delay, func() {
		if !p.enabled.Load() || p.halted.Load() {
			return
		}

		ctx, span := p.tracer.Start(context.Background(), "eventstream.poller.poll")
		span.SetAttributes(
			attribute.String("eventstream.uri", uri),
			attribute.Bool("eventstream.transition", transition),
			attribute.Int64("eventstream.delay_ms", delay.Milliseconds()),
		)

		o := &observation{ctx: ctx, span: span, uri: uri, delay: delay, transition: transition}

		var once sync.Once

		p.http.Get(ctx, uri, func(resp transport.Response) {
			once.Do(func() {
				o.resp = resp
				p.scheduler.Schedule(0, func() { p.handle(o) })
			})
		})
	})
}

func (p *Poller) handle(o *observation) {
	defer o.span.End()

	if o.resp.URI == "" {
		o.resp.URI = o.uri
	}

	o.resource, o.decodeErr = p.cfg.Protocol.decode(o.resp)

	if o.transition && p.cfg.Protocol.eventShaped(o.resp) {
		p.transition(o)
		o.transition = false
	}

	next, err := p.rules.Dispatch(o)
	if err != nil {
		if errors.Is(err, dispatch.ErrNoMatchingRule) {
			unexpected := transport.NewUnexpectedResponseError(o.resp)
			if o.decodeErr != nil {
				err = fmt.Errorf("%w: %w", unexpected, o.decodeErr)
			} else {
				err = unexpected
			}
		}

		o.span.RecordError(err)
		o.span.SetStatus(codes.Error, "eventstream halted")
		p.halt(o.ctx, err)

		return
	}

	o.span.SetAttributes(
		attribute.Int("http.response.status_code", o.resp.Status),
		attribute.String("eventstream.next_state", next.String()),
	)
}

// transition records o.uri as the latest position and delivers its event.
func (p *Poller) transition(o *observation) {
	var missing []string

	if o.resource.Type == "" {
		missing = append(missing, "type")
	}

	if !o.resource.HasMessage() {
		missing = append(missing, "message")
	}

	if len(missing) > 0 {
		p.report(o.ctx, o.uri, &ProtocolViolationError{URI: o.uri, Missing: missing})
		return
	}

	if err := p.positions.TransitionedTo(o.ctx, o.uri); err != nil {
		p.report(o.ctx, o.uri, fmt.Errorf("%w: transition to %s: %w", ErrPosition, o.uri, err))
		return
	}

	event := Event{URI: o.uri, Type: o.resource.Type, Message: o.resource.Message}

	func() {
		defer runtime.RecoverAndLog(o.ctx, p.logger, "eventstream", "consumer.on_event")

		p.consumer.OnEvent(o.ctx, event)
	}()

	p.metrics.eventsDelivered.Add(o.ctx, 1, metric.WithAttributes(attribute.String("type", event.Type)))
}

func (p *Poller) report(ctx context.Context, uri string, err error) {
	p.logger.Log(ctx, libLog.LevelWarn, "eventstream event rejected", libLog.String("uri", uri), libLog.Err(err))

	defer runtime.RecoverAndLog(ctx, p.logger, "eventstream", "consumer.on_error")

	p.consumer.OnError(ctx, uri, err)
}

// advance moves to the successor of o.uri at once.
func (p *Poller) advance(o *observation) State {
	p.state.Store(int32(StatePolling))
	p.poll(o.resource.Next, 0, true)

	return StatePolling
}

// wait re-polls o.uri after the waiting interval. A pending transition stays
// pending so the event is delivered once the resource appears.
func (p *Poller) wait(o *observation) State {
	delay := p.cfg.Policy.NextWaiting(o.delay)
	p.notify(o, "waiting", delay, p.cfg.Policy.Hooks.Waiting)

	p.state.Store(int32(StateWaiting))
	p.poll(o.uri, delay, o.transition)

	return StateWaiting
}

func (p *Poller) backoffServer(o *observation) State {
	delay := p.cfg.Policy.NextServerError(o.delay)
	p.notify(o, "server_error", delay, p.cfg.Policy.Hooks.ServerError)

	return p.retrySame(o, delay)
}

func (p *Poller) backoffNetwork(o *observation) State {
	delay := p.cfg.Policy.NextClientError(o.delay)
	p.notify(o, "network_error", delay, p.cfg.Policy.Hooks.ClientError)

	return p.retrySame(o, delay)
}

func (p *Poller) retrySame(o *observation, delay time.Duration) State {
	p.logger.Log(o.ctx, libLog.LevelWarn, "eventstream poll failed, backing off",
		libLog.String("uri", o.uri), libLog.Int("status", o.resp.Status),
		libLog.Duration("delay", delay), libLog.Any("error", o.resp.Err))

	p.state.Store(int32(StateBackoff))
	p.poll(o.uri, delay, o.transition)

	return StateBackoff
}

// notify hands the retry to a policy hook on its own scheduler task.
func (p *Poller) notify(o *observation, reason string, delay time.Duration, hook func(backoff.Retry)) {
	report := backoff.Retry{URI: o.uri, Err: o.resp.Err, Status: o.resp.Status, Delay: delay}

	p.scheduler.Schedule(0, func() { hook(report) })
	p.metrics.pollsRetried.Add(o.ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

func (p *Poller) halt(ctx context.Context, err error) {
	p.mu.Lock()
	p.err = fmt.Errorf("%w: %w", ErrHalted, err)
	p.mu.Unlock()

	p.halted.Store(true)
	p.state.Store(int32(StateHalted))

	p.onFatal(ctx, err)
}

func (p *Poller) logFatal(ctx context.Context, err error) {
	p.logger.Log(ctx, libLog.LevelError, "eventstream poller halted", libLog.Err(err))
}
