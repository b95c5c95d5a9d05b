package eventstream

import (
	"context"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/LerianStudio/lib-syncore/syncore/backoff"
	"github.com/LerianStudio/lib-syncore/syncore/internal/nilcheck"
	libLog "github.com/LerianStudio/lib-syncore/syncore/log"
	"github.com/LerianStudio/lib-syncore/syncore/platform"
)

// Config controls the stream protocol, retry policy and metrics.
type Config struct {
	Protocol      Protocol
	Policy        backoff.Policy
	MeterProvider metric.MeterProvider
}

// DefaultConfig returns the baseline poller configuration.
func DefaultConfig() Config {
	return Config{
		Protocol: ProtocolNoContent,
		Policy:   backoff.DefaultPolicy(),
	}
}

func (cfg *Config) normalize() {
	if cfg.Protocol.NoEventsStatus == 0 {
		cfg.Protocol = ProtocolNoContent
	}

	cfg.Policy = cfg.Policy.Normalize()
}

// FatalHandler receives errors that halt the poller.
type FatalHandler func(ctx context.Context, err error)

// Option mutates poller configuration at construction.
type Option func(*Poller)

// WithPositionStore resumes from and records positions in store.
func WithPositionStore(store PositionStore) Option {
	return func(p *Poller) {
		if !nilcheck.Interface(store) {
			p.positions = store
		}
	}
}

// WithProtocol selects how the server signals an empty stream.
func WithProtocol(protocol Protocol) Option {
	return func(p *Poller) { p.cfg.Protocol = protocol }
}

// WithPolicy sets the backoff policy. Nil functions fall back to defaults.
func WithPolicy(policy backoff.Policy) Option {
	return func(p *Poller) { p.cfg.Policy = policy }
}

// WithScheduler sets the scheduler that runs the poll loop.
func WithScheduler(scheduler platform.Scheduler) Option {
	return func(p *Poller) {
		if !nilcheck.Interface(scheduler) {
			p.scheduler = scheduler
		}
	}
}

// WithLogger sets the poller logger.
func WithLogger(logger libLog.Logger) Option {
	return func(p *Poller) {
		if !nilcheck.Interface(logger) {
			p.logger = logger
		}
	}
}

// WithTracer sets the tracer used for poll spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(p *Poller) {
		if !nilcheck.Interface(tracer) {
			p.tracer = tracer
		}
	}
}

// WithFatalHandler sets the handler for errors that halt the poller.
func WithFatalHandler(handler FatalHandler) Option {
	return func(p *Poller) {
		if handler != nil {
			p.onFatal = handler
		}
	}
}

// WithMeterProvider injects a custom meter provider for poller metrics.
func WithMeterProvider(provider metric.MeterProvider) Option {
	return func(p *Poller) {
		if nilcheck.Interface(provider) {
			p.cfg.MeterProvider = nil
			return
		}

		p.cfg.MeterProvider = provider
	}
}
