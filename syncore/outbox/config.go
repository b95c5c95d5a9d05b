package outbox

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/LerianStudio/lib-syncore/syncore/backoff"
	"github.com/LerianStudio/lib-syncore/syncore/internal/nilcheck"
	libLog "github.com/LerianStudio/lib-syncore/syncore/log"
	"github.com/LerianStudio/lib-syncore/syncore/platform"
)

const defaultPrefix = "/"

// Config controls endpoint resolution, retry policy and metrics.
type Config struct {
	// Prefix is joined with the command name to form the POST endpoint.
	Prefix string
	// Policy drives retry delays and telemetry hooks.
	Policy backoff.Policy
	// MeterProvider overrides the global meter provider when set.
	MeterProvider metric.MeterProvider
}

// DefaultConfig returns the baseline client configuration.
func DefaultConfig() Config {
	return Config{
		Prefix: defaultPrefix,
		Policy: backoff.DefaultPolicy(),
	}
}

func (cfg *Config) normalize() {
	cfg.Prefix = strings.TrimSpace(cfg.Prefix)
	if cfg.Prefix == "" {
		cfg.Prefix = defaultPrefix
	}

	if !strings.HasPrefix(cfg.Prefix, "/") && !strings.Contains(cfg.Prefix, "://") {
		cfg.Prefix = "/" + cfg.Prefix
	}

	cfg.Policy = cfg.Policy.Normalize()
}

// FatalHandler receives errors that halt the client.
type FatalHandler func(ctx context.Context, err error)

// LocalHandler applies a command to local state before it is queued.
type LocalHandler func(ctx context.Context, cmd Command) error

// Option mutates client configuration at construction.
type Option func(*Client)

// WithPrefix sets the endpoint prefix, e.g. "/commands".
func WithPrefix(prefix string) Option {
	return func(c *Client) { c.cfg.Prefix = prefix }
}

// WithPolicy sets the backoff policy. Nil functions fall back to defaults.
func WithPolicy(policy backoff.Policy) Option {
	return func(c *Client) { c.cfg.Policy = policy }
}

// WithScheduler sets the scheduler that runs the flush loop.
func WithScheduler(scheduler platform.Scheduler) Option {
	return func(c *Client) {
		if !nilcheck.Interface(scheduler) {
			c.scheduler = scheduler
		}
	}
}

// WithLogger sets the client logger.
func WithLogger(logger libLog.Logger) Option {
	return func(c *Client) {
		if !nilcheck.Interface(logger) {
			c.logger = logger
		}
	}
}

// WithTracer sets the tracer used for flush spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(c *Client) {
		if !nilcheck.Interface(tracer) {
			c.tracer = tracer
		}
	}
}

// WithFatalHandler sets the handler for errors that halt the client.
func WithFatalHandler(handler FatalHandler) Option {
	return func(c *Client) {
		if handler != nil {
			c.onFatal = handler
		}
	}
}

// WithLocalHandler sets a handler run by Submit before the command is queued.
func WithLocalHandler(handler LocalHandler) Option {
	return func(c *Client) { c.local = handler }
}

// WithMeterProvider injects a custom meter provider for client metrics.
func WithMeterProvider(provider metric.MeterProvider) Option {
	return func(c *Client) {
		if nilcheck.Interface(provider) {
			c.cfg.MeterProvider = nil
			return
		}

		c.cfg.MeterProvider = provider
	}
}
