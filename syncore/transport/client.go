package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	libLog "github.com/LerianStudio/lib-syncore/syncore/log"
	"github.com/LerianStudio/lib-syncore/syncore/runtime"
)

const (
	// DefaultTimeout bounds every request; a timeout surfaces as Response.Err.
	DefaultTimeout = 30 * time.Second
	// RequestIDHeader carries a fresh id on every request.
	RequestIDHeader = "X-Request-Id"
)

// ErrBaseURLRequired is returned when NewClient gets an empty base URL.
var ErrBaseURLRequired = errors.New("transport: base URL is required")

// ErrRequestPanicked is reported to the callback when sending a request panicked.
var ErrRequestPanicked = errors.New("transport: request panicked")

// Config holds Client settings.
type Config struct {
	Timeout   time.Duration
	Headers   map[string]string
	UserAgent string
	Breaker   BreakerConfig
}

// DefaultConfig returns the default client settings.
func DefaultConfig() Config {
	return Config{
		Timeout:   DefaultTimeout,
		UserAgent: "syncore",
		Breaker:   DefaultBreakerConfig(),
	}
}

func (cfg *Config) normalize() {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
}

// Option configures a Client.
type Option func(*Client)

// WithConfig replaces the client settings.
func WithConfig(cfg Config) Option {
	return func(c *Client) { c.cfg = cfg }
}

// WithLogger sets the client logger.
func WithLogger(logger libLog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithTracer sets the tracer used for request spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(c *Client) {
		if tracer != nil {
			c.tracer = tracer
		}
	}
}

// WithHTTPClient lets tests and callers supply the underlying *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// Client is an HTTPClient backed by resty. Redirects are never followed so
// that 3xx responses reach the caller's classification untouched.
type Client struct {
	cfg        Config
	rest       *resty.Client
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	logger     libLog.Logger
	tracer     trace.Tracer
}

// NewClient creates a Client resolving relative URIs against baseURL.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return nil, ErrBaseURLRequired
	}

	c := &Client{
		cfg:    DefaultConfig(),
		logger: libLog.NewNop(),
		tracer: noop.NewTracerProvider().Tracer("syncore.transport"),
	}

	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}

	c.cfg.normalize()

	rest := resty.New()
	if c.httpClient != nil {
		rest = resty.NewWithClient(c.httpClient)
	}

	rest.SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(c.cfg.Timeout).
		SetHeader("Accept", "application/json").
		SetRedirectPolicy(resty.RedirectPolicyFunc(func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}))

	if c.cfg.UserAgent != "" {
		rest.SetHeader("User-Agent", c.cfg.UserAgent)
	}

	for key, value := range c.cfg.Headers {
		rest.SetHeader(key, value)
	}

	c.rest = rest
	c.breaker = newBreaker("syncore-"+baseURL, c.cfg.Breaker, c.logger)

	return c, nil
}

// Post sends payload as a JSON body to endpoint.
func (c *Client) Post(ctx context.Context, endpoint string, payload []byte, cb Callback) {
	c.dispatch(ctx, http.MethodPost, endpoint, payload, cb)
}

// Get fetches uri.
func (c *Client) Get(ctx context.Context, uri string, cb Callback) {
	c.dispatch(ctx, http.MethodGet, uri, nil, cb)
}

// BreakerState reports the breaker state, or closed when it is disabled.
func (c *Client) BreakerState() BreakerState {
	if c.breaker == nil {
		return BreakerClosed
	}

	return convertState(c.breaker.State())
}

func (c *Client) dispatch(ctx context.Context, method, uri string, payload []byte, cb Callback) {
	if ctx == nil {
		ctx = context.Background()
	}

	if cb == nil {
		cb = func(Response) {}
	}

	runtime.SafeGoWithContext(ctx, c.logger, "transport", strings.ToLower(method), runtime.KeepRunning, func() {
		cb(c.safeDo(ctx, method, uri, payload))
	})
}

// safeDo turns a panic in do into an error response so the callback still
// runs exactly once.
func (c *Client) safeDo(ctx context.Context, method, uri string, payload []byte) (resp Response) {
	defer func() {
		if recovered := recover(); recovered != nil {
			runtime.HandlePanicValue(ctx, c.logger, recovered, "transport", strings.ToLower(method))

			resp = Response{URI: uri, Err: fmt.Errorf("%w: %v", ErrRequestPanicked, recovered)}
		}
	}()

	return c.do(ctx, method, uri, payload)
}

func (c *Client) do(ctx context.Context, method, uri string, payload []byte) Response {
	requestID := uuid.NewString()

	ctx, span := c.tracer.Start(ctx, "transport."+strings.ToLower(method), trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	span.SetAttributes(
		attribute.String("http.request.method", method),
		attribute.String("url.full", uri),
		attribute.String("http.request_id", requestID),
	)

	result := c.execute(func() (Response, error) {
		return c.send(ctx, method, uri, payload, requestID)
	})
	result.URI = uri

	if result.Err != nil {
		span.RecordError(result.Err)
		span.SetStatus(codes.Error, "request failed")
		c.logger.Log(ctx, libLog.LevelDebug, "request failed",
			libLog.String("method", method), libLog.String("uri", uri),
			libLog.String("request_id", requestID), libLog.Err(result.Err))

		return result
	}

	span.SetAttributes(attribute.Int("http.response.status_code", result.Status))

	return result
}

// execute runs send through the breaker. 5xx statuses count as breaker
// failures but are still returned as HTTP responses.
func (c *Client) execute(send func() (Response, error)) Response {
	if c.breaker == nil {
		resp, err := send()
		if err != nil {
			return Response{Err: err}
		}

		return resp
	}

	out, err := c.breaker.Execute(func() (any, error) {
		resp, err := send()
		if err != nil {
			return nil, err
		}

		if resp.ServerError() {
			return resp, errServerStatus
		}

		return resp, nil
	})

	switch {
	case errors.Is(err, errServerStatus):
		return out.(Response)
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return Response{Err: fmt.Errorf("%w: %w", ErrUnavailable, err)}
	case err != nil:
		return Response{Err: err}
	default:
		return out.(Response)
	}
}

func (c *Client) send(ctx context.Context, method, uri string, payload []byte, requestID string) (Response, error) {
	req := c.rest.R().
		SetContext(ctx).
		SetHeader(RequestIDHeader, requestID)

	if payload != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(payload)
	}

	resp, err := req.Execute(method, uri)
	if err != nil {
		return Response{}, fmt.Errorf("%s %s: %w", method, uri, err)
	}

	return Response{
		Status:  resp.StatusCode(),
		Headers: resp.Header(),
		Body:    resp.Body(),
	}, nil
}
