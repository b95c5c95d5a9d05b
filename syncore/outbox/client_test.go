//go:build unit

package outbox

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/LerianStudio/lib-syncore/syncore/backoff"
	"github.com/LerianStudio/lib-syncore/syncore/platform"
	"github.com/LerianStudio/lib-syncore/syncore/transport"
)

type harness struct {
	client    *Client
	repo      *recordingRepo
	http      *fakeHTTP
	scheduler *platform.ManualScheduler
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()

	h := &harness{
		repo:      newRecordingRepo(),
		http:      &fakeHTTP{},
		scheduler: platform.NewManualScheduler(),
	}

	opts = append([]Option{WithScheduler(h.scheduler), WithPrefix("/commands")}, opts...)

	client, err := NewClient(h.repo, h.http, opts...)
	require.NoError(t, err)

	h.client = client

	return h
}

func (h *harness) submit(t *testing.T, names ...string) {
	t.Helper()

	for _, name := range names {
		require.NoError(t, h.client.Submit(context.Background(), Command{Name: name}))
	}
}

func TestNewClientValidatesDependencies(t *testing.T) {
	t.Parallel()

	_, err := NewClient(nil, &fakeHTTP{})
	assert.ErrorIs(t, err, ErrRepositoryRequired)

	var typedNil *fakeHTTP
	_, err = NewClient(NewMemoryRepository(), typedNil)
	assert.ErrorIs(t, err, ErrHTTPClientRequired)
}

func TestSubmitDeliversInFIFOOrderUnderServerErrors(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.submit(t, "c1", "c2", "c3")

	assert.Equal(t, 1, h.scheduler.Pending(), "only one flush scheduled for three submits")

	h.scheduler.RunDue()
	h.http.status(http.StatusServiceUnavailable)
	h.scheduler.RunDue()
	assert.Equal(t, StateBackoff, h.client.State())

	h.scheduler.Advance(backoff.DefaultServerErrorStep)
	h.http.status(http.StatusOK)
	h.scheduler.RunDue()

	h.http.status(http.StatusInternalServerError)
	h.scheduler.RunDue()
	h.scheduler.RunUntilIdle(1)
	h.http.status(http.StatusCreated)
	h.scheduler.RunDue()

	h.http.status(http.StatusNoContent)
	h.scheduler.RunDue()

	assert.Equal(t, []string{
		"/commands/c1", "/commands/c1",
		"/commands/c2", "/commands/c2",
		"/commands/c3",
	}, h.http.endpoints())
	assert.Equal(t, []string{"c1", "c2", "c3"}, h.repo.removed)
	assert.Equal(t, 1, h.http.maxInFlight)
	assert.Zero(t, h.repo.Len())
	assert.False(t, h.client.Busy())
	assert.Equal(t, StateIdle, h.client.State())
	assert.Zero(t, h.scheduler.Pending())
}

func TestServerErrorBackoffGrowth(t *testing.T) {
	t.Parallel()

	var (
		mu     sync.Mutex
		delays []time.Duration
	)

	policy := backoff.Policy{
		ServerErrorIncrease: backoff.Doubling(time.Millisecond, 0),
		Hooks: backoff.Hooks{OnServerError: func(r backoff.Retry) {
			mu.Lock()
			defer mu.Unlock()

			delays = append(delays, r.Delay)
		}},
	}

	h := newHarness(t, WithPolicy(policy))
	h.submit(t, "c1")
	h.scheduler.RunDue()

	for _, wait := range []time.Duration{2 * time.Millisecond, 6 * time.Millisecond, 14 * time.Millisecond} {
		h.http.status(http.StatusBadGateway)
		h.scheduler.RunDue()

		next, ok := h.scheduler.NextDelay()
		require.True(t, ok)
		assert.Equal(t, wait, next)

		h.scheduler.Advance(wait)
	}

	assert.Equal(t, []time.Duration{2 * time.Millisecond, 6 * time.Millisecond, 14 * time.Millisecond}, delays)
	assert.Len(t, h.http.endpoints(), 4)
}

func TestNetworkErrorUsesClientBackoff(t *testing.T) {
	t.Parallel()

	var got []backoff.Retry

	netErr := errors.New("connection refused")
	policy := backoff.Policy{
		ClientErrorIncrease: backoff.Additive(time.Second),
		Hooks:               backoff.Hooks{OnClientError: func(r backoff.Retry) { got = append(got, r) }},
	}

	h := newHarness(t, WithPolicy(policy))
	h.submit(t, "c1")
	h.scheduler.RunDue()

	h.http.respond(transport.Response{Err: netErr})
	h.scheduler.RunDue()

	require.Len(t, got, 1)
	assert.Equal(t, time.Second, got[0].Delay)
	assert.ErrorIs(t, got[0].Err, netErr)
	assert.Equal(t, "/commands/c1", got[0].URI)
	assert.True(t, h.client.Busy())

	h.scheduler.Advance(time.Second)
	assert.Equal(t, 1, h.http.inFlight())
}

func TestUnexpectedResponseHalts(t *testing.T) {
	t.Parallel()

	var fatal error

	h := newHarness(t, WithFatalHandler(func(_ context.Context, err error) { fatal = err }))
	h.submit(t, "c1", "c2")
	h.scheduler.RunDue()

	h.http.respond(transport.Response{URI: "/commands/c1", Status: http.StatusConflict, Body: []byte(`nope`)})
	h.scheduler.RunDue()

	var unexpected *transport.UnexpectedResponseError
	require.ErrorAs(t, fatal, &unexpected)
	assert.Equal(t, http.StatusConflict, unexpected.Status)
	assert.Equal(t, "/commands/c1", unexpected.URI)

	assert.Equal(t, StateHalted, h.client.State())
	assert.False(t, h.client.Busy())
	assert.ErrorIs(t, h.client.Err(), ErrHalted)
	assert.Equal(t, 2, h.repo.Len(), "head is kept after a fatal response")

	h.submit(t, "c3")
	h.scheduler.RunUntilIdle(10)
	assert.Len(t, h.http.endpoints(), 1)
}

func TestDisableLetsInFlightFinish(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.submit(t, "c1", "c2")
	h.scheduler.RunDue()

	h.client.Disable()
	h.http.status(http.StatusOK)
	h.scheduler.RunUntilIdle(10)

	assert.Equal(t, []string{"c1"}, h.repo.removed)
	assert.Equal(t, 1, h.repo.Len())
	assert.Len(t, h.http.endpoints(), 1)
	assert.False(t, h.client.Busy())
	assert.True(t, h.client.Disabled())
}

func TestDisableStopsPendingRetry(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.submit(t, "c1")
	h.scheduler.RunDue()
	h.http.status(http.StatusServiceUnavailable)
	h.scheduler.RunDue()

	h.client.Disable()
	h.scheduler.RunUntilIdle(10)

	assert.Len(t, h.http.endpoints(), 1)
	assert.False(t, h.client.Busy())
	assert.Equal(t, StateIdle, h.client.State())
}

func TestSubmitAfterDisableQueuesWithoutFlushing(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.client.Disable()
	h.submit(t, "c1")

	assert.Zero(t, h.scheduler.Pending())
	assert.Equal(t, 1, h.repo.Len())
}

func TestSubmitPersistenceFailure(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.repo.addErr = errors.New("disk full")

	err := h.client.Submit(context.Background(), Command{Name: "c1"})
	require.ErrorIs(t, err, ErrPersistence)
	assert.Zero(t, h.scheduler.Pending())
}

func TestSubmitRejectsInvalidCommand(t *testing.T) {
	t.Parallel()

	h := newHarness(t)

	assert.ErrorIs(t, h.client.Submit(context.Background(), Command{}), ErrInvalidCommand)
	assert.Zero(t, h.repo.Len())
}

func TestRepositoryReadFailureIsRetried(t *testing.T) {
	t.Parallel()

	var got []backoff.Retry

	h := newHarness(t, WithPolicy(backoff.Policy{
		Hooks: backoff.Hooks{OnClientError: func(r backoff.Retry) { got = append(got, r) }},
	}))

	h.repo.firstErr = errors.New("connection reset")
	h.submit(t, "c1")
	h.scheduler.RunDue()

	require.Len(t, got, 1)
	assert.ErrorIs(t, got[0].Err, ErrPersistence)
	assert.Equal(t, backoff.DefaultClientErrorStep, got[0].Delay)
	assert.Empty(t, h.http.endpoints())

	h.scheduler.Advance(backoff.DefaultClientErrorStep)
	assert.Equal(t, []string{"/commands/c1"}, h.http.endpoints())
}

func TestLocalHandlerRunsBeforeQueueing(t *testing.T) {
	t.Parallel()

	var applied []string

	h := newHarness(t, WithLocalHandler(func(_ context.Context, cmd Command) error {
		if cmd.Name == "reject" {
			return errors.New("rejected")
		}

		applied = append(applied, cmd.Name)

		return nil
	}))

	h.submit(t, "ok")
	err := h.client.Submit(context.Background(), Command{Name: "reject"})

	assert.ErrorIs(t, err, ErrLocalHandler)
	assert.Equal(t, []string{"ok"}, applied)
	assert.Equal(t, 1, h.repo.Len())
}

func TestEndpoint(t *testing.T) {
	t.Parallel()

	client, err := NewClient(NewMemoryRepository(), &fakeHTTP{}, WithScheduler(platform.NewManualScheduler()))
	require.NoError(t, err)
	assert.Equal(t, "/create", client.Endpoint("create"))

	client, err = NewClient(NewMemoryRepository(), &fakeHTTP{},
		WithScheduler(platform.NewManualScheduler()), WithPrefix("https://api.example.com/commands/"))
	require.NoError(t, err)
	assert.Equal(t, "https://api.example.com/commands/create", client.Endpoint("create"))
	assert.Equal(t, "https://api.example.com/commands/..", client.Endpoint(".."))
	assert.Equal(t, "https://api.example.com/commands/a%3Fb", client.Endpoint("a?b"))
}

func TestSubmitDuringEmptyReadSurvivesRecheckFailure(t *testing.T) {
	t.Parallel()

	var retries []backoff.Retry

	h := newHarness(t, WithPolicy(backoff.Policy{
		Hooks: backoff.Hooks{OnClientError: func(r backoff.Retry) { retries = append(retries, r) }},
	}))

	h.submit(t, "c1")
	h.scheduler.RunDue()
	require.Equal(t, []string{"/commands/c1"}, h.http.endpoints())

	// The loop reads an empty queue, then "late" is submitted while it is
	// still busy and the recheck read fails.
	h.repo.afterFirst = func() {
		h.submit(t, "late")

		h.repo.mu.Lock()
		h.repo.firstErr = errors.New("connection reset")
		h.repo.mu.Unlock()
	}

	h.http.status(http.StatusOK)
	h.scheduler.RunDue()

	require.Len(t, retries, 1)
	assert.ErrorIs(t, retries[0].Err, ErrPersistence)
	assert.True(t, h.client.Busy())
	assert.Equal(t, StateBackoff, h.client.State())
	assert.Equal(t, 1, h.scheduler.Pending())
	assert.Equal(t, []string{"/commands/c1"}, h.http.endpoints())

	h.scheduler.Advance(backoff.DefaultClientErrorStep)
	assert.Equal(t, []string{"/commands/c1", "/commands/late"}, h.http.endpoints())
}

func TestCorruptHeadHalts(t *testing.T) {
	t.Parallel()

	var fatal []error

	h := newHarness(t, WithFatalHandler(func(_ context.Context, err error) { fatal = append(fatal, err) }))

	h.repo.firstErr = fmt.Errorf("%w: decode command: unexpected end of JSON input", ErrCorruptCommand)
	h.submit(t, "c1")
	h.scheduler.RunUntilIdle(100)

	require.Len(t, fatal, 1)
	assert.ErrorIs(t, fatal[0], ErrCorruptCommand)
	assert.ErrorIs(t, h.client.Err(), ErrHalted)
	assert.ErrorIs(t, h.client.Err(), ErrCorruptCommand)
	assert.Equal(t, StateHalted, h.client.State())
	assert.False(t, h.client.Busy())
	assert.Empty(t, h.http.endpoints())
	assert.Equal(t, 1, h.repo.Len())
}

func TestDeliveryMetrics(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	h := newHarness(t, WithMeterProvider(provider))
	h.submit(t, "c1")
	h.scheduler.RunDue()
	h.http.status(http.StatusOK)
	h.scheduler.RunDue()

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	sums := map[string]int64{}

	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			if sum, ok := m.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range sum.DataPoints {
					sums[m.Name] += dp.Value
				}
			}
		}
	}

	assert.Equal(t, int64(1), sums["outbox.commands.submitted"])
	assert.Equal(t, int64(1), sums["outbox.commands.delivered"])
	assert.Zero(t, sums["outbox.commands.retried"])
}
