package outbox

import (
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

type clientMetrics struct {
	commandsSubmitted metric.Int64Counter
	commandsDelivered metric.Int64Counter
	commandsRetried   metric.Int64Counter
	flushLatency      metric.Float64Histogram
}

func newClientMetrics(provider metric.MeterProvider) (clientMetrics, error) {
	if provider == nil {
		provider = otel.GetMeterProvider()
	}

	meter := provider.Meter("syncore.outbox.client")

	var (
		metrics clientMetrics
		err     error
	)

	metrics.commandsSubmitted, err = meter.Int64Counter(
		"outbox.commands.submitted",
		metric.WithDescription("Number of commands accepted into the outbox"),
		metric.WithUnit("{command}"),
	)
	if err != nil {
		return clientMetrics{}, fmt.Errorf("create outbox.commands.submitted counter: %w", err)
	}

	metrics.commandsDelivered, err = meter.Int64Counter(
		"outbox.commands.delivered",
		metric.WithDescription("Number of commands acknowledged by the remote endpoint"),
		metric.WithUnit("{command}"),
	)
	if err != nil {
		return clientMetrics{}, fmt.Errorf("create outbox.commands.delivered counter: %w", err)
	}

	metrics.commandsRetried, err = meter.Int64Counter(
		"outbox.commands.retried",
		metric.WithDescription("Number of flush attempts rescheduled after a failure"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return clientMetrics{}, fmt.Errorf("create outbox.commands.retried counter: %w", err)
	}

	metrics.flushLatency, err = meter.Float64Histogram(
		"outbox.flush.latency",
		metric.WithDescription("Time from POST to classified response"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return clientMetrics{}, fmt.Errorf("create outbox.flush.latency histogram: %w", err)
	}

	return metrics, nil
}
