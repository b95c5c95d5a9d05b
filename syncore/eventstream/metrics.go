package eventstream

import (
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

type pollerMetrics struct {
	eventsDelivered metric.Int64Counter
	pollsRetried    metric.Int64Counter
}

func newPollerMetrics(provider metric.MeterProvider) (pollerMetrics, error) {
	if provider == nil {
		provider = otel.GetMeterProvider()
	}

	meter := provider.Meter("syncore.eventstream.poller")

	var (
		metrics pollerMetrics
		err     error
	)

	metrics.eventsDelivered, err = meter.Int64Counter(
		"eventstream.events.delivered",
		metric.WithDescription("Number of events handed to the consumer"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return pollerMetrics{}, fmt.Errorf("create eventstream.events.delivered counter: %w", err)
	}

	metrics.pollsRetried, err = meter.Int64Counter(
		"eventstream.polls.retried",
		metric.WithDescription("Number of polls rescheduled after an error or an empty stream"),
		metric.WithUnit("{poll}"),
	)
	if err != nil {
		return pollerMetrics{}, fmt.Errorf("create eventstream.polls.retried counter: %w", err)
	}

	return metrics, nil
}
