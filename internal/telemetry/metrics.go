package telemetry

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const (
	meterName = "github.com/wolfeidau/leadpool"
)

// Metrics holds all the OpenTelemetry metric instruments
type Metrics struct {
	// Claim metrics
	ClaimsTotal         metric.Int64Counter
	ClaimConflictsTotal metric.Int64Counter
	UnclaimsTotal       metric.Int64Counter
	ClaimErrorsTotal    metric.Int64Counter
	ClaimDuration       metric.Float64Histogram
	RateLimitedTotal    metric.Int64Counter

	// Event bus metrics
	EventsPublishedTotal  metric.Int64Counter
	DeliveryFailuresTotal metric.Int64Counter
	ActiveSubscribers     metric.Int64UpDownCounter
	RelayErrorsTotal      metric.Int64Counter

	// Stream metrics
	ActiveStreams       metric.Int64UpDownCounter
	HeartbeatsSentTotal metric.Int64Counter
	EventsDroppedTotal  metric.Int64Counter
}

var (
	once    sync.Once
	metrics *Metrics
)

// GetMetrics returns the singleton Metrics instance, initializing it if necessary.
// Instruments come from the global meter provider, which is a no-op until
// InitTelemetry installs an exporter.
func GetMetrics() *Metrics {
	once.Do(func() {
		metrics = initMetrics()
	})
	return metrics
}

// initMetrics creates and registers all metric instruments
func initMetrics() *Metrics {
	meter := otel.GetMeterProvider().Meter(meterName)

	m := &Metrics{}

	m.ClaimsTotal, _ = meter.Int64Counter(
		"leadpool.claims.total",
		metric.WithDescription("Total number of successful company claims"),
		metric.WithUnit("{claim}"),
	)

	m.ClaimConflictsTotal, _ = meter.Int64Counter(
		"leadpool.claims.conflicts.total",
		metric.WithDescription("Total number of claims rejected because the company was already claimed"),
		metric.WithUnit("{claim}"),
	)

	m.UnclaimsTotal, _ = meter.Int64Counter(
		"leadpool.unclaims.total",
		metric.WithDescription("Total number of successful unclaims"),
		metric.WithUnit("{unclaim}"),
	)

	m.ClaimErrorsTotal, _ = meter.Int64Counter(
		"leadpool.claims.errors.total",
		metric.WithDescription("Total number of claim or unclaim transactions that failed"),
		metric.WithUnit("{error}"),
	)

	m.ClaimDuration, _ = meter.Float64Histogram(
		"leadpool.claims.duration",
		metric.WithDescription("Duration of claim and unclaim transactions"),
		metric.WithUnit("ms"),
	)

	m.RateLimitedTotal, _ = meter.Int64Counter(
		"leadpool.claims.rate_limited.total",
		metric.WithDescription("Total number of claim or unclaim requests rejected by the per-user rate limit"),
		metric.WithUnit("{request}"),
	)

	m.EventsPublishedTotal, _ = meter.Int64Counter(
		"leadpool.events.published.total",
		metric.WithDescription("Total number of events published to the bus"),
		metric.WithUnit("{event}"),
	)

	m.DeliveryFailuresTotal, _ = meter.Int64Counter(
		"leadpool.events.delivery.failures.total",
		metric.WithDescription("Total number of failed deliveries to a single subscriber"),
		metric.WithUnit("{error}"),
	)

	m.ActiveSubscribers, _ = meter.Int64UpDownCounter(
		"leadpool.events.subscribers.active",
		metric.WithDescription("Number of subscribers registered on the bus"),
		metric.WithUnit("{subscriber}"),
	)

	m.RelayErrorsTotal, _ = meter.Int64Counter(
		"leadpool.events.relay.errors.total",
		metric.WithDescription("Total number of errors publishing to or receiving from the broker"),
		metric.WithUnit("{error}"),
	)

	m.ActiveStreams, _ = meter.Int64UpDownCounter(
		"leadpool.streams.active",
		metric.WithDescription("Number of open notification streams"),
		metric.WithUnit("{stream}"),
	)

	m.HeartbeatsSentTotal, _ = meter.Int64Counter(
		"leadpool.streams.heartbeats.total",
		metric.WithDescription("Total number of heartbeat messages sent"),
		metric.WithUnit("{message}"),
	)

	m.EventsDroppedTotal, _ = meter.Int64Counter(
		"leadpool.streams.events.dropped.total",
		metric.WithDescription("Total number of events dropped because a stream buffer was full"),
		metric.WithUnit("{event}"),
	)

	return m
}
