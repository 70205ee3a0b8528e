// Package observe provides observability primitives for the voice
// ordering server: OpenTelemetry metrics, tracing helpers, structured
// logging, and HTTP middleware tying them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API and
// exported via a Prometheus bridge set up by [InitProvider], so the
// standard /metrics endpoint keeps working. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience;
// tests should use [NewMetrics] with their own [metric.MeterProvider]
// to avoid cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all metrics.
const meterName = "github.com/xxgiasonxx/voice-ordering-system"

// Metrics holds all OpenTelemetry metric instruments for the
// application. The underlying OTel types handle their own
// synchronisation.
type Metrics struct {
	// ASRDuration tracks time from a committed transcript's first audio
	// frame to the transcript itself, as far as the provider exposes it.
	ASRDuration metric.Float64Histogram

	// GenerateDuration tracks response-generation latency per turn.
	GenerateDuration metric.Float64Histogram

	// TurnDuration tracks a full turn: final transcript in, client
	// events out.
	TurnDuration metric.Float64Histogram

	// HTTPRequestDuration tracks HTTP request processing time. Use with
	// attributes: attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram

	// Turns counts completed ordering turns. Use with attribute:
	//   attribute.String("status", "ok"|"error")
	Turns metric.Int64Counter

	// Directives counts applied order directives. Use with attribute:
	//   attribute.String("kind", "intent"|"add"|"remove")
	Directives metric.Int64Counter

	// SessionsCreated counts newly issued ordering sessions.
	SessionsCreated metric.Int64Counter

	// PaymentsSubmitted counts submitted payments.
	PaymentsSubmitted metric.Int64Counter

	// ProviderErrors counts provider failures. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// ActiveStreams tracks the number of live voice streams.
	ActiveStreams metric.Int64UpDownCounter
}

// latencyBuckets defines histogram bucket boundaries (in seconds)
// sized for the voice pipeline.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the
// given [metric.MeterProvider].
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.ASRDuration, err = m.Float64Histogram("ordering.asr.duration",
		metric.WithDescription("Latency of speech transcription."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.GenerateDuration, err = m.Float64Histogram("ordering.generate.duration",
		metric.WithDescription("Latency of response generation."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TurnDuration, err = m.Float64Histogram("ordering.turn.duration",
		metric.WithDescription("End-to-end latency of a full ordering turn."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("ordering.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	if met.Turns, err = m.Int64Counter("ordering.turns",
		metric.WithDescription("Total completed ordering turns by status."),
	); err != nil {
		return nil, err
	}
	if met.Directives, err = m.Int64Counter("ordering.directives",
		metric.WithDescription("Total applied order directives by kind."),
	); err != nil {
		return nil, err
	}
	if met.SessionsCreated, err = m.Int64Counter("ordering.sessions.created",
		metric.WithDescription("Total ordering sessions issued."),
	); err != nil {
		return nil, err
	}
	if met.PaymentsSubmitted, err = m.Int64Counter("ordering.payments.submitted",
		metric.WithDescription("Total payments submitted."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("ordering.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}

	if met.ActiveStreams, err = m.Int64UpDownCounter("ordering.active_streams",
		metric.WithDescription("Number of live voice streams."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating
// it on first call using [otel.GetMeterProvider]. Panics if instrument
// creation fails, which should not happen with the global provider.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// RecordTurn records one completed ordering turn.
func (m *Metrics) RecordTurn(ctx context.Context, status string) {
	m.Turns.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

// RecordDirective records one applied directive.
func (m *Metrics) RecordDirective(ctx context.Context, kind string) {
	m.Directives.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// RecordProviderError records a provider failure.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}
