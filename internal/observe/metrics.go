// Package observe provides application-wide observability primitives for
// wavescope: OpenTelemetry metrics, tracing, structured logging, and HTTP
// middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all wavescope metrics.
const meterName = "github.com/MrWong99/wavescope"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// BatchGap tracks the wall-clock gap between successive capture batches.
	BatchGap metric.Float64Histogram

	// AppendDuration tracks envelope decimation latency per batch.
	AppendDuration metric.Float64Histogram

	// EncodeDuration tracks WAV container encode latency per batch.
	EncodeDuration metric.Float64Histogram

	// PaintDuration tracks mirror paint latency per frame.
	PaintDuration metric.Float64Histogram

	// --- Counters ---

	// CaptureBatches counts delivered capture batches. Use with attribute:
	//   attribute.String("mode", ...)
	CaptureBatches metric.Int64Counter

	// CaptureSamples counts delivered mono samples. Use with attribute:
	//   attribute.String("mode", ...)
	CaptureSamples metric.Int64Counter

	// DroppedSamples counts samples lost to ring overruns.
	DroppedSamples metric.Int64Counter

	// RecordingSaves counts finished takes handed to a sink. Use with attributes:
	//   attribute.String("sink", ...), attribute.String("status", ...)
	RecordingSaves metric.Int64Counter

	// --- Error counters ---

	// CaptureErrors counts capture pipeline errors. Use with attribute:
	//   attribute.String("stage", ...)
	CaptureErrors metric.Int64Counter

	// --- Gauges ---

	// MonitorClients tracks the number of connected monitor WebSocket clients.
	MonitorClients metric.Int64UpDownCounter

	// ActiveTakes tracks the number of takes currently recording (0 or 1).
	ActiveTakes metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for audio-pipeline latencies: appends complete in microseconds while batch
// gaps sit around the polling interval.
var latencyBuckets = []float64{
	0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.BatchGap, err = m.Float64Histogram("wavescope.capture.batch_gap",
		metric.WithDescription("Gap between successive capture batches."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.AppendDuration, err = m.Float64Histogram("wavescope.envelope.append.duration",
		metric.WithDescription("Latency of envelope decimation per batch."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.EncodeDuration, err = m.Float64Histogram("wavescope.encode.duration",
		metric.WithDescription("Latency of WAV container encoding per batch."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.PaintDuration, err = m.Float64Histogram("wavescope.mirror.paint.duration",
		metric.WithDescription("Latency of mirror frame painting."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.CaptureBatches, err = m.Int64Counter("wavescope.capture.batches",
		metric.WithDescription("Total capture batches delivered by mode."),
	); err != nil {
		return nil, err
	}
	if met.CaptureSamples, err = m.Int64Counter("wavescope.capture.samples",
		metric.WithDescription("Total mono samples delivered by mode."),
	); err != nil {
		return nil, err
	}
	if met.DroppedSamples, err = m.Int64Counter("wavescope.capture.dropped_samples",
		metric.WithDescription("Total samples lost to ring overruns."),
	); err != nil {
		return nil, err
	}
	if met.RecordingSaves, err = m.Int64Counter("wavescope.recording.saves",
		metric.WithDescription("Total finished takes handed to a sink by sink name and status."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.CaptureErrors, err = m.Int64Counter("wavescope.capture.errors",
		metric.WithDescription("Total capture pipeline errors by stage."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.MonitorClients, err = m.Int64UpDownCounter("wavescope.monitor.clients",
		metric.WithDescription("Number of connected monitor WebSocket clients."),
	); err != nil {
		return nil, err
	}
	if met.ActiveTakes, err = m.Int64UpDownCounter("wavescope.capture.active_takes",
		metric.WithDescription("Number of takes currently recording."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("wavescope.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
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

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordBatch records one delivered capture batch and its sample count with
// the capture mode attribute.
func (m *Metrics) RecordBatch(ctx context.Context, mode string, samples int64) {
	attrs := metric.WithAttributes(attribute.String("mode", mode))
	m.CaptureBatches.Add(ctx, 1, attrs)
	m.CaptureSamples.Add(ctx, samples, attrs)
}

// RecordRecordingSave records a finished take handed to a sink with the
// standard attribute set.
func (m *Metrics) RecordRecordingSave(ctx context.Context, sink, status string) {
	m.RecordingSaves.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("sink", sink),
			attribute.String("status", status),
		),
	)
}

// RecordCaptureError records a capture pipeline error counter increment.
func (m *Metrics) RecordCaptureError(ctx context.Context, stage string) {
	m.CaptureErrors.Add(ctx, 1,
		metric.WithAttributes(attribute.String("stage", stage)),
	)
}
