// Package observe provides application-wide observability primitives for
// VoxDesk: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
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

// meterName is the instrumentation scope name used for all VoxDesk metrics.
const meterName = "github.com/MrWong99/voxdesk"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// ConnectDuration tracks how long a live session takes to open, from
	// device acquisition to the remote setup acknowledgement.
	ConnectDuration metric.Float64Histogram

	// STTDuration tracks one-shot speech-to-text latency.
	STTDuration metric.Float64Histogram

	// TTSDuration tracks one-shot text-to-speech latency.
	TTSDuration metric.Float64Histogram

	// TranslateDuration tracks one-shot translation latency.
	TranslateDuration metric.Float64Histogram

	// --- Counters ---

	// ProviderRequests counts provider API calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// SessionStarts counts live session start attempts. Use with attributes:
	//   attribute.String("dialect", ...), attribute.String("status", ...)
	SessionStarts metric.Int64Counter

	// Turns counts finalised transcript turns. Use with attribute:
	//   attribute.String("role", ...)
	Turns metric.Int64Counter

	// ChunksSent counts microphone chunks delivered to the remote session.
	ChunksSent metric.Int64Counter

	// ChunksDropped counts microphone chunks dropped because the send queue
	// was full.
	ChunksDropped metric.Int64Counter

	// PlaybackUnits counts scheduled model audio units.
	PlaybackUnits metric.Int64Counter

	// Interruptions counts barge-in events that cancelled playback.
	Interruptions metric.Int64Counter

	// --- Error counters ---

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// MalformedChunks counts inbound audio payloads that failed to decode.
	MalformedChunks metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of open live sessions.
	ActiveSessions metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for voice-pipeline latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	histograms := []struct {
		dst  *metric.Float64Histogram
		name string
		desc string
	}{
		{&met.ConnectDuration, "voxdesk.session.connect.duration", "Latency of opening a live session."},
		{&met.STTDuration, "voxdesk.stt.duration", "Latency of one-shot speech-to-text."},
		{&met.TTSDuration, "voxdesk.tts.duration", "Latency of one-shot text-to-speech."},
		{&met.TranslateDuration, "voxdesk.translate.duration", "Latency of one-shot translation."},
	}
	for _, h := range histograms {
		if *h.dst, err = m.Float64Histogram(h.name,
			metric.WithDescription(h.desc),
			metric.WithUnit("s"),
			metric.WithExplicitBucketBoundaries(latencyBuckets...),
		); err != nil {
			return nil, err
		}
	}

	// Counters.
	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&met.ProviderRequests, "voxdesk.provider.requests", "Total provider API requests by provider, kind, and status."},
		{&met.SessionStarts, "voxdesk.session.starts", "Total live session start attempts by dialect and status."},
		{&met.Turns, "voxdesk.transcript.turns", "Total finalised transcript turns by role."},
		{&met.ChunksSent, "voxdesk.capture.chunks_sent", "Microphone chunks delivered to the remote session."},
		{&met.ChunksDropped, "voxdesk.capture.chunks_dropped", "Microphone chunks dropped on a full send queue."},
		{&met.PlaybackUnits, "voxdesk.playback.units", "Model audio units scheduled for playback."},
		{&met.Interruptions, "voxdesk.playback.interruptions", "Barge-in events that cancelled playback."},
		{&met.ProviderErrors, "voxdesk.provider.errors", "Total provider errors by provider and kind."},
		{&met.MalformedChunks, "voxdesk.playback.malformed_chunks", "Inbound audio payloads that failed to decode."},
	}
	for _, c := range counters {
		if *c.dst, err = m.Int64Counter(c.name, metric.WithDescription(c.desc)); err != nil {
			return nil, err
		}
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("voxdesk.active_sessions",
		metric.WithDescription("Number of open live sessions."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("voxdesk.http.request.duration",
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

// RecordProviderRequest is a convenience method that records a provider
// request counter increment with the standard attribute set.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError is a convenience method that records a provider error
// counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

// RecordSessionStart records a start attempt for dialect with the given
// status ("ok", "permission", "connection", "cancelled").
func (m *Metrics) RecordSessionStart(ctx context.Context, dialect, status string) {
	m.SessionStarts.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("dialect", dialect),
			attribute.String("status", status),
		),
	)
}

// RecordTurn records one finalised turn for role.
func (m *Metrics) RecordTurn(ctx context.Context, role string) {
	m.Turns.Add(ctx, 1, metric.WithAttributes(attribute.String("role", role)))
}
