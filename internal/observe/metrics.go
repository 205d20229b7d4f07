// Package observe provides application-wide observability primitives for
// syncd: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still
// be scraped via the standard /metrics endpoint. A package-level default
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

// meterName is the instrumentation scope name used for all syncd metrics.
const meterName = "github.com/asynclabs/syncd"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// TurnDuration tracks the wall time of a voice turn, from the first
	// transcript delta to the turn boundary.
	TurnDuration metric.Float64Histogram

	// ConnectDuration tracks live-session connect latency.
	ConnectDuration metric.Float64Histogram

	// ChatDuration tracks text-chat completion latency.
	ChatDuration metric.Float64Histogram

	// --- Counters ---

	// CommandDispatches counts dispatched action commands. Use with attributes:
	//   attribute.String("action", ...), attribute.String("outcome", ...)
	CommandDispatches metric.Int64Counter

	// Turns counts completed and interrupted turns. Use with attribute:
	//   attribute.String("result", "complete"|"interrupted")
	Turns metric.Int64Counter

	// DroppedFrames counts capture frames discarded because the transport
	// was not ready.
	DroppedFrames metric.Int64Counter

	// TelephonyDials counts telephony dispatch attempts. Use with attribute:
	//   attribute.String("mode", ...)
	TelephonyDials metric.Int64Counter

	// --- Error counters ---

	// SessionErrors counts live-session errors by stage:
	//   attribute.String("stage", "connect"|"receive"|"send")
	SessionErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of live voice sessions (0 or 1 by
	// the single-session invariant, but tracked as a gauge regardless).
	ActiveSessions metric.Int64UpDownCounter

	// ActivePlaybackSources tracks the number of scheduled audio sources.
	ActivePlaybackSources metric.Int64UpDownCounter

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
	if met.TurnDuration, err = m.Float64Histogram("syncd.turn.duration",
		metric.WithDescription("Wall time of a voice turn."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ConnectDuration, err = m.Float64Histogram("syncd.session.connect.duration",
		metric.WithDescription("Latency of live-session connects."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ChatDuration, err = m.Float64Histogram("syncd.chat.duration",
		metric.WithDescription("Latency of text-chat completions."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.CommandDispatches, err = m.Int64Counter("syncd.command.dispatches",
		metric.WithDescription("Total dispatched action commands by action and outcome."),
	); err != nil {
		return nil, err
	}
	if met.Turns, err = m.Int64Counter("syncd.turns",
		metric.WithDescription("Total turns by result."),
	); err != nil {
		return nil, err
	}
	if met.DroppedFrames, err = m.Int64Counter("syncd.capture.dropped_frames",
		metric.WithDescription("Capture frames dropped while the transport was not ready."),
	); err != nil {
		return nil, err
	}
	if met.TelephonyDials, err = m.Int64Counter("syncd.telephony.dials",
		metric.WithDescription("Telephony dispatch attempts by mode."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.SessionErrors, err = m.Int64Counter("syncd.session.errors",
		metric.WithDescription("Live-session errors by stage."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("syncd.active_sessions",
		metric.WithDescription("Number of live voice sessions."),
	); err != nil {
		return nil, err
	}
	if met.ActivePlaybackSources, err = m.Int64UpDownCounter("syncd.active_playback_sources",
		metric.WithDescription("Number of scheduled playback sources."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("syncd.http.request.duration",
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

// RecordCommandDispatch records one command dispatch with the standard
// attribute set.
func (m *Metrics) RecordCommandDispatch(ctx context.Context, action, outcome string) {
	m.CommandDispatches.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("action", action),
			attribute.String("outcome", outcome),
		),
	)
}

// RecordTurn records one flushed turn.
func (m *Metrics) RecordTurn(ctx context.Context, interrupted bool) {
	result := "complete"
	if interrupted {
		result = "interrupted"
	}
	m.Turns.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

// RecordSessionError records a live-session error for the given stage.
func (m *Metrics) RecordSessionError(ctx context.Context, stage string) {
	m.SessionErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("stage", stage)))
}

// RecordTelephonyDial records one telephony dispatch attempt.
func (m *Metrics) RecordTelephonyDial(ctx context.Context, mode string) {
	m.TelephonyDials.Add(ctx, 1, metric.WithAttributes(attribute.String("mode", mode)))
}
