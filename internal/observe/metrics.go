// Package observe provides the OpenTelemetry metric instruments recorded
// across an utterance: recording length, remote call latency, retries and
// outcomes. A Prometheus exporter bridge is available via InitProvider so the
// web API can serve /metrics. A nil *Metrics is valid and records nothing.
package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "dictate"

// Utterance outcomes.
const (
	OutcomeDelivered = "delivered"
	OutcomeNoAudio   = "no_audio"
	OutcomeEmpty     = "empty"
	OutcomeFailed    = "failed"
	OutcomeDevice    = "device_error"
)

// Metrics holds all OpenTelemetry metric instruments for the application.
type Metrics struct {
	// Utterances counts finished utterances. Attribute: outcome.
	Utterances metric.Int64Counter

	// RemoteDuration tracks transcribe and refine latency in seconds.
	// Attributes: op, status.
	RemoteDuration metric.Float64Histogram

	// RemoteRetries counts rate-limited retries. Attribute: op.
	RemoteRetries metric.Int64Counter

	// RecordingDuration tracks captured audio length in seconds.
	RecordingDuration metric.Float64Histogram

	// HistoryWriteErrors counts failed history appends.
	HistoryWriteErrors metric.Int64Counter
}

// NewMetrics creates all instruments from mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var (
		out Metrics
		err error
	)
	if out.Utterances, err = m.Int64Counter("dictate.utterances",
		metric.WithDescription("Finished utterances by outcome")); err != nil {
		return nil, err
	}
	if out.RemoteDuration, err = m.Float64Histogram("dictate.remote.duration",
		metric.WithDescription("Remote call latency"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.25, 0.5, 1, 2, 4, 8, 16, 32)); err != nil {
		return nil, err
	}
	if out.RemoteRetries, err = m.Int64Counter("dictate.remote.retries",
		metric.WithDescription("Rate-limited retries")); err != nil {
		return nil, err
	}
	if out.RecordingDuration, err = m.Float64Histogram("dictate.recording.duration",
		metric.WithDescription("Captured audio length"),
		metric.WithUnit("s")); err != nil {
		return nil, err
	}
	if out.HistoryWriteErrors, err = m.Int64Counter("dictate.history.write_errors",
		metric.WithDescription("Failed history appends")); err != nil {
		return nil, err
	}
	return &out, nil
}

// RecordUtterance counts one finished utterance.
func (m *Metrics) RecordUtterance(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.Utterances.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordRemote observes one remote call.
func (m *Metrics) RecordRemote(ctx context.Context, op string, d time.Duration, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.RemoteDuration.Record(ctx, d.Seconds(), metric.WithAttributes(
		attribute.String("op", op),
		attribute.String("status", status),
	))
}

// RecordRetry counts one rate-limited retry.
func (m *Metrics) RecordRetry(ctx context.Context, op string) {
	if m == nil {
		return
	}
	m.RemoteRetries.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
}

// RecordRecording observes captured audio length.
func (m *Metrics) RecordRecording(ctx context.Context, d time.Duration) {
	if m == nil {
		return
	}
	m.RecordingDuration.Record(ctx, d.Seconds())
}

// RecordHistoryError counts one failed history append.
func (m *Metrics) RecordHistoryError(ctx context.Context) {
	if m == nil {
		return
	}
	m.HistoryWriteErrors.Add(ctx, 1)
}
