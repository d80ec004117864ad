package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
)

// Metrics holds the reconciler's counters.
type Metrics struct {
	issuesCreated     metric.Int64Counter
	issuesUpdated     metric.Int64Counter
	predictions       metric.Int64Counter
	writeBackFailures metric.Int64Counter
}

// NewMetrics creates the reconciler counters on meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	var m Metrics
	var err error

	if m.issuesCreated, err = meter.Int64Counter("issuetriage.sync.issues_created",
		metric.WithDescription("Issues created locally from an upstream source"),
		metric.WithUnit("{issue}"),
	); err != nil {
		return nil, err
	}
	if m.issuesUpdated, err = meter.Int64Counter("issuetriage.sync.issues_updated",
		metric.WithDescription("Existing issues overwritten from an upstream source"),
		metric.WithUnit("{issue}"),
	); err != nil {
		return nil, err
	}
	if m.predictions, err = meter.Int64Counter("issuetriage.predictions",
		metric.WithDescription("Label predictor calls by outcome"),
		metric.WithUnit("{call}"),
	); err != nil {
		return nil, err
	}
	if m.writeBackFailures, err = meter.Int64Counter("issuetriage.writeback.failures",
		metric.WithDescription("Best-effort upstream label writes that failed"),
		metric.WithUnit("{call}"),
	); err != nil {
		return nil, err
	}

	return &m, nil
}

// NopMetrics returns counters that record nothing.
func NopMetrics() *Metrics {
	m, _ := NewMetrics(metricnoop.NewMeterProvider().Meter(instrumentationScope))
	return m
}

// IssuesCreated records n issues created by source ("sync", "project", "csv", "webhook").
func (m *Metrics) IssuesCreated(ctx context.Context, source string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.issuesCreated.Add(ctx, int64(n), metric.WithAttributes(attribute.String("source", source)))
}

// IssuesUpdated records n existing issues overwritten by source.
func (m *Metrics) IssuesUpdated(ctx context.Context, source string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.issuesUpdated.Add(ctx, int64(n), metric.WithAttributes(attribute.String("source", source)))
}

// Prediction records one predictor call with outcome "ok", "empty" or "error".
func (m *Metrics) Prediction(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.predictions.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// WriteBackFailure records a failed upstream label write of the given kind.
func (m *Metrics) WriteBackFailure(ctx context.Context, kind string) {
	if m == nil {
		return
	}
	m.writeBackFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}
