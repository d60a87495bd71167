package reconciler

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds reconciliation instruments. A nil *Metrics records nothing.
type Metrics struct {
	reconciliations        metric.Int64Counter
	reconciliationDuration metric.Float64Histogram
	drainPolls             metric.Int64Counter
}

// NewMetrics creates reconciler metrics on the global meter provider.
func NewMetrics() (*Metrics, error) {
	return NewMetricsFromMeter(otel.Meter("converge.reconciler"))
}

// NewMetricsFromMeter creates reconciler metrics on meter.
func NewMetricsFromMeter(meter metric.Meter) (*Metrics, error) {
	reconciliations, err := meter.Int64Counter(
		"converge.reconciliations",
		metric.WithDescription("Number of reconcile runs"),
		metric.WithUnit("{reconciliation}"),
	)
	if err != nil {
		return nil, err
	}

	reconciliationDuration, err := meter.Float64Histogram(
		"converge.reconciliation.duration",
		metric.WithDescription("Duration of reconcile runs"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	drainPolls, err := meter.Int64Counter(
		"converge.drain.polls",
		metric.WithDescription("Number of drain status polls"),
		metric.WithUnit("{poll}"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		reconciliations:        reconciliations,
		reconciliationDuration: reconciliationDuration,
		drainPolls:             drainPolls,
	}, nil
}

// RecordReconciliation records one finished run.
func (m *Metrics) RecordReconciliation(ctx context.Context, state, action, status string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.reconciliations.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("state", state),
			attribute.String("action", action),
			attribute.String("status", status),
		),
	)
	m.reconciliationDuration.Record(ctx, durationSeconds,
		metric.WithAttributes(
			attribute.String("state", state),
			attribute.String("status", status),
		),
	)
}

// RecordDrainPoll records one drain status poll.
func (m *Metrics) RecordDrainPoll(ctx context.Context) {
	if m == nil {
		return
	}
	m.drainPolls.Add(ctx, 1)
}
