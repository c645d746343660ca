package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// OTEL implements Recorder with OpenTelemetry instruments.
type OTEL struct {
	tasksStarted   metric.Int64Counter
	tasksCompleted metric.Int64Counter
	taskDuration   metric.Float64Histogram
	taskErrors     metric.Int64Counter

	nodeRequests    metric.Int64Counter
	nodeDuration    metric.Float64Histogram
	sessionAuthRuns metric.Int64Counter

	logger *zap.Logger
}

func NewOTEL(meter metric.Meter, logger *zap.Logger) (*OTEL, error) {
	m := &OTEL{logger: logger}
	var err error

	if m.tasksStarted, err = meter.Int64Counter("token_attester.tasks.started",
		metric.WithDescription("Number of attestation tasks started"),
		metric.WithUnit("1")); err != nil {
		return nil, err
	}
	if m.tasksCompleted, err = meter.Int64Counter("token_attester.tasks.completed",
		metric.WithDescription("Number of attestation tasks completed, by outcome"),
		metric.WithUnit("1")); err != nil {
		return nil, err
	}
	if m.taskDuration, err = meter.Float64Histogram("token_attester.tasks.duration",
		metric.WithDescription("Duration of attestation tasks"),
		metric.WithUnit("s")); err != nil {
		return nil, err
	}
	if m.taskErrors, err = meter.Int64Counter("token_attester.tasks.errors",
		metric.WithDescription("Number of attestation tasks that failed before producing a result"),
		metric.WithUnit("1")); err != nil {
		return nil, err
	}
	if m.nodeRequests, err = meter.Int64Counter("token_attester.network.requests",
		metric.WithDescription("Requests sent to key-management nodes"),
		metric.WithUnit("1")); err != nil {
		return nil, err
	}
	if m.nodeDuration, err = meter.Float64Histogram("token_attester.network.request_duration",
		metric.WithDescription("Latency of key-management node requests"),
		metric.WithUnit("s")); err != nil {
		return nil, err
	}
	if m.sessionAuthRuns, err = meter.Int64Counter("token_attester.session.auth",
		metric.WithDescription("Session credential acquisitions, by whether the wallet signature was cached"),
		metric.WithUnit("1")); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *OTEL) RecordTaskStart(ctx context.Context) {
	m.tasksStarted.Add(ctx, 1)
}

func (m *OTEL) RecordTaskComplete(ctx context.Context, outcome string, duration time.Duration) {
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	m.tasksCompleted.Add(ctx, 1, attrs)
	m.taskDuration.Record(ctx, duration.Seconds(), attrs)
}

func (m *OTEL) RecordTaskError(ctx context.Context, errType string) {
	m.taskErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("error_type", errType)))
}

func (m *OTEL) RecordNodeRequest(ctx context.Context, op string, duration time.Duration, err error) {
	attrs := metric.WithAttributes(
		attribute.String("op", op),
		attribute.String("error_type", ClassifyError(err)),
	)
	m.nodeRequests.Add(ctx, 1, attrs)
	m.nodeDuration.Record(ctx, duration.Seconds(), attrs)
}

func (m *OTEL) RecordSessionAuth(ctx context.Context, cached bool) {
	m.sessionAuthRuns.Add(ctx, 1, metric.WithAttributes(attribute.Bool("cached", cached)))
}
