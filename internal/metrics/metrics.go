// Package metrics provides observability for attestation runs.
// It uses a plugin pattern so callers pay nothing when OpenTelemetry is not
// configured.
package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

const meterName = "github.com/trufnetwork/token-attester"

// Recorder records task and network metrics.
type Recorder interface {
	// Task lifecycle
	RecordTaskStart(ctx context.Context)
	RecordTaskComplete(ctx context.Context, outcome string, duration time.Duration)
	RecordTaskError(ctx context.Context, errType string)

	// Key-management network
	RecordNodeRequest(ctx context.Context, op string, duration time.Duration, err error)
	RecordSessionAuth(ctx context.Context, cached bool)
}

// NewRecorder returns an OpenTelemetry recorder when enabled and the global
// meter provider is functional, and a no-op recorder otherwise.
func NewRecorder(enabled bool, logger *zap.Logger) Recorder {
	if !enabled {
		return NewNoOp()
	}

	meter := otel.GetMeterProvider().Meter(meterName)
	if _, err := meter.Int64Counter("token_attester.availability"); err != nil {
		logger.Debug("OpenTelemetry not available, metrics disabled")
		return NewNoOp()
	}

	m, err := NewOTEL(meter, logger)
	if err != nil {
		logger.Warn("failed to initialize OTEL metrics, falling back to no-op", zap.Error(err))
		return NewNoOp()
	}

	logger.Info("OpenTelemetry metrics initialized")
	return m
}
