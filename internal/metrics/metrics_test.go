package metrics

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, "none"},
		{fmt.Errorf("wrapped: %w", context.DeadlineExceeded), "timeout"},
		{context.Canceled, "canceled"},
		{fmt.Errorf("run: %w", NewKind("auth", "rejected")), "auth"},
		{NewKind("consensus", "split"), "consensus"},
		{errors.Join(errors.New("node a"), NewKind("transport", "down")), "transport"},
		{fmt.Errorf("authentication failed"), "unknown"},
		{fmt.Errorf("invalid address"), "unknown"},
		{fmt.Errorf("boom"), "unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ClassifyError(tt.err))
	}
}

func TestNewKindIsComparable(t *testing.T) {
	sentinel := NewKind("auth", "authentication failure")
	wrapped := fmt.Errorf("sign: %w", sentinel)
	assert.ErrorIs(t, wrapped, sentinel)
	assert.NotErrorIs(t, wrapped, NewKind("auth", "authentication failure"))
	assert.EqualError(t, sentinel, "authentication failure")
}

func TestNewRecorderDisabled(t *testing.T) {
	r := NewRecorder(false, zap.NewNop())
	assert.IsType(t, &NoOp{}, r)
}

func TestOTELRecorder(t *testing.T) {
	m, err := NewOTEL(noop.NewMeterProvider().Meter("test"), zap.NewNop())
	assert.NoError(t, err)

	ctx := context.Background()
	assert.NotPanics(t, func() {
		m.RecordTaskStart(ctx)
		m.RecordTaskComplete(ctx, "submitted", time.Second)
		m.RecordTaskError(ctx, "auth")
		m.RecordNodeRequest(ctx, "execute", time.Millisecond, nil)
		m.RecordSessionAuth(ctx, true)
	})
}
