package metrics

import (
	"context"
	"time"
)

// NoOp discards every measurement.
type NoOp struct{}

func NewNoOp() *NoOp {
	return &NoOp{}
}

func (n *NoOp) RecordTaskStart(ctx context.Context) {}

func (n *NoOp) RecordTaskComplete(ctx context.Context, outcome string, duration time.Duration) {}

func (n *NoOp) RecordTaskError(ctx context.Context, errType string) {}

func (n *NoOp) RecordNodeRequest(ctx context.Context, op string, duration time.Duration, err error) {
}

func (n *NoOp) RecordSessionAuth(ctx context.Context, cached bool) {}
