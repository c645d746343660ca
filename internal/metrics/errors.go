package metrics

import (
	"context"
	"errors"
)

// Kinded is an error that names its own metric label. ClassifyError finds
// it anywhere in a wrapped chain.
type Kinded interface {
	error
	MetricKind() string
}

type kindError struct {
	kind string
	msg  string
}

func (e *kindError) Error() string      { return e.msg }
func (e *kindError) MetricKind() string { return e.kind }

// NewKind returns a sentinel error reported under kind. Compare it with
// errors.Is like any other sentinel.
func NewKind(kind, msg string) error {
	return &kindError{kind: kind, msg: msg}
}

// ClassifyError buckets errors for metric labels to keep cardinality low.
// Only context errors and errors implementing Kinded get a specific label.
func ClassifyError(err error) string {
	if err == nil {
		return "none"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	if errors.Is(err, context.Canceled) {
		return "canceled"
	}
	var k Kinded
	if errors.As(err, &k) {
		return k.MetricKind()
	}
	return "unknown"
}
