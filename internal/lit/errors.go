package lit

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/trufnetwork/token-attester/internal/metrics"
)

var (
	// ErrAuth means the wallet could not authenticate or the network
	// rejected the session credential.
	ErrAuth = metrics.NewKind("auth", "authentication failure")
	// ErrTransport means the network could not be reached reliably enough
	// to reach consensus. Callers may retry.
	ErrTransport = metrics.NewKind("transport", "transport failure")
	// ErrNotReady is returned before Connect succeeds or after Disconnect.
	ErrNotReady = metrics.NewKind("not_ready", "client not connected")
	// ErrConsensus means enough nodes answered but they disagreed.
	ErrConsensus = metrics.NewKind("consensus", "no consensus among nodes")
)

// NodeError is the failure of a single node request.
type NodeError struct {
	URL    string
	Status int
	Err    error
}

func (e *NodeError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: status %d: %v", e.URL, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.URL, e.Err)
}

func (e *NodeError) Unwrap() error { return e.Err }

// IsAuth reports whether the node refused the credential.
func (e *NodeError) IsAuth() bool {
	return e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden || errors.Is(e.Err, ErrAuth)
}

// MetricKind labels the failure for node request metrics.
func (e *NodeError) MetricKind() string {
	if e.IsAuth() {
		return "auth"
	}
	return "transport"
}

// KindError tags a cause with one of the sentinel kinds while keeping the
// cause reachable through errors.Is and errors.As.
type KindError struct {
	Kind error
	Op   string
	Err  error
}

func (e *KindError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%v: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%v: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *KindError) Unwrap() []error { return []error{e.Kind, e.Err} }
