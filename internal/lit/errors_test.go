package lit

import (
	"net/http"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/trufnetwork/token-attester/internal/metrics"
)

func TestErrorMetricKinds(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"auth sentinel", errors.Wrap(ErrAuth, "session"), "auth"},
		{"not ready", ErrNotReady, "not_ready"},
		{"consensus", &KindError{Kind: ErrConsensus, Err: errors.New("2 groups")}, "consensus"},
		{"transport kind wraps node auth", &KindError{Kind: ErrTransport, Err: &NodeError{URL: "http://n", Status: http.StatusForbidden}}, "transport"},
		{"node forbidden", &NodeError{URL: "http://n", Status: http.StatusForbidden, Err: errors.New("denied")}, "auth"},
		{"node unreachable", &NodeError{URL: "http://n", Err: errors.New("dial tcp: connection refused")}, "transport"},
		{"bare message", errors.New("transport failure"), "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, metrics.ClassifyError(tt.err))
		})
	}
}
