package task

import (
	"github.com/trufnetwork/token-attester/internal/action"
	"github.com/trufnetwork/token-attester/internal/lit"
)

// Result is the network's aggregated response, unmodified.
type Result struct {
	Address  string
	Response *lit.ExecuteResponse
}

// ExecutionFailed is the failure code of an action the nodes agree threw
// before it could record a response.
const ExecutionFailed = "EXECUTION_FAILED"

// Outcome interprets the action response. It does not change the result.
// An execution the nodes report as unsuccessful is a failure whatever its
// response text says.
func (r *Result) Outcome() (*action.Response, error) {
	if r == nil || r.Response == nil {
		return &action.Response{Outcome: action.OutcomeEmpty}, nil
	}
	if !r.Response.Success {
		reason := r.Response.Error
		if reason == "" {
			reason = "action execution failed"
		}
		return &action.Response{
			Outcome: action.OutcomeFailed,
			Failure: &action.Failure{Reason: reason, Code: ExecutionFailed, Body: r.Response.Response},
		}, nil
	}
	return action.ParseResponse(r.Response.Response)
}

func (r *Result) is(o action.Outcome) bool {
	out, err := r.Outcome()
	return err == nil && out.Outcome == o
}

// Empty reports that the token had no metadata and nothing was attested.
func (r *Result) Empty() bool { return r.is(action.OutcomeEmpty) }

// Submitted reports that an attestation transaction was broadcast.
func (r *Result) Submitted() bool { return r.is(action.OutcomeSubmitted) }

// Failed reports that the action captured an error.
func (r *Result) Failed() bool { return r.is(action.OutcomeFailed) }
