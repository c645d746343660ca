package action

import (
	"encoding/json"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
)

// Outcome classifies what the action reported.
type Outcome string

const (
	// OutcomeEmpty means the token had no metadata; nothing was attested.
	OutcomeEmpty Outcome = "empty"
	// OutcomeSubmitted means the transaction was broadcast.
	OutcomeSubmitted Outcome = "submitted"
	// OutcomeFailed means the action captured an error as data.
	OutcomeFailed Outcome = "failed"
)

// Submission is the broadcast transaction as echoed by the RPC provider.
type Submission struct {
	Hash    string `mapstructure:"hash"`
	From    string `mapstructure:"from"`
	To      string `mapstructure:"to"`
	Nonce   uint64 `mapstructure:"nonce"`
	Data    string `mapstructure:"data"`
	ChainID uint64 `mapstructure:"chainId"`
}

// Failure is an error serialized by the action.
type Failure struct {
	Reason  string `mapstructure:"reason"`
	Code    string `mapstructure:"code"`
	Message string `mapstructure:"message"`
	Body    string `mapstructure:"body"`
}

func (f *Failure) Error() string {
	msg := f.Reason
	if msg == "" {
		msg = f.Message
	}
	if msg == "" {
		msg = "action failed"
	}
	if f.Code != "" {
		return f.Code + ": " + msg
	}
	return msg
}

// Response is the action's response string, interpreted.
type Response struct {
	Outcome    Outcome
	Submission *Submission
	Failure    *Failure
}

// ParseResponse classifies the raw response string set by the action.
// Empty and null responses mean no data.
func ParseResponse(raw string) (*Response, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || trimmed == "null" || trimmed == `""` {
		return &Response{Outcome: OutcomeEmpty}, nil
	}

	var fields map[string]any
	if err := json.Unmarshal([]byte(trimmed), &fields); err != nil {
		return nil, errors.Wrap(err, "action response is not a json object")
	}

	if _, ok := fields["hash"]; ok {
		var sub Submission
		if err := decodeWeak(fields, &sub); err != nil {
			return nil, errors.Wrap(err, "decode submission")
		}
		return &Response{Outcome: OutcomeSubmitted, Submission: &sub}, nil
	}

	var failure Failure
	if err := decodeWeak(fields, &failure); err != nil {
		return nil, errors.Wrap(err, "decode failure")
	}
	return &Response{Outcome: OutcomeFailed, Failure: &failure}, nil
}

func decodeWeak(in map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	return dec.Decode(in)
}
