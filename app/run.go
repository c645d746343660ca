package app

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/trufnetwork/token-attester/internal/task"
)

// Summary is the printable form of one attestation result.
type Summary struct {
	Address  string `json:"address"`
	Outcome  string `json:"outcome"`
	Hash     string `json:"hash,omitempty"`
	Error    string `json:"error,omitempty"`
	Nodes    int    `json:"nodes"`
	Response string `json:"response"`
}

func Summarize(res *task.Result) Summary {
	out := Summary{Address: res.Address, Outcome: "unknown"}
	if res.Response != nil {
		out.Nodes = res.Response.Nodes
		out.Response = res.Response.Response
	}
	parsed, err := res.Outcome()
	if err != nil {
		out.Error = err.Error()
		return out
	}
	out.Outcome = string(parsed.Outcome)
	if parsed.Submission != nil {
		out.Hash = parsed.Submission.Hash
	}
	if parsed.Failure != nil {
		out.Error = parsed.Failure.Error()
	}
	return out
}

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run <address>...",
		Short: "Attest the metadata of one or more tokens",
		Long: `Run attests each token in turn through the key-management network.
Addresses are processed sequentially so transactions from the shared
threshold key do not race for the same nonce.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			runner, err := NewRunner(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer func() { _ = runner.Close() }()

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			for _, addr := range args {
				res, err := runner.Run(cmd.Context(), addr)
				if err != nil {
					return err
				}
				if err := enc.Encode(Summarize(res)); err != nil {
					return err
				}
			}
			return nil
		},
	}
}
