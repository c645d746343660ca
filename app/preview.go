package app

import (
	"encoding/json"
	"io"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/trufnetwork/token-attester/internal/action"
)

type previewOutput struct {
	Address     string             `json:"address"`
	Empty       bool               `json:"empty"`
	Fields      *action.SchemaData `json:"fields,omitempty"`
	Payload     string             `json:"payload,omitempty"`
	Calldata    string             `json:"calldata,omitempty"`
	To          string             `json:"to,omitempty"`
	Nonce       uint64             `json:"nonce,omitempty"`
	GasPrice    string             `json:"gasPrice,omitempty"`
	GasLimit    uint64             `json:"gasLimit,omitempty"`
	ChainID     uint64             `json:"chainId,omitempty"`
	SigningHash string             `json:"signingHash,omitempty"`
	SchemaID    uint64             `json:"schemaId,omitempty"`
	IndexingKey string             `json:"indexingKey,omitempty"`
}

func newPreviewOutput(p *action.Params, prepared *action.Prepared) (previewOutput, error) {
	out := previewOutput{Address: p.Address, Empty: prepared == nil}
	if prepared == nil {
		return out, nil
	}
	call, err := action.DecodeAttestCall(prepared.Calldata)
	if err != nil {
		return out, errors.Wrap(err, "decode prepared calldata")
	}
	fields := prepared.Fields
	out.Fields = &fields
	out.Payload = hexutil.Encode(prepared.Payload)
	out.Calldata = hexutil.Encode(prepared.Calldata)
	out.To = prepared.Tx.To().Hex()
	out.Nonce = prepared.Tx.Nonce()
	out.GasPrice = prepared.Tx.GasPrice().String()
	out.GasLimit = prepared.Tx.Gas()
	out.ChainID = p.ChainID
	out.SigningHash = prepared.SigningHash.Hex()
	out.SchemaID = call.Attestation.SchemaId
	out.IndexingKey = call.IndexingKey
	return out, nil
}

func writePreview(w io.Writer, out previewOutput) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func newPreviewCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "preview <address>",
		Short: "Show the attestation a run would submit, without signing or broadcasting",
		Long: `Preview performs the deterministic steps of the attestation locally:
it fetches the token metadata, encodes the schema payload and the attest
call, and reads the threshold key's nonce and the gas price from the RPC
endpoint. Nothing is signed and nothing is sent.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			addr, err := action.NormalizeAddress(args[0])
			if err != nil {
				return err
			}
			tc := cfg.TaskConfig()
			params := tc.Params(addr)

			rpc, err := ethclient.DialContext(cmd.Context(), params.RPCURL)
			if err != nil {
				return errors.Wrap(err, "dial rpc")
			}
			defer rpc.Close()

			prepared, err := action.Prepare(cmd.Context(), cfg.MetadataClient(), rpc, params)
			if err != nil {
				return err
			}
			out, err := newPreviewOutput(params, prepared)
			if err != nil {
				return err
			}
			return writePreview(cmd.OutOrStdout(), out)
		},
	}
}
