package app

import (
	"github.com/spf13/cobra"

	"github.com/trufnetwork/token-attester/cmd/version"
)

// RootCmd creates the token-attester command tree.
func RootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token-attester",
		Short: "Attest token metadata on-chain through a threshold-signing network",
		Long: `token-attester fetches a token's public metadata, encodes it for the
attestation registry and has a threshold key on the key-management network
sign and broadcast the attestation.

Configuration is read from the environment (ETHEREUM_KEY, SCHEMA_ID,
LIT_NODE_URLS, ...).`,
		SilenceUsage: true,
	}

	cmd.AddCommand(
		newRunCmd(),
		newPreviewCmd(),
		newChainsCmd(),
		version.NewVersionCmd(),
	)
	return cmd
}
