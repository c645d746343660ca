package app

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/fbiville/markdown-table-formatter/pkg/markdown"
	"github.com/spf13/cobra"

	"github.com/trufnetwork/token-attester/internal/chains"
)

// chainsTable renders every supported chain as a markdown table.
func chainsTable() (string, error) {
	rows := make([][]string, 0, len(chains.All()))
	for _, c := range chains.All() {
		m := chains.MustGet(c)
		rows = append(rows, []string{
			string(c),
			strconv.FormatUint(m.ID, 10),
			m.Name,
			m.NativeCurrency.Symbol,
			strings.Join(m.RPCURLs, " "),
			m.Explorer.URL,
			strconv.FormatBool(m.Testnet),
		})
	}
	return markdown.NewTableFormatterBuilder().
		WithPrettyPrint().
		Build("Chain", "ID", "Name", "Currency", "RPC", "Explorer", "Testnet").
		Format(rows)
}

func writeChains(w io.Writer) error {
	table, err := chainsTable()
	if err != nil {
		return err
	}
	_, err = fmt.Fprint(w, table)
	return err
}

func newChainsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chains",
		Short: "List the supported chains",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return writeChains(cmd.OutOrStdout())
		},
	}
}
