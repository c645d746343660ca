// Package chains holds the static descriptive metadata of the networks the
// attester knows about. The table is built once at package init and never
// mutated; accessors return copies.
package chains

import (
	"fmt"
	"sort"
	"strings"
)

// Chain identifies one supported network.
type Chain string

const (
	ETH         Chain = "ETH"
	OP          Chain = "OP"
	BaseSepolia Chain = "BASE_SEPOLIA"
	Base        Chain = "BASE"
)

// NativeCurrency describes the gas token of a network.
type NativeCurrency struct {
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Decimals uint8  `json:"decimals"`
}

// Explorer is a block explorer front end.
type Explorer struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Metadata is the canonical descriptive configuration of one network.
type Metadata struct {
	ID             uint64         `json:"id"`
	Name           string         `json:"name"`
	NativeCurrency NativeCurrency `json:"nativeCurrency"`
	RPCURLs        []string       `json:"rpcUrls"`
	Explorer       Explorer       `json:"blockExplorer"`
	Testnet        bool           `json:"testnet"`
}

var ether = NativeCurrency{Name: "Ether", Symbol: "ETH", Decimals: 18}

var table = map[Chain]Metadata{
	ETH: {
		ID:             1,
		Name:           "Ethereum",
		NativeCurrency: ether,
		RPCURLs:        []string{"https://cloudflare-eth.com"},
		Explorer:       Explorer{Name: "Etherscan", URL: "https://etherscan.io"},
	},
	OP: {
		ID:             10,
		Name:           "OP Mainnet",
		NativeCurrency: ether,
		RPCURLs:        []string{"https://mainnet.optimism.io"},
		Explorer:       Explorer{Name: "Optimism Explorer", URL: "https://optimistic.etherscan.io"},
	},
	BaseSepolia: {
		ID:             84532,
		Name:           "Base Sepolia",
		NativeCurrency: NativeCurrency{Name: "Sepolia Ether", Symbol: "ETH", Decimals: 18},
		RPCURLs:        []string{"https://sepolia.base.org"},
		Explorer:       Explorer{Name: "Basescan", URL: "https://sepolia.basescan.org"},
		Testnet:        true,
	},
	Base: {
		ID:             8453,
		Name:           "Base",
		NativeCurrency: ether,
		RPCURLs:        []string{"https://mainnet.base.org"},
		Explorer:       Explorer{Name: "Basescan", URL: "https://basescan.org"},
	},
}

// Get returns the metadata for c.
func Get(c Chain) (Metadata, bool) {
	m, ok := table[c]
	if !ok {
		return Metadata{}, false
	}
	return m.clone(), true
}

// MustGet is Get for chains known at compile time.
func MustGet(c Chain) Metadata {
	m, ok := Get(c)
	if !ok {
		panic(fmt.Sprintf("chains: unknown chain %q", c))
	}
	return m
}

// Parse resolves a case-insensitive chain identifier ("base_sepolia",
// "BASE-SEPOLIA" and "BASE_SEPOLIA" are equivalent).
func Parse(s string) (Chain, error) {
	c := Chain(strings.ReplaceAll(strings.ToUpper(strings.TrimSpace(s)), "-", "_"))
	if _, ok := table[c]; !ok {
		return "", fmt.Errorf("unsupported chain %q", s)
	}
	return c, nil
}

// ByChainID finds the network with the given numeric chain id.
func ByChainID(id uint64) (Chain, Metadata, bool) {
	for c, m := range table {
		if m.ID == id {
			return c, m.clone(), true
		}
	}
	return "", Metadata{}, false
}

// All lists every supported chain ordered by chain id.
func All() []Chain {
	out := make([]Chain, 0, len(table))
	for c := range table {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return table[out[i]].ID < table[out[j]].ID })
	return out
}

// DefaultRPCURL is the first configured RPC endpoint.
func (m Metadata) DefaultRPCURL() string {
	if len(m.RPCURLs) == 0 {
		return ""
	}
	return m.RPCURLs[0]
}

func (m Metadata) clone() Metadata {
	m.RPCURLs = append([]string(nil), m.RPCURLs...)
	return m
}
