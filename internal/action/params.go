// Package action defines the attestation action executed by the
// key-management network and mirrors its deterministic steps in Go.
//
// The action source is static. Everything that varies per call, the token
// address included, travels as typed jsParams, so no caller input is ever
// spliced into code.
//
// The signature helpers (ParseRawSignature, NormalizeSignature, SignTx)
// repeat what the action does with the threshold signature. Nothing on the
// run path calls them; they exist to check a transaction the action
// produced, and the tests use them that way.
package action

import (
	_ "embed"
	"encoding/json"
	"net/url"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"

	"github.com/trufnetwork/token-attester/internal/metrics"
)

const (
	// DefaultGasLimit is the fixed gas limit of every attestation transaction.
	DefaultGasLimit uint64 = 2_000_000
	// DefaultIPFSGateway replaces the ipfs:// scheme of token logos.
	DefaultIPFSGateway = "https://ipfs.io/ipfs/"
	// DefaultSigName labels the threshold signature inside the action.
	DefaultSigName = "sig4"
	// DefaultRegistryAddress is the Sign Protocol registry on Base Sepolia.
	DefaultRegistryAddress = "0x4e4af2a21ebf62850fD99Eb6253E1eFBb56098cD"
	// DefaultRPCURL is the Base Sepolia endpoint used for nonce, gas price
	// and broadcast.
	DefaultRPCURL = "https://sepolia.base.org"
	// DefaultChainID is Base Sepolia.
	DefaultChainID uint64 = 84532

	// DefaultPKPPublicKey is the threshold key whitelisted by the registry
	// hook to attest coin metadata directly.
	DefaultPKPPublicKey = "0x04a9594f86e1118ee48a117dd0add16599a076f6f0f012f1cfac3875aa4bbe35dfcceb47bf9cb1744b6409adf865b6cd4955c6ac6a1c9c4a3909a47b27d7149468"
	// DefaultPKPAddress is the address derived from DefaultPKPPublicKey.
	DefaultPKPAddress = "0x7eD91D43554C4dd13D4A035624a273Ca15ff6d76"
)

// Source is the action executed by every node of the network.
//
//go:embed attest_action.js
var Source string

var (
	addressPattern   = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)
	publicKeyPattern = regexp.MustCompile(`^(0x)?04[0-9a-fA-F]{128}$`)
)

// ErrInvalidAddress reports an address that is not 0x followed by 40 hex
// characters.
var ErrInvalidAddress = metrics.NewKind("invalid_input", "invalid address")

// NormalizeAddress validates addr and returns its lowercase form.
func NormalizeAddress(addr string) (string, error) {
	addr = strings.TrimSpace(addr)
	if !addressPattern.MatchString(addr) {
		return "", errors.Wrapf(ErrInvalidAddress, "%q", addr)
	}
	return strings.ToLower(addr), nil
}

// Params is everything the action needs for one attestation.
type Params struct {
	Address         string `json:"address"`
	MetadataURL     string `json:"metadataUrl"`
	RegistryAddress string `json:"registryAddress"`
	RPCURL          string `json:"rpcUrl"`
	ChainID         uint64 `json:"chainId"`
	SchemaID        uint64 `json:"schemaId,string"`
	PKPPublicKey    string `json:"pkpPublicKey"`
	PKPAddress      string `json:"pkpAddress"`
	GasLimit        uint64 `json:"gasLimit"`
	IPFSGateway     string `json:"ipfsGateway"`
	SigName         string `json:"sigName"`
}

// Validate checks that every field is well formed. Address must already be
// normalized.
func (p *Params) Validate() error {
	if !addressPattern.MatchString(p.Address) || strings.ToLower(p.Address) != p.Address {
		return errors.Wrapf(ErrInvalidAddress, "subject %q must be a lowercase address", p.Address)
	}
	if !addressPattern.MatchString(p.RegistryAddress) {
		return errors.Wrapf(ErrInvalidAddress, "registry %q", p.RegistryAddress)
	}
	if !addressPattern.MatchString(p.PKPAddress) {
		return errors.Wrapf(ErrInvalidAddress, "pkp %q", p.PKPAddress)
	}
	if !publicKeyPattern.MatchString(p.PKPPublicKey) {
		return errors.Errorf("pkp public key must be an uncompressed secp256k1 key, got %q", p.PKPPublicKey)
	}
	if err := validateHTTPURL(p.MetadataURL); err != nil {
		return errors.Wrap(err, "metadata url")
	}
	if err := validateHTTPURL(p.RPCURL); err != nil {
		return errors.Wrap(err, "rpc url")
	}
	if err := validateHTTPURL(p.IPFSGateway); err != nil {
		return errors.Wrap(err, "ipfs gateway")
	}
	if p.SchemaID == 0 {
		return errors.New("schema id is required")
	}
	if p.GasLimit == 0 {
		return errors.New("gas limit is required")
	}
	if p.SigName == "" {
		return errors.New("signature name is required")
	}
	return nil
}

// JSParams is the jsParams object handed to the network. The action reads
// it as the global "params".
func (p *Params) JSParams() (map[string]any, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, errors.Wrap(err, "marshal action params")
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, errors.Wrap(err, "unmarshal action params")
	}
	// The signing API expects the public key without the 0x prefix.
	fields["pkpPublicKey"] = strings.TrimPrefix(p.PKPPublicKey, "0x")
	return map[string]any{"params": fields}, nil
}

// Registry returns the registry contract address.
func (p *Params) Registry() common.Address {
	return common.HexToAddress(p.RegistryAddress)
}

// PKP returns the threshold signer address.
func (p *Params) PKP() common.Address {
	return common.HexToAddress(p.PKPAddress)
}

func validateHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.Errorf("%q must be an http(s) url", raw)
	}
	if u.Host == "" {
		return errors.Errorf("%q has no host", raw)
	}
	return nil
}
