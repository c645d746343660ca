// Package config reads the attester's settings from the environment.
package config

import (
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/trufnetwork/token-attester/internal/action"
	"github.com/trufnetwork/token-attester/internal/apestore"
	"github.com/trufnetwork/token-attester/internal/chains"
	"github.com/trufnetwork/token-attester/internal/lit"
	"github.com/trufnetwork/token-attester/internal/task"
)

const production = "production"

// Config is the process configuration.
type Config struct {
	// EthereumKey is the hex private key of the wallet that authorizes
	// session keys.
	EthereumKey string `env:"ETHEREUM_KEY,required,unset"`
	NodeEnv     string `env:"NODE_ENV" envDefault:"development"`

	LitNetwork          string        `env:"LIT_NETWORK" envDefault:"datil-dev"`
	LitNodeURLs         []string      `env:"LIT_NODE_URLS,required,notEmpty" envSeparator:","`
	LitMinNodeCount     int           `env:"LIT_MIN_NODE_COUNT"`
	LitStorage          string        `env:"LIT_STORAGE" envDefault:"./lit_storage.db"`
	LitRequestTimeout   time.Duration `env:"LIT_REQUEST_TIMEOUT" envDefault:"2m"`
	LitConnectTimeout   time.Duration `env:"LIT_CONNECT_TIMEOUT" envDefault:"30s"`
	LitHandshakeRetries int           `env:"LIT_HANDSHAKE_RETRIES" envDefault:"2"`

	ApeStoreBaseURL string `env:"APE_STORE_BASE_URL" envDefault:"https://ape.store"`
	ApeStoreChain   string `env:"APE_STORE_CHAIN" envDefault:"base"`

	AttestChain         string `env:"ATTEST_CHAIN" envDefault:"BASE_SEPOLIA"`
	AttestRPCURL        string `env:"ATTEST_RPC_URL"`
	SchemaID            uint64 `env:"SCHEMA_ID,required"`
	SignProtocolAddress string `env:"SIGN_PROTOCOL_ADDRESS" envDefault:"0x4e4af2a21ebf62850fD99Eb6253E1eFBb56098cD"`
	PKPPublicKey        string `env:"PKP_PUBLIC_KEY" envDefault:"0x04a9594f86e1118ee48a117dd0add16599a076f6f0f012f1cfac3875aa4bbe35dfcceb47bf9cb1744b6409adf865b6cd4955c6ac6a1c9c4a3909a47b27d7149468"`
	PKPAddress          string `env:"PKP_ADDRESS" envDefault:"0x7eD91D43554C4dd13D4A035624a273Ca15ff6d76"`
	GasLimit            uint64 `env:"GAS_LIMIT" envDefault:"2000000"`
	IPFSGateway         string `env:"IPFS_GATEWAY" envDefault:"https://ipfs.io/ipfs/"`

	MetricsEnabled bool `env:"METRICS_ENABLED" envDefault:"false"`
}

// Load parses the process environment.
func Load() (*Config, error) {
	return parse(env.Options{})
}

// LoadFrom parses vars instead of the process environment.
func LoadFrom(vars map[string]string) (*Config, error) {
	return parse(env.Options{Environment: vars})
}

func parse(opts env.Options) (*Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return nil, errors.Wrap(err, "parse environment")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values env tags cannot express.
func (c *Config) Validate() error {
	key := strings.TrimPrefix(c.EthereumKey, "0x")
	if len(key) != 64 {
		return errors.New("ETHEREUM_KEY must be a 32 byte hex private key")
	}
	if c.SchemaID == 0 {
		return errors.New("SCHEMA_ID must be positive")
	}
	if _, err := chains.Parse(c.AttestChain); err != nil {
		return errors.Wrap(err, "ATTEST_CHAIN")
	}
	if len(c.LitNodeURLs) == 0 {
		return errors.New("LIT_NODE_URLS must list at least one node")
	}
	if c.LitMinNodeCount < 0 {
		return errors.New("LIT_MIN_NODE_COUNT cannot be negative")
	}
	if c.LitMinNodeCount > len(c.LitNodeURLs) {
		return errors.Errorf("LIT_MIN_NODE_COUNT %d exceeds %d LIT_NODE_URLS", c.LitMinNodeCount, len(c.LitNodeURLs))
	}
	if _, err := action.NormalizeAddress(c.SignProtocolAddress); err != nil {
		return errors.Wrap(err, "SIGN_PROTOCOL_ADDRESS")
	}
	if _, err := action.NormalizeAddress(c.PKPAddress); err != nil {
		return errors.Wrap(err, "PKP_ADDRESS")
	}
	return nil
}

// Production reports whether NODE_ENV selects production behavior.
func (c *Config) Production() bool {
	return c.NodeEnv == production
}

// Chain is the metadata of the attestation chain.
func (c *Config) Chain() chains.Metadata {
	chain, err := chains.Parse(c.AttestChain)
	if err != nil {
		chain = chains.BaseSepolia
	}
	return chains.MustGet(chain)
}

// RPCURL is ATTEST_RPC_URL, or the chain's default endpoint.
func (c *Config) RPCURL() string {
	if c.AttestRPCURL != "" {
		return c.AttestRPCURL
	}
	return c.Chain().DefaultRPCURL()
}

// NewLogger returns a development logger outside production, where debug
// output is wanted.
func (c *Config) NewLogger() (*zap.Logger, error) {
	if c.Production() {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

// LitConfig builds the network client configuration. Storage is opened
// separately by the caller.
func (c *Config) LitConfig(storage lit.Storage) lit.Config {
	return lit.Config{
		Network:          c.LitNetwork,
		NodeURLs:         c.LitNodeURLs,
		MinNodeCount:     c.LitMinNodeCount,
		RequestTimeout:   c.LitRequestTimeout,
		ConnectTimeout:   c.LitConnectTimeout,
		HandshakeRetries: c.LitHandshakeRetries,
		Storage:          storage,
		Debug:            !c.Production(),
	}
}

// TaskConfig builds the attestation parameters shared by every run.
func (c *Config) TaskConfig() task.Config {
	return task.Config{
		MetadataBaseURL: c.ApeStoreBaseURL,
		MetadataChain:   c.ApeStoreChain,
		RegistryAddress: c.SignProtocolAddress,
		RPCURL:          c.RPCURL(),
		ChainID:         c.Chain().ID,
		SchemaID:        c.SchemaID,
		PKPPublicKey:    c.PKPPublicKey,
		PKPAddress:      c.PKPAddress,
		GasLimit:        c.GasLimit,
		IPFSGateway:     c.IPFSGateway,
		SigName:         action.DefaultSigName,
	}
}

// MetadataClient returns a token metadata client for the configured API.
func (c *Config) MetadataClient() *apestore.Client {
	return apestore.NewClient(c.ApeStoreBaseURL, apestore.WithChain(c.ApeStoreChain))
}
