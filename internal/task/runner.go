// Package task runs attestations: it obtains a session credential from the
// key-management network, executes the attestation action for one token and
// hands back whatever the network agreed on.
package task

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/trufnetwork/token-attester/internal/action"
	"github.com/trufnetwork/token-attester/internal/apestore"
	"github.com/trufnetwork/token-attester/internal/lit"
	"github.com/trufnetwork/token-attester/internal/metrics"
)

// ErrInvalidAddress reports a token address that is not 0x followed by 40
// hex characters.
var ErrInvalidAddress = action.ErrInvalidAddress

// DefaultSessionTTL is how long a session credential stays valid.
const DefaultSessionTTL = 24 * time.Hour

// Network is the part of the key-management client the runner uses.
type Network interface {
	NonceSource
	SessionSigs(ctx context.Context, req lit.SessionSigsRequest, auth lit.AuthSigner) (lit.SessionSigs, error)
	ExecuteJS(ctx context.Context, req lit.ExecuteRequest) (*lit.ExecuteResponse, error)
}

// Config holds everything the action needs besides the token address.
type Config struct {
	MetadataBaseURL string
	MetadataChain   string
	RegistryAddress string
	RPCURL          string
	ChainID         uint64
	SchemaID        uint64
	PKPPublicKey    string
	PKPAddress      string
	GasLimit        uint64
	IPFSGateway     string
	SigName         string
	SessionTTL      time.Duration
}

func (c *Config) applyDefaults() {
	if c.MetadataBaseURL == "" {
		c.MetadataBaseURL = apestore.DefaultBaseURL
	}
	if c.MetadataChain == "" {
		c.MetadataChain = apestore.DefaultChain
	}
	if c.RegistryAddress == "" {
		c.RegistryAddress = action.DefaultRegistryAddress
	}
	if c.RPCURL == "" {
		c.RPCURL = action.DefaultRPCURL
	}
	if c.ChainID == 0 {
		c.ChainID = action.DefaultChainID
	}
	if c.PKPPublicKey == "" {
		c.PKPPublicKey = action.DefaultPKPPublicKey
	}
	if c.PKPAddress == "" {
		c.PKPAddress = action.DefaultPKPAddress
	}
	if c.GasLimit == 0 {
		c.GasLimit = action.DefaultGasLimit
	}
	if c.IPFSGateway == "" {
		c.IPFSGateway = action.DefaultIPFSGateway
	}
	if c.SigName == "" {
		c.SigName = action.DefaultSigName
	}
	if c.SessionTTL <= 0 {
		c.SessionTTL = DefaultSessionTTL
	}
}

// Params builds the action parameters for a normalized address.
func (c *Config) Params(address string) *action.Params {
	return &action.Params{
		Address:         address,
		MetadataURL:     apestore.TokenURL(c.MetadataBaseURL, c.MetadataChain, address),
		RegistryAddress: c.RegistryAddress,
		RPCURL:          c.RPCURL,
		ChainID:         c.ChainID,
		SchemaID:        c.SchemaID,
		PKPPublicKey:    c.PKPPublicKey,
		PKPAddress:      c.PKPAddress,
		GasLimit:        c.GasLimit,
		IPFSGateway:     c.IPFSGateway,
		SigName:         c.SigName,
	}
}

// Runner attests tokens. It shares one network client and one wallet
// across concurrent runs.
type Runner struct {
	cfg     Config
	network Network
	auth    lit.AuthSigner
	logger  *zap.Logger
	metrics metrics.Recorder
	now     func() time.Time
	closers []func() error
}

type Option func(*Runner)

func WithLogger(l *zap.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

func WithMetrics(m metrics.Recorder) Option {
	return func(r *Runner) { r.metrics = m }
}

// WithAuthSigner replaces the wallet-backed sign-in.
func WithAuthSigner(a lit.AuthSigner) Option {
	return func(r *Runner) { r.auth = a }
}

// WithCloser registers a teardown step run by Close.
func WithCloser(fn func() error) Option {
	return func(r *Runner) { r.closers = append(r.closers, fn) }
}

func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

// New builds a Runner. The parameters it will send are validated up front
// against a placeholder address so misconfiguration fails at startup.
func New(cfg Config, network Network, wallet Wallet, opts ...Option) (*Runner, error) {
	if network == nil {
		return nil, errors.New("network client is required")
	}
	cfg.applyDefaults()
	if err := cfg.Params("0x0000000000000000000000000000000000000000").Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid task config")
	}

	r := &Runner{
		cfg:     cfg,
		network: network,
		logger:  zap.NewNop(),
		metrics: metrics.NewNoOp(),
		now:     time.Now,
	}
	if wallet != nil {
		r.auth = NewWalletAuth(wallet, network)
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.auth == nil {
		return nil, errors.New("a wallet or auth signer is required")
	}
	r.logger = r.logger.Named("task")
	return r, nil
}

// Close runs the registered teardown steps in reverse order.
func (r *Runner) Close() error {
	var first error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	r.closers = nil
	return first
}

// Run attests the metadata of the token at address. Failures inside the
// action come back as data in the Result; returned errors are invalid input,
// authentication or transport failures.
func (r *Runner) Run(ctx context.Context, address string) (res *Result, err error) {
	start := r.now()
	r.metrics.RecordTaskStart(ctx)
	defer func() {
		if err != nil {
			r.metrics.RecordTaskError(ctx, metrics.ClassifyError(err))
			return
		}
		outcome := "unknown"
		if o, oerr := res.Outcome(); oerr == nil {
			outcome = string(o.Outcome)
		}
		r.metrics.RecordTaskComplete(ctx, outcome, r.now().Sub(start))
	}()

	normalized, err := action.NormalizeAddress(address)
	if err != nil {
		return nil, err
	}
	logger := r.logger.With(zap.String("address", normalized))

	params := r.cfg.Params(normalized)
	if err := params.Validate(); err != nil {
		return nil, err
	}
	jsParams, err := params.JSParams()
	if err != nil {
		return nil, err
	}

	sigs, err := r.network.SessionSigs(ctx, lit.SessionSigsRequest{
		Chain:      "ethereum",
		Expiration: r.now().Add(r.cfg.SessionTTL),
		ResourceAbilityRequests: []lit.ResourceAbilityRequest{{
			Resource: lit.LitActionResource,
			Ability:  lit.AbilityLitActionExecution,
		}},
	}, r.auth)
	if err != nil {
		return nil, errors.Wrap(err, "acquire session")
	}
	logger.Debug("session acquired", zap.Int("nodes", len(sigs)))

	resp, err := r.network.ExecuteJS(ctx, lit.ExecuteRequest{
		Code:        action.Source,
		JSParams:    jsParams,
		SessionSigs: sigs,
	})
	if err != nil {
		return nil, errors.Wrap(err, "execute attestation")
	}

	res = &Result{Address: normalized, Response: resp}
	logger.Info("attestation finished",
		zap.Bool("success", resp.Success),
		zap.Int("nodes", resp.Nodes),
		zap.String("response", resp.Response),
		zap.Duration("elapsed", r.now().Sub(start)))
	return res, nil
}
