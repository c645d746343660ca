package task

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/pkg/errors"

	"github.com/trufnetwork/token-attester/internal/lit"
	"github.com/trufnetwork/token-attester/internal/siwe"
)

// Wallet is the long-lived local key that authorizes session keys.
type Wallet interface {
	Address() common.Address
	SignPersonal(message []byte) ([]byte, error)
}

// NonceSource supplies a fresh anti-replay nonce for sign-in messages.
type NonceSource interface {
	LatestBlockhash(ctx context.Context) (string, error)
}

// WalletAuth signs sign-in messages that delegate the requested abilities to
// a session key. It satisfies lit.AuthSigner.
type WalletAuth struct {
	wallet  Wallet
	nonces  NonceSource
	domain  string
	chainID uint64
	now     func() time.Time
}

// NewWalletAuth returns an AuthSigner backed by wallet.
func NewWalletAuth(wallet Wallet, nonces NonceSource) *WalletAuth {
	return &WalletAuth{
		wallet:  wallet,
		nonces:  nonces,
		domain:  siwe.DefaultDomain,
		chainID: 1,
		now:     time.Now,
	}
}

var _ lit.AuthSigner = (*WalletAuth)(nil)

func (a *WalletAuth) SignAuth(ctx context.Context, params lit.AuthCallbackParams) (*lit.AuthSig, error) {
	nonce, err := a.nonces.LatestBlockhash(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "fetch nonce")
	}

	caps := make([]siwe.Capability, 0, len(params.ResourceAbilityRequests))
	for _, r := range params.ResourceAbilityRequests {
		c, err := capabilityFor(r)
		if err != nil {
			return nil, err
		}
		caps = append(caps, c)
	}

	msg := &siwe.Message{
		Domain:         a.domain,
		Address:        a.wallet.Address(),
		Statement:      siwe.DefaultStatement,
		URI:            params.URI,
		ChainID:        a.chainID,
		Nonce:          nonce,
		IssuedAt:       a.now(),
		ExpirationTime: params.Expiration,
		Capabilities:   caps,
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}

	text := msg.String()
	sig, err := a.wallet.SignPersonal([]byte(text))
	if err != nil {
		return nil, errors.Wrap(err, "sign message")
	}

	return &lit.AuthSig{
		Sig:           hexutil.Encode(sig),
		DerivedVia:    lit.DerivedViaPersonalSign,
		SignedMessage: text,
		Address:       a.wallet.Address().Hex(),
	}, nil
}

// capabilityFor maps a network ability onto its sign-in capability.
func capabilityFor(r lit.ResourceAbilityRequest) (siwe.Capability, error) {
	switch r.Ability {
	case lit.AbilityLitActionExecution:
		return siwe.Capability{Resource: r.Resource, Namespace: "Threshold", Name: "Execution"}, nil
	default:
		return siwe.Capability{}, errors.Errorf("unsupported ability %q", r.Ability)
	}
}
