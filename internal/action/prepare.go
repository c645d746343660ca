package action

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/pkg/errors"

	"github.com/trufnetwork/token-attester/internal/apestore"
)

// TokenFetcher loads token metadata; (nil, nil) means nothing to attest.
type TokenFetcher interface {
	Token(ctx context.Context, address string) (*apestore.Token, error)
}

// ChainReader is the part of an RPC client the action needs before signing.
type ChainReader interface {
	NonceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
}

// Prepared is the unsigned result of the action's steps up to signing.
type Prepared struct {
	Fields      SchemaData
	Payload     []byte
	Calldata    []byte
	Tx          *types.Transaction
	SigningHash common.Hash
}

// Prepare runs the deterministic part of the action locally: fetch
// metadata, extract and encode the payload, build the attest call and the
// unsigned transaction. It returns (nil, nil) when there is no token data,
// without touching the chain.
func Prepare(ctx context.Context, tokens TokenFetcher, chain ChainReader, p *Params) (*Prepared, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	token, err := tokens.Token(ctx, p.Address)
	if err != nil {
		return nil, errors.Wrap(err, "load token metadata")
	}
	if token == nil {
		return nil, nil
	}

	fields := ExtractFields(p.Address, token, p.IPFSGateway)
	payload, err := EncodeSchemaData(fields)
	if err != nil {
		return nil, err
	}
	calldata, err := EncodeAttestCall(NewAttestation(p.SchemaID, p.PKP(), payload), p.Address)
	if err != nil {
		return nil, err
	}

	nonce, err := chain.NonceAt(ctx, p.PKP(), nil)
	if err != nil {
		return nil, errors.Wrap(err, "fetch nonce")
	}
	gasPrice, err := chain.SuggestGasPrice(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "fetch gas price")
	}

	tx := BuildTx(p, calldata, nonce, gasPrice)
	return &Prepared{
		Fields:      fields,
		Payload:     payload,
		Calldata:    calldata,
		Tx:          tx,
		SigningHash: SigningHash(tx, p.ChainID),
	}, nil
}
