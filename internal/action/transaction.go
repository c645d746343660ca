package action

import (
	"encoding/hex"
	"encoding/json"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/pkg/errors"
)

// BuildTx assembles the unsigned attestation transaction. The destination
// is always the registry and the gas limit is always p.GasLimit.
func BuildTx(p *Params, calldata []byte, nonce uint64, gasPrice *big.Int) *types.Transaction {
	to := p.Registry()
	if gasPrice == nil {
		gasPrice = new(big.Int)
	}
	return types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: new(big.Int).Set(gasPrice),
		Gas:      p.GasLimit,
		To:       &to,
		Value:    new(big.Int),
		Data:     common.CopyBytes(calldata),
	})
}

// TxSigner returns the signer matching the serialization the action uses:
// EIP-155 when a chain id is configured, unprotected otherwise.
func TxSigner(chainID uint64) types.Signer {
	if chainID == 0 {
		return types.HomesteadSigner{}
	}
	return types.NewEIP155Signer(new(big.Int).SetUint64(chainID))
}

// SigningHash is the digest handed to the threshold signer.
func SigningHash(tx *types.Transaction, chainID uint64) common.Hash {
	return TxSigner(chainID).Hash(tx)
}

// RawSignature is the combined threshold signature as reported by the
// network. R may carry a compressed point prefix byte and S may lack the 0x
// prefix.
type RawSignature struct {
	R          string `json:"r"`
	S          string `json:"s"`
	RecID      *int   `json:"recid,omitempty"`
	V          *int   `json:"v,omitempty"`
	Signature  string `json:"signature,omitempty"`
	PublicKey  string `json:"publicKey,omitempty"`
	DataSigned string `json:"dataSigned,omitempty"`
}

// Signature is a normalized ECDSA signature: R and S are 0x prefixed
// 32-byte hex strings and RecoveryID is 0 or 1.
type Signature struct {
	R          string
	S          string
	RecoveryID uint8
}

// ParseRawSignature decodes the JSON string returned by the signing API.
func ParseRawSignature(raw string) (*RawSignature, error) {
	var sig RawSignature
	if err := json.Unmarshal([]byte(raw), &sig); err != nil {
		return nil, errors.Wrap(err, "parse signature response")
	}
	return &sig, nil
}

// NormalizeSignature turns a raw combined signature into one that can be
// attached to a transaction.
func NormalizeSignature(raw *RawSignature) (Signature, error) {
	if raw == nil {
		return Signature{}, errors.New("signature is nil")
	}

	r := strings.TrimPrefix(strings.ToLower(raw.R), "0x")
	if len(r) == 66 {
		r = r[2:]
	}
	r, err := pad32(r)
	if err != nil {
		return Signature{}, errors.Wrap(err, "signature r")
	}
	s, err := pad32(strings.TrimPrefix(strings.ToLower(raw.S), "0x"))
	if err != nil {
		return Signature{}, errors.Wrap(err, "signature s")
	}

	var rec int
	switch {
	case raw.RecID != nil:
		rec = *raw.RecID
	case raw.V != nil:
		rec = *raw.V
		if rec >= 27 {
			rec -= 27
		}
	default:
		return Signature{}, errors.New("signature has no recovery id")
	}
	if rec != 0 && rec != 1 {
		return Signature{}, errors.Errorf("invalid recovery id %d", rec)
	}

	return Signature{R: "0x" + r, S: "0x" + s, RecoveryID: uint8(rec)}, nil
}

// Bytes returns [R || S || V] with V as the raw recovery id.
func (s Signature) Bytes() []byte {
	out := make([]byte, 65)
	copy(out[:32], common.FromHex(s.R))
	copy(out[32:64], common.FromHex(s.S))
	out[64] = s.RecoveryID
	return out
}

// SignTx attaches sig to tx and returns the signed transaction together
// with its raw serialization. When expected is non-zero the recovered
// sender must match it.
func SignTx(tx *types.Transaction, chainID uint64, sig Signature, expected common.Address) (*types.Transaction, []byte, error) {
	signer := TxSigner(chainID)
	signed, err := tx.WithSignature(signer, sig.Bytes())
	if err != nil {
		return nil, nil, errors.Wrap(err, "attach signature")
	}

	if expected != (common.Address{}) {
		from, err := types.Sender(signer, signed)
		if err != nil {
			return nil, nil, errors.Wrap(err, "recover sender")
		}
		if from != expected {
			return nil, nil, errors.Errorf("signature recovers to %s, expected %s", from.Hex(), expected.Hex())
		}
	}

	raw, err := signed.MarshalBinary()
	if err != nil {
		return nil, nil, errors.Wrap(err, "serialize transaction")
	}
	return signed, raw, nil
}

func pad32(h string) (string, error) {
	if len(h) > 64 {
		return "", errors.Errorf("value too long: %d hex chars", len(h))
	}
	if _, err := hex.DecodeString(strings.Repeat("0", len(h)%2) + h); err != nil {
		return "", errors.Wrap(err, "invalid hex")
	}
	return strings.Repeat("0", 64-len(h)) + h, nil
}
