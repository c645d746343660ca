// Package wallet wraps the long-lived local secp256k1 key used to
// authenticate to the key-management network. It never signs on-chain
// transactions.
package wallet

import (
	"crypto/ecdsa"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
)

// Signer produces EVM-compatible signatures with a local private key.
// It is safe for concurrent use.
type Signer struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
	mu         sync.RWMutex
}

// NewSigner creates a Signer from a hex encoded private key, with or
// without the 0x prefix.
func NewSigner(hexKey string) (*Signer, error) {
	hexKey = strings.TrimPrefix(strings.TrimSpace(hexKey), "0x")
	if hexKey == "" {
		return nil, errors.New("private key cannot be empty")
	}

	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse private key")
	}
	return FromECDSA(key)
}

// FromECDSA creates a Signer from an already parsed key.
func FromECDSA(key *ecdsa.PrivateKey) (*Signer, error) {
	if key == nil {
		return nil, errors.New("private key cannot be nil")
	}
	return &Signer{
		privateKey: key,
		address:    crypto.PubkeyToAddress(key.PublicKey),
	}, nil
}

// SignDigest signs a 32-byte digest and returns a 65-byte [R || S || V]
// signature with V in {27,28}.
func (s *Signer) SignDigest(digest []byte) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.privateKey == nil {
		return nil, errors.New("private key not initialized")
	}
	if len(digest) != crypto.DigestLength {
		return nil, errors.Errorf("digest must be %d bytes, got %d", crypto.DigestLength, len(digest))
	}

	signature, err := crypto.Sign(digest, s.privateKey)
	if err != nil {
		return nil, errors.Wrap(err, "failed to sign digest")
	}

	v := signature[64]
	if v >= 27 {
		v -= 27
	}
	v &= 1
	signature[64] = v + 27
	return signature, nil
}

// SignPersonal signs message with personal_sign (EIP-191) semantics.
func (s *Signer) SignPersonal(message []byte) ([]byte, error) {
	if len(message) == 0 {
		return nil, errors.New("message cannot be empty")
	}
	return s.SignDigest(accounts.TextHash(message))
}

// PublicKey returns the uncompressed public key.
func (s *Signer) PublicKey() []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.privateKey == nil {
		return nil
	}
	return crypto.FromECDSAPub(&s.privateKey.PublicKey)
}

// Address returns the checksummed Ethereum address of the key.
func (s *Signer) Address() common.Address {
	return s.address
}
