package wallet

import (
	"encoding/hex"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSigner(t *testing.T) *Signer {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	s, err := FromECDSA(key)
	require.NoError(t, err)
	return s
}

func TestNewSigner(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	hexKey := hex.EncodeToString(crypto.FromECDSA(key))

	t.Run("without prefix", func(t *testing.T) {
		s, err := NewSigner(hexKey)
		require.NoError(t, err)
		assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey), s.Address())
	})

	t.Run("with prefix", func(t *testing.T) {
		s, err := NewSigner("0x" + hexKey)
		require.NoError(t, err)
		assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey), s.Address())
	})

	t.Run("empty", func(t *testing.T) {
		s, err := NewSigner("  ")
		assert.Nil(t, s)
		assert.ErrorContains(t, err, "private key cannot be empty")
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := NewSigner("zz")
		assert.ErrorContains(t, err, "failed to parse private key")
	})

	t.Run("nil ecdsa", func(t *testing.T) {
		_, err := FromECDSA(nil)
		assert.ErrorContains(t, err, "private key cannot be nil")
	})
}

func TestSignDigest(t *testing.T) {
	s := newTestSigner(t)

	t.Run("wrong length", func(t *testing.T) {
		_, err := s.SignDigest([]byte{1, 2, 3})
		assert.ErrorContains(t, err, "digest must be 32 bytes")
	})

	t.Run("v is evm compatible", func(t *testing.T) {
		for i := 0; i < 16; i++ {
			sig, err := s.SignDigest(crypto.Keccak256([]byte{byte(i)}))
			require.NoError(t, err)
			require.Len(t, sig, 65)
			assert.Contains(t, []byte{27, 28}, sig[64])
		}
	})
}

func TestSignPersonalRecovers(t *testing.T) {
	s := newTestSigner(t)
	msg := []byte("localhost wants you to sign in with your Ethereum account")

	sig, err := s.SignPersonal(msg)
	require.NoError(t, err)

	recoverable := append([]byte(nil), sig...)
	recoverable[64] -= 27
	pub, err := crypto.SigToPub(accounts.TextHash(msg), recoverable)
	require.NoError(t, err)
	assert.Equal(t, s.Address(), crypto.PubkeyToAddress(*pub))
	assert.Equal(t, crypto.FromECDSAPub(pub), s.PublicKey())

	_, err = s.SignPersonal(nil)
	assert.ErrorContains(t, err, "message cannot be empty")
}

func TestConcurrentSigning(t *testing.T) {
	s := newTestSigner(t)
	digest := crypto.Keccak256([]byte("concurrent"))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.SignDigest(digest)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
}
