package lit

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	storageKeySessionKey = "lit-session-key"
	storageKeyWalletSig  = "lit-wallet-sig"

	// A cached wallet signature is reused only if it stays valid at least
	// this long.
	walletSigMinRemaining = time.Minute
)

type storedSessionKey struct {
	PublicKey string `json:"publicKey"`
	SecretKey string `json:"secretKey"`
}

type storedWalletSig struct {
	AuthSig                 AuthSig                  `json:"authSig"`
	SessionKeyURI           string                   `json:"sessionKeyUri"`
	ResourceAbilityRequests []ResourceAbilityRequest `json:"resourceAbilityRequests"`
	Expiration              time.Time                `json:"expiration"`
}

// SessionSigs returns one session credential per node, signed by a session
// key the wallet has delegated to. The AuthSigner is asked for a fresh
// wallet signature only when no cached one covers the request.
func (c *Client) SessionSigs(ctx context.Context, req SessionSigsRequest, auth AuthSigner) (SessionSigs, error) {
	if !c.Ready() {
		return nil, ErrNotReady
	}
	if auth == nil {
		return nil, errors.Wrap(ErrAuth, "no auth signer")
	}
	if len(req.ResourceAbilityRequests) == 0 {
		return nil, errors.New("at least one resource ability request is required")
	}
	now := c.now().UTC()
	if !req.Expiration.After(now) {
		return nil, errors.Errorf("expiration %s is not in the future", req.Expiration.Format(time.RFC3339))
	}

	pub, priv, err := c.sessionKey(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "load session key")
	}
	sessionKeyURI := SessionKeyURIPrefix + hex.EncodeToString(pub)

	walletSig, cached, err := c.walletSig(ctx, req, sessionKeyURI, auth)
	if err != nil {
		return nil, err
	}
	c.metrics.RecordSessionAuth(ctx, cached)

	sigs := make(SessionSigs, len(c.cfg.NodeURLs))
	for _, nodeURL := range c.ConnectedNodes() {
		payload := sessionPayload{
			SessionKey:              hex.EncodeToString(pub),
			ResourceAbilityRequests: req.ResourceAbilityRequests,
			Capabilities:            []AuthSig{*walletSig},
			IssuedAt:                formatTime(now),
			Expiration:              formatTime(req.Expiration),
			NodeAddress:             nodeURL,
		}
		msg, err := json.Marshal(payload)
		if err != nil {
			return nil, errors.Wrap(err, "encode session payload")
		}
		sigs[nodeURL] = SessionSig{
			Sig:           hex.EncodeToString(ed25519.Sign(priv, msg)),
			DerivedVia:    derivedViaSessionSig,
			SignedMessage: string(msg),
			Address:       hex.EncodeToString(pub),
			Algo:          algoEd25519,
		}
	}

	c.logger.Debug("session signatures ready",
		zap.Int("nodes", len(sigs)),
		zap.Bool("wallet_sig_cached", cached),
		zap.Time("expiration", req.Expiration))
	return sigs, nil
}

func (c *Client) sessionKey(ctx context.Context) (ed25519.PublicKey, ed25519.PrivateKey, error) {
	raw, ok, err := c.cfg.Storage.Get(ctx, storageKeySessionKey)
	if err != nil {
		return nil, nil, err
	}
	if ok {
		var stored storedSessionKey
		if err := json.Unmarshal([]byte(raw), &stored); err == nil {
			secret, decErr := hex.DecodeString(stored.SecretKey)
			if decErr == nil && len(secret) == ed25519.PrivateKeySize {
				priv := ed25519.PrivateKey(secret)
				return priv.Public().(ed25519.PublicKey), priv, nil
			}
		}
		c.logger.Warn("discarding unreadable session key")
	}

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, errors.Wrap(err, "generate session key")
	}
	encoded, err := json.Marshal(storedSessionKey{
		PublicKey: hex.EncodeToString(pub),
		SecretKey: hex.EncodeToString(priv),
	})
	if err != nil {
		return nil, nil, err
	}
	if err := c.cfg.Storage.Set(ctx, storageKeySessionKey, string(encoded)); err != nil {
		return nil, nil, err
	}
	// A new session key invalidates any delegation to the old one.
	if err := c.cfg.Storage.Delete(ctx, storageKeyWalletSig); err != nil {
		return nil, nil, err
	}
	return pub, priv, nil
}

func (c *Client) walletSig(ctx context.Context, req SessionSigsRequest, uri string, auth AuthSigner) (*AuthSig, bool, error) {
	if sig := c.cachedWalletSig(ctx, req, uri); sig != nil {
		return sig, true, nil
	}

	sig, err := auth.SignAuth(ctx, AuthCallbackParams{
		ResourceAbilityRequests: req.ResourceAbilityRequests,
		Expiration:              req.Expiration,
		URI:                     uri,
	})
	if err != nil {
		return nil, false, &KindError{Kind: ErrAuth, Op: "sign session authorization", Err: err}
	}
	if sig == nil || sig.Sig == "" || sig.SignedMessage == "" {
		return nil, false, errors.Wrap(ErrAuth, "auth signer returned an empty signature")
	}

	encoded, err := json.Marshal(storedWalletSig{
		AuthSig:                 *sig,
		SessionKeyURI:           uri,
		ResourceAbilityRequests: req.ResourceAbilityRequests,
		Expiration:              req.Expiration.UTC(),
	})
	if err == nil {
		err = c.cfg.Storage.Set(ctx, storageKeyWalletSig, string(encoded))
	}
	if err != nil {
		c.logger.Warn("failed to cache wallet signature", zap.Error(err))
	}
	return sig, false, nil
}

func (c *Client) cachedWalletSig(ctx context.Context, req SessionSigsRequest, uri string) *AuthSig {
	raw, ok, err := c.cfg.Storage.Get(ctx, storageKeyWalletSig)
	if err != nil || !ok {
		return nil
	}
	var stored storedWalletSig
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		return nil
	}
	if stored.SessionKeyURI != uri {
		return nil
	}
	if stored.Expiration.Before(c.now().Add(walletSigMinRemaining)) {
		return nil
	}
	if !covers(stored.ResourceAbilityRequests, req.ResourceAbilityRequests) {
		return nil
	}
	return &stored.AuthSig
}

// covers reports whether every wanted request is granted by have.
func covers(have, want []ResourceAbilityRequest) bool {
	set := make(map[ResourceAbilityRequest]struct{}, len(have))
	for _, r := range have {
		set[r] = struct{}{}
	}
	for _, r := range want {
		if _, ok := set[r]; !ok {
			return false
		}
	}
	return true
}

func formatTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}
