package lit

import (
	"context"
	"encoding/json"
	"time"
)

const (
	// LitActionResource is the wildcard resource covering every action.
	LitActionResource = "lit-litaction://*"
	// AbilityLitActionExecution allows running actions on the network.
	AbilityLitActionExecution = "lit-action-execution"

	// SessionKeyURIPrefix prefixes the hex public key of a session key.
	SessionKeyURIPrefix = "lit:session:"

	DerivedViaPersonalSign = "web3.eth.personal.sign"
	derivedViaSessionSig   = "litSessionSignViaNacl"
	algoEd25519            = "ed25519"
)

// ResourceAbilityRequest asks for one ability over one resource.
type ResourceAbilityRequest struct {
	Resource string `json:"resource"`
	Ability  string `json:"ability"`
}

// AuthCallbackParams is what the network needs signed by the wallet.
type AuthCallbackParams struct {
	ResourceAbilityRequests []ResourceAbilityRequest
	Expiration              time.Time
	// URI is the session key URI the wallet delegates to.
	URI string
}

// AuthSig is a wallet signature over a sign-in message.
type AuthSig struct {
	Sig           string `json:"sig"`
	DerivedVia    string `json:"derivedVia"`
	SignedMessage string `json:"signedMessage"`
	Address       string `json:"address"`
	Algo          string `json:"algo,omitempty"`
}

// AuthSigner produces the wallet authorization when the network asks for
// one. Implementations must be free of side effects beyond signing; they
// may be invoked zero or more times per session request.
type AuthSigner interface {
	SignAuth(ctx context.Context, params AuthCallbackParams) (*AuthSig, error)
}

// AuthSignerFunc adapts a function to AuthSigner.
type AuthSignerFunc func(ctx context.Context, params AuthCallbackParams) (*AuthSig, error)

func (f AuthSignerFunc) SignAuth(ctx context.Context, params AuthCallbackParams) (*AuthSig, error) {
	return f(ctx, params)
}

// SessionSig is a per-node session credential signed by the session key.
type SessionSig struct {
	Sig           string `json:"sig"`
	DerivedVia    string `json:"derivedVia"`
	SignedMessage string `json:"signedMessage"`
	Address       string `json:"address"`
	Algo          string `json:"algo"`
}

// SessionSigs maps node URL to its session credential.
type SessionSigs map[string]SessionSig

// SessionSigsRequest scopes a session credential.
type SessionSigsRequest struct {
	Chain                   string
	Expiration              time.Time
	ResourceAbilityRequests []ResourceAbilityRequest
}

// sessionPayload is the message each session signature covers.
type sessionPayload struct {
	SessionKey              string                   `json:"sessionKey"`
	ResourceAbilityRequests []ResourceAbilityRequest `json:"resourceAbilityRequests"`
	Capabilities            []AuthSig                `json:"capabilities"`
	IssuedAt                string                   `json:"issuedAt"`
	Expiration              string                   `json:"expiration"`
	NodeAddress             string                   `json:"nodeAddress"`
}

// ExecuteRequest runs code on the network.
type ExecuteRequest struct {
	Code        string
	JSParams    map[string]any
	SessionSigs SessionSigs
}

// ExecuteResponse is the consensus result of an execution.
type ExecuteResponse struct {
	Success bool `json:"success"`
	// Response is whatever the action set as its response; empty when the
	// action set none.
	Response   string                     `json:"response"`
	Logs       string                     `json:"logs"`
	Error      string                     `json:"error,omitempty"`
	SignedData map[string]json.RawMessage `json:"signedData,omitempty"`
	// Nodes is how many nodes agreed on this response.
	Nodes int `json:"-"`
}

type handshakeRequest struct {
	ClientPublicKey string `json:"clientPublicKey"`
	Challenge       string `json:"challenge"`
}

type handshakeResponse struct {
	ServerPublicKey  string `json:"serverPublicKey"`
	SubnetPublicKey  string `json:"subnetPublicKey"`
	NetworkPublicKey string `json:"networkPublicKey"`
	LatestBlockhash  string `json:"latestBlockhash"`
	NodeVersion      string `json:"nodeVersion,omitempty"`
}

type executeRequestBody struct {
	Code     string         `json:"code"`
	JSParams map[string]any `json:"jsParams"`
	AuthSig  SessionSig     `json:"authSig"`
}
