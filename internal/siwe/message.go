// Package siwe builds EIP-4361 sign-in messages carrying ReCap capability
// resources, the form the key-management network expects when a wallet
// delegates abilities to a session key.
package siwe

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
)

const (
	DefaultDomain    = "localhost"
	DefaultStatement = "Authorize the token attester session."
	Version          = "1"

	recapPrefix = "urn:recap:"
)

// Capability grants one namespaced ability over a resource, for example
// Threshold/Execution over lit-litaction://*.
type Capability struct {
	Resource  string
	Namespace string
	Name      string
}

func (c Capability) ability() string {
	return c.Namespace + "/" + c.Name
}

// Message is an EIP-4361 message. Capabilities are rendered as a single
// urn:recap resource and summarized in the statement.
type Message struct {
	Domain         string
	Address        common.Address
	Statement      string
	URI            string
	ChainID        uint64
	Nonce          string
	IssuedAt       time.Time
	ExpirationTime time.Time
	Capabilities   []Capability
}

// Validate checks the fields every message must carry.
func (m *Message) Validate() error {
	switch {
	case m.URI == "":
		return errors.New("siwe: uri is required")
	case m.Nonce == "":
		return errors.New("siwe: nonce is required")
	case m.Address == (common.Address{}):
		return errors.New("siwe: address is required")
	case m.ExpirationTime.IsZero():
		return errors.New("siwe: expiration is required")
	case !m.IssuedAt.IsZero() && !m.ExpirationTime.After(m.IssuedAt):
		return errors.New("siwe: expiration must be after issued at")
	}
	return nil
}

// String renders the message in the exact line layout of EIP-4361.
func (m *Message) String() string {
	domain := m.Domain
	if domain == "" {
		domain = DefaultDomain
	}
	chainID := m.ChainID
	if chainID == 0 {
		chainID = 1
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s wants you to sign in with your Ethereum account:\n", domain)
	b.WriteString(m.Address.Hex())
	b.WriteString("\n\n")

	statement := m.Statement
	if len(m.Capabilities) > 0 {
		statement = strings.TrimSpace(statement + " " + capabilityStatement(m.Capabilities))
	}
	if statement != "" {
		b.WriteString(statement)
		b.WriteString("\n\n")
	}

	fmt.Fprintf(&b, "URI: %s\n", m.URI)
	fmt.Fprintf(&b, "Version: %s\n", Version)
	fmt.Fprintf(&b, "Chain ID: %d\n", chainID)
	fmt.Fprintf(&b, "Nonce: %s\n", m.Nonce)
	fmt.Fprintf(&b, "Issued At: %s", formatTime(m.IssuedAt))
	if !m.ExpirationTime.IsZero() {
		fmt.Fprintf(&b, "\nExpiration Time: %s", formatTime(m.ExpirationTime))
	}
	if len(m.Capabilities) > 0 {
		b.WriteString("\nResources:\n- ")
		b.WriteString(EncodeRecap(m.Capabilities))
	}
	return b.String()
}

func formatTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}

type recapDoc struct {
	Att map[string]map[string][]map[string]any `json:"att"`
	Prf []string                               `json:"prf"`
}

// EncodeRecap renders capabilities as a urn:recap URI (base64url JSON, no
// padding). Keys are emitted sorted so the output is stable.
func EncodeRecap(caps []Capability) string {
	doc := recapDoc{Att: map[string]map[string][]map[string]any{}, Prf: []string{}}
	for _, c := range caps {
		if doc.Att[c.Resource] == nil {
			doc.Att[c.Resource] = map[string][]map[string]any{}
		}
		doc.Att[c.Resource][c.ability()] = []map[string]any{{}}
	}
	raw, _ := json.Marshal(doc)
	return recapPrefix + base64.RawURLEncoding.EncodeToString(raw)
}

// DecodeRecap parses a urn:recap URI back into capabilities, ordered by
// resource then ability.
func DecodeRecap(uri string) ([]Capability, error) {
	if !strings.HasPrefix(uri, recapPrefix) {
		return nil, errors.Errorf("siwe: not a recap uri: %q", uri)
	}
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimPrefix(uri, recapPrefix))
	if err != nil {
		return nil, errors.Wrap(err, "siwe: decode recap")
	}
	var doc recapDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, errors.Wrap(err, "siwe: parse recap")
	}

	var caps []Capability
	for resource, abilities := range doc.Att {
		for ability := range abilities {
			ns, name, ok := strings.Cut(ability, "/")
			if !ok {
				return nil, errors.Errorf("siwe: malformed ability %q", ability)
			}
			caps = append(caps, Capability{Resource: resource, Namespace: ns, Name: name})
		}
	}
	sortCapabilities(caps)
	return caps, nil
}

func capabilityStatement(caps []Capability) string {
	sorted := append([]Capability(nil), caps...)
	sortCapabilities(sorted)

	parts := make([]string, len(sorted))
	for i, c := range sorted {
		parts[i] = fmt.Sprintf("(%d) '%s': '%s' for '%s'.", i+1, c.Namespace, c.Name, c.Resource)
	}
	return "I further authorize the stated URI to perform the following actions on my behalf: " + strings.Join(parts, " ")
}

func sortCapabilities(caps []Capability) {
	sort.Slice(caps, func(i, j int) bool {
		if caps[i].Resource != caps[j].Resource {
			return caps[i].Resource < caps[j].Resource
		}
		return caps[i].ability() < caps[j].ability()
	})
}
