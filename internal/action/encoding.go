package action

import (
	"fmt"
	"strings"

	gethAbi "github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"

	"github.com/trufnetwork/token-attester/internal/apestore"
)

// ReservedSocials fills the socials field until socials are parsed.
const ReservedSocials = "[]"

const attestABIJSON = `[{
  "type": "function",
  "name": "attest",
  "stateMutability": "nonpayable",
  "inputs": [
    {
      "name": "attestation",
      "type": "tuple",
      "internalType": "struct Attestation",
      "components": [
        {"name": "schemaId", "type": "uint64"},
        {"name": "linkedAttestationId", "type": "uint64"},
        {"name": "attestTimestamp", "type": "uint64"},
        {"name": "revokeTimestamp", "type": "uint64"},
        {"name": "attester", "type": "address"},
        {"name": "validUntil", "type": "uint64"},
        {"name": "dataLocation", "type": "uint8", "internalType": "enum DataLocation"},
        {"name": "revoked", "type": "bool"},
        {"name": "recipients", "type": "bytes[]"},
        {"name": "data", "type": "bytes"}
      ]
    },
    {"name": "indexingKey", "type": "string"},
    {"name": "delegateSignature", "type": "bytes"},
    {"name": "extraData", "type": "bytes"}
  ],
  "outputs": [{"name": "", "type": "uint64"}]
}]`

var (
	schemaDataArgs gethAbi.Arguments
	attestABI      gethAbi.ABI
)

func init() {
	addressType, err := gethAbi.NewType("address", "", nil)
	if err != nil {
		panic(fmt.Sprintf("action: failed to initialise address ABI type: %v", err))
	}
	stringType, err := gethAbi.NewType("string", "", nil)
	if err != nil {
		panic(fmt.Sprintf("action: failed to initialise string ABI type: %v", err))
	}
	schemaDataArgs = gethAbi.Arguments{
		{Type: addressType},
		{Type: stringType},
		{Type: stringType},
		{Type: stringType},
		{Type: stringType},
	}

	attestABI, err = gethAbi.JSON(strings.NewReader(attestABIJSON))
	if err != nil {
		panic(fmt.Sprintf("action: failed to parse attest ABI: %v", err))
	}
}

// SchemaData is the payload of a token metadata attestation, positional as
// (address, description, iconUrl, website, socials).
type SchemaData struct {
	Subject     common.Address
	Description string
	IconURL     string
	Website     string
	Socials     string
}

// Attestation mirrors the registry's Attestation struct. Field names follow
// the ABI component names so unpacked tuples convert directly.
type Attestation struct {
	SchemaId            uint64
	LinkedAttestationId uint64
	AttestTimestamp     uint64
	RevokeTimestamp     uint64
	Attester            common.Address
	ValidUntil          uint64
	DataLocation        uint8
	Revoked             bool
	Recipients          [][]byte
	Data                []byte
}

// AttestCall is a decoded attest(...) invocation.
type AttestCall struct {
	Attestation       Attestation
	IndexingKey       string
	DelegateSignature []byte
	ExtraData         []byte
}

// ResolveIconURL maps an ipfs:// logo onto the HTTP gateway. Any other
// value, https included, resolves to the empty string.
func ResolveIconURL(logo, gateway string) string {
	const scheme = "ipfs://"
	if !strings.HasPrefix(logo, scheme) {
		return ""
	}
	if gateway == "" {
		gateway = DefaultIPFSGateway
	}
	return gateway + strings.TrimPrefix(logo, scheme)
}

// ExtractFields builds the attestation payload for a normalized subject
// address from its token metadata.
func ExtractFields(address string, token *apestore.Token, gateway string) SchemaData {
	data := SchemaData{
		Subject: common.HexToAddress(address),
		Socials: ReservedSocials,
	}
	if token == nil {
		return data
	}
	data.Description = token.Description
	data.IconURL = ResolveIconURL(token.Logo, gateway)
	data.Website = token.Website
	return data
}

// EncodeSchemaData ABI-encodes the payload with the fixed five-field layout.
func EncodeSchemaData(d SchemaData) ([]byte, error) {
	out, err := schemaDataArgs.Pack(d.Subject, d.Description, d.IconURL, d.Website, d.Socials)
	if err != nil {
		return nil, errors.Wrap(err, "encode schema data")
	}
	return out, nil
}

// DecodeSchemaData reverses EncodeSchemaData.
func DecodeSchemaData(raw []byte) (SchemaData, error) {
	values, err := schemaDataArgs.Unpack(raw)
	if err != nil {
		return SchemaData{}, errors.Wrap(err, "decode schema data")
	}
	if len(values) != 5 {
		return SchemaData{}, errors.Errorf("decode schema data: expected 5 values, got %d", len(values))
	}

	var d SchemaData
	var ok bool
	if d.Subject, ok = values[0].(common.Address); !ok {
		return SchemaData{}, errors.Errorf("decode schema data: subject has type %T", values[0])
	}
	strs := make([]string, 4)
	for i := range strs {
		if strs[i], ok = values[i+1].(string); !ok {
			return SchemaData{}, errors.Errorf("decode schema data: field %d has type %T", i+1, values[i+1])
		}
	}
	d.Description, d.IconURL, d.Website, d.Socials = strs[0], strs[1], strs[2], strs[3]
	return d, nil
}

// NewAttestation fills the fixed attestation metadata around payload:
// open-ended validity, not revoked, no recipients, on-chain data.
func NewAttestation(schemaID uint64, attester common.Address, payload []byte) Attestation {
	return Attestation{
		SchemaId:   schemaID,
		Attester:   attester,
		Recipients: [][]byte{},
		Data:       payload,
	}
}

// EncodeAttestCall builds the calldata of attest(attestation, indexingKey, 0x, 0x).
func EncodeAttestCall(att Attestation, indexingKey string) ([]byte, error) {
	if att.Recipients == nil {
		att.Recipients = [][]byte{}
	}
	out, err := attestABI.Pack("attest", att, indexingKey, []byte{}, []byte{})
	if err != nil {
		return nil, errors.Wrap(err, "encode attest call")
	}
	return out, nil
}

// DecodeAttestCall parses attest calldata, selector included.
func DecodeAttestCall(calldata []byte) (*AttestCall, error) {
	method := attestABI.Methods["attest"]
	if len(calldata) < 4 || string(calldata[:4]) != string(method.ID) {
		return nil, errors.New("calldata is not an attest call")
	}

	values, err := method.Inputs.Unpack(calldata[4:])
	if err != nil {
		return nil, errors.Wrap(err, "decode attest call")
	}
	if len(values) != 4 {
		return nil, errors.Errorf("decode attest call: expected 4 values, got %d", len(values))
	}

	call := &AttestCall{
		Attestation: *gethAbi.ConvertType(values[0], new(Attestation)).(*Attestation),
	}
	var ok bool
	if call.IndexingKey, ok = values[1].(string); !ok {
		return nil, errors.Errorf("decode attest call: indexing key has type %T", values[1])
	}
	if call.DelegateSignature, ok = values[2].([]byte); !ok {
		return nil, errors.Errorf("decode attest call: delegate signature has type %T", values[2])
	}
	if call.ExtraData, ok = values[3].([]byte); !ok {
		return nil, errors.Errorf("decode attest call: extra data has type %T", values[3])
	}
	return call, nil
}
