package crypto

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// EIP712Domain represents the domain separator for EIP-712 typed data.
// VerifyingContract is the exchange address, so a signature never carries
// over to another exchange or chain.
type EIP712Domain struct {
	Name              string
	Version           string
	ChainID           *big.Int
	VerifyingContract common.Address
}

// OrderEIP712 is the order struct makers sign.
type OrderEIP712 struct {
	Registry        common.Address
	Maker           common.Address
	StaticTarget    common.Address
	StaticSelector  [4]byte
	StaticExtradata []byte
	MaximumFill     *big.Int
	ListingTime     *big.Int
	ExpirationTime  *big.Int
	Salt            *big.Int
}

// CancelEIP712 is a maker's request, relayed over HTTP, to cancel an order.
type CancelEIP712 struct {
	OrderHash common.Hash
	Maker     common.Address
}

// CallEIP712 is one side's concrete call; only the keccak of Data is signed.
type CallEIP712 struct {
	Target    common.Address
	HowToCall uint8
	Data      []byte
}

// MatchEIP712 is a matcher's request, relayed over HTTP, to match two orders
// with the given calls.
type MatchEIP712 struct {
	FirstHash  common.Hash
	SecondHash common.Hash
	FirstCall  CallEIP712
	SecondCall CallEIP712
	Value      *big.Int
	Metadata   common.Hash
	Nonce      *big.Int
}

var domainType = []apitypes.Type{
	{Name: "name", Type: "string"},
	{Name: "version", Type: "string"},
	{Name: "chainId", Type: "uint256"},
	{Name: "verifyingContract", Type: "address"},
}

var orderType = []apitypes.Type{
	{Name: "registry", Type: "address"},
	{Name: "maker", Type: "address"},
	{Name: "staticTarget", Type: "address"},
	{Name: "staticSelector", Type: "bytes4"},
	{Name: "staticExtradata", Type: "bytes"},
	{Name: "maximumFill", Type: "uint256"},
	{Name: "listingTime", Type: "uint256"},
	{Name: "expirationTime", Type: "uint256"},
	{Name: "salt", Type: "uint256"},
}

var cancelType = []apitypes.Type{
	{Name: "orderHash", Type: "bytes32"},
	{Name: "maker", Type: "address"},
}

var matchType = []apitypes.Type{
	{Name: "firstHash", Type: "bytes32"},
	{Name: "secondHash", Type: "bytes32"},
	{Name: "firstCall", Type: "Call"},
	{Name: "secondCall", Type: "Call"},
	{Name: "value", Type: "uint256"},
	{Name: "metadata", Type: "bytes32"},
	{Name: "nonce", Type: "uint256"},
}

var callType = []apitypes.Type{
	{Name: "target", Type: "address"},
	{Name: "howToCall", Type: "uint8"},
	{Name: "dataHash", Type: "bytes32"},
}

// structDeps lists the struct types a primary type refers to.
var structDeps = map[string]apitypes.Types{
	"Match": {"Call": callType},
}

// EIP712Signer hashes the exchange's typed data under one domain.
type EIP712Signer struct {
	domain EIP712Domain
}

func NewEIP712Signer(domain EIP712Domain) *EIP712Signer {
	return &EIP712Signer{domain: domain}
}

func (e *EIP712Signer) Domain() EIP712Domain {
	return e.domain
}

func (e *EIP712Signer) typedData(primary string, fields []apitypes.Type, msg apitypes.TypedDataMessage) apitypes.TypedData {
	types := apitypes.Types{
		"EIP712Domain": domainType,
		primary:        fields,
	}
	for name, dep := range structDeps[primary] {
		types[name] = dep
	}
	return apitypes.TypedData{
		Types:       types,
		PrimaryType: primary,
		Domain: apitypes.TypedDataDomain{
			Name:              e.domain.Name,
			Version:           e.domain.Version,
			ChainId:           (*math.HexOrDecimal256)(e.domain.ChainID),
			VerifyingContract: e.domain.VerifyingContract.Hex(),
		},
		Message: msg,
	}
}

func (e *EIP712Signer) hash(primary string, fields []apitypes.Type, msg apitypes.TypedDataMessage) (common.Hash, error) {
	typedData := e.typedData(primary, fields, msg)

	domainSeparator, err := typedData.HashStruct("EIP712Domain", typedData.Domain.Map())
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to hash domain: %w", err)
	}
	typedDataHash, err := typedData.HashStruct(typedData.PrimaryType, typedData.Message)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to hash message: %w", err)
	}

	// keccak256("\x19\x01" || domainSeparator || typedDataHash)
	return crypto.Keccak256Hash([]byte("\x19\x01"), domainSeparator, typedDataHash), nil
}

// DomainSeparator returns the hash of the domain struct.
func (e *EIP712Signer) DomainSeparator() (common.Hash, error) {
	typedData := e.typedData("Order", orderType, nil)
	sep, err := typedData.HashStruct("EIP712Domain", typedData.Domain.Map())
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to hash domain: %w", err)
	}
	return common.BytesToHash(sep), nil
}

func orderMessage(order *OrderEIP712) apitypes.TypedDataMessage {
	return apitypes.TypedDataMessage{
		"registry":        order.Registry.Hex(),
		"maker":           order.Maker.Hex(),
		"staticTarget":    order.StaticTarget.Hex(),
		"staticSelector":  hexutil.Encode(order.StaticSelector[:]),
		"staticExtradata": hexutil.Encode(order.StaticExtradata),
		"maximumFill":     bigString(order.MaximumFill),
		"listingTime":     bigString(order.ListingTime),
		"expirationTime":  bigString(order.ExpirationTime),
		"salt":            bigString(order.Salt),
	}
}

// HashOrder returns the order's EIP-712 digest, which is also its identity.
func (e *EIP712Signer) HashOrder(order *OrderEIP712) (common.Hash, error) {
	return e.hash("Order", orderType, orderMessage(order))
}

// SignOrder signs an order's EIP-712 digest.
func (e *EIP712Signer) SignOrder(signer *Signer, order *OrderEIP712) ([]byte, error) {
	hash, err := e.HashOrder(order)
	if err != nil {
		return nil, fmt.Errorf("failed to hash order: %w", err)
	}
	signature, err := signer.Sign(hash.Bytes())
	if err != nil {
		return nil, fmt.Errorf("failed to sign order: %w", err)
	}
	return signature, nil
}

func (e *EIP712Signer) HashCancel(cancel *CancelEIP712) (common.Hash, error) {
	return e.hash("CancelOrder", cancelType, apitypes.TypedDataMessage{
		"orderHash": cancel.OrderHash.Hex(),
		"maker":     cancel.Maker.Hex(),
	})
}

// RecoverCancelSigner recovers the address that signed a cancel request.
func (e *EIP712Signer) RecoverCancelSigner(cancel *CancelEIP712, signature []byte) (common.Address, error) {
	hash, err := e.HashCancel(cancel)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to hash cancel: %w", err)
	}
	return RecoverAddress(hash.Bytes(), signature)
}

func (e *EIP712Signer) HashMatch(match *MatchEIP712) (common.Hash, error) {
	return e.hash("Match", matchType, apitypes.TypedDataMessage{
		"firstHash":  match.FirstHash.Hex(),
		"secondHash": match.SecondHash.Hex(),
		"firstCall":  callMessage(match.FirstCall),
		"secondCall": callMessage(match.SecondCall),
		"value":      bigString(match.Value),
		"metadata":   match.Metadata.Hex(),
		"nonce":      bigString(match.Nonce),
	})
}

func callMessage(c CallEIP712) map[string]interface{} {
	return map[string]interface{}{
		"target":    c.Target.Hex(),
		"howToCall": fmt.Sprint(c.HowToCall),
		"dataHash":  crypto.Keccak256Hash(c.Data).Hex(),
	}
}

// RecoverMatchSigner recovers the address that signed a match request.
func (e *EIP712Signer) RecoverMatchSigner(match *MatchEIP712, signature []byte) (common.Address, error) {
	hash, err := e.HashMatch(match)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to hash match: %w", err)
	}
	return RecoverAddress(hash.Bytes(), signature)
}

// OrderToJSON renders an order as eth_signTypedData_v4 input for wallets.
func (e *EIP712Signer) OrderToJSON(order *OrderEIP712) (string, error) {
	typedData := e.typedData("Order", orderType, orderMessage(order))
	jsonBytes, err := json.MarshalIndent(typedData, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return string(jsonBytes), nil
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
