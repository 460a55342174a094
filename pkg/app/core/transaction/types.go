package transaction

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/uhyunpark/hyperswap/pkg/app/core/exchange"
	"github.com/uhyunpark/hyperswap/pkg/vm"
)

// TxType represents the type of transaction
type TxType string

const (
	TxTypeMatch  TxType = "match"  // Match two orders (optionally signed by the matcher)
	TxTypeCancel TxType = "cancel" // Cancel an order (signed by its maker)
)

// SignedTransaction is a request relayed to the node over HTTP.
type SignedTransaction struct {
	Type   TxType         `json:"type"`
	Match  *MatchPayload  `json:"match,omitempty"`
	Cancel *CancelPayload `json:"cancel,omitempty"`

	// Hex-encoded EIP-712 signature (0x...). For a match it is the matcher's
	// and may be empty when no value is attached; the node then matches as
	// its own relayer account.
	Signature string `json:"signature,omitempty"`
}

// OrderPayload is an order as JSON. Integers are decimal strings, bytes are
// 0x-prefixed hex.
type OrderPayload struct {
	Registry        string `json:"registry"`
	Maker           string `json:"maker"`
	StaticTarget    string `json:"static_target"`
	StaticSelector  string `json:"static_selector"`  // 4 bytes
	StaticExtradata string `json:"static_extradata"` // may be "0x"
	MaximumFill     string `json:"maximum_fill"`
	ListingTime     string `json:"listing_time"`
	ExpirationTime  string `json:"expiration_time"` // "0" = never
	Salt            string `json:"salt"`
}

// CallPayload is the concrete call for one side of a match
type CallPayload struct {
	Target    string `json:"target"`
	HowToCall uint8  `json:"how_to_call"` // 0=call, 1=delegatecall
	Data      string `json:"data"`
}

// SidePayload is one order of a match. An empty signature means the order
// was approved on-ledger (or the matcher is its maker).
type SidePayload struct {
	Order     OrderPayload `json:"order"`
	Signature string       `json:"signature,omitempty"`
	Call      CallPayload  `json:"call"`
}

type MatchPayload struct {
	First    SidePayload `json:"first"`
	Second   SidePayload `json:"second"`
	Value    string      `json:"value,omitempty"`    // sent by the matcher, "0" if empty
	Metadata string      `json:"metadata,omitempty"` // bytes32
	Matcher  string      `json:"matcher,omitempty"`  // required with a signature
	Nonce    string      `json:"nonce,omitempty"`    // matcher nonce, required with a signature
}

// CancelPayload names the order to cancel; the maker signs
// CancelOrder(orderHash, maker).
type CancelPayload struct {
	Order OrderPayload `json:"order"`
}

func parseAddress(field, s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("invalid %s: %q", field, s)
	}
	return common.HexToAddress(s), nil
}

func parseBig(field, s string) (*big.Int, error) {
	if s == "" {
		return new(big.Int), nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("invalid %s: %q", field, s)
	}
	if v.BitLen() > 256 {
		return nil, fmt.Errorf("%s overflows uint256", field)
	}
	return v, nil
}

func parseBytes(field, s string) ([]byte, error) {
	if s == "" || s == "0x" {
		return []byte{}, nil
	}
	b, err := hexutil.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %w", field, err)
	}
	return b, nil
}

func parseHash(field, s string) (common.Hash, error) {
	if s == "" {
		return common.Hash{}, nil
	}
	b, err := hexutil.Decode(s)
	if err != nil || len(b) != 32 {
		return common.Hash{}, fmt.Errorf("invalid %s: %q", field, s)
	}
	return common.BytesToHash(b), nil
}

// ToOrder converts OrderPayload to exchange.Order
func (o *OrderPayload) ToOrder() (*exchange.Order, error) {
	var (
		out exchange.Order
		err error
	)
	if out.Registry, err = parseAddress("registry", o.Registry); err != nil {
		return nil, err
	}
	if out.Maker, err = parseAddress("maker", o.Maker); err != nil {
		return nil, err
	}
	if out.StaticTarget, err = parseAddress("static_target", o.StaticTarget); err != nil {
		return nil, err
	}
	sel, err := parseBytes("static_selector", o.StaticSelector)
	if err != nil {
		return nil, err
	}
	if len(sel) != 4 {
		return nil, fmt.Errorf("static_selector must be 4 bytes, got %d", len(sel))
	}
	copy(out.StaticSelector[:], sel)
	if out.StaticExtradata, err = parseBytes("static_extradata", o.StaticExtradata); err != nil {
		return nil, err
	}
	if out.MaximumFill, err = parseBig("maximum_fill", o.MaximumFill); err != nil {
		return nil, err
	}
	if out.ListingTime, err = parseBig("listing_time", o.ListingTime); err != nil {
		return nil, err
	}
	if out.ExpirationTime, err = parseBig("expiration_time", o.ExpirationTime); err != nil {
		return nil, err
	}
	if out.Salt, err = parseBig("salt", o.Salt); err != nil {
		return nil, err
	}
	return &out, nil
}

// FromOrder converts exchange.Order to OrderPayload
func FromOrder(o *exchange.Order) *OrderPayload {
	e := o.EIP712()
	return &OrderPayload{
		Registry:        e.Registry.Hex(),
		Maker:           e.Maker.Hex(),
		StaticTarget:    e.StaticTarget.Hex(),
		StaticSelector:  hexutil.Encode(e.StaticSelector[:]),
		StaticExtradata: hexutil.Encode(e.StaticExtradata),
		MaximumFill:     e.MaximumFill.String(),
		ListingTime:     e.ListingTime.String(),
		ExpirationTime:  e.ExpirationTime.String(),
		Salt:            e.Salt.String(),
	}
}

func (c *CallPayload) ToCall() (exchange.Call, error) {
	target, err := parseAddress("call target", c.Target)
	if err != nil {
		return exchange.Call{}, err
	}
	if c.HowToCall > uint8(vm.DelegateCall) {
		return exchange.Call{}, fmt.Errorf("invalid how_to_call: %d", c.HowToCall)
	}
	data, err := parseBytes("call data", c.Data)
	if err != nil {
		return exchange.Call{}, err
	}
	return exchange.Call{Target: target, HowToCall: vm.HowToCall(c.HowToCall), Data: data}, nil
}

func FromCall(c exchange.Call) CallPayload {
	return CallPayload{Target: c.Target.Hex(), HowToCall: uint8(c.HowToCall), Data: hexutil.Encode(c.Data)}
}

func (s *SidePayload) toSide() (exchange.Side, error) {
	order, err := s.Order.ToOrder()
	if err != nil {
		return exchange.Side{}, err
	}
	call, err := s.Call.ToCall()
	if err != nil {
		return exchange.Side{}, err
	}
	side := exchange.Side{Order: *order, Auth: exchange.PreApproved{}, Call: call}
	if s.Signature != "" {
		sig, err := parseBytes("order signature", s.Signature)
		if err != nil {
			return exchange.Side{}, err
		}
		side.Auth = exchange.Signature(sig)
	}
	return side, nil
}

// ToRequest converts MatchPayload to an exchange.MatchRequest
func (m *MatchPayload) ToRequest() (*exchange.MatchRequest, error) {
	first, err := m.First.toSide()
	if err != nil {
		return nil, fmt.Errorf("first: %w", err)
	}
	second, err := m.Second.toSide()
	if err != nil {
		return nil, fmt.Errorf("second: %w", err)
	}
	value, err := parseBig("value", m.Value)
	if err != nil {
		return nil, err
	}
	metadata, err := parseHash("metadata", m.Metadata)
	if err != nil {
		return nil, err
	}
	return &exchange.MatchRequest{First: first, Second: second, Value: value, Metadata: metadata}, nil
}

// NewMatchPayload builds the payload for req. Signatures are left to the
// caller.
func NewMatchPayload(req *exchange.MatchRequest) *MatchPayload {
	side := func(s *exchange.Side) SidePayload {
		p := SidePayload{Order: *FromOrder(&s.Order), Call: FromCall(s.Call)}
		if sig, ok := s.Auth.(exchange.Signature); ok {
			p.Signature = hexutil.Encode(sig)
		}
		return p
	}
	value := "0"
	if req.Value != nil {
		value = req.Value.String()
	}
	return &MatchPayload{
		First:    side(&req.First),
		Second:   side(&req.Second),
		Value:    value,
		Metadata: req.Metadata.Hex(),
	}
}

// Serialize converts SignedTransaction to JSON bytes
func (tx *SignedTransaction) Serialize() ([]byte, error) {
	return json.Marshal(tx)
}

// Deserialize parses JSON bytes into SignedTransaction
func Deserialize(data []byte) (*SignedTransaction, error) {
	var tx SignedTransaction
	if err := json.Unmarshal(data, &tx); err != nil {
		return nil, fmt.Errorf("failed to unmarshal transaction: %w", err)
	}
	return &tx, nil
}

// Validate performs basic validation on transaction structure
func (tx *SignedTransaction) Validate() error {
	if tx.Type == "" {
		return fmt.Errorf("missing transaction type")
	}

	switch tx.Type {
	case TxTypeMatch:
		if tx.Match == nil {
			return fmt.Errorf("match type requires match payload")
		}
		value, err := parseBig("value", tx.Match.Value)
		if err != nil {
			return err
		}
		if tx.Signature == "" {
			if value.Sign() > 0 {
				return fmt.Errorf("a match carrying value must be signed by its matcher")
			}
			return nil
		}
		if tx.Match.Matcher == "" {
			return fmt.Errorf("signed match requires matcher")
		}
		if tx.Match.Nonce == "" {
			return fmt.Errorf("signed match requires nonce")
		}

	case TxTypeCancel:
		if tx.Cancel == nil {
			return fmt.Errorf("cancel type requires cancel payload")
		}
		if tx.Cancel.Order.Maker == "" {
			return fmt.Errorf("missing cancel order maker")
		}
		if tx.Signature == "" {
			return fmt.Errorf("missing signature")
		}

	default:
		return fmt.Errorf("unknown transaction type: %s", tx.Type)
	}

	return nil
}

// ParseTransaction parses and validates a JSON transaction
func ParseTransaction(data []byte) (*SignedTransaction, error) {
	tx, err := Deserialize(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse transaction: %w", err)
	}
	if err := tx.Validate(); err != nil {
		return nil, fmt.Errorf("invalid transaction: %w", err)
	}
	return tx, nil
}

// Example formats for reference:

// Signed match:
//   {
//     "type": "match",
//     "match": {
//       "first":  {"order": {...}, "signature": "0x...", "call": {"target": "0x...", "how_to_call": 0, "data": "0x23b872dd..."}},
//       "second": {"order": {...}, "signature": "0x...", "call": {...}},
//       "value": "100",
//       "metadata": "0x0000...",
//       "matcher": "0x742d35Cc6634C0532925a3b844Bc9e7595f0bEb0",
//       "nonce": "0"
//     },
//     "signature": "0x1234567890abcdef..."
//   }

// Cancel:
//   {
//     "type": "cancel",
//     "cancel": {"order": {...}},
//     "signature": "0x..."
//   }
