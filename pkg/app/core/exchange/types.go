package exchange

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/hyperswap/pkg/crypto"
	"github.com/uhyunpark/hyperswap/pkg/vm"
)

// Order is what a maker signs: which registry's proxy may act, and which
// predicate decides what calls it may make.
type Order struct {
	Registry        common.Address
	Maker           common.Address
	StaticTarget    common.Address
	StaticSelector  [4]byte
	StaticExtradata []byte
	MaximumFill     *big.Int
	ListingTime     *big.Int
	ExpirationTime  *big.Int // 0 = never
	Salt            *big.Int
}

// EIP712 is o in the shape the typed-data hasher takes.
func (o *Order) EIP712() *crypto.OrderEIP712 {
	return &crypto.OrderEIP712{
		Registry:        o.Registry,
		Maker:           o.Maker,
		StaticTarget:    o.StaticTarget,
		StaticSelector:  o.StaticSelector,
		StaticExtradata: o.StaticExtradata,
		MaximumFill:     orZero(o.MaximumFill),
		ListingTime:     orZero(o.ListingTime),
		ExpirationTime:  orZero(o.ExpirationTime),
		Salt:            orZero(o.Salt),
	}
}

// Call is the concrete call a proxy runs for one side of a match.
type Call struct {
	Target    common.Address
	HowToCall vm.HowToCall
	Data      []byte
}

// Authorization is how a maker vouches for an order: a Signature, or
// PreApproved when the order hash was approved on-ledger.
type Authorization interface {
	isAuthorization()
}

// Signature is a 65-byte ECDSA signature, or arbitrary bytes for contract
// makers that validate signatures themselves.
type Signature []byte

// PreApproved defers to an earlier ApproveOrder / ApproveOrderHash.
type PreApproved struct{}

func (Signature) isAuthorization()   {}
func (PreApproved) isAuthorization() {}

// Side is one order of a match with its authorization and call.
type Side struct {
	Order Order
	Auth  Authorization
	Call  Call
}

type MatchRequest struct {
	First  Side
	Second Side
	// Value is sent by the matcher and forwarded in full to First's maker.
	Value    *big.Int
	Metadata common.Hash
}

// OrdersMatched describes a committed match.
type OrdersMatched struct {
	FirstHash     common.Hash
	SecondHash    common.Hash
	FirstMaker    common.Address
	SecondMaker   common.Address
	NewFirstFill  *big.Int
	NewSecondFill *big.Int
	Metadata      common.Hash
	Matcher       common.Address
	Value         *big.Int
	Timestamp     int64
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
