// Package static implements predicate libraries: read-only contracts an order
// names to decide whether a concrete call (and its counter-call) is one the
// maker agreed to.
//
// Two predicate shapes exist. A dual predicate sees both calls and returns
// the fill the match consumes:
//
//	name(bytes extra, address[7] addresses, uint8[2] howToCalls, uint256[6] uints, bytes data, bytes counterdata) returns (uint256)
//
// A single predicate checks one call and returns nothing:
//
//	name(bytes extra, address[7] addresses, uint8 howToCall, uint256[6] uints, bytes data)
//
// addresses is [registry, maker, callTarget, counterRegistry, counterMaker,
// counterCallTarget, matcher]; uints is [value, maximumFill, listingTime,
// expirationTime, counterListingTime, previousFill]. A predicate rejects by
// returning an error.
package static

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/hyperswap/pkg/vm"
)

const (
	dualSig   = "(bytes,address[7],uint8[2],uint256[6],bytes,bytes)"
	singleSig = "(bytes,address[7],uint8,uint256[6],bytes)"
)

// Address vector positions.
const (
	AddrRegistry = iota
	AddrMaker
	AddrCallTarget
	AddrCounterRegistry
	AddrCounterMaker
	AddrCounterCallTarget
	AddrMatcher
)

// Uint vector positions.
const (
	UintValue = iota
	UintMaximumFill
	UintListingTime
	UintExpirationTime
	UintCounterListingTime
	UintPreviousFill
)

var (
	dualArgs   = vm.MustArguments("bytes", "address[7]", "uint8[2]", "uint256[6]", "bytes", "bytes")
	singleArgs = vm.MustArguments("bytes", "address[7]", "uint8", "uint256[6]", "bytes")
	uintReturn = vm.MustArguments("uint256")
	initArgs   = vm.MustArguments("address")
)

var ErrPredicateFailed = errors.New("static: predicate rejected call")

func reject(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrPredicateFailed, fmt.Sprintf(format, args...))
}

// Dual is the argument set of a dual predicate.
type Dual struct {
	Extra       []byte
	Addresses   [7]common.Address
	HowToCalls  [2]vm.HowToCall
	Uints       [6]*big.Int
	Data        []byte
	Counterdata []byte
}

// Single is the argument set of a single predicate.
type Single struct {
	Extra     []byte
	Addresses [7]common.Address
	HowToCall vm.HowToCall
	Uints     [6]*big.Int
	Data      []byte
}

type (
	DualFunc   func(env *vm.Env, in *Dual) (*big.Int, error)
	SingleFunc func(env *vm.Env, in *Single) error
	RawFunc    func(env *vm.Env, input []byte) ([]byte, error)
)

func DualSelector(name string) [4]byte   { return vm.Selector(name + dualSig) }
func SingleSelector(name string) [4]byte { return vm.Selector(name + singleSig) }

// Library is a predicate contract: a dispatch table from selector to Go
// function. Tables are filled before the library is registered on a machine
// and never change afterwards.
type Library struct {
	dual   map[[4]byte]DualFunc
	single map[[4]byte]SingleFunc
	raw    map[[4]byte]RawFunc
	names  map[[4]byte]string
}

func NewLibrary() *Library {
	return &Library{
		dual:   make(map[[4]byte]DualFunc),
		single: make(map[[4]byte]SingleFunc),
		raw:    make(map[[4]byte]RawFunc),
		names:  make(map[[4]byte]string),
	}
}

// Register adds a dual predicate under name.
func (l *Library) Register(name string, fn DualFunc) {
	sel := DualSelector(name)
	l.dual[sel] = fn
	l.names[sel] = name + dualSig
}

// RegisterSingle adds a single predicate under name.
func (l *Library) RegisterSingle(name string, fn SingleFunc) {
	sel := SingleSelector(name)
	l.single[sel] = fn
	l.names[sel] = name + singleSig
}

// RegisterRaw adds a function by full signature that sees the raw calldata.
func (l *Library) RegisterRaw(sig string, fn RawFunc) {
	sel := vm.Selector(sig)
	l.raw[sel] = fn
	l.names[sel] = sig
}

// Signatures lists every registered signature.
func (l *Library) Signatures() []string {
	out := make([]string, 0, len(l.names))
	for _, sig := range l.names {
		out = append(out, sig)
	}
	return out
}

// Init stores the atomicizer address sequence predicates expect. Libraries
// that don't need one are created without arguments.
func (l *Library) Init(env *vm.Env, args []byte) error {
	if len(args) == 0 {
		return nil
	}
	vals, err := initArgs.Unpack(args)
	if err != nil {
		return fmt.Errorf("static init: %w", err)
	}
	return env.StoreAddress(slotAtomicizer, vals[0].(common.Address))
}

func (l *Library) Run(env *vm.Env, input []byte) ([]byte, error) {
	if len(input) < 4 {
		return nil, fmt.Errorf("%w: short input", vm.ErrUnknownMethod)
	}
	var sel [4]byte
	copy(sel[:], input[:4])

	if fn, ok := l.raw[sel]; ok {
		return fn(env, input)
	}
	if fn, ok := l.dual[sel]; ok {
		in, err := decodeDual(input[4:])
		if err != nil {
			return nil, err
		}
		fill, err := fn(env, in)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", l.names[sel], err)
		}
		return uintReturn.Pack(fill)
	}
	if fn, ok := l.single[sel]; ok {
		in, err := decodeSingle(input[4:])
		if err != nil {
			return nil, err
		}
		if err := fn(env, in); err != nil {
			return nil, fmt.Errorf("%s: %w", l.names[sel], err)
		}
		return nil, nil
	}
	return nil, fmt.Errorf("%w: %x", vm.ErrUnknownMethod, sel)
}

func decodeDual(data []byte) (*Dual, error) {
	vals, err := dualArgs.Unpack(data)
	if err != nil {
		return nil, fmt.Errorf("decode dual predicate args: %w", err)
	}
	hows := vals[2].([2]uint8)
	return &Dual{
		Extra:       vals[0].([]byte),
		Addresses:   vals[1].([7]common.Address),
		HowToCalls:  [2]vm.HowToCall{vm.HowToCall(hows[0]), vm.HowToCall(hows[1])},
		Uints:       vals[3].([6]*big.Int),
		Data:        vals[4].([]byte),
		Counterdata: vals[5].([]byte),
	}, nil
}

func decodeSingle(data []byte) (*Single, error) {
	vals, err := singleArgs.Unpack(data)
	if err != nil {
		return nil, fmt.Errorf("decode single predicate args: %w", err)
	}
	return &Single{
		Extra:     vals[0].([]byte),
		Addresses: vals[1].([7]common.Address),
		HowToCall: vm.HowToCall(vals[2].(uint8)),
		Uints:     vals[3].([6]*big.Int),
		Data:      vals[4].([]byte),
	}, nil
}

func uints(u [6]*big.Int) [6]*big.Int {
	for i := range u {
		if u[i] == nil {
			u[i] = new(big.Int)
		}
	}
	return u
}

// EncodeDual builds the calldata of a dual predicate call.
func EncodeDual(selector [4]byte, in *Dual) ([]byte, error) {
	args, err := dualArgs.Pack(in.Extra, in.Addresses, [2]uint8{uint8(in.HowToCalls[0]), uint8(in.HowToCalls[1])}, uints(in.Uints), in.Data, in.Counterdata)
	if err != nil {
		return nil, err
	}
	return append(selector[:], args...), nil
}

// EncodeSingle builds the calldata of a single predicate call.
func EncodeSingle(selector [4]byte, in *Single) ([]byte, error) {
	args, err := singleArgs.Pack(in.Extra, in.Addresses, uint8(in.HowToCall), uints(in.Uints), in.Data)
	if err != nil {
		return nil, err
	}
	return append(selector[:], args...), nil
}

// CallDual static-calls a dual predicate at target and returns the fill it
// reports.
func CallDual(env *vm.Env, target common.Address, selector [4]byte, in *Dual) (*big.Int, error) {
	input, err := EncodeDual(selector, in)
	if err != nil {
		return nil, err
	}
	ret, err := env.StaticCall(target, input)
	if err != nil {
		return nil, err
	}
	if len(ret) != 32 {
		return nil, fmt.Errorf("%w: predicate returned %d bytes", vm.ErrBadReturn, len(ret))
	}
	return new(big.Int).SetBytes(ret), nil
}

// CallSingle static-calls a single predicate at target, which must have code.
func CallSingle(env *vm.Env, target common.Address, selector [4]byte, in *Single) error {
	if !env.Exists(target) {
		return reject("no predicate code at %s", target.Hex())
	}
	input, err := EncodeSingle(selector, in)
	if err != nil {
		return err
	}
	_, err = env.StaticCall(target, input)
	return err
}
