package static

import (
	"bytes"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/hyperswap/pkg/app/core/atomicizer"
	"github.com/uhyunpark/hyperswap/pkg/vm"
)

const slotAtomicizer = "atomicizer"

var (
	splitExtra    = vm.MustArguments("address[2]", "bytes4[2]", "bytes", "bytes")
	sequenceExtra = vm.MustArguments("address[]", "uint256[]", "bytes4[]", "bytes")
	tokenIDExtra  = vm.MustArguments("address", "uint256")
	tokenToExtra  = vm.MustArguments("address", "uint256", "address")
	transferFrom  = vm.MustArguments("address", "address", "uint256")

	transferFromSelector = vm.Selector("transferFrom(address,address,uint256)")
)

// Generic returns the general-purpose predicate library: composition
// (split, sequences) and exact token transfers.
func Generic() *Library {
	l := NewLibrary()

	l.Register("any", anyFill)
	l.Register("anyNoFill", anyNoFill)
	l.Register("split", split)

	l.RegisterSingle("anySingle", func(*vm.Env, *Single) error { return nil })
	l.RegisterSingle("sequenceExact", func(env *vm.Env, in *Single) error { return sequence(env, in, true) })
	l.RegisterSingle("sequenceAnyAfter", func(env *vm.Env, in *Single) error { return sequence(env, in, false) })
	l.RegisterSingle("transferERC721Exact", transferERC721Exact)
	l.RegisterSingle("transferERC20Exact", transferERC20Exact)
	l.RegisterSingle("transferERC20ExactTo", transferERC20ExactTo)

	// no-op target for counter-calls that move nothing
	l.RegisterRaw("test()", func(*vm.Env, []byte) ([]byte, error) { return nil, nil })
	return l
}

func anyFill(*vm.Env, *Dual) (*big.Int, error)   { return big.NewInt(1), nil }
func anyNoFill(*vm.Env, *Dual) (*big.Int, error) { return new(big.Int), nil }

// split checks the call with one single predicate and the counter-call with
// another, the latter seeing the address vector from the counterparty's side.
func split(env *vm.Env, in *Dual) (*big.Int, error) {
	vals, err := splitExtra.Unpack(in.Extra)
	if err != nil {
		return nil, reject("bad split extradata: %v", err)
	}
	targets := vals[0].([2]common.Address)
	selectors := vals[1].([2][4]byte)
	extraA, extraB := vals[2].([]byte), vals[3].([]byte)

	a := in.Addresses
	err = CallSingle(env, targets[0], selectors[0], &Single{
		Extra:     extraA,
		Addresses: a,
		HowToCall: in.HowToCalls[0],
		Uints:     in.Uints,
		Data:      in.Data,
	})
	if err != nil {
		return nil, fmt.Errorf("first call: %w", err)
	}

	err = CallSingle(env, targets[1], selectors[1], &Single{
		Extra:     extraB,
		Addresses: [7]common.Address{a[3], a[4], a[5], a[0], a[1], a[2], a[6]},
		HowToCall: in.HowToCalls[1],
		Uints:     in.Uints,
		Data:      in.Counterdata,
	})
	if err != nil {
		return nil, fmt.Errorf("counter call: %w", err)
	}
	return big.NewInt(1), nil
}

// sequence requires the call to be an atomicizer batch and checks each
// committed sub-call with its own single predicate. With exact set the batch
// may hold nothing else; otherwise trailing sub-calls are unconstrained.
func sequence(env *vm.Env, in *Single, exact bool) error {
	vals, err := sequenceExtra.Unpack(in.Extra)
	if err != nil {
		return reject("bad sequence extradata: %v", err)
	}
	targets := vals[0].([]common.Address)
	lengths := vals[1].([]*big.Int)
	selectors := vals[2].([][4]byte)
	extradata := vals[3].([]byte)

	if len(targets) != len(lengths) || len(targets) != len(selectors) {
		return reject("sequence extradata arrays differ in length")
	}
	if in.Addresses[AddrCallTarget] != env.LoadAddress(slotAtomicizer) {
		return reject("call target %s is not the atomicizer", in.Addresses[AddrCallTarget].Hex())
	}
	if in.HowToCall != vm.DelegateCall {
		return reject("atomicizer must be delegatecalled, got %s", in.HowToCall)
	}
	if len(in.Data) < 4 || !bytes.Equal(in.Data[:4], atomicizer.ABI.Methods["atomicize"].ID) {
		return reject("call is not atomicize")
	}
	batch, err := atomicizer.Decode(in.Data[4:])
	if err != nil {
		return reject("bad atomicize calldata: %v", err)
	}
	calls := batch.Calls()

	if exact && len(calls) != len(targets) {
		return reject("batch has %d calls, want exactly %d", len(calls), len(targets))
	}
	if !exact && len(calls) < len(targets) {
		return reject("batch has %d calls, want at least %d", len(calls), len(targets))
	}

	off := 0
	for i := range targets {
		if calls[i].Value.Sign() != 0 {
			return reject("sub-call %d carries value", i)
		}
		n := lengths[i]
		if n.Cmp(big.NewInt(int64(len(extradata)-off))) > 0 {
			return reject("sub-call %d extradata overruns", i)
		}
		end := off + int(n.Int64())
		pre := extradata[off:end]
		off = end

		addrs := in.Addresses
		addrs[AddrCallTarget] = calls[i].Target
		err := CallSingle(env, targets[i], selectors[i], &Single{
			Extra:     pre,
			Addresses: addrs,
			HowToCall: vm.Call,
			Uints:     in.Uints,
			Data:      calls[i].Data,
		})
		if err != nil {
			return fmt.Errorf("sub-call %d: %w", i, err)
		}
	}
	if off != len(extradata) {
		return reject("sequence extradata has %d unused bytes", len(extradata)-off)
	}
	return nil
}

func transferERC721Exact(_ *vm.Env, in *Single) error {
	vals, err := tokenIDExtra.Unpack(in.Extra)
	if err != nil {
		return reject("bad extradata: %v", err)
	}
	token, id := vals[0].(common.Address), vals[1].(*big.Int)
	return exactTransfer(in, token, in.Addresses[AddrCounterMaker], id)
}

func transferERC20Exact(_ *vm.Env, in *Single) error {
	vals, err := tokenIDExtra.Unpack(in.Extra)
	if err != nil {
		return reject("bad extradata: %v", err)
	}
	token, amount := vals[0].(common.Address), vals[1].(*big.Int)
	return exactTransfer(in, token, in.Addresses[AddrCounterMaker], amount)
}

func transferERC20ExactTo(_ *vm.Env, in *Single) error {
	vals, err := tokenToExtra.Unpack(in.Extra)
	if err != nil {
		return reject("bad extradata: %v", err)
	}
	token, amount, to := vals[0].(common.Address), vals[1].(*big.Int), vals[2].(common.Address)
	return exactTransfer(in, token, to, amount)
}

// exactTransfer requires a direct call to token whose calldata is exactly
// transferFrom(maker, to, amount).
func exactTransfer(in *Single, token, to common.Address, amount *big.Int) error {
	if in.Addresses[AddrCallTarget] != token {
		return reject("call target %s is not token %s", in.Addresses[AddrCallTarget].Hex(), token.Hex())
	}
	if in.HowToCall != vm.Call {
		return reject("token must be called directly, got %s", in.HowToCall)
	}
	want, err := transferFromData(in.Addresses[AddrMaker], to, amount)
	if err != nil {
		return err
	}
	if !bytes.Equal(in.Data, want) {
		return reject("calldata is not transferFrom(%s, %s, %s)", in.Addresses[AddrMaker].Hex(), to.Hex(), amount)
	}
	return nil
}

func transferFromData(from, to common.Address, amount *big.Int) ([]byte, error) {
	args, err := transferFrom.Pack(from, to, amount)
	if err != nil {
		return nil, err
	}
	return append(transferFromSelector[:], args...), nil
}
