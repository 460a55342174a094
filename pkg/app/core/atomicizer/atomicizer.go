// Package atomicizer batches several calls into one all-or-nothing call.
// Proxies delegatecall it, so every sub-call is sent by the proxy.
package atomicizer

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/hyperswap/pkg/vm"
)

const Kind = "atomicizer"

const abiJSON = `[
{"type":"function","name":"atomicize","inputs":[{"name":"addrs","type":"address[]"},{"name":"values","type":"uint256[]"},{"name":"calldataLengths","type":"uint256[]"},{"name":"calldatas","type":"bytes"}],"outputs":[]}
]`

var ABI = vm.MustParseABI(abiJSON)

var (
	ErrBatchSubcallFailed = errors.New("atomicizer: subcall failed")
	ErrLengthMismatch     = errors.New("atomicizer: array lengths differ")
	ErrBadCalldataLength  = errors.New("atomicizer: calldata lengths do not sum to calldata size")
)

// Call is one entry of a batch.
type Call struct {
	Target common.Address
	Value  *big.Int
	Data   []byte
}

func Install(m *vm.Machine) {
	m.Register(Kind, Atomicizer{})
}

func Deploy(env *vm.Env, addr common.Address) error {
	return env.Create(addr, Kind, nil)
}

// Encode builds atomicize calldata for calls.
func Encode(calls []Call) ([]byte, error) {
	addrs := make([]common.Address, len(calls))
	values := make([]*big.Int, len(calls))
	lengths := make([]*big.Int, len(calls))
	var data []byte
	for i, c := range calls {
		addrs[i] = c.Target
		values[i] = c.Value
		if values[i] == nil {
			values[i] = new(big.Int)
		}
		lengths[i] = big.NewInt(int64(len(c.Data)))
		data = append(data, c.Data...)
	}
	return ABI.Pack("atomicize", addrs, values, lengths, data)
}

// Batch is a decoded atomicize call.
type Batch struct {
	Targets []common.Address
	Values  []*big.Int
	Lengths []*big.Int
	Data    []byte
}

// Decode parses atomicize arguments (calldata without the selector) and
// checks their shape.
func Decode(args []byte) (*Batch, error) {
	vals, err := ABI.Methods["atomicize"].Inputs.Unpack(args)
	if err != nil {
		return nil, fmt.Errorf("decode atomicize: %w", err)
	}
	b := &Batch{
		Targets: vals[0].([]common.Address),
		Values:  vals[1].([]*big.Int),
		Lengths: vals[2].([]*big.Int),
		Data:    vals[3].([]byte),
	}
	if len(b.Targets) != len(b.Values) || len(b.Targets) != len(b.Lengths) {
		return nil, ErrLengthMismatch
	}
	total := new(big.Int)
	for _, l := range b.Lengths {
		total.Add(total, l)
	}
	if !total.IsInt64() || total.Int64() != int64(len(b.Data)) {
		return nil, fmt.Errorf("%w: lengths sum to %s, calldata is %d bytes", ErrBadCalldataLength, total, len(b.Data))
	}
	return b, nil
}

// Calls slices the batch into its individual calls.
func (b *Batch) Calls() []Call {
	calls := make([]Call, len(b.Targets))
	off := 0
	for i := range b.Targets {
		n := int(b.Lengths[i].Int64())
		calls[i] = Call{Target: b.Targets[i], Value: b.Values[i], Data: b.Data[off : off+n]}
		off += n
	}
	return calls
}

type Atomicizer struct{}

func (Atomicizer) Run(env *vm.Env, input []byte) ([]byte, error) {
	method, _, err := vm.Decode(ABI, input)
	if err != nil {
		return nil, err
	}
	if method.Name != "atomicize" {
		return nil, fmt.Errorf("%w: %s", vm.ErrUnknownMethod, method.Name)
	}

	batch, err := Decode(input[4:])
	if err != nil {
		return nil, err
	}
	for i, c := range batch.Calls() {
		if _, err := env.Call(c.Target, c.Value, c.Data); err != nil {
			return nil, fmt.Errorf("%w: #%d to %s: %w", ErrBatchSubcallFailed, i, c.Target.Hex(), err)
		}
	}
	return nil, nil
}
