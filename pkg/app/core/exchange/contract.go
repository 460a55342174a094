package exchange

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/hyperswap/pkg/vm"
)

const Kind = "exchange"

const abiJSON = `[
{"type":"function","name":"approveOrderHash","inputs":[{"name":"hash","type":"bytes32"}],"outputs":[]},
{"type":"function","name":"setOrderFill","inputs":[{"name":"hash","type":"bytes32"},{"name":"fill","type":"uint256"}],"outputs":[]},
{"type":"function","name":"fills","stateMutability":"view","inputs":[{"name":"maker","type":"address"},{"name":"hash","type":"bytes32"}],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"approved","stateMutability":"view","inputs":[{"name":"maker","type":"address"},{"name":"hash","type":"bytes32"}],"outputs":[{"name":"","type":"bool"}]}
]`

// ERC-1271 lets a contract maker vouch for a digest itself.
const erc1271JSON = `[
{"type":"function","name":"isValidSignature","stateMutability":"view","inputs":[{"name":"hash","type":"bytes32"},{"name":"signature","type":"bytes"}],"outputs":[{"name":"","type":"bytes4"}]}
]`

var (
	ABI        = vm.MustParseABI(abiJSON)
	ERC1271ABI = vm.MustParseABI(erc1271JSON)

	// EIP1271MagicValue is bytes4(keccak256("isValidSignature(bytes32,bytes)")).
	EIP1271MagicValue = [4]byte{0x16, 0x26, 0xba, 0x7e}
)

func fillSlot(maker common.Address, hash common.Hash) string {
	return "fills/" + maker.Hex() + "/" + hash.Hex()
}

func approvedSlot(maker common.Address, hash common.Hash) string {
	return "approved/" + maker.Hex() + "/" + hash.Hex()
}

// Contract is the on-ledger face of the exchange: the per-maker records
// any account or contract can manage with a plain call. Matching itself runs
// natively through Exchange.
type Contract struct{}

// Install registers the exchange code kind on m.
func Install(m *vm.Machine) {
	m.Register(Kind, Contract{})
}

// Deploy binds the exchange code to addr.
func Deploy(env *vm.Env, addr common.Address) error {
	return env.Create(addr, Kind, nil)
}

func (Contract) Run(env *vm.Env, input []byte) ([]byte, error) {
	method, args, err := vm.Decode(ABI, input)
	if err != nil {
		return nil, err
	}

	switch method.Name {
	case "approveOrderHash":
		return nil, approveHash(env, common.Hash(args[0].([32]byte)))

	case "setOrderFill":
		return nil, setFill(env, common.Hash(args[0].([32]byte)), args[1].(*big.Int))

	case "fills":
		maker, hash := args[0].(common.Address), common.Hash(args[1].([32]byte))
		return method.Outputs.Pack(env.LoadBig(fillSlot(maker, hash)))

	case "approved":
		maker, hash := args[0].(common.Address), common.Hash(args[1].([32]byte))
		return method.Outputs.Pack(env.LoadBool(approvedSlot(maker, hash)))
	}
	return nil, fmt.Errorf("%w: %s", vm.ErrUnknownMethod, method.Name)
}

// approveHash records the caller's approval of hash. env is an exchange frame.
func approveHash(env *vm.Env, hash common.Hash) error {
	slot := approvedSlot(env.Caller, hash)
	if env.LoadBool(slot) {
		return fmt.Errorf("%w: %s", ErrAlreadyApproved, hash.Hex())
	}
	return env.StoreBool(slot, true)
}

// setFill raises the caller's fill of hash. Setting the current value again
// is a no-op.
func setFill(env *vm.Env, hash common.Hash, fill *big.Int) error {
	slot := fillSlot(env.Caller, hash)
	cur := env.LoadBig(slot)
	if fill.Cmp(cur) < 0 {
		return fmt.Errorf("%w: %s is at %s, asked for %s", ErrFillDecrease, hash.Hex(), cur, fill)
	}
	return env.StoreBig(slot, fill)
}
