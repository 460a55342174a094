package assets

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/hyperswap/pkg/vm"
)

func balanceSlot(owner common.Address) string { return "balances/" + owner.Hex() }
func allowanceSlot(owner, spender common.Address) string {
	return "allowances/" + owner.Hex() + "/" + spender.Hex()
}

// ERC20 is a fungible token with open minting.
type ERC20 struct{}

func (t ERC20) Run(env *vm.Env, input []byte) ([]byte, error) {
	method, args, err := vm.Decode(ERC20ABI, input)
	if err != nil {
		return nil, err
	}

	switch method.Name {
	case "transfer":
		if err := t.move(env, env.Caller, args[0].(common.Address), args[1].(*big.Int)); err != nil {
			return nil, err
		}
		return method.Outputs.Pack(true)

	case "transferFrom":
		from, to, amount := args[0].(common.Address), args[1].(common.Address), args[2].(*big.Int)
		if env.Caller != from {
			allowed := env.LoadBig(allowanceSlot(from, env.Caller))
			if allowed.Cmp(amount) < 0 {
				return nil, fmt.Errorf("%w: %s allows %s, needs %s", ErrInsufficientAllowance, from.Hex(), allowed, amount)
			}
			if err := env.StoreBig(allowanceSlot(from, env.Caller), allowed.Sub(allowed, amount)); err != nil {
				return nil, err
			}
		}
		if err := t.move(env, from, to, amount); err != nil {
			return nil, err
		}
		return method.Outputs.Pack(true)

	case "approve":
		if err := env.StoreBig(allowanceSlot(env.Caller, args[0].(common.Address)), args[1].(*big.Int)); err != nil {
			return nil, err
		}
		return method.Outputs.Pack(true)

	case "mint":
		to, amount := args[0].(common.Address), args[1].(*big.Int)
		if to == (common.Address{}) {
			return nil, ErrZeroAddress
		}
		if err := env.StoreBig(balanceSlot(to), new(big.Int).Add(env.LoadBig(balanceSlot(to)), amount)); err != nil {
			return nil, err
		}
		return nil, env.StoreBig("supply", new(big.Int).Add(env.LoadBig("supply"), amount))

	case "allowance":
		return method.Outputs.Pack(env.LoadBig(allowanceSlot(args[0].(common.Address), args[1].(common.Address))))

	case "balanceOf":
		return method.Outputs.Pack(env.LoadBig(balanceSlot(args[0].(common.Address))))

	case "totalSupply":
		return method.Outputs.Pack(env.LoadBig("supply"))
	}
	return nil, fmt.Errorf("%w: %s", vm.ErrUnknownMethod, method.Name)
}

func (ERC20) move(env *vm.Env, from, to common.Address, amount *big.Int) error {
	if to == (common.Address{}) {
		return ErrZeroAddress
	}
	bal := env.LoadBig(balanceSlot(from))
	if bal.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s has %s, needs %s", ErrInsufficientBalance, from.Hex(), bal, amount)
	}
	if err := env.StoreBig(balanceSlot(from), bal.Sub(bal, amount)); err != nil {
		return err
	}
	return env.StoreBig(balanceSlot(to), new(big.Int).Add(env.LoadBig(balanceSlot(to)), amount))
}
