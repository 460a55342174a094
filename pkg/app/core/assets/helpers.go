package assets

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/hyperswap/pkg/vm"
)

// Frame helpers. Mutating helpers act as env.Self.

func call(env *vm.Env, token common.Address, a abi.ABI, name string, args ...interface{}) ([]interface{}, error) {
	input, err := a.Pack(name, args...)
	if err != nil {
		return nil, err
	}
	ret, err := env.Call(token, nil, input)
	if err != nil {
		return nil, err
	}
	out, err := a.Unpack(name, ret)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", vm.ErrBadReturn, name, err)
	}
	return out, nil
}

func MintERC20(env *vm.Env, token, to common.Address, amount *big.Int) error {
	_, err := call(env, token, ERC20ABI, "mint", to, amount)
	return err
}

func ApproveERC20(env *vm.Env, token, spender common.Address, amount *big.Int) error {
	_, err := call(env, token, ERC20ABI, "approve", spender, amount)
	return err
}

func BalanceOfERC20(env *vm.Env, token, owner common.Address) (*big.Int, error) {
	out, err := call(env, token, ERC20ABI, "balanceOf", owner)
	if err != nil {
		return nil, err
	}
	return out[0].(*big.Int), nil
}

func MintERC721(env *vm.Env, token, to common.Address, id *big.Int) error {
	_, err := call(env, token, ERC721ABI, "mint", to, id)
	return err
}

func SetApprovalForAll(env *vm.Env, token, operator common.Address, approved bool) error {
	_, err := call(env, token, ERC721ABI, "setApprovalForAll", operator, approved)
	return err
}

func OwnerOf(env *vm.Env, token common.Address, id *big.Int) (common.Address, error) {
	out, err := call(env, token, ERC721ABI, "ownerOf", id)
	if err != nil {
		return common.Address{}, err
	}
	return out[0].(common.Address), nil
}
