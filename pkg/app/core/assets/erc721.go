package assets

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/hyperswap/pkg/vm"
)

func ownerSlot(id *big.Int) string    { return "owners/" + id.String() }
func approvedSlot(id *big.Int) string { return "approved/" + id.String() }
func operatorSlot(owner, operator common.Address) string {
	return "operators/" + owner.Hex() + "/" + operator.Hex()
}

// ERC721 is a non-fungible token with open minting.
type ERC721 struct{}

func (t ERC721) Run(env *vm.Env, input []byte) ([]byte, error) {
	method, args, err := vm.Decode(ERC721ABI, input)
	if err != nil {
		return nil, err
	}

	switch method.Name {
	case "transferFrom":
		return nil, t.transferFrom(env, args[0].(common.Address), args[1].(common.Address), args[2].(*big.Int))

	case "approve":
		to, id := args[0].(common.Address), args[1].(*big.Int)
		owner := env.LoadAddress(ownerSlot(id))
		if owner == (common.Address{}) {
			return nil, ErrNonexistentToken
		}
		if env.Caller != owner && !env.LoadBool(operatorSlot(owner, env.Caller)) {
			return nil, ErrNotOwnerNorApproved
		}
		return nil, env.StoreAddress(approvedSlot(id), to)

	case "setApprovalForAll":
		return nil, env.StoreBool(operatorSlot(env.Caller, args[0].(common.Address)), args[1].(bool))

	case "mint":
		to, id := args[0].(common.Address), args[1].(*big.Int)
		if to == (common.Address{}) {
			return nil, ErrZeroAddress
		}
		if env.LoadAddress(ownerSlot(id)) != (common.Address{}) {
			return nil, fmt.Errorf("%w: %s", ErrTokenExists, id)
		}
		if err := env.StoreAddress(ownerSlot(id), to); err != nil {
			return nil, err
		}
		return nil, env.StoreBig(balanceSlot(to), new(big.Int).Add(env.LoadBig(balanceSlot(to)), big.NewInt(1)))

	case "ownerOf":
		owner := env.LoadAddress(ownerSlot(args[0].(*big.Int)))
		if owner == (common.Address{}) {
			return nil, ErrNonexistentToken
		}
		return method.Outputs.Pack(owner)

	case "balanceOf":
		return method.Outputs.Pack(env.LoadBig(balanceSlot(args[0].(common.Address))))

	case "getApproved":
		return method.Outputs.Pack(env.LoadAddress(approvedSlot(args[0].(*big.Int))))

	case "isApprovedForAll":
		return method.Outputs.Pack(env.LoadBool(operatorSlot(args[0].(common.Address), args[1].(common.Address))))
	}
	return nil, fmt.Errorf("%w: %s", vm.ErrUnknownMethod, method.Name)
}

func (ERC721) transferFrom(env *vm.Env, from, to common.Address, id *big.Int) error {
	owner := env.LoadAddress(ownerSlot(id))
	if owner == (common.Address{}) {
		return fmt.Errorf("%w: %s", ErrNonexistentToken, id)
	}
	if owner != from {
		return fmt.Errorf("%w: %s", ErrWrongFrom, id)
	}
	if to == (common.Address{}) {
		return ErrZeroAddress
	}
	caller := env.Caller
	if caller != owner && env.LoadAddress(approvedSlot(id)) != caller && !env.LoadBool(operatorSlot(owner, caller)) {
		return ErrNotOwnerNorApproved
	}

	if err := env.StoreAddress(approvedSlot(id), common.Address{}); err != nil {
		return err
	}
	if err := env.StoreAddress(ownerSlot(id), to); err != nil {
		return err
	}
	fromBal := env.LoadBig(balanceSlot(from))
	if err := env.StoreBig(balanceSlot(from), fromBal.Sub(fromBal, big.NewInt(1))); err != nil {
		return err
	}
	return env.StoreBig(balanceSlot(to), new(big.Int).Add(env.LoadBig(balanceSlot(to)), big.NewInt(1)))
}
