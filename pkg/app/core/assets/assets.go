// Package assets provides minimal fungible and non-fungible token contracts.
// They exist so swaps have something real to move; the exchange itself knows
// nothing about them.
package assets

import (
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/hyperswap/pkg/vm"
)

const (
	KindERC20  = "erc20"
	KindERC721 = "erc721"
)

var (
	ErrInsufficientBalance   = errors.New("token: transfer amount exceeds balance")
	ErrInsufficientAllowance = errors.New("token: transfer amount exceeds allowance")
	ErrNotOwnerNorApproved   = errors.New("token: caller is not owner nor approved")
	ErrWrongFrom             = errors.New("token: transfer of token that is not own")
	ErrTokenExists           = errors.New("token: token already minted")
	ErrNonexistentToken      = errors.New("token: nonexistent token")
	ErrZeroAddress           = errors.New("token: zero address")
)

// Install registers both token kinds on m.
func Install(m *vm.Machine) {
	m.Register(KindERC20, ERC20{})
	m.Register(KindERC721, ERC721{})
}

func DeployERC20(env *vm.Env, addr common.Address) error {
	return env.Create(addr, KindERC20, nil)
}

func DeployERC721(env *vm.Env, addr common.Address) error {
	return env.Create(addr, KindERC721, nil)
}

// TransferFromData encodes transferFrom(from, to, amountOrID). The selector
// is shared by both token standards.
func TransferFromData(from, to common.Address, amountOrID *big.Int) []byte {
	data, err := ERC20ABI.Pack("transferFrom", from, to, amountOrID)
	if err != nil {
		panic(err)
	}
	return data
}
