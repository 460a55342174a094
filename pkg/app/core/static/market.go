package static

import (
	"bytes"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/hyperswap/pkg/vm"
)

var marketExtra = vm.MustArguments("address[2]", "uint256[2]")

// Market returns the marketplace predicate library: ready-made dual
// predicates for the common token-for-token swaps, so orders need no
// composed extradata.
func Market() *Library {
	l := NewLibrary()
	l.Register("ERC721ForERC20", erc721ForERC20)
	l.Register("ERC20ForERC721", erc20ForERC721)
	l.Register("ERC20ForERC20", erc20ForERC20)
	return l
}

func decodeMarket(in *Dual) (tokens [2]common.Address, nums [2]*big.Int, err error) {
	if in.Uints[UintValue].Sign() != 0 {
		return tokens, nums, reject("zero value required")
	}
	if in.HowToCalls[0] != vm.Call {
		return tokens, nums, reject("call must be a direct call")
	}
	vals, err := marketExtra.Unpack(in.Extra)
	if err != nil {
		return tokens, nums, reject("bad extradata: %v", err)
	}
	tokens, nums = vals[0].([2]common.Address), vals[1].([2]*big.Int)
	if in.Addresses[AddrCallTarget] != tokens[0] {
		return tokens, nums, reject("call target must be the token to give")
	}
	if in.Addresses[AddrCounterCallTarget] != tokens[1] {
		return tokens, nums, reject("counter-call target must be the token to get")
	}
	return tokens, nums, nil
}

// erc721ForERC20: extra is ([nft, erc20], [tokenId, price]). The maker gives
// the NFT and gets price in the fungible token.
func erc721ForERC20(_ *vm.Env, in *Dual) (*big.Int, error) {
	_, nums, err := decodeMarket(in)
	if err != nil {
		return nil, err
	}
	if nums[1].Sign() <= 0 {
		return nil, reject("price must be larger than zero")
	}
	maker, counter := in.Addresses[AddrMaker], in.Addresses[AddrCounterMaker]
	if err := checkTransfer(in.Data, maker, counter, nums[0]); err != nil {
		return nil, err
	}
	if err := checkTransfer(in.Counterdata, counter, maker, nums[1]); err != nil {
		return nil, err
	}
	return big.NewInt(1), nil
}

// erc20ForERC721: extra is ([erc20, nft], [tokenId, price]). The mirror of
// erc721ForERC20.
func erc20ForERC721(_ *vm.Env, in *Dual) (*big.Int, error) {
	_, nums, err := decodeMarket(in)
	if err != nil {
		return nil, err
	}
	if nums[1].Sign() <= 0 {
		return nil, reject("price must be larger than zero")
	}
	maker, counter := in.Addresses[AddrMaker], in.Addresses[AddrCounterMaker]
	if err := checkTransfer(in.Data, maker, counter, nums[1]); err != nil {
		return nil, err
	}
	if err := checkTransfer(in.Counterdata, counter, maker, nums[0]); err != nil {
		return nil, err
	}
	return big.NewInt(1), nil
}

// erc20ForERC20: extra is ([give, get], [giveRatio, getRatio]). Any amount
// in the ratio matches; the fill consumed is the amount given, so an order
// with maximumFill N can be filled in parts until N tokens are gone.
func erc20ForERC20(_ *vm.Env, in *Dual) (*big.Int, error) {
	_, ratio, err := decodeMarket(in)
	if err != nil {
		return nil, err
	}
	if ratio[0].Sign() <= 0 || ratio[1].Sign() <= 0 {
		return nil, reject("ratio amounts must be larger than zero")
	}

	give, err := transferAmount(in.Data)
	if err != nil {
		return nil, err
	}
	get, err := transferAmount(in.Counterdata)
	if err != nil {
		return nil, err
	}
	if give.Sign() <= 0 {
		return nil, reject("amount given must be larger than zero")
	}
	// give/get must equal ratio[0]/ratio[1]
	if new(big.Int).Mul(ratio[0], get).Cmp(new(big.Int).Mul(ratio[1], give)) != 0 {
		return nil, reject("wrong ratio: give %s get %s", give, get)
	}

	maker, counter := in.Addresses[AddrMaker], in.Addresses[AddrCounterMaker]
	if err := checkTransfer(in.Data, maker, counter, give); err != nil {
		return nil, err
	}
	if err := checkTransfer(in.Counterdata, counter, maker, get); err != nil {
		return nil, err
	}
	return give, nil
}

func checkTransfer(data []byte, from, to common.Address, amount *big.Int) error {
	want, err := transferFromData(from, to, amount)
	if err != nil {
		return err
	}
	if !bytes.Equal(data, want) {
		return reject("calldata is not transferFrom(%s, %s, %s)", from.Hex(), to.Hex(), amount)
	}
	return nil
}

func transferAmount(data []byte) (*big.Int, error) {
	if len(data) != 4+3*32 || !bytes.Equal(data[:4], transferFromSelector[:]) {
		return nil, reject("calldata is not transferFrom")
	}
	vals, err := transferFrom.Unpack(data[4:])
	if err != nil {
		return nil, reject("bad transferFrom calldata: %v", err)
	}
	return vals[2].(*big.Int), nil
}
