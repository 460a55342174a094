package static

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Extradata builders for the predicates in this package.

// EncodeSplit builds split extradata from two single predicates: A checks the
// order's own call, B the counter-call.
func EncodeSplit(targetA common.Address, selectorA [4]byte, extraA []byte, targetB common.Address, selectorB [4]byte, extraB []byte) ([]byte, error) {
	return splitExtra.Pack(
		[2]common.Address{targetA, targetB},
		[2][4]byte{selectorA, selectorB},
		nonNil(extraA),
		nonNil(extraB),
	)
}

// SequenceStep commits one sub-call of an atomicizer batch to a predicate.
type SequenceStep struct {
	Target    common.Address
	Selector  [4]byte
	Extradata []byte
}

// EncodeSequence builds sequenceExact / sequenceAnyAfter extradata.
func EncodeSequence(steps []SequenceStep) ([]byte, error) {
	targets := make([]common.Address, len(steps))
	lengths := make([]*big.Int, len(steps))
	selectors := make([][4]byte, len(steps))
	var extradata []byte
	for i, s := range steps {
		targets[i] = s.Target
		lengths[i] = big.NewInt(int64(len(s.Extradata)))
		selectors[i] = s.Selector
		extradata = append(extradata, s.Extradata...)
	}
	return sequenceExtra.Pack(targets, lengths, selectors, nonNil(extradata))
}

func EncodeERC721Exact(token common.Address, tokenID *big.Int) ([]byte, error) {
	return tokenIDExtra.Pack(token, tokenID)
}

func EncodeERC20Exact(token common.Address, amount *big.Int) ([]byte, error) {
	return tokenIDExtra.Pack(token, amount)
}

func EncodeERC20ExactTo(token common.Address, amount *big.Int, to common.Address) ([]byte, error) {
	return tokenToExtra.Pack(token, amount, to)
}

// EncodeMarket builds extradata for the market predicates: the tokens given
// and got, and the two numbers each predicate reads (token id and price, or
// the give/get ratio).
func EncodeMarket(give, get common.Address, a, b *big.Int) ([]byte, error) {
	return marketExtra.Pack([2]common.Address{give, get}, [2]*big.Int{a, b})
}

func nonNil(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}
