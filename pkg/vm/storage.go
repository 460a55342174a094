package vm

import (
	"encoding/binary"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Typed storage helpers. Slots are plain strings; callers compose them, e.g.
// "fills/" + maker.Hex() + "/" + hash.Hex().

func (e *Env) LoadBig(slot string) *big.Int {
	return new(big.Int).SetBytes(e.Load(slot))
}

func (e *Env) StoreBig(slot string, v *big.Int) error {
	if v == nil {
		return e.Store(slot, nil)
	}
	return e.Store(slot, v.Bytes())
}

func (e *Env) LoadAddress(slot string) common.Address {
	return common.BytesToAddress(e.Load(slot))
}

func (e *Env) StoreAddress(slot string, a common.Address) error {
	if a == (common.Address{}) {
		return e.Store(slot, nil)
	}
	return e.Store(slot, a.Bytes())
}

func (e *Env) LoadBool(slot string) bool {
	v := e.Load(slot)
	return len(v) > 0 && v[0] != 0
}

func (e *Env) StoreBool(slot string, b bool) error {
	if !b {
		return e.Store(slot, nil)
	}
	return e.Store(slot, []byte{1})
}

func (e *Env) LoadUint64(slot string) uint64 {
	v := e.Load(slot)
	if len(v) != 8 {
		return 0
	}
	return binary.BigEndian.Uint64(v)
}

func (e *Env) StoreUint64(slot string, n uint64) error {
	if n == 0 {
		return e.Store(slot, nil)
	}
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], n)
	return e.Store(slot, b[:])
}
