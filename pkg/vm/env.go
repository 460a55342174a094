package vm

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

const (
	slotCode    = "code"
	slotBalance = "bal"
	slotPrefix  = "x/"
)

// Env is one call frame.
type Env struct {
	m *Machine

	// Caller is msg.sender of this frame.
	Caller common.Address
	// Self owns the storage this frame reads and writes, and is the sender of
	// outgoing calls. Under delegatecall it differs from CodeAddress.
	Self        common.Address
	CodeAddress common.Address
	Value       *big.Int
	ReadOnly    bool
	Depth       int

	now int64
}

func (e *Env) child(caller, self, code common.Address, value *big.Int, readOnly bool) *Env {
	if value == nil {
		value = new(big.Int)
	}
	return &Env{
		m:           e.m,
		Caller:      caller,
		Self:        self,
		CodeAddress: code,
		Value:       value,
		ReadOnly:    readOnly,
		Depth:       e.Depth + 1,
		now:         e.now,
	}
}

// Call invokes to's code with value sent from Self. An address without code
// just receives the value.
func (e *Env) Call(to common.Address, value *big.Int, input []byte) ([]byte, error) {
	if e.Depth+1 > e.m.maxDepth {
		return nil, ErrDepthExceeded
	}
	if value != nil && value.Sign() > 0 && e.ReadOnly {
		return nil, ErrWriteProtection
	}

	snap := e.m.db.Snapshot()
	if value != nil && value.Sign() > 0 {
		if err := e.move(e.Self, to, value); err != nil {
			e.m.db.RevertToSnapshot(snap)
			return nil, err
		}
	}

	kind := e.CodeKind(to)
	if kind == "" {
		return nil, nil
	}
	code, ok := e.m.contract(kind)
	if !ok {
		e.m.db.RevertToSnapshot(snap)
		return nil, fmt.Errorf("%w: %s", ErrUnknownCode, kind)
	}
	out, err := code.Run(e.child(e.Self, to, to, value, e.ReadOnly), input)
	if err != nil {
		e.m.db.RevertToSnapshot(snap)
		return nil, err
	}
	return out, nil
}

// DelegateCall runs to's code in this frame's storage context, keeping
// Caller and Value.
func (e *Env) DelegateCall(to common.Address, input []byte) ([]byte, error) {
	if e.Depth+1 > e.m.maxDepth {
		return nil, ErrDepthExceeded
	}
	kind := e.CodeKind(to)
	if kind == "" {
		return nil, nil
	}
	code, ok := e.m.contract(kind)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCode, kind)
	}

	snap := e.m.db.Snapshot()
	out, err := code.Run(e.child(e.Caller, e.Self, to, e.Value, e.ReadOnly), input)
	if err != nil {
		e.m.db.RevertToSnapshot(snap)
		return nil, err
	}
	return out, nil
}

// StaticCall invokes to's code in a read-only frame.
func (e *Env) StaticCall(to common.Address, input []byte) ([]byte, error) {
	if e.Depth+1 > e.m.maxDepth {
		return nil, ErrDepthExceeded
	}
	kind := e.CodeKind(to)
	if kind == "" {
		return nil, nil
	}
	code, ok := e.m.contract(kind)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCode, kind)
	}
	return code.Run(e.child(e.Self, to, to, nil, true), input)
}

// Enter opens a native frame for Go code that acts as the contract at self,
// sending value from Self along.
func (e *Env) Enter(self common.Address, value *big.Int, fn func(env *Env) error) error {
	if e.Depth+1 > e.m.maxDepth {
		return ErrDepthExceeded
	}
	if value != nil && value.Sign() > 0 && e.ReadOnly {
		return ErrWriteProtection
	}

	snap := e.m.db.Snapshot()
	if value != nil && value.Sign() > 0 {
		if err := e.move(e.Self, self, value); err != nil {
			e.m.db.RevertToSnapshot(snap)
			return err
		}
	}
	if err := fn(e.child(e.Self, self, self, value, e.ReadOnly)); err != nil {
		e.m.db.RevertToSnapshot(snap)
		return err
	}
	return nil
}

// Create binds code kind to addr and runs its constructor, if any, with
// Caller set to Self.
func (e *Env) Create(addr common.Address, kind string, args []byte) error {
	if e.ReadOnly {
		return ErrWriteProtection
	}
	if e.CodeKind(addr) != "" {
		return fmt.Errorf("%w: %s", ErrCodeExists, addr.Hex())
	}
	code, ok := e.m.contract(kind)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownCode, kind)
	}

	snap := e.m.db.Snapshot()
	e.m.db.Set(addr, slotCode, []byte(kind))
	if ctor, ok := code.(Constructor); ok {
		if err := ctor.Init(e.child(e.Self, addr, addr, nil, false), args); err != nil {
			e.m.db.RevertToSnapshot(snap)
			return err
		}
	}
	return nil
}

// Transfer sends amount from Self to to without running any code.
func (e *Env) Transfer(to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	if e.ReadOnly {
		return ErrWriteProtection
	}
	return e.move(e.Self, to, amount)
}

// Mint credits native currency out of thin air. Used for genesis funding.
func (e *Env) Mint(to common.Address, amount *big.Int) error {
	if e.ReadOnly {
		return ErrWriteProtection
	}
	if amount.Sign() < 0 {
		return fmt.Errorf("negative mint amount %s", amount)
	}
	e.setBalance(to, new(big.Int).Add(e.Balance(to), amount))
	return nil
}

func (e *Env) move(from, to common.Address, amount *big.Int) error {
	if amount.Sign() < 0 {
		return fmt.Errorf("negative transfer amount %s", amount)
	}
	bal := e.Balance(from)
	if bal.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s has %s, needs %s", ErrInsufficientBalance, from.Hex(), bal, amount)
	}
	if from == to {
		return nil
	}
	e.setBalance(from, new(big.Int).Sub(bal, amount))
	e.setBalance(to, new(big.Int).Add(e.Balance(to), amount))
	return nil
}

func (e *Env) Balance(addr common.Address) *big.Int {
	return new(big.Int).SetBytes(e.m.db.Get(addr, slotBalance))
}

func (e *Env) setBalance(addr common.Address, v *big.Int) {
	e.m.db.Set(addr, slotBalance, v.Bytes())
}

// CodeKind returns the code kind bound to addr, "" for none.
func (e *Env) CodeKind(addr common.Address) string {
	return string(e.m.db.Get(addr, slotCode))
}

// Exists reports whether addr has code.
func (e *Env) Exists(addr common.Address) bool {
	return e.CodeKind(addr) != ""
}

// Timestamp is the transaction time in Unix seconds.
func (e *Env) Timestamp() *big.Int {
	return big.NewInt(e.now)
}

// Load reads a slot of Self's storage.
func (e *Env) Load(slot string) []byte {
	return e.m.db.Get(e.Self, slotPrefix+slot)
}

// Store writes a slot of Self's storage; an empty value clears it.
func (e *Env) Store(slot string, value []byte) error {
	if e.ReadOnly {
		return ErrWriteProtection
	}
	e.m.db.Set(e.Self, slotPrefix+slot, value)
	return nil
}

// LoadAt reads a slot of another contract's storage.
func (e *Env) LoadAt(addr common.Address, slot string) []byte {
	return e.m.db.Get(addr, slotPrefix+slot)
}
