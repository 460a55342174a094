// Package vm runs Go contracts against the journaled ledger with EVM-like
// call semantics: call, delegatecall and staticcall frames, value transfer,
// bounded depth, and per-frame rollback.
package vm

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/uhyunpark/hyperswap/pkg/state"
	"github.com/uhyunpark/hyperswap/pkg/util"
)

const DefaultMaxCallDepth = 64

// HowToCall selects the call kind a proxy uses for its target.
type HowToCall uint8

const (
	Call         HowToCall = 0
	DelegateCall HowToCall = 1
)

func (h HowToCall) String() string {
	switch h {
	case Call:
		return "call"
	case DelegateCall:
		return "delegatecall"
	default:
		return fmt.Sprintf("howToCall(%d)", uint8(h))
	}
}

// Contract is the code bound to an address. Implementations hold no state of
// their own: everything lives in the ledger under env.Self.
type Contract interface {
	Run(env *Env, input []byte) ([]byte, error)
}

// Constructor is implemented by contracts that initialize storage on Create.
type Constructor interface {
	Init(env *Env, args []byte) error
}

// WAL receives each write set before it reaches the backend. Truncate is
// called once the backend apply has either succeeded or been reported as a
// failed transaction, so the log only ever holds the write set in flight.
type WAL interface {
	Append(writes []state.Write) error
	Truncate() error
}

type Machine struct {
	mu       sync.Mutex
	halted   error
	db       *state.StateDB
	wal      WAL
	clock    util.Clock
	maxDepth int
	log      *zap.SugaredLogger

	codeMu sync.RWMutex
	codes  map[string]Contract
}

func NewMachine(backend state.Backend, wal WAL, clock util.Clock, maxDepth int, logger *zap.SugaredLogger) *Machine {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxCallDepth
	}
	if clock == nil {
		clock = util.RealClock{}
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Machine{
		db:       state.New(backend),
		wal:      wal,
		clock:    clock,
		maxDepth: maxDepth,
		log:      logger,
		codes:    make(map[string]Contract),
	}
}

// Register binds a code kind to its implementation. Registering the same kind
// twice replaces the implementation.
func (m *Machine) Register(kind string, c Contract) {
	m.codeMu.Lock()
	defer m.codeMu.Unlock()
	m.codes[kind] = c
}

func (m *Machine) contract(kind string) (Contract, bool) {
	m.codeMu.RLock()
	defer m.codeMu.RUnlock()
	c, ok := m.codes[kind]
	return c, ok
}

// Transact runs fn as one all-or-nothing transaction sent by from. Only one
// transaction runs at a time. On success the write set is appended to the WAL,
// applied to the backend and then dropped from the WAL. A panic inside fn
// reverts the transaction and is returned as ErrPanic.
func (m *Machine) Transact(ctx context.Context, from common.Address, fn func(env *Env) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.halted != nil {
		return fmt.Errorf("%w: %v", ErrHalted, m.halted)
	}

	root := m.rootEnv(from, false)
	if err := m.run(root, fn); err != nil {
		m.db.Discard()
		m.log.Debugw("tx_reverted", "from", from.Hex(), "err", err)
		return err
	}
	if err := m.db.Error(); err != nil {
		m.db.Discard()
		return fmt.Errorf("state read failed: %w", err)
	}

	writes := m.db.Pending()
	if len(writes) == 0 {
		return nil
	}
	if m.wal != nil {
		if err := m.wal.Append(writes); err != nil {
			m.db.Discard()
			return fmt.Errorf("wal append failed: %w", err)
		}
	}
	commitErr := m.db.Commit()
	if m.wal != nil {
		if err := m.wal.Truncate(); err != nil {
			if commitErr != nil {
				// the failed write set would come back on replay
				m.halted = fmt.Errorf("wal truncate after failed commit: %w", err)
				m.log.Errorw("machine_halted", "err", m.halted)
				return fmt.Errorf("commit failed: %w", commitErr)
			}
			m.log.Warnw("wal_truncate_failed", "err", err)
		}
	}
	if commitErr != nil {
		m.log.Errorw("tx_commit_failed", "from", from.Hex(), "err", commitErr)
		return fmt.Errorf("commit failed: %w", commitErr)
	}
	m.log.Debugw("tx_committed", "from", from.Hex(), "writes", len(writes))
	return nil
}

// run calls fn, turning a panic into ErrPanic.
func (m *Machine) run(env *Env, fn func(env *Env) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Errorw("tx_panicked", "from", env.Caller.Hex(), "panic", r)
			err = fmt.Errorf("%w: %v", ErrPanic, r)
		}
	}()
	return fn(env)
}

// View runs fn in a read-only frame. Nothing it does is ever committed.
func (m *Machine) View(from common.Address, fn func(env *Env) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	defer m.db.Discard()
	return m.run(m.rootEnv(from, true), fn)
}

// Now returns the machine clock reading.
func (m *Machine) Now() int64 {
	return m.clock.Now().Unix()
}

func (m *Machine) rootEnv(from common.Address, readOnly bool) *Env {
	return &Env{
		m:           m,
		Caller:      from,
		Self:        from,
		CodeAddress: from,
		Value:       new(big.Int),
		ReadOnly:    readOnly,
		now:         m.clock.Now().Unix(),
	}
}
