// Package exchange matches pairs of signed orders. Each order commits, through
// a static predicate, to the calls it allows; a match validates both orders
// and both calls, runs the calls through the makers' proxies and records the
// fills, all in one transaction.
package exchange

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/uhyunpark/hyperswap/pkg/crypto"
	"github.com/uhyunpark/hyperswap/pkg/vm"
)

// Config identifies an exchange instance.
type Config struct {
	Address common.Address
	// Registries whose proxies orders may name.
	Registries         []common.Address
	Name               string
	Version            string
	ChainID            *big.Int
	PersonalSignPrefix string
}

type Exchange struct {
	m          *vm.Machine
	addr       common.Address
	registries map[common.Address]bool
	signer     *crypto.EIP712Signer
	prefix     string
	log        *zap.SugaredLogger

	hookMu sync.RWMutex
	hooks  []func(OrdersMatched)
}

// New returns an exchange driving m. The exchange code must already be
// deployed at cfg.Address (see Deploy).
func New(m *vm.Machine, cfg Config, logger *zap.SugaredLogger) *Exchange {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	regs := make(map[common.Address]bool, len(cfg.Registries))
	for _, r := range cfg.Registries {
		regs[r] = true
	}
	return &Exchange{
		m:          m,
		addr:       cfg.Address,
		registries: regs,
		signer: crypto.NewEIP712Signer(crypto.EIP712Domain{
			Name:              cfg.Name,
			Version:           cfg.Version,
			ChainID:           cfg.ChainID,
			VerifyingContract: cfg.Address,
		}),
		prefix: cfg.PersonalSignPrefix,
		log:    logger,
	}
}

func (x *Exchange) Address() common.Address      { return x.addr }
func (x *Exchange) Signer() *crypto.EIP712Signer { return x.signer }
func (x *Exchange) Registries() []common.Address {
	out := make([]common.Address, 0, len(x.registries))
	for r := range x.registries {
		out = append(out, r)
	}
	return out
}

// HashOrder returns the order's EIP-712 digest, its identity.
func (x *Exchange) HashOrder(o *Order) (common.Hash, error) {
	return x.signer.HashOrder(o.EIP712())
}

// HashToSign returns the digest an eth_sign style wallet signs for hash.
func (x *Exchange) HashToSign(hash common.Hash) common.Hash {
	return crypto.PersonalDigest(x.prefix, hash)
}

// SignOrder signs o's EIP-712 digest with s.
func (x *Exchange) SignOrder(s *crypto.Signer, o *Order) (Signature, error) {
	return x.signer.SignOrder(s, o.EIP712())
}

// OnMatch registers fn to receive every committed match, after commit.
func (x *Exchange) OnMatch(fn func(OrdersMatched)) {
	x.hookMu.Lock()
	defer x.hookMu.Unlock()
	x.hooks = append(x.hooks, fn)
}

func (x *Exchange) emit(ev OrdersMatched) {
	x.hookMu.RLock()
	hooks := x.hooks
	x.hookMu.RUnlock()
	for _, fn := range hooks {
		fn(ev)
	}
}

func (x *Exchange) call(ctx context.Context, caller common.Address, name string, args ...interface{}) error {
	input, err := ABI.Pack(name, args...)
	if err != nil {
		return err
	}
	return x.m.Transact(ctx, caller, func(env *vm.Env) error {
		_, err := env.Call(x.addr, nil, input)
		return err
	})
}

// ApproveOrderHash records caller's on-ledger approval of hash, which then
// authorizes any order of caller's with that hash without a signature.
func (x *Exchange) ApproveOrderHash(ctx context.Context, caller common.Address, hash common.Hash) error {
	if err := x.call(ctx, caller, "approveOrderHash", hash); err != nil {
		return err
	}
	x.log.Infow("order_approved", "maker", caller.Hex(), "hash", hash.Hex())
	return nil
}

// ApproveOrder approves o on behalf of its maker. orderbookInclusionDesired
// is only logged, so relayers watching the log can pick the order up.
func (x *Exchange) ApproveOrder(ctx context.Context, caller common.Address, o *Order, orderbookInclusionDesired bool) (common.Hash, error) {
	if o.Maker != caller {
		return common.Hash{}, fmt.Errorf("%w: maker %s, caller %s", ErrNotMaker, o.Maker.Hex(), caller.Hex())
	}
	hash, err := x.HashOrder(o)
	if err != nil {
		return common.Hash{}, err
	}
	if err := x.call(ctx, caller, "approveOrderHash", hash); err != nil {
		return common.Hash{}, err
	}
	x.log.Infow("order_approved",
		"maker", caller.Hex(),
		"hash", hash.Hex(),
		"registry", o.Registry.Hex(),
		"static_target", o.StaticTarget.Hex(),
		"maximum_fill", orZero(o.MaximumFill).String(),
		"orderbook_inclusion_desired", orderbookInclusionDesired,
	)
	return hash, nil
}

// SetOrderFill sets caller's fill of hash. Fills only ever go up.
func (x *Exchange) SetOrderFill(ctx context.Context, caller common.Address, hash common.Hash, fill *big.Int) error {
	if err := x.call(ctx, caller, "setOrderFill", hash, orZero(fill)); err != nil {
		return err
	}
	x.log.Infow("order_fill_changed", "maker", caller.Hex(), "hash", hash.Hex(), "fill", orZero(fill).String())
	return nil
}

// CancelOrder fills o completely, so it can never match again.
func (x *Exchange) CancelOrder(ctx context.Context, caller common.Address, o *Order) (common.Hash, error) {
	if o.Maker != caller {
		return common.Hash{}, fmt.Errorf("%w: maker %s, caller %s", ErrNotMaker, o.Maker.Hex(), caller.Hex())
	}
	hash, err := x.HashOrder(o)
	if err != nil {
		return common.Hash{}, err
	}
	if err := x.CancelHash(ctx, caller, hash, orZero(o.MaximumFill)); err != nil {
		return common.Hash{}, err
	}
	return hash, nil
}

// CancelHash cancels an order known only by hash and maximum fill, as
// relayed cancel requests are.
func (x *Exchange) CancelHash(ctx context.Context, caller common.Address, hash common.Hash, maximumFill *big.Int) error {
	if err := x.call(ctx, caller, "setOrderFill", hash, maximumFill); err != nil {
		return err
	}
	x.log.Infow("order_cancelled", "maker", caller.Hex(), "hash", hash.Hex())
	return nil
}

func (x *Exchange) view(name string, args ...interface{}) ([]interface{}, error) {
	input, err := ABI.Pack(name, args...)
	if err != nil {
		return nil, err
	}
	var out []interface{}
	err = x.m.View(common.Address{}, func(env *vm.Env) error {
		ret, err := env.StaticCall(x.addr, input)
		if err != nil {
			return err
		}
		out, err = ABI.Unpack(name, ret)
		return err
	})
	return out, err
}

// Fill returns how much of maker's order hash has been consumed.
func (x *Exchange) Fill(maker common.Address, hash common.Hash) (*big.Int, error) {
	out, err := x.view("fills", maker, hash)
	if err != nil {
		return nil, err
	}
	return out[0].(*big.Int), nil
}

// Approved reports whether maker approved hash on-ledger.
func (x *Exchange) Approved(maker common.Address, hash common.Hash) (bool, error) {
	out, err := x.view("approved", maker, hash)
	if err != nil {
		return false, err
	}
	return out[0].(bool), nil
}
