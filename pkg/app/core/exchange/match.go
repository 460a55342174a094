package exchange

import (
	"bytes"
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/hyperswap/pkg/app/core/registry"
	"github.com/uhyunpark/hyperswap/pkg/app/core/static"
	"github.com/uhyunpark/hyperswap/pkg/crypto"
	"github.com/uhyunpark/hyperswap/pkg/vm"
)

// MatchOrders runs req as a transaction sent by matcher.
func (x *Exchange) MatchOrders(ctx context.Context, matcher common.Address, req *MatchRequest) (*OrdersMatched, error) {
	return x.MatchOrdersWith(ctx, matcher, req, nil, nil)
}

// MatchOrdersWith is MatchOrders with before run first and after run last in
// the same transaction; if either fails nothing is matched.
func (x *Exchange) MatchOrdersWith(ctx context.Context, matcher common.Address, req *MatchRequest, before func(env *vm.Env) error, after func(env *vm.Env, ev *OrdersMatched) error) (*OrdersMatched, error) {
	var ev *OrdersMatched
	err := x.m.Transact(ctx, matcher, func(env *vm.Env) error {
		if before != nil {
			if err := before(env); err != nil {
				return err
			}
		}
		var err error
		if ev, err = x.Match(env, req); err != nil {
			return err
		}
		if after != nil {
			return after(env, ev)
		}
		return nil
	})
	if err != nil {
		x.log.Infow("match_rejected", "matcher", matcher.Hex(), "reason", Reason(err), "err", err)
		return nil, err
	}

	x.log.Infow("orders_matched",
		"first_hash", ev.FirstHash.Hex(),
		"second_hash", ev.SecondHash.Hex(),
		"first_fill", ev.NewFirstFill.String(),
		"second_fill", ev.NewSecondFill.String(),
		"matcher", matcher.Hex(),
		"value", ev.Value.String(),
	)
	x.emit(*ev)
	return ev, nil
}

// Match runs the match protocol in a frame of the caller's transaction, with
// env's Self as matcher. On error every effect of the match is undone, but
// the enclosing transaction is left to the caller.
func (x *Exchange) Match(env *vm.Env, req *MatchRequest) (*OrdersMatched, error) {
	var ev *OrdersMatched
	err := env.Enter(x.addr, req.Value, func(ex *vm.Env) error {
		var err error
		ev, err = x.match(ex, req)
		return err
	})
	if err != nil {
		return nil, err
	}
	return ev, nil
}

// side is one order as seen during a match.
type side struct {
	*Side
	name  string
	hash  common.Hash
	prev  *big.Int
	proxy common.Address
	delta *big.Int
}

func (s *side) max() *big.Int { return orZero(s.Order.MaximumFill) }

func (x *Exchange) match(ex *vm.Env, req *MatchRequest) (*OrdersMatched, error) {
	first := &side{Side: &req.First, name: "first"}
	second := &side{Side: &req.Second, name: "second"}
	sides := [2]*side{first, second}
	now := ex.Timestamp()
	matcher := ex.Caller

	for _, s := range sides {
		var err error
		if s.hash, err = x.HashOrder(&s.Order); err != nil {
			return nil, fmt.Errorf("hash %s order: %w", s.name, err)
		}
	}

	for _, s := range sides {
		if err := x.authenticate(ex, &s.Order, s.hash, s.Auth); err != nil {
			return nil, fmt.Errorf("%s order: %w", s.name, err)
		}
	}

	for _, s := range sides {
		if !live(&s.Order, now) {
			return nil, fmt.Errorf("%w: %s order %s at %s", ErrOrderExpiredOrNotYetListed, s.name, s.hash.Hex(), now)
		}
	}

	for _, s := range sides {
		s.prev = ex.LoadBig(fillSlot(s.Order.Maker, s.hash))
		if s.prev.Cmp(s.max()) >= 0 {
			return nil, fmt.Errorf("%w: %s order %s filled %s of %s", ErrFillExceeded, s.name, s.hash.Hex(), s.prev, s.max())
		}
	}

	if first.hash == second.hash {
		return nil, fmt.Errorf("%w: %s", ErrSelfMatch, first.hash.Hex())
	}
	reg := first.Order.Registry
	if second.Order.Registry != reg {
		return nil, fmt.Errorf("%w: %s and %s", ErrRegistryMismatch, reg.Hex(), second.Order.Registry.Hex())
	}
	if !x.registries[reg] {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRegistry, reg.Hex())
	}
	for _, s := range sides {
		proxy, err := registry.ProxyOf(ex, reg, s.Order.Maker)
		if err != nil {
			return nil, fmt.Errorf("proxy lookup: %w", err)
		}
		if proxy == (common.Address{}) {
			return nil, fmt.Errorf("%w: %s", ErrProxyNotFound, s.Order.Maker.Hex())
		}
		s.proxy = proxy
	}

	value := orZero(req.Value)
	for i, s := range sides {
		counter := sides[1-i]
		if !ex.Exists(s.Order.StaticTarget) {
			return nil, fmt.Errorf("%w: %s order static target %s has no code", ErrStaticCallFailed, s.name, s.Order.StaticTarget.Hex())
		}
		delta, err := static.CallDual(ex, s.Order.StaticTarget, s.Order.StaticSelector, &static.Dual{
			Extra: s.Order.StaticExtradata,
			Addresses: [7]common.Address{
				s.Order.Registry, s.Order.Maker, s.Call.Target,
				counter.Order.Registry, counter.Order.Maker, counter.Call.Target,
				matcher,
			},
			HowToCalls: [2]vm.HowToCall{s.Call.HowToCall, counter.Call.HowToCall},
			Uints: [6]*big.Int{
				value, s.max(), orZero(s.Order.ListingTime), orZero(s.Order.ExpirationTime),
				orZero(counter.Order.ListingTime), s.prev,
			},
			Data:        s.Call.Data,
			Counterdata: counter.Call.Data,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %s order: %w", ErrStaticCallFailed, s.name, err)
		}
		if next := new(big.Int).Add(s.prev, delta); next.Cmp(s.max()) > 0 {
			return nil, fmt.Errorf("%w: %s order %s would reach %s of %s", ErrFillExceeded, s.name, s.hash.Hex(), next, s.max())
		}
		s.delta = delta
	}

	// ex already holds the value; it all goes to the first maker
	if err := ex.Transfer(first.Order.Maker, value); err != nil {
		return nil, err
	}
	for _, s := range sides {
		if !ex.Exists(s.Call.Target) {
			return nil, fmt.Errorf("%w: %s call target %s has no code", vm.ErrCallReverted, s.name, s.Call.Target.Hex())
		}
		if err := registry.Execute(ex, s.proxy, s.Call.Target, s.Call.HowToCall, s.Call.Data); err != nil {
			return nil, fmt.Errorf("%s call: %w", s.name, err)
		}
	}

	for _, s := range sides {
		if err := ex.StoreBig(fillSlot(s.Order.Maker, s.hash), new(big.Int).Add(s.prev, s.delta)); err != nil {
			return nil, err
		}
	}

	return &OrdersMatched{
		FirstHash:     first.hash,
		SecondHash:    second.hash,
		FirstMaker:    first.Order.Maker,
		SecondMaker:   second.Order.Maker,
		NewFirstFill:  new(big.Int).Add(first.prev, first.delta),
		NewSecondFill: new(big.Int).Add(second.prev, second.delta),
		Metadata:      req.Metadata,
		Matcher:       matcher,
		Value:         new(big.Int).Set(value),
		Timestamp:     now.Int64(),
	}, nil
}

func live(o *Order, now *big.Int) bool {
	if orZero(o.ListingTime).Cmp(now) > 0 {
		return false
	}
	exp := orZero(o.ExpirationTime)
	return exp.Sign() == 0 || now.Cmp(exp) < 0
}

// authenticate accepts an order its matcher made, one its maker approved
// on-ledger, or one carrying a valid signature. Contract makers validate
// signatures themselves.
func (x *Exchange) authenticate(ex *vm.Env, o *Order, hash common.Hash, auth Authorization) error {
	if o.Maker == ex.Caller {
		return nil
	}
	if ex.LoadBool(approvedSlot(o.Maker, hash)) {
		return nil
	}
	sig, ok := auth.(Signature)
	if !ok {
		return fmt.Errorf("%w: %s is not approved", ErrInvalidSignature, hash.Hex())
	}

	if ex.Exists(o.Maker) {
		return x.contractSignature(ex, o.Maker, hash, sig)
	}
	if crypto.VerifySignature(o.Maker, hash.Bytes(), sig) {
		return nil
	}
	if crypto.VerifySignature(o.Maker, x.HashToSign(hash).Bytes(), sig) {
		return nil
	}
	return fmt.Errorf("%w: %s not signed by %s", ErrInvalidSignature, hash.Hex(), o.Maker.Hex())
}

func (x *Exchange) contractSignature(ex *vm.Env, maker common.Address, hash common.Hash, sig []byte) error {
	input, err := ERC1271ABI.Pack("isValidSignature", hash, []byte(sig))
	if err != nil {
		return err
	}
	ret, err := ex.StaticCall(maker, input)
	if err != nil {
		return fmt.Errorf("%w: %s rejected %s: %w", ErrInvalidSignature, maker.Hex(), hash.Hex(), err)
	}
	if len(ret) < 4 || !bytes.Equal(ret[:4], EIP1271MagicValue[:]) {
		return fmt.Errorf("%w: %s rejected %s", ErrInvalidSignature, maker.Hex(), hash.Hex())
	}
	return nil
}
