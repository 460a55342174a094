// Package registry implements the proxy registry and the per-user
// asset-custody proxies it creates.
package registry

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/hyperswap/pkg/vm"
)

// Code kinds installed on the machine.
const (
	KindRegistry = "registry"
	KindProxy    = "proxy"
)

const (
	slotOwner       = "owner"
	slotInitialized = "initialized"
	slotDelay       = "delay"
)

func proxySlot(owner common.Address) string   { return "proxies/" + owner.Hex() }
func contractSlot(addr common.Address) string { return "contracts/" + addr.Hex() }
func pendingSlot(addr common.Address) string  { return "pending/" + addr.Hex() }

// Install registers the registry and proxy code on m.
func Install(m *vm.Machine) {
	m.Register(KindRegistry, Registry{})
	m.Register(KindProxy, Proxy{})
}

// Deploy creates a registry at addr owned by owner.
func Deploy(env *vm.Env, addr, owner common.Address, delay time.Duration) error {
	args, err := registryInit.Pack(owner, big.NewInt(int64(delay/time.Second)))
	if err != nil {
		return err
	}
	return env.Create(addr, KindRegistry, args)
}

// ProxyAddress is where the registry at reg places user's proxy.
func ProxyAddress(reg, user common.Address) common.Address {
	return vm.DeriveAddress(reg.Bytes(), user.Bytes())
}

// Registry maps users to their proxies and keeps the set of contracts every
// proxy lets act on its user's behalf. Additions beyond the first one go
// through a timelock so users can revoke before a new contract goes live.
type Registry struct{}

func (Registry) Init(env *vm.Env, args []byte) error {
	vals, err := registryInit.Unpack(args)
	if err != nil {
		return fmt.Errorf("registry init: %w", err)
	}
	if err := env.StoreAddress(slotOwner, vals[0].(common.Address)); err != nil {
		return err
	}
	return env.StoreUint64(slotDelay, vals[1].(*big.Int).Uint64())
}

func (r Registry) Run(env *vm.Env, input []byte) ([]byte, error) {
	method, args, err := vm.Decode(RegistryABI, input)
	if err != nil {
		return nil, err
	}

	switch method.Name {
	case "registerProxy":
		proxy, err := r.registerProxy(env, env.Caller)
		if err != nil {
			return nil, err
		}
		return method.Outputs.Pack(proxy)

	case "registerProxyFor":
		proxy, err := r.registerProxy(env, args[0].(common.Address))
		if err != nil {
			return nil, err
		}
		return method.Outputs.Pack(proxy)

	case "proxies":
		return method.Outputs.Pack(env.LoadAddress(proxySlot(args[0].(common.Address))))

	case "contracts":
		return method.Outputs.Pack(env.LoadBool(contractSlot(args[0].(common.Address))))

	case "pending":
		return method.Outputs.Pack(new(big.Int).SetUint64(env.LoadUint64(pendingSlot(args[0].(common.Address)))))

	case "owner":
		return method.Outputs.Pack(env.LoadAddress(slotOwner))

	case "authDelay":
		return method.Outputs.Pack(new(big.Int).SetUint64(env.LoadUint64(slotDelay)))

	case "grantInitialAuthentication":
		return nil, r.grantInitial(env, args[0].(common.Address))

	case "startGrantAuthentication":
		return nil, r.startGrant(env, args[0].(common.Address))

	case "endGrantAuthentication":
		return nil, r.endGrant(env, args[0].(common.Address))

	case "revokeAuthentication":
		if err := r.onlyOwner(env); err != nil {
			return nil, err
		}
		return nil, env.StoreBool(contractSlot(args[0].(common.Address)), false)

	case "transferOwnership":
		if err := r.onlyOwner(env); err != nil {
			return nil, err
		}
		return nil, env.StoreAddress(slotOwner, args[0].(common.Address))
	}
	return nil, fmt.Errorf("%w: %s", vm.ErrUnknownMethod, method.Name)
}

func (Registry) registerProxy(env *vm.Env, user common.Address) (common.Address, error) {
	if existing := env.LoadAddress(proxySlot(user)); existing != (common.Address{}) {
		return existing, nil
	}

	proxy := ProxyAddress(env.Self, user)
	args, err := proxyInit.Pack(user, env.Self)
	if err != nil {
		return common.Address{}, err
	}
	if err := env.Create(proxy, KindProxy, args); err != nil {
		return common.Address{}, fmt.Errorf("create proxy for %s: %w", user.Hex(), err)
	}
	if err := env.StoreAddress(proxySlot(user), proxy); err != nil {
		return common.Address{}, err
	}
	return proxy, nil
}

func (Registry) onlyOwner(env *vm.Env) error {
	if env.Caller != env.LoadAddress(slotOwner) {
		return ErrNotOwner
	}
	return nil
}

func (r Registry) grantInitial(env *vm.Env, addr common.Address) error {
	if err := r.onlyOwner(env); err != nil {
		return err
	}
	if env.LoadBool(slotInitialized) {
		return ErrAlreadyInitialized
	}
	if err := env.StoreBool(slotInitialized, true); err != nil {
		return err
	}
	return env.StoreBool(contractSlot(addr), true)
}

func (r Registry) startGrant(env *vm.Env, addr common.Address) error {
	if err := r.onlyOwner(env); err != nil {
		return err
	}
	if env.LoadBool(contractSlot(addr)) {
		return ErrAlreadyAuthorized
	}
	if env.LoadUint64(pendingSlot(addr)) != 0 {
		return ErrAlreadyPending
	}
	return env.StoreUint64(pendingSlot(addr), env.Timestamp().Uint64())
}

func (r Registry) endGrant(env *vm.Env, addr common.Address) error {
	if err := r.onlyOwner(env); err != nil {
		return err
	}
	if env.LoadBool(contractSlot(addr)) {
		return ErrAlreadyAuthorized
	}
	started := env.LoadUint64(pendingSlot(addr))
	if started == 0 {
		return ErrNotPending
	}
	if started+env.LoadUint64(slotDelay) >= env.Timestamp().Uint64() {
		return ErrTimelocked
	}
	if err := env.StoreUint64(pendingSlot(addr), 0); err != nil {
		return err
	}
	return env.StoreBool(contractSlot(addr), true)
}
