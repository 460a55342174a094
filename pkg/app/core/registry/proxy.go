package registry

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/hyperswap/pkg/vm"
)

const (
	slotUser     = "user"
	slotRegistry = "registry"
	slotRevoked  = "revoked"
)

// Proxy holds a user's assets approvals and executes calls on the user's
// behalf, either for the user directly or for a contract the registry
// authorizes.
type Proxy struct{}

func (Proxy) Init(env *vm.Env, args []byte) error {
	vals, err := proxyInit.Unpack(args)
	if err != nil {
		return fmt.Errorf("proxy init: %w", err)
	}
	if err := env.StoreAddress(slotUser, vals[0].(common.Address)); err != nil {
		return err
	}
	return env.StoreAddress(slotRegistry, vals[1].(common.Address))
}

func (p Proxy) Run(env *vm.Env, input []byte) ([]byte, error) {
	// plain deposit
	if len(input) == 0 {
		return nil, nil
	}
	method, args, err := vm.Decode(ProxyABI, input)
	if err != nil {
		return nil, err
	}

	switch method.Name {
	case "execute":
		if err := p.execute(env, args[0].(common.Address), vm.HowToCall(args[1].(uint8)), args[2].([]byte)); err != nil {
			return nil, err
		}
		return method.Outputs.Pack(true)

	case "setRevoke":
		if env.Caller != env.LoadAddress(slotUser) {
			return nil, ErrUnauthorized
		}
		return nil, env.StoreBool(slotRevoked, args[0].(bool))

	case "user":
		return method.Outputs.Pack(env.LoadAddress(slotUser))

	case "registry":
		return method.Outputs.Pack(env.LoadAddress(slotRegistry))

	case "revoked":
		return method.Outputs.Pack(env.LoadBool(slotRevoked))
	}
	return nil, fmt.Errorf("%w: %s", vm.ErrUnknownMethod, method.Name)
}

func (p Proxy) execute(env *vm.Env, dest common.Address, how vm.HowToCall, data []byte) error {
	ok, err := p.authorized(env, env.Caller)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnauthorized, env.Caller.Hex())
	}

	switch how {
	case vm.Call:
		_, err = env.Call(dest, nil, data)
	case vm.DelegateCall:
		_, err = env.DelegateCall(dest, data)
	default:
		return fmt.Errorf("%w: %d", ErrUnknownHowToCall, uint8(how))
	}
	if err != nil {
		return fmt.Errorf("%w: %s to %s: %w", vm.ErrCallReverted, how, dest.Hex(), err)
	}
	return nil
}

func (Proxy) authorized(env *vm.Env, caller common.Address) (bool, error) {
	if caller == env.LoadAddress(slotUser) {
		return true, nil
	}
	if env.LoadBool(slotRevoked) {
		return false, nil
	}
	return IsAuthorized(env, env.LoadAddress(slotRegistry), caller)
}
