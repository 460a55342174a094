package registry

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/hyperswap/pkg/vm"
)

// Frame-level helpers for contracts that talk to a registry or a proxy.

// ProxyOf returns owner's proxy under reg, the zero address if none.
func ProxyOf(env *vm.Env, reg, owner common.Address) (common.Address, error) {
	out, err := staticCall(env, reg, RegistryABI, "proxies", owner)
	if err != nil {
		return common.Address{}, err
	}
	return out[0].(common.Address), nil
}

// IsAuthorized reports whether reg lets addr act through its proxies.
func IsAuthorized(env *vm.Env, reg, addr common.Address) (bool, error) {
	out, err := staticCall(env, reg, RegistryABI, "contracts", addr)
	if err != nil {
		return false, err
	}
	return out[0].(bool), nil
}

// Execute asks proxy to run one call on its user's behalf.
func Execute(env *vm.Env, proxy, dest common.Address, how vm.HowToCall, data []byte) error {
	input, err := ProxyABI.Pack("execute", dest, uint8(how), data)
	if err != nil {
		return err
	}
	_, err = env.Call(proxy, nil, input)
	return err
}

func staticCall(env *vm.Env, to common.Address, a abi.ABI, name string, args ...interface{}) ([]interface{}, error) {
	input, err := a.Pack(name, args...)
	if err != nil {
		return nil, err
	}
	ret, err := env.StaticCall(to, input)
	if err != nil {
		return nil, err
	}
	out, err := a.Unpack(name, ret)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", vm.ErrBadReturn, name, err)
	}
	return out, nil
}

// Client drives a deployed registry through top-level transactions.
type Client struct {
	m    *vm.Machine
	addr common.Address
}

func NewClient(m *vm.Machine, addr common.Address) *Client {
	return &Client{m: m, addr: addr}
}

func (c *Client) Address() common.Address { return c.addr }

func (c *Client) transact(ctx context.Context, from common.Address, name string, args ...interface{}) ([]interface{}, error) {
	input, err := RegistryABI.Pack(name, args...)
	if err != nil {
		return nil, err
	}
	var out []interface{}
	err = c.m.Transact(ctx, from, func(env *vm.Env) error {
		ret, err := env.Call(c.addr, nil, input)
		if err != nil {
			return err
		}
		out, err = RegistryABI.Unpack(name, ret)
		return err
	})
	return out, err
}

func (c *Client) view(name string, args ...interface{}) ([]interface{}, error) {
	var out []interface{}
	err := c.m.View(common.Address{}, func(env *vm.Env) error {
		var err error
		out, err = staticCall(env, c.addr, RegistryABI, name, args...)
		return err
	})
	return out, err
}

// RegisterProxy creates user's proxy, or returns the one it already has.
func (c *Client) RegisterProxy(ctx context.Context, user common.Address) (common.Address, error) {
	out, err := c.transact(ctx, user, "registerProxy")
	if err != nil {
		return common.Address{}, err
	}
	return out[0].(common.Address), nil
}

// RegisterProxyFor creates user's proxy on behalf of caller.
func (c *Client) RegisterProxyFor(ctx context.Context, caller, user common.Address) (common.Address, error) {
	out, err := c.transact(ctx, caller, "registerProxyFor", user)
	if err != nil {
		return common.Address{}, err
	}
	return out[0].(common.Address), nil
}

func (c *Client) Proxies(owner common.Address) (common.Address, error) {
	out, err := c.view("proxies", owner)
	if err != nil {
		return common.Address{}, err
	}
	return out[0].(common.Address), nil
}

func (c *Client) Contracts(addr common.Address) (bool, error) {
	out, err := c.view("contracts", addr)
	if err != nil {
		return false, err
	}
	return out[0].(bool), nil
}

func (c *Client) Pending(addr common.Address) (*big.Int, error) {
	out, err := c.view("pending", addr)
	if err != nil {
		return nil, err
	}
	return out[0].(*big.Int), nil
}

func (c *Client) Owner() (common.Address, error) {
	out, err := c.view("owner")
	if err != nil {
		return common.Address{}, err
	}
	return out[0].(common.Address), nil
}

func (c *Client) GrantInitialAuthentication(ctx context.Context, caller, addr common.Address) error {
	_, err := c.transact(ctx, caller, "grantInitialAuthentication", addr)
	return err
}

func (c *Client) StartGrantAuthentication(ctx context.Context, caller, addr common.Address) error {
	_, err := c.transact(ctx, caller, "startGrantAuthentication", addr)
	return err
}

func (c *Client) EndGrantAuthentication(ctx context.Context, caller, addr common.Address) error {
	_, err := c.transact(ctx, caller, "endGrantAuthentication", addr)
	return err
}

func (c *Client) RevokeAuthentication(ctx context.Context, caller, addr common.Address) error {
	_, err := c.transact(ctx, caller, "revokeAuthentication", addr)
	return err
}

// SetRevoke lets user's proxy refuse (or accept again) registry-authorized
// callers.
func (c *Client) SetRevoke(ctx context.Context, user common.Address, revoke bool) error {
	proxy, err := c.Proxies(user)
	if err != nil {
		return err
	}
	input, err := ProxyABI.Pack("setRevoke", revoke)
	if err != nil {
		return err
	}
	return c.m.Transact(ctx, user, func(env *vm.Env) error {
		_, err := env.Call(proxy, nil, input)
		return err
	})
}
