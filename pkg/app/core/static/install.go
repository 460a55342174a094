package static

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/hyperswap/pkg/vm"
)

const (
	KindGeneric = "static"
	KindMarket  = "static-market"
)

// Install registers both predicate libraries on m.
func Install(m *vm.Machine) {
	m.Register(KindGeneric, Generic())
	m.Register(KindMarket, Market())
}

// Deploy creates the generic library at addr, bound to the atomicizer its
// sequence predicates accept.
func Deploy(env *vm.Env, addr, atomicizer common.Address) error {
	args, err := initArgs.Pack(atomicizer)
	if err != nil {
		return err
	}
	return env.Create(addr, KindGeneric, args)
}

func DeployMarket(env *vm.Env, addr common.Address) error {
	return env.Create(addr, KindMarket, nil)
}
