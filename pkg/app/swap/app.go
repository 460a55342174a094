// Package swap is the node application: it deploys the protocol contracts at
// genesis, relays signed match and cancel requests into the exchange, keeps
// matcher nonces and records every committed match.
package swap

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/uhyunpark/hyperswap/params"
	"github.com/uhyunpark/hyperswap/pkg/app/core/assets"
	"github.com/uhyunpark/hyperswap/pkg/app/core/atomicizer"
	"github.com/uhyunpark/hyperswap/pkg/app/core/exchange"
	"github.com/uhyunpark/hyperswap/pkg/app/core/registry"
	"github.com/uhyunpark/hyperswap/pkg/app/core/static"
	"github.com/uhyunpark/hyperswap/pkg/app/core/transaction"
	"github.com/uhyunpark/hyperswap/pkg/crypto"
	"github.com/uhyunpark/hyperswap/pkg/state"
	"github.com/uhyunpark/hyperswap/pkg/storage"
	"github.com/uhyunpark/hyperswap/pkg/util"
	"github.com/uhyunpark/hyperswap/pkg/vm"
)

var (
	ErrInvalidNonce     = errors.New("swap: invalid matcher nonce")
	ErrMatcherSignature = errors.New("swap: invalid matcher signature")
	ErrCancelSignature  = errors.New("swap: invalid cancel signature")
	ErrMalformed        = errors.New("swap: malformed transaction")
	ErrFixturesDisabled = errors.New("swap: token fixtures are only deployed on development networks")
)

// Store is the durable backend of the ledger. Match history lives in the
// ledger too, so it commits with the match it records.
type Store interface {
	state.Backend
}

// Deployment lists where genesis puts each contract.
type Deployment struct {
	Registry   common.Address `json:"registry"`
	Atomicizer common.Address `json:"atomicizer"`
	Static     common.Address `json:"static"`
	Market     common.Address `json:"market"`
	Exchange   common.Address `json:"exchange"`
	// Token fixtures, zero outside development networks.
	ERC20  common.Address `json:"erc20,omitempty"`
	ERC721 common.Address `json:"erc721,omitempty"`
}

func deployAddress(network, name string) common.Address {
	return vm.DeriveAddress([]byte("hyperswap"), []byte(network), []byte(name))
}

// NewDeployment derives the contract addresses for cfg's network.
func NewDeployment(cfg params.Config) Deployment {
	net := cfg.Exchange.Network
	d := Deployment{
		Registry:   deployAddress(net, "registry"),
		Atomicizer: deployAddress(net, "atomicizer"),
		Static:     deployAddress(net, "static"),
		Market:     deployAddress(net, "static-market"),
		Exchange:   deployAddress(net, "exchange"),
	}
	if fixturesEnabled(net) {
		d.ERC20 = deployAddress(net, "test-erc20")
		d.ERC721 = deployAddress(net, "test-erc721")
	}
	return d
}

func fixturesEnabled(network string) bool {
	return network == "development" || network == "coverage"
}

const nonceSlotPrefix = "nonces/"

type genesisStep struct {
	name string
	fn   func() error
}

type App struct {
	cfg      params.Config
	deploy   Deployment
	m        *vm.Machine
	ex       *exchange.Exchange
	reg      *registry.Client
	verifier *transaction.Verifier
	nonces   common.Address
	matchLog common.Address
	relayer  common.Address
	log      *zap.SugaredLogger

	// OnMatch is called with each match record after its match commits.
	OnMatch func(rec *storage.MatchRecord)
}

// NewApp builds the machine on store, installs every contract kind and wires
// the exchange. Genesis must run before the first request.
func NewApp(cfg params.Config, store Store, wal vm.WAL, clock util.Clock, logger *zap.SugaredLogger) *App {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if clock == nil {
		clock = util.RealClock{}
	}

	m := vm.NewMachine(store, wal, clock, cfg.VM.MaxCallDepth, logger.Named("vm"))
	registry.Install(m)
	atomicizer.Install(m)
	static.Install(m)
	assets.Install(m)
	exchange.Install(m)

	d := NewDeployment(cfg)
	ex := exchange.New(m, exchange.Config{
		Address:            d.Exchange,
		Registries:         []common.Address{d.Registry},
		Name:               cfg.Exchange.Name,
		Version:            cfg.Exchange.Version,
		ChainID:            cfg.Exchange.ChainID,
		PersonalSignPrefix: cfg.Exchange.PersonalSignPrefix,
	}, logger.Named("exchange"))

	a := &App{
		cfg:      cfg,
		deploy:   d,
		m:        m,
		ex:       ex,
		reg:      registry.NewClient(m, d.Registry),
		verifier: transaction.NewVerifier(ex.Signer().Domain()),
		nonces:   deployAddress(cfg.Exchange.Network, "matcher-nonces"),
		matchLog: deployAddress(cfg.Exchange.Network, "match-log"),
		relayer:  deployAddress(cfg.Exchange.Network, "relayer"),
		log:      logger.Named("app"),
	}
	return a
}

func (a *App) Machine() *vm.Machine            { return a.m }
func (a *App) Exchange() *exchange.Exchange    { return a.ex }
func (a *App) Registry() *registry.Client      { return a.reg }
func (a *App) Verifier() *transaction.Verifier { return a.verifier }
func (a *App) Deployment() Deployment          { return a.deploy }
func (a *App) Config() params.Config           { return a.cfg }

// Relayer is the matcher of unsigned match requests.
func (a *App) Relayer() common.Address { return a.relayer }

// Genesis deploys the protocol contracts and authorizes the exchange on the
// registry. It is a no-op on a ledger that already has them.
func (a *App) Genesis(ctx context.Context) error {
	d, owner := a.deploy, a.cfg.Registry.Owner
	deployed := false
	err := a.m.Transact(ctx, owner, func(env *vm.Env) error {
		if env.Exists(d.Exchange) {
			return nil
		}
		steps := []genesisStep{
			{"registry", func() error { return registry.Deploy(env, d.Registry, owner, a.cfg.Registry.AuthDelay) }},
			{"atomicizer", func() error { return atomicizer.Deploy(env, d.Atomicizer) }},
			{"static", func() error { return static.Deploy(env, d.Static, d.Atomicizer) }},
			{"static-market", func() error { return static.DeployMarket(env, d.Market) }},
			{"exchange", func() error { return exchange.Deploy(env, d.Exchange) }},
			{"grant", func() error {
				input, err := registry.RegistryABI.Pack("grantInitialAuthentication", d.Exchange)
				if err != nil {
					return err
				}
				_, err = env.Call(d.Registry, nil, input)
				return err
			}},
		}
		if fixturesEnabled(a.cfg.Exchange.Network) {
			steps = append(steps,
				genesisStep{"test-erc20", func() error { return assets.DeployERC20(env, d.ERC20) }},
				genesisStep{"test-erc721", func() error { return assets.DeployERC721(env, d.ERC721) }},
			)
		}
		for _, s := range steps {
			if err := s.fn(); err != nil {
				return fmt.Errorf("genesis %s: %w", s.name, err)
			}
		}
		deployed = true
		return nil
	})
	if err != nil {
		return err
	}
	if deployed {
		a.log.Infow("genesis_deployed",
			"network", a.cfg.Exchange.Network,
			"chain_id", a.cfg.Exchange.ChainID.String(),
			"registry", d.Registry.Hex(),
			"exchange", d.Exchange.Hex(),
			"static", d.Static.Hex(),
			"market", d.Market.Hex(),
		)
	} else {
		a.log.Infow("genesis_skipped", "exchange", d.Exchange.Hex())
	}
	return nil
}

func nonceSlot(matcher common.Address) string { return nonceSlotPrefix + matcher.Hex() }

// Nonce returns the nonce matcher's next signed request must carry.
func (a *App) Nonce(matcher common.Address) (uint64, error) {
	var n uint64
	err := a.m.View(matcher, func(env *vm.Env) error {
		return env.Enter(a.nonces, nil, func(ne *vm.Env) error {
			n = ne.LoadUint64(nonceSlot(matcher))
			return nil
		})
	})
	return n, err
}

// useNonce checks nonce against matcher's counter and bumps it, inside the
// match transaction so a rejected match leaves the nonce unused.
func (a *App) useNonce(env *vm.Env, matcher common.Address, nonce *big.Int) error {
	return env.Enter(a.nonces, nil, func(ne *vm.Env) error {
		cur := ne.LoadUint64(nonceSlot(matcher))
		if !nonce.IsUint64() || nonce.Uint64() != cur {
			return fmt.Errorf("%w: got %s, want %d", ErrInvalidNonce, nonce, cur)
		}
		return ne.StoreUint64(nonceSlot(matcher), cur+1)
	})
}

// SubmitMatch relays a match transaction. A signed request runs with the
// signer as matcher and consumes its nonce; an unsigned one runs as the
// relayer and may not carry value.
func (a *App) SubmitMatch(ctx context.Context, tx *transaction.SignedTransaction) (*exchange.OrdersMatched, error) {
	if err := tx.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if tx.Type != transaction.TxTypeMatch {
		return nil, fmt.Errorf("%w: expected %s transaction, got %s", ErrMalformed, transaction.TxTypeMatch, tx.Type)
	}
	req, err := tx.Match.ToRequest()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	matcher := a.relayer
	var before func(env *vm.Env) error
	if tx.Signature != "" {
		signer, nonce, valid, err := a.verifier.VerifyMatchTransaction(tx)
		if err != nil || !valid {
			return nil, fmt.Errorf("%w: %v", ErrMatcherSignature, err)
		}
		matcher = signer
		before = func(env *vm.Env) error { return a.useNonce(env, signer, nonce) }
	}

	var rec *storage.MatchRecord
	after := func(env *vm.Env, ev *exchange.OrdersMatched) error {
		rec = newMatchRecord(ev)
		return a.appendMatch(env, rec)
	}
	ev, err := a.ex.MatchOrdersWith(ctx, matcher, req, before, after)
	if err != nil {
		return nil, err
	}
	if a.OnMatch != nil {
		a.OnMatch(rec)
	}
	return ev, nil
}

// SubmitCancel relays a maker-signed cancellation and returns the cancelled
// order hash.
func (a *App) SubmitCancel(ctx context.Context, tx *transaction.SignedTransaction) (common.Hash, error) {
	if err := tx.Validate(); err != nil {
		return common.Hash{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if tx.Type != transaction.TxTypeCancel {
		return common.Hash{}, fmt.Errorf("%w: expected %s transaction, got %s", ErrMalformed, transaction.TxTypeCancel, tx.Type)
	}
	maker, hash, valid, err := a.verifier.VerifyCancelTransaction(tx)
	if err != nil || !valid {
		return common.Hash{}, fmt.Errorf("%w: %v", ErrCancelSignature, err)
	}
	order, err := tx.Cancel.Order.ToOrder()
	if err != nil {
		return common.Hash{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := a.ex.CancelHash(ctx, maker, hash, order.MaximumFill); err != nil {
		return common.Hash{}, err
	}
	return hash, nil
}

// RegisterProxy creates user's proxy on the exchange's registry, paid for by
// the relayer. Registering twice returns the existing proxy.
func (a *App) RegisterProxy(ctx context.Context, user common.Address) (common.Address, error) {
	if proxy, err := a.reg.Proxies(user); err == nil && proxy != (common.Address{}) {
		return proxy, nil
	}
	proxy, err := a.reg.RegisterProxyFor(ctx, a.relayer, user)
	if err != nil {
		return common.Address{}, err
	}
	a.log.Infow("proxy_registered", "user", user.Hex(), "proxy", proxy.Hex())
	return proxy, nil
}

// Proxy returns owner's proxy, the zero address if none.
func (a *App) Proxy(owner common.Address) (common.Address, error) {
	return a.reg.Proxies(owner)
}

// OrderStatus is the on-ledger state of one order hash.
type OrderStatus struct {
	Hash     common.Hash
	Maker    common.Address
	Fill     *big.Int
	Approved bool
}

func (a *App) OrderStatus(maker common.Address, hash common.Hash) (*OrderStatus, error) {
	fill, err := a.ex.Fill(maker, hash)
	if err != nil {
		return nil, err
	}
	approved, err := a.ex.Approved(maker, hash)
	if err != nil {
		return nil, err
	}
	return &OrderStatus{Hash: hash, Maker: maker, Fill: fill, Approved: approved}, nil
}

// HashOrder returns the order hash and the personal-sign digest of it.
func (a *App) HashOrder(o *exchange.Order) (hash, toSign common.Hash, err error) {
	hash, err = a.ex.HashOrder(o)
	if err != nil {
		return common.Hash{}, common.Hash{}, err
	}
	return hash, a.ex.HashToSign(hash), nil
}

// Fund mints native currency and fungible fixture tokens to to.
func (a *App) Fund(ctx context.Context, to common.Address, native, tokens *big.Int) error {
	if !fixturesEnabled(a.cfg.Exchange.Network) {
		return ErrFixturesDisabled
	}
	return a.m.Transact(ctx, a.relayer, func(env *vm.Env) error {
		if native != nil && native.Sign() > 0 {
			if err := env.Mint(to, native); err != nil {
				return err
			}
		}
		if tokens != nil && tokens.Sign() > 0 {
			return assets.MintERC20(env, a.deploy.ERC20, to, tokens)
		}
		return nil
	})
}

// MintNFT mints fixture NFT id to to.
func (a *App) MintNFT(ctx context.Context, to common.Address, id *big.Int) error {
	if !fixturesEnabled(a.cfg.Exchange.Network) {
		return ErrFixturesDisabled
	}
	return a.m.Transact(ctx, a.relayer, func(env *vm.Env) error {
		return assets.MintERC721(env, a.deploy.ERC721, to, id)
	})
}

// ApproveFixtures lets owner's proxy move all of owner's fixture tokens.
func (a *App) ApproveFixtures(ctx context.Context, owner common.Address) error {
	if !fixturesEnabled(a.cfg.Exchange.Network) {
		return ErrFixturesDisabled
	}
	proxy, err := a.reg.Proxies(owner)
	if err != nil {
		return err
	}
	if proxy == (common.Address{}) {
		return fmt.Errorf("%w: %s", exchange.ErrProxyNotFound, owner.Hex())
	}
	return a.m.Transact(ctx, owner, func(env *vm.Env) error {
		if err := assets.ApproveERC20(env, a.deploy.ERC20, proxy, new(big.Int).Lsh(big.NewInt(1), 255)); err != nil {
			return err
		}
		return assets.SetApprovalForAll(env, a.deploy.ERC721, proxy, true)
	})
}

// FixtureBalances returns owner's native and fungible fixture balances.
func (a *App) FixtureBalances(owner common.Address) (native, tokens *big.Int, err error) {
	err = a.m.View(owner, func(env *vm.Env) error {
		native = env.Balance(owner)
		if a.deploy.ERC20 == (common.Address{}) {
			tokens = new(big.Int)
			return nil
		}
		var err error
		tokens, err = assets.BalanceOfERC20(env, a.deploy.ERC20, owner)
		return err
	})
	return native, tokens, err
}

// NFTOwner returns the owner of fixture NFT id.
func (a *App) NFTOwner(id *big.Int) (common.Address, error) {
	var owner common.Address
	err := a.m.View(common.Address{}, func(env *vm.Env) error {
		var err error
		owner, err = assets.OwnerOf(env, a.deploy.ERC721, id)
		return err
	})
	return owner, err
}

// Domain is the EIP-712 domain orders and requests are signed under.
func (a *App) Domain() crypto.EIP712Domain {
	return a.ex.Signer().Domain()
}
