package swap

import (
	"context"
	"fmt"
	"math/big"
	"math/rand"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/uhyunpark/hyperswap/pkg/app/core/assets"
	"github.com/uhyunpark/hyperswap/pkg/app/core/exchange"
	"github.com/uhyunpark/hyperswap/pkg/app/core/static"
	"github.com/uhyunpark/hyperswap/pkg/app/core/transaction"
	"github.com/uhyunpark/hyperswap/pkg/crypto"
	"github.com/uhyunpark/hyperswap/pkg/vm"
)

// FeederConfig controls simulated trading on a development network
type FeederConfig struct {
	Interval   time.Duration // How often a trade is attempted
	NumTraders int           // Number of simulated traders
	Funding    int64         // Fungible fixture tokens minted to each trader
	MaxPrice   int64         // Prices are drawn from [1, MaxPrice]
}

// DefaultFeederConfig returns reasonable defaults for a local node
func DefaultFeederConfig() FeederConfig {
	return FeederConfig{
		Interval:   time.Second,
		NumTraders: 8,
		Funding:    1_000_000,
		MaxPrice:   1_000,
	}
}

// Feeder sells freshly minted fixture NFTs between simulated traders. Each
// trade is a signed NFT-for-ERC20 match relayed through the app, so it walks
// the same path as an external matcher's request.
type Feeder struct {
	app     *App
	cfg     FeederConfig
	traders []*crypto.Signer
	matcher *crypto.Signer
	rng     *rand.Rand
	nextID  int64
	log     *zap.SugaredLogger
}

func NewFeeder(app *App, cfg FeederConfig, logger *zap.SugaredLogger) (*Feeder, error) {
	if cfg.NumTraders < 2 {
		return nil, fmt.Errorf("feeder needs at least 2 traders, got %d", cfg.NumTraders)
	}
	if cfg.MaxPrice <= 0 {
		cfg.MaxPrice = 1
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	traders := make([]*crypto.Signer, cfg.NumTraders)
	for i := range traders {
		k, err := crypto.GenerateKey()
		if err != nil {
			return nil, err
		}
		traders[i] = k
	}
	matcher, err := crypto.GenerateKey()
	if err != nil {
		return nil, err
	}

	return &Feeder{
		app:     app,
		cfg:     cfg,
		traders: traders,
		matcher: matcher,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
		nextID:  time.Now().UnixNano(), // ids of an earlier run stay minted
		log:     logger.Named("feeder"),
	}, nil
}

func (f *Feeder) Traders() []*crypto.Signer { return f.traders }
func (f *Feeder) Matcher() *crypto.Signer    { return f.matcher }

// Setup gives every trader a proxy, fixture tokens and approvals.
func (f *Feeder) Setup(ctx context.Context) error {
	for _, t := range f.traders {
		addr := t.Address()
		if _, err := f.app.RegisterProxy(ctx, addr); err != nil {
			return fmt.Errorf("register proxy for %s: %w", addr.Hex(), err)
		}
		if err := f.app.Fund(ctx, addr, nil, big.NewInt(f.cfg.Funding)); err != nil {
			return fmt.Errorf("fund %s: %w", addr.Hex(), err)
		}
		if err := f.app.ApproveFixtures(ctx, addr); err != nil {
			return fmt.Errorf("approve fixtures for %s: %w", addr.Hex(), err)
		}
	}
	f.log.Infow("feeder_ready", "traders", len(f.traders), "matcher", f.matcher.Address().Hex())
	return nil
}

func (f *Feeder) order(maker common.Address, selector [4]byte, extra []byte) (exchange.Order, error) {
	salt, err := crypto.GenerateSalt()
	if err != nil {
		return exchange.Order{}, err
	}
	now := f.app.Machine().Now()
	return exchange.Order{
		Registry:        f.app.Deployment().Registry,
		Maker:           maker,
		StaticTarget:    f.app.Deployment().Market,
		StaticSelector:  selector,
		StaticExtradata: extra,
		MaximumFill:     big.NewInt(1),
		ListingTime:     big.NewInt(now - 1),
		ExpirationTime:  big.NewInt(now + 3600),
		Salt:            salt,
	}, nil
}

// Trade mints a new NFT to a random seller and sells it to a random buyer.
func (f *Feeder) Trade(ctx context.Context) (*exchange.OrdersMatched, error) {
	tx, err := f.NextTrade(ctx)
	if err != nil {
		return nil, err
	}
	return f.app.SubmitMatch(ctx, tx)
}

// NextTrade mints the NFT of the next trade and returns the signed match
// request selling it, without submitting it.
func (f *Feeder) NextTrade(ctx context.Context) (*transaction.SignedTransaction, error) {
	i := f.rng.Intn(len(f.traders))
	j := f.rng.Intn(len(f.traders) - 1)
	if j >= i {
		j++
	}
	seller, buyer := f.traders[i], f.traders[j]
	f.nextID++
	id := big.NewInt(f.nextID)
	price := big.NewInt(1 + f.rng.Int63n(f.cfg.MaxPrice))
	d := f.app.Deployment()

	if err := f.app.MintNFT(ctx, seller.Address(), id); err != nil {
		return nil, err
	}

	sellExtra, err := static.EncodeMarket(d.ERC721, d.ERC20, id, price)
	if err != nil {
		return nil, err
	}
	buyExtra, err := static.EncodeMarket(d.ERC20, d.ERC721, id, price)
	if err != nil {
		return nil, err
	}
	sell, err := f.order(seller.Address(), static.DualSelector("ERC721ForERC20"), sellExtra)
	if err != nil {
		return nil, err
	}
	buy, err := f.order(buyer.Address(), static.DualSelector("ERC20ForERC721"), buyExtra)
	if err != nil {
		return nil, err
	}

	ex := f.app.Exchange()
	sellSig, err := ex.SignOrder(seller, &sell)
	if err != nil {
		return nil, err
	}
	buySig, err := ex.SignOrder(buyer, &buy)
	if err != nil {
		return nil, err
	}

	req := &exchange.MatchRequest{
		First: exchange.Side{
			Order: sell,
			Auth:  sellSig,
			Call:  exchange.Call{Target: d.ERC721, HowToCall: vm.Call, Data: assets.TransferFromData(seller.Address(), buyer.Address(), id)},
		},
		Second: exchange.Side{
			Order: buy,
			Auth:  buySig,
			Call:  exchange.Call{Target: d.ERC20, HowToCall: vm.Call, Data: assets.TransferFromData(buyer.Address(), seller.Address(), price)},
		},
		Value: new(big.Int),
	}

	nonce, err := f.app.Nonce(f.matcher.Address())
	if err != nil {
		return nil, err
	}
	tx := &transaction.SignedTransaction{Type: transaction.TxTypeMatch, Match: transaction.NewMatchPayload(req)}
	tx.Match.Nonce = fmt.Sprint(nonce)
	if err := f.app.Verifier().SignMatch(f.matcher, tx); err != nil {
		return nil, err
	}
	return tx, nil
}

// StartFeeder starts a background goroutine that trades every cfg.Interval.
// Returns a cancel function to stop the feeder
func StartFeeder(ctx context.Context, f *Feeder) context.CancelFunc {
	feedCtx, cancel := context.WithCancel(ctx)

	go func() {
		ticker := time.NewTicker(f.cfg.Interval)
		defer ticker.Stop()

		startTime := time.Now()
		trades, failures := 0, 0

		f.log.Infow("feeder_started", "interval", f.cfg.Interval.String(), "traders", len(f.traders))

		for {
			select {
			case <-feedCtx.Done():
				f.log.Infow("feeder_stopped",
					"trades", trades,
					"failures", failures,
					"elapsed", time.Since(startTime).Round(time.Second).String(),
				)
				return

			case <-ticker.C:
				if _, err := f.Trade(feedCtx); err != nil {
					failures++
					f.log.Warnw("feeder_trade_failed", "reason", exchange.Reason(err), "err", err)
					continue
				}
				trades++
			}
		}
	}()

	return cancel
}
