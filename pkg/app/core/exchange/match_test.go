package exchange

import (
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/hyperswap/pkg/app/core/assets"
	"github.com/uhyunpark/hyperswap/pkg/app/core/atomicizer"
	"github.com/uhyunpark/hyperswap/pkg/app/core/static"
	"github.com/uhyunpark/hyperswap/pkg/vm"
)

// nftForETH builds the listing scenario: alice sells token 10 for value
// paid by bob. Alice's order pins the NFT transfer and accepts any
// counter-call; bob's order accepts anything.
func (f *fixture) nftForETH() *MatchRequest {
	t := f.t
	t.Helper()
	alice, bob := f.alice.Address(), f.bob.Address()

	sellExtra := mustEncode(t)(static.EncodeSplit(
		staticAddr, static.SingleSelector("transferERC721Exact"), mustEncode(t)(static.EncodeERC721Exact(nft, tokenID)),
		staticAddr, static.SingleSelector("anySingle"), nil,
	))
	sell := f.order(alice, staticAddr, static.DualSelector("split"), sellExtra, 1)
	buy := f.order(bob, staticAddr, static.DualSelector("any"), nil, 1)

	return &MatchRequest{
		First: Side{
			Order: sell,
			Auth:  f.sign(f.alice, &sell),
			Call:  Call{Target: nft, HowToCall: vm.Call, Data: assets.TransferFromData(alice, bob, tokenID)},
		},
		Second: Side{
			Order: buy,
			Auth:  f.sign(f.bob, &buy),
			Call:  Call{Target: staticAddr, HowToCall: vm.Call, Data: testSel[:]},
		},
		Value:    big.NewInt(100),
		Metadata: common.HexToHash("0xabc"),
	}
}

func TestMatchNFTForETH(t *testing.T) {
	f := setup(t)
	req := f.nftForETH()
	alice, bob := f.alice.Address(), f.bob.Address()

	var events []OrdersMatched
	f.x.OnMatch(func(ev OrdersMatched) {
		// hooks run after commit, so the fill is already visible
		fill, err := f.x.Fill(ev.FirstMaker, ev.FirstHash)
		if err != nil || fill.Int64() != 1 {
			t.Errorf("fill inside hook = %v, %v", fill, err)
		}
		events = append(events, ev)
	})

	ev, err := f.x.MatchOrders(context.Background(), bob, req)
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if got := f.ownerOf(tokenID); got != bob {
		t.Errorf("token owner = %s, want bob", got.Hex())
	}
	if got := f.balance(alice); got != 100 {
		t.Errorf("alice balance = %d, want 100", got)
	}
	if got := f.balance(bob); got != 900 {
		t.Errorf("bob balance = %d, want 900", got)
	}
	if got := f.balance(exAddr); got != 0 {
		t.Errorf("exchange kept %d", got)
	}
	if f.fill(alice, &req.First.Order) != 1 || f.fill(bob, &req.Second.Order) != 1 {
		t.Error("fills not recorded")
	}

	if ev.FirstHash != f.hash(&req.First.Order) || ev.SecondHash != f.hash(&req.Second.Order) {
		t.Error("event hashes do not match orders")
	}
	if ev.FirstMaker != alice || ev.SecondMaker != bob || ev.Matcher != bob {
		t.Error("event parties wrong")
	}
	if ev.NewFirstFill.Int64() != 1 || ev.NewSecondFill.Int64() != 1 || ev.Metadata != req.Metadata {
		t.Errorf("event = %+v", ev)
	}
	if len(events) != 1 {
		t.Fatalf("hook saw %d events, want 1", len(events))
	}

	// replaying the same submission must fail
	_, err = f.x.MatchOrders(context.Background(), bob, req)
	wantReason(t, err, CodeFillExceeded)
	if len(events) != 1 {
		t.Error("hook fired for a failed match")
	}
}

// TestMatchBundledFeeSplit sells an NFT for an ERC20 price split between the
// seller and a fee recipient, paid in one atomicized batch.
func TestMatchBundledFeeSplit(t *testing.T) {
	transferTo := static.SingleSelector("transferERC20ExactTo")
	nftLeg := func(t *testing.T) []byte {
		return mustEncode(t)(static.EncodeSequence([]static.SequenceStep{
			{Target: staticAddr, Selector: static.SingleSelector("transferERC721Exact"), Extradata: mustEncode(t)(static.EncodeERC721Exact(nft, tokenID))},
		}))
	}
	// payLeg pins price to the counter maker and fee to feeAddr
	payLeg := func(t *testing.T) []byte {
		return mustEncode(t)(static.EncodeSequence([]static.SequenceStep{
			{Target: staticAddr, Selector: static.SingleSelector("transferERC20Exact"), Extradata: mustEncode(t)(static.EncodeERC20Exact(coin, big.NewInt(800)))},
			{Target: staticAddr, Selector: transferTo, Extradata: mustEncode(t)(static.EncodeERC20ExactTo(coin, big.NewInt(200), feeAddr))},
		}))
	}
	sequenceExact := static.SingleSelector("sequenceExact")

	tests := []struct {
		name string
		// sell and buy return the static target, selector and extradata
		sell, buy func(t *testing.T, f *fixture) (common.Address, [4]byte, []byte)
		// batched sends the NFT through the atomicizer too
		batched bool
	}{
		{
			name: "seller pins the payment",
			sell: func(t *testing.T, f *fixture) (common.Address, [4]byte, []byte) {
				seq := mustEncode(t)(static.EncodeSequence([]static.SequenceStep{
					{Target: staticAddr, Selector: transferTo, Extradata: mustEncode(t)(static.EncodeERC20ExactTo(coin, big.NewInt(800), f.alice.Address()))},
					{Target: staticAddr, Selector: transferTo, Extradata: mustEncode(t)(static.EncodeERC20ExactTo(coin, big.NewInt(200), feeAddr))},
				}))
				return staticAddr, static.DualSelector("split"), mustEncode(t)(static.EncodeSplit(
					staticAddr, static.SingleSelector("transferERC721Exact"), mustEncode(t)(static.EncodeERC721Exact(nft, tokenID)),
					staticAddr, sequenceExact, seq,
				))
			},
			buy: func(t *testing.T, f *fixture) (common.Address, [4]byte, []byte) {
				return staticAddr, static.DualSelector("any"), nil
			},
		},
		{
			name: "both orders pin both legs",
			sell: func(t *testing.T, f *fixture) (common.Address, [4]byte, []byte) {
				return staticAddr, static.DualSelector("split"), mustEncode(t)(static.EncodeSplit(
					staticAddr, sequenceExact, nftLeg(t),
					staticAddr, sequenceExact, payLeg(t),
				))
			},
			buy: func(t *testing.T, f *fixture) (common.Address, [4]byte, []byte) {
				return staticAddr, static.DualSelector("split"), mustEncode(t)(static.EncodeSplit(
					staticAddr, sequenceExact, payLeg(t),
					staticAddr, sequenceExact, nftLeg(t),
				))
			},
			batched: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setup(t)
			alice, bob := f.alice.Address(), f.bob.Address()

			target, sel, extra := tt.sell(t, f)
			sell := f.order(alice, target, sel, extra, 1)
			target, sel, extra = tt.buy(t, f)
			buy := f.order(bob, target, sel, extra, 1)

			first := Call{Target: nft, HowToCall: vm.Call, Data: assets.TransferFromData(alice, bob, tokenID)}
			if tt.batched {
				first = Call{Target: atomAddr, HowToCall: vm.DelegateCall, Data: mustEncode(t)(atomicizer.Encode([]atomicizer.Call{
					{Target: nft, Data: assets.TransferFromData(alice, bob, tokenID)},
				}))}
			}
			payment := func(seller, fee int64) []byte {
				return mustEncode(t)(atomicizer.Encode([]atomicizer.Call{
					{Target: coin, Data: assets.TransferFromData(bob, alice, big.NewInt(seller))},
					{Target: coin, Data: assets.TransferFromData(bob, feeAddr, big.NewInt(fee))},
				}))
			}
			req := func(payData []byte) *MatchRequest {
				return &MatchRequest{
					First: Side{
						Order: sell,
						Auth:  f.sign(f.alice, &sell),
						Call:  first,
					},
					Second: Side{
						Order: buy,
						Auth:  f.sign(f.bob, &buy),
						Call:  Call{Target: atomAddr, HowToCall: vm.DelegateCall, Data: payData},
					},
				}
			}

			// a payment the seller did not commit to is refused
			_, err := f.x.MatchOrders(context.Background(), carol, req(payment(900, 100)))
			wantReason(t, err, CodeStaticCallFailed)

			if _, err := f.x.MatchOrders(context.Background(), carol, req(payment(800, 200))); err != nil {
				t.Fatalf("match: %v", err)
			}
			if got := f.tokenBalance(coin, alice); got != 800 {
				t.Errorf("seller got %d, want 800", got)
			}
			if got := f.tokenBalance(coin, feeAddr); got != 200 {
				t.Errorf("fee recipient got %d, want 200", got)
			}
			if got := f.tokenBalance(coin, bob); got != 0 {
				t.Errorf("buyer left with %d, want 0", got)
			}
			if got := f.ownerOf(tokenID); got != bob {
				t.Errorf("token owner = %s, want bob", got.Hex())
			}
		})
	}
}

func TestMatchIsAtomic(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	alice, bob := f.alice.Address(), f.bob.Address()

	// bob pays through the atomicizer but the second leg exceeds his balance;
	// alice's leg runs first and must be undone
	sellExtra := mustEncode(t)(static.EncodeSplit(
		staticAddr, static.SingleSelector("transferERC721Exact"), mustEncode(t)(static.EncodeERC721Exact(nft, tokenID)),
		staticAddr, static.SingleSelector("anySingle"), nil,
	))
	sell := f.order(alice, staticAddr, static.DualSelector("split"), sellExtra, 1)
	buy := f.order(bob, staticAddr, static.DualSelector("any"), nil, 1)
	pay := mustEncode(t)(atomicizer.Encode([]atomicizer.Call{
		{Target: coin, Data: assets.TransferFromData(bob, alice, big.NewInt(800))},
		{Target: coin, Data: assets.TransferFromData(bob, feeAddr, big.NewInt(800))},
	}))
	req := &MatchRequest{
		First: Side{
			Order: sell,
			Auth:  f.sign(f.alice, &sell),
			Call:  Call{Target: nft, HowToCall: vm.Call, Data: assets.TransferFromData(alice, bob, tokenID)},
		},
		Second: Side{
			Order: buy,
			Auth:  f.sign(f.bob, &buy),
			Call:  Call{Target: atomAddr, HowToCall: vm.DelegateCall, Data: pay},
		},
		Value: big.NewInt(50),
	}

	_, err := f.x.MatchOrders(ctx, carol, req)
	wantReason(t, err, CodeBatchSubcallFailed)

	if got := f.ownerOf(tokenID); got != alice {
		t.Errorf("token moved to %s", got.Hex())
	}
	if f.tokenBalance(coin, alice) != 0 || f.tokenBalance(coin, bob) != 1000 {
		t.Error("partial payment leaked")
	}
	if f.balance(alice) != 0 || f.balance(carol) != 1000 {
		t.Error("value transfer not undone")
	}
	if f.fill(alice, &sell) != 0 || f.fill(bob, &buy) != 0 {
		t.Error("fills recorded for a failed match")
	}
}

func TestMatchNFTForERC20Market(t *testing.T) {
	f := setup(t)
	alice, bob := f.alice.Address(), f.bob.Address()
	price := big.NewInt(500)

	sell := f.order(alice, marketAddr, static.DualSelector("ERC721ForERC20"),
		mustEncode(t)(static.EncodeMarket(nft, coin, tokenID, price)), 1)
	buy := f.order(bob, marketAddr, static.DualSelector("ERC20ForERC721"),
		mustEncode(t)(static.EncodeMarket(coin, nft, tokenID, price)), 1)

	req := &MatchRequest{
		First: Side{
			Order: sell,
			Auth:  f.sign(f.alice, &sell),
			Call:  Call{Target: nft, HowToCall: vm.Call, Data: assets.TransferFromData(alice, bob, tokenID)},
		},
		Second: Side{
			Order: buy,
			Auth:  f.sign(f.bob, &buy),
			Call:  Call{Target: coin, HowToCall: vm.Call, Data: assets.TransferFromData(bob, alice, price)},
		},
	}
	if _, err := f.x.MatchOrders(context.Background(), carol, req); err != nil {
		t.Fatalf("match: %v", err)
	}
	if got := f.ownerOf(tokenID); got != bob {
		t.Errorf("token owner = %s, want bob", got.Hex())
	}
	if got := f.tokenBalance(coin, alice); got != 500 {
		t.Errorf("alice got %d, want 500", got)
	}
}

func TestMatchERC20ForERC20PartialFills(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	alice, bob := f.alice.Address(), f.bob.Address()

	// alice gives 1 gold per 2 coin, up to 10 gold; bob the mirror, up to 20 coin
	sell := f.order(alice, marketAddr, static.DualSelector("ERC20ForERC20"),
		mustEncode(t)(static.EncodeMarket(gold, coin, big.NewInt(1), big.NewInt(2))), 10)
	buy := f.order(bob, marketAddr, static.DualSelector("ERC20ForERC20"),
		mustEncode(t)(static.EncodeMarket(coin, gold, big.NewInt(2), big.NewInt(1))), 20)
	sellSig, buySig := f.sign(f.alice, &sell), f.sign(f.bob, &buy)

	req := func(goldAmt int64) *MatchRequest {
		coinAmt := 2 * goldAmt
		return &MatchRequest{
			First: Side{
				Order: sell,
				Auth:  sellSig,
				Call:  Call{Target: gold, HowToCall: vm.Call, Data: assets.TransferFromData(alice, bob, big.NewInt(goldAmt))},
			},
			Second: Side{
				Order: buy,
				Auth:  buySig,
				Call:  Call{Target: coin, HowToCall: vm.Call, Data: assets.TransferFromData(bob, alice, big.NewInt(coinAmt))},
			},
		}
	}

	ev, err := f.x.MatchOrders(ctx, carol, req(4))
	if err != nil {
		t.Fatalf("first fill: %v", err)
	}
	if ev.NewFirstFill.Int64() != 4 || ev.NewSecondFill.Int64() != 8 {
		t.Fatalf("fills after first match = %s/%s, want 4/8", ev.NewFirstFill, ev.NewSecondFill)
	}

	// 4 + 7 > 10
	_, err = f.x.MatchOrders(ctx, carol, req(7))
	wantReason(t, err, CodeFillExceeded)

	if _, err := f.x.MatchOrders(ctx, carol, req(6)); err != nil {
		t.Fatalf("second fill: %v", err)
	}
	if f.fill(alice, &sell) != 10 || f.fill(bob, &buy) != 20 {
		t.Errorf("fills = %d/%d, want 10/20", f.fill(alice, &sell), f.fill(bob, &buy))
	}
	if f.tokenBalance(gold, bob) != 10 || f.tokenBalance(coin, alice) != 20 {
		t.Error("balances do not reflect both fills")
	}

	_, err = f.x.MatchOrders(ctx, carol, req(1))
	wantReason(t, err, CodeFillExceeded)
}

func TestMatchAfterCancel(t *testing.T) {
	f := setup(t)
	req := f.nftForETH()

	if _, err := f.x.CancelOrder(context.Background(), f.alice.Address(), &req.First.Order); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	_, err := f.x.MatchOrders(context.Background(), f.bob.Address(), req)
	wantReason(t, err, CodeFillExceeded)
	if got := f.ownerOf(tokenID); got != f.alice.Address() {
		t.Error("cancelled order still traded")
	}
}

func TestMatchExpiryBoundary(t *testing.T) {
	tests := []struct {
		name    string
		listing int64 // seconds from now
		expires bool
		expiry  int64 // seconds from now
		ok      bool
	}{
		{name: "listed now", listing: 0, ok: true},
		{name: "not yet listed", listing: 1},
		{name: "expires next second", listing: -10, expires: true, expiry: 1, ok: true},
		{name: "expires now", listing: -10, expires: true, expiry: 0},
		{name: "expired", listing: -10, expires: true, expiry: -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setup(t)
			now := f.clock.Now().Unix()
			req := f.nftForETH()
			req.First.Order.ListingTime = big.NewInt(now + tt.listing)
			if tt.expires {
				req.First.Order.ExpirationTime = big.NewInt(now + tt.expiry)
			}
			req.First.Auth = f.sign(f.alice, &req.First.Order)

			_, err := f.x.MatchOrders(context.Background(), f.bob.Address(), req)
			if tt.ok && err != nil {
				t.Fatalf("match: %v", err)
			}
			if !tt.ok {
				wantReason(t, err, CodeOrderExpiredOrNotYetListed)
			}
		})
	}
}

func TestMatchExpiresWithClock(t *testing.T) {
	f := setup(t)
	req := f.nftForETH()
	req.First.Order.ExpirationTime = big.NewInt(f.clock.Now().Unix() + 60)
	req.First.Auth = f.sign(f.alice, &req.First.Order)

	f.clock.Advance(time.Minute)
	_, err := f.x.MatchOrders(context.Background(), f.bob.Address(), req)
	wantReason(t, err, CodeOrderExpiredOrNotYetListed)
}

func TestMatchAuthentication(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(f *fixture, req *MatchRequest)
		matcher func(f *fixture) common.Address
		want    Code
	}{
		{
			name:   "eip712 signatures",
			mutate: func(*fixture, *MatchRequest) {},
		},
		{
			name: "personal sign",
			mutate: func(f *fixture, req *MatchRequest) {
				sig, err := f.alice.SignPersonal("\x19Ethereum Signed Message:\n", f.hash(&req.First.Order))
				if err != nil {
					f.t.Fatalf("sign personal: %v", err)
				}
				req.First.Auth = Signature(sig)
			},
		},
		{
			name: "salt changed after signing",
			mutate: func(f *fixture, req *MatchRequest) {
				req.First.Order.Salt = new(big.Int).Add(req.First.Order.Salt, big.NewInt(1))
			},
			want: CodeInvalidSignature,
		},
		{
			name: "signed by someone else",
			mutate: func(f *fixture, req *MatchRequest) {
				req.First.Auth = f.sign(f.bob, &req.First.Order)
			},
			want: CodeInvalidSignature,
		},
		{
			name: "truncated signature",
			mutate: func(f *fixture, req *MatchRequest) {
				req.First.Auth = req.First.Auth.(Signature)[:64]
			},
			want: CodeInvalidSignature,
		},
		{
			name: "preapproved without approval",
			mutate: func(f *fixture, req *MatchRequest) {
				req.First.Auth = PreApproved{}
			},
			want: CodeInvalidSignature,
		},
		{
			name: "preapproved",
			mutate: func(f *fixture, req *MatchRequest) {
				if _, err := f.x.ApproveOrder(context.Background(), f.alice.Address(), &req.First.Order, true); err != nil {
					f.t.Fatalf("approve: %v", err)
				}
				req.First.Auth = PreApproved{}
			},
		},
		{
			name: "matcher is maker",
			mutate: func(f *fixture, req *MatchRequest) {
				req.Second.Auth = nil
			},
		},
		{
			name: "unsigned counter order from a third-party matcher",
			mutate: func(f *fixture, req *MatchRequest) {
				req.Second.Auth = nil
			},
			matcher: func(*fixture) common.Address { return carol },
			want:    CodeInvalidSignature,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setup(t)
			req := f.nftForETH()
			tt.mutate(f, req)
			matcher := f.bob.Address()
			if tt.matcher != nil {
				matcher = tt.matcher(f)
			}

			_, err := f.x.MatchOrders(context.Background(), matcher, req)
			if tt.want == "" {
				if err != nil {
					t.Fatalf("match: %v", err)
				}
				if got := f.ownerOf(tokenID); got != f.bob.Address() {
					t.Errorf("token owner = %s, want bob", got.Hex())
				}
				return
			}
			wantReason(t, err, tt.want)
		})
	}
}

func TestMatchCompatibility(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(f *fixture, req *MatchRequest)
		want   Code
	}{
		{
			name: "self match",
			mutate: func(f *fixture, req *MatchRequest) {
				req.Second = req.First
			},
			want: CodeSelfMatch,
		},
		{
			name: "registry mismatch",
			mutate: func(f *fixture, req *MatchRequest) {
				req.Second.Order.Registry = otherReg
			},
			want: CodeRegistryMismatch,
		},
		{
			name: "unknown registry",
			mutate: func(f *fixture, req *MatchRequest) {
				req.First.Order.Registry = otherReg
				req.First.Auth = f.sign(f.alice, &req.First.Order)
				req.Second.Order.Registry = otherReg
			},
			want: CodeUnknownRegistry,
		},
		{
			name: "maker without proxy",
			mutate: func(f *fixture, req *MatchRequest) {
				req.Second.Order.Maker = carol
			},
			want: CodeProxyNotFound,
		},
		{
			name: "static target without code",
			mutate: func(f *fixture, req *MatchRequest) {
				req.Second.Order.StaticTarget = common.HexToAddress("0xdead")
			},
			want: CodeStaticCallFailed,
		},
		{
			name: "predicate rejects call",
			mutate: func(f *fixture, req *MatchRequest) {
				req.First.Call.Data = assets.TransferFromData(f.alice.Address(), carol, tokenID)
			},
			want: CodeStaticCallFailed,
		},
		{
			name: "call target without code",
			mutate: func(f *fixture, req *MatchRequest) {
				req.Second.Call.Target = common.HexToAddress("0xdead")
			},
			want: CodeCallReverted,
		},
		{
			name: "matcher cannot pay",
			mutate: func(f *fixture, req *MatchRequest) {
				req.Value = big.NewInt(5000)
			},
			want: CodeInsufficientBalance,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setup(t)
			req := f.nftForETH()
			tt.mutate(f, req)
			// matcher is bob, so bob's order needs no signature even if edited;
			// carol-made orders are matched by carol below
			matcher := f.bob.Address()
			if req.Second.Order.Maker == carol {
				matcher = carol
			}
			_, err := f.x.MatchOrders(context.Background(), matcher, req)
			wantReason(t, err, tt.want)
			if got := f.ownerOf(tokenID); got != f.alice.Address() {
				t.Error("failed match moved the token")
			}
		})
	}
}

func TestMatchRevokedProxy(t *testing.T) {
	f := setup(t)
	req := f.nftForETH()
	if err := f.reg.SetRevoke(context.Background(), f.alice.Address(), true); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	_, err := f.x.MatchOrders(context.Background(), f.bob.Address(), req)
	wantReason(t, err, CodeUnauthorized)
}

func TestMatchContractMaker(t *testing.T) {
	f := setup(t)
	bob := f.bob.Address()

	// the wallet holds nothing, so both sides make no-op calls
	walletOrder := f.order(walletAddr, staticAddr, static.DualSelector("any"), nil, 1)
	buy := f.order(bob, staticAddr, static.DualSelector("any"), nil, 1)
	noop := Call{Target: staticAddr, HowToCall: vm.Call, Data: testSel[:]}

	req := &MatchRequest{
		First:  Side{Order: walletOrder, Auth: f.sign(f.bob, &walletOrder), Call: noop},
		Second: Side{Order: buy, Call: noop},
	}
	_, err := f.x.MatchOrders(context.Background(), bob, req)
	wantReason(t, err, CodeInvalidSignature)

	req.First.Auth = f.sign(f.walletKey, &walletOrder)
	ev, err := f.x.MatchOrders(context.Background(), bob, req)
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if ev.FirstMaker != walletAddr {
		t.Errorf("first maker = %s", ev.FirstMaker.Hex())
	}
}

func TestMatchConcurrentDoubleSpend(t *testing.T) {
	f := setup(t)
	req := f.nftForETH()

	const n = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		okN  int
		errs []error
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.x.MatchOrders(context.Background(), f.bob.Address(), req)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				okN++
				return
			}
			errs = append(errs, err)
		}()
	}
	wg.Wait()

	if okN != 1 {
		t.Fatalf("%d matches succeeded, want 1", okN)
	}
	for _, err := range errs {
		wantReason(t, err, CodeFillExceeded)
	}
	if got := f.balance(f.alice.Address()); got != 100 {
		t.Errorf("alice balance = %d, want 100", got)
	}
}

func TestMatchInsideOuterTransaction(t *testing.T) {
	f := setup(t)
	req := f.nftForETH()
	bob := f.bob.Address()

	// a failing outer step after a successful match rolls the match back too
	err := f.m.Transact(context.Background(), bob, func(env *vm.Env) error {
		if _, err := f.x.Match(env, req); err != nil {
			return err
		}
		return vm.ErrCallReverted
	})
	if err == nil {
		t.Fatal("outer transaction succeeded")
	}
	if got := f.ownerOf(tokenID); got != f.alice.Address() {
		t.Error("match survived outer revert")
	}
	if f.fill(f.alice.Address(), &req.First.Order) != 0 {
		t.Error("fill survived outer revert")
	}
}
