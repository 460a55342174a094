package transaction

import (
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/uhyunpark/hyperswap/pkg/app/core/exchange"
	"github.com/uhyunpark/hyperswap/pkg/crypto"
	"github.com/uhyunpark/hyperswap/pkg/vm"
)

var domain = crypto.EIP712Domain{
	Name:              "HyperSwap Exchange",
	Version:           "1",
	ChainID:           big.NewInt(50),
	VerifyingContract: common.HexToAddress("0x00000000000000000000000000000000000e0e0e"),
}

func sampleOrder(maker common.Address, salt int64) *exchange.Order {
	return &exchange.Order{
		Registry:        common.HexToAddress("0x00000000000000000000000000000000000000ee"),
		Maker:           maker,
		StaticTarget:    common.HexToAddress("0x00000000000000000000000000000000000000ff"),
		StaticSelector:  vm.Selector("any(bytes,address[7],uint8[2],uint256[6],bytes,bytes)"),
		StaticExtradata: []byte{0xde, 0xad},
		MaximumFill:     big.NewInt(1),
		ListingTime:     big.NewInt(0),
		ExpirationTime:  big.NewInt(1_900_000_000),
		Salt:            big.NewInt(salt),
	}
}

func TestOrderPayloadRoundTrip(t *testing.T) {
	o := sampleOrder(common.HexToAddress("0xa11ce"), 7)
	back, err := FromOrder(o).ToOrder()
	if err != nil {
		t.Fatalf("to order: %v", err)
	}

	signer := crypto.NewEIP712Signer(domain)
	h1, _ := signer.HashOrder(o.EIP712())
	h2, _ := signer.HashOrder(back.EIP712())
	if h1 != h2 {
		t.Fatalf("hash changed across payload round trip")
	}
}

func TestOrderPayloadRejectsBadFields(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(p *OrderPayload)
		want   string
	}{
		{"bad maker", func(p *OrderPayload) { p.Maker = "alice" }, "maker"},
		{"short selector", func(p *OrderPayload) { p.StaticSelector = "0x1234" }, "static_selector"},
		{"selector without prefix", func(p *OrderPayload) { p.StaticSelector = "12345678" }, "static_selector"},
		{"negative fill", func(p *OrderPayload) { p.MaximumFill = "-1" }, "maximum_fill"},
		{"non decimal salt", func(p *OrderPayload) { p.Salt = "0x10" }, "salt"},
		{"overflowing expiry", func(p *OrderPayload) { p.ExpirationTime = "1" + strings.Repeat("0", 80) }, "expiration_time"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := FromOrder(sampleOrder(common.HexToAddress("0xa11ce"), 1))
			tt.mutate(p)
			_, err := p.ToOrder()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("err = %v, want mention of %s", err, tt.want)
			}
		})
	}
}

func TestCallPayload(t *testing.T) {
	c := exchange.Call{Target: common.HexToAddress("0xbeef"), HowToCall: vm.DelegateCall, Data: []byte{1, 2, 3}}
	p := FromCall(c)
	back, err := p.ToCall()
	if err != nil {
		t.Fatalf("to call: %v", err)
	}
	if back.Target != c.Target || back.HowToCall != c.HowToCall || hexutil.Encode(back.Data) != "0x010203" {
		t.Errorf("call = %+v", back)
	}

	p.HowToCall = 2
	if _, err := p.ToCall(); err == nil {
		t.Error("accepted howToCall 2")
	}
}

func TestMatchPayloadAuthorization(t *testing.T) {
	req := &exchange.MatchRequest{
		First:  exchange.Side{Order: *sampleOrder(common.HexToAddress("0xa11ce"), 1), Auth: exchange.Signature{1, 2}},
		Second: exchange.Side{Order: *sampleOrder(common.HexToAddress("0xb0b"), 2), Auth: exchange.PreApproved{}},
		Value:  big.NewInt(5),
	}
	back, err := NewMatchPayload(req).ToRequest()
	if err != nil {
		t.Fatalf("to request: %v", err)
	}
	if sig, ok := back.First.Auth.(exchange.Signature); !ok || len(sig) != 2 {
		t.Errorf("first auth = %#v", back.First.Auth)
	}
	if _, ok := back.Second.Auth.(exchange.PreApproved); !ok {
		t.Errorf("second auth = %#v", back.Second.Auth)
	}
	if back.Value.Int64() != 5 {
		t.Errorf("value = %s", back.Value)
	}
}

func TestValidate(t *testing.T) {
	match := &MatchPayload{Value: "0"}
	tests := []struct {
		name string
		tx   SignedTransaction
		ok   bool
	}{
		{"missing type", SignedTransaction{}, false},
		{"unknown type", SignedTransaction{Type: "order"}, false},
		{"match without payload", SignedTransaction{Type: TxTypeMatch}, false},
		{"unsigned match", SignedTransaction{Type: TxTypeMatch, Match: match}, true},
		{"unsigned match with value", SignedTransaction{Type: TxTypeMatch, Match: &MatchPayload{Value: "1"}}, false},
		{"signed match without matcher", SignedTransaction{Type: TxTypeMatch, Match: &MatchPayload{Nonce: "0"}, Signature: "0x01"}, false},
		{"signed match", SignedTransaction{Type: TxTypeMatch, Match: &MatchPayload{Matcher: "0x01", Nonce: "0"}, Signature: "0x01"}, true},
		{"unsigned cancel", SignedTransaction{Type: TxTypeCancel, Cancel: &CancelPayload{Order: OrderPayload{Maker: "0x01"}}}, false},
	}
	for _, tt := range tests {
		err := tt.tx.Validate()
		if tt.ok && err != nil {
			t.Errorf("%s: unexpected error %v", tt.name, err)
		}
		if !tt.ok && err == nil {
			t.Errorf("%s: expected an error", tt.name)
		}
	}
}

func TestParseTransaction(t *testing.T) {
	if _, err := ParseTransaction([]byte("O:GTC:BTC-USDT")); err == nil {
		t.Error("parsed non-JSON input")
	}
	tx, err := ParseTransaction([]byte(`{"type":"match","match":{"value":"0"}}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if tx.Type != TxTypeMatch || tx.Match == nil {
		t.Errorf("tx = %+v", tx)
	}
}

func TestVerifyMatchTransaction(t *testing.T) {
	matcherKey, _ := crypto.GenerateKey()
	v := NewVerifier(domain)

	req := &exchange.MatchRequest{
		First:    exchange.Side{Order: *sampleOrder(common.HexToAddress("0xa11ce"), 1)},
		Second:   exchange.Side{Order: *sampleOrder(common.HexToAddress("0xb0b"), 2)},
		Value:    big.NewInt(100),
		Metadata: common.HexToHash("0x42"),
	}
	payload := NewMatchPayload(req)
	payload.Matcher = matcherKey.Address().Hex()
	payload.Nonce = "3"

	msg, err := v.MatchMessage(payload)
	if err != nil {
		t.Fatalf("match message: %v", err)
	}
	hash, err := crypto.NewEIP712Signer(domain).HashMatch(msg)
	if err != nil {
		t.Fatalf("hash match: %v", err)
	}
	sig, err := matcherKey.Sign(hash.Bytes())
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	tx := &SignedTransaction{Type: TxTypeMatch, Match: payload, Signature: hexutil.Encode(sig)}

	matcher, nonce, valid, err := v.VerifyMatchTransaction(tx)
	if err != nil || !valid {
		t.Fatalf("verify: %v", err)
	}
	if matcher != matcherKey.Address() || nonce.Int64() != 3 {
		t.Errorf("matcher %s nonce %s", matcher.Hex(), nonce)
	}

	// any change to the signed fields breaks the signature
	payload.Nonce = "4"
	if _, _, _, err := v.VerifyMatchTransaction(tx); err == nil {
		t.Error("accepted a match with a different nonce")
	}
	payload.Nonce = "3"
	payload.Value = "101"
	if _, _, _, err := v.VerifyMatchTransaction(tx); err == nil {
		t.Error("accepted a match with a different value")
	}
}

func TestMatchSignatureCoversCalls(t *testing.T) {
	matcherKey, _ := crypto.GenerateKey()
	v := NewVerifier(domain)
	nft := common.HexToAddress("0x00000000000000000000000000000000000000e7")
	coin := common.HexToAddress("0x00000000000000000000000000000000000000e2")

	signed := func() *SignedTransaction {
		req := &exchange.MatchRequest{
			First: exchange.Side{
				Order: *sampleOrder(common.HexToAddress("0xa11ce"), 1),
				Call:  exchange.Call{Target: nft, HowToCall: vm.Call, Data: []byte{0x23, 0xb8, 0x72, 0xdd, 0x01}},
			},
			Second: exchange.Side{
				Order: *sampleOrder(common.HexToAddress("0xb0b"), 2),
				Call:  exchange.Call{Target: coin, HowToCall: vm.Call, Data: []byte{0x23, 0xb8, 0x72, 0xdd, 0x02}},
			},
			Value: new(big.Int),
		}
		tx := &SignedTransaction{Type: TxTypeMatch, Match: NewMatchPayload(req)}
		tx.Match.Nonce = "0"
		if err := v.SignMatch(matcherKey, tx); err != nil {
			t.Fatalf("sign match: %v", err)
		}
		return tx
	}

	if _, _, valid, err := v.VerifyMatchTransaction(signed()); err != nil || !valid {
		t.Fatalf("untouched match rejected: %v", err)
	}

	tests := []struct {
		name   string
		tamper func(m *MatchPayload)
	}{
		{"first target", func(m *MatchPayload) { m.First.Call.Target = coin.Hex() }},
		{"first data", func(m *MatchPayload) { m.First.Call.Data = "0x23b872dd09" }},
		{"second target", func(m *MatchPayload) { m.Second.Call.Target = nft.Hex() }},
		{"second how to call", func(m *MatchPayload) { m.Second.Call.HowToCall = uint8(vm.DelegateCall) }},
		{"second data", func(m *MatchPayload) { m.Second.Call.Data = "0x" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx := signed()
			tt.tamper(tx.Match)
			if _, _, valid, err := v.VerifyMatchTransaction(tx); err == nil || valid {
				t.Fatal("accepted a match whose call was swapped after signing")
			}
		})
	}
}

func TestVerifyCancelTransaction(t *testing.T) {
	makerKey, _ := crypto.GenerateKey()
	other, _ := crypto.GenerateKey()
	v := NewVerifier(domain)
	signer := crypto.NewEIP712Signer(domain)

	o := sampleOrder(makerKey.Address(), 9)
	orderHash, _ := signer.HashOrder(o.EIP712())
	cancelHash, err := signer.HashCancel(&crypto.CancelEIP712{OrderHash: orderHash, Maker: makerKey.Address()})
	if err != nil {
		t.Fatalf("hash cancel: %v", err)
	}

	sign := func(k *crypto.Signer) *SignedTransaction {
		sig, err := k.Sign(cancelHash.Bytes())
		if err != nil {
			t.Fatalf("sign: %v", err)
		}
		return &SignedTransaction{Type: TxTypeCancel, Cancel: &CancelPayload{Order: *FromOrder(o)}, Signature: hexutil.Encode(sig)}
	}

	maker, hash, valid, err := v.VerifyCancelTransaction(sign(makerKey))
	if err != nil || !valid {
		t.Fatalf("verify: %v", err)
	}
	if maker != makerKey.Address() || hash != orderHash {
		t.Errorf("maker %s hash %s", maker.Hex(), hash.Hex())
	}

	if _, _, _, err := v.VerifyCancelTransaction(sign(other)); err == nil {
		t.Error("accepted cancel signed by someone else")
	}
	if _, err := v.RecoverSigner(sign(makerKey)); err != nil {
		t.Errorf("recover signer: %v", err)
	}
}

func TestSignHelpers(t *testing.T) {
	key, _ := crypto.GenerateKey()
	v := NewVerifier(domain)

	req := &exchange.MatchRequest{
		First:  exchange.Side{Order: *sampleOrder(common.HexToAddress("0xa11ce"), 1)},
		Second: exchange.Side{Order: *sampleOrder(common.HexToAddress("0xb0b"), 2)},
	}
	match := &SignedTransaction{Type: TxTypeMatch, Match: NewMatchPayload(req)}
	match.Match.Nonce = "0"
	if err := v.SignMatch(key, match); err != nil {
		t.Fatalf("sign match: %v", err)
	}
	if got, err := v.RecoverSigner(match); err != nil || got != key.Address() {
		t.Errorf("match signer = %s, %v", got.Hex(), err)
	}

	cancel := &SignedTransaction{Type: TxTypeCancel, Cancel: &CancelPayload{Order: *FromOrder(sampleOrder(key.Address(), 3))}}
	if err := v.SignCancel(key, cancel); err != nil {
		t.Fatalf("sign cancel: %v", err)
	}
	if got, err := v.RecoverSigner(cancel); err != nil || got != key.Address() {
		t.Errorf("cancel signer = %s, %v", got.Hex(), err)
	}
}
