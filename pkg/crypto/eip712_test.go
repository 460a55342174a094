package crypto

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	eth_crypto "github.com/ethereum/go-ethereum/crypto"
)

var testDomain = EIP712Domain{
	Name:              "HyperSwap Exchange",
	Version:           "1",
	ChainID:           big.NewInt(50),
	VerifyingContract: common.HexToAddress("0x00000000000000000000000000000000000e0e0e"),
}

func sampleOrder() *OrderEIP712 {
	return &OrderEIP712{
		Registry:        common.HexToAddress("0x0000000000000000000000000000000000000001"),
		Maker:           common.HexToAddress("0x0000000000000000000000000000000000000002"),
		StaticTarget:    common.HexToAddress("0x0000000000000000000000000000000000000003"),
		StaticSelector:  [4]byte{0xde, 0xad, 0xbe, 0xef},
		StaticExtradata: []byte{1, 2, 3},
		MaximumFill:     big.NewInt(1),
		ListingTime:     big.NewInt(0),
		ExpirationTime:  big.NewInt(10000000000),
		Salt:            big.NewInt(11),
	}
}

func mustTy(t *testing.T, s string) abi.Type {
	t.Helper()
	ty, err := abi.NewType(s, "", nil)
	if err != nil {
		t.Fatalf("type %s: %v", s, err)
	}
	return ty
}

// manualOrderDigest encodes the order the way a Solidity hashOrder would.
func manualOrderDigest(t *testing.T, d EIP712Domain, o *OrderEIP712) common.Hash {
	b32, addr, u256 := mustTy(t, "bytes32"), mustTy(t, "address"), mustTy(t, "uint256")

	domainTypeHash := eth_crypto.Keccak256Hash([]byte("EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)"))
	domArgs := abi.Arguments{{Type: b32}, {Type: b32}, {Type: b32}, {Type: u256}, {Type: addr}}
	domEnc, err := domArgs.Pack(domainTypeHash, eth_crypto.Keccak256Hash([]byte(d.Name)), eth_crypto.Keccak256Hash([]byte(d.Version)), d.ChainID, d.VerifyingContract)
	if err != nil {
		t.Fatalf("pack domain: %v", err)
	}

	orderTypeHash := eth_crypto.Keccak256Hash([]byte("Order(address registry,address maker,address staticTarget,bytes4 staticSelector,bytes staticExtradata,uint256 maximumFill,uint256 listingTime,uint256 expirationTime,uint256 salt)"))
	ordArgs := abi.Arguments{{Type: b32}, {Type: addr}, {Type: addr}, {Type: addr}, {Type: mustTy(t, "bytes4")}, {Type: b32}, {Type: u256}, {Type: u256}, {Type: u256}, {Type: u256}}
	ordEnc, err := ordArgs.Pack(orderTypeHash, o.Registry, o.Maker, o.StaticTarget, o.StaticSelector, eth_crypto.Keccak256Hash(o.StaticExtradata), o.MaximumFill, o.ListingTime, o.ExpirationTime, o.Salt)
	if err != nil {
		t.Fatalf("pack order: %v", err)
	}

	return eth_crypto.Keccak256Hash([]byte("\x19\x01"), eth_crypto.Keccak256(domEnc), eth_crypto.Keccak256(ordEnc))
}

func TestHashOrderMatchesManualEncoding(t *testing.T) {
	signer := NewEIP712Signer(testDomain)
	order := sampleOrder()

	got, err := signer.HashOrder(order)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if want := manualOrderDigest(t, testDomain, order); got != want {
		t.Errorf("hash = %s, want %s", got.Hex(), want.Hex())
	}
}

func TestHashOrderBindsEveryField(t *testing.T) {
	signer := NewEIP712Signer(testDomain)
	base, _ := signer.HashOrder(sampleOrder())

	mutations := map[string]func(o *OrderEIP712){
		"salt":      func(o *OrderEIP712) { o.Salt = big.NewInt(12) },
		"selector":  func(o *OrderEIP712) { o.StaticSelector[0] ^= 1 },
		"extradata": func(o *OrderEIP712) { o.StaticExtradata = []byte{1, 2} },
		"maxFill":   func(o *OrderEIP712) { o.MaximumFill = big.NewInt(2) },
		"expiry":    func(o *OrderEIP712) { o.ExpirationTime = big.NewInt(0) },
		"maker":     func(o *OrderEIP712) { o.Maker = common.HexToAddress("0x09") },
	}
	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			o := sampleOrder()
			mutate(o)
			h, err := signer.HashOrder(o)
			if err != nil {
				t.Fatalf("hash: %v", err)
			}
			if h == base {
				t.Errorf("changing %s did not change the hash", name)
			}
		})
	}

	other := testDomain
	other.ChainID = big.NewInt(1)
	h, _ := NewEIP712Signer(other).HashOrder(sampleOrder())
	if h == base {
		t.Error("chain id not bound into the hash")
	}
}

func TestHashOrderEmptyExtradata(t *testing.T) {
	signer := NewEIP712Signer(testDomain)
	order := sampleOrder()
	order.StaticExtradata = nil

	got, err := signer.HashOrder(order)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if want := manualOrderDigest(t, testDomain, order); got != want {
		t.Errorf("hash = %s, want %s", got.Hex(), want.Hex())
	}
}

func TestSignOrderRecovers(t *testing.T) {
	key, _ := GenerateKey()
	signer := NewEIP712Signer(testDomain)
	order := sampleOrder()
	order.Maker = key.Address()

	sig, err := signer.SignOrder(key, order)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	hash, _ := signer.HashOrder(order)
	if !VerifySignature(order.Maker, hash.Bytes(), sig) {
		t.Error("order signature does not verify")
	}
}

func TestCancelAndMatchSigners(t *testing.T) {
	key, _ := GenerateKey()
	signer := NewEIP712Signer(testDomain)

	cancel := &CancelEIP712{OrderHash: common.HexToHash("0xabc"), Maker: key.Address()}
	h, err := signer.HashCancel(cancel)
	if err != nil {
		t.Fatalf("hash cancel: %v", err)
	}
	sig, _ := key.Sign(h.Bytes())
	who, err := signer.RecoverCancelSigner(cancel, sig)
	if err != nil || who != key.Address() {
		t.Errorf("cancel signer = %s, %v", who.Hex(), err)
	}

	match := &MatchEIP712{
		FirstHash:  common.HexToHash("0x01"),
		SecondHash: common.HexToHash("0x02"),
		Value:      big.NewInt(5),
		Nonce:      big.NewInt(0),
	}
	h, err = signer.HashMatch(match)
	if err != nil {
		t.Fatalf("hash match: %v", err)
	}
	sig, _ = key.Sign(h.Bytes())
	who, err = signer.RecoverMatchSigner(match, sig)
	if err != nil || who != key.Address() {
		t.Errorf("match signer = %s, %v", who.Hex(), err)
	}

	match.Nonce = big.NewInt(1)
	who, _ = signer.RecoverMatchSigner(match, sig)
	if who == key.Address() {
		t.Error("match signature survived a nonce change")
	}

	match.Nonce = big.NewInt(0)
	match.SecondCall = CallEIP712{Target: common.HexToAddress("0xc0"), HowToCall: 1, Data: []byte{1}}
	who, _ = signer.RecoverMatchSigner(match, sig)
	if who == key.Address() {
		t.Error("match signature survived a call change")
	}
}

func TestOrderToJSON(t *testing.T) {
	out, err := NewEIP712Signer(testDomain).OrderToJSON(sampleOrder())
	if err != nil {
		t.Fatalf("json: %v", err)
	}
	if len(out) == 0 {
		t.Fatal("empty typed data json")
	}
}
