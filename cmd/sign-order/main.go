package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"math/big"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/uhyunpark/hyperswap/params"
	"github.com/uhyunpark/hyperswap/pkg/app/core/exchange"
	"github.com/uhyunpark/hyperswap/pkg/app/core/static"
	"github.com/uhyunpark/hyperswap/pkg/app/core/transaction"
	"github.com/uhyunpark/hyperswap/pkg/app/swap"
	"github.com/uhyunpark/hyperswap/pkg/crypto"
)

func main() {
	keyHex := flag.String("key", "", "hex private key of the maker (generated when empty)")
	tokenID := flag.Int64("id", 1, "fixture NFT id to sell")
	price := flag.Int64("price", 100, "fixture ERC20 price")
	ttl := flag.Int64("ttl", 3600, "seconds until the order expires (0 = never)")
	flag.Parse()

	cfg := params.LoadFromEnv("")
	d := swap.NewDeployment(cfg)
	if d.ERC20 == (common.Address{}) {
		fail("token fixtures only exist on development networks (NETWORK=%s)", cfg.Exchange.Network)
	}

	// Step 1: Generate or load key
	var signer *crypto.Signer
	var err error
	if *keyHex != "" {
		signer, err = crypto.FromPrivateKeyHex(*keyHex)
	} else {
		fmt.Println("Generating new keypair...")
		signer, err = crypto.GenerateKey()
	}
	if err != nil {
		fail("key: %v", err)
	}
	fmt.Printf("Address: %s\n", signer.Address().Hex())
	if *keyHex == "" {
		fmt.Printf("Private Key: %s (KEEP SECRET!)\n", signer.PrivateKeyHex())
	}
	fmt.Println()

	// Step 2: Create order selling an NFT for ERC20 through the market predicate
	extra, err := static.EncodeMarket(d.ERC721, d.ERC20, big.NewInt(*tokenID), big.NewInt(*price))
	if err != nil {
		fail("encode market: %v", err)
	}
	salt, err := crypto.GenerateSalt()
	if err != nil {
		fail("salt: %v", err)
	}
	now := time.Now().Unix()
	expiry := int64(0)
	if *ttl > 0 {
		expiry = now + *ttl
	}
	order := &exchange.Order{
		Registry:        d.Registry,
		Maker:           signer.Address(),
		StaticTarget:    d.Market,
		StaticSelector:  static.DualSelector("ERC721ForERC20"),
		StaticExtradata: extra,
		MaximumFill:     big.NewInt(1),
		ListingTime:     big.NewInt(now),
		ExpirationTime:  big.NewInt(expiry),
		Salt:            salt,
	}

	// Step 3: Sign order with EIP-712
	domain := crypto.EIP712Domain{
		Name:              cfg.Exchange.Name,
		Version:           cfg.Exchange.Version,
		ChainID:           cfg.Exchange.ChainID,
		VerifyingContract: d.Exchange,
	}
	eip712Signer := crypto.NewEIP712Signer(domain)
	hash, err := eip712Signer.HashOrder(order.EIP712())
	if err != nil {
		fail("hash order: %v", err)
	}
	signature, err := eip712Signer.SignOrder(signer, order.EIP712())
	if err != nil {
		fail("sign order: %v", err)
	}
	fmt.Printf("Order Hash: %s\n", hash.Hex())
	fmt.Printf("Signature: %s\n\n", hexutil.Encode(signature))

	// Step 4: Verify signature
	recovered, err := crypto.RecoverAddress(hash.Bytes(), signature)
	if err != nil {
		fail("recover: %v", err)
	}
	if recovered != order.Maker {
		fmt.Println("✗ Signature INVALID")
		os.Exit(1)
	}
	fmt.Println("✓ Signature VALID")
	fmt.Println()

	// Step 5: Order as it goes into one side of a match request
	side := transaction.SidePayload{
		Order:     *transaction.FromOrder(order),
		Signature: hexutil.Encode(signature),
	}
	printJSON("Signed Order (JSON, one side of POST /api/v1/match):", side)

	// Step 6: A ready-made cancellation for the same order
	cancel := &transaction.SignedTransaction{
		Type:   transaction.TxTypeCancel,
		Cancel: &transaction.CancelPayload{Order: side.Order},
	}
	verifier := transaction.NewVerifier(domain)
	if err := verifier.SignCancel(signer, cancel); err != nil {
		fail("sign cancel: %v", err)
	}
	printJSON("Signed Cancel (JSON, POST /api/v1/orders/cancel):", cancel)

	fmt.Printf("Submit to http://localhost%s\n", cfg.Node.APIAddr)
}

func printJSON(title string, v interface{}) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fail("marshal: %v", err)
	}
	fmt.Println(title)
	fmt.Println(string(out))
	fmt.Println()
}

func fail(format string, args ...interface{}) {
	fmt.Printf("Error: "+format+"\n", args...)
	os.Exit(1)
}
