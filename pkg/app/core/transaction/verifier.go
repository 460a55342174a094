package transaction

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/uhyunpark/hyperswap/pkg/app/core/exchange"
	"github.com/uhyunpark/hyperswap/pkg/crypto"
)

// Verifier handles transaction signature verification
type Verifier struct {
	eip712Signer *crypto.EIP712Signer
}

// NewVerifier creates a new transaction verifier for the exchange's domain
func NewVerifier(domain crypto.EIP712Domain) *Verifier {
	return &Verifier{eip712Signer: crypto.NewEIP712Signer(domain)}
}

// MatchMessage returns the typed-data message a matcher signs for tx.
func (v *Verifier) MatchMessage(p *MatchPayload) (*crypto.MatchEIP712, error) {
	req, err := p.ToRequest()
	if err != nil {
		return nil, err
	}
	firstHash, err := v.eip712Signer.HashOrder(req.First.Order.EIP712())
	if err != nil {
		return nil, err
	}
	secondHash, err := v.eip712Signer.HashOrder(req.Second.Order.EIP712())
	if err != nil {
		return nil, err
	}
	nonce, err := parseBig("nonce", p.Nonce)
	if err != nil {
		return nil, err
	}
	return &crypto.MatchEIP712{
		FirstHash:  firstHash,
		SecondHash: secondHash,
		FirstCall:  callMessage(req.First.Call),
		SecondCall: callMessage(req.Second.Call),
		Value:      req.Value,
		Metadata:   req.Metadata,
		Nonce:      nonce,
	}, nil
}

func callMessage(c exchange.Call) crypto.CallEIP712 {
	return crypto.CallEIP712{Target: c.Target, HowToCall: uint8(c.HowToCall), Data: c.Data}
}

// VerifyMatchTransaction verifies a matcher-signed match transaction.
// Returns (matcher address, nonce, valid, error)
func (v *Verifier) VerifyMatchTransaction(tx *SignedTransaction) (common.Address, *big.Int, bool, error) {
	if tx.Type != TxTypeMatch {
		return common.Address{}, nil, false, fmt.Errorf("not a match transaction")
	}
	if tx.Match == nil {
		return common.Address{}, nil, false, fmt.Errorf("missing match payload")
	}

	matcher, err := parseAddress("matcher", tx.Match.Matcher)
	if err != nil {
		return common.Address{}, nil, false, err
	}
	msg, err := v.MatchMessage(tx.Match)
	if err != nil {
		return common.Address{}, nil, false, fmt.Errorf("invalid match format: %w", err)
	}

	sigBytes, err := decodeSignature(tx.Signature)
	if err != nil {
		return common.Address{}, nil, false, fmt.Errorf("invalid signature: %w", err)
	}
	signer, err := v.eip712Signer.RecoverMatchSigner(msg, sigBytes)
	if err != nil {
		return common.Address{}, nil, false, fmt.Errorf("signature verification failed: %w", err)
	}
	if signer != matcher {
		return common.Address{}, nil, false, fmt.Errorf("signature invalid")
	}

	return matcher, msg.Nonce, true, nil
}

// VerifyCancelTransaction verifies a maker-signed cancel transaction.
// Returns (maker address, order hash, valid, error)
func (v *Verifier) VerifyCancelTransaction(tx *SignedTransaction) (common.Address, common.Hash, bool, error) {
	if tx.Type != TxTypeCancel {
		return common.Address{}, common.Hash{}, false, fmt.Errorf("not a cancel transaction")
	}
	if tx.Cancel == nil {
		return common.Address{}, common.Hash{}, false, fmt.Errorf("missing cancel payload")
	}

	order, err := tx.Cancel.Order.ToOrder()
	if err != nil {
		return common.Address{}, common.Hash{}, false, fmt.Errorf("invalid order format: %w", err)
	}
	hash, err := v.eip712Signer.HashOrder(order.EIP712())
	if err != nil {
		return common.Address{}, common.Hash{}, false, err
	}

	sigBytes, err := decodeSignature(tx.Signature)
	if err != nil {
		return common.Address{}, common.Hash{}, false, fmt.Errorf("invalid signature: %w", err)
	}
	signer, err := v.eip712Signer.RecoverCancelSigner(&crypto.CancelEIP712{OrderHash: hash, Maker: order.Maker}, sigBytes)
	if err != nil {
		return common.Address{}, common.Hash{}, false, fmt.Errorf("signature verification failed: %w", err)
	}
	if signer != order.Maker {
		return common.Address{}, common.Hash{}, false, fmt.Errorf("invalid cancel signature")
	}

	return order.Maker, hash, true, nil
}

// decodeSignature decodes a 0x-prefixed 65-byte signature
func decodeSignature(sig string) ([]byte, error) {
	sigBytes, err := hexutil.Decode(sig)
	if err != nil {
		return nil, fmt.Errorf("invalid hex signature: %w", err)
	}

	if len(sigBytes) != 65 {
		return nil, fmt.Errorf("signature must be 65 bytes, got %d", len(sigBytes))
	}

	return sigBytes, nil
}

// RecoverSigner recovers the address that signed a transaction
func (v *Verifier) RecoverSigner(tx *SignedTransaction) (common.Address, error) {
	switch tx.Type {
	case TxTypeMatch:
		matcher, _, valid, err := v.VerifyMatchTransaction(tx)
		if err != nil {
			return common.Address{}, err
		}
		if !valid {
			return common.Address{}, fmt.Errorf("invalid signature")
		}
		return matcher, nil

	case TxTypeCancel:
		maker, _, valid, err := v.VerifyCancelTransaction(tx)
		if err != nil {
			return common.Address{}, err
		}
		if !valid {
			return common.Address{}, fmt.Errorf("invalid signature")
		}
		return maker, nil

	default:
		return common.Address{}, fmt.Errorf("unsupported transaction type: %s", tx.Type)
	}
}

// SignMatch fills in tx.Signature with s's signature over the match request.
// tx.Match.Matcher is set to s's address.
func (v *Verifier) SignMatch(s *crypto.Signer, tx *SignedTransaction) error {
	if tx.Match == nil {
		return fmt.Errorf("missing match payload")
	}
	tx.Match.Matcher = s.Address().Hex()
	msg, err := v.MatchMessage(tx.Match)
	if err != nil {
		return err
	}
	hash, err := v.eip712Signer.HashMatch(msg)
	if err != nil {
		return err
	}
	sig, err := s.Sign(hash.Bytes())
	if err != nil {
		return err
	}
	tx.Signature = hexutil.Encode(sig)
	return nil
}

// SignCancel fills in tx.Signature with s's cancel signature for the order.
func (v *Verifier) SignCancel(s *crypto.Signer, tx *SignedTransaction) error {
	if tx.Cancel == nil {
		return fmt.Errorf("missing cancel payload")
	}
	order, err := tx.Cancel.Order.ToOrder()
	if err != nil {
		return err
	}
	orderHash, err := v.eip712Signer.HashOrder(order.EIP712())
	if err != nil {
		return err
	}
	hash, err := v.eip712Signer.HashCancel(&crypto.CancelEIP712{OrderHash: orderHash, Maker: order.Maker})
	if err != nil {
		return err
	}
	sig, err := s.Sign(hash.Bytes())
	if err != nil {
		return err
	}
	tx.Signature = hexutil.Encode(sig)
	return nil
}
