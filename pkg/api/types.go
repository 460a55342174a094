package api

import (
	"encoding/json"

	"github.com/uhyunpark/hyperswap/pkg/storage"
)

// API response types for REST endpoints and WebSocket messages. Request
// bodies for orders, matches and cancels use the transaction package's wire
// payloads.

// ==============================
// REST Response Types
// ==============================

// ExchangeInfo describes the deployment a client signs against
type ExchangeInfo struct {
	Network            string   `json:"network"`
	Name               string   `json:"name"`    // EIP-712 domain name
	Version            string   `json:"version"` // EIP-712 domain version
	ChainID            string   `json:"chainId"`
	PersonalSignPrefix string   `json:"personalSignPrefix"`
	Exchange           string   `json:"exchange"`
	Registries         []string `json:"registries"`
	Atomicizer         string   `json:"atomicizer"`
	Static             string   `json:"static"`
	Market             string   `json:"market"`
	Relayer            string   `json:"relayer"` // matcher of unsigned match requests
	ERC20              string   `json:"erc20,omitempty"`
	ERC721             string   `json:"erc721,omitempty"`
}

// OrderHashResponse is returned by POST /orders/hash
type OrderHashResponse struct {
	Hash       string          `json:"hash"`       // EIP-712 order hash
	HashToSign string          `json:"hashToSign"` // personal-sign digest of hash
	TypedData  json.RawMessage `json:"typedData"`  // eth_signTypedData_v4 input
}

// OrderStatus is the on-ledger state of an order hash
type OrderStatus struct {
	Hash     string `json:"hash"`
	Maker    string `json:"maker"`
	Fill     string `json:"fill"`
	Approved bool   `json:"approved"`
}

// MatchResponse is returned for a committed match
type MatchResponse struct {
	Status     string `json:"status"` // "matched"
	FirstHash  string `json:"firstHash"`
	SecondHash string `json:"secondHash"`
	FirstFill  string `json:"firstFill"`
	SecondFill string `json:"secondFill"`
	Matcher    string `json:"matcher"`
}

// CancelResponse is returned for an accepted cancellation
type CancelResponse struct {
	Status    string `json:"status"` // "cancelled"
	OrderHash string `json:"orderHash"`
}

// MatchInfo represents a stored match
type MatchInfo struct {
	Seq         uint64 `json:"seq"`
	FirstHash   string `json:"firstHash"`
	SecondHash  string `json:"secondHash"`
	FirstMaker  string `json:"firstMaker"`
	SecondMaker string `json:"secondMaker"`
	FirstFill   string `json:"firstFill"`
	SecondFill  string `json:"secondFill"`
	Metadata    string `json:"metadata"`
	Matcher     string `json:"matcher"`
	Value       string `json:"value"`
	Timestamp   int64  `json:"timestamp"` // Unix seconds
}

func matchInfo(rec *storage.MatchRecord) MatchInfo {
	return MatchInfo{
		Seq:         rec.Seq,
		FirstHash:   rec.FirstHash,
		SecondHash:  rec.SecondHash,
		FirstMaker:  rec.FirstMaker,
		SecondMaker: rec.SecondMaker,
		FirstFill:   rec.FirstFill,
		SecondFill:  rec.SecondFill,
		Metadata:    rec.Metadata,
		Matcher:     rec.Matcher,
		Value:       rec.Value,
		Timestamp:   rec.Timestamp,
	}
}

// ProxyRequest asks for owner's proxy to be registered
type ProxyRequest struct {
	Owner string `json:"owner"`
}

type ProxyInfo struct {
	Owner string `json:"owner"`
	Proxy string `json:"proxy"`
}

// NonceInfo is the nonce a matcher's next signed request must carry
type NonceInfo struct {
	Matcher string `json:"matcher"`
	Nonce   uint64 `json:"nonce"`
}

// ErrorResponse represents an API error
type ErrorResponse struct {
	Error   string `json:"error"`   // error code, e.g. "FillExceeded"
	Message string `json:"message"` // detail
}

// ==============================
// WebSocket Message Types
// ==============================

// WSSubscribeRequest represents a subscription request
type WSSubscribeRequest struct {
	Op       string   `json:"op"`       // "subscribe" or "unsubscribe"
	Channels []string `json:"channels"` // e.g., ["matches"]
}

// WSAck confirms a subscription change
type WSAck struct {
	Type     string   `json:"type"` // "subscribed" or "unsubscribed"
	Channels []string `json:"channels"`
}

// MatchUpdate is pushed on the matches channel for every committed match
type MatchUpdate struct {
	Type  string    `json:"type"` // "match"
	Match MatchInfo `json:"match"`
}
