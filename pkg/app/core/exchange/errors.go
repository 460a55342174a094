package exchange

import (
	"errors"

	"github.com/uhyunpark/hyperswap/pkg/app/core/atomicizer"
	"github.com/uhyunpark/hyperswap/pkg/app/core/registry"
	"github.com/uhyunpark/hyperswap/pkg/vm"
)

var (
	ErrInvalidSignature           = errors.New("exchange: invalid order authorization")
	ErrOrderExpiredOrNotYetListed = errors.New("exchange: order expired or not yet listed")
	ErrFillExceeded               = errors.New("exchange: order fill exceeded")
	ErrSelfMatch                  = errors.New("exchange: self-matching is prohibited")
	ErrRegistryMismatch           = errors.New("exchange: orders use different registries")
	ErrUnknownRegistry            = errors.New("exchange: registry not accepted by this exchange")
	ErrProxyNotFound              = errors.New("exchange: maker has no proxy")
	ErrStaticCallFailed           = errors.New("exchange: static call failed")
	ErrNotMaker                   = errors.New("exchange: caller is not the order maker")
	ErrAlreadyApproved            = errors.New("exchange: order hash already approved")
	ErrFillDecrease               = errors.New("exchange: fill can only increase")
)

// Code names a failure class for clients.
type Code string

const (
	CodeInvalidSignature           Code = "InvalidSignature"
	CodeOrderExpiredOrNotYetListed Code = "OrderExpiredOrNotYetListed"
	CodeFillExceeded               Code = "FillExceeded"
	CodeRegistryMismatch           Code = "RegistryMismatch"
	CodeStaticCallFailed           Code = "StaticCallFailed"
	CodeUnauthorized               Code = "Unauthorized"
	CodeBatchSubcallFailed         Code = "BatchSubcallFailed"
	CodeCallReverted               Code = "CallReverted"
	CodeSelfMatch                  Code = "SelfMatch"
	CodeUnknownRegistry            Code = "UnknownRegistry"
	CodeProxyNotFound              Code = "ProxyNotFound"
	CodeInsufficientBalance        Code = "InsufficientBalance"
	CodeNotMaker                   Code = "NotMaker"
	CodeAlreadyApproved            Code = "AlreadyApproved"
	CodeInternal                   Code = "Internal"
)

// the first match wins, so more specific causes come before the errors
// that wrap them
var reasons = []struct {
	err  error
	code Code
}{
	{ErrInvalidSignature, CodeInvalidSignature},
	{ErrOrderExpiredOrNotYetListed, CodeOrderExpiredOrNotYetListed},
	{ErrFillExceeded, CodeFillExceeded},
	{ErrFillDecrease, CodeFillExceeded},
	{ErrRegistryMismatch, CodeRegistryMismatch},
	{ErrStaticCallFailed, CodeStaticCallFailed},
	{registry.ErrUnauthorized, CodeUnauthorized},
	{atomicizer.ErrBatchSubcallFailed, CodeBatchSubcallFailed},
	{vm.ErrCallReverted, CodeCallReverted},
	{ErrSelfMatch, CodeSelfMatch},
	{ErrUnknownRegistry, CodeUnknownRegistry},
	{ErrProxyNotFound, CodeProxyNotFound},
	{vm.ErrInsufficientBalance, CodeInsufficientBalance},
	{ErrNotMaker, CodeNotMaker},
	{ErrAlreadyApproved, CodeAlreadyApproved},
}

// Reason classifies err. Nil maps to "".
func Reason(err error) Code {
	if err == nil {
		return ""
	}
	for _, r := range reasons {
		if errors.Is(err, r.err) {
			return r.code
		}
	}
	return CodeInternal
}
