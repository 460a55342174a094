package vm

import "errors"

var (
	ErrDepthExceeded       = errors.New("max call depth exceeded")
	ErrWriteProtection     = errors.New("write protection")
	ErrInsufficientBalance = errors.New("insufficient balance for transfer")
	ErrCallReverted        = errors.New("call reverted")
	ErrUnknownCode         = errors.New("unknown code kind")
	ErrCodeExists          = errors.New("address already has code")
	ErrUnknownMethod       = errors.New("unknown method selector")
	ErrBadReturn           = errors.New("malformed return data")
	ErrPanic               = errors.New("execution panicked")
	ErrHalted              = errors.New("machine halted")
)
