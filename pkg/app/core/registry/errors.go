package registry

import "errors"

var (
	ErrNotOwner           = errors.New("registry: caller is not the owner")
	ErrAlreadyInitialized = errors.New("registry: initial authentication already granted")
	ErrAlreadyAuthorized  = errors.New("registry: address already authorized")
	ErrAlreadyPending     = errors.New("registry: grant already pending")
	ErrNotPending         = errors.New("registry: no pending grant")
	ErrTimelocked         = errors.New("registry: grant still timelocked")

	ErrUnauthorized     = errors.New("proxy: caller not authorized")
	ErrUnknownHowToCall = errors.New("proxy: unknown howToCall")
)
