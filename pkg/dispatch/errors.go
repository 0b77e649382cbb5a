package dispatch

import "errors"

var (
	// ErrDispatchFailedAfterClaim means the side effect failed after the
	// claim was won. The claim has been reverted unless the error also
	// wraps ErrRevertFailed.
	ErrDispatchFailedAfterClaim = errors.New("dispatch failed after claim")
	ErrRevertFailed             = errors.New("failed to revert claim")

	ErrActionNotFound = errors.New("scheduled action not found")
	ErrActionExists   = errors.New("scheduled action already exists")
	ErrInvalidFlag    = errors.New("invalid claim flag")
	ErrInvalidAction  = errors.New("invalid scheduled action")
)
