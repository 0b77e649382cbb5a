package carrier

import "errors"

var (
	ErrSendFailed        = errors.New("carrier request failed")
	ErrPermanentFailure  = errors.New("carrier rejected the request")
	ErrTemporaryFailure  = errors.New("temporary carrier failure")
	ErrCircuitOpen       = errors.New("carrier circuit breaker is open")
	ErrInvalidMessage    = errors.New("invalid carrier message")
	ErrMissingHandle     = errors.New("carrier credentials are missing")
	ErrInvalidSignature  = errors.New("invalid carrier signature")
	ErrMissingSignature  = errors.New("carrier signature is missing")
	ErrInvalidConfig     = errors.New("invalid carrier configuration")
	ErrUnexpectedPayload = errors.New("unexpected carrier response")
)
