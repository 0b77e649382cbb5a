package processor

import "errors"

var (
	ErrChargeFailed     = errors.New("processor charge failed")
	ErrMissingCustomer  = errors.New("customer reference is required")
	ErrInvalidAmount    = errors.New("amount must be positive")
	ErrNoPendingItems   = errors.New("no pending invoice items for customer")
	ErrCustomerNotFound = errors.New("customer not found")
	ErrAccountNotFound  = errors.New("connected account not found")
	ErrInvalidConfig    = errors.New("invalid processor configuration")
)
