package billing

import "errors"

var (
	// ErrUsageSuspended means the balance is below the freeze threshold.
	// Returned in strict mode only.
	ErrUsageSuspended = errors.New("usage suspended: balance below freeze threshold")

	// ErrTenantUnlinked means the tenant has no processor customer. Returned
	// by the meter in strict mode only.
	ErrTenantUnlinked = errors.New("tenant has no payment processor linkage")

	ErrTopUpFailed           = errors.New("top-up charge failed")
	ErrThresholdChargeFailed = errors.New("threshold charge failed")
	ErrOneTimeChargeFailed   = errors.New("one-time charge failed")

	ErrInvalidUsage = errors.New("invalid usage event")
)
