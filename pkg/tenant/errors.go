package tenant

import "errors"

var (
	// ErrTenantNotFound is returned when a tenant cannot be found.
	ErrTenantNotFound = errors.New("tenant not found")

	// ErrTenantExists is returned when creating a tenant whose id is taken.
	ErrTenantExists = errors.New("tenant already exists")

	// ErrInvalidIdentifier is returned when the identifier format is invalid.
	ErrInvalidIdentifier = errors.New("invalid tenant identifier")

	// ErrInvalidAmount is returned when a stored amount cannot be represented.
	ErrInvalidAmount = errors.New("invalid stored amount")
)
