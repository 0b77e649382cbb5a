package credentials

import "errors"

// ErrCredentialInvalid is the category every resolution failure belongs to.
// The detail errors below are always joined with it.
var ErrCredentialInvalid = errors.New("credential invalid")

var (
	ErrMalformedAccountSID        = errors.New("account sid has wrong prefix or length")
	ErrMalformedKeySID            = errors.New("key sid has wrong prefix or length")
	ErrMissingCounterpart         = errors.New("credential set is missing its key or secret")
	ErrNoPersonalCredentials      = errors.New("self-billed tenant has no personal credentials")
	ErrPlatformCredentialsMissing = errors.New("platform credentials are not configured")
	ErrDecryptSecret              = errors.New("stored secret could not be decrypted")
)

func invalid(detail error, causes ...error) error {
	return errors.Join(append([]error{ErrCredentialInvalid, detail}, causes...)...)
}
