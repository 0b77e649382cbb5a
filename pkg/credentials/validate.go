package credentials

import (
	"strings"
	"unicode"
)

const (
	sidLength        = 34
	accountSIDPrefix = "AC"
	apiKeySIDPrefix  = "SK"
)

// Sanitize drops everything that is not an ASCII letter or digit. Pasted
// credentials routinely carry quotes, whitespace and zero-width characters.
func Sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		if r > unicode.MaxASCII || !(unicode.IsLetter(r) || unicode.IsDigit(r)) {
			return -1
		}
		return r
	}, s)
}

// validate checks one credential set and returns the sanitized handle. The
// key id may be an API key sid or the account sid itself (classic auth).
func validate(accountSID, keySID, secret string) (Handle, error) {
	account := Sanitize(accountSID)
	key := Sanitize(keySID)
	pass := Sanitize(secret)

	if !wellFormed(account, accountSIDPrefix) {
		return Handle{}, invalid(ErrMalformedAccountSID)
	}
	if key == "" || pass == "" {
		return Handle{}, invalid(ErrMissingCounterpart)
	}
	if !wellFormed(key, apiKeySIDPrefix) && !wellFormed(key, accountSIDPrefix) {
		return Handle{}, invalid(ErrMalformedKeySID)
	}

	return Handle{AccountSID: account, Username: key, Password: pass}, nil
}

func wellFormed(sid, prefix string) bool {
	return len(sid) == sidLength && strings.HasPrefix(sid, prefix)
}
