package carrier

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"net/http"
	"net/url"
	"sort"
	"strings"
)

// SignatureHeader carries the carrier's request signature.
const SignatureHeader = "X-Twilio-Signature"

// Sign computes the carrier signature: HMAC-SHA1 keyed by the auth token over
// the full callback URL followed by every form parameter, sorted by name,
// as name+value with no separators.
func Sign(authToken, fullURL string, params url.Values) string {
	var b strings.Builder
	b.WriteString(fullURL)

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		for _, v := range params[k] {
			b.WriteString(k)
			b.WriteString(v)
		}
	}

	mac := hmac.New(sha1.New, []byte(authToken))
	mac.Write([]byte(b.String()))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks signature against the URL and form params.
func VerifySignature(authToken, fullURL string, params url.Values, signature string) error {
	if authToken == "" {
		return ErrInvalidConfig
	}
	if signature == "" {
		return ErrMissingSignature
	}
	expected := Sign(authToken, fullURL, params)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return ErrInvalidSignature
	}
	return nil
}

// VerifyRequest validates an inbound callback. publicURL is the externally
// visible scheme and host the carrier called, since proxies rewrite r.Host.
// It parses the form, so handlers can read r.PostForm afterwards.
func VerifyRequest(r *http.Request, authToken, publicURL string) error {
	if err := r.ParseForm(); err != nil {
		return ErrInvalidSignature
	}
	full := strings.TrimRight(publicURL, "/") + r.URL.RequestURI()
	return VerifySignature(authToken, full, r.PostForm, r.Header.Get(SignatureHeader))
}
