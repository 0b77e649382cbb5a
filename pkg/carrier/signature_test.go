package carrier_test

import (
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/dialbill/pkg/carrier"
)

func TestSign_OrderIndependent(t *testing.T) {
	t.Parallel()

	a := url.Values{"To": {"+1555"}, "From": {"+1666"}, "Body": {"hi"}}
	b := url.Values{"Body": {"hi"}, "From": {"+1666"}, "To": {"+1555"}}

	assert.Equal(t,
		carrier.Sign("token", "https://example.com/cb", a),
		carrier.Sign("token", "https://example.com/cb", b))
	assert.NotEqual(t,
		carrier.Sign("token", "https://example.com/cb", a),
		carrier.Sign("other", "https://example.com/cb", a))
}

func TestVerifySignature(t *testing.T) {
	t.Parallel()

	params := url.Values{"MessageSid": {"SM1"}, "MessageStatus": {"delivered"}}
	sig := carrier.Sign("token", "https://example.com/cb?x=1", params)

	assert.NoError(t, carrier.VerifySignature("token", "https://example.com/cb?x=1", params, sig))
	assert.ErrorIs(t, carrier.VerifySignature("token", "https://example.com/cb?x=2", params, sig), carrier.ErrInvalidSignature)
	assert.ErrorIs(t, carrier.VerifySignature("token", "https://example.com/cb?x=1", params, ""), carrier.ErrMissingSignature)
	assert.ErrorIs(t, carrier.VerifySignature("", "https://example.com/cb?x=1", params, sig), carrier.ErrInvalidConfig)

	params.Set("MessageStatus", "failed")
	assert.ErrorIs(t, carrier.VerifySignature("token", "https://example.com/cb?x=1", params, sig), carrier.ErrInvalidSignature)
}

func TestVerifyRequest(t *testing.T) {
	t.Parallel()

	form := url.Values{"AccountSid": {"AC1"}, "Status": {"approved"}}
	sig := carrier.Sign("token", "https://hooks.example.com/webhooks/compliance?tenant=t1", form)

	r := httptest.NewRequest("POST", "/webhooks/compliance?tenant=t1", strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	r.Header.Set(carrier.SignatureHeader, sig)

	require.NoError(t, carrier.VerifyRequest(r, "token", "https://hooks.example.com/"))
	assert.Equal(t, "approved", r.PostForm.Get("Status"))
}
