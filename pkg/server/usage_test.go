package server_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/dialbill/pkg/billing"
	"github.com/dmitrymomot/dialbill/pkg/processor"
	"github.com/dmitrymomot/dialbill/pkg/server"
	"github.com/dmitrymomot/dialbill/pkg/tenant"
)

func newUsageServer(t *testing.T, cfg billing.Config, tn *tenant.Tenant) (http.Handler, *tenant.MemoryStore) {
	t.Helper()
	store := tenant.NewMemoryStore(tn)
	proc := processor.NewMemory("cus_1")
	srv := server.New(server.Config{CronSecret: "s3cret"}, &fakeTicker{}, store, &feeMock{},
		server.WithUsage(billing.NewMeter(store, proc, cfg)),
		server.WithMinutes(billing.NewAccrualBiller(store, proc, cfg)),
	)
	return srv.Handler(), store
}

func postJSON(target, body string) *http.Request {
	r := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	r.Header.Set("X-Cron-Key", "s3cret")
	return r
}

func TestInternalUsage(t *testing.T) {
	t.Parallel()

	h, store := newUsageServer(t, billing.DefaultConfig(), &tenant.Tenant{
		ID:              "t1",
		CustomerRef:     "cus_1",
		UsageBalanceUSD: decimal.NewFromInt(5),
	})

	rec := do(h, postJSON("/internal/usage", `{"tenant_id":"t1","category":"carrier-voice","raw_cost_usd":"1.33"}`))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body struct {
		Data struct {
			Outcome    string          `json:"outcome"`
			BalanceUSD decimal.Decimal `json:"balance_usd"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, string(billing.OutcomeBilled), body.Data.Outcome)
	assert.True(t, decimal.RequireFromString("3.67").Equal(body.Data.BalanceUSD))

	got, err := store.Get(context.Background(), "t1")
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("3.67").Equal(got.UsageBalanceUSD))
}

func TestInternalUsage_Errors(t *testing.T) {
	t.Parallel()

	cfg := billing.DefaultConfig()
	cfg.StrictFlag = true
	h, _ := newUsageServer(t, cfg, &tenant.Tenant{ID: "t1", UsageBalanceUSD: decimal.NewFromInt(-30)})

	tests := []struct {
		name string
		body string
		want int
	}{
		{name: "malformed", body: `{`, want: http.StatusBadRequest},
		{name: "negative cost", body: `{"tenant_id":"t1","raw_cost_usd":"-1"}`, want: http.StatusBadRequest},
		{name: "unknown tenant", body: `{"tenant_id":"ghost","raw_cost_usd":"1"}`, want: http.StatusNotFound},
		{name: "suspended", body: `{"tenant_id":"t1","category":"carrier-sms","raw_cost_usd":"1"}`, want: http.StatusPaymentRequired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, do(h, postJSON("/internal/usage", tt.body)).Code)
		})
	}

	r := postJSON("/internal/usage", `{"tenant_id":"t1","raw_cost_usd":"1"}`)
	r.Header.Del("X-Cron-Key")
	assert.Equal(t, http.StatusUnauthorized, do(h, r).Code)
}

func TestInternalMinutes(t *testing.T) {
	t.Parallel()

	h, store := newUsageServer(t, billing.DefaultConfig(), &tenant.Tenant{
		ID:              "t1",
		CustomerRef:     "cus_1",
		AIDialerEnabled: true,
	})

	rec := do(h, postJSON("/internal/ai-minutes", `{"tenant_id":"t1","minutes":"140","raw_cost_usd":"9.80"}`))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"charged_cents":2000`)

	got, err := store.Get(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, int64(100), got.AIAccruedCents)
	assert.Equal(t, int64(2000), got.AIBilledTotalCents)
}
