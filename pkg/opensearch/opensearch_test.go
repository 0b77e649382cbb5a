package opensearch_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/dialbill/pkg/opensearch"
)

func TestNew(t *testing.T) {
	t.Parallel()

	var healthy atomic.Bool
	healthy.Store(true)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if !healthy.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"error":"down"}`))
			return
		}
		_, _ = w.Write([]byte(`{"version":{"number":"2.11.0"}}`))
	}))
	t.Cleanup(srv.Close)

	client, err := opensearch.New(context.Background(), opensearch.Config{Addresses: []string{srv.URL}})
	require.NoError(t, err)

	check := opensearch.Healthcheck(client)
	assert.NoError(t, check(context.Background()))

	healthy.Store(false)
	assert.ErrorIs(t, check(context.Background()), opensearch.ErrHealthcheckFailed)
}

func TestNew_NotConfigured(t *testing.T) {
	t.Parallel()

	cfg := opensearch.Config{}
	assert.False(t, cfg.Enabled())

	_, err := opensearch.New(context.Background(), cfg)
	assert.ErrorIs(t, err, opensearch.ErrNoAddresses)
}
