package ledger_test

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/opensearch-project/opensearch-go/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/dialbill/pkg/billing"
	"github.com/dmitrymomot/dialbill/pkg/ledger"
)

type bulkServer struct {
	mu      sync.Mutex
	actions []map[string]map[string]string
	docs    []map[string]any
	reply   string
}

func (s *bulkServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/_bulk" {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"version":{"number":"2.11.0"}}`))
		return
	}

	s.mu.Lock()
	scanner := bufio.NewScanner(r.Body)
	for line := 0; scanner.Scan(); line++ {
		if line%2 == 0 {
			var action map[string]map[string]string
			_ = json.Unmarshal(scanner.Bytes(), &action)
			s.actions = append(s.actions, action)
		} else {
			var doc map[string]any
			_ = json.Unmarshal(scanner.Bytes(), &doc)
			s.docs = append(s.docs, doc)
		}
	}
	reply := s.reply
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(reply))
}

func newSearchClient(t *testing.T, srv *bulkServer) *opensearch.Client {
	t.Helper()
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)

	client, err := opensearch.NewClient(opensearch.Config{Addresses: []string{ts.URL}})
	require.NoError(t, err)
	return client
}

func TestOpenSearchWriter_StoreBatch(t *testing.T) {
	t.Parallel()

	srv := &bulkServer{reply: `{"took":1,"errors":false,"items":[]}`}
	w := ledger.NewOpenSearchWriter(newSearchClient(t, srv), "")

	e := ledger.FromBilling(billing.Change{
		Kind:      billing.ChangeOneTimeCharged,
		TenantID:  "t1",
		AmountUSD: decimal.RequireFromString("149"),
		At:        at,
	})
	require.NoError(t, w.StoreBatch(context.Background(), []ledger.Entry{e}))

	srv.mu.Lock()
	defer srv.mu.Unlock()
	require.Len(t, srv.actions, 1)
	assert.Equal(t, "dialbill-ledger-2025.03", srv.actions[0]["index"]["_index"])
	assert.Equal(t, e.ID, srv.actions[0]["index"]["_id"])
	require.Len(t, srv.docs, 1)
	assert.Equal(t, "149", srv.docs[0]["amount_usd"])
	assert.Equal(t, "onetime_charged", srv.docs[0]["kind"])
}

func TestOpenSearchWriter_ItemErrors(t *testing.T) {
	t.Parallel()

	srv := &bulkServer{reply: `{"took":1,"errors":true,"items":[{"index":{"status":400,"error":{"type":"mapper_parsing_exception","reason":"bad amount"}}}]}`}
	w := ledger.NewOpenSearchWriter(newSearchClient(t, srv), "audit")

	err := w.StoreBatch(context.Background(), []ledger.Entry{{ID: "1", At: at}})
	require.ErrorIs(t, err, ledger.ErrBulkIndexFailed)
	assert.Contains(t, err.Error(), "mapper_parsing_exception")
}

func TestOpenSearchWriter_EmptyBatch(t *testing.T) {
	t.Parallel()

	w := ledger.NewOpenSearchWriter(nil, "")
	assert.NoError(t, w.StoreBatch(context.Background(), nil))
}

func TestOpenSearchWriter_IndexFor(t *testing.T) {
	t.Parallel()

	w := ledger.NewOpenSearchWriter(nil, "audit")
	assert.Equal(t, "audit-2025.03", w.IndexFor(ledger.Entry{At: at}))
}
