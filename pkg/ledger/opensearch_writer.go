package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/opensearch-project/opensearch-go/v2"
)

// DefaultIndexPrefix is used when OpenSearchWriter gets an empty prefix.
const DefaultIndexPrefix = "dialbill-ledger"

// OpenSearchWriter bulk-indexes entries into one index per month, named
// <prefix>-YYYY.MM after the entry time.
type OpenSearchWriter struct {
	client *opensearch.Client
	prefix string
}

func NewOpenSearchWriter(client *opensearch.Client, prefix string) *OpenSearchWriter {
	if prefix == "" {
		prefix = DefaultIndexPrefix
	}
	return &OpenSearchWriter{client: client, prefix: prefix}
}

// IndexFor returns the index an entry is written to.
func (w *OpenSearchWriter) IndexFor(e Entry) string {
	return w.prefix + "-" + e.At.UTC().Format("2006.01")
}

type bulkAction struct {
	Index bulkTarget `json:"index"`
}

type bulkTarget struct {
	Index string `json:"_index"`
	ID    string `json:"_id"`
}

type bulkResponse struct {
	Errors bool `json:"errors"`
	Items  []map[string]struct {
		Status int `json:"status"`
		Error  *struct {
			Type   string `json:"type"`
			Reason string `json:"reason"`
		} `json:"error"`
	} `json:"items"`
}

func (w *OpenSearchWriter) StoreBatch(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}

	var body bytes.Buffer
	enc := json.NewEncoder(&body)
	for _, e := range entries {
		if err := enc.Encode(bulkAction{Index: bulkTarget{Index: w.IndexFor(e), ID: e.ID}}); err != nil {
			return errors.Join(ErrEncodeEntry, err)
		}
		if err := enc.Encode(e); err != nil {
			return errors.Join(ErrEncodeEntry, err)
		}
	}

	res, err := w.client.Bulk(&body, w.client.Bulk.WithContext(ctx))
	if err != nil {
		return errors.Join(ErrBulkIndexFailed, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 1024))
		return errors.Join(ErrBulkIndexFailed, fmt.Errorf("status %d: %s", res.StatusCode, bytes.TrimSpace(msg)))
	}

	var parsed bulkResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return errors.Join(ErrBulkIndexFailed, err)
	}
	if !parsed.Errors {
		return nil
	}

	var failed int
	var first string
	for _, item := range parsed.Items {
		for _, result := range item {
			if result.Error == nil {
				continue
			}
			failed++
			if first == "" {
				first = result.Error.Type + ": " + result.Error.Reason
			}
		}
	}
	return errors.Join(ErrBulkIndexFailed, fmt.Errorf("%d of %d entries rejected, first: %s", failed, len(entries), first))
}
