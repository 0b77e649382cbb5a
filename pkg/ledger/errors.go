package ledger

import "errors"

var (
	ErrWriterClosed    = errors.New("ledger writer is closed")
	ErrBulkIndexFailed = errors.New("ledger bulk index failed")
	ErrNilBatchWriter  = errors.New("ledger batch writer is nil")
	ErrEncodeEntry     = errors.New("failed to encode ledger entry")
)
