// Package ledger keeps an append-only trail of billing and dispatch events.
//
// A Recorder consumes the change broadcasts published by the billing and
// dispatch packages, turns every change into an Entry and hands it to an
// AsyncWriter, which batches entries into a BatchWriter. Two batch writers
// ship with the package: OpenSearchWriter bulk-indexes into monthly indices,
// LogWriter emits one structured log record per entry.
//
// Entry IDs are content hashes, so replaying the same change overwrites the
// same document instead of duplicating it.
package ledger
