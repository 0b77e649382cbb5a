package ledger

import (
	"context"
	"errors"
)

// MultiWriter stores every batch in all writers and joins their errors.
type MultiWriter []BatchWriter

func (m MultiWriter) StoreBatch(ctx context.Context, entries []Entry) error {
	var errs []error
	for _, w := range m {
		if err := w.StoreBatch(ctx, entries); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
