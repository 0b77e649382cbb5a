package ledger

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/dmitrymomot/dialbill/pkg/logger"
)

// BatchWriter stores a batch of entries. It must be safe to retry: entries
// carry deterministic IDs.
type BatchWriter interface {
	StoreBatch(ctx context.Context, entries []Entry) error
}

// AsyncOptions tunes batching.
type AsyncOptions struct {
	BufferSize     int           `env:"LEDGER_BUFFER_SIZE" envDefault:"1000"`
	BatchSize      int           `env:"LEDGER_BATCH_SIZE" envDefault:"100"`
	BatchTimeout   time.Duration `env:"LEDGER_BATCH_TIMEOUT" envDefault:"1s"`
	StorageTimeout time.Duration `env:"LEDGER_STORAGE_TIMEOUT" envDefault:"5s"`
}

func (o AsyncOptions) withDefaults() AsyncOptions {
	if o.BufferSize <= 0 {
		o.BufferSize = 1000
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 100
	}
	if o.BatchTimeout <= 0 {
		o.BatchTimeout = time.Second
	}
	if o.StorageTimeout <= 0 {
		o.StorageTimeout = 5 * time.Second
	}
	return o
}

// AsyncWriter queues entries and flushes them to a BatchWriter when a batch
// fills up or the batch timeout elapses. Write never waits for storage unless
// the queue is full, in which case the entry is stored synchronously.
type AsyncWriter struct {
	bw      BatchWriter
	log     *slog.Logger
	opts    AsyncOptions
	entries chan Entry
	done    chan struct{}
	wg      sync.WaitGroup

	closeOnce sync.Once
	mu        sync.RWMutex
	closed    bool
}

// NewAsyncWriter starts the flush worker. Call Close to drain it.
func NewAsyncWriter(bw BatchWriter, opts AsyncOptions, log *slog.Logger) (*AsyncWriter, error) {
	if bw == nil {
		return nil, ErrNilBatchWriter
	}
	if log == nil {
		log = slog.Default()
	}
	opts = opts.withDefaults()

	w := &AsyncWriter{
		bw:      bw,
		log:     log.With(logger.Component("ledger")),
		opts:    opts,
		entries: make(chan Entry, opts.BufferSize),
		done:    make(chan struct{}),
	}
	w.wg.Add(1)
	go w.worker()
	return w, nil
}

// Write queues e.
func (w *AsyncWriter) Write(ctx context.Context, e Entry) error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return ErrWriterClosed
	}

	select {
	case w.entries <- e:
		return nil
	default:
	}

	// Queue full: store inline so the entry is not dropped.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.opts.StorageTimeout)
	defer cancel()
	return w.bw.StoreBatch(ctx, []Entry{e})
}

func (w *AsyncWriter) worker() {
	defer w.wg.Done()

	batch := make([]Entry, 0, w.opts.BatchSize)
	ticker := time.NewTicker(w.opts.BatchTimeout)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), w.opts.StorageTimeout)
		defer cancel()

		if err := w.bw.StoreBatch(ctx, batch); err != nil {
			w.log.ErrorContext(ctx, "ledger batch dropped",
				logger.Error(err),
				slog.Int("entries", len(batch)),
			)
		}
		clear(batch)
		batch = batch[:0]
	}

	for {
		select {
		case e := <-w.entries:
			batch = append(batch, e)
			if len(batch) >= w.opts.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-w.done:
			for {
				select {
				case e := <-w.entries:
					batch = append(batch, e)
					if len(batch) >= w.opts.BatchSize {
						flush()
					}
				default:
					flush()
					return
				}
			}
		}
	}
}

// Close stops accepting entries and flushes what is queued. ctx bounds the
// wait; entries still queued when it expires are lost.
func (w *AsyncWriter) Close(ctx context.Context) error {
	w.closeOnce.Do(func() {
		w.mu.Lock()
		w.closed = true
		w.mu.Unlock()
		close(w.done)
	})

	finished := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
