package ledger

import (
	"context"
	"log/slog"

	"github.com/dmitrymomot/dialbill/pkg/logger"
)

// LogWriter writes every entry as a structured log record. It is the
// fallback when no search cluster is configured.
type LogWriter struct {
	log *slog.Logger
}

func NewLogWriter(log *slog.Logger) *LogWriter {
	if log == nil {
		log = slog.Default()
	}
	return &LogWriter{log: log.With(logger.Component("ledger"))}
}

func (w *LogWriter) StoreBatch(ctx context.Context, entries []Entry) error {
	for _, e := range entries {
		attrs := []slog.Attr{
			slog.String("entry_id", e.ID),
			slog.String("source", string(e.Source)),
			slog.String("kind", e.Kind),
			slog.Time("at", e.At),
		}
		if e.TenantID != "" {
			attrs = append(attrs, logger.TenantID(e.TenantID), logger.Amount("amount_usd", e.AmountUSD))
		}
		if e.ActionID != "" {
			attrs = append(attrs, logger.ActionID(e.ActionID), logger.Flag(e.Flag))
		}
		w.log.LogAttrs(ctx, slog.LevelInfo, "ledger entry", attrs...)
	}
	return nil
}
