package logger

import (
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"
)

// Error creates an attribute for a single error under the key "error".
// If err is nil, it returns an empty Attr.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// Component records the component name under the key "component".
func Component(name string) slog.Attr {
	return slog.String("component", name)
}

// TenantID records the tenant identifier under the key "tenant_id".
func TenantID(id string) slog.Attr {
	return slog.String("tenant_id", id)
}

// ActionID records the scheduled action identifier under the key "action_id".
func ActionID(id string) slog.Attr {
	return slog.String("action_id", id)
}

// Flag records a claim flag name under the key "flag".
func Flag(name string) slog.Attr {
	return slog.String("flag", name)
}

// Category records a usage category under the key "category".
func Category(name string) slog.Attr {
	return slog.String("category", name)
}

// Amount records a USD amount under the given key as a fixed-point string,
// so log pipelines never see float rounding.
func Amount(key string, v decimal.Decimal) slog.Attr {
	return slog.String(key, v.StringFixed(6))
}

// Cents records an integer cent amount under the given key.
func Cents(key string, v int64) slog.Attr {
	return slog.Int64(key, v)
}

// Masked records a credential identifier showing only its first and last
// four characters. Values of eight characters or fewer are fully hidden.
func Masked(key, value string) slog.Attr {
	return slog.String(key, Mask(value))
}

// Mask hides the middle of a credential identifier.
func Mask(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	if len(value) <= 8 {
		return "****"
	}
	return value[:4] + "…" + value[len(value)-4:]
}
