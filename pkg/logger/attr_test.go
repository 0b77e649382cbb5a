package logger_test

import (
	"errors"
	"log/slog"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/dialbill/pkg/logger"
)

func TestError(t *testing.T) {
	t.Parallel()

	err := errors.New("boom")
	attr := logger.Error(err)
	require.Equal(t, "error", attr.Key)
	assert.Equal(t, err, attr.Value.Any())

	empty := logger.Error(nil)
	assert.True(t, empty.Equal(slog.Attr{}))
}

func TestMask(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "empty", in: "", want: ""},
		{name: "short value fully hidden", in: "AC123", want: "****"},
		{name: "eight characters fully hidden", in: "AC123456", want: "****"},
		{name: "account sid", in: "AC0123456789abcdef0123456789abcdef", want: "AC01…cdef"},
		{name: "surrounding whitespace ignored", in: "  SKaaaabbbbcccc  ", want: "SKaa…cccc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, logger.Mask(tt.in))
		})
	}
}

func TestMasked(t *testing.T) {
	t.Parallel()

	attr := logger.Masked("account_sid", "AC0123456789abcdef0123456789abcdef")
	assert.Equal(t, "account_sid", attr.Key)
	assert.Equal(t, "AC01…cdef", attr.Value.String())
	assert.NotContains(t, attr.Value.String(), "456789")
}

func TestAmount(t *testing.T) {
	t.Parallel()

	attr := logger.Amount("billed_usd", decimal.RequireFromString("13.3"))
	assert.Equal(t, "billed_usd", attr.Key)
	assert.Equal(t, "13.300000", attr.Value.String())
}

func TestDomainAttrs(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "tenant_id", logger.TenantID("t1").Key)
	assert.Equal(t, "action_id", logger.ActionID("a1").Key)
	assert.Equal(t, "flag", logger.Flag("confirm").Key)
	assert.Equal(t, "category", logger.Category("carrier-sms").Key)
	assert.Equal(t, "component", logger.Component("meter").Key)
	assert.Equal(t, int64(2000), logger.Cents("charged_cents", 2000).Value.Int64())
}
