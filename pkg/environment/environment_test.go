package environment_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/dialbill/pkg/environment"
)

func TestParse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want environment.Environment
	}{
		{name: "production", in: "production", want: environment.Production},
		{name: "prod alias", in: "prod", want: environment.Production},
		{name: "mixed case with spaces", in: "  PROD ", want: environment.Production},
		{name: "staging", in: "staging", want: environment.Staging},
		{name: "stage alias", in: "stage", want: environment.Staging},
		{name: "development", in: "development", want: environment.Development},
		{name: "empty falls back to development", in: "", want: environment.Development},
		{name: "unknown falls back to development", in: "qa", want: environment.Development},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, environment.Parse(tt.in))
		})
	}
}

func TestEnvironment_UnmarshalText(t *testing.T) {
	t.Parallel()

	var env environment.Environment
	require.NoError(t, env.UnmarshalText([]byte("prod")))
	assert.True(t, env.IsProduction())
	assert.False(t, env.IsStaging())
	assert.False(t, env.IsDevelopment())
	assert.Equal(t, "production", env.String())
}
