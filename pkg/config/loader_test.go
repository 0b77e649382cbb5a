package config_test

import (
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/dialbill/pkg/config"
)

type defaultsConfig struct {
	Rate    string        `env:"DIALBILL_TEST_RATE" envDefault:"0.15"`
	Retries int           `env:"DIALBILL_TEST_RETRIES" envDefault:"3"`
	Strict  bool          `env:"DIALBILL_TEST_STRICT" envDefault:"true"`
	TTL     time.Duration `env:"DIALBILL_TEST_TTL" envDefault:"2m"`
}

type requiredConfig struct {
	Secret string `env:"DIALBILL_TEST_REQUIRED,required"`
}

type fileConfig struct {
	Value string   `env:"DIALBILL_TEST_FILE_VALUE"`
	List  []string `env:"DIALBILL_TEST_FILE_LIST" envSeparator:","`
}

func TestLoad_Defaults(t *testing.T) {
	os.Unsetenv("DIALBILL_TEST_RATE")
	os.Unsetenv("DIALBILL_TEST_RETRIES")
	os.Unsetenv("DIALBILL_TEST_STRICT")
	os.Unsetenv("DIALBILL_TEST_TTL")

	var cfg defaultsConfig
	require.NoError(t, config.Load(&cfg))

	assert.Equal(t, "0.15", cfg.Rate)
	assert.Equal(t, 3, cfg.Retries)
	assert.True(t, cfg.Strict)
	assert.Equal(t, 2*time.Minute, cfg.TTL)
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("DIALBILL_TEST_RATE", "0.25")
	t.Setenv("DIALBILL_TEST_STRICT", "false")

	var cfg defaultsConfig
	require.NoError(t, config.Load(&cfg))

	assert.Equal(t, "0.25", cfg.Rate)
	assert.False(t, cfg.Strict)
}

func TestLoad_MissingRequired(t *testing.T) {
	os.Unsetenv("DIALBILL_TEST_REQUIRED")

	var cfg requiredConfig
	err := config.Load(&cfg)
	require.Error(t, err)
	assert.True(t, errors.Is(err, config.ErrParsingConfig))
}

func TestLoad_NilPointer(t *testing.T) {
	var cfg *defaultsConfig
	err := config.Load(cfg)
	assert.ErrorIs(t, err, config.ErrNilPointer)
}

func TestLoad_EnvFile(t *testing.T) {
	os.Unsetenv("DIALBILL_TEST_FILE_VALUE")
	os.Unsetenv("DIALBILL_TEST_FILE_LIST")
	t.Cleanup(func() {
		os.Unsetenv("DIALBILL_TEST_FILE_VALUE")
		os.Unsetenv("DIALBILL_TEST_FILE_LIST")
	})

	var cfg fileConfig
	require.NoError(t, config.Load(&cfg, "testdata/.env.test"))

	assert.Equal(t, "from_file", cfg.Value)
	assert.Equal(t, []string{"a", "b", "c"}, cfg.List)
}

func TestLoad_MissingEnvFile(t *testing.T) {
	var cfg fileConfig
	err := config.Load(&cfg, "testdata/does-not-exist.env")
	assert.ErrorIs(t, err, config.ErrLoadingEnvFile)
}

func TestMustLoad_Panics(t *testing.T) {
	os.Unsetenv("DIALBILL_TEST_REQUIRED")

	var cfg requiredConfig
	assert.Panics(t, func() { config.MustLoad(&cfg) })
}
