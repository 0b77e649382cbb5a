package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

var defaultEnvLoaded sync.Once

// Load parses environment variables into v using `env` struct tags.
//
// The first call loads the default .env file if one exists; variables already
// present in the process environment win over file values. Pass extra files
// to layer additional .env sources on top (they never override the process
// environment either).
//
// Load does not cache: the binary calls it once at startup and hands the
// resulting value to the components that need it.
//
//	type PaddleConfig struct {
//		APIKey string `env:"PADDLE_API_KEY,required"`
//	}
//
//	var cfg PaddleConfig
//	if err := config.Load(&cfg); err != nil {
//		// handle error
//	}
func Load[T any](v *T, files ...string) error {
	defaultEnvLoaded.Do(func() {
		// A missing .env is the normal case in containers.
		_ = godotenv.Load()
	})
	if v == nil {
		return ErrNilPointer
	}

	if len(files) > 0 {
		if err := godotenv.Load(files...); err != nil {
			return errors.Join(ErrLoadingEnvFile, err)
		}
	}

	if err := env.Parse(v); err != nil {
		return errors.Join(ErrParsingConfig, err)
	}
	return nil
}

// MustLoad works like Load but panics on failure. Meant for main.
func MustLoad[T any](v *T, files ...string) {
	if err := Load(v, files...); err != nil {
		panic(fmt.Sprintf("failed to load required configuration: %v", err))
	}
}
