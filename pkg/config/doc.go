// Package config loads configuration structs from the process environment.
//
// It wraps github.com/joho/godotenv (optional .env files) and
// github.com/caarlos0/env/v11 (tag-driven parsing). Configuration is parsed
// once in main and injected into components as plain values; business code
// never reads the environment directly.
//
//	var cfg billing.Config
//	config.MustLoad(&cfg)
//	meter := billing.NewMeter(cfg, store, invoicer)
//
// Errors are sentinels usable with errors.Is: ErrParsingConfig,
// ErrLoadingEnvFile and ErrNilPointer.
package config
