// Package config decodes environment variables into typed structs.
//
// A .env file in the working directory is loaded once per process before the
// first decode. Values already present in the environment win over the file.
// Decoded structs are cached per type, so every caller asking for the same
// Config type observes the same values.
package config

import (
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

var (
	dotenvOnce sync.Once
	cache      sync.Map // reflect.Type -> T
	parseMu    sync.Mutex
)

// Load fills v from the environment using `env` and `envDefault` struct tags.
//
//	var cfg pg.Config
//	if err := config.Load(&cfg); err != nil {
//		return err
//	}
func Load[T any](v *T) error {
	if v == nil {
		return ErrNilPointer
	}
	dotenvOnce.Do(func() {
		// missing .env is fine outside local development
		_ = godotenv.Load()
	})

	key := reflect.TypeFor[T]()
	if cached, ok := cache.Load(key); ok {
		*v = cached.(T)
		return nil
	}

	parseMu.Lock()
	defer parseMu.Unlock()

	if cached, ok := cache.Load(key); ok {
		*v = cached.(T)
		return nil
	}

	var parsed T
	if err := env.Parse(&parsed); err != nil {
		return errors.Join(ErrParsingConfig, err)
	}
	cache.Store(key, parsed)
	*v = parsed
	return nil
}

// MustLoad is Load for startup code where a bad environment should stop the process.
func MustLoad[T any](v *T) {
	if err := Load(v); err != nil {
		panic(fmt.Sprintf("config: %v", err))
	}
}

// Reset drops every cached value. Tests use it after changing the environment.
func Reset() {
	cache.Range(func(k, _ any) bool {
		cache.Delete(k)
		return true
	})
}
