// Package secrets holds credentials in memory and reloads them from their
// source without a restart.
package secrets

import (
	"fmt"
	"sync"
)

// Loader retrieves secrets from a source such as the environment or a
// mounted secrets file.
type Loader func() (map[string]string, error)

// Vault holds secret values in memory and supports atomic reloading.
type Vault struct {
	mu     sync.RWMutex
	values map[string]string
	loader Loader
}

// NewVault creates a Vault, calling the loader once to populate initial values.
func NewVault(loader Loader) (*Vault, error) {
	vals, err := loader()
	if err != nil {
		return nil, fmt.Errorf("initial secret load: %w", err)
	}
	return &Vault{values: vals, loader: loader}, nil
}

// Get returns the secret for key, or an empty string if not found.
func (v *Vault) Get(key string) string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.values[key]
}

// Func returns a getter for key that always reads the current value,
// falling back to fallback while the key is unset.
func (v *Vault) Func(key, fallback string) func() string {
	return func() string {
		if val := v.Get(key); val != "" {
			return val
		}
		return fallback
	}
}

// Reload calls the loader and swaps in the new values atomically.
// If the loader returns an error, existing values are preserved.
func (v *Vault) Reload() error {
	newVals, err := v.loader()
	if err != nil {
		return fmt.Errorf("reload secrets: %w", err)
	}
	v.mu.Lock()
	v.values = newVals
	v.mu.Unlock()
	return nil
}

// Redacted returns a masked form of the secret suitable for logs: the
// first two characters followed by ****. Secrets of four characters or
// fewer are masked completely.
func (v *Vault) Redacted(key string) string {
	val := v.Get(key)
	switch {
	case val == "":
		return ""
	case len(val) <= 4:
		return "****"
	default:
		return val[:2] + "****"
	}
}
