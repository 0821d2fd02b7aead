// Package secrets holds the supervisor's credentials in memory and reloads
// them from their source without a restart.
package secrets

import (
	"fmt"
	"sync"
)

// Names of the secrets the supervisor reads.
const (
	APIKeyHash = "api_key_hash"
	MCPAPIKey  = "mcp_api_key"
)

// Loader retrieves secrets from a source (static config, mounted files, etc.).
type Loader func() (map[string]string, error)

// Vault holds secret values in memory and supports atomic reloading.
type Vault struct {
	mu      sync.RWMutex
	values  map[string]string
	loader  Loader
	reloads int
}

// NewVault creates a Vault, calling the loader once to populate initial values.
func NewVault(loader Loader) (*Vault, error) {
	vals, err := loader()
	if err != nil {
		return nil, fmt.Errorf("initial secret load: %w", err)
	}
	return &Vault{
		values: vals,
		loader: loader,
	}, nil
}

// Get returns the secret for key, or an empty string if not found.
func (v *Vault) Get(key string) string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.values[key]
}

// Getter binds key so callers can read the current value on every use.
func (v *Vault) Getter(key string) func() string {
	return func() string { return v.Get(key) }
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
	v.reloads++
	v.mu.Unlock()
	return nil
}

// Reloads reports how many successful reloads have happened.
func (v *Vault) Reloads() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.reloads
}
