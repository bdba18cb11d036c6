// Package secrets holds credentials that can be rotated while the server
// runs.
package secrets

import (
	"fmt"
	"sync/atomic"
)

// Well-known secret names.
const (
	OperatorKey = "operator_key"
	MCPAPIKey   = "mcp_api_key"
)

// Loader returns the current secret values.
type Loader func() (map[string]string, error)

// Vault serves secrets from the last successful load.
type Vault struct {
	values atomic.Pointer[map[string]string]
	loader Loader
}

// NewVault creates a Vault and performs the first load.
func NewVault(loader Loader) (*Vault, error) {
	vals, err := loader()
	if err != nil {
		return nil, fmt.Errorf("initial secret load: %w", err)
	}
	v := &Vault{loader: loader}
	v.values.Store(&vals)
	return v, nil
}

// Get returns the secret for name, or "" if it is not set.
func (v *Vault) Get(name string) string {
	return (*v.values.Load())[name]
}

// Getter returns a function reading name on every call, so holders see
// rotated values.
func (v *Vault) Getter(name string) func() string {
	return func() string { return v.Get(name) }
}

// Reload calls the loader and swaps in the new values. On error the old
// values stay in place.
func (v *Vault) Reload() error {
	vals, err := v.loader()
	if err != nil {
		return fmt.Errorf("reload secrets: %w", err)
	}
	v.values.Store(&vals)
	return nil
}
