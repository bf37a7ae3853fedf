// Package resolver turns stored webhook target references into concrete URLs.
//
// A reference is either a literal URL or an indirection of the form
// "ENV:NAME", which names a configuration value to look up. Indirect
// references let stored inbox configuration point at per-environment
// endpoints without embedding them.
package resolver

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// Prefix marks a reference to a named configuration value.
const Prefix = "ENV:"

// ConfigurationError reports a reference that could not be resolved.
type ConfigurationError struct {
	Key string
}

func (e *ConfigurationError) Error() string {
	if e.Key == "" {
		return "empty webhook target"
	}
	return "missing configuration value: " + e.Key
}

// IsConfigurationError reports whether err wraps a ConfigurationError.
func IsConfigurationError(err error) bool {
	var cfgErr *ConfigurationError
	return errors.As(err, &cfgErr)
}

// Lookup returns the value of a named configuration entry.
type Lookup func(key string) (string, bool)

// Env looks values up in the process environment.
func Env() Lookup {
	return os.LookupEnv
}

// Map looks values up in a fixed map.
func Map(values map[string]string) Lookup {
	return func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	}
}

type Resolver struct {
	lookup Lookup
}

func New(lookup Lookup) *Resolver {
	if lookup == nil {
		lookup = Env()
	}
	return &Resolver{lookup: lookup}
}

// Resolve returns the concrete URL for ref.
func (r *Resolver) Resolve(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", &ConfigurationError{}
	}

	key, indirect := strings.CutPrefix(ref, Prefix)
	if !indirect {
		return ref, nil
	}

	key = strings.TrimSpace(key)
	v, ok := r.lookup(key)
	if !ok || strings.TrimSpace(v) == "" {
		return "", &ConfigurationError{Key: key}
	}
	return strings.TrimSpace(v), nil
}

// ResolveOptional behaves like Resolve but treats an empty reference as
// "not configured" rather than an error.
func (r *Resolver) ResolveOptional(ref string) (string, error) {
	if strings.TrimSpace(ref) == "" {
		return "", nil
	}
	v, err := r.Resolve(ref)
	if err != nil {
		return "", fmt.Errorf("resolve %q: %w", ref, err)
	}
	return v, nil
}
