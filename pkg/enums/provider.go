package enums

import (
	"fmt"
	"strings"
)

// Provider identifies the accounting platform a tenant is connected to.
type Provider string

const (
	ProviderQBO  Provider = "qbo"
	ProviderXero Provider = "xero"
)

var validProviders = []Provider{
	ProviderQBO,
	ProviderXero,
}

// String implements fmt.Stringer.
func (p Provider) String() string {
	return string(p)
}

// IsValid reports whether the value is a known Provider.
func (p Provider) IsValid() bool {
	for _, candidate := range validProviders {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParseProvider converts raw input into a Provider. Matching is case-insensitive.
func ParseProvider(value string) (Provider, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	for _, candidate := range validProviders {
		if string(candidate) == normalized {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid provider %q", value)
}
