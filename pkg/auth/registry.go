package auth

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ProviderConfig selects a registered provider and carries its JSON config.
type ProviderConfig struct {
	Type   string          `json:"type"`
	Config json.RawMessage `json:"config"`
}

// ParseProviderConfig builds a ProviderConfig from the textual form used in
// YAML files and environment variables.
func ParseProviderConfig(providerType, rawConfig string) ProviderConfig {
	return ProviderConfig{
		Type:   strings.ToLower(strings.TrimSpace(providerType)),
		Config: json.RawMessage(strings.TrimSpace(rawConfig)),
	}
}

// ValidatorFactory creates validators from configuration
type ValidatorFactory func(config json.RawMessage) (Validator, error)

var (
	registry = make(map[string]ValidatorFactory)
	mu       sync.RWMutex
)

// RegisterProvider registers a validator factory for a provider type
func RegisterProvider(providerType string, factory ValidatorFactory) {
	mu.Lock()
	defer mu.Unlock()
	registry[providerType] = factory
}

// NewValidator creates a validator from provider configuration
func NewValidator(providerConfig ProviderConfig) (Validator, error) {
	mu.RLock()
	factory, ok := registry[providerConfig.Type]
	mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown auth provider type: %q (registered: %s)", providerConfig.Type, strings.Join(ListProviders(), ", "))
	}

	return factory(providerConfig.Config)
}

// ListProviders returns registered provider types, sorted.
func ListProviders() []string {
	mu.RLock()
	defer mu.RUnlock()

	providers := make([]string, 0, len(registry))
	for name := range registry {
		providers = append(providers, name)
	}
	sort.Strings(providers)
	return providers
}
