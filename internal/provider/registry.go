// Package provider contains one payment adapter per supported method plus
// the registry that resolves them. Adapters translate the generic
// Initiate/Verify/Refund/ParseWebhook operations into each provider's API.
package provider

import (
	"ikaze-payments/internal/core/domain"
	"ikaze-payments/internal/core/ports"
	"ikaze-payments/pkg/apperror"
)

// Registry is an immutable method -> adapter map built at startup.
type Registry struct {
	adapters map[domain.PaymentMethod]ports.ProviderAdapter
}

// NewRegistry builds a registry from the given adapters, keyed by Method().
func NewRegistry(adapters ...ports.ProviderAdapter) *Registry {
	m := make(map[domain.PaymentMethod]ports.ProviderAdapter, len(adapters))
	for _, a := range adapters {
		m[a.Method()] = a
	}
	return &Registry{adapters: m}
}

// Get returns the adapter for a method, or an unsupported-method error for
// anything not registered.
func (r *Registry) Get(method domain.PaymentMethod) (ports.ProviderAdapter, error) {
	a, ok := r.adapters[method]
	if !ok {
		return nil, apperror.ErrUnsupportedMethod(string(method))
	}
	return a, nil
}
