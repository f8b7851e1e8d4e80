// Package provider holds the configured payment gateways and picks one per
// payment by weight.
package provider

import (
	"errors"
	"math/rand"

	"github.com/akylbek/payment-system/pg-orchestrator/internal/config"
	"github.com/akylbek/payment-system/pg-orchestrator/internal/metrics"
)

var ErrNoProviders = errors.New("no PG providers configured")

// Registry is immutable after construction and safe for concurrent use.
type Registry struct {
	providers []config.Provider
	byName    map[string]config.Provider
	total     int
	intN      func(n int) int
}

func NewRegistry(providers []config.Provider) *Registry {
	return newRegistry(providers, rand.Intn)
}

// NewRegistryWithRand lets callers supply the source of uniform integers in [0, n).
func NewRegistryWithRand(providers []config.Provider, intN func(n int) int) *Registry {
	return newRegistry(providers, intN)
}

func newRegistry(providers []config.Provider, intN func(n int) int) *Registry {
	list := make([]config.Provider, len(providers))
	copy(list, providers)

	byName := make(map[string]config.Provider, len(list))
	total := 0
	for _, p := range list {
		if _, ok := byName[p.Name]; !ok {
			byName[p.Name] = p
		}
		total += p.Weight
	}

	return &Registry{providers: list, byName: byName, total: total, intN: intN}
}

// Select draws a provider with probability proportional to its weight. When
// every weight is zero the first provider is returned without consuming
// randomness.
func (r *Registry) Select() (config.Provider, error) {
	if len(r.providers) == 0 {
		return config.Provider{}, ErrNoProviders
	}

	selected := r.pick()
	metrics.ProviderSelections.WithLabelValues(selected.Name).Inc()
	return selected, nil
}

func (r *Registry) pick() config.Provider {
	if r.total <= 0 {
		return r.providers[0]
	}

	draw := r.intN(r.total) + 1
	cumulative := 0
	for _, p := range r.providers {
		cumulative += p.Weight
		if draw <= cumulative {
			return p
		}
	}
	return r.providers[0]
}

// GetByName is an exact, case-sensitive lookup.
func (r *Registry) GetByName(name string) (config.Provider, bool) {
	p, ok := r.byName[name]
	return p, ok
}

// All returns the providers in configuration order.
func (r *Registry) All() []config.Provider {
	out := make([]config.Provider, len(r.providers))
	copy(out, r.providers)
	return out
}
