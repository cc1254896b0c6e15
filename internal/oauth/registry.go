package oauth

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrUnknownProvider: el provider no existe o no está habilitado.
var ErrUnknownProvider = errors.New("oauth: unknown or disabled provider")

// Factory crea un adapter a partir de su configuración.
type Factory func(cfg ProviderConfig) (Provider, error)

// Registry mantiene las factories por provider y las instancias habilitadas.
type Registry struct {
	mu        sync.RWMutex
	factories map[ProviderID]Factory
	enabled   map[ProviderID]Provider
}

func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[ProviderID]Factory),
		enabled:   make(map[ProviderID]Provider),
	}
}

// RegisterFactory registra la factory de un provider. Se llama al arrancar.
func (r *Registry) RegisterFactory(id ProviderID, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[id] = f
}

// Enable construye el adapter con cfg y lo deja disponible. Idempotente:
// si ya estaba habilitado retorna la instancia existente.
func (r *Registry) Enable(id ProviderID, cfg ProviderConfig) (Provider, error) {
	r.mu.RLock()
	if p, ok := r.enabled[id]; ok {
		r.mu.RUnlock()
		return p, nil
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()

	// Double-check after acquiring write lock
	if p, ok := r.enabled[id]; ok {
		return p, nil
	}
	f, ok := r.factories[id]
	if !ok {
		return nil, fmt.Errorf("provider not registered: %s", id)
	}
	p, err := f(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create provider %s: %w", id, err)
	}
	r.enabled[id] = p
	return p, nil
}

// Add habilita una instancia ya construida (tests, adapters custom).
func (r *Registry) Add(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.enabled[p.ID()] = p
}

// Get retorna el adapter habilitado o ErrUnknownProvider.
func (r *Registry) Get(id ProviderID) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if p, ok := r.enabled[id]; ok {
		return p, nil
	}
	return nil, ErrUnknownProvider
}

// Enabled lista los providers habilitados, ordenados.
func (r *Registry) Enabled() []ProviderID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ProviderID, 0, len(r.enabled))
	for id := range r.enabled {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
