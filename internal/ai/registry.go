package ai

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/suPer8Hu/echo-chat/internal/common"
)

var ErrUnknownProvider = errors.New("unknown ai provider")

// ProviderFactory builds a provider for model. An empty model selects the
// provider's default.
type ProviderFactory func(ctx context.Context, model string) (Provider, error)

// Registry resolves a configured provider name to a Provider.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]ProviderFactory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]ProviderFactory)}
}

func providerKey(name string) string { return strings.ToLower(strings.TrimSpace(name)) }

// Register replaces any factory already known under name.
func (r *Registry) Register(name string, f ProviderFactory) {
	r.mu.Lock()
	r.factories[providerKey(name)] = f
	r.mu.Unlock()
}

// Get builds the named provider. Every failure wraps ErrModelUnavailable.
func (r *Registry) Get(ctx context.Context, name, model string) (Provider, error) {
	key := providerKey(name)
	r.mu.RLock()
	f, ok := r.factories[key]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %w %q", common.ErrModelUnavailable, ErrUnknownProvider, key)
	}
	p, err := f(ctx, model)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", common.ErrModelUnavailable, key, err)
	}
	if p == nil {
		return nil, fmt.Errorf("%w: %s returned no provider", common.ErrModelUnavailable, key)
	}
	return p, nil
}

// Names lists registered providers in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.factories))
}
