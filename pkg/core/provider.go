package core

import (
	"context"
	"sort"
	"sync"

	"github.com/vango-go/poppy/pkg/core/types"
)

// Provider is the interface that every chat model backend implements.
type Provider interface {
	// Name returns the provider identifier (e.g., "anthropic", "openai").
	Name() string

	// CreateMessage sends a non-streaming request.
	CreateMessage(ctx context.Context, req *types.ChatRequest) (*types.ChatResponse, error)
}

// ProviderRegistry maps conversation providers to model backends.
type ProviderRegistry struct {
	mu        sync.RWMutex
	providers map[types.Provider]Provider
}

func NewProviderRegistry() *ProviderRegistry {
	return &ProviderRegistry{providers: make(map[types.Provider]Provider)}
}

// Register binds a backend to a conversation provider.
func (r *ProviderRegistry) Register(name types.Provider, p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[name] = p
}

func (r *ProviderRegistry) Get(name types.Provider) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	return p, ok
}

// List returns the registered provider names in sorted order.
func (r *ProviderRegistry) List() []types.Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]types.Provider, 0, len(r.providers))
	for name := range r.providers {
		out = append(out, name)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
