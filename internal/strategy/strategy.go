// Package strategy holds the quantitative signal generators and the
// composite fuser that merges their output into portfolio-level
// recommendations.
package strategy

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/athang/pixiu/internal/domain"
)

// Strategy produces trading signals from fund snapshots and the
// shared market state. Implementations must be safe for concurrent
// Analyze calls and must not mutate their inputs.
type Strategy interface {
	// Name is the stable identifier used for weighting, learning
	// records and signal attribution.
	Name() string
	// Weight is the strategy's default fusion weight before any
	// regime or learned override.
	Weight() float64
	// Analyze scores the given funds. A nil slice means no opinion.
	Analyze(ctx context.Context, funds []*domain.FundData, market *domain.MarketData) ([]domain.Signal, error)
}

// Registry is an explicit strategy catalog. Strategies are registered
// at startup; there is no implicit package-level discovery.
type Registry struct {
	mu    sync.RWMutex
	order []string
	byKey map[string]Strategy
}

func NewRegistry() *Registry {
	return &Registry{byKey: make(map[string]Strategy)}
}

// Register adds a strategy. Registering two strategies under the same
// name is a wiring bug and fails loudly.
func (r *Registry) Register(s Strategy) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := s.Name()
	if _, exists := r.byKey[name]; exists {
		return fmt.Errorf("strategy %q already registered", name)
	}
	r.byKey[name] = s
	r.order = append(r.order, name)
	return nil
}

// MustRegister is Register for static startup wiring.
func (r *Registry) MustRegister(s Strategy) {
	if err := r.Register(s); err != nil {
		panic(err)
	}
}

// Get returns the strategy registered under name.
func (r *Registry) Get(name string) (Strategy, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byKey[name]
	return s, ok
}

// All returns the registered strategies in registration order.
func (r *Registry) All() []Strategy {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Strategy, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.byKey[name])
	}
	return out
}

// Names returns the registered names sorted alphabetically.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := append([]string(nil), r.order...)
	sort.Strings(out)
	return out
}
