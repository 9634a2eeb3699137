package scale

import (
	"fmt"
	"sort"
	"sync"

	"github.com/dshills/trainconf/internal/config/tree"
)

// Strategy adjusts config values for a new world size.
//
// Apply runs only when scaling is needed, so the reference world size in
// cfg is always positive and differs from newWorldSize. Apply mutates cfg
// in place. It must change values only, never add or remove keys, and
// must not touch the reference world size.
type Strategy interface {
	Apply(cfg *tree.Tree, newWorldSize int) error
}

// StrategyFunc adapts a function to Strategy.
type StrategyFunc func(cfg *tree.Tree, newWorldSize int) error

// Apply implements Strategy.
func (f StrategyFunc) Apply(cfg *tree.Tree, newWorldSize int) error {
	return f(cfg, newWorldSize)
}

// Registry maps strategy names to implementations.
//
// A registry is populated during startup and sealed on first use; after
// that it only serves lookups.
type Registry struct {
	mu         sync.RWMutex
	strategies map[string]Strategy
	sealed     bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{strategies: make(map[string]Strategy)}
}

// Register adds a strategy under name.
func (r *Registry) Register(name string, s Strategy) error {
	if name == "" {
		return fmt.Errorf("scaling strategy name must not be empty")
	}
	if s == nil {
		return fmt.Errorf("scaling strategy %s is nil", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sealed {
		return fmt.Errorf("%w: cannot register %s", ErrRegistrySealed, name)
	}
	if _, exists := r.strategies[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateStrategy, name)
	}
	r.strategies[name] = s
	return nil
}

// RegisterFunc registers fn under name.
func (r *Registry) RegisterFunc(name string, fn func(cfg *tree.Tree, newWorldSize int) error) error {
	if fn == nil {
		return r.Register(name, nil)
	}
	return r.Register(name, StrategyFunc(fn))
}

// MustRegister registers a strategy and panics on error.
// Useful for registering built-in strategies at init time.
func (r *Registry) MustRegister(name string, s Strategy) {
	if err := r.Register(name, s); err != nil {
		panic(err)
	}
}

// Get returns the strategy registered under name.
func (r *Registry) Get(name string) (Strategy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.strategies[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownStrategy, name)
	}
	return s, nil
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.strategies[name]
	return ok
}

// Names returns all registered names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.strategies))
	for name := range r.strategies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Seal rejects all further registrations. Idempotent.
func (r *Registry) Seal() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sealed = true
}

// Sealed reports whether the registry has been sealed.
func (r *Registry) Sealed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sealed
}

var defaultRegistry = NewBuiltinRegistry()

// NewBuiltinRegistry creates an unsealed registry holding the built-in
// strategies.
func NewBuiltinRegistry() *Registry {
	r := NewRegistry()
	registerBuiltins(r)
	return r
}

// Default returns the process-wide registry, pre-populated with the
// built-in strategies.
func Default() *Registry {
	return defaultRegistry
}

// Register adds a strategy to the process-wide registry.
func Register(name string, s Strategy) error {
	return defaultRegistry.Register(name, s)
}

// MustRegister adds a strategy to the process-wide registry and panics on
// error.
func MustRegister(name string, s Strategy) {
	defaultRegistry.MustRegister(name, s)
}
