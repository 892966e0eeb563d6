package resilience

import (
	"sort"
	"sync"
)

// Registry hands out one circuit breaker per data source, so every
// decorator of the same source trips the same circuit.
type Registry struct {
	mu       sync.Mutex
	breakers map[string]*CircuitBreaker
	defaults CircuitBreakerConfig
}

// NewRegistry returns a registry whose breakers use defaults unless a
// caller asks for its own configuration.
func NewRegistry(defaults CircuitBreakerConfig) *Registry {
	return &Registry{
		breakers: make(map[string]*CircuitBreaker),
		defaults: defaults,
	}
}

// For returns the breaker of source, creating it with the registry defaults.
func (r *Registry) For(source string) *CircuitBreaker {
	return r.ForConfig(source, r.defaults)
}

// ForConfig returns the breaker of source, creating it with config. A
// breaker that already exists keeps its original configuration. The
// registry's clock, state-change hook and failure predicate fill in what
// config leaves unset.
func (r *Registry) ForConfig(source string, config CircuitBreakerConfig) *CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cb, ok := r.breakers[source]; ok {
		return cb
	}
	if config.OnStateChange == nil {
		config.OnStateChange = r.defaults.OnStateChange
	}
	if config.Clock == nil {
		config.Clock = r.defaults.Clock
	}
	if config.IsFailure == nil {
		config.IsFailure = r.defaults.IsFailure
	}
	cb := NewCircuitBreaker(source, config)
	r.breakers[source] = cb
	return cb
}

// Stats returns the statistics of every breaker, ordered by source name.
func (r *Registry) Stats() []CircuitBreakerStats {
	r.mu.Lock()
	breakers := make([]*CircuitBreaker, 0, len(r.breakers))
	for _, cb := range r.breakers {
		breakers = append(breakers, cb)
	}
	r.mu.Unlock()

	stats := make([]CircuitBreakerStats, len(breakers))
	for i, cb := range breakers {
		stats[i] = cb.Stats()
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Name < stats[j].Name })
	return stats
}

// Open returns the names of the sources whose circuit is open.
func (r *Registry) Open() []string {
	var open []string
	for _, s := range r.Stats() {
		if s.State == CircuitOpen {
			open = append(open, s.Name)
		}
	}
	return open
}

// ResetAll closes every circuit.
func (r *Registry) ResetAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, cb := range r.breakers {
		cb.Reset()
	}
}
