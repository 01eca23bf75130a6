package supra

import (
	"sort"
	"sync"
	"time"
)

// Registry maps names to circuits. A name resolves to the same circuit for
// the life of the registry (or until Clear), so all callers using a name
// share its failure statistics. It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	circuits map[string]*Circuit
	defaults CircuitConfig
	now      func() time.Time

	observersMu  sync.RWMutex
	observers    []observer
	nextObserver uint64
}

type observer struct {
	id uint64
	fn StateChangeFunc
}

// NewRegistry creates an empty registry using DefaultCircuitConfig for
// unset fields.
func NewRegistry() *Registry {
	return &Registry{
		circuits: make(map[string]*Circuit),
		defaults: DefaultCircuitConfig(),
		now:      time.Now,
	}
}

var (
	defaultRegistryOnce sync.Once
	defaultRegistry     *Registry
)

// DefaultRegistry returns the process-wide registry shared by clients that
// were not given one.
func DefaultRegistry() *Registry {
	defaultRegistryOnce.Do(func() {
		defaultRegistry = NewRegistry()
	})
	return defaultRegistry
}

// Resolve returns the circuit registered under name, creating it from cfg on
// first use. cfg is ignored once the circuit exists.
func (r *Registry) Resolve(name string, cfg CircuitConfig) *Circuit {
	cb, _ := r.resolve(name, cfg)
	return cb
}

// resolve is Resolve that also reports whether this call created the circuit.
func (r *Registry) resolve(name string, cfg CircuitConfig) (*Circuit, bool) {
	r.mu.RLock()
	cb, ok := r.circuits[name]
	r.mu.RUnlock()
	if ok {
		return cb, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if cb, ok := r.circuits[name]; ok {
		return cb, false
	}
	cb = newCircuit(name, cfg.withDefaults(r.defaults), r.now, r.notify)
	r.circuits[name] = cb
	return cb, true
}

// Get returns the circuit registered under name, if any.
func (r *Registry) Get(name string) (*Circuit, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cb, ok := r.circuits[name]
	return cb, ok
}

// Len returns the number of registered circuits.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.circuits)
}

// Clear drops every circuit. Calls already running keep the circuit they
// resolved; later calls get fresh ones.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.circuits = make(map[string]*Circuit)
}

// Snapshot returns the stats of every circuit ordered by name.
func (r *Registry) Snapshot() []CircuitStats {
	r.mu.RLock()
	circuits := make([]*Circuit, 0, len(r.circuits))
	for _, cb := range r.circuits {
		circuits = append(circuits, cb)
	}
	r.mu.RUnlock()

	stats := make([]CircuitStats, 0, len(circuits))
	for _, cb := range circuits {
		stats = append(stats, cb.Stats())
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Name < stats[j].Name })
	return stats
}

// OnStateChange registers fn to be called after every circuit transition.
// The returned func detaches fn; calling it more than once is a no-op.
func (r *Registry) OnStateChange(fn StateChangeFunc) func() {
	if fn == nil {
		return func() {}
	}
	r.observersMu.Lock()
	defer r.observersMu.Unlock()
	r.nextObserver++
	id := r.nextObserver
	r.observers = append(r.observers, observer{id: id, fn: fn})
	return func() { r.removeObserver(id) }
}

func (r *Registry) removeObserver(id uint64) {
	r.observersMu.Lock()
	defer r.observersMu.Unlock()
	for i, o := range r.observers {
		if o.id == id {
			observers := make([]observer, 0, len(r.observers)-1)
			observers = append(observers, r.observers[:i]...)
			r.observers = append(observers, r.observers[i+1:]...)
			return
		}
	}
}

func (r *Registry) observerCount() int {
	r.observersMu.RLock()
	defer r.observersMu.RUnlock()
	return len(r.observers)
}

func (r *Registry) notify(name string, from, to CircuitState) {
	r.observersMu.RLock()
	observers := r.observers
	r.observersMu.RUnlock()
	for _, o := range observers {
		o.fn(name, from, to)
	}
}
