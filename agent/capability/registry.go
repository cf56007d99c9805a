package capability

import (
	"fmt"
	"sort"
	"sync"

	contractx "github.com/itinera-labs/itinera/agent/contract"
)

// Registration pairs a capability's declaration with its wrapper factory.
type Registration struct {
	Descriptor Descriptor
	Factory    contractx.WrapperFactory
}

// Registry maps capability names to registrations. Populated serially at
// bootstrap, read-only afterwards; reads are safe under unlimited
// concurrency.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]Registration
}

func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]Registration, 16),
	}
}

// Register inserts a capability. Registering an existing name fails with
// ErrDuplicateCapability unless replace is set, in which case Resolve
// afterwards always returns the newest registration. The descriptor's
// method set is validated here, not per call.
func (r *Registry) Register(desc Descriptor, factory contractx.WrapperFactory, replace bool) error {
	if factory == nil {
		return fmt.Errorf("%w: capability %s has a nil factory", contractx.ErrValidation, desc.Name)
	}
	if err := desc.validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[desc.Name]; exists && !replace {
		return fmt.Errorf("%w: %s", contractx.ErrDuplicateCapability, desc.Name)
	}
	r.entries[desc.Name] = Registration{Descriptor: desc, Factory: factory}
	return nil
}

// Resolve returns the registration for name.
func (r *Registry) Resolve(name string) (Registration, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	reg, ok := r.entries[name]
	if !ok {
		return Registration{}, fmt.Errorf("%w: %s", contractx.ErrUnknownCapability, name)
	}
	return reg, nil
}

// Names returns all registered capability names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
