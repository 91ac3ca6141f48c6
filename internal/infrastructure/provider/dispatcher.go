package provider

import (
	"fmt"
	"sort"

	"jan-server/services/orchestrator-api/internal/domain/llm"
)

// Dispatcher is the closed table of provider adapters keyed by provider name.
type Dispatcher struct {
	adapters map[string]llm.Provider
}

var _ llm.Resolver = (*Dispatcher)(nil)

// NewDispatcher builds the table. Nil adapters are skipped.
func NewDispatcher(adapters map[string]llm.Provider) *Dispatcher {
	d := &Dispatcher{adapters: make(map[string]llm.Provider, len(adapters))}
	for name, adapter := range adapters {
		if adapter != nil {
			d.adapters[name] = adapter
		}
	}
	return d
}

// Resolve returns the adapter for name. Unknown names fail as provider errors
// so they take the fallback path like any other upstream failure.
func (d *Dispatcher) Resolve(name string) (llm.Provider, error) {
	adapter, ok := d.adapters[name]
	if !ok {
		return nil, llm.NewProviderError(name, "", fmt.Errorf("provider %q is not configured", name))
	}
	return adapter, nil
}

// Names lists the configured providers.
func (d *Dispatcher) Names() []string {
	names := make([]string, 0, len(d.adapters))
	for name := range d.adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
