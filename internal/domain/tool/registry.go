package tool

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Tool pairs a descriptor with the executor that serves it.
type Tool struct {
	Descriptor Descriptor
	Executor   Executor
}

// Registry is the closed dispatch table of tools, built once at startup and
// read-only afterwards.
type Registry struct {
	tools map[string]Tool
	names []string
}

// NewRegistry builds the table. Names must be unique and non-empty.
func NewRegistry(tools ...Tool) (*Registry, error) {
	r := &Registry{tools: make(map[string]Tool, len(tools))}
	for _, t := range tools {
		name := strings.TrimSpace(t.Descriptor.Name)
		if name == "" {
			return nil, fmt.Errorf("tool without a name")
		}
		if t.Executor == nil {
			return nil, fmt.Errorf("tool %s has no executor", name)
		}
		if _, exists := r.tools[name]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicate, name)
		}
		if t.Descriptor.Class == "" {
			t.Descriptor.Class = ClassLookup
		}
		t.Descriptor.Name = name
		r.tools[name] = t
		r.names = append(r.names, name)
	}
	sort.Strings(r.names)
	return r, nil
}

// Lookup returns the tool registered under name.
func (r *Registry) Lookup(name string) (Tool, bool) {
	if r == nil {
		return Tool{}, false
	}
	t, ok := r.tools[name]
	return t, ok
}

// Names lists the registered tool names in sorted order.
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	return append([]string(nil), r.names...)
}

// Descriptors returns every descriptor in name order.
func (r *Registry) Descriptors() []Descriptor {
	out := make([]Descriptor, 0, len(r.Names()))
	for _, name := range r.Names() {
		out = append(out, r.tools[name].Descriptor)
	}
	return out
}

// Select resolves requested names to descriptors. Unknown names are returned
// separately so the caller can decide how to report them.
func (r *Registry) Select(names []string) (found []Descriptor, unknown []string) {
	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if _, dup := seen[name]; dup || name == "" {
			continue
		}
		seen[name] = struct{}{}
		if t, ok := r.Lookup(name); ok {
			found = append(found, t.Descriptor)
			continue
		}
		unknown = append(unknown, name)
	}
	return found, unknown
}

// Timeouts bounds each tool class.
type Timeouts struct {
	Lookup  time.Duration
	Search  time.Duration
	Compute time.Duration
}

// DefaultTimeouts returns 10s for lookups, 20s for searches and 30s for compute.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Lookup:  10 * time.Second,
		Search:  20 * time.Second,
		Compute: 30 * time.Second,
	}
}

// For returns the timeout of class, defaulting to the lookup timeout.
func (t Timeouts) For(class Class) time.Duration {
	defaults := DefaultTimeouts()
	pick := func(v, def time.Duration) time.Duration {
		if v > 0 {
			return v
		}
		return def
	}
	switch class {
	case ClassSearch:
		return pick(t.Search, defaults.Search)
	case ClassCompute:
		return pick(t.Compute, defaults.Compute)
	default:
		return pick(t.Lookup, defaults.Lookup)
	}
}
