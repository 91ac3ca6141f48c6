// Package model holds the static model catalogue: context windows, prices and
// the fallback chain. A Registry is read-only once built and safe to share.
package model

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// CostPrecision is the number of decimal places costs are rounded to.
const CostPrecision = 6

const (
	ModelGPT4      = "gpt-4"
	ModelGPT4Turbo = "gpt-4-turbo"
	ModelGPT35     = "gpt-3.5-turbo"

	DefaultModel = ModelGPT35
)

var (
	ErrUnknownModel   = errors.New("unknown model")
	ErrDuplicateModel = errors.New("duplicate model")
	ErrInvalidChain   = errors.New("invalid fallback chain")
)

var thousand = decimal.NewFromInt(1000)

// Spec describes one routable model. Prices are USD per 1K tokens.
type Spec struct {
	Name          string
	Provider      string
	ContextWindow int
	PriceInPerK   decimal.Decimal
	PriceOutPerK  decimal.Decimal
}

// Registry maps model names to specs and defines the fallback order.
type Registry struct {
	specs        map[string]Spec
	order        []string
	fallback     map[string]string
	defaultModel string
}

// NewRegistry validates and builds a registry. Every fallback source and
// target must be registered, and following the chain from any model must end
// in a model that maps to itself.
func NewRegistry(specs []Spec, fallback map[string]string, defaultModel string) (*Registry, error) {
	r := &Registry{
		specs:        make(map[string]Spec, len(specs)),
		order:        make([]string, 0, len(specs)),
		fallback:     make(map[string]string, len(fallback)),
		defaultModel: strings.TrimSpace(defaultModel),
	}

	for _, spec := range specs {
		spec.Name = strings.TrimSpace(spec.Name)
		if spec.Name == "" {
			return nil, fmt.Errorf("%w: empty model name", ErrUnknownModel)
		}
		if _, exists := r.specs[spec.Name]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateModel, spec.Name)
		}
		if spec.ContextWindow <= 0 {
			return nil, fmt.Errorf("model %s: context window must be positive", spec.Name)
		}
		if spec.PriceInPerK.IsNegative() || spec.PriceOutPerK.IsNegative() {
			return nil, fmt.Errorf("model %s: prices must not be negative", spec.Name)
		}
		r.specs[spec.Name] = spec
		r.order = append(r.order, spec.Name)
	}

	if _, ok := r.specs[r.defaultModel]; !ok {
		return nil, fmt.Errorf("%w: default model %q is not registered", ErrUnknownModel, r.defaultModel)
	}

	for from, to := range fallback {
		if _, ok := r.specs[from]; !ok {
			return nil, fmt.Errorf("%w: fallback source %q is not registered", ErrInvalidChain, from)
		}
		if _, ok := r.specs[to]; !ok {
			return nil, fmt.Errorf("%w: fallback target %q of %q is not registered", ErrInvalidChain, to, from)
		}
		r.fallback[from] = to
	}

	if err := r.validateChains(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Registry) validateChains() error {
	for _, name := range r.order {
		current := name
		terminated := false
		for step := 0; step <= len(r.order); step++ {
			next := r.FallbackOf(current)
			if next == current {
				terminated = true
				break
			}
			current = next
		}
		if !terminated {
			return fmt.Errorf("%w: chain starting at %q does not reach a terminal model", ErrInvalidChain, name)
		}
	}
	return nil
}

// DefaultSpecs returns the built-in catalogue.
func DefaultSpecs() []Spec {
	return []Spec{
		{Name: ModelGPT4, Provider: "openai", ContextWindow: 8192, PriceInPerK: decimal.RequireFromString("0.03"), PriceOutPerK: decimal.RequireFromString("0.06")},
		{Name: ModelGPT4Turbo, Provider: "openai", ContextWindow: 128000, PriceInPerK: decimal.RequireFromString("0.01"), PriceOutPerK: decimal.RequireFromString("0.03")},
		{Name: ModelGPT35, Provider: "openai", ContextWindow: 16385, PriceInPerK: decimal.RequireFromString("0.0005"), PriceOutPerK: decimal.RequireFromString("0.0015")},
	}
}

// DefaultFallbacks returns the built-in chain gpt-4 -> gpt-4-turbo -> gpt-3.5-turbo.
func DefaultFallbacks() map[string]string {
	return map[string]string{
		ModelGPT4:      ModelGPT4Turbo,
		ModelGPT4Turbo: ModelGPT35,
		ModelGPT35:     ModelGPT35,
	}
}

// NewDefaultRegistry builds the built-in registry.
func NewDefaultRegistry() *Registry {
	r, err := NewRegistry(DefaultSpecs(), DefaultFallbacks(), DefaultModel)
	if err != nil {
		panic(fmt.Sprintf("built-in model registry is invalid: %v", err))
	}
	return r
}

// DefaultModel returns the model used when a request names none or an unknown one.
func (r *Registry) DefaultModel() string {
	return r.defaultModel
}

// Lookup returns the model registered under name.
func (r *Registry) Lookup(name string) (Spec, bool) {
	spec, ok := r.specs[name]
	return spec, ok
}

// Route returns the requested model when it is registered, otherwise the model
// of def, otherwise the registry default. Unknown names never fail.
func (r *Registry) Route(requested, def string) Spec {
	if spec, ok := r.specs[strings.TrimSpace(requested)]; ok {
		return spec
	}
	if spec, ok := r.specs[def]; ok {
		return spec
	}
	return r.specs[r.defaultModel]
}

// FallbackOf returns the next model to try after name fails. Models without
// a chain entry map to themselves.
func (r *Registry) FallbackOf(name string) string {
	if next, ok := r.fallback[name]; ok {
		return next
	}
	return name
}

// Chain returns name followed by every fallback until the terminal model.
func (r *Registry) Chain(name string) []string {
	chain := []string{name}
	current := name
	for i := 0; i < len(r.order); i++ {
		next := r.FallbackOf(current)
		if next == current {
			break
		}
		chain = append(chain, next)
		current = next
	}
	return chain
}

// ContextWindowOf returns the context window of name, or the default model's
// window when name is not registered.
func (r *Registry) ContextWindowOf(name string) int {
	if spec, ok := r.specs[name]; ok {
		return spec.ContextWindow
	}
	return r.specs[r.defaultModel].ContextWindow
}

// CostOf prices a completion: prompt/1000*in + completion/1000*out, rounded to
// CostPrecision places. Unknown models are priced like the default model.
func (r *Registry) CostOf(name string, promptTokens, completionTokens int) decimal.Decimal {
	spec, ok := r.specs[name]
	if !ok {
		spec = r.specs[r.defaultModel]
	}
	if promptTokens < 0 {
		promptTokens = 0
	}
	if completionTokens < 0 {
		completionTokens = 0
	}
	in := decimal.NewFromInt(int64(promptTokens)).Div(thousand).Mul(spec.PriceInPerK)
	out := decimal.NewFromInt(int64(completionTokens)).Div(thousand).Mul(spec.PriceOutPerK)
	return in.Add(out).Round(CostPrecision)
}

// List returns every model in registration order.
func (r *Registry) List() []Spec {
	out := make([]Spec, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.specs[name])
	}
	return out
}

// Providers returns the distinct provider names referenced by the registry.
func (r *Registry) Providers() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, name := range r.order {
		p := r.specs[name].Provider
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}
