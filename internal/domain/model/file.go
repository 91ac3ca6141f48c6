package model

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// RegistryDocument is the YAML shape of a model catalogue.
type RegistryDocument struct {
	DefaultModel string          `yaml:"default_model" json:"default_model,omitempty" jsonschema:"description=Model used when a request names none or an unknown one"`
	Models       []ModelDocument `yaml:"models" json:"models" jsonschema:"required,minItems=1"`
}

type ModelDocument struct {
	Name          string `yaml:"name" json:"name" jsonschema:"required"`
	Provider      string `yaml:"provider" json:"provider" jsonschema:"required"`
	ContextWindow int    `yaml:"context_window" json:"context_window" jsonschema:"required,minimum=1"`
	PriceIn       string `yaml:"price_in_per_1k" json:"price_in_per_1k,omitempty" jsonschema:"description=USD per 1K prompt tokens,pattern=^[0-9]+(\\.[0-9]+)?$"`
	PriceOut      string `yaml:"price_out_per_1k" json:"price_out_per_1k,omitempty" jsonschema:"description=USD per 1K completion tokens,pattern=^[0-9]+(\\.[0-9]+)?$"`
	Fallback      string `yaml:"fallback" json:"fallback,omitempty" jsonschema:"description=Model tried when this one fails; a model naming itself ends the chain"`
}

// LoadRegistryFile reads a YAML catalogue:
//
//	default_model: gpt-3.5-turbo
//	models:
//	  - name: gpt-4
//	    provider: openai
//	    context_window: 8192
//	    price_in_per_1k: "0.03"
//	    price_out_per_1k: "0.06"
//	    fallback: gpt-4-turbo
func LoadRegistryFile(path string) (*Registry, error) {
	cleanPath := filepath.Clean(strings.TrimSpace(path))
	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("read model registry %q: %w", cleanPath, err)
	}
	registry, err := ParseRegistry(data)
	if err != nil {
		return nil, fmt.Errorf("model registry %q: %w", cleanPath, err)
	}
	return registry, nil
}

// ParseRegistry builds a registry from YAML bytes.
func ParseRegistry(data []byte) (*Registry, error) {
	var doc RegistryDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	if len(doc.Models) == 0 {
		return nil, fmt.Errorf("no models defined")
	}

	specs := make([]Spec, 0, len(doc.Models))
	fallback := make(map[string]string)
	for _, m := range doc.Models {
		in, err := parsePrice(m.PriceIn)
		if err != nil {
			return nil, fmt.Errorf("model %s: price_in_per_1k: %w", m.Name, err)
		}
		out, err := parsePrice(m.PriceOut)
		if err != nil {
			return nil, fmt.Errorf("model %s: price_out_per_1k: %w", m.Name, err)
		}
		specs = append(specs, Spec{
			Name:          m.Name,
			Provider:      strings.TrimSpace(m.Provider),
			ContextWindow: m.ContextWindow,
			PriceInPerK:   in,
			PriceOutPerK:  out,
		})
		if fb := strings.TrimSpace(m.Fallback); fb != "" {
			fallback[strings.TrimSpace(m.Name)] = fb
		}
	}

	defaultModel := doc.DefaultModel
	if strings.TrimSpace(defaultModel) == "" {
		defaultModel = specs[len(specs)-1].Name
	}
	return NewRegistry(specs, fallback, defaultModel)
}

func parsePrice(raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(raw)
}
