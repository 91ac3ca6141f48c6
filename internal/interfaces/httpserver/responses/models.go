package responses

import (
	"jan-server/services/orchestrator-api/internal/domain/model"
)

// ModelList is the body of GET /v1/models.
type ModelList struct {
	Object string      `json:"object"`
	Data   []ModelInfo `json:"data"`
}

type ModelInfo struct {
	ID            string `json:"id"`
	Object        string `json:"object"`
	OwnedBy       string `json:"owned_by"`
	ContextWindow int    `json:"context_window"`
	PriceInPerK   string `json:"price_in_per_1k"`
	PriceOutPerK  string `json:"price_out_per_1k"`
	Fallback      string `json:"fallback"`
	Default       bool   `json:"default"`
}

// NewModelList lists every registered model.
func NewModelList(registry *model.Registry) ModelList {
	specs := registry.List()
	out := ModelList{Object: "list", Data: make([]ModelInfo, 0, len(specs))}
	for _, spec := range specs {
		out.Data = append(out.Data, ModelInfo{
			ID:            spec.Name,
			Object:        "model",
			OwnedBy:       spec.Provider,
			ContextWindow: spec.ContextWindow,
			PriceInPerK:   spec.PriceInPerK.String(),
			PriceOutPerK:  spec.PriceOutPerK.String(),
			Fallback:      registry.FallbackOf(spec.Name),
			Default:       spec.Name == registry.DefaultModel(),
		})
	}
	return out
}
