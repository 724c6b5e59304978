package handlers

import (
	"net/http"
	"time"

	"polaris-hq/polaris/pkg/proxy"
	"polaris-hq/polaris/pkg/proxy/types"
)

// ModelsHandler serves GET /v1/models: the logical models the caller's
// identity can reach.
type ModelsHandler struct {
	deps *Deps
}

// NewModelsHandler creates a models listing handler.
func NewModelsHandler(deps *Deps) *ModelsHandler {
	return &ModelsHandler{deps: deps}
}

func (h *ModelsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	identity := identityOr401(w, r)
	if identity == nil {
		return
	}

	now := time.Now().Unix()
	list := &types.ModelList{Object: "list", Data: []types.Model{}}
	for _, name := range h.deps.Router.ListModels(allowFor(identity)) {
		list.Data = append(list.Data, types.Model{
			ID:      name,
			Object:  "model",
			Created: now,
			OwnedBy: "polaris",
		})
	}

	_ = proxy.WriteJSONResponse(w, http.StatusOK, list)
}
