package handlers

import (
	"net/http"

	"polaris-hq/polaris/pkg/proxy"
)

// HealthHandler serves GET /healthz. Liveness only: the process is up.
type HealthHandler struct{}

// NewHealthHandler creates a liveness handler.
func NewHealthHandler() *HealthHandler {
	return &HealthHandler{}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	_ = proxy.WriteJSONResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ReadyHandler serves GET /readyz. The gateway is ready when it holds a
// fresh cluster status snapshot; a stale cache means routing has
// degraded to optimistic ordering.
type ReadyHandler struct {
	deps *Deps
}

// NewReadyHandler creates a readiness handler.
func NewReadyHandler(deps *Deps) *ReadyHandler {
	return &ReadyHandler{deps: deps}
}

func (h *ReadyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.deps.Cache != nil && h.deps.Cache.Stale() {
		_ = proxy.WriteJSONResponse(w, http.StatusServiceUnavailable, map[string]string{
			"status": "degraded",
			"reason": "cluster status cache is stale",
		})
		return
	}
	_ = proxy.WriteJSONResponse(w, http.StatusOK, map[string]string{"status": "ready"})
}
