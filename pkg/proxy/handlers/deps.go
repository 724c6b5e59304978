package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"polaris-hq/polaris/pkg/auth"
	"polaris-hq/polaris/pkg/batch"
	"polaris-hq/polaris/pkg/clusterstatus"
	"polaris-hq/polaris/pkg/proxy"
	"polaris-hq/polaris/pkg/proxy/middleware"
	"polaris-hq/polaris/pkg/proxy/types"
	"polaris-hq/polaris/pkg/routing"
	"polaris-hq/polaris/pkg/store"
	"polaris-hq/polaris/pkg/telemetry/metrics"
)

// Deps bundles what every handler needs.
type Deps struct {
	// Router resolves logical models to backends with failover.
	Router *routing.Router

	// Store persists request logs and batch jobs.
	Store store.Store

	// Batches manages batch jobs. Optional; batch routes 503 without it.
	Batches *batch.Manager

	// Cache is the cluster status cache, used by readiness.
	Cache *clusterstatus.Cache

	// Metrics records request outcomes. Optional.
	Metrics *metrics.Collector
}

// recordRequest records a finished call plus any absorbed failovers.
func (d *Deps) recordRequest(model, endpoint string, statusCode int, start time.Time, served *routing.Route) {
	if d.Metrics == nil {
		return
	}
	d.Metrics.RecordRequest(model, endpoint, strconv.Itoa(statusCode), time.Since(start))
	if served != nil {
		for _, slug := range served.Attempted[:served.FailoverCount] {
			d.Metrics.RecordFailover(slug)
		}
	}
}

// identityOr401 pulls the authenticated identity or writes a 401.
func identityOr401(w http.ResponseWriter, r *http.Request) *auth.Identity {
	identity := middleware.GetIdentity(r.Context())
	if identity == nil {
		errResp := types.NewErrorResponse(
			"not authenticated",
			types.ErrorTypeAuthentication,
			"",
			"authentication_failed",
		)
		_ = proxy.WriteErrorResponse(w, errResp)
		return nil
	}
	return identity
}

// allowFor builds the router's candidate filter from an identity:
// endpoints restricted to groups or domains the caller lacks are
// excluded before routing.
func allowFor(identity *auth.Identity) func(*routing.Endpoint) bool {
	return func(ep *routing.Endpoint) bool {
		config := ep.Adaptor.Config()
		return auth.CheckAccess(identity, config.AllowedGroups, config.AllowedDomains) == nil
	}
}

// insertRequestLog writes a request log row, logging rather than
// failing the request when the store write goes wrong.
func insertRequestLog(ctx context.Context, s store.Store, log *store.RequestLog) {
	if err := s.InsertRequestLog(ctx, log); err != nil {
		slog.ErrorContext(ctx, "failed to insert request log",
			"request_id", log.ID,
			"error", err,
		)
	}
}

// finalizeRequestLog records a stream's outcome on its log row. Uses a
// fresh context so a cancelled request still gets finalized.
func finalizeRequestLog(s store.Store, id string, statusCode int, result []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.FinalizeRequestLog(ctx, id, statusCode, result, time.Now().UTC()); err != nil {
		slog.Error("failed to finalize request log",
			"request_id", id,
			"error", err,
		)
	}
}
