package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"polaris-hq/polaris/pkg/adaptors"
	"polaris-hq/polaris/pkg/proxy"
	"polaris-hq/polaris/pkg/proxy/middleware"
	"polaris-hq/polaris/pkg/routing"
)

// CompletionsHandler serves POST /v1/completions, the legacy plain
// completion form.
type CompletionsHandler struct {
	deps   *Deps
	logger *slog.Logger
}

// NewCompletionsHandler creates a completions handler.
func NewCompletionsHandler(deps *Deps) *CompletionsHandler {
	return &CompletionsHandler{
		deps:   deps,
		logger: slog.Default().With("component", "completions_handler"),
	}
}

func (h *CompletionsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	identity := identityOr401(w, r)
	if identity == nil {
		return
	}

	req, err := proxy.ParseCompletionRequest(r)
	if err != nil {
		_ = proxy.WriteErrorResponse(w, proxy.HandleError(err))
		return
	}

	route := &routing.Request{
		RequestID: requestID,
		Model:     req.Model,
		Pin:       proxy.ExtractPin(r),
		Allow:     allowFor(identity),
	}
	task := taskFromCompletionRequest(req, identity.Username)

	h.logger.InfoContext(ctx, "completion request",
		"request_id", requestID,
		"user", identity.Username,
		"model", req.Model,
		"stream", req.Stream,
	)

	if req.Stream {
		h.serveStream(w, r, route, task, identity.Username)
		return
	}

	start := time.Now().UTC()
	result, served, err := h.deps.Router.SubmitTask(ctx, route, task)
	if err != nil {
		h.logger.WarnContext(ctx, "completion failed",
			"request_id", requestID,
			"model", req.Model,
			"error", err,
		)
		errResp := proxy.HandleError(err)
		insertRequestLog(ctx, h.deps.Store, failedLog(route, identity.Username, start, errResp.HTTPStatusCode(), false))
		h.deps.recordRequest(route.Model, "", errResp.HTTPStatusCode(), start, nil)
		_ = proxy.WriteErrorResponse(w, errResp)
		return
	}

	insertRequestLog(ctx, h.deps.Store, servedLog(route, served, identity.Username, start, http.StatusOK, false, result.Raw))
	h.deps.recordRequest(route.Model, served.Endpoint, http.StatusOK, start, served)

	h.logger.InfoContext(ctx, "completion served",
		"request_id", requestID,
		"model", req.Model,
		"endpoint", served.Endpoint,
		"failovers", served.FailoverCount,
		"latency_ms", time.Since(start).Milliseconds(),
	)

	_ = proxy.WriteJSONResponse(w, http.StatusOK, proxy.FormatCompletionResponse(result, route.Model))
}

func (h *CompletionsHandler) serveStream(w http.ResponseWriter, r *http.Request, route *routing.Request, task *adaptors.TaskRequest, user string) {
	ctx := r.Context()
	start := time.Now().UTC()

	var served *routing.Route
	stream := proxy.NewStream("cmpl-"+route.RequestID, route.Model, func(statusCode int, result []byte) {
		finalizeRequestLog(h.deps.Store, route.RequestID, statusCode, result)
		endpoint := ""
		if served != nil {
			endpoint = served.Endpoint
		}
		h.deps.recordRequest(route.Model, endpoint, statusCode, start, served)
	})

	if h.deps.Metrics != nil {
		h.deps.Metrics.StreamStarted()
		defer h.deps.Metrics.StreamEnded()
	}

	connect := func(ctx context.Context) (<-chan *adaptors.StreamChunk, error) {
		chunks, r, err := h.deps.Router.SubmitStreamingTask(ctx, route, task, route.RequestID)
		if err != nil {
			return nil, err
		}
		served = r
		stream.OnMidStreamFailure = func() {
			h.deps.Router.MarkFailed(served.Endpoint)
		}
		insertRequestLog(ctx, h.deps.Store, servedLog(route, served, user, start, 0, true, nil))
		return chunks, nil
	}

	if err := stream.Run(ctx, w, connect); err != nil {
		h.logger.WarnContext(ctx, "completion stream failed to connect",
			"request_id", route.RequestID,
			"model", route.Model,
			"error", err,
		)
		errResp := proxy.HandleError(err)
		insertRequestLog(ctx, h.deps.Store, failedLog(route, user, start, errResp.HTTPStatusCode(), true))
		_ = proxy.WriteErrorResponse(w, errResp)
		return
	}

	h.logger.InfoContext(ctx, "completion stream finished",
		"request_id", route.RequestID,
		"model", route.Model,
		"state", stream.State().String(),
	)
}
