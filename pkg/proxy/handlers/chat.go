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
	"polaris-hq/polaris/pkg/store"
)

// ChatHandler serves POST /v1/chat/completions, both the synchronous
// and the streaming form.
type ChatHandler struct {
	deps   *Deps
	logger *slog.Logger
}

// NewChatHandler creates a chat completions handler.
func NewChatHandler(deps *Deps) *ChatHandler {
	return &ChatHandler{
		deps:   deps,
		logger: slog.Default().With("component", "chat_handler"),
	}
}

func (h *ChatHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
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

	req, err := proxy.ParseChatCompletionRequest(r)
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
	task := taskFromChatRequest(req, identity.Username)

	h.logger.InfoContext(ctx, "chat completion request",
		"request_id", requestID,
		"user", identity.Username,
		"model", req.Model,
		"stream", req.Stream,
		"messages", len(req.Messages),
	)

	if req.Stream {
		h.serveStream(w, r, route, task, identity.Username)
		return
	}
	h.serveSync(w, r, route, task, identity.Username)
}

func (h *ChatHandler) serveSync(w http.ResponseWriter, r *http.Request, route *routing.Request, task *adaptors.TaskRequest, user string) {
	ctx := r.Context()
	start := time.Now().UTC()

	result, served, err := h.deps.Router.SubmitTask(ctx, route, task)
	if err != nil {
		h.logger.WarnContext(ctx, "chat completion failed",
			"request_id", route.RequestID,
			"model", route.Model,
			"error", err,
		)
		errResp := proxy.HandleError(err)
		insertRequestLog(ctx, h.deps.Store, failedLog(route, user, start, errResp.HTTPStatusCode(), false))
		h.deps.recordRequest(route.Model, "", errResp.HTTPStatusCode(), start, nil)
		_ = proxy.WriteErrorResponse(w, errResp)
		return
	}

	insertRequestLog(ctx, h.deps.Store, servedLog(route, served, user, start, http.StatusOK, false, result.Raw))
	h.deps.recordRequest(route.Model, served.Endpoint, http.StatusOK, start, served)

	h.logger.InfoContext(ctx, "chat completion served",
		"request_id", route.RequestID,
		"model", route.Model,
		"endpoint", served.Endpoint,
		"failovers", served.FailoverCount,
		"latency_ms", time.Since(start).Milliseconds(),
	)

	_ = proxy.WriteJSONResponse(w, http.StatusOK, proxy.FormatChatCompletionResponse(result, route.Model))
}

func (h *ChatHandler) serveStream(w http.ResponseWriter, r *http.Request, route *routing.Request, task *adaptors.TaskRequest, user string) {
	ctx := r.Context()
	start := time.Now().UTC()

	var served *routing.Route
	stream := proxy.NewStream("chatcmpl-"+route.RequestID, route.Model, func(statusCode int, result []byte) {
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
		// Inserted with a zero status code; the stream's finalizer
		// fills in the outcome.
		insertRequestLog(ctx, h.deps.Store, servedLog(route, served, user, start, 0, true, nil))
		return chunks, nil
	}

	if err := stream.Run(ctx, w, connect); err != nil {
		h.logger.WarnContext(ctx, "chat stream failed to connect",
			"request_id", route.RequestID,
			"model", route.Model,
			"error", err,
		)
		errResp := proxy.HandleError(err)
		insertRequestLog(ctx, h.deps.Store, failedLog(route, user, start, errResp.HTTPStatusCode(), true))
		_ = proxy.WriteErrorResponse(w, errResp)
		return
	}

	h.logger.InfoContext(ctx, "chat stream finished",
		"request_id", route.RequestID,
		"model", route.Model,
		"state", stream.State().String(),
		"latency_ms", time.Since(start).Milliseconds(),
	)
}

// servedLog builds the request log row for a call that reached a
// backend. Streaming rows carry a zero status code until finalized.
func servedLog(route *routing.Request, served *routing.Route, user string, start time.Time, statusCode int, stream bool, result []byte) *store.RequestLog {
	log := &store.RequestLog{
		ID:               route.RequestID,
		User:             user,
		Cluster:          served.Cluster,
		Framework:        served.Framework,
		Model:            route.Model,
		Endpoint:         served.Endpoint,
		StatusCode:       statusCode,
		Stream:           stream,
		ReceivedAt:       start,
		BackendRequestAt: start,
		Result:           result,
	}
	if !stream {
		log.BackendResponseAt = time.Now().UTC()
	}
	return log
}

// failedLog builds the request log row for a call no backend served.
func failedLog(route *routing.Request, user string, start time.Time, statusCode int, stream bool) *store.RequestLog {
	return &store.RequestLog{
		ID:         route.RequestID,
		User:       user,
		Model:      route.Model,
		StatusCode: statusCode,
		Stream:     stream,
		ReceivedAt: start,
	}
}
