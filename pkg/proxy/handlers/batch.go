package handlers

import (
	"log/slog"
	"net/http"
	"strings"

	"polaris-hq/polaris/pkg/batch"
	"polaris-hq/polaris/pkg/proxy"
	"polaris-hq/polaris/pkg/proxy/middleware"
	"polaris-hq/polaris/pkg/proxy/types"
	"polaris-hq/polaris/pkg/store"
)

// BatchHandler serves POST /v1/batches and GET /v1/batches/{id}.
type BatchHandler struct {
	deps   *Deps
	logger *slog.Logger
}

// NewBatchHandler creates a batch handler.
func NewBatchHandler(deps *Deps) *BatchHandler {
	return &BatchHandler{
		deps:   deps,
		logger: slog.Default().With("component", "batch_handler"),
	}
}

func (h *BatchHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.deps.Batches == nil {
		_ = proxy.WriteErrorResponse(w, types.NewServiceUnavailableError("batch processing is not enabled"))
		return
	}

	switch {
	case r.Method == http.MethodPost:
		h.submit(w, r)
	case r.Method == http.MethodGet:
		h.status(w, r)
	default:
		w.Header().Set("Allow", "GET, POST")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *BatchHandler) submit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	identity := identityOr401(w, r)
	if identity == nil {
		return
	}

	req, err := proxy.ParseBatchSubmitRequest(r)
	if err != nil {
		_ = proxy.WriteErrorResponse(w, proxy.HandleError(err))
		return
	}

	job, err := h.deps.Batches.Submit(ctx, identity.Username, &batch.SubmitRequest{
		Endpoint:     req.Endpoint,
		Model:        req.Model,
		InputFile:    req.InputFile,
		OutputFolder: req.OutputFolder,
	})
	if err != nil {
		h.logger.WarnContext(ctx, "batch submission rejected",
			"request_id", requestID,
			"user", identity.Username,
			"endpoint", req.Endpoint,
			"error", err,
		)
		_ = proxy.WriteErrorResponse(w, proxy.HandleError(err))
		return
	}

	h.logger.InfoContext(ctx, "batch submitted",
		"request_id", requestID,
		"user", identity.Username,
		"batch_id", job.ID,
		"endpoint", job.Endpoint,
		"input_file", job.InputFile,
	)

	_ = proxy.WriteJSONResponse(w, http.StatusAccepted, batchResource(job, nil))
}

func (h *BatchHandler) status(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	identity := identityOr401(w, r)
	if identity == nil {
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/v1/batches/")
	if id == "" || strings.Contains(id, "/") {
		_ = proxy.WriteErrorResponse(w, proxy.HandleError(&batch.NotFoundError{BatchID: id}))
		return
	}

	job, lines, err := h.deps.Batches.Status(ctx, id)
	if err != nil {
		_ = proxy.WriteErrorResponse(w, proxy.HandleError(err))
		return
	}

	// Batch jobs are visible to their submitter only.
	if job.User != identity.Username {
		_ = proxy.WriteErrorResponse(w, proxy.HandleError(&batch.NotFoundError{BatchID: id}))
		return
	}

	_ = proxy.WriteJSONResponse(w, http.StatusOK, batchResource(job, lines))
}

// batchResource converts a stored batch job to its API view.
func batchResource(job *store.BatchJob, lines []*store.BatchLineResult) *types.BatchResource {
	resource := &types.BatchResource{
		ID:             job.ID,
		Object:         "batch",
		Status:         job.Status,
		Model:          job.Model,
		Endpoint:       job.Endpoint,
		InputFile:      job.InputFile,
		OutputLocation: job.OutputLocation,
		Error:          job.Error,
		CreatedAt:      job.CreatedAt.Unix(),
	}
	for _, line := range lines {
		apiLine := types.BatchLine{
			Line:   line.Line,
			OK:     line.OK,
			Result: line.Result,
		}
		if !line.OK {
			apiLine.Error = &types.BatchLineErrorDetail{
				Message: line.ErrorMessage,
				Code:    line.ErrorCode,
			}
		}
		resource.Lines = append(resource.Lines, apiLine)
	}
	return resource
}
