package fabric

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/hashicorp/go-retryablehttp"

	"polaris-hq/polaris/pkg/adaptors"
)

// Control-plane wire types for batch execution.

type batchSubmitWire struct {
	FunctionID      string `json:"function_id"`
	ExecutionTarget string `json:"execution_target"`
	Model           string `json:"model"`
	InputFile       string `json:"input_file"`
	OutputFolder    string `json:"output_folder"`
	User            string `json:"user"`
}

type batchSubmitResponseWire struct {
	BatchID string   `json:"batch_id"`
	TaskIDs []string `json:"task_ids"`
}

type batchStatusWire struct {
	Status         string `json:"status"`
	CompletedTasks int    `json:"completed_tasks"`
	TotalTasks     int    `json:"total_tasks"`
	OutputLocation string `json:"output_location,omitempty"`
	LineErrors     []struct {
		Line    int    `json:"line"`
		Message string `json:"message"`
		Code    string `json:"code,omitempty"`
	} `json:"line_errors,omitempty"`
}

// HasBatchEnabled reports whether this endpoint is configured for batch
// execution (control plane URL and batch function id present).
func (a *Adaptor) HasBatchEnabled() bool {
	return a.controlURL != "" && a.batchFunctionID != ""
}

// SubmitBatch submits a batch workload to the fabric control plane.
// The returned task ids are in input-line order.
func (a *Adaptor) SubmitBatch(ctx context.Context, req *adaptors.BatchRequest, user string) (*adaptors.BatchSubmitResult, error) {
	if !a.HasBatchEnabled() {
		return nil, &adaptors.BatchNotSupportedError{Endpoint: a.Name()}
	}

	payload := batchSubmitWire{
		FunctionID:      a.batchFunctionID,
		ExecutionTarget: a.executionTarget,
		Model:           req.Model,
		InputFile:       req.InputFile,
		OutputFolder:    req.OutputFolder,
		User:            user,
	}

	var resp batchSubmitResponseWire
	if err := a.controlJSON(ctx, http.MethodPost, a.controlURL+"/batches", payload, &resp); err != nil {
		return nil, err
	}

	if resp.BatchID == "" {
		return nil, &adaptors.ParseError{
			Endpoint: a.Name(),
			Cause:    fmt.Errorf("batch submission response missing batch_id"),
		}
	}

	return &adaptors.BatchSubmitResult{
		BatchID: resp.BatchID,
		TaskIDs: resp.TaskIDs,
	}, nil
}

// GetBatchStatus queries the fabric for a batch's current state.
// Safe to call repeatedly; a terminal batch keeps returning the same
// terminal result until its retention window makes it unknown.
func (a *Adaptor) GetBatchStatus(ctx context.Context, batchID string) (*adaptors.BatchStatusResult, error) {
	if a.controlURL == "" {
		return nil, &adaptors.BatchNotSupportedError{Endpoint: a.Name()}
	}

	var resp batchStatusWire
	url := fmt.Sprintf("%s/batches/%s", a.controlURL, batchID)
	if err := a.controlJSON(ctx, http.MethodGet, url, nil, &resp); err != nil {
		return nil, err
	}

	switch resp.Status {
	case adaptors.BatchStatusPending, adaptors.BatchStatusRunning,
		adaptors.BatchStatusCompleted, adaptors.BatchStatusFailed:
	default:
		return nil, &adaptors.ParseError{
			Endpoint: a.Name(),
			Cause:    fmt.Errorf("unknown batch status %q", resp.Status),
		}
	}

	result := &adaptors.BatchStatusResult{
		Status:         resp.Status,
		CompletedTasks: resp.CompletedTasks,
		TotalTasks:     resp.TotalTasks,
		OutputLocation: resp.OutputLocation,
	}
	for _, le := range resp.LineErrors {
		result.LineErrors = append(result.LineErrors, adaptors.BatchLineError{
			Line:    le.Line,
			Message: le.Message,
			Code:    le.Code,
		})
	}

	return result, nil
}

// controlJSON performs a JSON control-plane call through the retrying
// client and normalizes failures into tagged adaptor errors.
func (a *Adaptor) controlJSON(ctx context.Context, method, url string, reqBody, respBody interface{}) error {
	var bodyReader io.Reader
	if reqBody != nil {
		bodyBytes, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("failed to marshal control request: %w", err)
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create control request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for key, value := range a.AuthHeaders() {
		req.Header.Set(key, value)
	}

	resp, err := a.control.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return &adaptors.TimeoutError{
				Endpoint: a.Name(),
				Timeout:  a.Config().Timeout,
			}
		}
		return &adaptors.AdaptorError{
			Endpoint: a.Name(),
			Message:  err.Error(),
			Code:     "control_plane_unreachable",
			Cause:    err,
		}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &adaptors.ParseError{
			Endpoint: a.Name(),
			Cause:    fmt.Errorf("failed to read control response: %w", err),
		}
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return &adaptors.AuthError{Endpoint: a.Name(), Message: string(raw)}
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return &adaptors.AdaptorError{
			Endpoint:   a.Name(),
			StatusCode: resp.StatusCode,
			Message:    string(raw),
			Code:       "control_plane_error",
		}
	}

	if respBody != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, respBody); err != nil {
			return &adaptors.ParseError{
				Endpoint:    a.Name(),
				RawResponse: string(raw),
				Cause:       fmt.Errorf("failed to unmarshal control response: %w", err),
			}
		}
	}

	return nil
}
