package fabric

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"polaris-hq/polaris/pkg/adaptors"
	"polaris-hq/polaris/pkg/adaptors/openaiapi"
)

// TypeID is the registry identifier for this adaptor variant.
const TypeID = "fabric"

// Extra config keys recognized by the fabric adaptor.
const (
	extraControlURL      = "control_url"
	extraExecutionTarget = "execution_target"
	extraFunctionID      = "function_id"
	extraBatchFunctionID = "batch_function_id"
)

func init() {
	adaptors.Register(TypeID, func(config adaptors.Config) (adaptors.Adaptor, error) {
		return New(config)
	})
}

// Adaptor talks to a remote-execution fabric. Inference is delegated to
// the OpenAI-compatible data plane; batch and job listing go through the
// fabric control plane.
type Adaptor struct {
	*openaiapi.Adaptor

	// control is the retrying client for control-plane calls
	control *retryablehttp.Client

	// controlURL is the control plane base URL, empty if not configured
	controlURL string

	// executionTarget is the fabric execution target id
	executionTarget string

	// batchFunctionID enables batch execution when non-empty
	batchFunctionID string
}

// New creates a new fabric adaptor.
func New(config adaptors.Config) (*Adaptor, error) {
	if config.Extra[extraExecutionTarget] == "" {
		return nil, &adaptors.ConfigError{
			Endpoint: config.Slug,
			Field:    "extra." + extraExecutionTarget,
			Message:  "execution target id is required for fabric endpoints",
		}
	}

	dataPlane, err := openaiapi.New(config)
	if err != nil {
		return nil, err
	}

	control := retryablehttp.NewClient()
	control.RetryMax = config.MaxRetries
	control.RetryWaitMin = 500 * time.Millisecond
	control.RetryWaitMax = 10 * time.Second
	control.HTTPClient.Timeout = config.Timeout
	control.Logger = nil // control-plane outcomes are logged at the call sites

	a := &Adaptor{
		Adaptor:         dataPlane,
		control:         control,
		controlURL:      strings.TrimRight(config.Extra[extraControlURL], "/"),
		executionTarget: config.Extra[extraExecutionTarget],
		batchFunctionID: config.Extra[extraBatchFunctionID],
	}

	slog.Info("fabric adaptor initialized",
		"endpoint", config.Slug,
		"execution_target", a.executionTarget,
		"batch_enabled", a.HasBatchEnabled(),
		"jobs_enabled", a.controlURL != "",
	)

	return a, nil
}

// Type returns "fabric".
func (a *Adaptor) Type() string {
	return TypeID
}

// SubmitTask delegates to the OpenAI-compatible data plane.
func (a *Adaptor) SubmitTask(ctx context.Context, req *adaptors.TaskRequest) (*adaptors.TaskResult, error) {
	return a.Adaptor.SubmitTask(ctx, req)
}

// SubmitStreamingTask delegates to the OpenAI-compatible data plane.
func (a *Adaptor) SubmitStreamingTask(ctx context.Context, req *adaptors.TaskRequest, requestLogID string) (<-chan *adaptors.StreamChunk, error) {
	return a.Adaptor.SubmitStreamingTask(ctx, req, requestLogID)
}
