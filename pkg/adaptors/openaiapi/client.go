package openaiapi

import (
	"context"
	"log/slog"
	"strings"

	"polaris-hq/polaris/pkg/adaptors"
)

// TypeID is the registry identifier for this adaptor variant.
const TypeID = "openai_api"

func init() {
	adaptors.Register(TypeID, func(config adaptors.Config) (adaptors.Adaptor, error) {
		return New(config)
	})
}

// Adaptor is the direct HTTP adaptor for OpenAI-compatible backends.
type Adaptor struct {
	*adaptors.HTTPAdaptor
}

// New creates a new OpenAI-compatible API adaptor.
func New(config adaptors.Config) (*Adaptor, error) {
	if config.Slug == "" {
		return nil, &adaptors.ConfigError{
			Endpoint: "openai_api",
			Field:    "slug",
			Message:  "endpoint slug is required",
		}
	}
	if config.BaseURL == "" {
		return nil, &adaptors.ConfigError{
			Endpoint: config.Slug,
			Field:    "base_url",
			Message:  "base URL is required",
		}
	}

	a := &Adaptor{
		HTTPAdaptor: adaptors.NewHTTPAdaptor(config),
	}

	slog.Info("openai-compatible adaptor initialized",
		"endpoint", config.Slug,
		"base_url", config.BaseURL,
	)

	return a, nil
}

// completionsURL picks the API path for the request shape.
func (a *Adaptor) completionsURL(req *adaptors.TaskRequest) string {
	base := strings.TrimRight(a.Config().BaseURL, "/")
	if len(req.Messages) > 0 {
		return base + "/chat/completions"
	}
	return base + "/completions"
}

// SubmitTask sends a synchronous inference call to the backend.
func (a *Adaptor) SubmitTask(ctx context.Context, req *adaptors.TaskRequest) (*adaptors.TaskResult, error) {
	wireReq := transformRequest(req, a.Config().Model)
	wireReq.Stream = false

	var wireResp wireResponse
	raw, err := a.DoJSONRequest(ctx, "POST", a.completionsURL(req), wireReq, &wireResp, a.AuthHeaders())
	if err != nil {
		return nil, err
	}

	result, err := transformResponse(&wireResp, raw)
	if err != nil {
		return nil, &adaptors.ParseError{
			Endpoint:    a.Name(),
			RawResponse: string(raw),
			Cause:       err,
		}
	}

	return result, nil
}

// SubmitStreamingTask sends a streaming inference call.
// The returned channel yields chunks in backend arrival order and is
// closed when the stream ends; mid-stream failures are delivered as the
// Error field of the final chunk.
func (a *Adaptor) SubmitStreamingTask(ctx context.Context, req *adaptors.TaskRequest, requestLogID string) (<-chan *adaptors.StreamChunk, error) {
	wireReq := transformRequest(req, a.Config().Model)
	wireReq.Stream = true

	reader, err := newStreamReader(ctx, a, a.completionsURL(req), wireReq)
	if err != nil {
		return nil, err
	}

	chunks := make(chan *adaptors.StreamChunk)

	go func() {
		defer close(chunks)
		defer reader.Close()

		for {
			chunk, err := reader.Read(ctx)
			if err != nil {
				if err == errStreamDone {
					return
				}

				slog.Warn("stream read failed",
					"endpoint", a.Name(),
					"request_log_id", requestLogID,
					"error", err,
				)
				select {
				case chunks <- &adaptors.StreamChunk{Error: err}:
				case <-ctx.Done():
				}
				return
			}

			select {
			case chunks <- chunk:
			case <-ctx.Done():
				return
			}
		}
	}()

	return chunks, nil
}
