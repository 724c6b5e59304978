package proxy

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"polaris-hq/polaris/pkg/proxy/types"
	"polaris-hq/polaris/pkg/routing"
)

const (
	// MaxRequestBodySize is the maximum allowed request body size (10MB).
	MaxRequestBodySize = 10 * 1024 * 1024

	// AuthorizationHeader carries the bearer token.
	AuthorizationHeader = "Authorization"

	// RequestIDHeader propagates the request id.
	RequestIDHeader = "X-Request-ID"

	// PinHeader selects an explicit target, format "cluster" or
	// "cluster/framework", bypassing federation.
	PinHeader = "X-Polaris-Target"
)

// ParseChatCompletionRequest decodes and validates a chat completion
// body, bounded by MaxRequestBodySize.
func ParseChatCompletionRequest(r *http.Request) (*types.ChatCompletionRequest, error) {
	var req types.ChatCompletionRequest
	if err := decodeBody(r, &req); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, wrapValidation(err)
	}
	return &req, nil
}

// ParseCompletionRequest decodes and validates a plain completion body.
func ParseCompletionRequest(r *http.Request) (*types.CompletionRequest, error) {
	var req types.CompletionRequest
	if err := decodeBody(r, &req); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, wrapValidation(err)
	}
	return &req, nil
}

// ParseBatchSubmitRequest decodes and validates a batch submission body.
func ParseBatchSubmitRequest(r *http.Request) (*types.BatchSubmitRequest, error) {
	var req types.BatchSubmitRequest
	if err := decodeBody(r, &req); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, wrapValidation(err)
	}
	return &req, nil
}

func decodeBody(r *http.Request, dst interface{}) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, MaxRequestBodySize))
	if err != nil {
		return fmt.Errorf("failed to read request body: %w", err)
	}
	if len(body) >= MaxRequestBodySize {
		return &RequestError{
			Message: fmt.Sprintf("request body exceeds maximum size of %d bytes", MaxRequestBodySize),
			Code:    types.CodeRequestTooLarge,
			Param:   "body",
		}
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return &RequestError{
			Message: fmt.Sprintf("invalid JSON: %v", err),
			Code:    types.CodeInvalidJSON,
			Param:   "body",
		}
	}
	return nil
}

func wrapValidation(err error) error {
	if valErr, ok := err.(*types.ValidationError); ok {
		return &RequestError{
			Message: valErr.Message,
			Code:    types.CodeInvalidValue,
			Param:   valErr.Field,
		}
	}
	return err
}

// ExtractBearerToken pulls the token from "Authorization: Bearer ...".
// Returns empty on a missing or malformed header.
func ExtractBearerToken(r *http.Request) string {
	parts := strings.SplitN(r.Header.Get(AuthorizationHeader), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// ExtractPin parses the X-Polaris-Target header into a routing pin.
// Returns nil when the header is absent.
func ExtractPin(r *http.Request) *routing.Pin {
	raw := strings.TrimSpace(r.Header.Get(PinHeader))
	if raw == "" {
		return nil
	}
	parts := strings.SplitN(raw, "/", 2)
	pin := &routing.Pin{Cluster: parts[0]}
	if len(parts) == 2 {
		pin.Framework = parts[1]
	}
	return pin
}

// RequestError is a request parsing or validation failure.
type RequestError struct {
	Message string
	Code    string
	Param   string
}

func (e *RequestError) Error() string {
	return e.Message
}

// ToErrorResponse converts the error to the OpenAI envelope.
func (e *RequestError) ToErrorResponse() *types.ErrorResponse {
	return types.NewInvalidRequestError(e.Message, e.Param, e.Code)
}
