package proxy

import (
	"context"
	"errors"
	"fmt"

	"polaris-hq/polaris/pkg/adaptors"
	"polaris-hq/polaris/pkg/batch"
	"polaris-hq/polaris/pkg/proxy/types"
	"polaris-hq/polaris/pkg/routing"
)

// HandleError converts internal errors to OpenAI-compatible error
// responses with the right HTTP status.
func HandleError(err error) *types.ErrorResponse {
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return reqErr.ToErrorResponse()
	}

	var modelErr *routing.ModelNotFoundError
	if errors.As(err, &modelErr) {
		return types.NewErrorResponse(
			modelErr.Error(),
			types.ErrorTypeNotFound,
			"model",
			types.CodeModelNotFound,
		)
	}

	var pinErr *routing.PinNotFoundError
	if errors.As(err, &pinErr) {
		return types.NewInvalidRequestError(pinErr.Error(), "model", types.CodeInvalidValue)
	}

	// every candidate failed: the failure belongs to the backends, not
	// the client
	var routingErr *routing.RoutingError
	if errors.As(err, &routingErr) {
		return types.NewErrorResponse(
			routingErr.Error(),
			types.ErrorTypeBadGateway,
			"",
			types.CodeBackendUnavailable,
		)
	}

	var capErr *batch.CapacityExceededError
	if errors.As(err, &capErr) {
		return types.NewErrorResponse(
			capErr.Error(),
			types.ErrorTypeRateLimitExceeded,
			"",
			types.CodeBatchCapacity,
		)
	}

	var batchNotFound *batch.NotFoundError
	if errors.As(err, &batchNotFound) {
		return types.NewErrorResponse(
			batchNotFound.Error(),
			types.ErrorTypeNotFound,
			"",
			types.CodeBatchNotFound,
		)
	}

	var unsupported *batch.UnsupportedError
	if errors.As(err, &unsupported) {
		return types.NewInvalidRequestError(unsupported.Error(), "endpoint", types.CodeInvalidValue)
	}

	var authErr *adaptors.AuthError
	if errors.As(err, &authErr) {
		return types.NewErrorResponse(
			fmt.Sprintf("backend authentication failed (%s)", authErr.Endpoint),
			types.ErrorTypeBadGateway,
			"",
			types.CodeBackendError,
		)
	}

	var timeoutErr *adaptors.TimeoutError
	if errors.As(err, &timeoutErr) {
		return types.NewErrorResponse(
			timeoutErr.Error(),
			types.ErrorTypeGatewayTimeout,
			"",
			types.CodeBackendTimeout,
		)
	}

	var adaptorErr *adaptors.AdaptorError
	if errors.As(err, &adaptorErr) {
		return handleAdaptorError(adaptorErr)
	}

	var parseErr *adaptors.ParseError
	if errors.As(err, &parseErr) {
		return types.NewBadGatewayError(
			fmt.Sprintf("failed to parse backend response: %v", parseErr),
		)
	}

	if errors.Is(err, context.Canceled) {
		// the client went away; status is moot but 499-adjacent
		return types.NewInvalidRequestError("request cancelled by client", "", "request_cancelled")
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return types.NewErrorResponse(
			"backend request timed out",
			types.ErrorTypeGatewayTimeout,
			"",
			types.CodeBackendTimeout,
		)
	}

	return types.NewServerError("an internal error occurred, please try again later")
}

// handleAdaptorError maps a backend HTTP status to the boundary error.
func handleAdaptorError(err *adaptors.AdaptorError) *types.ErrorResponse {
	switch {
	case err.StatusCode == 404:
		return types.NewErrorResponse(
			fmt.Sprintf("model not served by backend (%s)", err.Endpoint),
			types.ErrorTypeNotFound,
			"model",
			types.CodeModelNotFound,
		)
	case err.StatusCode == 429:
		return types.NewErrorResponse(
			fmt.Sprintf("backend rate limit exceeded (%s)", err.Endpoint),
			types.ErrorTypeRateLimitExceeded,
			"",
			"rate_limit_exceeded",
		)
	case err.StatusCode >= 400 && err.StatusCode < 500:
		return types.NewInvalidRequestError(
			fmt.Sprintf("backend rejected request (%s): %s", err.Endpoint, err.Message),
			"",
			types.CodeInvalidValue,
		)
	default:
		return types.NewBadGatewayError(
			fmt.Sprintf("backend error (%s): %s", err.Endpoint, err.Message),
		)
	}
}
