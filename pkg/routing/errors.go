package routing

import (
	"fmt"
	"strings"
)

// TargetFailure records one failed candidate during failover.
type TargetFailure struct {
	// Endpoint is the slug of the failed candidate
	Endpoint string

	// Err is the adaptor error that failed it
	Err error
}

// RoutingError is the aggregate error returned once every candidate
// target has been exhausted. Individual target failures are never
// surfaced to the client on their own; they appear only here.
type RoutingError struct {
	// Model is the logical model that could not be served
	Model string

	// Failures lists every candidate's failure, in attempt order
	Failures []TargetFailure
}

// Error implements the error interface.
func (e *RoutingError) Error() string {
	if len(e.Failures) == 0 {
		return fmt.Sprintf("no live targets for model %q", e.Model)
	}

	parts := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		parts[i] = fmt.Sprintf("%s: %v", f.Endpoint, f.Err)
	}
	return fmt.Sprintf("all %d targets failed for model %q: %s",
		len(e.Failures), e.Model, strings.Join(parts, "; "))
}

// Unwrap exposes the underlying failures for errors.Is/As traversal.
func (e *RoutingError) Unwrap() []error {
	errs := make([]error, len(e.Failures))
	for i, f := range e.Failures {
		errs[i] = f.Err
	}
	return errs
}

// ModelNotFoundError indicates the requested model has no endpoint or
// federated endpoint in the topology.
type ModelNotFoundError struct {
	// Model is the requested logical model name
	Model string
}

// Error implements the error interface.
func (e *ModelNotFoundError) Error() string {
	return fmt.Sprintf("model %q is not served by any configured endpoint", e.Model)
}

// PinNotFoundError indicates an explicit cluster/framework pin matched
// no configured endpoint for the model.
type PinNotFoundError struct {
	// Model is the requested logical model name
	Model string

	// Cluster is the pinned cluster
	Cluster string

	// Framework is the pinned framework (may be empty)
	Framework string
}

// Error implements the error interface.
func (e *PinNotFoundError) Error() string {
	if e.Framework != "" {
		return fmt.Sprintf("model %q has no endpoint on cluster %q with framework %q",
			e.Model, e.Cluster, e.Framework)
	}
	return fmt.Sprintf("model %q has no endpoint on cluster %q", e.Model, e.Cluster)
}
