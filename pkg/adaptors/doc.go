// Package adaptors defines the capability contract between the gateway and
// backend execution targets, plus the shared HTTP plumbing used by the
// concrete adaptor variants.
//
// An Adaptor wraps one physical inference endpoint. The router talks to
// backends exclusively through this interface; adding a backend technology
// means implementing the interface in a subpackage and registering its
// constructor, without touching the router.
//
// Concrete variants live in subpackages:
//   - openaiapi: direct HTTP adaptor for OpenAI-compatible APIs
//   - fabric: remote-execution-fabric adaptor with batch and job-listing
//     support
package adaptors
