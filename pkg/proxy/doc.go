// Package proxy is the OpenAI-compatible HTTP boundary of the gateway.
//
// It parses and validates incoming requests, asks the federated router
// for a backend, relays the response, and records a request log row for
// metrics ingestion. Streaming responses are driven by an explicit
// stream state machine (see Stream) that relays chunks in arrival
// order, propagates client cancellation to the backend, and finalizes
// the request log exactly once per stream regardless of how the stream
// ends.
//
// Subpackages:
//   - types: the OpenAI wire formats and error envelope
//   - middleware: request id, recovery, logging, auth, relay secret
//   - handlers: the HTTP handlers wired by the server
package proxy
