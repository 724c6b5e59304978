// Package handlers implements the gateway's HTTP handlers: chat and
// plain completions (streaming and not), batch submission and status,
// model listing, and health probes. Handlers parse and validate at the
// boundary, delegate to the router, batch manager, and store, and
// write OpenAI-compatible responses.
package handlers
