// Package types defines the OpenAI-compatible wire formats exposed at
// the gateway boundary: chat and plain completion requests, responses,
// streaming chunks, batch resources, and the error envelope.
//
// The shapes match the OpenAI API so existing SDKs work unchanged.
// Everything federation-specific (target pinning, relay headers) rides
// outside these payloads.
package types
