// Package openaiapi implements the direct HTTP adaptor for backends that
// expose an OpenAI-compatible API (vLLM, llama.cpp server, TGI in
// compatibility mode, hosted APIs).
//
// The adaptor registers itself under the type identifier "openai_api".
// It serves chat and plain completions, streaming via Server-Sent
// Events. It implements neither batch execution nor job listing; those
// capabilities belong to the fabric adaptor.
package openaiapi
