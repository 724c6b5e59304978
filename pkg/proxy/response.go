package proxy

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"polaris-hq/polaris/pkg/adaptors"
	"polaris-hq/polaris/pkg/proxy/types"
)

// FormatChatCompletionResponse converts an adaptor result to the OpenAI
// chat completion shape. The logical model name the client asked for is
// echoed back, not the backend's internal name.
func FormatChatCompletionResponse(result *adaptors.TaskResult, requestedModel string) *types.ChatCompletionResponse {
	return &types.ChatCompletionResponse{
		ID:      fmt.Sprintf("chatcmpl-%s", result.ID),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   requestedModel,
		Choices: []types.Choice{
			{
				Index: 0,
				Message: types.Message{
					Role:    "assistant",
					Content: result.Content,
				},
				FinishReason: result.FinishReason,
			},
		},
		Usage: types.Usage{
			PromptTokens:     result.Usage.PromptTokens,
			CompletionTokens: result.Usage.CompletionTokens,
			TotalTokens:      result.Usage.TotalTokens,
		},
	}
}

// FormatCompletionResponse converts an adaptor result to the OpenAI
// plain completion shape.
func FormatCompletionResponse(result *adaptors.TaskResult, requestedModel string) *types.CompletionResponse {
	return &types.CompletionResponse{
		ID:      fmt.Sprintf("cmpl-%s", result.ID),
		Object:  "text_completion",
		Created: time.Now().Unix(),
		Model:   requestedModel,
		Choices: []types.TextChoice{
			{
				Index:        0,
				Text:         result.Content,
				FinishReason: result.FinishReason,
			},
		},
		Usage: types.Usage{
			PromptTokens:     result.Usage.PromptTokens,
			CompletionTokens: result.Usage.CompletionTokens,
			TotalTokens:      result.Usage.TotalTokens,
		},
	}
}

// FormatStreamChunk converts an adaptor chunk to the OpenAI streaming
// chunk shape. All chunks of one response share responseID.
func FormatStreamChunk(chunk *adaptors.StreamChunk, requestedModel, responseID string) *types.ChatCompletionStreamChunk {
	out := &types.ChatCompletionStreamChunk{
		ID:      responseID,
		Object:  "chat.completion.chunk",
		Created: time.Now().Unix(),
		Model:   requestedModel,
		Choices: []types.StreamChoice{
			{
				Index: 0,
				Delta: types.Delta{Content: chunk.Delta},
			},
		},
	}

	if chunk.FinishReason != "" {
		reason := chunk.FinishReason
		out.Choices[0].FinishReason = &reason
	}
	if chunk.Usage != nil {
		out.Usage = &types.Usage{
			PromptTokens:     chunk.Usage.PromptTokens,
			CompletionTokens: chunk.Usage.CompletionTokens,
			TotalTokens:      chunk.Usage.TotalTokens,
		}
	}
	return out
}

// WriteJSONResponse writes a JSON body with the given status.
func WriteJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		return fmt.Errorf("failed to encode JSON response: %w", err)
	}
	return nil
}

// WriteErrorResponse writes an OpenAI-compatible error envelope with
// the status its type implies.
func WriteErrorResponse(w http.ResponseWriter, errResp *types.ErrorResponse) error {
	return WriteJSONResponse(w, errResp.Error.HTTPStatusCode(), errResp)
}

// SetSSEHeaders prepares the response for server-sent events.
func SetSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
}

// WriteSSEChunk writes one "data: <json>\n\n" event and flushes.
func WriteSSEChunk(w http.ResponseWriter, chunk *types.ChatCompletionStreamChunk) error {
	data, err := json.Marshal(chunk)
	if err != nil {
		return fmt.Errorf("failed to marshal SSE chunk: %w", err)
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return fmt.Errorf("failed to write SSE chunk: %w", err)
	}
	flush(w)
	return nil
}

// WriteSSEDone writes the terminal "[DONE]" marker.
func WriteSSEDone(w http.ResponseWriter) error {
	if _, err := fmt.Fprint(w, "data: [DONE]\n\n"); err != nil {
		return fmt.Errorf("failed to write SSE done marker: %w", err)
	}
	flush(w)
	return nil
}

// WriteSSEError writes an error event mid-stream.
func WriteSSEError(w http.ResponseWriter, errResp *types.ErrorResponse) error {
	data, err := json.Marshal(errResp)
	if err != nil {
		return fmt.Errorf("failed to marshal SSE error: %w", err)
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return fmt.Errorf("failed to write SSE error: %w", err)
	}
	flush(w)
	return nil
}

func flush(w http.ResponseWriter) {
	if flusher, ok := w.(http.Flusher); ok {
		flusher.Flush()
	}
}
