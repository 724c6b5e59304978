package openaiapi

import (
	"fmt"

	"polaris-hq/polaris/pkg/adaptors"
)

// Wire types for the OpenAI-compatible API surface.

// wireRequest is a chat completion request as the backend expects it.
type wireRequest struct {
	Model       string        `json:"model"`
	Messages    []wireMessage `json:"messages,omitempty"`
	Prompt      string        `json:"prompt,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	TopP        float64       `json:"top_p,omitempty"`
	Stream      bool          `json:"stream,omitempty"`
	Stop        []string      `json:"stop,omitempty"`
	User        string        `json:"user,omitempty"`
}

// wireMessage is a message in backend format.
type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content,omitempty"`
	Name    string `json:"name,omitempty"`
}

// wireResponse is a chat or plain completion response.
type wireResponse struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Created int64        `json:"created"`
	Model   string       `json:"model"`
	Choices []wireChoice `json:"choices"`
	Usage   wireUsage    `json:"usage"`
}

// wireChoice covers both chat (message) and plain (text) completion shapes.
type wireChoice struct {
	Index        int          `json:"index"`
	Message      *wireMessage `json:"message,omitempty"`
	Text         string       `json:"text,omitempty"`
	FinishReason string       `json:"finish_reason"`
}

// wireUsage is the usage block in backend format.
type wireUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// wireStreamResponse is a chunk in the backend's SSE stream.
type wireStreamResponse struct {
	ID      string             `json:"id"`
	Object  string             `json:"object"`
	Created int64              `json:"created"`
	Model   string             `json:"model"`
	Choices []wireStreamChoice `json:"choices"`
	Usage   *wireUsage         `json:"usage,omitempty"`
}

// wireStreamChoice is a choice inside a stream chunk.
type wireStreamChoice struct {
	Index        int             `json:"index"`
	Delta        wireStreamDelta `json:"delta"`
	Text         string          `json:"text,omitempty"`
	FinishReason string          `json:"finish_reason,omitempty"`
}

// wireStreamDelta is the incremental content of a stream chunk.
type wireStreamDelta struct {
	Role    string `json:"role,omitempty"`
	Content string `json:"content,omitempty"`
}

// transformRequest converts a backend-agnostic task request to wire format.
func transformRequest(req *adaptors.TaskRequest, model string) *wireRequest {
	out := &wireRequest{
		Model:       model,
		Prompt:      req.Prompt,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		TopP:        req.TopP,
		Stream:      req.Stream,
		Stop:        req.Stop,
		User:        req.User,
	}

	if len(req.Messages) > 0 {
		out.Messages = make([]wireMessage, len(req.Messages))
		for i, m := range req.Messages {
			out.Messages[i] = wireMessage{
				Role:    m.Role,
				Content: m.Content,
				Name:    m.Name,
			}
		}
	}

	return out
}

// transformResponse normalizes a wire response into a task result.
func transformResponse(resp *wireResponse, raw []byte) (*adaptors.TaskResult, error) {
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("response contains no choices")
	}

	choice := resp.Choices[0]
	content := choice.Text
	if choice.Message != nil {
		content = choice.Message.Content
	}

	return &adaptors.TaskResult{
		ID:           resp.ID,
		Model:        resp.Model,
		Content:      content,
		FinishReason: choice.FinishReason,
		Usage: adaptors.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
		Created: resp.Created,
		Raw:     raw,
	}, nil
}

// transformStreamChunk normalizes a wire stream chunk.
func transformStreamChunk(resp *wireStreamResponse) *adaptors.StreamChunk {
	chunk := &adaptors.StreamChunk{
		ID:      resp.ID,
		Model:   resp.Model,
		Created: resp.Created,
	}

	if len(resp.Choices) > 0 {
		choice := resp.Choices[0]
		chunk.Delta = choice.Delta.Content
		if chunk.Delta == "" {
			chunk.Delta = choice.Text
		}
		chunk.FinishReason = choice.FinishReason
	}

	if resp.Usage != nil {
		chunk.Usage = &adaptors.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		}
	}

	return chunk
}
