package types

// ChatCompletionResponse is an OpenAI-compatible chat completion
// response, returned for non-streaming requests.
type ChatCompletionResponse struct {
	// ID uniquely identifies the completion.
	ID string `json:"id"`

	// Object is always "chat.completion".
	Object string `json:"object"`

	// Created is the Unix timestamp of creation.
	Created int64 `json:"created"`

	// Model is the logical model that served the request.
	Model string `json:"model"`

	// Choices holds the completion choices.
	Choices []Choice `json:"choices"`

	// Usage contains token usage statistics.
	Usage Usage `json:"usage"`
}

// Choice is a single completion choice.
type Choice struct {
	// Index is this choice's position.
	Index int `json:"index"`

	// Message is the generated message.
	Message Message `json:"message"`

	// FinishReason explains why generation stopped ("stop", "length").
	FinishReason string `json:"finish_reason"`
}

// CompletionResponse is an OpenAI-compatible plain completion response.
type CompletionResponse struct {
	// ID uniquely identifies the completion.
	ID string `json:"id"`

	// Object is always "text_completion".
	Object string `json:"object"`

	// Created is the Unix timestamp of creation.
	Created int64 `json:"created"`

	// Model is the logical model that served the request.
	Model string `json:"model"`

	// Choices holds the completion choices.
	Choices []TextChoice `json:"choices"`

	// Usage contains token usage statistics.
	Usage Usage `json:"usage"`
}

// TextChoice is a single plain completion choice.
type TextChoice struct {
	// Index is this choice's position.
	Index int `json:"index"`

	// Text is the generated text.
	Text string `json:"text"`

	// FinishReason explains why generation stopped.
	FinishReason string `json:"finish_reason"`
}

// Usage contains token usage statistics.
type Usage struct {
	// PromptTokens counts prompt tokens.
	PromptTokens int `json:"prompt_tokens"`

	// CompletionTokens counts generated tokens.
	CompletionTokens int `json:"completion_tokens"`

	// TotalTokens is prompt plus completion.
	TotalTokens int `json:"total_tokens"`
}

// ChatCompletionStreamChunk is one SSE chunk of a streamed chat
// completion.
type ChatCompletionStreamChunk struct {
	// ID uniquely identifies the completion; identical across chunks.
	ID string `json:"id"`

	// Object is always "chat.completion.chunk".
	Object string `json:"object"`

	// Created is the Unix timestamp of the chunk.
	Created int64 `json:"created"`

	// Model is the logical model that served the request.
	Model string `json:"model"`

	// Choices holds the streaming choices.
	Choices []StreamChoice `json:"choices"`

	// Usage is present on the final chunk when the backend reports it.
	Usage *Usage `json:"usage,omitempty"`
}

// StreamChoice is a single streaming choice.
type StreamChoice struct {
	// Index is this choice's position.
	Index int `json:"index"`

	// Delta carries the incremental content.
	Delta Delta `json:"delta"`

	// FinishReason is set only on the final chunk.
	FinishReason *string `json:"finish_reason"`
}

// Delta is the incremental content of a streaming chunk.
type Delta struct {
	// Role is set only on the first chunk.
	Role string `json:"role,omitempty"`

	// Content is the incremental text.
	Content string `json:"content,omitempty"`
}

// Model describes one servable model for the /v1/models listing.
type Model struct {
	// ID is the logical model name.
	ID string `json:"id"`

	// Object is always "model".
	Object string `json:"object"`

	// Created is the Unix timestamp the listing was generated.
	Created int64 `json:"created"`

	// OwnedBy names the providing organization.
	OwnedBy string `json:"owned_by"`
}

// ModelList is the /v1/models response envelope.
type ModelList struct {
	// Object is always "list".
	Object string `json:"object"`

	// Data lists the servable models.
	Data []Model `json:"data"`
}

// BatchResource is the API view of a batch job.
type BatchResource struct {
	// ID is the gateway's batch identifier.
	ID string `json:"id"`

	// Object is always "batch".
	Object string `json:"object"`

	// Status is "pending", "running", "completed", or "failed".
	Status string `json:"status"`

	// Model is the model the batch runs against.
	Model string `json:"model"`

	// Endpoint is the serving endpoint slug.
	Endpoint string `json:"endpoint"`

	// InputFile is the submitted JSONL locator.
	InputFile string `json:"input_file"`

	// OutputLocation is where results landed, once completed.
	OutputLocation string `json:"output_location,omitempty"`

	// Error describes a failed batch.
	Error string `json:"error,omitempty"`

	// Lines lists per-line outcomes once the batch is terminal.
	Lines []BatchLine `json:"lines,omitempty"`

	// CreatedAt is the submission Unix timestamp.
	CreatedAt int64 `json:"created_at"`
}

// BatchLine is the API view of one input line's outcome.
type BatchLine struct {
	// Line is the zero-based input line index.
	Line int `json:"line"`

	// OK reports whether the line succeeded.
	OK bool `json:"ok"`

	// Result locates the line's output when it succeeded.
	Result string `json:"result,omitempty"`

	// Error describes a failed line.
	Error *BatchLineErrorDetail `json:"error,omitempty"`
}

// BatchLineErrorDetail describes a single failed batch line.
type BatchLineErrorDetail struct {
	// Message is the backend's error message.
	Message string `json:"message"`

	// Code is the backend's error code, if any.
	Code string `json:"code,omitempty"`
}
