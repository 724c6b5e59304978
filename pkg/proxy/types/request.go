package types

// ChatCompletionRequest is an OpenAI-compatible chat completion request.
// The format matches the OpenAI Chat Completions API so existing SDKs
// and tools work against the gateway unchanged.
type ChatCompletionRequest struct {
	// Model is the logical model name, resolved by the federated router.
	Model string `json:"model"`

	// Messages is the conversation history.
	Messages []Message `json:"messages"`

	// Temperature controls randomness (0.0 to 2.0). Optional.
	Temperature *float64 `json:"temperature,omitempty"`

	// MaxTokens is the maximum number of tokens to generate. Optional.
	MaxTokens *int `json:"max_tokens,omitempty"`

	// TopP controls nucleus sampling (0.0 to 1.0). Optional.
	TopP *float64 `json:"top_p,omitempty"`

	// Stream enables server-sent events streaming. Optional.
	Stream bool `json:"stream,omitempty"`

	// Stop lists sequences that halt generation. Maximum 4.
	Stop []string `json:"stop,omitempty"`

	// User is an end-user identifier for tracking. Optional.
	User string `json:"user,omitempty"`
}

// Message is a single conversation message.
type Message struct {
	// Role is the author ("system", "user", "assistant").
	Role string `json:"role"`

	// Content is the message text.
	Content string `json:"content"`

	// Name optionally names the author.
	Name string `json:"name,omitempty"`
}

// CompletionRequest is an OpenAI-compatible plain (non-chat) completion
// request.
type CompletionRequest struct {
	// Model is the logical model name.
	Model string `json:"model"`

	// Prompt is the raw prompt text.
	Prompt string `json:"prompt"`

	// Temperature controls randomness (0.0 to 2.0). Optional.
	Temperature *float64 `json:"temperature,omitempty"`

	// MaxTokens is the maximum number of tokens to generate. Optional.
	MaxTokens *int `json:"max_tokens,omitempty"`

	// TopP controls nucleus sampling (0.0 to 1.0). Optional.
	TopP *float64 `json:"top_p,omitempty"`

	// Stream enables server-sent events streaming. Optional.
	Stream bool `json:"stream,omitempty"`

	// Stop lists sequences that halt generation. Maximum 4.
	Stop []string `json:"stop,omitempty"`

	// User is an end-user identifier for tracking. Optional.
	User string `json:"user,omitempty"`
}

// BatchSubmitRequest creates a batch job over a JSONL input file.
type BatchSubmitRequest struct {
	// Model is the model every input line runs against.
	Model string `json:"model"`

	// Endpoint is the slug of the batch-capable endpoint to use.
	Endpoint string `json:"endpoint"`

	// InputFile is the locator of the JSONL input.
	InputFile string `json:"input_file"`

	// OutputFolder is the locator results are written under.
	OutputFolder string `json:"output_folder"`
}

// Validate checks required fields and value ranges.
func (r *ChatCompletionRequest) Validate() error {
	if r.Model == "" {
		return &ValidationError{Field: "model", Message: "model is required"}
	}
	if len(r.Messages) == 0 {
		return &ValidationError{Field: "messages", Message: "messages must contain at least one message"}
	}
	for i, msg := range r.Messages {
		if msg.Role == "" {
			return &ValidationError{
				Field:   "messages",
				Message: "message role is required",
				Index:   i,
			}
		}
	}
	return validateSampling(r.Temperature, r.TopP, r.MaxTokens, r.Stop)
}

// Validate checks required fields and value ranges.
func (r *CompletionRequest) Validate() error {
	if r.Model == "" {
		return &ValidationError{Field: "model", Message: "model is required"}
	}
	if r.Prompt == "" {
		return &ValidationError{Field: "prompt", Message: "prompt is required"}
	}
	return validateSampling(r.Temperature, r.TopP, r.MaxTokens, r.Stop)
}

// Validate checks required fields.
func (r *BatchSubmitRequest) Validate() error {
	if r.Model == "" {
		return &ValidationError{Field: "model", Message: "model is required"}
	}
	if r.Endpoint == "" {
		return &ValidationError{Field: "endpoint", Message: "endpoint is required"}
	}
	if r.InputFile == "" {
		return &ValidationError{Field: "input_file", Message: "input_file is required"}
	}
	return nil
}

func validateSampling(temperature, topP *float64, maxTokens *int, stop []string) error {
	if temperature != nil && (*temperature < 0.0 || *temperature > 2.0) {
		return &ValidationError{Field: "temperature", Message: "temperature must be between 0.0 and 2.0"}
	}
	if topP != nil && (*topP < 0.0 || *topP > 1.0) {
		return &ValidationError{Field: "top_p", Message: "top_p must be between 0.0 and 1.0"}
	}
	if maxTokens != nil && *maxTokens < 1 {
		return &ValidationError{Field: "max_tokens", Message: "max_tokens must be greater than 0"}
	}
	if len(stop) > 4 {
		return &ValidationError{Field: "stop", Message: "stop sequences must not exceed 4"}
	}
	return nil
}

// ValidationError reports a request validation failure.
type ValidationError struct {
	// Field is the offending field name.
	Field string

	// Message describes the failure.
	Message string

	// Index is the offending element for list fields, -1 otherwise.
	Index int
}

func (e *ValidationError) Error() string {
	return e.Message
}
