package handlers

import (
	"polaris-hq/polaris/pkg/adaptors"
	"polaris-hq/polaris/pkg/proxy/types"
)

// taskFromChatRequest converts a validated chat completion request into
// the adaptor task shape. Pointer tunables map to zero values when the
// client left them unset; adaptors treat zero as "backend default".
func taskFromChatRequest(req *types.ChatCompletionRequest, user string) *adaptors.TaskRequest {
	task := &adaptors.TaskRequest{
		Model:  req.Model,
		Stream: req.Stream,
		Stop:   req.Stop,
		User:   user,
	}
	for _, m := range req.Messages {
		task.Messages = append(task.Messages, adaptors.Message{
			Role:    m.Role,
			Content: m.Content,
			Name:    m.Name,
		})
	}
	if req.MaxTokens != nil {
		task.MaxTokens = *req.MaxTokens
	}
	if req.Temperature != nil {
		task.Temperature = *req.Temperature
	}
	if req.TopP != nil {
		task.TopP = *req.TopP
	}
	return task
}

// taskFromCompletionRequest converts a validated legacy completion
// request into the adaptor task shape.
func taskFromCompletionRequest(req *types.CompletionRequest, user string) *adaptors.TaskRequest {
	task := &adaptors.TaskRequest{
		Model:  req.Model,
		Prompt: req.Prompt,
		Stream: req.Stream,
		Stop:   req.Stop,
		User:   user,
	}
	if req.MaxTokens != nil {
		task.MaxTokens = *req.MaxTokens
	}
	if req.Temperature != nil {
		task.Temperature = *req.Temperature
	}
	if req.TopP != nil {
		task.TopP = *req.TopP
	}
	return task
}
