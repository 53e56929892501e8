// Package llm defines the chat-completion provider interface used for
// batch-mode replies and text turns, including structured tool calls.
package llm

import "context"

// Message is a single chat message in provider-neutral form.
type Message struct {
	// Role is one of "user", "assistant", "system", or "tool".
	Role    string
	Content string

	// Name carries the tool name on "tool" role messages.
	Name string

	// ToolCallID links a "tool" role message to the call it answers.
	ToolCallID string

	// ToolCalls holds the calls an assistant message requested.
	ToolCalls []ToolCall
}

// ToolCall is a structured function invocation requested by the model.
// Arguments is the raw JSON argument object.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

// ToolDefinition declares a callable function to the model.
// Parameters is a JSON Schema object.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// Usage reports token accounting for one completion.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// CompletionRequest is a single inference request.
type CompletionRequest struct {
	SystemPrompt string
	Messages     []Message
	Tools        []ToolDefinition
	Temperature  float64
	MaxTokens    int
}

// CompletionResponse is the model's full reply to a CompletionRequest.
type CompletionResponse struct {
	Content   string
	ToolCalls []ToolCall
	Usage     Usage
}

// Provider performs one-shot chat completions.
type Provider interface {
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}
