package types

import "encoding/json"

// ChatRequest is a provider-neutral chat completion request.
type ChatRequest struct {
	Model       string
	System      string
	Messages    []ChatMessage
	Tools       []ToolDef
	MaxTokens   int
	Temperature *float64
}

// ChatMessage is one turn sent to a model. Assistant turns may carry tool calls; user turns
// may carry the results of those calls.
type ChatMessage struct {
	Role        Role
	Content     string
	ToolCalls   []ToolCall
	ToolResults []ToolResult
}

// ToolDef describes a function the model may call.
type ToolDef struct {
	Name        string
	Description string
	InputSchema map[string]any
}

type ToolCall struct {
	ID    string
	Name  string
	Input json.RawMessage
}

type ToolResult struct {
	CallID  string
	Content string
	IsError bool
}

// ChatResponse is a provider-neutral completion.
type ChatResponse struct {
	Model      string
	Text       string
	ToolCalls  []ToolCall
	StopReason string
	Usage      Usage
}

type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// ChatHistory converts conversation messages into chat turns.
func ChatHistory(msgs []Message) []ChatMessage {
	out := make([]ChatMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, ChatMessage{Role: m.Role, Content: m.Content})
	}
	return out
}
