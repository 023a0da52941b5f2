package openai

import (
	"strings"

	"github.com/vango-go/poppy/pkg/core/types"
)

// chatRequest is the OpenAI Chat Completions request format.
type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature *float64      `json:"temperature,omitempty"`
	Tools       []chatTool    `json:"tools,omitempty"`
}

type chatMessage struct {
	Role       string     `json:"role"`
	Content    *string    `json:"content"`
	ToolCalls  []toolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

type toolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function functionCall `json:"function"`
}

type functionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type chatTool struct {
	Type     string      `json:"type"`
	Function functionDef `json:"function"`
}

type functionDef struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters"`
}

// buildRequest converts a chat request to OpenAI's format. The system prompt becomes the first
// message and each tool result becomes its own "tool" message.
func buildRequest(req *types.ChatRequest) *chatRequest {
	out := &chatRequest{
		Model:       req.Model,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}
	if out.Model == "" {
		out.Model = DefaultModel
	}
	if out.MaxTokens == 0 {
		out.MaxTokens = DefaultMaxTokens
	}

	if strings.TrimSpace(req.System) != "" {
		out.Messages = append(out.Messages, chatMessage{Role: "system", Content: strPtr(req.System)})
	}
	for _, msg := range req.Messages {
		out.Messages = append(out.Messages, translateMessage(msg)...)
	}

	for _, t := range req.Tools {
		params := t.InputSchema
		if params == nil {
			params = map[string]any{"type": "object"}
		}
		out.Tools = append(out.Tools, chatTool{
			Type: "function",
			Function: functionDef{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  params,
			},
		})
	}
	return out
}

func translateMessage(msg types.ChatMessage) []chatMessage {
	var out []chatMessage
	for _, r := range msg.ToolResults {
		out = append(out, chatMessage{Role: "tool", ToolCallID: r.CallID, Content: strPtr(r.Content)})
	}

	if len(msg.ToolCalls) > 0 {
		m := chatMessage{Role: string(msg.Role)}
		if msg.Content != "" {
			m.Content = strPtr(msg.Content)
		}
		for _, c := range msg.ToolCalls {
			args := string(c.Input)
			if args == "" {
				args = "{}"
			}
			m.ToolCalls = append(m.ToolCalls, toolCall{
				ID:       c.ID,
				Type:     "function",
				Function: functionCall{Name: c.Name, Arguments: args},
			})
		}
		return append(out, m)
	}

	if msg.Content != "" || len(msg.ToolResults) == 0 {
		out = append(out, chatMessage{Role: string(msg.Role), Content: strPtr(msg.Content)})
	}
	return out
}

func strPtr(s string) *string { return &s }
