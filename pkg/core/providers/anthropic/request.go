package anthropic

import (
	"encoding/json"
	"strings"

	"github.com/vango-go/poppy/pkg/core/types"
)

// anthropicRequest is the Anthropic API request format.
type anthropicRequest struct {
	Model       string          `json:"model"`
	Messages    []messageJSON   `json:"messages"`
	MaxTokens   int             `json:"max_tokens"`
	System      string          `json:"system,omitempty"`
	Temperature *float64        `json:"temperature,omitempty"`
	Tools       []anthropicTool `json:"tools,omitempty"`
}

// messageJSON is the wire format for messages.
type messageJSON struct {
	Role    string         `json:"role"`
	Content []contentBlock `json:"content"`
}

// contentBlock covers the text, tool_use and tool_result block shapes.
type contentBlock struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   string          `json:"content,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`
}

// anthropicTool represents a tool in Anthropic's format.
type anthropicTool struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"input_schema"`
}

// buildRequest converts a chat request to an Anthropic request. System-role turns are folded
// into the system prompt since the Messages API only accepts user and assistant turns.
func buildRequest(req *types.ChatRequest) *anthropicRequest {
	anthReq := &anthropicRequest{
		Model:       req.Model,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}
	if anthReq.Model == "" {
		anthReq.Model = DefaultModel
	}
	if anthReq.MaxTokens == 0 {
		anthReq.MaxTokens = DefaultMaxTokens
	}

	system := []string{}
	if s := strings.TrimSpace(req.System); s != "" {
		system = append(system, req.System)
	}
	for _, msg := range req.Messages {
		if msg.Role == types.RoleSystem {
			if strings.TrimSpace(msg.Content) != "" {
				system = append(system, msg.Content)
			}
			continue
		}
		if m, ok := convertMessage(msg); ok {
			anthReq.Messages = append(anthReq.Messages, m)
		}
	}
	anthReq.System = strings.Join(system, "\n\n")

	for _, t := range req.Tools {
		schema := t.InputSchema
		if schema == nil {
			schema = map[string]any{"type": "object"}
		}
		anthReq.Tools = append(anthReq.Tools, anthropicTool{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: schema,
		})
	}
	return anthReq
}

func convertMessage(msg types.ChatMessage) (messageJSON, bool) {
	out := messageJSON{Role: string(msg.Role)}
	for _, r := range msg.ToolResults {
		out.Content = append(out.Content, contentBlock{
			Type:      "tool_result",
			ToolUseID: r.CallID,
			Content:   r.Content,
			IsError:   r.IsError,
		})
	}
	if msg.Content != "" {
		out.Content = append(out.Content, contentBlock{Type: "text", Text: msg.Content})
	}
	for _, c := range msg.ToolCalls {
		input := c.Input
		if len(input) == 0 {
			input = json.RawMessage(`{}`)
		}
		out.Content = append(out.Content, contentBlock{
			Type:  "tool_use",
			ID:    c.ID,
			Name:  c.Name,
			Input: input,
		})
	}
	return out, len(out.Content) > 0
}
