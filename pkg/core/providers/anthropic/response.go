package anthropic

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/vango-go/poppy/pkg/core/types"
)

// anthropicResponse matches Anthropic's response format.
type anthropicResponse struct {
	ID         string         `json:"id"`
	Model      string         `json:"model"`
	Content    []contentBlock `json:"content"`
	StopReason string         `json:"stop_reason"`
	Usage      types.Usage    `json:"usage"`
}

// parseResponse concatenates text blocks and collects tool_use blocks.
func parseResponse(body []byte) (*types.ChatResponse, error) {
	var anthResp anthropicResponse
	if err := json.Unmarshal(body, &anthResp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	out := &types.ChatResponse{
		Model:      anthResp.Model,
		StopReason: anthResp.StopReason,
		Usage:      anthResp.Usage,
	}
	var text strings.Builder
	for _, block := range anthResp.Content {
		switch block.Type {
		case "text":
			text.WriteString(block.Text)
		case "tool_use":
			out.ToolCalls = append(out.ToolCalls, types.ToolCall{
				ID:    block.ID,
				Name:  block.Name,
				Input: block.Input,
			})
		}
	}
	out.Text = text.String()
	return out, nil
}
