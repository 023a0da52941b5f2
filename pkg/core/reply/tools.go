package reply

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/vango-go/poppy/pkg/core/types"
)

// ExportToolName is the tool the model calls to export a plan to Google Docs.
const ExportToolName = "export_poppy_summary_to_google_doc"

const defaultExportTitle = "Poppy Export"

var exportTool = types.ToolDef{
	Name:        ExportToolName,
	Description: "Creates a Google Doc via MCP when the user asks to export/save/send their summary, plan, hooks, or next steps.",
	InputSchema: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"title": map[string]any{
				"type":        "string",
				"description": "Optional Google Doc title to use for the export.",
			},
			"content": map[string]any{
				"type":        "string",
				"description": "Markdown content to send to Google Docs (include hooks, plan, next steps, etc.).",
			},
		},
		"required": []string{"content"},
	},
}

type exportInput struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

type exportOutput struct {
	DocURL string `json:"docUrl"`
}

var (
	errExportContent  = errors.New("content is required to export a Google Doc")
	errExportDisabled = errors.New("export to Google Docs is not configured")
	errUnknownTool    = errors.New("unknown tool")
)

// executeTool runs one tool call. Failures are reported back to the model as error results.
func (g *Generator) executeTool(ctx context.Context, call types.ToolCall) types.ToolResult {
	result := types.ToolResult{CallID: call.ID}
	out, err := g.runTool(ctx, call)
	if err != nil {
		g.logger.Warn("tool call failed", "tool", call.Name, "error", err)
		result.Content = err.Error()
		result.IsError = true
		return result
	}
	result.Content = out
	return result
}

func (g *Generator) runTool(ctx context.Context, call types.ToolCall) (string, error) {
	if call.Name != ExportToolName {
		return "", errUnknownTool
	}

	var in exportInput
	if len(call.Input) > 0 {
		if err := json.Unmarshal(call.Input, &in); err != nil {
			return "", err
		}
	}
	if strings.TrimSpace(in.Content) == "" {
		return "", errExportContent
	}
	if g.exporter == nil {
		return "", errExportDisabled
	}
	title := strings.TrimSpace(in.Title)
	if title == "" {
		title = defaultExportTitle
	}

	g.logger.Info("tool called", "tool", call.Name, "title", title, "content_chars", len(in.Content))
	url, err := g.exporter.Export(ctx, title, in.Content)
	if err != nil {
		return "", err
	}
	b, err := json.Marshal(exportOutput{DocURL: url})
	if err != nil {
		return "", err
	}
	return string(b), nil
}
