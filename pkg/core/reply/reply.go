// Package reply produces Poppy's answers: it assembles the persona and reference context,
// calls the selected chat model and runs the Google Docs export tool when asked.
package reply

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/vango-go/poppy/pkg/core"
	"github.com/vango-go/poppy/pkg/core/types"
)

const (
	// DefaultStartMessage stands in for an empty history.
	DefaultStartMessage = "Hey Poppy! Help me get started."

	// ErrorFallback is returned to the user when the model call fails.
	ErrorFallback = "Poppy: Oof, something glitched on my side. Try asking me again in a sec? 💖"

	// EmptySummaryMessage stands in for an empty history when summarizing.
	EmptySummaryMessage = "There is no conversation; just give me a generic action plan template."

	DefaultClaudeModel = "claude-sonnet-4-20250514"
	DefaultOpenAIModel = "gpt-4.1-mini"

	DefaultMaxSteps = 3
)

// LinkSummarizer fetches titles, descriptions and transcripts for reference links. Links that
// could not be fetched are still returned with only the URL set.
type LinkSummarizer interface {
	Summarize(ctx context.Context, urls []string) []types.LinkSummary
}

// Exporter creates a document and returns its URL.
type Exporter interface {
	Export(ctx context.Context, title, content string) (string, error)
}

type Config struct {
	Models    map[types.Provider]string
	MaxSteps  int
	MaxTokens int
	Timeout   time.Duration
}

type Dependencies struct {
	Providers *core.ProviderRegistry
	Links     LinkSummarizer
	Exporter  Exporter
	Logger    *slog.Logger
}

// Generator answers conversation turns.
type Generator struct {
	cfg       Config
	providers *core.ProviderRegistry
	links     LinkSummarizer
	exporter  Exporter
	logger    *slog.Logger
}

func New(cfg Config, deps Dependencies) *Generator {
	models := map[types.Provider]string{
		types.ProviderClaude: DefaultClaudeModel,
		types.ProviderOpenAI: DefaultOpenAIModel,
	}
	for k, v := range cfg.Models {
		if v != "" {
			models[k] = v
		}
	}
	cfg.Models = models
	if cfg.MaxSteps <= 0 {
		cfg.MaxSteps = DefaultMaxSteps
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	providers := deps.Providers
	if providers == nil {
		providers = core.NewProviderRegistry()
	}
	return &Generator{
		cfg:       cfg,
		providers: providers,
		links:     deps.Links,
		exporter:  deps.Exporter,
		logger:    logger,
	}
}

// GenerateReply is Reply with failures folded into ErrorFallback.
func (g *Generator) GenerateReply(ctx context.Context, history []types.Message, provider types.Provider, rc types.ReferenceContext) string {
	text, err := g.Reply(ctx, history, provider, rc)
	if err != nil {
		g.logger.Error("reply generation failed", "provider", provider, "error", err)
		return ErrorFallback
	}
	return text
}

// Reply asks the provider's model for the next assistant message.
func (g *Generator) Reply(ctx context.Context, history []types.Message, provider types.Provider, rc types.ReferenceContext) (string, error) {
	if provider == "" {
		provider = types.DefaultProvider
	}
	backend, err := g.backend(provider)
	if err != nil {
		return "", err
	}
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	links := recentLinks(rc.Links)
	var summaries []types.LinkSummary
	if len(links) > 0 && g.links != nil {
		summaries = g.links.Summarize(ctx, links)
	}
	docs := recentDocs(rc.Docs)

	g.logger.Debug("generating reply",
		"provider", provider,
		"links", len(rc.Links),
		"docs", len(docs),
	)

	req := &types.ChatRequest{
		Model:     g.cfg.Models[provider],
		System:    buildSystem(summaries, rc.Links, docs),
		Messages:  types.ChatHistory(withDefault(history, DefaultStartMessage)),
		Tools:     []types.ToolDef{exportTool},
		MaxTokens: g.cfg.MaxTokens,
	}
	return g.runTools(ctx, backend, req)
}

// Summarize turns the conversation into a goal, action plan and next moves.
func (g *Generator) Summarize(ctx context.Context, history []types.Message, provider types.Provider) (string, error) {
	if provider == "" {
		provider = types.DefaultProvider
	}
	backend, err := g.backend(provider)
	if err != nil {
		return "", err
	}
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	resp, err := backend.CreateMessage(ctx, &types.ChatRequest{
		Model:     g.cfg.Models[provider],
		System:    SummaryPrompt,
		Messages:  types.ChatHistory(withDefault(history, EmptySummaryMessage)),
		MaxTokens: g.cfg.MaxTokens,
	})
	if err != nil {
		return "", core.NewProviderError(backend.Name(), err)
	}
	g.logger.Info("generated summary", "provider", provider, "chars", len(resp.Text))
	return resp.Text, nil
}

// runTools calls the model up to MaxSteps times, executing tool calls between steps. The text
// of the last step is the reply.
func (g *Generator) runTools(ctx context.Context, backend core.Provider, req *types.ChatRequest) (string, error) {
	for step := 1; ; step++ {
		resp, err := backend.CreateMessage(ctx, req)
		if err != nil {
			return "", core.NewProviderError(backend.Name(), err)
		}
		if len(resp.ToolCalls) == 0 || step >= g.cfg.MaxSteps {
			return resp.Text, nil
		}

		req.Messages = append(req.Messages, types.ChatMessage{
			Role:      types.RoleAssistant,
			Content:   resp.Text,
			ToolCalls: resp.ToolCalls,
		})
		results := make([]types.ToolResult, 0, len(resp.ToolCalls))
		for _, call := range resp.ToolCalls {
			results = append(results, g.executeTool(ctx, call))
		}
		req.Messages = append(req.Messages, types.ChatMessage{
			Role:        types.RoleUser,
			ToolResults: results,
		})
	}
}

func (g *Generator) backend(provider types.Provider) (core.Provider, error) {
	backend, ok := g.providers.Get(provider)
	if !ok {
		return nil, core.NewNotConfiguredError(fmt.Sprintf("provider %q", provider))
	}
	return backend, nil
}

func (g *Generator) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if g.cfg.Timeout > 0 {
		return context.WithTimeout(ctx, g.cfg.Timeout)
	}
	return context.WithCancel(ctx)
}

// withDefault keeps user and assistant turns and substitutes a single user message when none
// remain.
func withDefault(history []types.Message, fallback string) []types.Message {
	out := make([]types.Message, 0, len(history))
	for _, m := range history {
		if m.Role == types.RoleSystem || strings.TrimSpace(m.Content) == "" {
			continue
		}
		out = append(out, m)
	}
	if len(out) == 0 {
		return []types.Message{{Role: types.RoleUser, Content: fallback}}
	}
	return out
}
