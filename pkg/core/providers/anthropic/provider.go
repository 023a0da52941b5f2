// Package anthropic implements the Anthropic Messages API as a chat backend.
package anthropic

import (
	"context"
	"net/http"

	"github.com/vango-go/poppy/pkg/core/types"
)

const (
	// DefaultBaseURL is the default Anthropic API endpoint.
	DefaultBaseURL = "https://api.anthropic.com"

	// APIVersion is the required Anthropic API version header.
	APIVersion = "2023-06-01"

	// DefaultModel answers turns when the request names no model.
	DefaultModel = "claude-sonnet-4-20250514"

	// DefaultMaxTokens is the default max tokens if not specified.
	DefaultMaxTokens = 4096
)

// Option configures the Anthropic provider.
type Option func(*Provider)

// WithBaseURL sets a custom base URL (for testing or proxying).
func WithBaseURL(url string) Option {
	return func(p *Provider) {
		p.baseURL = url
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(p *Provider) {
		if client != nil {
			p.httpClient = client
		}
	}
}

// Provider implements the Anthropic Messages API.
type Provider struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// New creates a new Anthropic provider.
func New(apiKey string, opts ...Option) *Provider {
	p := &Provider{
		apiKey:     apiKey,
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name returns the provider identifier.
func (p *Provider) Name() string {
	return "anthropic"
}

// CreateMessage sends a non-streaming request to Anthropic.
func (p *Provider) CreateMessage(ctx context.Context, req *types.ChatRequest) (*types.ChatResponse, error) {
	anthReq := buildRequest(req)

	respBody, err := p.doRequest(ctx, anthReq)
	if err != nil {
		return nil, err
	}

	return parseResponse(respBody)
}
