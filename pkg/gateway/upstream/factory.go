package upstream

import (
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/vango-go/poppy/pkg/core"
	"github.com/vango-go/poppy/pkg/core/providers/anthropic"
	"github.com/vango-go/poppy/pkg/core/providers/openai"
	"github.com/vango-go/poppy/pkg/core/types"
)

// NewHTTPClient returns the client shared by every outbound integration.
func NewHTTPClient(connectTimeout, responseHeaderTimeout time.Duration) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{
		Timeout:   connectTimeout,
		KeepAlive: 30 * time.Second,
	}).DialContext
	transport.TLSHandshakeTimeout = connectTimeout
	transport.ResponseHeaderTimeout = responseHeaderTimeout
	return &http.Client{Transport: transport}
}

// Credentials configures one model backend. An empty APIKey skips it.
type Credentials struct {
	APIKey  string
	BaseURL string
}

type Factory struct {
	HTTPClient *http.Client
}

func (f Factory) New(provider types.Provider, creds Credentials) (core.Provider, error) {
	client := f.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	base := strings.TrimSpace(creds.BaseURL)

	switch provider {
	case types.ProviderClaude:
		opts := []anthropic.Option{anthropic.WithHTTPClient(client)}
		if base != "" {
			opts = append(opts, anthropic.WithBaseURL(base))
		}
		return anthropic.New(creds.APIKey, opts...), nil
	case types.ProviderOpenAI:
		opts := []openai.Option{openai.WithHTTPClient(client)}
		if base != "" {
			opts = append(opts, openai.WithBaseURL(base))
		}
		return openai.New(creds.APIKey, opts...), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", provider)
	}
}

// Registry builds a registry holding a backend for every provider with a key.
func (f Factory) Registry(creds map[types.Provider]Credentials) (*core.ProviderRegistry, error) {
	reg := core.NewProviderRegistry()
	for provider, c := range creds {
		if strings.TrimSpace(c.APIKey) == "" {
			continue
		}
		p, err := f.New(provider, c)
		if err != nil {
			return nil, err
		}
		reg.Register(provider, p)
	}
	return reg, nil
}
