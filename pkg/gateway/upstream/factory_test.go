package upstream

import (
	"net/http"
	"testing"
	"time"

	"github.com/vango-go/poppy/pkg/core/types"
)

func TestFactoryNew_KnownProviders(t *testing.T) {
	f := Factory{}
	for provider, want := range map[types.Provider]string{
		types.ProviderClaude: "anthropic",
		types.ProviderOpenAI: "openai",
	} {
		p, err := f.New(provider, Credentials{APIKey: "k"})
		if err != nil {
			t.Fatalf("New(%q) err=%v", provider, err)
		}
		if p.Name() != want {
			t.Fatalf("New(%q).Name()=%q, want %q", provider, p.Name(), want)
		}
	}
}

func TestFactoryNew_Unknown(t *testing.T) {
	if _, err := (Factory{}).New("gemini", Credentials{APIKey: "k"}); err == nil {
		t.Fatal("expected error for unknown provider")
	}
}

func TestRegistry_SkipsMissingKeys(t *testing.T) {
	reg, err := Factory{}.Registry(map[types.Provider]Credentials{
		types.ProviderClaude: {APIKey: "sk-ant"},
		types.ProviderOpenAI: {APIKey: "  "},
	})
	if err != nil {
		t.Fatalf("Registry err=%v", err)
	}
	got := reg.List()
	if len(got) != 1 || got[0] != types.ProviderClaude {
		t.Fatalf("providers=%v", got)
	}
}

func TestNewHTTPClient_AppliesTimeouts(t *testing.T) {
	c := NewHTTPClient(2*time.Second, 7*time.Second)
	tr, ok := c.Transport.(*http.Transport)
	if !ok {
		t.Fatalf("transport type %T", c.Transport)
	}
	if tr.ResponseHeaderTimeout != 7*time.Second || tr.TLSHandshakeTimeout != 2*time.Second {
		t.Fatalf("header=%v tls=%v", tr.ResponseHeaderTimeout, tr.TLSHandshakeTimeout)
	}
}
