package handlers

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"

	"github.com/vango-go/poppy/pkg/core/reply"
	"github.com/vango-go/poppy/pkg/core/types"
	"github.com/vango-go/poppy/pkg/store/memory"
)

type fakeReplier struct {
	mu       sync.Mutex
	reply    string
	summary  string
	err      error
	history  []types.Message
	provider types.Provider
	rc       types.ReferenceContext
}

func (f *fakeReplier) Reply(_ context.Context, history []types.Message, provider types.Provider, rc types.ReferenceContext) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.history, f.provider, f.rc = history, provider, rc
	return f.reply, f.err
}

func (f *fakeReplier) Summarize(_ context.Context, history []types.Message, provider types.Provider) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.history, f.provider = history, provider
	return f.summary, f.err
}

func TestChatHandler_RepliesWithLooseContent(t *testing.T) {
	rep := &fakeReplier{reply: "Here are three hooks"}
	h := ChatHandler{Config: testConfig(), Replies: rep}

	rr := serve(h, newJSONRequest(http.MethodPost, "/v1/chat", `{
		"messages":[{"role":"user","content":"help me with hooks"}],
		"provider":"openai",
		"contentLinks":["https://example.com/a"],
		"contentDocs":[{"name":"notes","text":"brand voice"},{"name":"blank","text":"   "}]
	}`))
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
	resp := decodeJSON[chatResponse](t, rr)
	if resp.Reply != "Here are three hooks" {
		t.Fatalf("reply=%q", resp.Reply)
	}
	if rep.provider != types.ProviderOpenAI {
		t.Fatalf("provider=%q", rep.provider)
	}
	if len(rep.rc.Links) != 1 || len(rep.rc.Docs) != 1 || rep.rc.Docs[0].Name != "notes" {
		t.Fatalf("reference context=%+v", rep.rc)
	}
}

func TestChatHandler_DefaultsProvider(t *testing.T) {
	rep := &fakeReplier{reply: "ok"}
	h := ChatHandler{Config: testConfig(), Replies: rep}

	rr := serve(h, newJSONRequest(http.MethodPost, "/v1/chat", `{"messages":[]}`))
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
	if rep.provider != types.ProviderClaude {
		t.Fatalf("provider=%q", rep.provider)
	}
}

func TestChatHandler_ReplyFailureReturnsFallback(t *testing.T) {
	h := ChatHandler{Config: testConfig(), Replies: &fakeReplier{err: errors.New("upstream down")}}

	rr := serve(h, newJSONRequest(http.MethodPost, "/v1/chat", `{"messages":[{"role":"user","content":"hi"}]}`))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d", rr.Code)
	}
	if resp := decodeJSON[chatResponse](t, rr); resp.Reply != reply.ErrorFallback {
		t.Fatalf("reply=%q", resp.Reply)
	}
}

func TestChatHandler_RejectsBadInput(t *testing.T) {
	h := ChatHandler{Config: testConfig(), Replies: &fakeReplier{}}

	cases := map[string]string{
		"unknown provider": `{"provider":"gemini"}`,
		"bad role":         `{"messages":[{"role":"robot","content":"x"}]}`,
		"not json":         `{`,
		"empty body":       ``,
	}
	for name, body := range cases {
		rr := serve(h, newJSONRequest(http.MethodPost, "/v1/chat", body))
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("%s: status=%d body=%q", name, rr.Code, rr.Body.String())
		}
		if typ := errorType(t, rr); typ != "invalid_request_error" {
			t.Fatalf("%s: type=%q", name, typ)
		}
	}
}

func TestChatHandler_BoardIDsSelectBoardContent(t *testing.T) {
	boards := memory.NewBoards()
	b, err := boards.Create(context.Background(), "user_1", types.BoardInput{
		Title: "Launch",
		Links: []string{"https://example.com/launch"},
		Docs:  []types.ContentDoc{{Name: "brief", Text: "launch brief"}},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	rep := &fakeReplier{reply: "ok"}
	h := ChatHandler{Config: testConfig(), Replies: rep, Boards: boards}

	req := asUser(newJSONRequest(http.MethodPost, "/v1/chat", `{"boardIds":["`+b.ID+`"],"contentLinks":["https://loose.example"]}`), "user_1")
	rr := serve(h, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
	if len(rep.rc.Links) != 1 || rep.rc.Links[0] != "https://example.com/launch" {
		t.Fatalf("links=%v", rep.rc.Links)
	}
	if len(rep.rc.Docs) != 1 || rep.rc.Docs[0].Text != "launch brief" {
		t.Fatalf("docs=%v", rep.rc.Docs)
	}
}

func TestChatHandler_TooManyMessages(t *testing.T) {
	cfg := testConfig()
	cfg.MaxMessages = 1
	h := ChatHandler{Config: cfg, Replies: &fakeReplier{}}

	rr := serve(h, newJSONRequest(http.MethodPost, "/v1/chat", `{"messages":[{"role":"user","content":"a"},{"role":"assistant","content":"b"}]}`))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status=%d", rr.Code)
	}
}

func TestSummaryHandler(t *testing.T) {
	rep := &fakeReplier{summary: "## Goal\nShip it"}
	h := SummaryHandler{Config: testConfig(), Replies: rep}

	rr := serve(h, newJSONRequest(http.MethodPost, "/v1/summary", `{"messages":[{"role":"user","content":"plan"}],"provider":"claude"}`))
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
	if resp := decodeJSON[summaryResponse](t, rr); resp.Summary != "## Goal\nShip it" {
		t.Fatalf("summary=%q", resp.Summary)
	}

	rep.err = errors.New("boom")
	rr = serve(h, newJSONRequest(http.MethodPost, "/v1/summary", `{"messages":[]}`))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d", rr.Code)
	}
}

func TestSummaryHandler_MethodNotAllowed(t *testing.T) {
	h := SummaryHandler{Config: testConfig(), Replies: &fakeReplier{}}
	rr := serve(h, newJSONRequest(http.MethodGet, "/v1/summary", ""))
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status=%d", rr.Code)
	}
}
