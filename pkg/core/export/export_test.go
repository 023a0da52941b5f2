package export

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/vango-go/poppy/pkg/core/types"
)

func TestBuildHooksDocument_Empty(t *testing.T) {
	doc := BuildHooksDocument(nil)
	if doc.Title != "Poppy Content Hooks" {
		t.Fatalf("title = %q", doc.Title)
	}
	if !strings.HasPrefix(doc.Content, "# Poppy Content Hooks\n\n## Goal\n") {
		t.Fatalf("content = %q", doc.Content)
	}
	if !strings.Contains(doc.Content, "1. \"Hook 1\"\n2. \"Hook 2\"\n3. \"Hook 3\"") {
		t.Fatalf("missing template hooks: %q", doc.Content)
	}
}

func TestBuildHooksDocument_ParsesLatestHookReply(t *testing.T) {
	msgs := []types.Message{
		{Role: types.RoleUser, Content: `  I make "cozy"   baking videos  `},
		{Role: types.RoleAssistant, Content: "Hook 1: stale reply\nHook 2: also stale"},
		{Role: types.RoleUser, Content: "Give me\nhooks for   my cookie series"},
		{Role: types.RoleAssistant, Content: "1. \"Three cookies, one oven\"\n\n- 2) Why my dough rests overnight\n* ok\nHook 1 is my favorite"},
		{Role: types.RoleAssistant, Content: "Anything else?"},
	}
	doc := BuildHooksDocument(msgs)

	if doc.Title != "Content Hooks Inspired by I make cozy baking videos" {
		t.Fatalf("title = %q", doc.Title)
	}
	want := strings.Join([]string{
		"# Content Hooks Inspired by I make cozy baking videos",
		"",
		"## Goal",
		"Give me hooks for my cookie series",
		"",
		"## Hooks",
		"1. Three cookies, one oven",
		"2. Why my dough rests overnight",
		"3. Hook 1 is my favorite",
		"",
		"---",
		"",
		"Let me know if you want matching video titles, scripts, or social captions next!",
	}, "\n")
	if doc.Content != want {
		t.Fatalf("content =\n%s\nwant\n%s", doc.Content, want)
	}
}

func TestBuildHooksDocument_FallsBackToLastReply(t *testing.T) {
	msgs := []types.Message{
		{Role: types.RoleAssistant, Content: "ok"},
	}
	doc := BuildHooksDocument(msgs)
	if doc.Title != "Content Hooks Inspired by Your Brand" {
		t.Fatalf("title = %q", doc.Title)
	}
	if !strings.Contains(doc.Content, "## Goal\n"+defaultGoal+"\n") {
		t.Fatalf("goal missing: %q", doc.Content)
	}
	if !strings.Contains(doc.Content, "## Hooks\n1. ok\n") {
		t.Fatalf("hooks = %q", doc.Content)
	}
}

func TestBuildHooksDocument_TruncatesTitle(t *testing.T) {
	long := strings.Repeat("é", 70)
	doc := BuildHooksDocument([]types.Message{{Role: types.RoleUser, Content: long}})
	if want := "Content Hooks Inspired by " + strings.Repeat("é", 60) + "…"; doc.Title != want {
		t.Fatalf("title = %q", doc.Title)
	}
	if !strings.Contains(doc.Content, "1. "+defaultHook) {
		t.Fatalf("default hook missing: %q", doc.Content)
	}
}

func TestSafeFilename(t *testing.T) {
	cases := map[string]string{
		"Content Hooks Inspired by Baking!": "content-hooks-inspired-by-baking",
		"  --Already--Safe--  ":             "already-safe",
		"!!!":                               "poppy-hooks",
	}
	for in, want := range cases {
		if got := SafeFilename(in); got != want {
			t.Fatalf("SafeFilename(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestChatTitle(t *testing.T) {
	if got := ChatTitle(nil); got != "Chat notes" {
		t.Fatalf("empty = %q", got)
	}
	short := []types.Message{{Role: types.RoleAssistant, Content: "intro"}, {Role: types.RoleUser, Content: "  hi there  "}}
	if got := ChatTitle(short); got != "hi there" {
		t.Fatalf("short = %q", got)
	}
	long := []types.Message{{Role: types.RoleUser, Content: strings.Repeat("a", 45)}}
	if got := ChatTitle(long); got != strings.Repeat("a", 40)+"…" {
		t.Fatalf("long = %q", got)
	}
}

func TestGoogleDocs_Export(t *testing.T) {
	var created, inserted bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/v1/documents":
			var body struct {
				Title string `json:"title"`
			}
			json.NewDecoder(r.Body).Decode(&body)
			if body.Title != DefaultDocTitle {
				t.Errorf("title = %q", body.Title)
			}
			created = true
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"documentId":"doc-123","title":"Poppy Action Plan"}`))
		case r.Method == http.MethodPost && r.URL.Path == "/v1/documents/doc-123:batchUpdate":
			var body struct {
				Requests []struct {
					InsertText struct {
						Location struct {
							Index int `json:"index"`
						} `json:"location"`
						Text string `json:"text"`
					} `json:"insertText"`
				} `json:"requests"`
			}
			json.NewDecoder(r.Body).Decode(&body)
			if len(body.Requests) != 1 || body.Requests[0].InsertText.Location.Index != 1 || body.Requests[0].InsertText.Text != "# Plan" {
				t.Errorf("batch update = %+v", body)
			}
			inserted = true
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"documentId":"doc-123"}`))
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	g := NewGoogleDocs(GoogleDocsConfig{Endpoint: srv.URL + "/"}, GoogleDocsDependencies{HTTPClient: srv.Client()})
	url, err := g.Export(context.Background(), "  ", "# Plan")
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if url != "https://docs.google.com/document/d/doc-123/edit" {
		t.Fatalf("url = %q", url)
	}
	if !created || !inserted {
		t.Fatalf("created=%v inserted=%v", created, inserted)
	}
}

func TestGoogleDocs_NotConfigured(t *testing.T) {
	g := NewGoogleDocs(GoogleDocsConfig{ClientID: "id"}, GoogleDocsDependencies{})
	if g.Configured() {
		t.Fatalf("expected unconfigured")
	}
	if _, err := g.Export(context.Background(), "t", "body"); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("err = %v", err)
	}
	if _, err := g.Export(context.Background(), "t", ""); !errors.Is(err, ErrEmptyContent) {
		t.Fatalf("err = %v", err)
	}
}
