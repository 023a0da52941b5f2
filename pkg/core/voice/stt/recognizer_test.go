package stt

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vango-go/poppy/pkg/core/capture"
)

type fakeCartesia struct {
	mu       sync.Mutex
	query    map[string]string
	apiKey   string
	received int
}

func (f *fakeCartesia) handler(t *testing.T) http.HandlerFunc {
	upgrader := websocket.Upgrader{}
	return func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.apiKey = r.Header.Get("X-API-Key")
		f.query = map[string]string{
			"language":    r.URL.Query().Get("language"),
			"encoding":    r.URL.Query().Get("encoding"),
			"sample_rate": r.URL.Query().Get("sample_rate"),
		}
		f.mu.Unlock()

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()
		for {
			mt, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			switch {
			case mt == websocket.BinaryMessage:
				f.mu.Lock()
				f.received += len(data)
				f.mu.Unlock()
				_ = conn.WriteJSON(map[string]any{"type": "transcript", "text": "partial", "is_final": false})
				_ = conn.WriteJSON(map[string]any{"type": "transcript", "text": " write me a hook ", "is_final": true})
			case string(data) == "finalize":
				_ = conn.WriteJSON(map[string]any{"type": "transcript", "text": "about coffee", "is_final": true})
				_ = conn.WriteJSON(map[string]any{"type": "flush_done"})
			case string(data) == "done":
				_ = conn.WriteJSON(map[string]any{"type": "done"})
				return
			}
		}
	}
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestRecognizer_DeliversFinalResultsBeforeStopReturns(t *testing.T) {
	fake := &fakeCartesia{}
	srv := httptest.NewServer(fake.handler(t))
	defer srv.Close()

	provider := NewCartesia("test-key").WithWSURL(wsURL(srv))
	rec := NewRecognizer(provider, TranscribeOptions{}, nil)
	c := capture.New(capture.Config{Locale: "en-US"}, capture.Dependencies{Recognizer: rec})

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := rec.Feed(make([]byte, 320)); err != nil {
		t.Fatalf("Feed: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for c.PendingTranscript() == "" && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	c.Stop()
	if got := c.PendingTranscript(); got != "write me a hook about coffee" {
		t.Fatalf("transcript = %q", got)
	}
	if c.IsListening() {
		t.Fatalf("expected listening=false after Stop")
	}

	fake.mu.Lock()
	defer fake.mu.Unlock()
	if fake.apiKey != "test-key" {
		t.Fatalf("api key header = %q", fake.apiKey)
	}
	if fake.query["language"] != "en" || fake.query["encoding"] != "pcm_s16le" || fake.query["sample_rate"] != "16000" {
		t.Fatalf("query = %v", fake.query)
	}
	if fake.received != 320 {
		t.Fatalf("received %d bytes, want 320", fake.received)
	}
}

func TestRecognizer_RemoteCloseEndsListening(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		_ = conn.WriteJSON(map[string]any{"type": "transcript", "text": "hello", "is_final": true})
		_ = conn.WriteJSON(map[string]any{"type": "done"})
		time.Sleep(50 * time.Millisecond)
		_ = conn.Close()
	}))
	defer srv.Close()

	rec := NewRecognizer(NewCartesia("k").WithWSURL(wsURL(srv)), TranscribeOptions{}, nil)
	c := capture.New(capture.Config{}, capture.Dependencies{Recognizer: rec})
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for c.IsListening() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if c.IsListening() {
		t.Fatalf("expected natural end to stop listening")
	}
	if got := c.PendingTranscript(); got != "hello" {
		t.Fatalf("transcript = %q, want kept after end", got)
	}
}

func TestLanguageFromLocale(t *testing.T) {
	tests := map[string]string{"en-US": "en", "pt_BR": "pt", "": "en", "FR": "fr"}
	for in, want := range tests {
		if got := languageFromLocale(in); got != want {
			t.Fatalf("languageFromLocale(%q) = %q, want %q", in, got, want)
		}
	}
}
