package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/vango-go/poppy/pkg/gateway/config"
	gatewayserver "github.com/vango-go/poppy/pkg/gateway/server"
	"github.com/vango-go/poppy/pkg/store/memory"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func baseConfig() config.Config {
	return config.Config{
		Addr:                          "127.0.0.1:0",
		AuthMode:                      config.AuthModeDisabled,
		DefaultProvider:               "claude",
		AnthropicAPIKey:               "sk-ant-test",
		MaxBodyBytes:                  1 << 20,
		MaxMessages:                   50,
		CORSAllowedOrigins:            map[string]struct{}{},
		ClerkAuthorizedParties:        map[string]struct{}{},
		UpstreamConnectTimeout:        time.Second,
		UpstreamResponseHeaderTimeout: time.Second,
		ReadHeaderTimeout:             time.Second,
		ReadTimeout:                   time.Second,
		HandlerTimeout:                time.Second,
		ShutdownGracePeriod:           time.Second,
	}
}

func TestRunMain_ReturnsNonZeroWhenConfigLoadFails(t *testing.T) {
	t.Parallel()

	var stderr bytes.Buffer
	exitCode := runMain(context.Background(), &stderr, serverDeps{
		loadConfig: func() (config.Config, error) {
			return config.Config{}, errors.New("boom")
		},
		buildBackends: func(context.Context, config.Config, *slog.Logger) (gatewayserver.Dependencies, func(), error) {
			t.Fatalf("buildBackends should not be called when config load fails")
			return gatewayserver.Dependencies{}, nil, nil
		},
		signalNotify: func(c chan<- os.Signal, sig ...os.Signal) {},
		signalStop:   func(c chan<- os.Signal) {},
	})

	if exitCode != 1 {
		t.Fatalf("exitCode=%d, want 1", exitCode)
	}
	if got := stderr.String(); !strings.Contains(got, "poppy-server: load config: boom") {
		t.Fatalf("stderr=%q", got)
	}
}

func TestRunMain_ClosesBackendsWhenBuildFails(t *testing.T) {
	t.Parallel()

	closed := false
	var stderr bytes.Buffer
	exitCode := runMain(context.Background(), &stderr, serverDeps{
		loadConfig: func() (config.Config, error) { return baseConfig(), nil },
		buildBackends: func(context.Context, config.Config, *slog.Logger) (gatewayserver.Dependencies, func(), error) {
			return gatewayserver.Dependencies{}, func() { closed = true }, errors.New("redis down")
		},
		signalNotify: func(c chan<- os.Signal, sig ...os.Signal) {},
		signalStop:   func(c chan<- os.Signal) {},
	})

	if exitCode != 1 {
		t.Fatalf("exitCode=%d, want 1", exitCode)
	}
	if !closed {
		t.Fatal("close func was not called")
	}
	if got := stderr.String(); !strings.Contains(got, "build backends: redis down") {
		t.Fatalf("stderr=%q", got)
	}
}

func TestRunServer_MissingDependencies(t *testing.T) {
	t.Parallel()

	if err := runServer(context.Background(), discardLogger(), serverDeps{}); err == nil {
		t.Fatal("expected error for missing dependencies")
	}
}

func TestBuildHTTPServer_UsesConfiguredAddress(t *testing.T) {
	t.Parallel()

	cfg := config.Config{
		Addr:              "127.0.0.1:9999",
		ReadHeaderTimeout: 2 * time.Second,
		ReadTimeout:       3 * time.Second,
	}

	srv := buildHTTPServer(cfg, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	if srv.Addr != cfg.Addr {
		t.Fatalf("Addr=%q, want %q", srv.Addr, cfg.Addr)
	}
	if srv.ReadHeaderTimeout != cfg.ReadHeaderTimeout {
		t.Fatalf("ReadHeaderTimeout=%v, want %v", srv.ReadHeaderTimeout, cfg.ReadHeaderTimeout)
	}
	if srv.ReadTimeout != cfg.ReadTimeout {
		t.Fatalf("ReadTimeout=%v, want %v", srv.ReadTimeout, cfg.ReadTimeout)
	}
}

func TestBuildBackends_InMemoryDefaults(t *testing.T) {
	t.Parallel()

	deps, closeFn, err := buildBackends(context.Background(), baseConfig(), discardLogger())
	if err != nil {
		t.Fatalf("buildBackends err=%v", err)
	}
	defer closeFn()

	if deps.Replies == nil {
		t.Fatal("Replies is nil")
	}
	if deps.Links == nil {
		t.Fatal("Links is nil")
	}
	if _, ok := deps.Boards.(*memory.Boards); !ok {
		t.Fatalf("Boards=%T, want *memory.Boards", deps.Boards)
	}
	if _, ok := deps.Chats.(*memory.Chats); !ok {
		t.Fatalf("Chats=%T, want *memory.Chats", deps.Chats)
	}
	if deps.Verifier != nil || deps.STT != nil || deps.TTS != nil || deps.Exporter != nil {
		t.Fatalf("unexpected optional backends: %+v", deps)
	}
}

func TestBuildBackends_SpeechAndExport(t *testing.T) {
	t.Parallel()

	cfg := baseConfig()
	cfg.ElevenLabsAPIKey = "el-key"
	cfg.ElevenLabsVoiceID = "voice-1"
	cfg.ElevenLabsStability = 0.5
	cfg.CartesiaAPIKey = "ct-key"
	cfg.GoogleClientID = "id"
	cfg.GoogleClientSecret = "secret"
	cfg.GoogleRedirectURL = "http://localhost/callback"
	cfg.GoogleRefreshToken = "refresh"

	deps, closeFn, err := buildBackends(context.Background(), cfg, discardLogger())
	if err != nil {
		t.Fatalf("buildBackends err=%v", err)
	}
	defer closeFn()

	if deps.TTS == nil || deps.STT == nil || deps.Exporter == nil {
		t.Fatalf("tts=%v stt=%v exporter=%v", deps.TTS, deps.STT, deps.Exporter)
	}
	if deps.TTSOptions.Voice != "voice-1" || deps.TTSOptions.Stability != 0.5 || deps.TTSOptions.Format != "mp3" {
		t.Fatalf("TTSOptions=%+v", deps.TTSOptions)
	}
}

func TestBuildBackends_InvalidClerkKey(t *testing.T) {
	t.Parallel()

	cfg := baseConfig()
	cfg.ClerkJWTKey = "not a pem"

	_, closeFn, err := buildBackends(context.Background(), cfg, discardLogger())
	if closeFn != nil {
		closeFn()
	}
	if err == nil {
		t.Fatal("expected error for invalid clerk key")
	}
}

func TestGatewayHandlerStack_Smoke(t *testing.T) {
	t.Parallel()

	deps, closeFn, err := buildBackends(context.Background(), baseConfig(), discardLogger())
	if err != nil {
		t.Fatalf("buildBackends err=%v", err)
	}
	defer closeFn()

	gw := gatewayserver.New(baseConfig(), deps)
	ts := httptest.NewServer(gw.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d, want 200", resp.StatusCode)
	}
	if got := resp.Header.Get("X-Request-ID"); got == "" {
		t.Fatal("missing X-Request-ID header")
	}
}
