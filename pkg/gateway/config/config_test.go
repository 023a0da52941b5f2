package config

import (
	"strings"
	"testing"
	"time"
)

var gatewayEnvKeys = []string{
	"POPPY_ADDR",
	"POPPY_AUTH_MODE",
	"POPPY_CLERK_JWT_KEY",
	"POPPY_CLERK_AUTHORIZED_PARTIES",
	"POPPY_TRUST_PROXY_HEADERS",
	"POPPY_CORS_ORIGINS",
	"POPPY_MAX_BODY_BYTES",
	"POPPY_MAX_MESSAGES",
	"POPPY_OPENAI_API_KEY",
	"POPPY_OPENAI_BASE_URL",
	"POPPY_OPENAI_MODEL",
	"POPPY_ANTHROPIC_API_KEY",
	"POPPY_ANTHROPIC_BASE_URL",
	"POPPY_ANTHROPIC_MODEL",
	"POPPY_DEFAULT_PROVIDER",
	"POPPY_REPLY_TIMEOUT",
	"POPPY_REPLY_MAX_STEPS",
	"POPPY_REPLY_MAX_TOKENS",
	"POPPY_ELEVENLABS_API_KEY",
	"POPPY_ELEVENLABS_VOICE_ID",
	"POPPY_ELEVENLABS_MODEL",
	"POPPY_ELEVENLABS_BASE_URL",
	"POPPY_ELEVENLABS_STABILITY",
	"POPPY_ELEVENLABS_SIMILARITY_BOOST",
	"POPPY_CARTESIA_API_KEY",
	"POPPY_CARTESIA_WS_URL",
	"POPPY_SPEECH_LOCALE",
	"POPPY_FIRESTORE_PROJECT",
	"POPPY_BOARDS_COLLECTION",
	"POPPY_POSTGRES_DSN",
	"POPPY_MIGRATE_ON_START",
	"POPPY_REDIS_URL",
	"POPPY_LINK_CACHE_TTL",
	"POPPY_LINK_FETCH_TIMEOUT",
	"POPPY_NOEMBED_URL",
	"POPPY_YOUTUBE_TIMEDTEXT_URL",
	"POPPY_GOOGLE_CLIENT_ID",
	"POPPY_GOOGLE_CLIENT_SECRET",
	"POPPY_GOOGLE_REDIRECT_URI",
	"POPPY_GOOGLE_REFRESH_TOKEN",
	"POPPY_WS_MAX_DURATION",
	"POPPY_WS_MAX_SESSIONS_PER_PRINCIPAL",
	"POPPY_LIVE_MAX_AUDIO_FRAME_BYTES",
	"POPPY_LIVE_MAX_JSON_MESSAGE_BYTES",
	"POPPY_LIVE_MAX_AUDIO_FPS",
	"POPPY_LIVE_MAX_AUDIO_BPS",
	"POPPY_LIVE_INBOUND_BURST_SECONDS",
	"POPPY_LIVE_METADATA_WAIT",
	"POPPY_LIVE_PLAYBACK_START_TIMEOUT",
	"POPPY_LIVE_FRAME_INTERVAL",
	"POPPY_LIVE_WS_PING_INTERVAL",
	"POPPY_LIVE_WS_WRITE_TIMEOUT",
	"POPPY_LIVE_WS_READ_TIMEOUT",
	"POPPY_LIVE_HANDSHAKE_TIMEOUT",
	"POPPY_RATE_LIMIT_RPS",
	"POPPY_RATE_LIMIT_BURST",
	"POPPY_MAX_CONCURRENT_REQUESTS",
	"POPPY_READ_HEADER_TIMEOUT",
	"POPPY_READ_TIMEOUT",
	"POPPY_TOTAL_REQUEST_TIMEOUT",
	"POPPY_SHUTDOWN_GRACE_PERIOD",
	"POPPY_CONNECT_TIMEOUT",
	"POPPY_RESPONSE_HEADER_TIMEOUT",
	"OPENAI_API_KEY",
	"ANTHROPIC_API_KEY",
	"ELEVENLABS_API_KEY",
	"ELEVENLABS_VOICE_ID",
	"CARTESIA_API_KEY",
	"GOOGLE_CLIENT_ID",
	"GOOGLE_CLIENT_SECRET",
	"GOOGLE_REDIRECT_URI",
	"GOOGLE_REFRESH_TOKEN",
}

const testPEM = "-----BEGIN PUBLIC KEY-----\\nMIIB\\n-----END PUBLIC KEY-----"

func clearGatewayEnv(t *testing.T) {
	t.Helper()
	for _, key := range gatewayEnvKeys {
		t.Setenv(key, "")
	}
}

func TestLoadFromEnv_Defaults(t *testing.T) {
	clearGatewayEnv(t)
	t.Setenv("POPPY_CLERK_JWT_KEY", testPEM)

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() error = %v", err)
	}

	if cfg.Addr != ":8080" {
		t.Fatalf("Addr = %q, want :8080", cfg.Addr)
	}
	if cfg.AuthMode != AuthModeRequired {
		t.Fatalf("AuthMode = %q, want %q", cfg.AuthMode, AuthModeRequired)
	}
	if !strings.Contains(cfg.ClerkJWTKey, "\nMIIB\n") {
		t.Fatalf("ClerkJWTKey = %q, expected escaped newlines to be expanded", cfg.ClerkJWTKey)
	}
	if cfg.MaxBodyBytes != 2<<20 {
		t.Fatalf("MaxBodyBytes = %d, want %d", cfg.MaxBodyBytes, int64(2<<20))
	}
	if cfg.TrustProxyHeaders {
		t.Fatalf("TrustProxyHeaders = true, want false")
	}
	if cfg.MaxMessages != 200 {
		t.Fatalf("MaxMessages = %d, want 200", cfg.MaxMessages)
	}
	if cfg.OpenAIModel != "gpt-4.1-mini" {
		t.Fatalf("OpenAIModel = %q", cfg.OpenAIModel)
	}
	if cfg.AnthropicModel != "claude-sonnet-4-20250514" {
		t.Fatalf("AnthropicModel = %q", cfg.AnthropicModel)
	}
	if cfg.DefaultProvider != "claude" {
		t.Fatalf("DefaultProvider = %q, want claude", cfg.DefaultProvider)
	}
	if cfg.ReplyMaxSteps != 3 {
		t.Fatalf("ReplyMaxSteps = %d, want 3", cfg.ReplyMaxSteps)
	}
	if cfg.ElevenLabsModel != "eleven_multilingual_v2" {
		t.Fatalf("ElevenLabsModel = %q", cfg.ElevenLabsModel)
	}
	if cfg.ElevenLabsStability != 0.4 || cfg.ElevenLabsSimilarityBoost != 0.9 {
		t.Fatalf("voice settings = %v/%v, want 0.4/0.9", cfg.ElevenLabsStability, cfg.ElevenLabsSimilarityBoost)
	}
	if cfg.BoardsCollection != "boards" {
		t.Fatalf("BoardsCollection = %q, want boards", cfg.BoardsCollection)
	}
	if !cfg.MigrateOnStart {
		t.Fatalf("MigrateOnStart = false, want true")
	}
	if cfg.LinkCacheTTL != 24*time.Hour {
		t.Fatalf("LinkCacheTTL = %v, want 24h", cfg.LinkCacheTTL)
	}
	if cfg.LinkFetchTimeout != 8*time.Second {
		t.Fatalf("LinkFetchTimeout = %v, want 8s", cfg.LinkFetchTimeout)
	}
	if cfg.GoogleDocsConfigured() {
		t.Fatalf("GoogleDocsConfigured() = true with no credentials")
	}
	if cfg.WSMaxSessionDuration != 2*time.Hour {
		t.Fatalf("WSMaxSessionDuration = %v, want 2h", cfg.WSMaxSessionDuration)
	}
	if cfg.WSMaxSessionsPerPrincipal != 2 {
		t.Fatalf("WSMaxSessionsPerPrincipal = %d, want 2", cfg.WSMaxSessionsPerPrincipal)
	}
	if cfg.LiveMaxAudioFrameBytes != 8192 {
		t.Fatalf("LiveMaxAudioFrameBytes = %d, want 8192", cfg.LiveMaxAudioFrameBytes)
	}
	if cfg.LiveMaxJSONMessageBytes != 512*1024 {
		t.Fatalf("LiveMaxJSONMessageBytes = %d, want %d", cfg.LiveMaxJSONMessageBytes, 512*1024)
	}
	if cfg.LiveMaxAudioFPS != 120 {
		t.Fatalf("LiveMaxAudioFPS = %d, want 120", cfg.LiveMaxAudioFPS)
	}
	if cfg.LiveInboundBurstSeconds != 2 {
		t.Fatalf("LiveInboundBurstSeconds = %d, want 2", cfg.LiveInboundBurstSeconds)
	}
	if cfg.LiveMetadataWait != 300*time.Millisecond {
		t.Fatalf("LiveMetadataWait = %v, want 300ms", cfg.LiveMetadataWait)
	}
	if cfg.LivePlaybackStartTimeout != 3*time.Second {
		t.Fatalf("LivePlaybackStartTimeout = %v, want 3s", cfg.LivePlaybackStartTimeout)
	}
	if cfg.LiveFrameInterval != 16*time.Millisecond {
		t.Fatalf("LiveFrameInterval = %v, want 16ms", cfg.LiveFrameInterval)
	}
	if cfg.LiveWSPingInterval != 20*time.Second {
		t.Fatalf("LiveWSPingInterval = %v, want 20s", cfg.LiveWSPingInterval)
	}
	if cfg.LiveWSReadTimeout != 0 {
		t.Fatalf("LiveWSReadTimeout = %v, want 0", cfg.LiveWSReadTimeout)
	}
	if cfg.LiveHandshakeTimeout != 5*time.Second {
		t.Fatalf("LiveHandshakeTimeout = %v, want 5s", cfg.LiveHandshakeTimeout)
	}
	if cfg.HandlerTimeout != 2*time.Minute {
		t.Fatalf("HandlerTimeout = %v, want 2m", cfg.HandlerTimeout)
	}
	if cfg.ShutdownGracePeriod != 30*time.Second {
		t.Fatalf("ShutdownGracePeriod = %v, want 30s", cfg.ShutdownGracePeriod)
	}
}

func TestLoadFromEnv_Overrides(t *testing.T) {
	clearGatewayEnv(t)
	t.Setenv("POPPY_ADDR", ":9090")
	t.Setenv("POPPY_AUTH_MODE", "optional")
	t.Setenv("POPPY_CLERK_AUTHORIZED_PARTIES", "https://app.example, https://admin.example")
	t.Setenv("POPPY_TRUST_PROXY_HEADERS", "true")
	t.Setenv("POPPY_CORS_ORIGINS", "https://a.example,https://b.example")
	t.Setenv("POPPY_MAX_BODY_BYTES", "12345")
	t.Setenv("POPPY_MAX_MESSAGES", "11")
	t.Setenv("POPPY_DEFAULT_PROVIDER", "OpenAI")
	t.Setenv("POPPY_REPLY_MAX_STEPS", "5")
	t.Setenv("POPPY_ELEVENLABS_STABILITY", "0.25")
	t.Setenv("POPPY_MIGRATE_ON_START", "off")
	t.Setenv("POPPY_LINK_CACHE_TTL", "1h")
	t.Setenv("POPPY_WS_MAX_SESSIONS_PER_PRINCIPAL", "5")
	t.Setenv("POPPY_LIVE_METADATA_WAIT", "450ms")
	t.Setenv("POPPY_LIVE_WS_READ_TIMEOUT", "4s")
	t.Setenv("POPPY_RATE_LIMIT_RPS", "3.5")
	t.Setenv("POPPY_RATE_LIMIT_BURST", "8")
	t.Setenv("POPPY_MAX_CONCURRENT_REQUESTS", "44")
	t.Setenv("POPPY_SHUTDOWN_GRACE_PERIOD", "31s")
	t.Setenv("OPENAI_API_KEY", "sk-fallback")
	t.Setenv("GOOGLE_CLIENT_ID", "id")
	t.Setenv("GOOGLE_CLIENT_SECRET", "secret")
	t.Setenv("GOOGLE_REDIRECT_URI", "https://app.example/cb")
	t.Setenv("POPPY_GOOGLE_REFRESH_TOKEN", "refresh")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() error = %v", err)
	}

	if cfg.Addr != ":9090" || cfg.AuthMode != AuthModeOptional {
		t.Fatalf("Addr/AuthMode = %q/%q", cfg.Addr, cfg.AuthMode)
	}
	if len(cfg.ClerkAuthorizedParties) != 2 {
		t.Fatalf("ClerkAuthorizedParties len=%d, want 2", len(cfg.ClerkAuthorizedParties))
	}
	if _, ok := cfg.ClerkAuthorizedParties["https://admin.example"]; !ok {
		t.Fatalf("missing https://admin.example")
	}
	if !cfg.TrustProxyHeaders {
		t.Fatalf("TrustProxyHeaders = false, want true")
	}
	if len(cfg.CORSAllowedOrigins) != 2 {
		t.Fatalf("CORSAllowedOrigins len=%d, want 2", len(cfg.CORSAllowedOrigins))
	}
	if cfg.MaxBodyBytes != 12345 || cfg.MaxMessages != 11 {
		t.Fatalf("body limits mismatch: %d/%d", cfg.MaxBodyBytes, cfg.MaxMessages)
	}
	if cfg.DefaultProvider != "openai" || cfg.ReplyMaxSteps != 5 {
		t.Fatalf("reply settings mismatch: %q/%d", cfg.DefaultProvider, cfg.ReplyMaxSteps)
	}
	if cfg.OpenAIAPIKey != "sk-fallback" {
		t.Fatalf("OpenAIAPIKey = %q, want unprefixed fallback", cfg.OpenAIAPIKey)
	}
	if cfg.ElevenLabsStability != 0.25 {
		t.Fatalf("ElevenLabsStability = %v, want 0.25", cfg.ElevenLabsStability)
	}
	if cfg.MigrateOnStart {
		t.Fatalf("MigrateOnStart = true, want false")
	}
	if cfg.LinkCacheTTL != time.Hour {
		t.Fatalf("LinkCacheTTL = %v, want 1h", cfg.LinkCacheTTL)
	}
	if cfg.WSMaxSessionsPerPrincipal != 5 {
		t.Fatalf("WSMaxSessionsPerPrincipal = %d, want 5", cfg.WSMaxSessionsPerPrincipal)
	}
	if cfg.LiveMetadataWait != 450*time.Millisecond || cfg.LiveWSReadTimeout != 4*time.Second {
		t.Fatalf("live timing mismatch: %v/%v", cfg.LiveMetadataWait, cfg.LiveWSReadTimeout)
	}
	if cfg.LimitRPS != 3.5 || cfg.LimitBurst != 8 || cfg.LimitMaxConcurrentRequests != 44 {
		t.Fatalf("rate/concurrency mismatch: %v/%d/%d", cfg.LimitRPS, cfg.LimitBurst, cfg.LimitMaxConcurrentRequests)
	}
	if cfg.ShutdownGracePeriod != 31*time.Second {
		t.Fatalf("ShutdownGracePeriod = %v, want 31s", cfg.ShutdownGracePeriod)
	}
	if !cfg.GoogleDocsConfigured() {
		t.Fatalf("GoogleDocsConfigured() = false, want true")
	}
}

func TestLoadFromEnv_RequiredAuthNeedsClerkKey(t *testing.T) {
	clearGatewayEnv(t)
	t.Setenv("POPPY_AUTH_MODE", "required")

	_, err := LoadFromEnv()
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "POPPY_CLERK_JWT_KEY") {
		t.Fatalf("error = %v, expected POPPY_CLERK_JWT_KEY in message", err)
	}
}

func TestLoadFromEnv_InvalidValues(t *testing.T) {
	cases := []struct {
		name      string
		env       map[string]string
		errSubstr string
	}{
		{
			name:      "unknown auth mode",
			env:       map[string]string{"POPPY_AUTH_MODE": "sometimes"},
			errSubstr: "POPPY_AUTH_MODE",
		},
		{
			name: "unknown provider",
			env: map[string]string{
				"POPPY_AUTH_MODE":        "disabled",
				"POPPY_DEFAULT_PROVIDER": "gemini",
			},
			errSubstr: "POPPY_DEFAULT_PROVIDER",
		},
		{
			name: "stability out of range",
			env: map[string]string{
				"POPPY_AUTH_MODE":            "disabled",
				"POPPY_ELEVENLABS_STABILITY": "1.5",
			},
			errSubstr: "POPPY_ELEVENLABS_STABILITY",
		},
		{
			name: "zero link cache ttl",
			env: map[string]string{
				"POPPY_AUTH_MODE":      "disabled",
				"POPPY_LINK_CACHE_TTL": "0s",
			},
			errSubstr: "POPPY_LINK_CACHE_TTL",
		},
		{
			name: "zero ws sessions",
			env: map[string]string{
				"POPPY_AUTH_MODE":                     "disabled",
				"POPPY_WS_MAX_SESSIONS_PER_PRINCIPAL": "0",
			},
			errSubstr: "POPPY_WS_MAX_SESSIONS_PER_PRINCIPAL",
		},
		{
			name: "zero metadata wait",
			env: map[string]string{
				"POPPY_AUTH_MODE":          "disabled",
				"POPPY_LIVE_METADATA_WAIT": "0s",
			},
			errSubstr: "POPPY_LIVE_METADATA_WAIT",
		},
		{
			name: "negative live max audio fps",
			env: map[string]string{
				"POPPY_AUTH_MODE":          "disabled",
				"POPPY_LIVE_MAX_AUDIO_FPS": "-1",
			},
			errSubstr: "POPPY_LIVE_MAX_AUDIO_FPS",
		},
		{
			name: "burst seconds required when limits enabled",
			env: map[string]string{
				"POPPY_AUTH_MODE":                  "disabled",
				"POPPY_LIVE_MAX_AUDIO_FPS":         "10",
				"POPPY_LIVE_INBOUND_BURST_SECONDS": "0",
			},
			errSubstr: "POPPY_LIVE_INBOUND_BURST_SECONDS",
		},
		{
			name: "zero shutdown grace period",
			env: map[string]string{
				"POPPY_AUTH_MODE":             "disabled",
				"POPPY_SHUTDOWN_GRACE_PERIOD": "0s",
			},
			errSubstr: "POPPY_SHUTDOWN_GRACE_PERIOD",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			clearGatewayEnv(t)
			for key, value := range tc.env {
				t.Setenv(key, value)
			}
			_, err := LoadFromEnv()
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tc.errSubstr) {
				t.Fatalf("error = %v, expected substring %q", err, tc.errSubstr)
			}
		})
	}
}
