package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type AuthMode string

const (
	AuthModeRequired AuthMode = "required"
	AuthModeOptional AuthMode = "optional"
	AuthModeDisabled AuthMode = "disabled"
)

type Config struct {
	Addr string

	AuthMode AuthMode
	// PEM-encoded RSA public key used to verify Clerk session tokens.
	ClerkJWTKey string
	// Allowed values of the token's azp claim. Empty accepts any.
	ClerkAuthorizedParties map[string]struct{}

	// If true, client identity may be derived from proxy headers like X-Forwarded-For.
	// This should only be enabled when the server is deployed behind a trusted proxy/LB.
	TrustProxyHeaders bool

	MaxBodyBytes int64
	MaxMessages  int

	// Models
	OpenAIAPIKey     string
	OpenAIBaseURL    string
	OpenAIModel      string
	AnthropicAPIKey  string
	AnthropicBaseURL string
	AnthropicModel   string
	DefaultProvider  string
	ReplyTimeout     time.Duration
	ReplyMaxSteps    int
	ReplyMaxTokens   int

	// Voice
	ElevenLabsAPIKey          string
	ElevenLabsVoiceID         string
	ElevenLabsModel           string
	ElevenLabsBaseURL         string
	ElevenLabsStability       float64
	ElevenLabsSimilarityBoost float64
	CartesiaAPIKey            string
	CartesiaWSURL             string
	SpeechLocale              string

	// Storage
	FirestoreProject    string
	BoardsCollection    string
	PostgresDSN         string
	MigrateOnStart      bool
	RedisURL            string
	LinkCacheTTL        time.Duration
	LinkFetchTimeout    time.Duration
	NoEmbedURL          string
	YouTubeTimedTextURL string

	// Google Docs export
	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string
	GoogleRefreshToken string

	// CORS
	CORSAllowedOrigins map[string]struct{} // empty => disabled

	// Live WebSocket mode (/v1/live).
	WSMaxSessionDuration       time.Duration
	WSMaxSessionsPerPrincipal  int
	LiveMaxAudioFrameBytes     int
	LiveMaxJSONMessageBytes    int64
	LiveMaxAudioFPS            int
	LiveMaxAudioBytesPerSecond int64
	LiveInboundBurstSeconds    int
	LiveMetadataWait           time.Duration
	LivePlaybackStartTimeout   time.Duration
	LiveFrameInterval          time.Duration
	LiveWSPingInterval         time.Duration
	LiveWSWriteTimeout         time.Duration
	LiveWSReadTimeout          time.Duration
	LiveHandshakeTimeout       time.Duration

	// In-memory limits (per principal).
	LimitRPS                   float64
	LimitBurst                 int
	LimitMaxConcurrentRequests int

	// Operational defaults
	ReadHeaderTimeout   time.Duration
	ReadTimeout         time.Duration
	HandlerTimeout      time.Duration
	ShutdownGracePeriod time.Duration

	// Upstream HTTP client defaults
	UpstreamConnectTimeout        time.Duration
	UpstreamResponseHeaderTimeout time.Duration
}

func LoadFromEnv() (Config, error) {
	cfg := Config{
		Addr:                          envOr("POPPY_ADDR", ":8080"),
		AuthMode:                      AuthMode(envOr("POPPY_AUTH_MODE", string(AuthModeRequired))),
		ClerkJWTKey:                   pemFromEnv(os.Getenv("POPPY_CLERK_JWT_KEY")),
		ClerkAuthorizedParties:        make(map[string]struct{}),
		TrustProxyHeaders:             envBoolOr("POPPY_TRUST_PROXY_HEADERS", false),
		MaxBodyBytes:                  envInt64Or("POPPY_MAX_BODY_BYTES", 2<<20), // 2 MiB
		MaxMessages:                   envIntOr("POPPY_MAX_MESSAGES", 200),
		OpenAIAPIKey:                  envOr("POPPY_OPENAI_API_KEY", os.Getenv("OPENAI_API_KEY")),
		OpenAIBaseURL:                 envOr("POPPY_OPENAI_BASE_URL", "https://api.openai.com/v1"),
		OpenAIModel:                   envOr("POPPY_OPENAI_MODEL", "gpt-4.1-mini"),
		AnthropicAPIKey:               envOr("POPPY_ANTHROPIC_API_KEY", os.Getenv("ANTHROPIC_API_KEY")),
		AnthropicBaseURL:              envOr("POPPY_ANTHROPIC_BASE_URL", "https://api.anthropic.com"),
		AnthropicModel:                envOr("POPPY_ANTHROPIC_MODEL", "claude-sonnet-4-20250514"),
		DefaultProvider:               envOr("POPPY_DEFAULT_PROVIDER", "claude"),
		ReplyTimeout:                  envDurationOr("POPPY_REPLY_TIMEOUT", 60*time.Second),
		ReplyMaxSteps:                 envIntOr("POPPY_REPLY_MAX_STEPS", 3),
		ReplyMaxTokens:                envIntOr("POPPY_REPLY_MAX_TOKENS", 4096),
		ElevenLabsAPIKey:              envOr("POPPY_ELEVENLABS_API_KEY", os.Getenv("ELEVENLABS_API_KEY")),
		ElevenLabsVoiceID:             envOr("POPPY_ELEVENLABS_VOICE_ID", os.Getenv("ELEVENLABS_VOICE_ID")),
		ElevenLabsModel:               envOr("POPPY_ELEVENLABS_MODEL", "eleven_multilingual_v2"),
		ElevenLabsBaseURL:             envOr("POPPY_ELEVENLABS_BASE_URL", "https://api.elevenlabs.io"),
		ElevenLabsStability:           envFloat64Or("POPPY_ELEVENLABS_STABILITY", 0.4),
		ElevenLabsSimilarityBoost:     envFloat64Or("POPPY_ELEVENLABS_SIMILARITY_BOOST", 0.9),
		CartesiaAPIKey:                envOr("POPPY_CARTESIA_API_KEY", os.Getenv("CARTESIA_API_KEY")),
		CartesiaWSURL:                 envOr("POPPY_CARTESIA_WS_URL", "wss://api.cartesia.ai/stt/websocket"),
		SpeechLocale:                  envOr("POPPY_SPEECH_LOCALE", "en-US"),
		FirestoreProject:              envOr("POPPY_FIRESTORE_PROJECT", ""),
		BoardsCollection:              envOr("POPPY_BOARDS_COLLECTION", "boards"),
		PostgresDSN:                   envOr("POPPY_POSTGRES_DSN", ""),
		MigrateOnStart:                envBoolOr("POPPY_MIGRATE_ON_START", true),
		RedisURL:                      envOr("POPPY_REDIS_URL", ""),
		LinkCacheTTL:                  envDurationOr("POPPY_LINK_CACHE_TTL", 24*time.Hour),
		LinkFetchTimeout:              envDurationOr("POPPY_LINK_FETCH_TIMEOUT", 8*time.Second),
		NoEmbedURL:                    envOr("POPPY_NOEMBED_URL", "https://noembed.com/embed"),
		YouTubeTimedTextURL:           envOr("POPPY_YOUTUBE_TIMEDTEXT_URL", "https://video.google.com/timedtext"),
		GoogleClientID:                envOr("POPPY_GOOGLE_CLIENT_ID", os.Getenv("GOOGLE_CLIENT_ID")),
		GoogleClientSecret:            envOr("POPPY_GOOGLE_CLIENT_SECRET", os.Getenv("GOOGLE_CLIENT_SECRET")),
		GoogleRedirectURL:             envOr("POPPY_GOOGLE_REDIRECT_URI", os.Getenv("GOOGLE_REDIRECT_URI")),
		GoogleRefreshToken:            envOr("POPPY_GOOGLE_REFRESH_TOKEN", os.Getenv("GOOGLE_REFRESH_TOKEN")),
		CORSAllowedOrigins:            make(map[string]struct{}),
		WSMaxSessionDuration:          envDurationOr("POPPY_WS_MAX_DURATION", 2*time.Hour),
		WSMaxSessionsPerPrincipal:     envIntOr("POPPY_WS_MAX_SESSIONS_PER_PRINCIPAL", 2),
		LiveMaxAudioFrameBytes:        envIntOr("POPPY_LIVE_MAX_AUDIO_FRAME_BYTES", 8192),
		LiveMaxJSONMessageBytes:       envInt64Or("POPPY_LIVE_MAX_JSON_MESSAGE_BYTES", 512*1024),
		LiveMaxAudioFPS:               envIntOr("POPPY_LIVE_MAX_AUDIO_FPS", 120),
		LiveMaxAudioBytesPerSecond:    envInt64Or("POPPY_LIVE_MAX_AUDIO_BPS", 128*1024),
		LiveInboundBurstSeconds:       envIntOr("POPPY_LIVE_INBOUND_BURST_SECONDS", 2),
		LiveMetadataWait:              envDurationOr("POPPY_LIVE_METADATA_WAIT", 300*time.Millisecond),
		LivePlaybackStartTimeout:      envDurationOr("POPPY_LIVE_PLAYBACK_START_TIMEOUT", 3*time.Second),
		LiveFrameInterval:             envDurationOr("POPPY_LIVE_FRAME_INTERVAL", 16*time.Millisecond),
		LiveWSPingInterval:            envDurationOr("POPPY_LIVE_WS_PING_INTERVAL", 20*time.Second),
		LiveWSWriteTimeout:            envDurationOr("POPPY_LIVE_WS_WRITE_TIMEOUT", 5*time.Second),
		LiveWSReadTimeout:             envDurationOr("POPPY_LIVE_WS_READ_TIMEOUT", 0),
		LiveHandshakeTimeout:          envDurationOr("POPPY_LIVE_HANDSHAKE_TIMEOUT", 5*time.Second),
		LimitRPS:                      envFloat64Or("POPPY_RATE_LIMIT_RPS", 5.0),
		LimitBurst:                    envIntOr("POPPY_RATE_LIMIT_BURST", 10),
		LimitMaxConcurrentRequests:    envIntOr("POPPY_MAX_CONCURRENT_REQUESTS", 20),
		ReadHeaderTimeout:             envDurationOr("POPPY_READ_HEADER_TIMEOUT", 10*time.Second),
		ReadTimeout:                   envDurationOr("POPPY_READ_TIMEOUT", 30*time.Second),
		HandlerTimeout:                envDurationOr("POPPY_TOTAL_REQUEST_TIMEOUT", 2*time.Minute),
		ShutdownGracePeriod:           envDurationOr("POPPY_SHUTDOWN_GRACE_PERIOD", 30*time.Second),
		UpstreamConnectTimeout:        envDurationOr("POPPY_CONNECT_TIMEOUT", 5*time.Second),
		UpstreamResponseHeaderTimeout: envDurationOr("POPPY_RESPONSE_HEADER_TIMEOUT", 60*time.Second),
	}

	switch cfg.AuthMode {
	case AuthModeRequired, AuthModeOptional, AuthModeDisabled:
	default:
		return Config{}, fmt.Errorf("POPPY_AUTH_MODE must be one of required|optional|disabled")
	}

	for _, azp := range splitCSV(os.Getenv("POPPY_CLERK_AUTHORIZED_PARTIES")) {
		cfg.ClerkAuthorizedParties[azp] = struct{}{}
	}

	for _, origin := range splitCSV(os.Getenv("POPPY_CORS_ORIGINS")) {
		cfg.CORSAllowedOrigins[origin] = struct{}{}
	}

	switch strings.ToLower(cfg.DefaultProvider) {
	case "openai", "claude":
		cfg.DefaultProvider = strings.ToLower(cfg.DefaultProvider)
	default:
		return Config{}, fmt.Errorf("POPPY_DEFAULT_PROVIDER must be one of openai|claude")
	}

	if cfg.MaxBodyBytes <= 0 {
		return Config{}, fmt.Errorf("POPPY_MAX_BODY_BYTES must be > 0")
	}
	if cfg.MaxMessages <= 0 {
		return Config{}, fmt.Errorf("POPPY_MAX_MESSAGES must be > 0")
	}
	if cfg.ReplyTimeout <= 0 {
		return Config{}, fmt.Errorf("POPPY_REPLY_TIMEOUT must be > 0")
	}
	if cfg.ReplyMaxSteps <= 0 {
		return Config{}, fmt.Errorf("POPPY_REPLY_MAX_STEPS must be > 0")
	}
	if cfg.ReplyMaxTokens <= 0 {
		return Config{}, fmt.Errorf("POPPY_REPLY_MAX_TOKENS must be > 0")
	}
	if cfg.ElevenLabsStability < 0 || cfg.ElevenLabsStability > 1 {
		return Config{}, fmt.Errorf("POPPY_ELEVENLABS_STABILITY must be within [0,1]")
	}
	if cfg.ElevenLabsSimilarityBoost < 0 || cfg.ElevenLabsSimilarityBoost > 1 {
		return Config{}, fmt.Errorf("POPPY_ELEVENLABS_SIMILARITY_BOOST must be within [0,1]")
	}
	if cfg.LinkCacheTTL <= 0 {
		return Config{}, fmt.Errorf("POPPY_LINK_CACHE_TTL must be > 0")
	}
	if cfg.LinkFetchTimeout <= 0 {
		return Config{}, fmt.Errorf("POPPY_LINK_FETCH_TIMEOUT must be > 0")
	}
	if cfg.WSMaxSessionDuration <= 0 {
		return Config{}, fmt.Errorf("POPPY_WS_MAX_DURATION must be > 0")
	}
	if cfg.WSMaxSessionsPerPrincipal <= 0 {
		return Config{}, fmt.Errorf("POPPY_WS_MAX_SESSIONS_PER_PRINCIPAL must be > 0")
	}
	if cfg.LiveMaxAudioFrameBytes <= 0 {
		return Config{}, fmt.Errorf("POPPY_LIVE_MAX_AUDIO_FRAME_BYTES must be > 0")
	}
	if cfg.LiveMaxJSONMessageBytes <= 0 {
		return Config{}, fmt.Errorf("POPPY_LIVE_MAX_JSON_MESSAGE_BYTES must be > 0")
	}
	if cfg.LiveMaxAudioFPS < 0 {
		return Config{}, fmt.Errorf("POPPY_LIVE_MAX_AUDIO_FPS must be >= 0")
	}
	if cfg.LiveMaxAudioBytesPerSecond < 0 {
		return Config{}, fmt.Errorf("POPPY_LIVE_MAX_AUDIO_BPS must be >= 0")
	}
	if cfg.LiveInboundBurstSeconds < 0 {
		return Config{}, fmt.Errorf("POPPY_LIVE_INBOUND_BURST_SECONDS must be >= 0")
	}
	if (cfg.LiveMaxAudioFPS > 0 || cfg.LiveMaxAudioBytesPerSecond > 0) && cfg.LiveInboundBurstSeconds < 1 {
		return Config{}, fmt.Errorf("POPPY_LIVE_INBOUND_BURST_SECONDS must be >= 1 when inbound audio limits are enabled")
	}
	if cfg.LiveMetadataWait <= 0 {
		return Config{}, fmt.Errorf("POPPY_LIVE_METADATA_WAIT must be > 0")
	}
	if cfg.LivePlaybackStartTimeout <= 0 {
		return Config{}, fmt.Errorf("POPPY_LIVE_PLAYBACK_START_TIMEOUT must be > 0")
	}
	if cfg.LiveFrameInterval <= 0 {
		return Config{}, fmt.Errorf("POPPY_LIVE_FRAME_INTERVAL must be > 0")
	}
	if cfg.LiveWSPingInterval <= 0 {
		return Config{}, fmt.Errorf("POPPY_LIVE_WS_PING_INTERVAL must be > 0")
	}
	if cfg.LiveWSWriteTimeout <= 0 {
		return Config{}, fmt.Errorf("POPPY_LIVE_WS_WRITE_TIMEOUT must be > 0")
	}
	if cfg.LiveWSReadTimeout < 0 {
		return Config{}, fmt.Errorf("POPPY_LIVE_WS_READ_TIMEOUT must be >= 0")
	}
	if cfg.LiveHandshakeTimeout <= 0 {
		return Config{}, fmt.Errorf("POPPY_LIVE_HANDSHAKE_TIMEOUT must be > 0")
	}
	if cfg.ReadHeaderTimeout <= 0 {
		return Config{}, fmt.Errorf("POPPY_READ_HEADER_TIMEOUT must be > 0")
	}
	if cfg.ReadTimeout <= 0 {
		return Config{}, fmt.Errorf("POPPY_READ_TIMEOUT must be > 0")
	}
	if cfg.HandlerTimeout <= 0 {
		return Config{}, fmt.Errorf("POPPY_TOTAL_REQUEST_TIMEOUT must be > 0")
	}
	if cfg.ShutdownGracePeriod <= 0 {
		return Config{}, fmt.Errorf("POPPY_SHUTDOWN_GRACE_PERIOD must be > 0")
	}
	if cfg.UpstreamConnectTimeout <= 0 {
		return Config{}, fmt.Errorf("POPPY_CONNECT_TIMEOUT must be > 0")
	}
	if cfg.UpstreamResponseHeaderTimeout <= 0 {
		return Config{}, fmt.Errorf("POPPY_RESPONSE_HEADER_TIMEOUT must be > 0")
	}

	if cfg.LimitRPS < 0 {
		return Config{}, fmt.Errorf("POPPY_RATE_LIMIT_RPS must be >= 0")
	}
	if cfg.LimitBurst < 0 {
		return Config{}, fmt.Errorf("POPPY_RATE_LIMIT_BURST must be >= 0")
	}
	if cfg.LimitMaxConcurrentRequests < 0 {
		return Config{}, fmt.Errorf("POPPY_MAX_CONCURRENT_REQUESTS must be >= 0")
	}

	if cfg.AuthMode == AuthModeRequired && cfg.ClerkJWTKey == "" {
		return Config{}, fmt.Errorf("POPPY_CLERK_JWT_KEY must be set when POPPY_AUTH_MODE=required")
	}

	return cfg, nil
}

// GoogleDocsConfigured reports whether every Google OAuth value is present.
func (c Config) GoogleDocsConfigured() bool {
	return c.GoogleClientID != "" && c.GoogleClientSecret != "" && c.GoogleRedirectURL != "" && c.GoogleRefreshToken != ""
}

// pemFromEnv accepts a PEM block with real newlines or with literal "\n" sequences.
func pemFromEnv(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	return strings.ReplaceAll(raw, `\n`, "\n")
}

func envOr(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return strings.TrimSpace(def)
	}
	return v
}

func envInt64Or(key string, def int64) int64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func envIntOr(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func envFloat64Or(key string, def float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return def
	}
	return n
}

func envBoolOr(key string, def bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	switch strings.ToLower(raw) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	case "0", "false", "f", "no", "n", "off":
		return false
	default:
		return def
	}
}

func envDurationOr(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return d
}

func splitCSV(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
