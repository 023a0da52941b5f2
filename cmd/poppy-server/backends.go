package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/vango-go/poppy/pkg/core/export"
	"github.com/vango-go/poppy/pkg/core/reply"
	"github.com/vango-go/poppy/pkg/core/sources"
	"github.com/vango-go/poppy/pkg/core/types"
	"github.com/vango-go/poppy/pkg/core/voice/stt"
	"github.com/vango-go/poppy/pkg/core/voice/tts"
	"github.com/vango-go/poppy/pkg/gateway/auth"
	"github.com/vango-go/poppy/pkg/gateway/config"
	gatewayserver "github.com/vango-go/poppy/pkg/gateway/server"
	"github.com/vango-go/poppy/pkg/gateway/upstream"
	storefirestore "github.com/vango-go/poppy/pkg/store/firestore"
	"github.com/vango-go/poppy/pkg/store/linkcache"
	"github.com/vango-go/poppy/pkg/store/memory"
	"github.com/vango-go/poppy/pkg/store/postgres"
)

// buildBackends wires every integration the config enables. The returned close func releases
// pooled connections and is safe to call when building failed part way.
func buildBackends(ctx context.Context, cfg config.Config, logger *slog.Logger) (gatewayserver.Dependencies, func(), error) {
	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := gatewayserver.Dependencies{Logger: logger}
	httpClient := upstream.NewHTTPClient(cfg.UpstreamConnectTimeout, cfg.UpstreamResponseHeaderTimeout)

	if cfg.ClerkJWTKey != "" {
		verifier, err := auth.NewClerkVerifier(cfg.ClerkJWTKey, cfg.ClerkAuthorizedParties)
		if err != nil {
			return deps, closeAll, fmt.Errorf("clerk verifier: %w", err)
		}
		deps.Verifier = verifier
	}

	providers, err := upstream.Factory{HTTPClient: httpClient}.Registry(map[types.Provider]upstream.Credentials{
		types.ProviderClaude: {APIKey: cfg.AnthropicAPIKey, BaseURL: cfg.AnthropicBaseURL},
		types.ProviderOpenAI: {APIKey: cfg.OpenAIAPIKey, BaseURL: cfg.OpenAIBaseURL},
	})
	if err != nil {
		return deps, closeAll, fmt.Errorf("providers: %w", err)
	}

	var cache sources.Cache
	if cfg.RedisURL != "" {
		client, err := linkcache.Open(ctx, cfg.RedisURL)
		if err != nil {
			return deps, closeAll, fmt.Errorf("link cache: %w", err)
		}
		closers = append(closers, func() { _ = client.Close() })
		cache = linkcache.New(client, "")
	}
	links := sources.New(sources.Config{
		Timeout:      cfg.LinkFetchTimeout,
		CacheTTL:     cfg.LinkCacheTTL,
		NoEmbedURL:   cfg.NoEmbedURL,
		TimedTextURL: cfg.YouTubeTimedTextURL,
	}, sources.Dependencies{HTTPClient: httpClient, Cache: cache, Logger: logger})
	deps.Links = links

	replyDeps := reply.Dependencies{Providers: providers, Links: links, Logger: logger}
	if cfg.GoogleDocsConfigured() {
		docs := export.NewGoogleDocs(export.GoogleDocsConfig{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  cfg.GoogleRedirectURL,
			RefreshToken: cfg.GoogleRefreshToken,
		}, export.GoogleDocsDependencies{Logger: logger})
		deps.Exporter = docs
		replyDeps.Exporter = docs
	}

	deps.Replies = reply.New(reply.Config{
		Models: map[types.Provider]string{
			types.ProviderClaude: cfg.AnthropicModel,
			types.ProviderOpenAI: cfg.OpenAIModel,
		},
		MaxSteps:  cfg.ReplyMaxSteps,
		MaxTokens: cfg.ReplyMaxTokens,
		Timeout:   cfg.ReplyTimeout,
	}, replyDeps)

	if cfg.ElevenLabsAPIKey != "" && cfg.ElevenLabsVoiceID != "" {
		deps.TTS = tts.NewElevenLabsWithClient(cfg.ElevenLabsAPIKey, cfg.ElevenLabsVoiceID, httpClient).
			WithBaseURL(cfg.ElevenLabsBaseURL)
		deps.TTSOptions = tts.SynthesizeOptions{
			Voice:           cfg.ElevenLabsVoiceID,
			Model:           cfg.ElevenLabsModel,
			Stability:       cfg.ElevenLabsStability,
			SimilarityBoost: cfg.ElevenLabsSimilarityBoost,
			Format:          "mp3",
		}
	}
	if cfg.CartesiaAPIKey != "" {
		deps.STT = stt.NewCartesia(cfg.CartesiaAPIKey).WithWSURL(cfg.CartesiaWSURL)
	}

	if cfg.FirestoreProject != "" {
		client, err := storefirestore.NewClient(ctx, cfg.FirestoreProject)
		if err != nil {
			return deps, closeAll, err
		}
		closers = append(closers, func() { _ = client.Close() })
		deps.Boards = storefirestore.NewBoards(client, cfg.BoardsCollection)
	} else {
		logger.Warn("POPPY_FIRESTORE_PROJECT not set; boards are kept in memory")
		deps.Boards = memory.NewBoards()
	}

	if cfg.PostgresDSN != "" {
		if cfg.MigrateOnStart {
			if err := postgres.Migrate(ctx, cfg.PostgresDSN, logger); err != nil {
				return deps, closeAll, fmt.Errorf("migrate: %w", err)
			}
		}
		pool, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return deps, closeAll, err
		}
		closers = append(closers, pool.Close)
		deps.Chats = postgres.NewChats(pool)
	} else {
		logger.Warn("POPPY_POSTGRES_DSN not set; chats are kept in memory")
		deps.Chats = memory.NewChats()
	}

	if len(providers.List()) == 0 {
		logger.Warn("no model provider key set; replies fall back to the error message")
	}
	return deps, closeAll, nil
}
