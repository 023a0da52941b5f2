package server

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/vango-go/poppy/pkg/core/export"
	"github.com/vango-go/poppy/pkg/core/turn"
	"github.com/vango-go/poppy/pkg/core/voice/stt"
	"github.com/vango-go/poppy/pkg/core/voice/tts"
	"github.com/vango-go/poppy/pkg/gateway/config"
	"github.com/vango-go/poppy/pkg/gateway/handlers"
	"github.com/vango-go/poppy/pkg/gateway/lifecycle"
	"github.com/vango-go/poppy/pkg/gateway/live/sessions"
	"github.com/vango-go/poppy/pkg/gateway/metrics"
	"github.com/vango-go/poppy/pkg/gateway/mw"
	"github.com/vango-go/poppy/pkg/gateway/ratelimit"
	"github.com/vango-go/poppy/pkg/store"
)

// Replies answers text turns, live turns and summaries.
type Replies interface {
	handlers.Replier
	turn.ReplyGenerator
}

// Dependencies are the backends the gateway serves. Nil backends disable their routes with a
// not_configured error; STT and TTS being nil only disables speech on live sessions.
type Dependencies struct {
	Logger     *slog.Logger
	Verifier   mw.TokenVerifier
	Replies    Replies
	STT        stt.Provider
	TTS        tts.Provider
	TTSOptions tts.SynthesizeOptions
	Boards     store.Boards
	Chats      store.Chats
	Links      handlers.TitleResolver
	Exporter   export.Exporter
}

type Server struct {
	cfg    config.Config
	deps   Dependencies
	logger *slog.Logger
	mux    *http.ServeMux

	limiter      *ratelimit.Limiter
	lifecycle    *lifecycle.Lifecycle
	liveSessions *sessions.Tracker
	metrics      *metrics.Metrics
}

func New(cfg config.Config, deps Dependencies) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		cfg:    cfg,
		deps:   deps,
		logger: logger,
		mux:    http.NewServeMux(),
		limiter: ratelimit.New(ratelimit.Config{
			RPS:                     cfg.LimitRPS,
			Burst:                   cfg.LimitBurst,
			MaxConcurrentRequests:   cfg.LimitMaxConcurrentRequests,
			MaxConcurrentWSSessions: cfg.WSMaxSessionsPerPrincipal,
		}),
		lifecycle:    &lifecycle.Lifecycle{},
		liveSessions: sessions.NewTracker(),
		metrics:      metrics.New("poppy"),
	}

	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.Handle("/healthz", handlers.HealthHandler{})
	s.mux.Handle("/readyz", handlers.ReadyHandler{Config: s.cfg, Lifecycle: s.lifecycle, LiveSessions: s.liveSessions})

	s.mux.Handle("/metrics", s.metrics.Handler())

	var replies Replies
	if s.deps.Replies != nil {
		replies = instrumentedReplies{next: s.deps.Replies, metrics: s.metrics}
	}
	var replier handlers.Replier
	if replies != nil {
		replier = replies
	}
	s.mux.Handle("/v1/chat", handlers.ChatHandler{Config: s.cfg, Replies: replier, Boards: s.deps.Boards, Logger: s.logger})
	s.mux.Handle("/v1/summary", handlers.SummaryHandler{Config: s.cfg, Replies: replier, Logger: s.logger})
	s.mux.Handle("/v1/tts", handlers.TTSHandler{Config: s.cfg, TTS: s.deps.TTS, Options: s.deps.TTSOptions, Logger: s.logger})

	boards := handlers.BoardsHandler{Config: s.cfg, Boards: s.deps.Boards, Logger: s.logger}
	s.mux.Handle("/v1/boards", boards)
	s.mux.Handle("/v1/boards/{id}", boards)
	chats := handlers.ChatsHandler{Config: s.cfg, Chats: s.deps.Chats, Logger: s.logger}
	s.mux.Handle("/v1/chats", chats)
	s.mux.Handle("/v1/chats/{id}", chats)

	s.mux.Handle("/v1/link-metadata", handlers.LinkMetadataHandler{Config: s.cfg, Links: s.deps.Links, Logger: s.logger})
	s.mux.Handle("/v1/export/google-doc", handlers.GoogleDocExportHandler{Config: s.cfg, Exporter: s.deps.Exporter, Logger: s.logger})
	s.mux.Handle("/v1/export/text", handlers.TextExportHandler{Config: s.cfg})

	var liveReplies turn.ReplyGenerator
	if replies != nil {
		liveReplies = replies
	}
	s.mux.Handle("/v1/live", handlers.LiveHandler{
		Config:       s.cfg,
		Verifier:     s.deps.Verifier,
		Replies:      liveReplies,
		STT:          s.deps.STT,
		TTS:          s.deps.TTS,
		TTSOptions:   s.deps.TTSOptions,
		Boards:       s.deps.Boards,
		Chats:        s.deps.Chats,
		Logger:       s.logger,
		Limiter:      s.limiter,
		Lifecycle:    s.lifecycle,
		LiveSessions: s.liveSessions,
		Metrics:      s.metrics,
	})

	s.mux.Handle("/", handlers.NotFoundHandler{})
}

func (s *Server) Handler() http.Handler {
	var h http.Handler = s.metrics.Middleware(s.mux)
	h = mw.RateLimit(s.cfg, s.limiter, h)
	h = mw.Auth(s.cfg, s.deps.Verifier, h)
	h = mw.CORS(s.cfg, h)
	h = mw.Recover(s.logger, h)
	h = mw.AccessLog(s.logger, h)
	h = mw.RequestID(h)
	return h
}

// MarkReady flips /readyz to ready once startup wiring is complete.
func (s *Server) MarkReady() {
	s.lifecycle.MarkReady()
}

func (s *Server) SetDraining() {
	s.lifecycle.SetDraining(true)
}

// WarnLiveSessionsDraining tells connected live clients the gateway is shutting down.
func (s *Server) WarnLiveSessionsDraining() int {
	return s.liveSessions.WarnAll("draining", "server is restarting; reconnect shortly")
}

func (s *Server) WaitLiveSessions(ctx context.Context) bool {
	return s.liveSessions.Wait(ctx)
}

func (s *Server) CancelLiveSessions() int {
	return s.liveSessions.CancelAll()
}

// LiveSessions lists connected live sessions, oldest first.
func (s *Server) LiveSessions() []sessions.Info {
	return s.liveSessions.List()
}
