package handlers

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vango-go/poppy/pkg/core"
	"github.com/vango-go/poppy/pkg/core/turn"
	"github.com/vango-go/poppy/pkg/core/types"
	"github.com/vango-go/poppy/pkg/core/voice/stt"
	"github.com/vango-go/poppy/pkg/core/voice/tts"
	"github.com/vango-go/poppy/pkg/gateway/auth"
	"github.com/vango-go/poppy/pkg/gateway/config"
	"github.com/vango-go/poppy/pkg/gateway/lifecycle"
	"github.com/vango-go/poppy/pkg/gateway/live/protocol"
	"github.com/vango-go/poppy/pkg/gateway/live/session"
	"github.com/vango-go/poppy/pkg/gateway/live/sessions"
	"github.com/vango-go/poppy/pkg/gateway/metrics"
	"github.com/vango-go/poppy/pkg/gateway/mw"
	"github.com/vango-go/poppy/pkg/gateway/principal"
	"github.com/vango-go/poppy/pkg/gateway/ratelimit"
	"github.com/vango-go/poppy/pkg/store"
)

// LiveHandler handles /v1/live websocket sessions.
type LiveHandler struct {
	Config       config.Config
	Verifier     mw.TokenVerifier
	Replies      turn.ReplyGenerator
	STT          stt.Provider
	TTS          tts.Provider
	TTSOptions   tts.SynthesizeOptions
	Boards       store.Boards
	Chats        store.Chats
	Logger       *slog.Logger
	Limiter      *ratelimit.Limiter
	Lifecycle    *lifecycle.Lifecycle
	LiveSessions *sessions.Tracker
	Metrics      *metrics.Metrics
}

func (h LiveHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		reqID, _ := mw.RequestIDFrom(r.Context())
		writeCoreErrorJSON(w, reqID, &core.Error{Type: core.ErrInvalidRequest, Message: "method not allowed", Code: "method_not_allowed", RequestID: reqID}, http.StatusMethodNotAllowed)
		return
	}
	if h.Lifecycle != nil && h.Lifecycle.IsDraining() {
		reqID, _ := mw.RequestIDFrom(r.Context())
		writeCoreErrorJSON(w, reqID, &core.Error{Type: core.ErrOverloaded, Message: "gateway is draining", Code: "draining", RequestID: reqID}, 529)
		return
	}
	if !h.originAllowed(r) {
		reqID, _ := mw.RequestIDFrom(r.Context())
		writeCoreErrorJSON(w, reqID, &core.Error{Type: core.ErrPermission, Message: "origin is not allowed", Param: "Origin", RequestID: reqID}, http.StatusForbidden)
		return
	}
	if h.Replies == nil {
		reqID, _ := mw.RequestIDFrom(r.Context())
		writeCoreErrorJSON(w, reqID, &core.Error{Type: core.ErrNotConfigured, Message: "reply generation is not configured", RequestID: reqID}, http.StatusServiceUnavailable)
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(*http.Request) bool { return true },
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	if h.Config.LiveMaxJSONMessageBytes > 0 {
		conn.SetReadLimit(h.Config.LiveMaxJSONMessageBytes)
	}

	handshakeTimeout := h.Config.LiveHandshakeTimeout
	if handshakeTimeout <= 0 {
		handshakeTimeout = 5 * time.Second
	}
	_ = conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	messageType, firstFrame, err := conn.ReadMessage()
	if err != nil {
		h.writeWSError(conn, "session", "bad_request", "failed to read hello", true, nil)
		return
	}
	if messageType != websocket.TextMessage {
		h.writeWSError(conn, "session", "bad_request", "first frame must be hello", true, nil)
		return
	}

	decoded, err := protocol.DecodeClientMessage(firstFrame)
	if err != nil {
		var de *protocol.DecodeError
		if errors.As(err, &de) {
			var details map[string]any
			if de.Param != "" {
				details = map[string]any{"param": de.Param}
			}
			h.writeWSError(conn, "session", de.Code, de.Message, true, details)
			return
		}
		h.writeWSError(conn, "session", "bad_request", "invalid hello frame", true, nil)
		return
	}
	hello, ok := decoded.(protocol.ClientHello)
	if !ok {
		h.writeWSError(conn, "session", "bad_request", "first frame must be hello", true, nil)
		return
	}

	userID, authErr := h.resolveUser(r, hello.Token)
	if authErr != nil {
		h.writeWSError(conn, "session", "unauthorized", authErr.Error(), true, nil)
		return
	}
	principalKey := h.principalKey(r, userID)

	var wsPermit *ratelimit.Permit
	if h.Limiter != nil && h.Config.WSMaxSessionsPerPrincipal > 0 {
		dec := h.Limiter.AcquireWSSession(principalKey, time.Now())
		if !dec.Allowed {
			h.Metrics.RecordRateLimitHit("ws_sessions")
			h.writeWSError(conn, "session", "rate_limited", "too many active live sessions", true, nil)
			return
		}
		wsPermit = dec.Permit
		defer wsPermit.Release()
	}

	defaultProvider, err := types.ParseProvider(h.Config.DefaultProvider)
	if err != nil {
		defaultProvider = types.DefaultProvider
	}

	sessionID := "s_" + randHex(8)
	_ = conn.SetReadDeadline(time.Time{})

	s, err := session.New(session.Dependencies{
		Conn:      conn,
		Logger:    h.Logger,
		Replies:   h.Replies,
		STT:       h.STT,
		TTS:       h.TTS,
		Boards:    h.Boards,
		Chats:     h.Chats,
		UserID:    userID,
		Hello:     hello,
		SessionID: sessionID,
		RequestID: requestIDFromContext(r.Context()),
		Config: session.Config{
			MaxAudioFrameBytes:         h.Config.LiveMaxAudioFrameBytes,
			MaxJSONMessageBytes:        h.Config.LiveMaxJSONMessageBytes,
			LiveMaxAudioFPS:            h.Config.LiveMaxAudioFPS,
			LiveMaxAudioBytesPerSecond: h.Config.LiveMaxAudioBytesPerSecond,
			LiveInboundBurstSeconds:    h.Config.LiveInboundBurstSeconds,
			PingInterval:               h.Config.LiveWSPingInterval,
			WriteTimeout:               h.Config.LiveWSWriteTimeout,
			ReadTimeout:                h.Config.LiveWSReadTimeout,
			MaxSessionDuration:         h.Config.WSMaxSessionDuration,
			MetadataWait:               h.Config.LiveMetadataWait,
			PlaybackStartTimeout:       h.Config.LivePlaybackStartTimeout,
			FrameInterval:              h.Config.LiveFrameInterval,
			DefaultProvider:            defaultProvider,
			Locale:                     h.Config.SpeechLocale,
			TTSOptions:                 h.TTSOptions,
		},
	})
	if err != nil {
		h.writeWSError(conn, "session", "internal", "failed to initialize live session", true, nil)
		return
	}

	unregister := func() {}
	if h.LiveSessions != nil {
		unregister = h.LiveSessions.Register(sessionID, sessions.Handle{
			UserID: userID,
			Cancel: s.Cancel,
			Warn:   s.SendWarning,
		})
	}
	defer unregister()

	if h.Logger != nil {
		h.Logger.Info("live session started", "session_id", sessionID, "request_id", requestIDFromContext(r.Context()), "client", hello.RedactedForLog())
	}
	h.Metrics.RecordLiveSessionStart()
	started := time.Now()
	err = s.Run()
	h.Metrics.RecordLiveSessionEnd(err, time.Since(started))
	if err != nil {
		if h.Logger != nil {
			h.Logger.Warn("live session ended with error", "session_id", sessionID, "request_id", requestIDFromContext(r.Context()), "error", err)
		}
	}
}

func (h LiveHandler) originAllowed(r *http.Request) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	if len(h.Config.CORSAllowedOrigins) == 0 {
		return false
	}
	_, ok := h.Config.CORSAllowedOrigins[origin]
	return ok
}

// resolveUser prefers the principal set by the auth middleware; browsers cannot attach an
// Authorization header to a websocket upgrade, so the hello token is checked otherwise.
func (h LiveHandler) resolveUser(r *http.Request, helloToken string) (string, error) {
	if h.Config.AuthMode == config.AuthModeDisabled {
		return auth.UserIDFrom(r.Context()), nil
	}
	if userID := auth.UserIDFrom(r.Context()); userID != "" {
		return userID, nil
	}

	token := strings.TrimSpace(helloToken)
	if token == "" {
		if h.Config.AuthMode == config.AuthModeRequired {
			return "", fmt.Errorf("missing session token")
		}
		return "", nil
	}
	if h.Verifier == nil {
		return "", fmt.Errorf("session verification is not configured")
	}
	p, err := h.Verifier.Verify(token)
	if err != nil {
		return "", fmt.Errorf("invalid session token")
	}
	return p.UserID, nil
}

func (h LiveHandler) principalKey(r *http.Request, userID string) string {
	if userID != "" {
		return ratelimit.PrincipalKeyFromUser(userID)
	}
	p := principal.Resolve(r, h.Config)
	if strings.TrimSpace(p.Key) == "" {
		return "anonymous"
	}
	return p.Key
}

func (h LiveHandler) writeWSError(conn *websocket.Conn, scope, code, message string, close bool, details map[string]any) {
	_ = conn.WriteJSON(protocol.ServerError{Type: "error", Scope: scope, Code: code, Message: message, Close: close, Details: details})
	if close {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, message), time.Now().Add(2*time.Second))
	}
}

func randHex(nbytes int) string {
	b := make([]byte, nbytes)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}

func requestIDFromContext(ctx context.Context) string {
	if id, ok := mw.RequestIDFrom(ctx); ok {
		return id
	}
	return ""
}
