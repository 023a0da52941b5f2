package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/vango-go/poppy/pkg/gateway/config"
	"github.com/vango-go/poppy/pkg/gateway/lifecycle"
	"github.com/vango-go/poppy/pkg/gateway/live/sessions"
)

type HealthHandler struct{}

func (h HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

type ReadyHandler struct {
	Config       config.Config
	Lifecycle    *lifecycle.Lifecycle
	LiveSessions *sessions.Tracker
}

func (h ReadyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	type readyResp struct {
		OK            bool     `json:"ok"`
		AuthMode      string   `json:"auth_mode"`
		LimitsEnabled bool     `json:"limits_enabled"`
		SpeechInput   bool     `json:"speech_input"`
		SpeechOutput  bool     `json:"speech_output"`
		GoogleDocs    bool     `json:"google_docs"`
		Draining      bool     `json:"draining"`
		LiveSessions  int      `json:"live_sessions"`
		Issues        []string `json:"issues,omitempty"`
	}

	issues := make([]string, 0, 4)

	switch h.Config.AuthMode {
	case config.AuthModeRequired, config.AuthModeOptional, config.AuthModeDisabled:
	default:
		issues = append(issues, "invalid auth_mode")
	}
	if h.Config.AuthMode == config.AuthModeRequired && h.Config.ClerkJWTKey == "" {
		issues = append(issues, "auth_mode=required but no clerk jwt key configured")
	}
	if h.Config.OpenAIAPIKey == "" && h.Config.AnthropicAPIKey == "" {
		issues = append(issues, "no model provider api key configured")
	}
	if h.Config.MaxBodyBytes <= 0 {
		issues = append(issues, "max_body_bytes must be > 0")
	}
	if h.Config.MaxMessages <= 0 {
		issues = append(issues, "max_messages must be > 0")
	}
	if h.Config.WSMaxSessionDuration <= 0 {
		issues = append(issues, "ws max session duration must be > 0")
	}
	if h.Config.WSMaxSessionsPerPrincipal <= 0 {
		issues = append(issues, "ws max sessions per principal must be > 0")
	}
	if h.Config.ReadHeaderTimeout <= 0 || h.Config.ReadTimeout <= 0 || h.Config.HandlerTimeout <= 0 {
		issues = append(issues, "timeouts must be > 0")
	}
	draining := h.Lifecycle.IsDraining()
	if draining {
		issues = append(issues, "draining")
	} else if !h.Lifecycle.IsReady() {
		issues = append(issues, "starting")
	}

	limitsEnabled := (h.Config.LimitRPS > 0 && h.Config.LimitBurst > 0) ||
		h.Config.LimitMaxConcurrentRequests > 0

	ok := len(issues) == 0
	status := http.StatusOK
	if !ok {
		status = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(readyResp{
		OK:            ok,
		AuthMode:      string(h.Config.AuthMode),
		LimitsEnabled: limitsEnabled,
		SpeechInput:   h.Config.CartesiaAPIKey != "",
		SpeechOutput:  h.Config.ElevenLabsAPIKey != "" && h.Config.ElevenLabsVoiceID != "",
		GoogleDocs:    h.Config.GoogleDocsConfigured(),
		Draining:      draining,
		LiveSessions:  h.LiveSessions.Count(),
		Issues:        issues,
	})
}
