package handlers

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/vango-go/poppy/pkg/core"
	"github.com/vango-go/poppy/pkg/core/voice/tts"
	"github.com/vango-go/poppy/pkg/gateway/config"
	"github.com/vango-go/poppy/pkg/gateway/mw"
)

type ttsRequest struct {
	Text string `json:"text"`
}

// TTSHandler synthesizes a reply clip for clients that play audio themselves: POST /v1/tts.
type TTSHandler struct {
	Config  config.Config
	TTS     tts.Provider
	Options tts.SynthesizeOptions
	Logger  *slog.Logger
}

func (h TTSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqID, _ := mw.RequestIDFrom(r.Context())
	if r.Method != http.MethodPost {
		writeCoreErrorJSON(w, reqID, &core.Error{Type: core.ErrInvalidRequest, Message: "method not allowed", Code: "method_not_allowed"}, http.StatusMethodNotAllowed)
		return
	}

	var req ttsRequest
	if err := decodeBody(w, r, h.Config.MaxBodyBytes, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeCoreErrorJSON(w, reqID, core.NewInvalidRequestErrorWithParam("Missing 'text' in body", "text"), http.StatusBadRequest)
		return
	}
	if h.TTS == nil {
		writeCoreErrorJSON(w, reqID, &core.Error{Type: core.ErrNotConfigured, Message: "Server TTS not configured"}, http.StatusServiceUnavailable)
		return
	}

	ctx, cancel := withHandlerTimeout(r.Context(), h.Config.HandlerTimeout)
	defer cancel()

	clip, err := h.TTS.Synthesize(ctx, req.Text, h.Options)
	if err != nil {
		if h.Logger != nil {
			h.Logger.Error("tts failed", "request_id", reqID, "provider", h.TTS.Name(), "error", err)
		}
		writeCoreErrorJSON(w, reqID, &core.Error{Type: core.ErrProvider, Message: "TTS failed"}, http.StatusInternalServerError)
		return
	}

	contentType := clip.ContentType
	if contentType == "" {
		contentType = "audio/mpeg"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(clip.Audio)))
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(clip.Audio)
}
