package handlers

import (
	"log/slog"
	"net/http"

	"github.com/vango-go/poppy/pkg/core"
	"github.com/vango-go/poppy/pkg/core/types"
	"github.com/vango-go/poppy/pkg/gateway/config"
	"github.com/vango-go/poppy/pkg/gateway/mw"
)

type summaryRequest struct {
	Messages []types.Message `json:"messages"`
	Provider string          `json:"provider"`
}

type summaryResponse struct {
	Summary string `json:"summary"`
}

// SummaryHandler turns a conversation into an action plan: POST /v1/summary.
type SummaryHandler struct {
	Config  config.Config
	Replies Replier
	Logger  *slog.Logger
}

func (h SummaryHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqID, _ := mw.RequestIDFrom(r.Context())
	if r.Method != http.MethodPost {
		writeCoreErrorJSON(w, reqID, &core.Error{Type: core.ErrInvalidRequest, Message: "method not allowed", Code: "method_not_allowed"}, http.StatusMethodNotAllowed)
		return
	}
	if h.Replies == nil {
		writeCoreErrorJSON(w, reqID, &core.Error{Type: core.ErrNotConfigured, Message: "reply generation is not configured"}, http.StatusServiceUnavailable)
		return
	}

	var req summaryRequest
	if err := decodeBody(w, r, h.Config.MaxBodyBytes, &req); err != nil {
		writeError(w, r, err)
		return
	}
	provider, err := resolveProvider(req.Provider, h.Config.DefaultProvider)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := validateHistory(req.Messages, h.Config.MaxMessages); err != nil {
		writeError(w, r, err)
		return
	}

	ctx, cancel := withHandlerTimeout(r.Context(), h.Config.HandlerTimeout)
	defer cancel()

	text, err := h.Replies.Summarize(ctx, req.Messages, provider)
	if err != nil {
		if h.Logger != nil {
			h.Logger.Error("summary failed", "request_id", reqID, "provider", provider, "error", err)
		}
		writeCoreErrorJSON(w, reqID, &core.Error{Type: core.ErrProvider, Message: "Failed to generate summary"}, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, summaryResponse{Summary: text})
}
