package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/vango-go/poppy/pkg/core"
	"github.com/vango-go/poppy/pkg/core/reply"
	"github.com/vango-go/poppy/pkg/core/types"
	"github.com/vango-go/poppy/pkg/gateway/auth"
	"github.com/vango-go/poppy/pkg/gateway/config"
	"github.com/vango-go/poppy/pkg/gateway/mw"
	"github.com/vango-go/poppy/pkg/store"
)

// Replier is the part of the reply generator the HTTP surface needs.
type Replier interface {
	Reply(ctx context.Context, history []types.Message, provider types.Provider, rc types.ReferenceContext) (string, error)
	Summarize(ctx context.Context, history []types.Message, provider types.Provider) (string, error)
}

type chatRequest struct {
	Messages     []types.Message    `json:"messages"`
	Provider     string             `json:"provider"`
	ContentLinks []string           `json:"contentLinks"`
	ContentDocs  []types.ContentDoc `json:"contentDocs"`
	// BoardIDs replaces the loose links and docs with the union of the named boards.
	BoardIDs []string `json:"boardIds,omitempty"`
}

type chatResponse struct {
	Reply string `json:"reply"`
}

// ChatHandler answers one text turn: POST /v1/chat.
type ChatHandler struct {
	Config  config.Config
	Replies Replier
	Boards  store.Boards
	Logger  *slog.Logger
}

func (h ChatHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqID, _ := mw.RequestIDFrom(r.Context())
	if r.Method != http.MethodPost {
		writeCoreErrorJSON(w, reqID, &core.Error{Type: core.ErrInvalidRequest, Message: "method not allowed", Code: "method_not_allowed"}, http.StatusMethodNotAllowed)
		return
	}
	if h.Replies == nil {
		writeCoreErrorJSON(w, reqID, &core.Error{Type: core.ErrNotConfigured, Message: "reply generation is not configured"}, http.StatusServiceUnavailable)
		return
	}

	var req chatRequest
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

	rc, err := h.referenceContext(ctx, r, req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	text, err := h.Replies.Reply(ctx, req.Messages, provider, rc)
	if err != nil {
		if h.Logger != nil {
			h.Logger.Error("chat reply failed", "request_id", reqID, "provider", provider, "error", err)
		}
		writeJSON(w, http.StatusInternalServerError, chatResponse{Reply: reply.ErrorFallback})
		return
	}
	writeJSON(w, http.StatusOK, chatResponse{Reply: text})
}

func (h ChatHandler) referenceContext(ctx context.Context, r *http.Request, req chatRequest) (types.ReferenceContext, error) {
	docs := usableDocs(req.ContentDocs)
	if len(req.BoardIDs) == 0 || h.Boards == nil {
		return types.ContextFromBoards(nil, req.ContentLinks, docs), nil
	}
	all, err := h.Boards.List(ctx, auth.UserIDFrom(r.Context()))
	if err != nil {
		return types.ReferenceContext{}, err
	}
	want := make(map[string]struct{}, len(req.BoardIDs))
	for _, id := range req.BoardIDs {
		want[id] = struct{}{}
	}
	selected := make([]types.Board, 0, len(req.BoardIDs))
	for _, b := range all {
		if _, ok := want[b.ID]; ok {
			selected = append(selected, b)
		}
	}
	return types.ContextFromBoards(selected, req.ContentLinks, docs), nil
}

// usableDocs drops docs without a name or with blank text.
func usableDocs(in []types.ContentDoc) []types.ContentDoc {
	out := make([]types.ContentDoc, 0, len(in))
	for _, d := range in {
		if d.Name == "" || strings.TrimSpace(d.Text) == "" {
			continue
		}
		out = append(out, d)
	}
	return out
}

func resolveProvider(raw, def string) (types.Provider, error) {
	if strings.TrimSpace(raw) == "" {
		raw = def
	}
	p, err := types.ParseProvider(raw)
	if err != nil {
		return "", core.NewInvalidRequestErrorWithParam(err.Error(), "provider")
	}
	return p, nil
}

func validateHistory(msgs []types.Message, maxMessages int) error {
	if maxMessages > 0 && len(msgs) > maxMessages {
		return core.NewInvalidRequestErrorWithParam(fmt.Sprintf("too many messages (max %d)", maxMessages), "messages")
	}
	if err := types.ValidateMessages(msgs); err != nil {
		return core.NewInvalidRequestErrorWithParam(err.Error(), "messages")
	}
	return nil
}
