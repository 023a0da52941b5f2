package handlers

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/vango-go/poppy/pkg/core"
	"github.com/vango-go/poppy/pkg/core/export"
	"github.com/vango-go/poppy/pkg/core/types"
	"github.com/vango-go/poppy/pkg/gateway/auth"
	"github.com/vango-go/poppy/pkg/gateway/config"
	"github.com/vango-go/poppy/pkg/gateway/mw"
	"github.com/vango-go/poppy/pkg/store"
)

type saveChatRequest struct {
	Title    string          `json:"title"`
	Messages []types.Message `json:"messages"`
}

type renameChatRequest struct {
	Title string `json:"title"`
}

// ChatsHandler serves the signed-in user's saved chats on /v1/chats and /v1/chats/{id}.
type ChatsHandler struct {
	Config config.Config
	Chats  store.Chats
	Logger *slog.Logger
}

func (h ChatsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqID, _ := mw.RequestIDFrom(r.Context())
	if h.Chats == nil {
		writeCoreErrorJSON(w, reqID, &core.Error{Type: core.ErrNotConfigured, Message: "chat storage is not configured"}, http.StatusServiceUnavailable)
		return
	}
	userID := auth.UserIDFrom(r.Context())
	if userID == "" {
		writeError(w, r, store.ErrInvalidUser)
		return
	}

	id := strings.TrimSpace(r.PathValue("id"))
	switch {
	case id == "" && r.Method == http.MethodGet:
		h.list(w, r, userID)
	case id == "" && r.Method == http.MethodPost:
		h.save(w, r, userID)
	case id != "" && r.Method == http.MethodGet:
		h.get(w, r, userID, id)
	case id != "" && r.Method == http.MethodPatch:
		h.rename(w, r, userID, id)
	case id != "" && r.Method == http.MethodDelete:
		h.delete(w, r, userID, id)
	default:
		writeCoreErrorJSON(w, reqID, &core.Error{Type: core.ErrInvalidRequest, Message: "method not allowed", Code: "method_not_allowed"}, http.StatusMethodNotAllowed)
	}
}

func (h ChatsHandler) list(w http.ResponseWriter, r *http.Request, userID string) {
	chats, err := h.Chats.List(r.Context(), userID)
	if err != nil {
		logStoreError(h.Logger, r, "list chats", err)
		writeError(w, r, err)
		return
	}
	if chats == nil {
		chats = []types.SavedChat{}
	}
	writeJSON(w, http.StatusOK, chats)
}

func (h ChatsHandler) get(w http.ResponseWriter, r *http.Request, userID, id string) {
	c, err := h.Chats.Get(r.Context(), userID, id)
	if err != nil {
		logStoreError(h.Logger, r, "get chat", err)
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h ChatsHandler) save(w http.ResponseWriter, r *http.Request, userID string) {
	var req saveChatRequest
	if err := decodeBody(w, r, h.Config.MaxBodyBytes, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := validateHistory(req.Messages, h.Config.MaxMessages); err != nil {
		writeError(w, r, err)
		return
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = export.ChatTitle(req.Messages)
	}
	c, err := h.Chats.Save(r.Context(), userID, title, req.Messages)
	if err != nil {
		logStoreError(h.Logger, r, "save chat", err)
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (h ChatsHandler) rename(w http.ResponseWriter, r *http.Request, userID, id string) {
	var req renameChatRequest
	if err := decodeBody(w, r, h.Config.MaxBodyBytes, &req); err != nil {
		writeError(w, r, err)
		return
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		writeError(w, r, core.NewInvalidRequestErrorWithParam("Title is required", "title"))
		return
	}
	if err := h.Chats.Rename(r.Context(), userID, id, title); err != nil {
		logStoreError(h.Logger, r, "rename chat", err)
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

func (h ChatsHandler) delete(w http.ResponseWriter, r *http.Request, userID, id string) {
	if err := h.Chats.Delete(r.Context(), userID, id); err != nil {
		logStoreError(h.Logger, r, "delete chat", err)
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}
