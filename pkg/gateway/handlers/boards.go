package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/vango-go/poppy/pkg/core"
	"github.com/vango-go/poppy/pkg/core/types"
	"github.com/vango-go/poppy/pkg/gateway/auth"
	"github.com/vango-go/poppy/pkg/gateway/config"
	"github.com/vango-go/poppy/pkg/gateway/mw"
	"github.com/vango-go/poppy/pkg/store"
)

type successResponse struct {
	Success bool `json:"success"`
}

// BoardsHandler serves the signed-in user's boards on /v1/boards and /v1/boards/{id}.
type BoardsHandler struct {
	Config config.Config
	Boards store.Boards
	Logger *slog.Logger
}

func (h BoardsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqID, _ := mw.RequestIDFrom(r.Context())
	if h.Boards == nil {
		writeCoreErrorJSON(w, reqID, &core.Error{Type: core.ErrNotConfigured, Message: "boards storage is not configured"}, http.StatusServiceUnavailable)
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
		h.create(w, r, userID)
	case id != "" && r.Method == http.MethodGet:
		h.get(w, r, userID, id)
	case id != "" && r.Method == http.MethodPatch:
		h.update(w, r, userID, id)
	case id != "" && r.Method == http.MethodDelete:
		h.delete(w, r, userID, id)
	default:
		writeCoreErrorJSON(w, reqID, &core.Error{Type: core.ErrInvalidRequest, Message: "method not allowed", Code: "method_not_allowed"}, http.StatusMethodNotAllowed)
	}
}

func (h BoardsHandler) list(w http.ResponseWriter, r *http.Request, userID string) {
	boards, err := h.Boards.List(r.Context(), userID)
	if err != nil {
		h.fail(w, r, "list boards", err)
		return
	}
	if boards == nil {
		boards = []types.Board{}
	}
	writeJSON(w, http.StatusOK, boards)
}

func (h BoardsHandler) get(w http.ResponseWriter, r *http.Request, userID, id string) {
	b, err := h.Boards.Get(r.Context(), userID, id)
	if err != nil {
		h.fail(w, r, "get board", err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (h BoardsHandler) create(w http.ResponseWriter, r *http.Request, userID string) {
	var in types.BoardInput
	if err := decodeBody(w, r, h.Config.MaxBodyBytes, &in); err != nil {
		writeError(w, r, err)
		return
	}
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		writeError(w, r, core.NewInvalidRequestErrorWithParam("Title is required", "title"))
		return
	}
	b, err := h.Boards.Create(r.Context(), userID, in)
	if err != nil {
		h.fail(w, r, "create board", err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

func (h BoardsHandler) update(w http.ResponseWriter, r *http.Request, userID, id string) {
	var patch types.BoardPatch
	if err := decodeBody(w, r, h.Config.MaxBodyBytes, &patch); err != nil {
		writeError(w, r, err)
		return
	}
	if patch.Title != nil && strings.TrimSpace(*patch.Title) == "" {
		writeError(w, r, core.NewInvalidRequestErrorWithParam("Title cannot be empty", "title"))
		return
	}
	b, err := h.Boards.Update(r.Context(), userID, id, patch)
	if err != nil {
		h.fail(w, r, "update board", err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (h BoardsHandler) delete(w http.ResponseWriter, r *http.Request, userID, id string) {
	if err := h.Boards.Delete(r.Context(), userID, id); err != nil {
		h.fail(w, r, "delete board", err)
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

func (h BoardsHandler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	logStoreError(h.Logger, r, op, err)
	writeError(w, r, err)
}

// logStoreError logs unexpected store failures. Not-found is a normal outcome.
func logStoreError(logger *slog.Logger, r *http.Request, op string, err error) {
	if logger == nil || err == nil || errors.Is(err, store.ErrNotFound) {
		return
	}
	reqID, _ := mw.RequestIDFrom(r.Context())
	logger.Error(op+" failed", "request_id", reqID, "error", err)
}
