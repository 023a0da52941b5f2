package handlers

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/vango-go/poppy/pkg/core"
	"github.com/vango-go/poppy/pkg/core/export"
	"github.com/vango-go/poppy/pkg/core/types"
	"github.com/vango-go/poppy/pkg/gateway/config"
	"github.com/vango-go/poppy/pkg/gateway/mw"
)

type googleDocRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

type googleDocResponse struct {
	DocURL string `json:"docUrl"`
}

// GoogleDocExportHandler creates a Google Doc from plain text: POST /v1/export/google-doc.
type GoogleDocExportHandler struct {
	Config   config.Config
	Exporter export.Exporter
	Logger   *slog.Logger
}

func (h GoogleDocExportHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqID, _ := mw.RequestIDFrom(r.Context())
	if r.Method != http.MethodPost {
		writeCoreErrorJSON(w, reqID, &core.Error{Type: core.ErrInvalidRequest, Message: "method not allowed", Code: "method_not_allowed"}, http.StatusMethodNotAllowed)
		return
	}

	var req googleDocRequest
	if err := decodeBody(w, r, h.Config.MaxBodyBytes, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Content == "" {
		writeError(w, r, export.ErrEmptyContent)
		return
	}
	if h.Exporter == nil {
		writeError(w, r, export.ErrNotConfigured)
		return
	}

	ctx, cancel := withHandlerTimeout(r.Context(), h.Config.HandlerTimeout)
	defer cancel()

	docURL, err := h.Exporter.Export(ctx, req.Title, req.Content)
	if err != nil {
		if h.Logger != nil {
			h.Logger.Error("google doc export failed", "request_id", reqID, "error", err)
		}
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, googleDocResponse{DocURL: docURL})
}

type textExportRequest struct {
	Messages []types.Message `json:"messages"`
}

// TextExportHandler renders the hooks action plan as a downloadable text file:
// POST /v1/export/text.
type TextExportHandler struct {
	Config config.Config
}

func (h TextExportHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqID, _ := mw.RequestIDFrom(r.Context())
	if r.Method != http.MethodPost {
		writeCoreErrorJSON(w, reqID, &core.Error{Type: core.ErrInvalidRequest, Message: "method not allowed", Code: "method_not_allowed"}, http.StatusMethodNotAllowed)
		return
	}

	var req textExportRequest
	if err := decodeBody(w, r, h.Config.MaxBodyBytes, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := validateHistory(req.Messages, h.Config.MaxMessages); err != nil {
		writeError(w, r, err)
		return
	}

	doc := export.BuildHooksDocument(req.Messages)
	body := []byte(doc.Content)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+export.SafeFilename(doc.Title)+`.txt"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}
