package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/vango-go/poppy/pkg/core"
	"github.com/vango-go/poppy/pkg/gateway/config"
	"github.com/vango-go/poppy/pkg/gateway/mw"
)

// TitleResolver finds a display title for a link. An empty title means none was found.
type TitleResolver interface {
	ResolveTitle(ctx context.Context, rawURL string) (string, error)
}

type linkMetadataResponse struct {
	URL   string  `json:"url"`
	Title *string `json:"title"`
}

// LinkMetadataHandler resolves link titles for board previews: GET /v1/link-metadata?url=.
type LinkMetadataHandler struct {
	Config config.Config
	Links  TitleResolver
	Logger *slog.Logger
}

func (h LinkMetadataHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqID, _ := mw.RequestIDFrom(r.Context())
	if r.Method != http.MethodGet {
		writeCoreErrorJSON(w, reqID, &core.Error{Type: core.ErrInvalidRequest, Message: "method not allowed", Code: "method_not_allowed"}, http.StatusMethodNotAllowed)
		return
	}
	raw := strings.TrimSpace(r.URL.Query().Get("url"))
	if raw == "" {
		writeCoreErrorJSON(w, reqID, core.NewInvalidRequestErrorWithParam("Missing url parameter", "url"), http.StatusBadRequest)
		return
	}
	if u, err := url.Parse(raw); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		writeCoreErrorJSON(w, reqID, core.NewInvalidRequestErrorWithParam("url must be an absolute http(s) URL", "url"), http.StatusBadRequest)
		return
	}
	if h.Links == nil {
		writeJSON(w, http.StatusOK, linkMetadataResponse{URL: raw})
		return
	}

	ctx, cancel := withHandlerTimeout(r.Context(), h.Config.HandlerTimeout)
	defer cancel()

	title, err := h.Links.ResolveTitle(ctx, raw)
	if err != nil {
		if h.Logger != nil {
			h.Logger.Warn("link metadata failed", "request_id", reqID, "url", raw, "error", err)
		}
		writeJSON(w, http.StatusInternalServerError, linkMetadataResponse{URL: raw})
		return
	}
	resp := linkMetadataResponse{URL: raw}
	if title != "" {
		resp.Title = &title
	}
	writeJSON(w, http.StatusOK, resp)
}
