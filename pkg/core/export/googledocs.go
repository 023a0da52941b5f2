package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	docs "google.golang.org/api/docs/v1"
	"google.golang.org/api/option"
)

// DefaultDocTitle names exported documents that arrive without a title.
const DefaultDocTitle = "Poppy Action Plan"

// ErrNotConfigured is returned when the exporter has no Google credentials.
var ErrNotConfigured = errors.New("google docs export not configured")

// ErrEmptyContent is returned for exports with nothing to write.
var ErrEmptyContent = errors.New("export content is empty")

// Exporter writes a titled document somewhere shareable and returns its URL.
type Exporter interface {
	Export(ctx context.Context, title, content string) (string, error)
}

// GoogleDocsConfig holds the OAuth client and the long-lived refresh token exports run as.
type GoogleDocsConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	RefreshToken string

	// Endpoint overrides the Docs API base URL.
	Endpoint string
}

func (c GoogleDocsConfig) configured() bool {
	return c.ClientID != "" && c.ClientSecret != "" && c.RedirectURL != "" && c.RefreshToken != ""
}

type GoogleDocsDependencies struct {
	// HTTPClient replaces the OAuth-authenticated client when set.
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// GoogleDocs exports documents with the Google Docs API.
type GoogleDocs struct {
	cfg    GoogleDocsConfig
	hc     *http.Client
	logger *slog.Logger
}

var _ Exporter = (*GoogleDocs)(nil)

func NewGoogleDocs(cfg GoogleDocsConfig, deps GoogleDocsDependencies) *GoogleDocs {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &GoogleDocs{cfg: cfg, hc: deps.HTTPClient, logger: logger}
}

// Configured reports whether Export can reach Google.
func (g *GoogleDocs) Configured() bool {
	return g != nil && (g.hc != nil || g.cfg.configured())
}

// Export creates a document titled title (DefaultDocTitle when blank), inserts content at the
// start of the body and returns the document's edit URL.
func (g *GoogleDocs) Export(ctx context.Context, title, content string) (string, error) {
	if content == "" {
		return "", ErrEmptyContent
	}
	if !g.Configured() {
		return "", ErrNotConfigured
	}
	if strings.TrimSpace(title) == "" {
		title = DefaultDocTitle
	}

	svc, err := g.service(ctx)
	if err != nil {
		return "", err
	}

	created, err := svc.Documents.Create(&docs.Document{Title: title}).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("create document: %w", err)
	}
	if created.DocumentId == "" {
		return "", errors.New("create document: no document id returned")
	}

	_, err = svc.Documents.BatchUpdate(created.DocumentId, &docs.BatchUpdateDocumentRequest{
		Requests: []*docs.Request{{
			InsertText: &docs.InsertTextRequest{
				Location: &docs.Location{Index: 1},
				Text:     content,
			},
		}},
	}).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("insert document text: %w", err)
	}

	g.logger.Info("exported google doc", "document_id", created.DocumentId, "chars", len(content))
	return DocURL(created.DocumentId), nil
}

func (g *GoogleDocs) service(ctx context.Context) (*docs.Service, error) {
	hc := g.hc
	if hc == nil {
		oc := &oauth2.Config{
			ClientID:     g.cfg.ClientID,
			ClientSecret: g.cfg.ClientSecret,
			RedirectURL:  g.cfg.RedirectURL,
			Endpoint:     google.Endpoint,
			Scopes:       []string{docs.DocumentsScope},
		}
		hc = oc.Client(context.Background(), &oauth2.Token{RefreshToken: g.cfg.RefreshToken})
	}

	opts := []option.ClientOption{option.WithHTTPClient(hc)}
	if g.cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(g.cfg.Endpoint))
	}
	svc, err := docs.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("docs client: %w", err)
	}
	return svc, nil
}

// DocURL is the browser edit link for a Google Doc.
func DocURL(documentID string) string {
	return "https://docs.google.com/document/d/" + documentID + "/edit"
}
