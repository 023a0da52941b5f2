package mw

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/vango-go/poppy/pkg/gateway/auth"
	"github.com/vango-go/poppy/pkg/gateway/config"
)

type fakeVerifier struct {
	tokens map[string]string
}

func (f fakeVerifier) Verify(token string) (*auth.Principal, error) {
	user, ok := f.tokens[token]
	if !ok {
		return nil, auth.ErrInvalidToken
	}
	return &auth.Principal{UserID: user}, nil
}

var testVerifier = fakeVerifier{tokens: map[string]string{"good": "user_1"}}

func okHandler(seen *string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if seen != nil {
			*seen = auth.UserIDFrom(r.Context())
		}
		w.WriteHeader(http.StatusNoContent)
	})
}

func TestAuth_RequiredRejectsMissingToken(t *testing.T) {
	h := Auth(config.Config{AuthMode: config.AuthModeRequired}, testVerifier, okHandler(nil))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/chat", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
}

func TestAuth_AcceptsBearerAndCookie(t *testing.T) {
	var seen string
	h := Auth(config.Config{AuthMode: config.AuthModeRequired}, testVerifier, okHandler(&seen))

	req := httptest.NewRequest(http.MethodGet, "/v1/boards", nil)
	req.Header.Set("Authorization", "Bearer good")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusNoContent || seen != "user_1" {
		t.Fatalf("bearer status=%d user=%q", rr.Code, seen)
	}

	seen = ""
	req = httptest.NewRequest(http.MethodGet, "/v1/boards", nil)
	req.AddCookie(&http.Cookie{Name: auth.SessionCookie, Value: "good"})
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusNoContent || seen != "user_1" {
		t.Fatalf("cookie status=%d user=%q", rr.Code, seen)
	}
}

func TestAuth_InvalidTokenRejectedEvenWhenOptional(t *testing.T) {
	h := Auth(config.Config{AuthMode: config.AuthModeOptional}, testVerifier, okHandler(nil))

	req := httptest.NewRequest(http.MethodGet, "/v1/boards", nil)
	req.Header.Set("Authorization", "Bearer bad")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
}

func TestAuth_OptionalAllowsAnonymous(t *testing.T) {
	seen := "unset"
	h := Auth(config.Config{AuthMode: config.AuthModeOptional}, testVerifier, okHandler(&seen))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/link-metadata", nil))
	if rr.Code != http.StatusNoContent || seen != "" {
		t.Fatalf("status=%d user=%q", rr.Code, seen)
	}
}

func TestAuth_LiveWebSocketUpgradeBypass(t *testing.T) {
	h := Auth(config.Config{AuthMode: config.AuthModeRequired}, testVerifier, okHandler(nil))

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/live", nil)
	req.Header.Set("Connection", "Upgrade")
	req.Header.Set("Upgrade", "websocket")
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
}

func TestAuth_DisabledSkipsVerification(t *testing.T) {
	h := Auth(config.Config{AuthMode: config.AuthModeDisabled}, nil, okHandler(nil))

	req := httptest.NewRequest(http.MethodGet, "/v1/boards", nil)
	req.Header.Set("Authorization", "Bearer whatever")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("status=%d", rr.Code)
	}
}

func TestFakeVerifier_WrapsInvalidToken(t *testing.T) {
	if _, err := testVerifier.Verify("nope"); !errors.Is(err, auth.ErrInvalidToken) {
		t.Fatalf("err = %v", err)
	}
}
