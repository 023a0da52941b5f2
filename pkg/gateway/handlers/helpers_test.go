package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/vango-go/poppy/pkg/gateway/auth"
	"github.com/vango-go/poppy/pkg/gateway/config"
)

func testConfig() config.Config {
	return config.Config{
		AuthMode:        config.AuthModeOptional,
		DefaultProvider: "claude",
		MaxBodyBytes:    1 << 20,
		MaxMessages:     50,
		HandlerTimeout:  5 * time.Second,
	}
}

func newJSONRequest(method, target, body string) *http.Request {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	req.Header.Set("Content-Type", "application/json")
	return req
}

func asUser(req *http.Request, userID string) *http.Request {
	return req.WithContext(auth.WithPrincipal(req.Context(), &auth.Principal{UserID: userID}))
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeJSON[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("unmarshal %q: %v", rr.Body.String(), err)
	}
	return out
}

func errorType(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	env := decodeJSON[map[string]map[string]any](t, rr)
	typ, _ := env["error"]["type"].(string)
	return typ
}
