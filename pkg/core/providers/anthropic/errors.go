package anthropic

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/vango-go/poppy/pkg/core"
)

// anthropicError represents an error response from Anthropic.
type anthropicError struct {
	Type  string `json:"type"`
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// parseError maps an Anthropic error response onto core.Error.
func (p *Provider) parseError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var anthErr anthropicError
	if err := json.Unmarshal(body, &anthErr); err != nil || anthErr.Error.Message == "" {
		return &core.Error{
			Type:    core.ErrProvider,
			Message: "anthropic: " + string(body),
			Code:    strconv.Itoa(resp.StatusCode),
		}
	}

	var errType core.ErrorType
	switch anthErr.Error.Type {
	case "invalid_request_error":
		errType = core.ErrInvalidRequest
	case "authentication_error":
		errType = core.ErrAuthentication
	case "permission_error":
		errType = core.ErrPermission
	case "not_found_error":
		errType = core.ErrNotFound
	case "rate_limit_error":
		errType = core.ErrRateLimit
	case "api_error":
		errType = core.ErrAPI
	case "overloaded_error":
		errType = core.ErrOverloaded
	default:
		errType = core.ErrProvider
	}

	out := &core.Error{
		Type:          errType,
		Message:       "anthropic: " + anthErr.Error.Message,
		ProviderError: anthErr.Error,
	}
	if v, err := strconv.Atoi(resp.Header.Get("retry-after")); err == nil && v > 0 {
		out.RetryAfter = &v
	}
	return out
}
