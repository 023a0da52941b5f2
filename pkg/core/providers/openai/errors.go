package openai

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/vango-go/poppy/pkg/core"
)

// openaiError represents an error response from OpenAI.
type openaiError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Param   string `json:"param,omitempty"`
		Code    string `json:"code,omitempty"`
	} `json:"error"`
}

// parseError maps an OpenAI error response onto core.Error.
func (p *Provider) parseError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var openaiErr openaiError
	if err := json.Unmarshal(body, &openaiErr); err != nil || openaiErr.Error.Message == "" {
		return &core.Error{
			Type:    core.ErrProvider,
			Message: "openai: " + string(body),
			Code:    strconv.Itoa(resp.StatusCode),
		}
	}

	var errType core.ErrorType
	switch openaiErr.Error.Type {
	case "invalid_request_error":
		errType = core.ErrInvalidRequest
	case "authentication_error":
		errType = core.ErrAuthentication
	case "permission_error", "insufficient_quota":
		errType = core.ErrPermission
	case "not_found_error":
		errType = core.ErrNotFound
	case "rate_limit_error":
		errType = core.ErrRateLimit
	case "server_error", "api_error":
		errType = core.ErrAPI
	case "overloaded_error", "service_unavailable":
		errType = core.ErrOverloaded
	default:
		errType = core.ErrProvider
	}

	// The status code wins for throttling.
	switch resp.StatusCode {
	case http.StatusTooManyRequests:
		errType = core.ErrRateLimit
	case http.StatusServiceUnavailable:
		errType = core.ErrOverloaded
	}

	return &core.Error{
		Type:          errType,
		Message:       "openai: " + openaiErr.Error.Message,
		Code:          openaiErr.Error.Code,
		Param:         openaiErr.Error.Param,
		ProviderError: openaiErr.Error,
	}
}
