package ndax

import (
	"errors"
	"strings"

	"ndax-connector/internal/core"
)

const (
	apiCodeNotAuthorized    = 20
	apiCodeResourceNotFound = 104
)

var apiErrorMessageKinds = map[string]error{
	"not authorized":     core.ErrAuthenticationFailed,
	"invalid request":    core.ErrOrderRejected,
	"resource not found": core.ErrOrderNotFound,
}

func wrapAPIError(code int, msg string) error {
	return classifyAPIError(APIError{Code: code, Msg: msg})
}

func classifyAPIError(apiErr APIError) error {
	kind := classifyAPIErrorKind(apiErr)
	if kind == nil {
		return apiErr
	}
	return errors.Join(apiErr, kind)
}

func classifyAPIErrorKind(apiErr APIError) error {
	switch apiErr.Code {
	case apiCodeNotAuthorized:
		return core.ErrAuthenticationFailed
	case apiCodeResourceNotFound:
		return core.ErrOrderNotFound
	}
	if kind, ok := apiErrorMessageKinds[normalizeAPIErrorMsg(apiErr.Msg)]; ok {
		return kind
	}
	return nil
}

func normalizeAPIErrorMsg(msg string) string {
	return strings.ToLower(strings.TrimSpace(msg))
}

func AsAPIError(err error) (APIError, bool) {
	if err == nil {
		return APIError{}, false
	}
	var apiErr APIError
	if !errors.As(err, &apiErr) {
		return APIError{}, false
	}
	return apiErr, true
}

func IsAPIErrorCode(err error, codes ...int) bool {
	apiErr, ok := AsAPIError(err)
	if !ok {
		return false
	}
	for _, code := range codes {
		if apiErr.Code == code {
			return true
		}
	}
	return false
}
