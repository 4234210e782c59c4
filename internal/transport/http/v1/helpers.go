package v1

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/gogo/chatrelay/internal/domain"
)

// Error categories carried in the error body.
const (
	CodeNotFound       = "not_found"
	CodeStorageError   = "storage_error"
	CodeInvalidRequest = "invalid_request"
	CodeInternalError  = "internal_error"
)

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(c echo.Context, status int, code, message string) error {
	return c.JSON(status, ErrorBody{Error: ErrorDetail{Code: code, Message: message}})
}

// classify maps an error to its HTTP status and error category.
func classify(err error) (int, string, string) {
	var httpErr *echo.HTTPError
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, CodeNotFound, domain.ErrNotFound.Error()
	case domain.IsStorageError(err):
		return http.StatusInternalServerError, CodeStorageError, err.Error()
	case errors.As(err, &httpErr):
		msg := http.StatusText(httpErr.Code)
		if m, ok := httpErr.Message.(string); ok {
			msg = m
		}
		switch {
		case httpErr.Code == http.StatusNotFound:
			return httpErr.Code, CodeNotFound, msg
		case httpErr.Code >= 400 && httpErr.Code < 500:
			return httpErr.Code, CodeInvalidRequest, msg
		default:
			return httpErr.Code, CodeInternalError, msg
		}
	default:
		return http.StatusInternalServerError, CodeInternalError, err.Error()
	}
}

func respondError(c echo.Context, err error) error {
	status, code, message := classify(err)
	return writeError(c, status, code, message)
}

// ErrorHandler renders errors returned by any handler, including the
// websocket route, in the same shape as the directory errors.
func ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	if err := respondError(c, err); err != nil {
		c.Logger().Error(err)
	}
}
