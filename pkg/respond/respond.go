// Package respond maps domain errors onto HTTP responses with stable,
// machine-readable codes so clients can branch on failures without parsing
// messages.
package respond

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/hospitalos/hms/internal/lifecycle"
)

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error writes err as a JSON error response. Lifecycle errors keep their code
// and mapped status; echo HTTP errors pass through; anything else is a 500.
func Error(c echo.Context, err error) error {
	var lcErr *lifecycle.Error
	if errors.As(err, &lcErr) {
		return c.JSON(lifecycle.HTTPStatus(err), ErrorBody{
			Code:    lcErr.Code,
			Message: lcErr.Message,
		})
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg, ok := he.Message.(string)
		if !ok {
			msg = http.StatusText(he.Code)
		}
		return c.JSON(he.Code, ErrorBody{Code: "bad_request", Message: msg})
	}

	return c.JSON(http.StatusInternalServerError, ErrorBody{
		Code:    "internal",
		Message: "internal server error",
	})
}
