package lifecycle

import (
	"errors"
	"fmt"
	"net/http"
)

// Stable error codes returned to API callers. Clients branch on the code,
// never on the message text.
const (
	CodeInvalidTransition = "invalid_transition"
	CodeUnauthorized      = "unauthorized"
	CodeMissingField      = "missing_field"
	CodeVersionConflict   = "version_conflict"
	CodeOpenDependency    = "open_dependency"
	CodeDuplicateInvoice  = "duplicate_invoice"
	CodeNotFound          = "not_found"
)

// Error is a domain-rule violation with a stable machine-readable code.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return e.Code + ": " + e.Message
}

func NewError(code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func InvalidTransition(entityType, from, to string) *Error {
	return NewError(CodeInvalidTransition, "%s cannot move from %s to %s", entityType, from, to)
}

func Unauthorized(role, entityType, to string) *Error {
	return NewError(CodeUnauthorized, "role %s may not move %s to %s", role, entityType, to)
}

func MissingField(field string) *Error {
	return NewError(CodeMissingField, "required field %s is missing", field)
}

func VersionConflict(expected, actual int) *Error {
	return NewError(CodeVersionConflict, "stale version %d, current is %d; refetch and retry", expected, actual)
}

func OpenDependency(format string, args ...interface{}) *Error {
	return NewError(CodeOpenDependency, format, args...)
}

func DuplicateInvoice(encounterID string) *Error {
	return NewError(CodeDuplicateInvoice, "encounter %s already has a non-cancelled invoice", encounterID)
}

func NotFound(entityType, id string) *Error {
	return NewError(CodeNotFound, "%s %s not found", entityType, id)
}

// CodeOf returns the stable code of err, or "" for non-domain errors.
func CodeOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// HTTPStatus maps a domain error to its HTTP status. Non-domain errors are
// treated as internal failures.
func HTTPStatus(err error) int {
	switch CodeOf(err) {
	case CodeInvalidTransition, CodeVersionConflict, CodeOpenDependency, CodeDuplicateInvoice:
		return http.StatusConflict
	case CodeUnauthorized:
		return http.StatusForbidden
	case CodeMissingField:
		return http.StatusUnprocessableEntity
	case CodeNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
