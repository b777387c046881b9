// Package apperr defines the domain error taxonomy shared by the reservation
// engine, the audit trail and the HTTP API.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"

	"github.com/google/uuid"
)

// Code is a machine-readable error code.
type Code string

const (
	CodeNotFound          Code = "NOT_FOUND"
	CodeInvalidArgument   Code = "INVALID_ARGUMENT"
	CodeConflict          Code = "CONFLICT"
	CodeInvalidTransition Code = "INVALID_TRANSITION"
	CodeForbidden         Code = "FORBIDDEN"
	CodeFatal             Code = "FATAL"
)

// HTTPStatus maps a code to the response status used by the API.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeNotFound:
		return http.StatusNotFound
	case CodeInvalidArgument:
		return http.StatusBadRequest
	case CodeConflict, CodeInvalidTransition:
		return http.StatusConflict
	case CodeForbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// Error is the domain error type with structured detail.
type Error struct {
	Code    Code
	Message string

	// ItemIDs lists the items the error is about, sorted.
	ItemIDs []uuid.UUID
	// Action is the attempted lifecycle action, if any.
	Action string

	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause for error chain traversal.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// Sentinels for errors.Is comparisons.
var (
	ErrNotFound          = &Error{Code: CodeNotFound}
	ErrInvalidArgument   = &Error{Code: CodeInvalidArgument}
	ErrConflict          = &Error{Code: CodeConflict}
	ErrInvalidTransition = &Error{Code: CodeInvalidTransition}
	ErrForbidden         = &Error{Code: CodeForbidden}
	ErrFatal             = &Error{Code: CodeFatal}
)

// CodeOf returns the code of the first *Error in err's chain, or "" if none.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// As returns the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}

// NotFound reports a missing resource.
func NotFound(format string, args ...any) *Error {
	return &Error{Code: CodeNotFound, Message: fmt.Sprintf(format, args...)}
}

// ItemsNotFound reports items that do not exist.
func ItemsNotFound(ids []uuid.UUID) *Error {
	sorted := sortIDs(ids)
	return &Error{
		Code:    CodeNotFound,
		Message: "items not found: " + joinIDs(sorted),
		ItemIDs: sorted,
	}
}

// InvalidArgument reports malformed input.
func InvalidArgument(format string, args ...any) *Error {
	return &Error{Code: CodeInvalidArgument, Message: fmt.Sprintf(format, args...)}
}

// Conflict reports items already allocated to an overlapping reservation.
func Conflict(ids []uuid.UUID) *Error {
	sorted := sortIDs(ids)
	return &Error{
		Code:    CodeConflict,
		Message: "items already reserved: " + joinIDs(sorted),
		ItemIDs: sorted,
	}
}

// InvalidTransition reports an action that is illegal in the item's state.
func InvalidTransition(itemID uuid.UUID, action, state string) *Error {
	return &Error{
		Code:    CodeInvalidTransition,
		Message: fmt.Sprintf("cannot %s item %s in state %s", action, itemID, state),
		ItemIDs: []uuid.UUID{itemID},
		Action:  action,
	}
}

// Forbidden reports an operation the caller is not privileged to perform.
func Forbidden(format string, args ...any) *Error {
	return &Error{Code: CodeForbidden, Message: fmt.Sprintf(format, args...)}
}

// Fatal reports a partially applied multi-document write.
func Fatal(cause error, format string, args ...any) *Error {
	return &Error{Code: CodeFatal, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// WithItems attaches the items the error is about.
func (e *Error) WithItems(ids []uuid.UUID) *Error {
	e.ItemIDs = sortIDs(ids)
	return e
}

func sortIDs(ids []uuid.UUID) []uuid.UUID {
	sorted := slices.Clone(ids)
	slices.SortFunc(sorted, func(a, b uuid.UUID) int {
		return strings.Compare(a.String(), b.String())
	})
	return slices.Compact(sorted)
}

func joinIDs(ids []uuid.UUID) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = id.String()
	}
	return strings.Join(parts, ", ")
}
