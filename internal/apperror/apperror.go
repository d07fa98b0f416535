// Package apperror defines the error taxonomy returned by the service
// layer and maps it to HTTP statuses and field-level detail at the
// boundary.
package apperror

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
)

// ValidationError reports malformed or out-of-bounds input with
// per-field detail.
type ValidationError struct {
	Fields []map[string]string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %d invalid field(s)", len(e.Fields))
}

// NewValidationError builds a single-field validation error.
func NewValidationError(field, msg string) *ValidationError {
	return &ValidationError{Fields: []map[string]string{{field: msg}}}
}

// ConflictError reports a violated uniqueness or business invariant.
type ConflictError struct {
	Msg string
}

func (e *ConflictError) Error() string { return e.Msg }

// NotFoundError reports an unknown resource, or one the caller is not
// allowed to see. The two cases are deliberately indistinguishable.
type NotFoundError struct {
	Resource string
}

func (e *NotFoundError) Error() string { return e.Resource + " not found" }

// InvalidStateError reports an operation attempted in a lifecycle state
// that does not allow it. State carries the current state so the client
// can correct itself.
type InvalidStateError struct {
	Op    string
	State string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("%s not allowed while challenge is %s", e.Op, e.State)
}

// OutOfRangeError reports a date outside the challenge window.
type OutOfRangeError struct {
	Date string
}

func (e *OutOfRangeError) Error() string {
	return fmt.Sprintf("date %s is outside the challenge period", e.Date)
}

// DuplicateError reports an already-recorded check-in for a date.
type DuplicateError struct {
	Date string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("already checked in on %s", e.Date)
}

var messages = map[string]string{
	"required": "is required",
	"max":      "is too long",
	"min":      "is too short",
	"oneof":    "must be one of the allowed values",
	"gte":      "is below the minimum",
	"lte":      "is above the maximum",
}

// FromValidator converts go-playground validator errors into a
// ValidationError with one entry per offending field.
func FromValidator(err error) *ValidationError {
	out := &ValidationError{}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, e := range verrs {
			msg, ok := messages[e.Tag()]
			if !ok {
				msg = fmt.Sprintf("failed %s validation", e.Tag())
			}
			out.Fields = append(out.Fields, map[string]string{e.Field(): msg})
		}
		return out
	}

	out.Fields = append(out.Fields, map[string]string{"body": err.Error()})
	return out
}

// HTTPStatus maps a service error to the status code the transport layer
// should answer with. Unrecognized errors are internal failures.
func HTTPStatus(err error) int {
	var (
		validation *ValidationError
		conflict   *ConflictError
		notFound   *NotFoundError
		state      *InvalidStateError
		outOfRange *OutOfRangeError
		duplicate  *DuplicateError
	)

	switch {
	case errors.As(err, &validation):
		return http.StatusBadRequest
	case errors.As(err, &notFound):
		return http.StatusNotFound
	case errors.As(err, &conflict), errors.As(err, &duplicate):
		return http.StatusConflict
	case errors.As(err, &state), errors.As(err, &outOfRange):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
