package errcodes

import (
	"fmt"
	"net/http"

	"github.com/pkg/errors"
)

const (
	CodeNotFound        = "not_found"
	CodeConflict        = "conflict"
	CodeCyclicStructure = "cyclic_course_structure"
)

type Error struct {
	HTTPCode int
	Message  string
	Code     string
}

func (err *Error) Error() string {
	return err.Message
}

func (err *Error) As(target interface{}) bool {
	te, ok := target.(*Error)
	if !ok {
		return false
	}
	te.HTTPCode = err.HTTPCode
	te.Message = err.Message
	te.Code = err.Code
	return true
}

func (err *Error) Is(target error) bool {
	te, ok := target.(*Error)
	if !ok {
		return false
	}
	return te.HTTPCode == err.HTTPCode &&
		te.Message == err.Message &&
		te.Code == err.Code
}

// HasCode reports whether err wraps an *Error with the given code.
func HasCode(err error, code string) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == code
}

// Unauthorized returns a 401 error with the given message.
func Unauthorized(msg string) error {
	return &Error{
		http.StatusUnauthorized,
		msg,
		"unauthorized",
	}
}

// Forbidden returns a 403 error with the given message.
func Forbidden(msg string) error {
	return &Error{
		http.StatusForbidden,
		msg,
		"forbidden",
	}
}

// NotFound returns a 404 error with a message indicating the given resource.
func NotFound(resource string) error {
	return &Error{
		http.StatusNotFound,
		resource + " not found.",
		CodeNotFound,
	}
}

// Conflict returns a 409 error for a resource that already exists.
func Conflict(msg string) error {
	return &Error{
		http.StatusConflict,
		msg,
		CodeConflict,
	}
}

// CyclicStructure returns a 422 error for an edge that would make the course
// chapter graph cyclic. The message names the rejected edge.
func CyclicStructure(fromChapterID, toChapterID int) error {
	return &Error{
		http.StatusUnprocessableEntity,
		fmt.Sprintf("Cyclic course structure: chapter %d can't precede chapter %d.", fromChapterID, toChapterID),
		CodeCyclicStructure,
	}
}

func UnsupportedMediaType() error {
	return &Error{
		http.StatusUnsupportedMediaType,
		"Unsupported Media Type",
		"unsupported_media_type",
	}
}

func UnknownParameter(param string) error {
	return &Error{
		http.StatusUnprocessableEntity,
		fmt.Sprintf("Unknown Parameter %q", param),
		"unknown_parameter",
	}
}

func ValidationTypeError(msg string) error {
	return &Error{
		http.StatusUnprocessableEntity,
		msg,
		"validation_type_error",
	}
}

func ValidationError(msg string) error {
	return &Error{
		http.StatusUnprocessableEntity,
		msg,
		"validation_error",
	}
}

func MalformedPayload() error {
	return &Error{
		http.StatusBadRequest,
		"Malformed Payload",
		"malformed_payload",
	}
}

func EmptyRequestBody() error {
	return &Error{
		http.StatusBadRequest,
		"Request body can't be empty.",
		"empty_request_body",
	}
}
