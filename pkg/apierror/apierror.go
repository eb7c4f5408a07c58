package apierror

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrUnauthorized      = errors.New("unauthorized")
	ErrForbidden         = errors.New("forbidden")
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrBadRequest        = errors.New("bad request")
	ErrServer            = errors.New("server error")
	ErrMalformedResponse = errors.New("malformed response")
)

type APIError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Details    string `json:"details,omitempty"`
	HTTPStatus int    `json:"-"`
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}

	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Details)
	}

	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap maps the HTTP status onto the package sentinels so callers can use
// errors.Is without inspecting status codes.
func (e *APIError) Unwrap() error {
	if e == nil {
		return nil
	}
	if e.Code == CodeMalformed {
		return ErrMalformedResponse
	}

	switch {
	case e.HTTPStatus == http.StatusUnauthorized:
		return ErrUnauthorized
	case e.HTTPStatus == http.StatusForbidden:
		return ErrForbidden
	case e.HTTPStatus == http.StatusNotFound:
		return ErrNotFound
	case e.HTTPStatus == http.StatusConflict:
		return ErrConflict
	case e.HTTPStatus >= 500:
		return ErrServer
	case e.HTTPStatus >= 400:
		return ErrBadRequest
	}

	return nil
}

const (
	CodeUnauthorized = "UNAUTHORIZED"
	CodeForbidden    = "FORBIDDEN"
	CodeNotFound     = "NOT_FOUND"
	CodeConflict     = "CONFLICT"
	CodeBadRequest   = "BAD_REQUEST"
	CodeInternal     = "INTERNAL_ERROR"
	CodeMalformed    = "MALFORMED_RESPONSE"
)

func New(code string, message string, details string, status int) *APIError {
	return &APIError{Code: code, Message: message, Details: details, HTTPStatus: status}
}

// FromStatus builds the client-side error for a non-2xx response. message is
// the server's envelope message and may be empty.
func FromStatus(status int, message string) *APIError {
	code := CodeBadRequest
	fallback := "Request failed"

	switch {
	case status == http.StatusUnauthorized:
		code, fallback = CodeUnauthorized, "Your session has expired, please sign in again"
	case status == http.StatusForbidden:
		code, fallback = CodeForbidden, "You do not have permission to perform this action"
	case status == http.StatusNotFound:
		code, fallback = CodeNotFound, "The requested resource was not found"
	case status == http.StatusConflict:
		code, fallback = CodeConflict, "The resource already exists"
	case status >= 500:
		code, fallback = CodeInternal, "The server encountered an error, please try again later"
	}

	if message == "" {
		message = fallback
	}

	return New(code, message, "", status)
}
