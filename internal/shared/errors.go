package shared

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
)

// Capture error taxonomy. Every failure that leaves the capture loop wraps
// exactly one of these.
var (
	ErrDeviceUnavailable = errors.New("device unavailable")
	ErrAuthFailure       = errors.New("auth failure")
	ErrTransport         = errors.New("transport error")
	ErrBackend           = errors.New("backend error")
)

type ErrorKind string

const (
	KindNone              ErrorKind = ""
	KindDeviceUnavailable ErrorKind = "device_unavailable"
	KindAuthFailure       ErrorKind = "auth_failure"
	KindTransport         ErrorKind = "transport_error"
	KindBackend           ErrorKind = "backend_error"
	KindUnknown           ErrorKind = "unknown"
)

// KindOf classifies err against the capture taxonomy.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrDeviceUnavailable):
		return KindDeviceUnavailable
	case errors.Is(err, ErrAuthFailure):
		return KindAuthFailure
	case errors.Is(err, ErrBackend):
		return KindBackend
	case errors.Is(err, ErrTransport):
		return KindTransport
	default:
		return KindUnknown
	}
}

type APIError struct {
	Code    string `json:"code" example:"invalid_request"`
	Message string `json:"message" example:"Invalid request body"`
	Details any    `json:"details,omitempty" swaggertype:"object"`
}

func NewAPIError(code, message string) *APIError {
	return &APIError{
		Code:    code,
		Message: message,
	}
}

func (e *APIError) WithDetails(details any) *APIError {
	e.Details = details
	return e
}

func (e *APIError) ToHTTP(status int) *echo.HTTPError {
	return echo.NewHTTPError(status, e)
}

func Conflict(code, message string) *echo.HTTPError {
	return NewAPIError(code, message).ToHTTP(http.StatusConflict)
}

func InternalError(code, message string) *echo.HTTPError {
	return NewAPIError(code, message).ToHTTP(http.StatusInternalServerError)
}
