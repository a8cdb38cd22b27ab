package shared

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// ErrorKind classifies failures surfaced by the API client
type ErrorKind string

const (
	KindNetwork         ErrorKind = "network"
	KindUnauthenticated ErrorKind = "unauthenticated"
	KindValidation      ErrorKind = "validation"
	KindNotFound        ErrorKind = "not_found"
	KindServer          ErrorKind = "server"
)

// APIError is the tagged error returned by every remote or client-side
// validation failure.
type APIError struct {
	Kind   ErrorKind           `json:"kind"`
	Status int                 `json:"status,omitempty"`
	Code   string              `json:"code,omitempty"`
	Detail string              `json:"detail,omitempty"`
	Fields map[string][]string `json:"fields,omitempty"`
	Err    error               `json:"-"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Status != 0 {
		fmt.Fprintf(&b, " (%d)", e.Status)
	}
	if msg := e.Message(""); msg != "" {
		b.WriteString(": ")
		b.WriteString(msg)
	} else if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the underlying transport error, if any
func (e *APIError) Unwrap() error {
	return e.Err
}

// Message returns the server supplied detail, the first field error, or fallback.
func (e *APIError) Message(fallback string) string {
	if e.Detail != "" {
		return e.Detail
	}
	if len(e.Fields) > 0 {
		names := make([]string, 0, len(e.Fields))
		for name := range e.Fields {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			if msgs := e.Fields[name]; len(msgs) > 0 {
				return name + ": " + msgs[0]
			}
		}
	}
	return fallback
}

// NewNetworkError wraps a transport failure
func NewNetworkError(err error) *APIError {
	return &APIError{Kind: KindNetwork, Err: err}
}

// NewValidationError builds a client-side validation failure
func NewValidationError(fields map[string][]string) *APIError {
	return &APIError{
		Kind:   KindValidation,
		Status: http.StatusBadRequest,
		Code:   "INVALID_INPUT",
		Fields: fields,
	}
}

// KindForStatus maps an HTTP status code onto the error taxonomy
func KindForStatus(status int) ErrorKind {
	switch {
	case status == http.StatusUnauthorized:
		return KindUnauthenticated
	case status == http.StatusNotFound:
		return KindNotFound
	case status >= 500:
		return KindServer
	default:
		return KindValidation
	}
}

// AsAPIError extracts an *APIError from err
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// IsKind reports whether err is an APIError of the given kind
func IsKind(err error, kind ErrorKind) bool {
	apiErr, ok := AsAPIError(err)
	return ok && apiErr.Kind == kind
}

// ErrorMessage returns the user-facing message for err, using fallback when
// the error carries no server detail.
func ErrorMessage(err error, fallback string) string {
	if apiErr, ok := AsAPIError(err); ok {
		return apiErr.Message(fallback)
	}
	return fallback
}
