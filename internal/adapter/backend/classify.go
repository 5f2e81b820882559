// Package backend tags failures from remote model and storage backends.
package backend

import (
	"errors"
	"net"
	"net/http"
	"syscall"

	openai "github.com/sashabaranov/go-openai"

	"pdfrag/internal/domain"
)

// Wrap tags err with kind, marking it unavailable when the backend could
// not be reached or answered with a server error.
func Wrap(kind domain.Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	if Unreachable(err) {
		return domain.Unavailable(kind, op, err)
	}
	return domain.E(kind, op, err)
}

// Unreachable reports whether err means the backend is down rather than
// that the request or response was bad.
func Unreachable(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode >= http.StatusInternalServerError
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode >= http.StatusInternalServerError
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Code >= http.StatusInternalServerError
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// StatusError is a non-2xx reply from a plain HTTP backend.
type StatusError struct {
	Method string
	URL    string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	msg := e.Method + " " + e.URL + " failed: " + http.StatusText(e.Code)
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}
