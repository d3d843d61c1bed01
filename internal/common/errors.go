package common

import (
	"errors"
	"net/http"
)

var (
	ErrBadRequest       = errors.New("bad request")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrForbidden        = errors.New("forbidden")
	ErrNotFound         = errors.New("not found")
	ErrGone             = errors.New("gone")
	ErrModelUnavailable = errors.New("model unavailable")
	ErrSlugExhausted    = errors.New("share id generation exhausted")
	ErrRateLimited      = errors.New("rate limited")
)

// StatusFor maps an error (possibly wrapped) to the HTTP status that reports it.
func StatusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrGone):
		return http.StatusGone
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrModelUnavailable):
		return http.StatusBadGateway
	case errors.Is(err, ErrSlugExhausted):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// MessageFor returns the client-facing message for err. Unknown errors are
// reported generically so internal detail never leaks.
func MessageFor(err error) string {
	switch StatusFor(err) {
	case http.StatusBadRequest:
		return "invalid request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusForbidden:
		return "access denied"
	case http.StatusNotFound:
		return "resource not found"
	case http.StatusGone:
		return "resource has expired"
	case http.StatusTooManyRequests:
		return "too many requests"
	case http.StatusBadGateway:
		return "model backend unavailable"
	case http.StatusServiceUnavailable:
		return "could not allocate share id"
	default:
		return "internal server error"
	}
}
