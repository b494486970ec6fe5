package apperr

import (
	"errors"
	"net/http"
)

// Authentication errors
var (
	ErrUnauthenticated    = errors.New("missing bearer token")               // 401
	ErrTokenInvalid       = errors.New("invalid token")                      // 401
	ErrTokenExpired       = errors.New("token has expired")                  // 401
	ErrTokenMalformed     = errors.New("token claims are malformed")         // 401
	ErrSessionRevoked     = errors.New("session is no longer active")        // 401
	ErrInvalidCredentials = errors.New("invalid username or password")       // 401
	ErrRateLimited        = errors.New("too many attempts, try again later") // 429
)

// Data errors
var (
	ErrAlreadyExists = errors.New("username already exists") // 409
	ErrNotFound      = errors.New("employee not found")      // 404
	// ErrForbidden is reported as 404 so callers cannot probe other owners' records.
	ErrForbidden    = errors.New("employee not owned by caller") // 404
	ErrInvalidInput = errors.New("invalid input")                // 400
	ErrPhotoMissing = errors.New("photo not found")              // 404
)

// Infrastructure errors
var (
	ErrUpstreamUnavailable = errors.New("photo service unavailable")    // 502
	ErrInternalStore       = errors.New("storage backend unavailable")  // 500
	ErrDeserialization     = errors.New("stored payload is unreadable") // 500
)

// StatusCode maps an error chain to the HTTP status reported to clients.
func StatusCode(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrUnauthenticated),
		errors.Is(err, ErrTokenInvalid),
		errors.Is(err, ErrTokenExpired),
		errors.Is(err, ErrTokenMalformed),
		errors.Is(err, ErrSessionRevoked),
		errors.Is(err, ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrForbidden), errors.Is(err, ErrPhotoMissing):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrUpstreamUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Message returns the client-facing text for err. Wrapped detail is kept only
// for client errors; server-side failures collapse to their sentinel text so
// driver messages and addresses never reach the payload.
func Message(err error) string {
	if err == nil {
		return ""
	}
	switch {
	case errors.Is(err, ErrForbidden), errors.Is(err, ErrNotFound):
		return ErrNotFound.Error()
	case errors.Is(err, ErrInvalidInput):
		return err.Error()
	}
	for _, sentinel := range []error{
		ErrUnauthenticated, ErrTokenInvalid, ErrTokenExpired, ErrTokenMalformed,
		ErrSessionRevoked, ErrInvalidCredentials, ErrRateLimited, ErrAlreadyExists,
		ErrPhotoMissing, ErrUpstreamUnavailable, ErrInternalStore, ErrDeserialization,
	} {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return "internal error"
}
