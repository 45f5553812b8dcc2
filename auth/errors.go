package auth

import (
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
)

var (
	// ErrNoToken means no cached token exists and prompting was not allowed.
	ErrNoToken = errors.New("no auth token available")
	// ErrAuthDenied means the user declined consent or the platform refused.
	ErrAuthDenied = errors.New("authorization denied")
)

// AuthError wraps ErrNoToken or ErrAuthDenied with the failing operation.
type AuthError struct {
	Op  string
	Err error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth: %s: %v", e.Op, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// RevokeError is a failed remote revoke. It is logged, never returned.
type RevokeError struct {
	Status int
	Err    error
}

func (e *RevokeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("token revoke failed: %v", e.Err)
	}
	return fmt.Sprintf("token revoke failed with status %d", e.Status)
}

func (e *RevokeError) Unwrap() error { return e.Err }

// StatusCoder is implemented by errors that carry an HTTP status.
type StatusCoder interface {
	HTTPStatus() int
}

// StatusOf extracts the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var sc StatusCoder
	if errors.As(err, &sc) {
		return sc.HTTPStatus()
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return gerr.Code
	}
	var rerr *oauth2.RetrieveError
	if errors.As(err, &rerr) && rerr.Response != nil {
		return rerr.Response.StatusCode
	}
	return 0
}

// IsUnauthorized reports whether err is an explicit 401 or 403, the only
// answers that justify refreshing the token and retrying.
func IsUnauthorized(err error) bool {
	switch StatusOf(err) {
	case http.StatusUnauthorized, http.StatusForbidden:
		return true
	}
	return false
}
