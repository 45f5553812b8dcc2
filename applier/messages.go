package applier

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"outline_assistant/auth"
	"outline_assistant/hostview"
)

// FriendlyMessage turns an insertion failure into text fit for the sidebar.
func FriendlyMessage(err error) string {
	if err == nil {
		return ""
	}
	switch auth.StatusOf(err) {
	case http.StatusForbidden:
		return "Permission denied: You need edit access to this document"
	case http.StatusUnauthorized:
		return "Authentication error: Please try again or sign in again"
	case http.StatusNotFound:
		return "Document not found: The document may have been deleted or moved"
	case http.StatusTooManyRequests:
		return "API rate limit exceeded: Please try again in a moment"
	}
	switch {
	case strings.Contains(err.Error(), "Rate Limit Exceeded"):
		return "API rate limit exceeded: Please try again in a moment"
	case errors.Is(err, auth.ErrAuthDenied):
		return "Authorization denied: Allow access to your documents and try again"
	case errors.Is(err, auth.ErrNoToken):
		return "Not signed in: Sign in to edit this document"
	case errors.Is(err, hostview.ErrContainerMissing):
		return "Editor not ready: The document did not finish loading"
	case errors.Is(err, context.DeadlineExceeded):
		return "Request timed out: Please try again"
	}
	return err.Error()
}
