package api

import (
	"errors"
	"net/http"

	"github.com/ignite/profile-mailer/internal/domain"
	"github.com/ignite/profile-mailer/internal/pkg/httputil"
)

// writeError maps domain errors to status codes. Anything unrecognised is
// logged and answered with a generic 500 so internals never reach clients.
func writeError(w http.ResponseWriter, err error) {
	var (
		ve *domain.ValidationError
		ce *domain.ConnectionError
	)
	switch {
	case errors.As(err, &ve):
		httputil.ErrorWithCode(w, http.StatusBadRequest, "validation_error", ve.Error())
	case errors.As(err, &ce):
		httputil.ErrorWithCode(w, http.StatusBadRequest, "smtp_connection_failed", ce.Error())
	case errors.Is(err, domain.ErrMissingRecipients):
		httputil.ErrorWithCode(w, http.StatusBadRequest, "no_recipients", "No valid recipients found")
	case errors.Is(err, domain.ErrNotFound):
		httputil.NotFound(w, publicNotFound(err))
	case errors.Is(err, domain.ErrConflict):
		httputil.Conflict(w, "resource is in use, try again shortly")
	case errors.Is(err, domain.ErrRateLimited):
		httputil.TooManyRequests(w, "too many requests, try again later")
	case errors.Is(err, domain.ErrUnauthorized):
		httputil.Unauthorized(w, "unauthorized")
	default:
		httputil.InternalError(w, err)
	}
}

// publicNotFound keeps the entity name but drops any wrapping context.
func publicNotFound(err error) string {
	var nf *domain.NotFoundError
	if errors.As(err, &nf) {
		return nf.Error()
	}
	return "not found"
}
