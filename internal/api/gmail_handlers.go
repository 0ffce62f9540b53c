package api

import (
	"net/http"

	"github.com/ignite/profile-mailer/internal/auth"
	"github.com/ignite/profile-mailer/internal/pkg/httputil"
)

func (h *Handlers) GmailStatus(w http.ResponseWriter, r *http.Request) {
	st, err := h.gmail.Status(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.OK(w, st)
}

func (h *Handlers) DisconnectGmail(w http.ResponseWriter, r *http.Request) {
	if err := h.gmail.Disconnect(r.Context(), auth.UserID(r.Context())); err != nil {
		writeError(w, err)
		return
	}
	httputil.NoContent(w)
}
