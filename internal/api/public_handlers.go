package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/profile-mailer/internal/pkg/httputil"
	"github.com/ignite/profile-mailer/internal/service/contact"
	"github.com/ignite/profile-mailer/internal/service/subscriber"
)

// PublicSubscribe captures a visitor's sign-up. The response never reveals
// whether the address was already on the list beyond the status code.
func (h *Handlers) PublicSubscribe(w http.ResponseWriter, r *http.Request) {
	var in subscriber.Input
	if !httputil.Decode(w, r, &in) {
		return
	}
	_, created, err := h.subscribers.Subscribe(r.Context(), chi.URLParam(r, "slug"), in)
	if err != nil {
		writeError(w, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	httputil.JSON(w, status, map[string]bool{"success": true})
}

func (h *Handlers) PublicContact(w http.ResponseWriter, r *http.Request) {
	var in contact.Input
	if !httputil.Decode(w, r, &in) {
		return
	}
	if err := h.contact.Notify(r.Context(), chi.URLParam(r, "slug"), in); err != nil {
		writeError(w, err)
		return
	}
	httputil.OK(w, map[string]bool{"success": true})
}
