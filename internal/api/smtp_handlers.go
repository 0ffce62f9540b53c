package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/profile-mailer/internal/auth"
	"github.com/ignite/profile-mailer/internal/pkg/httputil"
	"github.com/ignite/profile-mailer/internal/service/smtpsetting"
)

func (h *Handlers) ListSmtpSettings(w http.ResponseWriter, r *http.Request) {
	list, err := h.smtpSettings.List(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.OK(w, map[string]any{"data": list})
}

func (h *Handlers) CreateSmtpSetting(w http.ResponseWriter, r *http.Request) {
	var in smtpsetting.Input
	if !httputil.Decode(w, r, &in) {
		return
	}
	s, err := h.smtpSettings.Create(r.Context(), auth.UserID(r.Context()), in)
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.Created(w, s)
}

func (h *Handlers) UpdateSmtpSetting(w http.ResponseWriter, r *http.Request) {
	var in smtpsetting.Input
	if !httputil.Decode(w, r, &in) {
		return
	}
	s, err := h.smtpSettings.Update(r.Context(), auth.UserID(r.Context()), chi.URLParam(r, "id"), in)
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.OK(w, s)
}

func (h *Handlers) DeleteSmtpSetting(w http.ResponseWriter, r *http.Request) {
	if err := h.smtpSettings.Delete(r.Context(), auth.UserID(r.Context()), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	httputil.NoContent(w)
}

// TestSmtpSetting verifies the stored credentials without sending.
func (h *Handlers) TestSmtpSetting(w http.ResponseWriter, r *http.Request) {
	if err := h.smtpSettings.Test(r.Context(), auth.UserID(r.Context()), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	httputil.OK(w, map[string]bool{"success": true})
}
