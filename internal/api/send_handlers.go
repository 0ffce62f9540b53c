package api

import (
	"net/http"

	"github.com/ignite/profile-mailer/internal/auth"
	"github.com/ignite/profile-mailer/internal/pkg/httputil"
	"github.com/ignite/profile-mailer/internal/service/sending"
)

// HandleGmailSend sends a campaign through the user's connected mailbox.
func (h *Handlers) HandleGmailSend(w http.ResponseWriter, r *http.Request) {
	var req sending.SendRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	res, err := h.sender.SendGmail(r.Context(), auth.UserID(r.Context()), req)
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.OK(w, res)
}

// HandleSMTPSend sends a campaign through a stored SMTP setting.
func (h *Handlers) HandleSMTPSend(w http.ResponseWriter, r *http.Request) {
	var req sending.SendRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	res, err := h.sender.SendSMTP(r.Context(), auth.UserID(r.Context()), req)
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.OK(w, res)
}
