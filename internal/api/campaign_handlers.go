package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/profile-mailer/internal/auth"
	"github.com/ignite/profile-mailer/internal/pkg/httputil"
	"github.com/ignite/profile-mailer/internal/service/campaign"
)

func (h *Handlers) ListCampaigns(w http.ResponseWriter, r *http.Request) {
	p := ParsePagination(r, 20, 100)
	list, total, err := h.campaigns.List(r.Context(), auth.UserID(r.Context()), campaign.ListFilter{
		Status: r.URL.Query().Get("status"),
		Limit:  p.Limit,
		Offset: p.Offset,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.OK(w, NewPaginatedResponse(list, p, total))
}

func (h *Handlers) GetCampaign(w http.ResponseWriter, r *http.Request) {
	d, err := h.campaigns.Get(r.Context(), auth.UserID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.OK(w, d)
}

func (h *Handlers) DeleteCampaign(w http.ResponseWriter, r *http.Request) {
	if err := h.campaigns.Delete(r.Context(), auth.UserID(r.Context()), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	httputil.NoContent(w)
}
