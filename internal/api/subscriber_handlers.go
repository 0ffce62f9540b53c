package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/profile-mailer/internal/auth"
	"github.com/ignite/profile-mailer/internal/pkg/httputil"
	"github.com/ignite/profile-mailer/internal/service/subscriber"
)

func (h *Handlers) ListSubscribers(w http.ResponseWriter, r *http.Request) {
	p := ParsePagination(r, 100, 1000)
	q := r.URL.Query()
	list, total, err := h.subscribers.List(r.Context(), auth.UserID(r.Context()), subscriber.ListFilter{
		Search:     q.Get("search"),
		ActiveOnly: q.Get("active") == "true",
		Limit:      p.Limit,
		Offset:     p.Offset,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.OK(w, NewPaginatedResponse(list, p, total))
}

func (h *Handlers) CreateSubscriber(w http.ResponseWriter, r *http.Request) {
	var in subscriber.Input
	if !httputil.Decode(w, r, &in) {
		return
	}
	sub, created, err := h.subscribers.Add(r.Context(), auth.UserID(r.Context()), in)
	if err != nil {
		writeError(w, err)
		return
	}
	if created {
		httputil.Created(w, sub)
		return
	}
	httputil.OK(w, sub)
}

type activeRequest struct {
	IsActive *bool `json:"is_active"`
}

func (h *Handlers) UpdateSubscriber(w http.ResponseWriter, r *http.Request) {
	var req activeRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	if req.IsActive == nil {
		httputil.BadRequest(w, "is_active is required")
		return
	}
	if err := h.subscribers.SetActive(r.Context(), auth.UserID(r.Context()), chi.URLParam(r, "id"), *req.IsActive); err != nil {
		writeError(w, err)
		return
	}
	httputil.NoContent(w)
}

func (h *Handlers) DeleteSubscriber(w http.ResponseWriter, r *http.Request) {
	if _, err := h.subscribers.Delete(r.Context(), auth.UserID(r.Context()), []string{chi.URLParam(r, "id")}); err != nil {
		writeError(w, err)
		return
	}
	httputil.NoContent(w)
}
