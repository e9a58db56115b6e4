package announcements

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/rukunwarga/rukun/internal/lifecycle"
	"github.com/rukunwarga/rukun/internal/platform/httpx"
	"github.com/rukunwarga/rukun/internal/rbac"
	"github.com/rukunwarga/rukun/internal/shared"
	"github.com/rukunwarga/rukun/internal/visibility"
)

// Handler exposes announcement endpoints.
type Handler struct {
	service *Service
}

// NewHandler builds Handler instance.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// MountRoutes registers announcement routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/{id}", h.get)
	r.Delete("/{id}", h.delete)
	r.Post("/{id}/publish", h.publish)
}

type response struct {
	ID          string                 `json:"id"`
	Title       string                 `json:"title"`
	Body        string                 `json:"body"`
	Status      lifecycle.State        `json:"status"`
	ExpiresAt   *time.Time             `json:"expires_at,omitempty"`
	PublishedAt *time.Time             `json:"published_at,omitempty"`
	Recipients  []visibility.Recipient `json:"recipients"`
}

func toResponse(a Announcement) response {
	recipients := a.Recipients
	if recipients == nil {
		recipients = []visibility.Recipient{}
	}
	return response{
		ID:          a.ID,
		Title:       a.Title,
		Body:        a.Body,
		Status:      a.Status,
		ExpiresAt:   a.ExpiresAt,
		PublishedAt: a.PublishedAt,
		Recipients:  recipients,
	}
}

func principal(w http.ResponseWriter, r *http.Request) (rbac.Principal, bool) {
	p, ok := rbac.PrincipalFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthenticated)
	}
	return p, ok
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	items, err := h.service.ListVisible(r.Context(), p, limit)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := make([]response, len(items))
	for i, a := range items {
		out[i] = toResponse(a)
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var input CreateInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	a, err := h.service.Create(r.Context(), p, input)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toResponse(a))
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	a, err := h.service.Get(r.Context(), p, chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(a))
}

func (h *Handler) publish(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	a, err := h.service.Publish(r.Context(), p, chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(a))
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), p, chi.URLParam(r, "id")); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
