package documents

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/rukunwarga/rukun/internal/lifecycle"
	"github.com/rukunwarga/rukun/internal/platform/httpx"
	"github.com/rukunwarga/rukun/internal/rbac"
	"github.com/rukunwarga/rukun/internal/shared"
)

// Handler exposes document request endpoints.
type Handler struct {
	service *Service
}

// NewHandler builds Handler instance.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// MountRoutes registers document routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.submit)
	r.Get("/{id}", h.get)
	r.Post("/{id}/{action}", h.review)
}

var actionTargets = map[string]lifecycle.State{
	"approve":  lifecycle.DocumentApproved,
	"reject":   lifecycle.DocumentRejected,
	"complete": lifecycle.DocumentCompleted,
}

type reviewBody struct {
	Reason string `json:"reason"`
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
	p, ok := rbac.PrincipalFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthenticated)
		return
	}
	var input SubmitInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	req, err := h.service.Submit(r.Context(), p, input)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toResponse(req))
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	p, ok := rbac.PrincipalFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthenticated)
		return
	}
	req, err := h.service.Get(r.Context(), p, chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(req))
}

func (h *Handler) review(w http.ResponseWriter, r *http.Request) {
	p, ok := rbac.PrincipalFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthenticated)
		return
	}
	target, ok := actionTargets[strings.ToLower(chi.URLParam(r, "action"))]
	if !ok {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "unknown action")
		return
	}
	var body reviewBody
	if r.ContentLength != 0 {
		if err := httpx.DecodeJSON(r, &body); err != nil {
			httpx.RespondError(w, err)
			return
		}
	}
	req, err := h.service.Review(r.Context(), p, chi.URLParam(r, "id"), ReviewInput{Target: target, Reason: body.Reason})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(req))
}

type response struct {
	ID           string          `json:"id"`
	WargaID      string          `json:"warga_id"`
	Type         string          `json:"type"`
	Purpose      string          `json:"purpose"`
	Status       lifecycle.State `json:"status"`
	RejectReason string          `json:"reject_reason,omitempty"`
	ReviewedBy   string          `json:"reviewed_by,omitempty"`
}

func toResponse(req Request) response {
	return response{
		ID:           req.ID,
		WargaID:      req.WargaID,
		Type:         req.Type,
		Purpose:      req.Purpose,
		Status:       req.Status,
		RejectReason: req.RejectReason,
		ReviewedBy:   req.ReviewedBy,
	}
}
