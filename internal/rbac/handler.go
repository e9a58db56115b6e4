package rbac

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/rukunwarga/rukun/internal/platform/httpx"
	"github.com/rukunwarga/rukun/internal/shared"
)

// Handler exposes the caller's own role and capabilities.
type Handler struct {
	model *Model
}

// NewHandler builds Handler instance.
func NewHandler(model *Model) *Handler {
	return &Handler{model: model}
}

// MountRoutes registers capability routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.me)
}

type meResponse struct {
	ID           string       `json:"id"`
	Role         RoleID       `json:"role"`
	Capabilities []Capability `json:"capabilities"`
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	p, ok := PrincipalFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthenticated)
		return
	}
	httpx.JSON(w, http.StatusOK, meResponse{ID: p.ID, Role: p.Role, Capabilities: h.model.Capabilities(p.Role)})
}
