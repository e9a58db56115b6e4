package payments

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/rukunwarga/rukun/internal/bulk"
	"github.com/rukunwarga/rukun/internal/lifecycle"
	"github.com/rukunwarga/rukun/internal/platform/httpx"
	"github.com/rukunwarga/rukun/internal/rbac"
	"github.com/rukunwarga/rukun/internal/shared"
)

const dateLayout = "2006-01-02"

// DuesEnqueuer hands a generation run to the background worker.
type DuesEnqueuer interface {
	EnqueueDuesGenerate(ctx context.Context, p rbac.Principal, input GenerateInput) (string, error)
}

// Handler exposes payment endpoints.
type Handler struct {
	service  *Service
	enqueuer DuesEnqueuer
	loc      *time.Location
}

// NewHandler builds Handler instance. enqueuer may be nil, which disables async runs.
func NewHandler(service *Service, enqueuer DuesEnqueuer, loc *time.Location) *Handler {
	if loc == nil {
		loc = time.UTC
	}
	return &Handler{service: service, enqueuer: enqueuer, loc: loc}
}

// MountRoutes registers payment routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/{id}/status", h.updateStatus)
	r.Post("/bulk", h.generate)
	r.Delete("/bulk", h.deleteBulk)
}

type statusRequest struct {
	Status lifecycle.State `json:"status"`
}

type paymentResponse struct {
	ID      string          `json:"id"`
	WargaID string          `json:"warga_id"`
	Type    string          `json:"type"`
	Amount  decimal.Decimal `json:"amount"`
	DueDate string          `json:"due_date"`
	Status  lifecycle.State `json:"status"`
	PaidAt  *time.Time      `json:"paid_at,omitempty"`
}

type generateRequest struct {
	Type           string          `json:"type"`
	Amount         decimal.Decimal `json:"amount"`
	Description    string          `json:"description"`
	DueDate        string          `json:"due_date"`
	Status         lifecycle.State `json:"status"`
	IdempotencyKey string          `json:"idempotency_key"`
}

func (h *Handler) updateStatus(w http.ResponseWriter, r *http.Request) {
	p, ok := rbac.PrincipalFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthenticated)
		return
	}
	var req statusRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	target := lifecycle.State(strings.ToUpper(strings.TrimSpace(string(req.Status))))
	payment, err := h.service.UpdateStatus(r.Context(), p, chi.URLParam(r, "id"), target)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, paymentResponse{
		ID:      payment.ID,
		WargaID: payment.WargaID,
		Type:    payment.Type,
		Amount:  payment.Amount,
		DueDate: payment.DueDate.Format(dateLayout),
		Status:  payment.Status,
		PaidAt:  payment.PaidAt,
	})
}

func (h *Handler) generate(w http.ResponseWriter, r *http.Request) {
	p, ok := rbac.PrincipalFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthenticated)
		return
	}
	var req generateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	due, err := time.ParseInLocation(dateLayout, req.DueDate, h.loc)
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: due_date must be YYYY-MM-DD", shared.ErrValidation))
		return
	}
	input := GenerateInput{
		Template: bulk.Template{
			Type:        strings.TrimSpace(req.Type),
			Amount:      req.Amount,
			Description: req.Description,
			DueDate:     due,
			Status:      req.Status,
		},
		IdempotencyKey: strings.TrimSpace(req.IdempotencyKey),
	}
	if async, _ := strconv.ParseBool(r.URL.Query().Get("async")); async && h.enqueuer != nil {
		if err := h.service.authorizeBulk(p); err != nil {
			httpx.RespondError(w, err)
			return
		}
		taskID, err := h.enqueuer.EnqueueDuesGenerate(r.Context(), p, input)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		httpx.JSON(w, http.StatusAccepted, map[string]string{"task_id": taskID})
		return
	}
	res, err := h.service.GenerateDues(r.Context(), p, input)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, res)
}

func (h *Handler) deleteBulk(w http.ResponseWriter, r *http.Request) {
	p, ok := rbac.PrincipalFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthenticated)
		return
	}
	scope, err := h.parseScope(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	res, err := h.service.DeleteDues(r.Context(), p, scope)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}

func (h *Handler) parseScope(r *http.Request) (bulk.Scope, error) {
	q := r.URL.Query()
	var scope bulk.Scope
	if raw := q.Get("month"); raw != "" {
		month, err := strconv.Atoi(raw)
		if err != nil {
			return bulk.Scope{}, fmt.Errorf("%w: month must be a number", shared.ErrValidation)
		}
		scope.Month = month
	}
	if raw := q.Get("year"); raw != "" {
		year, err := strconv.Atoi(raw)
		if err != nil {
			return bulk.Scope{}, fmt.Errorf("%w: year must be a number", shared.ErrValidation)
		}
		scope.Year = year
	}
	if raw := q.Get("date"); raw != "" {
		date, err := time.ParseInLocation(dateLayout, raw, h.loc)
		if err != nil {
			return bulk.Scope{}, fmt.Errorf("%w: date must be YYYY-MM-DD", shared.ErrValidation)
		}
		scope.Date = &date
	}
	scope.Type = strings.TrimSpace(q.Get("type"))
	scope.Status = lifecycle.State(strings.ToUpper(strings.TrimSpace(q.Get("status"))))
	return scope, nil
}
