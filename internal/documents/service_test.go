package documents

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/rukunwarga/rukun/internal/access"
	"github.com/rukunwarga/rukun/internal/lifecycle"
	"github.com/rukunwarga/rukun/internal/rbac"
	"github.com/rukunwarga/rukun/internal/shared"
)

type memoryRepo struct {
	mu         sync.Mutex
	requests   map[string]Request
	activities []shared.ActivityLog
	nextID     int
}

type memoryTx struct {
	repo       *memoryRepo
	requests   map[string]Request
	activities []shared.ActivityLog
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{requests: make(map[string]Request)}
}

// WithTx serializes callers and only publishes writes when fn succeeds.
func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	tx := &memoryTx{repo: r, requests: make(map[string]Request)}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	for id, req := range tx.requests {
		r.requests[id] = req
	}
	r.activities = append(r.activities, tx.activities...)
	return nil
}

func (r *memoryRepo) Get(_ context.Context, id string) (Request, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.requests[id]
	if !ok {
		return Request{}, shared.ErrNotFound
	}
	return req, nil
}

func (tx *memoryTx) Insert(_ context.Context, req Request) (Request, error) {
	tx.repo.nextID++
	req.ID = fmt.Sprintf("doc-%d", tx.repo.nextID)
	tx.requests[req.ID] = req
	return req, nil
}

func (tx *memoryTx) GetForUpdate(_ context.Context, id string) (Request, error) {
	req, ok := tx.repo.requests[id]
	if !ok {
		return Request{}, shared.ErrNotFound
	}
	return req, nil
}

func (tx *memoryTx) UpdateReview(_ context.Context, id string, status lifecycle.State, reason, reviewer string, at time.Time) error {
	req := tx.repo.requests[id]
	req.Status = status
	req.RejectReason = reason
	req.ReviewedBy = reviewer
	req.ReviewedAt = &at
	tx.requests[id] = req
	return nil
}

func (tx *memoryTx) InsertActivity(_ context.Context, log shared.ActivityLog) error {
	if err := log.Validate(); err != nil {
		return err
	}
	tx.activities = append(tx.activities, log)
	return nil
}

var (
	resident  = rbac.Principal{ID: "w-01", Role: rbac.RoleWarga}
	neighbour = rbac.Principal{ID: "w-02", Role: rbac.RoleWarga}
	ketua     = rbac.Principal{ID: "k-01", Role: rbac.RoleKetuaRT}
	staff     = rbac.Principal{ID: "s-01", Role: rbac.RoleStaff}
)

func newTestService(t *testing.T, opts ...lifecycle.Option) (*Service, *memoryRepo) {
	t.Helper()
	model := rbac.DefaultModel()
	repo := newMemoryRepo()
	facade := access.NewFacade(model, lifecycle.New(model, opts...))
	return NewService(repo, facade, Config{RejectReasonMinLen: 10}, nil), repo
}

func submitOne(t *testing.T, svc *Service) Request {
	t.Helper()
	req, err := svc.Submit(context.Background(), resident, SubmitInput{WargaID: "w-01", Type: "SURAT_DOMISILI", Purpose: "Pembukaan rekening bank"})
	require.NoError(t, err)
	return req
}

func TestSubmitCreatesPendingRequest(t *testing.T) {
	svc, repo := newTestService(t)
	req := submitOne(t, svc)
	require.Equal(t, lifecycle.DocumentPending, req.Status)
	require.Equal(t, resident.ID, req.RequesterID)
	require.Len(t, repo.activities, 1)
	require.Equal(t, shared.ActionDocumentSubmit, repo.activities[0].Action)
}

func TestSubmitRequiresCapabilityAndInput(t *testing.T) {
	svc, repo := newTestService(t)
	_, err := svc.Submit(context.Background(), staff, SubmitInput{WargaID: "w", Type: "X", Purpose: "Y"})
	require.ErrorIs(t, err, shared.ErrForbidden)

	_, err = svc.Submit(context.Background(), resident, SubmitInput{WargaID: "w"})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.Submit(context.Background(), rbac.Principal{}, SubmitInput{})
	require.ErrorIs(t, err, shared.ErrUnauthenticated)
	require.Empty(t, repo.requests)
}

func TestReviewApproveThenConflict(t *testing.T) {
	svc, repo := newTestService(t)
	req := submitOne(t, svc)

	approved, err := svc.Review(context.Background(), ketua, req.ID, ReviewInput{Target: lifecycle.DocumentApproved})
	require.NoError(t, err)
	require.Equal(t, lifecycle.DocumentApproved, approved.Status)
	require.Equal(t, ketua.ID, approved.ReviewedBy)

	_, err = svc.Review(context.Background(), ketua, req.ID, ReviewInput{Target: lifecycle.DocumentRejected, Reason: "Data tidak lengkap sama sekali"})
	require.ErrorIs(t, err, shared.ErrConflict)
	require.Len(t, repo.activities, 2)
}

func TestReviewRejectRequiresReason(t *testing.T) {
	svc, repo := newTestService(t)
	req := submitOne(t, svc)

	_, err := svc.Review(context.Background(), ketua, req.ID, ReviewInput{Target: lifecycle.DocumentRejected, Reason: "kurang"})
	require.ErrorIs(t, err, shared.ErrValidation)
	require.Equal(t, lifecycle.DocumentPending, repo.requests[req.ID].Status)

	rejected, err := svc.Review(context.Background(), ketua, req.ID, ReviewInput{Target: "rejected", Reason: "Fotokopi KK belum dilampirkan"})
	require.NoError(t, err)
	require.Equal(t, lifecycle.DocumentRejected, rejected.Status)
	require.Equal(t, "Fotokopi KK belum dilampirkan", repo.requests[req.ID].RejectReason)
}

func TestReviewCapabilityIsTargetSpecific(t *testing.T) {
	svc, _ := newTestService(t)
	req := submitOne(t, svc)

	_, err := svc.Review(context.Background(), staff, req.ID, ReviewInput{Target: lifecycle.DocumentApproved})
	require.ErrorIs(t, err, shared.ErrForbidden)

	_, err = svc.Review(context.Background(), resident, req.ID, ReviewInput{Target: lifecycle.DocumentRejected, Reason: "Saya batalkan sendiri"})
	require.ErrorIs(t, err, shared.ErrForbidden)
}

func TestReviewCompletionWhenEnabled(t *testing.T) {
	svc, _ := newTestService(t, lifecycle.WithDocumentCompletion())
	req := submitOne(t, svc)

	_, err := svc.Review(context.Background(), ketua, req.ID, ReviewInput{Target: lifecycle.DocumentApproved})
	require.NoError(t, err)
	done, err := svc.Review(context.Background(), staff, req.ID, ReviewInput{Target: lifecycle.DocumentCompleted})
	require.NoError(t, err)
	require.Equal(t, lifecycle.DocumentCompleted, done.Status)

	_, err = svc.Review(context.Background(), ketua, req.ID, ReviewInput{Target: lifecycle.DocumentApproved})
	require.ErrorIs(t, err, shared.ErrConflict)
}

func TestReviewConcurrentReviewersSingleWinner(t *testing.T) {
	svc, repo := newTestService(t)
	req := submitOne(t, svc)

	inputs := []ReviewInput{
		{Target: lifecycle.DocumentApproved},
		{Target: lifecycle.DocumentRejected, Reason: "Alamat tidak sesuai KTP"},
	}
	errs := make([]error, len(inputs))
	var wg sync.WaitGroup
	for i, in := range inputs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = svc.Review(context.Background(), ketua, req.ID, in)
		}()
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		require.ErrorIs(t, err, shared.ErrConflict)
	}
	require.Equal(t, 1, wins)
	require.Len(t, repo.activities, 2)
}

func TestGetHidesOtherResidentsRequests(t *testing.T) {
	svc, _ := newTestService(t)
	req := submitOne(t, svc)

	_, err := svc.Get(context.Background(), resident, req.ID)
	require.NoError(t, err)
	_, err = svc.Get(context.Background(), staff, req.ID)
	require.NoError(t, err)
	_, err = svc.Get(context.Background(), neighbour, req.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestReviewHandlerStatusCodes(t *testing.T) {
	svc, _ := newTestService(t)
	req := submitOne(t, svc)
	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := rbac.Principal{ID: r.Header.Get("X-Test-User"), Role: rbac.RoleID(r.Header.Get("X-Test-Role"))}
			next.ServeHTTP(w, r.WithContext(rbac.ContextWithPrincipal(r.Context(), p)))
		})
	})
	NewHandler(svc).MountRoutes(router)

	do := func(p rbac.Principal, action, body string) int {
		rec := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodPost, "/"+req.ID+"/"+action, strings.NewReader(body))
		r.Header.Set("X-Test-User", p.ID)
		r.Header.Set("X-Test-Role", string(p.Role))
		router.ServeHTTP(rec, r)
		return rec.Code
	}

	require.Equal(t, http.StatusForbidden, do(staff, "approve", ""))
	require.Equal(t, http.StatusBadRequest, do(ketua, "reject", `{"reason":"x"}`))
	require.Equal(t, http.StatusNotFound, do(ketua, "archive", ""))
	require.Equal(t, http.StatusOK, do(ketua, "approve", ""))
	require.Equal(t, http.StatusConflict, do(ketua, "approve", ""))
	require.Equal(t, http.StatusUnauthorized, do(rbac.Principal{}, "approve", ""))
}
