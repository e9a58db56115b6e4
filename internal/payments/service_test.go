package payments

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/rukunwarga/rukun/internal/access"
	"github.com/rukunwarga/rukun/internal/bulk"
	"github.com/rukunwarga/rukun/internal/lifecycle"
	"github.com/rukunwarga/rukun/internal/platform/cache"
	"github.com/rukunwarga/rukun/internal/rbac"
	"github.com/rukunwarga/rukun/internal/shared"
)

// memoryLedger backs both the payment repository and the bulk store.
type memoryLedger struct {
	payments   map[string]Payment
	order      []string
	activities []shared.ActivityLog
	nextID     int
}

type memoryTx struct {
	ledger *memoryLedger
}

func newMemoryLedger() *memoryLedger {
	return &memoryLedger{payments: make(map[string]Payment)}
}

func (l *memoryLedger) add(p Payment) Payment {
	l.nextID++
	p.ID = fmt.Sprintf("pay-%03d", l.nextID)
	l.payments[p.ID] = p
	l.order = append(l.order, p.ID)
	return p
}

func (l *memoryLedger) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &memoryTx{ledger: l})
}

func (l *memoryLedger) ListPendingDueBefore(_ context.Context, cutoff time.Time, _ int) ([]Payment, error) {
	var out []Payment
	for _, id := range l.order {
		p, ok := l.payments[id]
		if ok && p.Status == lifecycle.PaymentPending && p.DueDate.Before(cutoff) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (l *memoryLedger) InsertBatch(_ context.Context, ids []string, tmpl bulk.Template) (int, error) {
	for _, id := range ids {
		l.add(Payment{WargaID: id, Type: tmpl.Type, Amount: tmpl.Amount, DueDate: tmpl.DueDate, Status: tmpl.Status})
	}
	return len(ids), nil
}

func (l *memoryLedger) DeleteScoped(_ context.Context, w bulk.Window, f bulk.Filter, exclude []string) (int, error) {
	skip := make(map[string]bool, len(exclude))
	for _, id := range exclude {
		skip[id] = true
	}
	removed := 0
	for id, p := range l.payments {
		if !w.Contains(p.DueDate) || skip[p.WargaID] {
			continue
		}
		if (f.Type != "" && f.Type != p.Type) || (f.Status != "" && f.Status != p.Status) {
			continue
		}
		delete(l.payments, id)
		removed++
	}
	return removed, nil
}

func (tx *memoryTx) GetForUpdate(_ context.Context, id string) (Payment, error) {
	p, ok := tx.ledger.payments[id]
	if !ok {
		return Payment{}, shared.ErrNotFound
	}
	return p, nil
}

func (tx *memoryTx) UpdateStatus(_ context.Context, id string, status lifecycle.State, paidAt *time.Time) error {
	p := tx.ledger.payments[id]
	p.Status = status
	if paidAt != nil {
		p.PaidAt = paidAt
	}
	tx.ledger.payments[id] = p
	return nil
}

func (tx *memoryTx) InsertActivity(_ context.Context, log shared.ActivityLog) error {
	tx.ledger.activities = append(tx.ledger.activities, log)
	return nil
}

type memoryDirectory struct {
	accounts []bulk.Account
	contacts []string
}

func (d *memoryDirectory) Accounts(_ context.Context, activeOnly bool) ([]bulk.Account, error) {
	return d.accounts, nil
}

func (d *memoryDirectory) PrivilegedContacts(_ context.Context, _ []rbac.RoleID) ([]string, error) {
	return d.contacts, nil
}

type memoryIdempotency struct {
	keys map[string]bool
}

func (m *memoryIdempotency) CheckAndInsert(_ context.Context, key, module string) error {
	if m.keys[module+"/"+key] {
		return shared.ErrIdempotencyConflict
	}
	m.keys[module+"/"+key] = true
	return nil
}

func (m *memoryIdempotency) Delete(_ context.Context, key, module string) error {
	delete(m.keys, module+"/"+key)
	return nil
}

type memoryAudit struct {
	logs []shared.ActivityLog
}

func (a *memoryAudit) Record(_ context.Context, log shared.ActivityLog) error {
	a.logs = append(a.logs, log)
	return nil
}

type fixture struct {
	svc    *Service
	ledger *memoryLedger
	idem   *memoryIdempotency
	audit  *memoryAudit
	locker *cache.Locker
}

var (
	today     = time.Date(2024, 2, 15, 10, 0, 0, 0, time.UTC)
	bendahara = rbac.Principal{ID: "ben-1", Role: rbac.RoleBendahara}
	staff     = rbac.Principal{ID: "staff-1", Role: rbac.RoleStaff}
	warga     = rbac.Principal{ID: "w-1", Role: rbac.RoleWarga}
)

func newFixture(t *testing.T) fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	dir := &memoryDirectory{contacts: []string{"admin@rt05.id"}}
	for i := 0; i < 10; i++ {
		dir.accounts = append(dir.accounts, bulk.Account{ID: fmt.Sprintf("w-%02d", i), Email: fmt.Sprintf("warga%02d@rt05.id", i), Active: true})
	}
	dir.accounts[2].Email = "admin@rt05.id"
	dir.accounts[9].Email = "Admin@RT05.id"

	model := rbac.DefaultModel()
	ledger := newMemoryLedger()
	engine := bulk.NewEngine(model, dir, ledger, bulk.Config{})
	idem := &memoryIdempotency{keys: map[string]bool{}}
	audit := &memoryAudit{}
	locker := cache.NewLocker(client)
	svc := NewService(ledger, access.NewFacade(model, nil), engine, locker, idem, audit, Config{}, nil)
	svc.now = func() time.Time { return today }
	return fixture{svc: svc, ledger: ledger, idem: idem, audit: audit, locker: locker}
}

func iuran(due time.Time) bulk.Template {
	return bulk.Template{Type: "IURAN_BULANAN", Amount: decimal.NewFromInt(50000), DueDate: due}
}

func TestUpdateStatusTransitions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.ledger.add(Payment{WargaID: "w-01", Type: "IURAN_BULANAN", Status: lifecycle.PaymentPending, DueDate: today})

	_, err := f.svc.UpdateStatus(ctx, warga, p.ID, lifecycle.PaymentPaid)
	require.ErrorIs(t, err, shared.ErrForbidden)

	_, err = f.svc.UpdateStatus(ctx, bendahara, p.ID, "REFUNDED")
	require.ErrorIs(t, err, shared.ErrValidation)

	paid, err := f.svc.UpdateStatus(ctx, bendahara, p.ID, lifecycle.PaymentPaid)
	require.NoError(t, err)
	require.Equal(t, lifecycle.PaymentPaid, paid.Status)
	require.NotNil(t, paid.PaidAt)

	_, err = f.svc.UpdateStatus(ctx, bendahara, p.ID, lifecycle.PaymentCancelled)
	require.ErrorIs(t, err, shared.ErrConflict)
	require.Len(t, f.ledger.activities, 1)
}

func TestGenerateDuesExcludesPrivilegedAndDuplicates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	input := GenerateInput{Template: iuran(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))}

	res, err := f.svc.GenerateDues(ctx, bendahara, input)
	require.NoError(t, err)
	require.Equal(t, BulkResult{Affected: 8, Excluded: 2}, res)

	res, err = f.svc.GenerateDues(ctx, bendahara, input)
	require.NoError(t, err)
	require.Equal(t, 8, res.Affected)
	require.Len(t, f.ledger.payments, 16)
	require.Len(t, f.audit.logs, 2)
	for _, p := range f.ledger.payments {
		require.NotContains(t, []string{"w-02", "w-09"}, p.WargaID)
		require.Equal(t, lifecycle.PaymentPending, p.Status)
	}
}

func TestGenerateDuesIdempotencyKey(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	input := GenerateInput{Template: iuran(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)), IdempotencyKey: "iuran-2024-03"}

	_, err := f.svc.GenerateDues(ctx, bendahara, input)
	require.NoError(t, err)
	_, err = f.svc.GenerateDues(ctx, bendahara, input)
	require.ErrorIs(t, err, shared.ErrIdempotencyConflict)
	require.Len(t, f.ledger.payments, 8)
}

func TestGenerateDuesFailureReleasesIdempotencyKey(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	bad := iuran(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))
	bad.Amount = decimal.Zero

	_, err := f.svc.GenerateDues(ctx, bendahara, GenerateInput{Template: bad, IdempotencyKey: "k"})
	require.ErrorIs(t, err, shared.ErrValidation)
	require.Empty(t, f.idem.keys)
	require.Empty(t, f.audit.logs)
}

func TestGenerateDuesRejectsConcurrentRunForSameMonth(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	held, err := f.locker.Acquire(ctx, shared.DuesBulkLockKey(2024, 4), time.Minute)
	require.NoError(t, err)

	_, err = f.svc.GenerateDues(ctx, bendahara, GenerateInput{Template: iuran(time.Date(2024, 4, 10, 0, 0, 0, 0, time.UTC))})
	require.ErrorIs(t, err, shared.ErrConflict)

	_, err = f.svc.GenerateDues(ctx, bendahara, GenerateInput{Template: iuran(time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC))})
	require.NoError(t, err)

	require.NoError(t, held.Release(ctx))
	_, err = f.svc.GenerateDues(ctx, bendahara, GenerateInput{Template: iuran(time.Date(2024, 4, 10, 0, 0, 0, 0, time.UTC))})
	require.NoError(t, err)
}

func TestGenerateDuesRequiresManageFinances(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.GenerateDues(context.Background(), staff, GenerateInput{Template: iuran(today)})
	require.ErrorIs(t, err, shared.ErrForbidden)
	require.Empty(t, f.ledger.payments)
}

func TestDeleteDuesUsesHalfOpenMonth(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, due := range []time.Time{
		time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
	} {
		f.ledger.add(Payment{WargaID: "w-01", Type: "IURAN_BULANAN", Status: lifecycle.PaymentPending, DueDate: due})
		f.ledger.add(Payment{WargaID: "w-02", Type: "IURAN_BULANAN", Status: lifecycle.PaymentPending, DueDate: due})
	}

	res, err := f.svc.DeleteDues(ctx, bendahara, bulk.Scope{Month: 2, Year: 2024})
	require.NoError(t, err)
	require.Equal(t, 2, res.Affected)
	require.Len(t, f.ledger.payments, 6)
	for _, p := range f.ledger.payments {
		if p.WargaID == "w-01" {
			require.NotEqual(t, time.February, p.DueDate.Month())
		}
	}
}

func TestMarkOverdueFlagsPastDuePending(t *testing.T) {
	f := newFixture(t)
	late := f.ledger.add(Payment{WargaID: "w-01", Status: lifecycle.PaymentPending, DueDate: today.AddDate(0, 0, -3)})
	dueToday := f.ledger.add(Payment{WargaID: "w-03", Status: lifecycle.PaymentPending, DueDate: time.Date(2024, 2, 15, 0, 0, 0, 0, time.UTC)})
	paid := f.ledger.add(Payment{WargaID: "w-04", Status: lifecycle.PaymentPaid, DueDate: today.AddDate(0, -1, 0)})

	n, err := f.svc.MarkOverdue(context.Background(), 0)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, lifecycle.PaymentOverdue, f.ledger.payments[late.ID].Status)
	require.Equal(t, lifecycle.PaymentPending, f.ledger.payments[dueToday.ID].Status)
	require.Equal(t, lifecycle.PaymentPaid, f.ledger.payments[paid.ID].Status)
	require.Equal(t, "system", f.ledger.activities[0].ActorID)
}

func TestHandlerBulkAndStatus(t *testing.T) {
	f := newFixture(t)
	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := rbac.Principal{ID: r.Header.Get("X-Test-User"), Role: rbac.RoleID(r.Header.Get("X-Test-Role"))}
			next.ServeHTTP(w, r.WithContext(rbac.ContextWithPrincipal(r.Context(), p)))
		})
	})
	NewHandler(f.svc, nil, time.UTC).MountRoutes(router)

	do := func(p rbac.Principal, method, path, body string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		r := httptest.NewRequest(method, path, strings.NewReader(body))
		r.Header.Set("X-Test-User", p.ID)
		r.Header.Set("X-Test-Role", string(p.Role))
		router.ServeHTTP(rec, r)
		return rec
	}

	rec := do(bendahara, http.MethodPost, "/bulk", `{"type":"IURAN_BULANAN","amount":"50000","due_date":"2024-02-10"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	require.JSONEq(t, `{"affected":8,"excluded":2}`, rec.Body.String())

	require.Equal(t, http.StatusBadRequest, do(bendahara, http.MethodPost, "/bulk", `{"type":"IURAN_BULANAN","amount":"50000","due_date":"10/02/2024"}`).Code)
	require.Equal(t, http.StatusForbidden, do(warga, http.MethodPost, "/bulk", `{"type":"IURAN_BULANAN","amount":"50000","due_date":"2024-02-10"}`).Code)
	require.Equal(t, http.StatusBadRequest, do(bendahara, http.MethodDelete, "/bulk?month=2", "").Code)

	rec = do(bendahara, http.MethodDelete, "/bulk?month=2&year=2024", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"affected":8,"excluded":2}`, rec.Body.String())

	p := f.ledger.add(Payment{WargaID: "w-01", Status: lifecycle.PaymentPending, DueDate: today})
	require.Equal(t, http.StatusOK, do(bendahara, http.MethodPost, "/"+p.ID+"/status", `{"status":"paid"}`).Code)
	require.Equal(t, http.StatusConflict, do(bendahara, http.MethodPost, "/"+p.ID+"/status", `{"status":"CANCELLED"}`).Code)
	require.Equal(t, http.StatusNotFound, do(bendahara, http.MethodPost, "/pay-999/status", `{"status":"PAID"}`).Code)
}
