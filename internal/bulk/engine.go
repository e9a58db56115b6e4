// Package bulk applies templated create/delete runs over the resident account
// universe while excluding accounts linked to privileged identities.
package bulk

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"github.com/rukunwarga/rukun/internal/lifecycle"
	"github.com/rukunwarga/rukun/internal/rbac"
	"github.com/rukunwarga/rukun/internal/shared"
)

// Config tunes an Engine.
type Config struct {
	// PrivilegedRoles are the roles whose contacts form the exclusion set.
	PrivilegedRoles []rbac.RoleID
	// Location anchors month and date scopes.
	Location *time.Location
	Logger   *slog.Logger
}

// Engine runs bulk operations. It keeps no state between runs.
type Engine struct {
	caps      rbac.Checker
	directory Directory
	store     Store
	validate  *validator.Validate
	roles     []rbac.RoleID
	loc       *time.Location
	logger    *slog.Logger
}

// NewEngine constructs an Engine.
func NewEngine(caps rbac.Checker, directory Directory, store Store, cfg Config) *Engine {
	roles := lo.Uniq(cfg.PrivilegedRoles)
	if len(roles) == 0 {
		roles = []rbac.RoleID{rbac.RoleSuperAdmin}
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		caps:      caps,
		directory: directory,
		store:     store,
		validate:  validator.New(),
		roles:     roles,
		loc:       loc,
		logger:    logger,
	}
}

// Run gates on manage:finances, validates the request, computes a fresh
// exclusion set and applies the operation. No dedup is performed: running the
// same create twice creates every record twice.
func (e *Engine) Run(ctx context.Context, p rbac.Principal, req Request) (Result, error) {
	if e.caps == nil || !e.caps.Has(p.Role, shared.CapFinancesManage) {
		return Result{}, fmt.Errorf("%w: role %s lacks %s", shared.ErrForbidden, p.Role, shared.CapFinancesManage)
	}
	switch req.Op {
	case OpCreate:
		tmpl, err := e.validTemplate(req.Template)
		if err != nil {
			return Result{}, err
		}
		return e.create(ctx, tmpl)
	case OpDelete:
		window, filter, err := e.validScope(req.Scope)
		if err != nil {
			return Result{}, err
		}
		return e.delete(ctx, window, filter)
	default:
		return Result{}, fmt.Errorf("%w: unknown bulk operation %q", shared.ErrValidation, req.Op)
	}
}

func (e *Engine) validTemplate(tmpl *Template) (Template, error) {
	if tmpl == nil {
		return Template{}, fmt.Errorf("%w: create requires a template", shared.ErrValidation)
	}
	if err := e.validate.Struct(tmpl); err != nil {
		return Template{}, validationError(err)
	}
	if !tmpl.Amount.IsPositive() {
		return Template{}, fmt.Errorf("%w: amount must be positive", shared.ErrValidation)
	}
	if tmpl.DueDate.IsZero() {
		return Template{}, fmt.Errorf("%w: due date required", shared.ErrValidation)
	}
	out := *tmpl
	if out.Status == "" {
		out.Status = lifecycle.PaymentPending
	}
	return out, nil
}

func (e *Engine) validScope(scope *Scope) (Window, Filter, error) {
	if scope == nil {
		return Window{}, Filter{}, fmt.Errorf("%w: delete requires a scope", shared.ErrValidation)
	}
	if err := e.validate.Struct(scope); err != nil {
		return Window{}, Filter{}, validationError(err)
	}
	window, err := scope.Window(e.loc)
	if err != nil {
		return Window{}, Filter{}, err
	}
	return window, scope.Filter(), nil
}

// exclusion loads the account universe and privileged contacts concurrently.
func (e *Engine) exclusion(ctx context.Context, activeOnly bool) ([]Account, ExclusionSet, error) {
	var (
		accounts []Account
		contacts []string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		accounts, err = e.directory.Accounts(gctx, activeOnly)
		if err != nil {
			return fmt.Errorf("bulk: load accounts: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		contacts, err = e.directory.PrivilegedContacts(gctx, e.roles)
		if err != nil {
			return fmt.Errorf("bulk: load privileged contacts: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return accounts, ComputeExclusion(accounts, contacts), nil
}

func (e *Engine) create(ctx context.Context, tmpl Template) (Result, error) {
	accounts, excluded, err := e.exclusion(ctx, true)
	if err != nil {
		return Result{}, err
	}
	targets := lo.FilterMap(accounts, func(a Account, _ int) (string, bool) {
		return a.ID, a.Active && !excluded.Contains(a.ID)
	})
	targets = lo.Uniq(targets)
	res := Result{Op: OpCreate, Excluded: len(excluded)}
	if len(targets) == 0 {
		e.logger.Info("bulk create skipped, empty universe", slog.Int("excluded", len(excluded)))
		return res, nil
	}
	n, err := e.store.InsertBatch(ctx, targets, tmpl)
	if err != nil {
		return Result{}, fmt.Errorf("bulk: insert batch: %w", err)
	}
	res.Affected = n
	e.logger.Info("bulk create applied",
		slog.String("type", tmpl.Type),
		slog.Int("affected", n),
		slog.Int("excluded", len(excluded)),
	)
	return res, nil
}

func (e *Engine) delete(ctx context.Context, window Window, filter Filter) (Result, error) {
	_, excluded, err := e.exclusion(ctx, false)
	if err != nil {
		return Result{}, err
	}
	n, err := e.store.DeleteScoped(ctx, window, filter, excluded.IDs())
	if err != nil {
		return Result{}, fmt.Errorf("bulk: delete scoped: %w", err)
	}
	e.logger.Info("bulk delete applied",
		slog.Time("from", window.From),
		slog.Time("to", window.To),
		slog.Int("affected", n),
		slog.Int("excluded", len(excluded)),
	)
	return Result{Op: OpDelete, Affected: n, Excluded: len(excluded)}, nil
}

func validationError(err error) error {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return fmt.Errorf("%w: %s failed on %s", shared.ErrValidation, fe.Field(), fe.Tag())
	}
	return fmt.Errorf("%w: %v", shared.ErrValidation, err)
}
