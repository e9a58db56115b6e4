package bulk

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rukunwarga/rukun/internal/lifecycle"
	"github.com/rukunwarga/rukun/internal/rbac"
)

// Operation selects the set-wide mutation.
type Operation string

const (
	OpCreate Operation = "CREATE"
	OpDelete Operation = "DELETE"
)

// Account is a member of the bulk universe.
type Account struct {
	ID     string
	Email  string
	Active bool
}

// Template is the uniform payload of every record created by one run.
type Template struct {
	Type        string          `validate:"required,max=64"`
	Amount      decimal.Decimal `validate:"-"`
	Description string          `validate:"max=500"`
	DueDate     time.Time       `validate:"-"`
	Status      lifecycle.State `validate:"omitempty,oneof=PENDING PAID OVERDUE CANCELLED"`
}

// Scope narrows a delete run. Either Month+Year or Date must be set.
type Scope struct {
	Month  int             `validate:"omitempty,min=1,max=12"`
	Year   int             `validate:"omitempty,min=2000,max=2100"`
	Date   *time.Time      `validate:"-"`
	Type   string          `validate:"max=64"`
	Status lifecycle.State `validate:"omitempty,oneof=PENDING PAID OVERDUE CANCELLED"`
}

// Window is a half-open due date interval [From, To).
type Window struct {
	From time.Time
	To   time.Time
}

// Contains reports whether t falls in the window.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.From) && t.Before(w.To)
}

// Filter narrows deleted records by sub-type and status; empty fields match all.
type Filter struct {
	Type   string
	Status lifecycle.State
}

// Request describes one bulk run.
type Request struct {
	Op       Operation
	Template *Template
	Scope    *Scope
}

// Result reports the number of affected records only.
type Result struct {
	Op       Operation
	Affected int
	Excluded int
}

// Directory resolves the account universe and privileged contacts.
type Directory interface {
	Accounts(ctx context.Context, activeOnly bool) ([]Account, error)
	PrivilegedContacts(ctx context.Context, roles []rbac.RoleID) ([]string, error)
}

// Store applies the set-wide mutation.
type Store interface {
	InsertBatch(ctx context.Context, accountIDs []string, tmpl Template) (int, error)
	DeleteScoped(ctx context.Context, window Window, filter Filter, excludeAccountIDs []string) (int, error)
}
