// Package visibility decides which broadcast resources a principal may see.
package visibility

import (
	"time"

	"github.com/samber/lo"

	"github.com/rukunwarga/rukun/internal/rbac"
	"github.com/rukunwarga/rukun/internal/shared"
)

// Broadcast is the visibility-relevant view of a broadcast resource.
type Broadcast struct {
	Published  bool
	ExpiresAt  *time.Time
	Recipients []Recipient
}

// Resolver evaluates the visibility predicate. It holds no mutable state.
type Resolver struct {
	caps rbac.Checker
}

// NewResolver builds a Resolver over the capability model.
func NewResolver(caps rbac.Checker) Resolver {
	return Resolver{caps: caps}
}

// Bypasses reports whether p sees every broadcast regardless of state.
func (r Resolver) Bypasses(p rbac.Principal) bool {
	return r.caps != nil && r.caps.Has(p.Role, shared.CapBypassVisibility)
}

// IsVisible reports whether b is visible to p at now. A broadcast without
// recipients reaches nobody but bypass roles, and one expiring exactly at now
// is already hidden.
func (r Resolver) IsVisible(p rbac.Principal, b Broadcast, now time.Time) bool {
	if r.Bypasses(p) {
		return true
	}
	if !b.Published {
		return false
	}
	if b.ExpiresAt != nil && !b.ExpiresAt.After(now) {
		return false
	}
	return lo.SomeBy(b.Recipients, func(rc Recipient) bool { return rc.Matches(p) })
}

// Filter keeps the items whose broadcast view is visible to p.
func Filter[T any](r Resolver, p rbac.Principal, items []T, view func(T) Broadcast, now time.Time) []T {
	if r.Bypasses(p) {
		return items
	}
	return lo.Filter(items, func(item T, _ int) bool {
		return r.IsVisible(p, view(item), now)
	})
}
