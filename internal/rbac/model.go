package rbac

import (
	"fmt"
	"sort"

	"github.com/rukunwarga/rukun/internal/shared"
)

// Model answers whether a role owns a capability. It is immutable once built
// and safe for concurrent use.
type Model struct {
	roles map[RoleID]map[Capability]struct{}
}

var knownCapabilities = func() map[Capability]struct{} {
	known := map[Capability]struct{}{Wildcard: {}}
	for _, scopes := range [][]string{
		shared.CoreScopes(), shared.DocumentScopes(), shared.AnnouncementScopes(), shared.FinanceScopes(),
	} {
		for _, c := range scopes {
			known[Capability(c)] = struct{}{}
		}
	}
	return known
}()

// Known reports whether c is the wildcard or a capability some handler checks.
func Known(c Capability) bool {
	_, ok := knownCapabilities[c]
	return ok
}

// NewModel builds a Model from a role table. Roles outside the enumeration,
// malformed capabilities and capabilities nothing checks are rejected.
func NewModel(table map[RoleID][]Capability) (*Model, error) {
	roles := make(map[RoleID]map[Capability]struct{}, len(table))
	for role, caps := range table {
		if !role.Valid() {
			return nil, fmt.Errorf("rbac: unknown role %q", role)
		}
		set := make(map[Capability]struct{}, len(caps))
		for _, c := range caps {
			if !c.Valid() {
				return nil, fmt.Errorf("rbac: role %s: malformed capability %q", role, c)
			}
			if !Known(c) {
				return nil, fmt.Errorf("rbac: role %s: unknown capability %q", role, c)
			}
			set[c] = struct{}{}
		}
		roles[role] = set
	}
	return &Model{roles: roles}, nil
}

// Has reports whether role owns capability. Unknown roles fail closed.
func (m *Model) Has(role RoleID, capability Capability) bool {
	if m == nil || capability == "" {
		return false
	}
	set, ok := m.roles[role]
	if !ok {
		return false
	}
	if _, ok := set[Wildcard]; ok {
		return true
	}
	_, ok = set[capability]
	return ok
}

// Capabilities returns the sorted capabilities owned by role.
func (m *Model) Capabilities(role RoleID) []Capability {
	if m == nil {
		return nil
	}
	set := m.roles[role]
	out := make([]Capability, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// DefaultTable returns the built-in role table.
func DefaultTable() map[RoleID][]Capability {
	return map[RoleID][]Capability{
		RoleSuperAdmin: {shared.CapAll},
		RoleKetuaRT: {
			shared.CapWargaView, shared.CapWargaManage, shared.CapFamilyManage, shared.CapActivityView,
			shared.CapBypassVisibility,
			shared.CapDocumentsView, shared.CapDocumentsApprove, shared.CapDocumentsReject, shared.CapDocumentsComplete,
			shared.CapAnnouncementsView, shared.CapAnnouncementsManage, shared.CapAnnouncementsPublish,
			shared.CapFinancesView, shared.CapFinancesManage,
			shared.CapPaymentsConfirm, shared.CapPaymentsFlag, shared.CapPaymentsCancel,
		},
		RoleSekretaris: {
			shared.CapWargaView, shared.CapWargaManage, shared.CapFamilyManage, shared.CapActivityView,
			shared.CapBypassVisibility,
			shared.CapDocumentsView, shared.CapDocumentsApprove, shared.CapDocumentsReject, shared.CapDocumentsComplete,
			shared.CapAnnouncementsView, shared.CapAnnouncementsManage, shared.CapAnnouncementsPublish,
			shared.CapFinancesView,
		},
		RoleBendahara: {
			shared.CapWargaView,
			shared.CapAnnouncementsView,
			shared.CapFinancesView, shared.CapFinancesManage,
			shared.CapPaymentsConfirm, shared.CapPaymentsFlag, shared.CapPaymentsCancel,
		},
		RoleStaff: {
			shared.CapWargaView,
			shared.CapDocumentsView, shared.CapDocumentsComplete,
			shared.CapAnnouncementsView,
			shared.CapFinancesView,
		},
		RoleWarga: {
			shared.CapDocumentsRequest,
			shared.CapAnnouncementsView,
		},
	}
}

// DefaultModel returns a Model built from DefaultTable.
func DefaultModel() *Model {
	m, err := NewModel(DefaultTable())
	if err != nil {
		panic(err)
	}
	return m
}
