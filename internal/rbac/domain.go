package rbac

import (
	"slices"
	"strings"
)

// RoleID identifies one of the closed set of neighborhood roles.
type RoleID string

const (
	RoleSuperAdmin RoleID = "SUPER_ADMIN"
	RoleKetuaRT    RoleID = "KETUA_RT"
	RoleSekretaris RoleID = "SEKRETARIS"
	RoleBendahara  RoleID = "BENDAHARA"
	RoleStaff      RoleID = "STAFF"
	RoleWarga      RoleID = "WARGA"
)

var knownRoles = []RoleID{
	RoleSuperAdmin,
	RoleKetuaRT,
	RoleSekretaris,
	RoleBendahara,
	RoleStaff,
	RoleWarga,
}

// Roles returns every known role.
func Roles() []RoleID {
	return slices.Clone(knownRoles)
}

// Valid reports whether r belongs to the enumeration.
func (r RoleID) Valid() bool {
	return slices.Contains(knownRoles, r)
}

// ParseRole normalises raw into a RoleID.
func ParseRole(raw string) (RoleID, bool) {
	role := RoleID(strings.ToUpper(strings.TrimSpace(raw)))
	return role, role.Valid()
}

// Capability is a named permission of the form verb:resource.
type Capability string

// Wildcard matches any requested capability when owned by a role.
const Wildcard Capability = "*"

// Valid reports whether c is the wildcard or has the verb:resource shape.
func (c Capability) Valid() bool {
	if c == Wildcard {
		return true
	}
	verb, resource, ok := strings.Cut(string(c), ":")
	if !ok || verb == "" || resource == "" {
		return false
	}
	return !strings.ContainsAny(string(c), " *")
}

// Principal describes the authenticated actor for the duration of a request.
type Principal struct {
	ID   string
	Role RoleID
}

// Authenticated reports whether p carries an identity.
func (p Principal) Authenticated() bool {
	return strings.TrimSpace(p.ID) != ""
}
