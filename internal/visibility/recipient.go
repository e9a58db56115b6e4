package visibility

import (
	"fmt"
	"strings"

	"github.com/rukunwarga/rukun/internal/rbac"
	"github.com/rukunwarga/rukun/internal/shared"
)

// RecipientType selects how a descriptor matches principals.
type RecipientType string

const (
	RecipientAll      RecipientType = "ALL"
	RecipientRole     RecipientType = "ROLE"
	RecipientSpecific RecipientType = "SPECIFIC"
)

// Recipient is a single audience rule attached to a broadcast resource.
// ID holds a RoleID for ROLE, a principal id for SPECIFIC and is ignored for ALL.
type Recipient struct {
	Type RecipientType `json:"recipient_type"`
	ID   string        `json:"recipient_id,omitempty"`
}

// Normalize trims the descriptor and clears the id of ALL descriptors.
func (r Recipient) Normalize() Recipient {
	r.Type = RecipientType(strings.ToUpper(strings.TrimSpace(string(r.Type))))
	r.ID = strings.TrimSpace(r.ID)
	switch r.Type {
	case RecipientAll:
		r.ID = ""
	case RecipientRole:
		r.ID = strings.ToUpper(r.ID)
	}
	return r
}

// Validate enforces the descriptor invariant.
func (r Recipient) Validate() error {
	switch r.Type {
	case RecipientAll:
		return nil
	case RecipientRole:
		if !rbac.RoleID(r.ID).Valid() {
			return fmt.Errorf("%w: recipient role %q unknown", shared.ErrValidation, r.ID)
		}
		return nil
	case RecipientSpecific:
		if r.ID == "" {
			return fmt.Errorf("%w: specific recipient requires an id", shared.ErrValidation)
		}
		return nil
	default:
		return fmt.Errorf("%w: recipient type %q unknown", shared.ErrValidation, r.Type)
	}
}

// Matches reports whether the descriptor selects p.
func (r Recipient) Matches(p rbac.Principal) bool {
	switch r.Type {
	case RecipientAll:
		return true
	case RecipientRole:
		return r.ID != "" && r.ID == string(p.Role)
	case RecipientSpecific:
		return r.ID != "" && r.ID == p.ID
	default:
		return false
	}
}

// NormalizeRecipients normalises, validates and de-duplicates descriptors.
func NormalizeRecipients(in []Recipient) ([]Recipient, error) {
	seen := make(map[Recipient]struct{}, len(in))
	out := make([]Recipient, 0, len(in))
	for _, r := range in {
		r = r.Normalize()
		if err := r.Validate(); err != nil {
			return nil, err
		}
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	return out, nil
}
