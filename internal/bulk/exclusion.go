package bulk

import (
	"strings"

	"github.com/samber/lo"
	"golang.org/x/text/cases"
)

// ExclusionSet holds account ids omitted from a run.
type ExclusionSet map[string]struct{}

// Contains reports whether id is excluded.
func (s ExclusionSet) Contains(id string) bool {
	_, ok := s[id]
	return ok
}

// IDs returns the excluded ids.
func (s ExclusionSet) IDs() []string {
	return lo.Keys(s)
}

// normalizeContact folds case and trims so the same mailbox correlates across tables.
func normalizeContact(email string) string {
	return cases.Fold().String(strings.TrimSpace(email))
}

// ComputeExclusion returns the accounts whose contact e-mail matches one of the
// privileged contacts. Accounts or contacts without an e-mail never match.
func ComputeExclusion(accounts []Account, privilegedContacts []string) ExclusionSet {
	contacts := make(map[string]struct{}, len(privilegedContacts))
	for _, c := range privilegedContacts {
		if n := normalizeContact(c); n != "" {
			contacts[n] = struct{}{}
		}
	}
	set := make(ExclusionSet)
	for _, a := range accounts {
		n := normalizeContact(a.Email)
		if n == "" {
			continue
		}
		if _, ok := contacts[n]; ok {
			set[a.ID] = struct{}{}
		}
	}
	return set
}
