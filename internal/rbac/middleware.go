package rbac

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/rukunwarga/rukun/internal/platform/httpx"
	"github.com/rukunwarga/rukun/internal/shared"
)

// Checker answers capability questions for a role.
type Checker interface {
	Has(role RoleID, capability Capability) bool
}

// Middleware wires capability checks for HTTP handlers.
type Middleware struct {
	Model  Checker
	Logger *slog.Logger
}

// RequireAny ensures the current principal owns at least one of the capabilities.
func (m Middleware) RequireAny(caps ...Capability) func(http.Handler) http.Handler {
	normalized := normalizeCapabilities(caps)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFromContext(r.Context())
			if !ok {
				httpx.RespondError(w, shared.ErrUnauthenticated)
				return
			}
			if len(normalized) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			for _, c := range normalized {
				if m.Model.Has(p.Role, c) {
					next.ServeHTTP(w, r)
					return
				}
			}
			if m.Logger != nil {
				m.Logger.Warn("rbac require any denied", slog.String("principal", p.ID), slog.String("role", string(p.Role)))
			}
			httpx.RespondError(w, shared.ErrForbidden)
		})
	}
}

// RequireAll ensures the current principal owns every capability.
func (m Middleware) RequireAll(caps ...Capability) func(http.Handler) http.Handler {
	normalized := normalizeCapabilities(caps)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFromContext(r.Context())
			if !ok {
				httpx.RespondError(w, shared.ErrUnauthenticated)
				return
			}
			for _, c := range normalized {
				if !m.Model.Has(p.Role, c) {
					if m.Logger != nil {
						m.Logger.Warn("rbac require all denied", slog.String("principal", p.ID), slog.String("capability", string(c)))
					}
					httpx.RespondError(w, shared.ErrForbidden)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func normalizeCapabilities(caps []Capability) []Capability {
	unique := make(map[Capability]struct{}, len(caps))
	normalized := make([]Capability, 0, len(caps))
	for _, c := range caps {
		c = Capability(strings.TrimSpace(strings.ToLower(string(c))))
		if c == "" {
			continue
		}
		if _, ok := unique[c]; ok {
			continue
		}
		unique[c] = struct{}{}
		normalized = append(normalized, c)
	}
	return normalized
}
