package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/rukunwarga/rukun/internal/platform/httpx"
	"github.com/rukunwarga/rukun/internal/rbac"
)

// Resolver resolves bearer tokens.
type Resolver interface {
	Resolve(ctx context.Context, token string) (rbac.Principal, error)
}

// Middleware attaches the principal for requests carrying a bearer token.
// Requests without one pass through anonymously; a bad token is rejected.
func Middleware(resolver Resolver, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := BearerToken(r)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}
			p, err := resolver.Resolve(r.Context(), token)
			if err != nil {
				logger.Debug("bearer token rejected", slog.Any("error", err))
				httpx.RespondError(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(rbac.ContextWithPrincipal(r.Context(), p)))
		})
	}
}

// BearerToken extracts the token from the Authorization header.
func BearerToken(r *http.Request) (string, bool) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
