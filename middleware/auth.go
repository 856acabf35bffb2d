package middleware

import (
	"net/http"

	"naskahlive/internal/identity"
	"naskahlive/pkg/respond"
)

// Identify resolves the request credential and attaches the identity,
// anonymous included, to the context. It never rejects a request.
func Identify(resolver identity.Resolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			who := resolver.Resolve(r.Context(), identity.CredentialFromRequest(r))
			next.ServeHTTP(w, r.WithContext(identity.NewContext(r.Context(), who)))
		})
	}
}

// RequireAuth rejects anonymous requests with 401. It must run after
// Identify.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		who, ok := identity.FromContext(r.Context())
		if !ok || who.IsAnonymous() {
			respond.Message(w, http.StatusUnauthorized, "authentication credentials were not provided or are invalid")
			return
		}
		next.ServeHTTP(w, r)
	})
}
