// Package identity turns bearer credentials into user identities. Resolution
// never fails: anything that cannot be proven yields the anonymous identity.
package identity

import (
	"context"
	"net/http"
	"strings"
)

type Identity struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
}

func Anonymous() Identity {
	return Identity{}
}

func (i Identity) IsAnonymous() bool {
	return i.UserID == ""
}

type Resolver interface {
	Resolve(ctx context.Context, credential string) Identity
}

// ResolverFunc adapts a plain function to a Resolver.
type ResolverFunc func(ctx context.Context, credential string) Identity

func (f ResolverFunc) Resolve(ctx context.Context, credential string) Identity {
	return f(ctx, credential)
}

type contextKey struct{}

func NewContext(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(contextKey{}).(Identity)
	return id, ok
}

// CredentialFromRequest extracts the bearer credential. Browsers cannot set
// headers on WebSocket handshakes, so the token query parameter is checked
// first; the Authorization header accepts both "Token" and "Bearer" schemes.
func CredentialFromRequest(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	for _, scheme := range []string{"Token ", "Bearer "} {
		if len(header) > len(scheme) && strings.EqualFold(header[:len(scheme)], scheme) {
			return strings.TrimSpace(header[len(scheme):])
		}
	}
	return ""
}

// Chain tries each resolver in order and returns the first non-anonymous
// identity.
func Chain(resolvers ...Resolver) Resolver {
	return ResolverFunc(func(ctx context.Context, credential string) Identity {
		if credential == "" {
			return Anonymous()
		}
		for _, r := range resolvers {
			if id := r.Resolve(ctx, credential); !id.IsAnonymous() {
				return id
			}
		}
		return Anonymous()
	})
}
