package auth

import (
	"context"
	"net/http"
	"net/url"
	"strings"
)

// contextKey is unexported so no other package can collide with our
// context values.
type contextKey string

const identityKey contextKey = "identity"

// CookieName is the session cookie set on login.
const CookieName = "token"

// Identify is a middleware that stores an Identity in every request context.
//
// It reads the JWT from the "token" cookie, falling back to an
// "Authorization: Bearer" header. It never rejects a request; routes that
// need a user either sit behind RequireAuth or call Gate.ResolveUser.
func Identify(g *Gate) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := g.Authenticate(tokenFromRequest(r))
			ctx := context.WithValue(r.Context(), identityKey, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAuth redirects anonymous visitors to the landing page with the
// reason in ?errorMessage=. It must run after Identify.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := IdentityFromContext(r.Context())
		if !id.Authenticated() {
			reason := id.Reason
			if reason == "" {
				reason = ReasonNotLoggedIn
			}
			http.Redirect(w, r, "/?errorMessage="+url.QueryEscape(reason), http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// IdentityFromContext returns the Identity stored by Identify, or an
// anonymous one if the middleware did not run.
func IdentityFromContext(ctx context.Context) Identity {
	if id, ok := ctx.Value(identityKey).(Identity); ok {
		return id
	}
	return Identity{Reason: ReasonNotLoggedIn}
}

// WithIdentity returns a copy of ctx carrying id. Handler tests use it to
// skip the token round trip.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

func tokenFromRequest(r *http.Request) string {
	if c, err := r.Cookie(CookieName); err == nil && c.Value != "" {
		return c.Value
	}
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return ""
}
