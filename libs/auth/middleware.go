package auth

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/tabletopreserve/tabletop/libs/httpx"
)

// Identity is the authenticated caller. The zero value is an anonymous
// customer.
type Identity struct {
	UserID string
	ShopID string
	Role   string
}

func (id Identity) Anonymous() bool { return id.UserID == "" }

func (id Identity) HasRole(roles ...string) bool {
	for _, r := range roles {
		if id.Role == r {
			return true
		}
	}
	return false
}

// ActsFor reports whether the caller holds one of roles at shopID.
func (id Identity) ActsFor(shopID string, roles ...string) bool {
	return !id.Anonymous() && id.ShopID != "" && id.ShopID == shopID && id.HasRole(roles...)
}

type ctxKey struct{}

func WithIdentityContext(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

func IdentityFromContext(ctx context.Context) Identity {
	id, _ := ctx.Value(ctxKey{}).(Identity)
	return id
}

// Authenticate attaches the identity of a valid bearer token to the request.
// Requests without an Authorization header pass through anonymously; a
// malformed or invalid token is rejected with 401.
func Authenticate(secret string) httpx.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := strings.TrimSpace(r.Header.Get("Authorization"))
			if header == "" {
				next.ServeHTTP(w, r)
				return
			}
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || strings.TrimSpace(token) == "" {
				httpx.WriteError(w, http.StatusUnauthorized, httpx.CodeUnauthorized, "invalid Authorization header")
				return
			}
			claims, err := ParseAndVerifyHS256(strings.TrimSpace(token), secret, time.Now())
			if err != nil {
				httpx.WriteError(w, http.StatusUnauthorized, httpx.CodeUnauthorized, "invalid token")
				return
			}
			ctx := WithIdentityContext(r.Context(), Identity{
				UserID: claims.Sub,
				ShopID: claims.ShopID,
				Role:   claims.Role,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireUser rejects anonymous callers.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if IdentityFromContext(r.Context()).Anonymous() {
			httpx.WriteError(w, http.StatusUnauthorized, httpx.CodeUnauthorized, "authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireRole admits authenticated callers holding one of roles.
func RequireRole(next http.Handler, roles ...string) http.Handler {
	return RequireUser(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if IdentityFromContext(r.Context()).HasRole(roles...) {
			next.ServeHTTP(w, r)
			return
		}
		httpx.WriteError(w, http.StatusForbidden, httpx.CodeForbidden, "insufficient role")
	}))
}
