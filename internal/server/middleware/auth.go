package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/gosuda/warden/internal/domain"
)

// idpClaims is the claim set of the external identity provider's tokens.
// The gateway verifies these tokens; it never issues them. Roles ride in a
// private "roles" claim.
type idpClaims struct {
	jwt.RegisteredClaims
	Roles []string `json:"roles"`
}

// Auth authenticates requests with a bearer token from the external
// identity provider and stores the resulting principal in the request
// context. Requests without a valid token are rejected; the gateway has no
// anonymous surface besides what the router mounts outside this middleware.
func Auth(idpSecret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if tok := extractBearer(r); tok != "" {
				ctx, ok := authenticate(r.Context(), tok, idpSecret)
				if ok {
					next.ServeHTTP(w, r.WithContext(ctx))
					return
				}
			}

			http.Error(w, `{"title":"Unauthorized","status":401,"detail":"missing or invalid credentials"}`, http.StatusUnauthorized)
		})
	}
}

func extractBearer(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
		return auth[7:]
	}
	return ""
}

func authenticate(ctx context.Context, tokenStr, secret string) (context.Context, bool) {
	claims := &idpClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(_ *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil || !token.Valid {
		return ctx, false
	}

	if claims.Subject == "" {
		return ctx, false
	}

	return WithPrincipal(ctx, domain.Principal{
		ID:    claims.Subject,
		Roles: claims.Roles,
	}), true
}
