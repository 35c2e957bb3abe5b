package middleware

import (
	"net/http"

	"github.com/tradeconnect/server/internal/api/respond"
	"github.com/tradeconnect/server/internal/auth"
)

// RequireAuth validates the bearer token and stores its claims on the
// context. Requests without a valid token get a 401 envelope.
func RequireAuth(tokens *auth.JWTManager, env string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := auth.TokenFromHeader(r.Header.Get("Authorization"))
			if err != nil {
				respond.Error(w, r, respond.CodeUnauthorized, "Token de autenticación requerido", err, env)
				return
			}

			claims, err := tokens.Validate(token)
			if err != nil {
				respond.Error(w, r, respond.CodeUnauthorized, "Token inválido o expirado", err, env)
				return
			}

			next.ServeHTTP(w, r.WithContext(auth.WithClaims(r.Context(), claims)))
		})
	}
}

// RequireRole rejects authenticated requests whose role is not in the
// allowed set. It must run after RequireAuth.
func RequireRole(env string, allowed ...auth.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := auth.ClaimsFromContext(r.Context())
			if claims == nil {
				respond.Error(w, r, respond.CodeUnauthorized, "Token de autenticación requerido", auth.ErrMissingToken, env)
				return
			}

			if !auth.HasRole(claims.Role, allowed...) {
				respond.Error(w, r, respond.CodeForbidden, "Permisos insuficientes", nil, env)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
