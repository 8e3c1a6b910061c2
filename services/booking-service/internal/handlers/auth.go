package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/tutorhub/bookingengine/libs/auth"
	"github.com/tutorhub/bookingengine/libs/httpx"
)

type adminCtxKey struct{}

func adminSubject(ctx context.Context) string {
	v, _ := ctx.Value(adminCtxKey{}).(string)
	return v
}

// RequireAdmin accepts an X-Api-Key matching apiKeyHash or a Bearer HS256
// token with an admin role. With neither configured every request is refused.
func RequireAdmin(jwtSecret, apiKeyHash string, logger *slog.Logger) httpx.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if key := strings.TrimSpace(r.Header.Get("X-Api-Key")); key != "" {
				if apiKeyHash == "" || auth.VerifyAPIKey(apiKeyHash, key) != nil {
					logger.Warn("admin api key rejected", "path", r.URL.Path, "request_id", httpx.RequestIDFromContext(r.Context()))
					writeCode(w, http.StatusUnauthorized, "unauthorized", "invalid api key")
					return
				}
				next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), adminCtxKey{}, "api-key")))
				return
			}

			token, ok := auth.BearerToken(r.Header.Get("Authorization"))
			if !ok || jwtSecret == "" {
				writeCode(w, http.StatusUnauthorized, "unauthorized", "missing or invalid Authorization header")
				return
			}
			claims, err := auth.ParseAndVerifyHS256(token, jwtSecret)
			if err != nil {
				writeCode(w, http.StatusUnauthorized, "unauthorized", "invalid token")
				return
			}
			if !claims.IsAdmin() {
				writeCode(w, http.StatusForbidden, "forbidden", "admin role required")
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), adminCtxKey{}, claims.Sub)))
		})
	}
}
