package middleware

import (
	"context"
	"net/http"
	"strings"

	"wallpaper-notify/internal/services"

	"github.com/rs/zerolog/log"
)

type contextKey string

const subjectKey contextKey = "subject"

// RequireRole creates a middleware accepting only bearer JWTs carrying role
func RequireRole(authService *services.AuthService, role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				respondError(w, "Authorization header required", http.StatusUnauthorized)
				return
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				respondError(w, "Invalid authorization header format", http.StatusUnauthorized)
				return
			}

			claims, err := authService.ValidateJWT(parts[1])
			if err != nil {
				respondError(w, "Invalid token", http.StatusUnauthorized)
				return
			}

			if claims.Role != role {
				log.Warn().
					Str("role", claims.Role).
					Str("path", r.URL.Path).
					Msg("Rejected caller without required role")
				respondError(w, "Insufficient role", http.StatusForbidden)
				return
			}

			ctx := context.WithValue(r.Context(), subjectKey, claims.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetSubject extracts the caller subject from context
func GetSubject(ctx context.Context) string {
	subject, ok := ctx.Value(subjectKey).(string)
	if !ok {
		return ""
	}
	return subject
}

// respondError sends an error response
func respondError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	w.Write([]byte(`{"error":"` + message + `"}`))
}
