package middleware

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const adminRole = "admin"

// RequireAdmin gates destructive endpoints behind an HS256 bearer token with an
// admin role claim. This is operator authentication, not end-user auth; tokens
// are issued by the login endpoint.
func RequireAdmin(secret string, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			raw, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || raw == "" {
				http.Error(w, "missing bearer token", http.StatusUnauthorized)
				return
			}

			claims := jwt.MapClaims{}
			token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return []byte(secret), nil
			})
			if err != nil || !token.Valid {
				log.WarnContext(r.Context(), "rejected admin token",
					"request_id", GetRequestID(r.Context()),
					"error", err,
				)
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}

			role, _ := claims["role"].(string)
			if role != adminRole {
				http.Error(w, "admin role required", http.StatusForbidden)
				return
			}

			actor, _ := claims["sub"].(string)
			next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
		})
	}
}

// IssueAdminToken mints a short-lived admin token for the given operator.
func IssueAdminToken(secret, operator string, ttl time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  operator,
		"role": adminRole,
		"iat":  now.Unix(),
		"exp":  now.Add(ttl).Unix(),
	})
	return token.SignedString([]byte(secret))
}
