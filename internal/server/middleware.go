package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/golang-jwt/jwt/v5"
	"github.com/tunebridge/tunebridge/internal/models"
)

type contextKey string

const principalKey contextKey = "principal"

// PrincipalFrom extracts the authenticated principal placed in the request
// context by [Authenticate]. The zero principal means the request was not
// authenticated.
func PrincipalFrom(ctx context.Context) models.Principal {
	p, _ := ctx.Value(principalKey).(models.Principal)
	return p
}

// Authenticate validates the Bearer token on every request and stores the
// resulting principal in the request context. Requests without a valid token
// are rejected with 401.
func Authenticate(secret string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			raw, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || raw == "" {
				http.Error(w, "missing bearer token", http.StatusUnauthorized)
				return
			}

			principal, err := parseToken(raw, secret)
			if err != nil {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), principalKey, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequestLogger logs method, path, status, and latency for every request.
func RequestLogger(logger *log.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(recorder, r)

			logger.Info("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", recorder.status,
				"duration", time.Since(start))
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

type claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// IssueToken mints a signed bearer token for a user. Used by the session
// layer and by tests.
func IssueToken(secret string, userID int64, role models.Role, ttl time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Role: string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   fmt.Sprintf("%d", userID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})
	return token.SignedString([]byte(secret))
}

// parseToken verifies the signature and expiry and maps the claims to a
// principal.
func parseToken(raw, secret string) (models.Principal, error) {
	var c claims
	token, err := jwt.ParseWithClaims(raw, &c, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return models.Principal{}, err
	}
	if !token.Valid {
		return models.Principal{}, fmt.Errorf("invalid token")
	}

	var userID int64
	if _, err := fmt.Sscanf(c.Subject, "%d", &userID); err != nil {
		return models.Principal{}, fmt.Errorf("malformed subject claim: %w", err)
	}

	role := models.Role(c.Role)
	if role == "" {
		role = models.RoleUser
	}
	return models.Principal{UserID: userID, Role: role}, nil
}
