package auth

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/xela07ax/deception-core/internal/domain"
	"go.uber.org/zap"
)

// TokenValidator - интерфейс проверки токенов консоли
type TokenValidator interface {
	VerifyToken(tokenStr string) (*domain.CustomClaims, error)
}

type ctxKey string

const claimsKey ctxKey = "claims"

// ClaimsFromContext достает claims, положенные middleware. nil, если авторизация выключена.
func ClaimsFromContext(ctx context.Context) *domain.CustomClaims {
	c, _ := ctx.Value(claimsKey).(*domain.CustomClaims)
	return c
}

// WithClaims кладет claims в контекст.
func WithClaims(ctx context.Context, c *domain.CustomClaims) context.Context {
	return context.WithValue(ctx, claimsKey, c)
}

// NewMiddleware проверяет Bearer токен и наличие scope. Пустой scope - достаточно валидного токена.
func NewMiddleware(v TokenValidator, scope string, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			claims, err := v.VerifyToken(authHeader)
			if err != nil {
				logger.Warn("auth failure", zap.Error(err))
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			if scope != "" && !claims.Scopes[scope] {
				logger.Warn("missing scope", zap.String("actor", claims.Actor()), zap.String("scope", scope))
				writeError(w, http.StatusForbidden, "forbidden")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
