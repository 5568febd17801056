package domain

import "github.com/golang-jwt/jwt/v5"

// ScopeHoneypotsManage - право на команды оркестратора.
const ScopeHoneypotsManage = "honeypots:manage"

type CustomClaims struct {
	UserID string          `json:"user_id"`
	Scopes map[string]bool `json:"scopes"` // "honeypots:manage": true
	jwt.RegisteredClaims
}

// Actor возвращает идентификатор оператора для аудита.
func (c *CustomClaims) Actor() string {
	if c == nil {
		return ""
	}
	if c.UserID != "" {
		return c.UserID
	}
	return c.Subject
}
