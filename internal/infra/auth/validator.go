package auth

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/xela07ax/deception-core/internal/domain"
)

// Допуск на расхождение часов консоли и выпускающего токены сервиса
const clockLeeway = 30 * time.Second

var errNoActor = errors.New("token has no operator identity")

// OperatorValidator проверяет токены операторов консоли. Консоль токены не выпускает,
// у нее есть только публичный ключ.
type OperatorValidator struct {
	publicKey *rsa.PublicKey
	parser    *jwt.Parser
}

func NewOperatorValidator(pubKey *rsa.PublicKey) *OperatorValidator {
	return &OperatorValidator{
		publicKey: pubKey,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
			jwt.WithExpirationRequired(),
			jwt.WithLeeway(clockLeeway),
		),
	}
}

// VerifyToken принимает значение заголовка Authorization с префиксом Bearer или без.
// Токен без user_id и sub отклоняется: команду некому приписать в журнале действий.
func (v *OperatorValidator) VerifyToken(header string) (*domain.CustomClaims, error) {
	tokenStr := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))

	claims := &domain.CustomClaims{}
	if _, err := v.parser.ParseWithClaims(tokenStr, claims, func(*jwt.Token) (interface{}, error) {
		return v.publicKey, nil
	}); err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	if claims.Actor() == "" {
		return nil, errNoActor
	}
	return claims, nil
}

// ParseRSAPublicKey разбирает PEM из auth.public_key_path или AUTH_PUBLIC_KEY_DATA.
func ParseRSAPublicKey(data []byte) (*rsa.PublicKey, error) {
	if len(data) == 0 {
		return nil, errors.New("public key data is empty")
	}
	key, err := jwt.ParseRSAPublicKeyFromPEM(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}
	return key, nil
}
