package backend

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// Claims содержит поля токена доступа, выданного бэкендом.
type Claims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
	Role  string `json:"role"`
}

// ParseAccessToken читает поля токена без проверки подписи:
// подпись проверяет бэкенд при каждом запросе.
func ParseAccessToken(token string) (*Claims, error) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("parse access token: %w", err)
	}
	return claims, nil
}
