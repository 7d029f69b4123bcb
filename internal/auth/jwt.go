// Package auth issues and verifies the bearer tokens that protect the
// admin surface (spec §9 "API-key issuance/rotation", generalized from the
// teacher's tenant-scoped JWT to this gateway's operator-scoped token).
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims identifies the operator (not a tenant) a token was issued for.
// The admin surface is not per-tenant: it manages the tenant registry
// itself, so there is no tenant id to scope the token to.
type Claims struct {
	Subject string `json:"sub"`
	jwt.RegisteredClaims
}

func GenerateToken(subject, secret string) (string, error) {
	claims := &Claims{
		Subject: subject,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(24 * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

func ValidateToken(tokenString, secret string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}

	return nil, errors.New("invalid token")
}
