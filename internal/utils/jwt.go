package utils

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const tokenIssuer = "timelogbot"

var (
	jwtSecret   []byte
	jwtSecretMu sync.RWMutex
)

// Claims identifies the operator calling the ops API through the standard sub claim.
type Claims struct {
	jwt.RegisteredClaims
}

// SetJWTSecret sets the HMAC key used to sign and verify ops tokens.
func SetJWTSecret(secret string) {
	jwtSecretMu.Lock()
	jwtSecret = []byte(secret)
	jwtSecretMu.Unlock()
}

func secret() []byte {
	jwtSecretMu.RLock()
	defer jwtSecretMu.RUnlock()
	return jwtSecret
}

// GenerateToken issues an HS256 token for subject valid for expireHour hours.
func GenerateToken(subject string, expireHour int) (string, error) {
	if subject == "" {
		return "", errors.New("subject is required")
	}
	if expireHour <= 0 {
		expireHour = 24
	}

	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Issuer:    tokenIssuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Duration(expireHour) * time.Hour)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret())
}

// ParseToken verifies tokenString and returns its claims.
func ParseToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return secret(), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(tokenIssuer))
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}
