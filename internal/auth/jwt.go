// Package auth verifies the bearer tokens issued by the identity provider.
// A valid token names the external subject and its verified email.
package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/erazemk/stockledger/internal/apperr"
)

// Claims represents the JWT claims. Subject carries the external user ID.
type Claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// DefaultTTL is the lifetime of tokens issued without an explicit TTL.
const DefaultTTL = 24 * time.Hour

// GenerateToken signs a token for subject with a unique JTI. It is used by
// the development token command and tests; production tokens come from the
// identity provider.
func GenerateToken(secret, subject, email string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	jti, err := generateJTI()
	if err != nil {
		return "", fmt.Errorf("generating JTI: %w", err)
	}

	now := time.Now()
	claims := Claims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

// ValidateToken parses and validates a JWT, returning the claims. Every
// failure is Unauthorized.
func ValidateToken(secret, tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	}, jwt.WithExpirationRequired())
	if err != nil {
		return nil, apperr.Wrap(apperr.Unauthorized, err, "invalid token")
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, apperr.E(apperr.Unauthorized, "invalid token")
	}
	if strings.TrimSpace(claims.Subject) == "" || claims.Email == "" {
		return nil, apperr.E(apperr.Unauthorized, "token lacks subject or email")
	}

	return claims, nil
}

// generateJTI creates a random token ID.
func generateJTI() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
