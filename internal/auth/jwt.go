package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/snapprint/snapprint/pkg/middleware"
)

// Claims represents the JWT claims carried by an access token.
type Claims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

// JWTManager validates access tokens issued by the identity provider. Token
// issuance lives outside this service; the server only ever verifies.
type JWTManager struct {
	secret []byte
	issuer string
}

// NewJWTManager creates a JWT manager with the given shared secret.
func NewJWTManager(secret, issuer string) *JWTManager {
	return &JWTManager{secret: []byte(secret), issuer: issuer}
}

// ValidateAccessToken parses and validates an access token, returning the
// claims.
func (m *JWTManager) ValidateAccessToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse access token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid access token claims")
	}

	return claims, nil
}

// Middleware adapts the manager to the HTTP auth middleware's validator
// contract.
func (m *JWTManager) Middleware() middleware.TokenValidator {
	return func(token string) (*middleware.Claims, error) {
		claims, err := m.ValidateAccessToken(token)
		if err != nil {
			return nil, err
		}
		return &middleware.Claims{UserID: claims.UserID, Email: claims.Email}, nil
	}
}

// SignForTest creates a signed token for use in tests and local tooling.
func (m *JWTManager) SignForTest(userID, email string, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	claims := &Claims{
		UserID: userID,
		Email:  email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Issuer:    m.issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return signed, nil
}
