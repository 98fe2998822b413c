// Package auth is the authorization gate in front of the chat endpoint.
// It only approves or refuses a connection; sessions and user accounts
// live elsewhere.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const issuer = "livechat"

// ErrGateDisabled is returned when tokens are requested from a gate that
// has no signing secret.
var ErrGateDisabled = errors.New("authorization gate disabled")

// Claims is the payload carried by a chat access token.
type Claims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// GenerateToken signs a token for userID valid for ttl.
func (g *Gate) GenerateToken(userID string, ttl time.Duration) (string, error) {
	if !g.Enabled() {
		return "", ErrGateDisabled
	}

	now := time.Now()
	claims := &Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    issuer,
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(g.secret)
}

// ValidateToken checks signature, algorithm, issuer and expiry.
func (g *Gate) ValidateToken(tokenString string) (*Claims, error) {
	if !g.Enabled() {
		return nil, ErrGateDisabled
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return g.secret, nil
	}, jwt.WithIssuer(issuer), jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}
	return nil, jwt.ErrSignatureInvalid
}
