// Package auth verifies bearer tokens issued by the identity provider and
// carries the resulting owner id through request contexts.
package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/filevault/internal/common"
	"github.com/golang-jwt/jwt/v5"
)

// Claims is the standard claim set plus a custom UserID. Tokens that only
// carry "sub" are accepted as well.
type Claims struct {
	jwt.RegisteredClaims
	UserID string `json:"UserID,omitempty"`
}

// ownerID prefers UserID and falls back to sub.
func (c *Claims) ownerID() string {
	if c.UserID != "" {
		return c.UserID
	}
	return c.Subject
}

// Verifier turns a raw bearer token into an owner id.
type Verifier interface {
	Verify(ctx context.Context, token string) (string, error)
}

// GenerateToken mints an HS256 token for userID. Used for development and
// by the CLI's token command.
func GenerateToken(userID string, secretKey []byte, validityDuration time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(validityDuration)),
		},
		UserID: userID,
	})

	tokenString, err := token.SignedString(secretKey)
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

// HMACVerifier checks HS256 tokens signed with a shared secret.
type HMACVerifier struct {
	secret []byte
}

func NewHMACVerifier(secret []byte) *HMACVerifier {
	return &HMACVerifier{secret: secret}
}

func (v *HMACVerifier) Verify(_ context.Context, tokenString string) (string, error) {
	return GetUserIDFromToken(tokenString, v.secret)
}

// GetUserIDFromToken validates an HS256 token and returns its owner id.
// Every failure is reported as common.ErrInvalidToken.
func GetUserIDFromToken(tokenString string, secretKey []byte) (string, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return secretKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", common.ErrInvalidToken, err)
	}

	if !token.Valid || claims.ownerID() == "" {
		return "", common.ErrInvalidToken
	}

	return claims.ownerID(), nil
}
