package auth

import (
	"chatto/domain"
	"chatto/errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const issuer = "chatto"

// CustomClaims binds a token to a user and to the session it was issued for.
// The session id travels as the registered jti claim.
type CustomClaims struct {
	UserID domain.UserID `json:"user_id"`
	jwt.RegisteredClaims
}

func (c CustomClaims) SessionID() string { return c.ID }

// TokenIssuer signs and validates HS256 tokens with one secret.
type TokenIssuer struct {
	secret []byte
}

func NewTokenIssuer(secret string) (*TokenIssuer, error) {
	if len(secret) < 16 {
		return nil, fmt.Errorf("jwt secret must be at least 16 bytes")
	}
	return &TokenIssuer{secret: []byte(secret)}, nil
}

// GenerateToken signs a token for the given session. It expires with the session.
func (i *TokenIssuer) GenerateToken(s domain.Session) (string, error) {
	claims := &CustomClaims{
		UserID: s.UserID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        s.ID.String(),
			Subject:   fmt.Sprintf("%d", s.UserID),
			ExpiresAt: jwt.NewNumericDate(s.ExpiresAt),
			IssuedAt:  jwt.NewNumericDate(s.CreatedAt),
			Issuer:    issuer,
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("%w: %w", errors.ErrTokenGeneration, err)
	}
	return token, nil
}

// ValidateToken checks signature, algorithm, issuer and expiration.
func (i *TokenIssuer) ValidateToken(tokenString string) (*CustomClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &CustomClaims{}, func(token *jwt.Token) (any, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(5*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errors.ErrInvalidToken, err)
	}
	claims, ok := token.Claims.(*CustomClaims)
	if !ok || !token.Valid || claims.ID == "" {
		return nil, errors.ErrInvalidToken
	}
	return claims, nil
}
