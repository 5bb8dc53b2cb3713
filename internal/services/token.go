package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/quillpress/apiserver/types"
)

const DefaultTokenTTL = 24 * time.Hour

// Claims is the payload of an access token.
type Claims struct {
	ID      string `json:"_id"`
	IsAdmin bool   `json:"isAdmin"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and verifies HS256 access tokens.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokenIssuer(secret string, ttl time.Duration) *TokenIssuer {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenIssuer{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

// Issue signs a token embedding the user's id and admin flag.
func (t *TokenIssuer) Issue(user types.User) (string, error) {
	now := t.now()
	claims := Claims{
		ID:      user.ID.Hex(),
		IsAdmin: user.IsAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.Hex(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(t.secret)
}

// Verify checks signature and expiry and returns the embedded identity.
// Failures wrap ErrInvalidToken.
func (t *TokenIssuer) Verify(tokenString string) (types.Identity, error) {
	claims := Claims{}
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return t.secret, nil
	}, jwt.WithExpirationRequired(), jwt.WithTimeFunc(t.now))
	if err != nil {
		return types.Identity{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !token.Valid {
		return types.Identity{}, ErrInvalidToken
	}

	subject := claims.ID
	if subject == "" {
		subject = claims.Subject
	}
	userID, err := primitive.ObjectIDFromHex(subject)
	if err != nil {
		return types.Identity{}, fmt.Errorf("%w: bad subject", ErrInvalidToken)
	}
	return types.Identity{UserID: userID, IsAdmin: claims.IsAdmin}, nil
}

// ExpiresAt reads the expiry of a token without verifying it. Tokens whose
// expiry cannot be read are assumed to live for the full TTL from now.
func (t *TokenIssuer) ExpiresAt(tokenString string) time.Time {
	claims := Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenString, &claims); err == nil && claims.ExpiresAt != nil {
		return claims.ExpiresAt.Time
	}
	return t.now().Add(t.ttl)
}
